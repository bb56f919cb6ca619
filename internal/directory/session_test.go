package directory

import (
	"context"
	"errors"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/ad-onboard/internal/ldap"
)

func testConfig() *ldap.ConnectionConfig {
	cfg := ldap.DefaultConfig()
	cfg.Domain = "danskvinimport.local"
	cfg.Username = "svc-onboard"
	return cfg
}

func verifySearch(bindDN string) any {
	return mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == bindDN && req.Scope == ldap.ScopeBaseObject
	})
}

func deadDirectory() *fakeDirectory {
	dir := newFakeDirectory("OU=danskvinimport,DC=local")
	dir.pingErr = ldap.NewLDAPError("ping", goldap.NewError(goldap.ErrorNetwork, errors.New("connection reset by peer")))
	return dir
}

func TestSessionConnect(t *testing.T) {
	client := new(MockClient)
	client.On("Ping", mock.Anything).Return(nil).Once()
	client.On("Search", mock.Anything, verifySearch("OU=danskvinimport,DC=local")).
		Return(&ldap.SearchResult{Entries: []*goldap.Entry{goldap.NewEntry("OU=danskvinimport,DC=local", nil)}}, nil)

	var dialed *ldap.ConnectionConfig
	s := NewSession(testConfig(), WithDialer(func(_ context.Context, cfg *ldap.ConnectionConfig) (ldap.Client, error) {
		dialed = cfg
		return client, nil
	}))

	assert.False(t, s.IsConnected())
	assert.Empty(t, s.BindDN())
	assert.Empty(t, s.ParentDN())

	require.NoError(t, s.Connect(context.Background()))

	assert.True(t, s.IsConnected())
	assert.Equal(t, "danskvinimport.local", s.Domain())
	assert.Equal(t, "OU=danskvinimport,DC=local", s.BindDN())
	assert.Equal(t, "DC=local", s.ParentDN())
	require.NotNil(t, dialed)
	assert.Equal(t, "danskvinimport.local", dialed.Domain)
	client.AssertExpectations(t)
}

func TestSessionConnectToChangesDefaultDomain(t *testing.T) {
	dialCount := 0
	s := NewSession(testConfig(), WithDialer(func(_ context.Context, cfg *ldap.ConnectionConfig) (ldap.Client, error) {
		dialCount++
		bindDN, err := ldap.BindPathForDomain(cfg.Domain)
		require.NoError(t, err)
		return newFakeDirectory(bindDN), nil
	}))

	require.NoError(t, s.ConnectTo(context.Background(), "corp.example.com."))
	assert.Equal(t, "corp.example.com", s.Domain())
	assert.Equal(t, "OU=corp,DC=example,DC=com", s.BindDN())
	assert.Equal(t, "DC=example,DC=com", s.ParentDN())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, "corp.example.com", s.Domain())
	assert.Equal(t, 2, dialCount)
}

func TestSessionReconnectClosesPreviousHandle(t *testing.T) {
	first := newFakeDirectory("OU=danskvinimport,DC=local")
	second := newFakeDirectory("OU=danskvinimport,DC=local")
	clients := []*fakeDirectory{first, second}

	s := NewSession(testConfig(), WithDialer(func(context.Context, *ldap.ConnectionConfig) (ldap.Client, error) {
		c := clients[0]
		clients = clients[1:]
		return c, nil
	}))

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Connect(context.Background()))

	assert.True(t, first.closed)
	assert.False(t, second.closed)
	assert.True(t, s.IsConnected())
}

func TestSessionConnectFailureDisconnects(t *testing.T) {
	tests := []struct {
		name      string
		domain    string
		dialErr   error
		halfBuilt *fakeDirectory
	}{
		{
			name:   "invalid domain",
			domain: "local",
		},
		{
			name:   "empty label",
			domain: "danskvinimport..local",
		},
		{
			name:    "dial failure",
			domain:  "danskvinimport.local",
			dialErr: ldap.NewConnectionError("no server reachable", true, errors.New("connection refused")),
		},
		{
			name:      "bind path missing",
			domain:    "danskvinimport.local",
			halfBuilt: newFakeDirectory(),
		},
		{
			name:      "connection not answering",
			domain:    "danskvinimport.local",
			halfBuilt: deadDirectory(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			previous := newFakeDirectory("OU=danskvinimport,DC=local")
			calls := 0
			s := NewSession(testConfig(), WithDialer(func(context.Context, *ldap.ConnectionConfig) (ldap.Client, error) {
				calls++
				if calls == 1 {
					return previous, nil
				}
				if tt.dialErr != nil {
					return nil, tt.dialErr
				}
				return tt.halfBuilt, nil
			}))
			require.NoError(t, s.Connect(context.Background()))

			err := s.ConnectTo(context.Background(), tt.domain)

			require.Error(t, err)
			assert.Equal(t, KindConnection, KindOf(err))
			assert.False(t, s.IsConnected())
			assert.Empty(t, s.BindDN())
			assert.True(t, previous.closed, "previous handle must be closed")
			assert.Equal(t, "danskvinimport.local", s.Domain(), "default domain only changes on success")
			if tt.halfBuilt != nil {
				assert.True(t, tt.halfBuilt.closed, "half-built handle must be closed")
			}
		})
	}
}

func TestSessionConnectWithoutDomain(t *testing.T) {
	cfg := testConfig()
	cfg.Domain = ""
	s := NewSession(cfg, WithDialer(func(context.Context, *ldap.ConnectionConfig) (ldap.Client, error) {
		t.Fatal("dial must not be called")
		return nil, nil
	}))

	err := s.Connect(context.Background())
	assert.Equal(t, KindConnection, KindOf(err))
}

func TestSessionClose(t *testing.T) {
	client := new(MockClient)
	client.On("Ping", mock.Anything).Return(nil)
	client.On("Search", mock.Anything, mock.Anything).Return(&ldap.SearchResult{}, nil)
	client.On("Close").Return(nil).Once()

	s := NewSession(testConfig(), WithDialer(func(context.Context, *ldap.ConnectionConfig) (ldap.Client, error) {
		return client, nil
	}))
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
	require.NoError(t, s.Close())
	client.AssertExpectations(t)
}
