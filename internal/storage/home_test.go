package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/ad-onboard/internal/identity"
	"github.com/isometry/ad-onboard/internal/metrics"
)

type MockAccessController struct {
	mock.Mock
}

func (m *MockAccessController) ResolvePrincipal(ctx context.Context, account string) (Principal, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(Principal), args.Error(1)
}

func (m *MockAccessController) SecureDirectory(path string, p Principal) error {
	args := m.Called(path, p)
	return args.Error(0)
}

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
		MaxElapsed:      5 * time.Second,
		MaxAttempts:     maxAttempts,
	}
}

func testIdentity(t *testing.T) (*identity.Identity, string) {
	t.Helper()
	home := filepath.Join(t.TempDir(), "Bruger", "Anna")
	return identity.NewWithHome("Anna", "Hansen", "", identity.RoleMarketing, "pw", nil, "Z:", home), home
}

var anna = Principal{Account: `danskvinimport.local\Anna`, UID: 1104, GID: 513}

func TestProvisionHome_RetriesUntilAccountResolves(t *testing.T) {
	id, home := testIdentity(t)
	ac := new(MockAccessController)
	ac.On("ResolvePrincipal", mock.Anything, `danskvinimport.local\Anna`).Return(Principal{}, ErrIdentityNotMapped).Times(2)
	ac.On("ResolvePrincipal", mock.Anything, `danskvinimport.local\Anna`).Return(anna, nil).Once()
	ac.On("SecureDirectory", home, anna).Return(nil).Once()

	rec := metrics.New()
	h := NewHomeProvisioner(ac, WithRetryPolicy(fastPolicy(0)), WithMetrics(rec))

	require.NoError(t, h.ProvisionHome(context.Background(), id, "danskvinimport.local"))

	info, err := os.Stat(home)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	ac.AssertExpectations(t)
	ac.AssertNumberOfCalls(t, "ResolvePrincipal", 3)
	assert.InDelta(t, 2, testutil.ToFloat64(rec.OwnershipAttempts.WithLabelValues(metrics.OwnershipNotMapped)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.OwnershipAttempts.WithLabelValues(metrics.OwnershipApplied)), 0)
}

func TestProvisionHome_PermissionErrorIsNotRetried(t *testing.T) {
	id, home := testIdentity(t)
	denied := errors.New("access is denied")

	ac := new(MockAccessController)
	ac.On("ResolvePrincipal", mock.Anything, mock.Anything).Return(anna, nil)
	ac.On("SecureDirectory", home, anna).Return(denied)

	h := NewHomeProvisioner(ac, WithRetryPolicy(fastPolicy(0)))
	err := h.ProvisionHome(context.Background(), id, "danskvinimport.local")

	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.NotErrorIs(t, err, ErrOwnershipTimeout)
	ac.AssertNumberOfCalls(t, "ResolvePrincipal", 1)
	ac.AssertNumberOfCalls(t, "SecureDirectory", 1)
}

func TestProvisionHome_ResolveFailureIsNotRetried(t *testing.T) {
	id, _ := testIdentity(t)
	nss := errors.New("nss backend unavailable")

	ac := new(MockAccessController)
	ac.On("ResolvePrincipal", mock.Anything, mock.Anything).Return(Principal{}, nss)

	err := NewHomeProvisioner(ac, WithRetryPolicy(fastPolicy(0))).
		ProvisionHome(context.Background(), id, "danskvinimport.local")

	assert.ErrorIs(t, err, nss)
	ac.AssertNumberOfCalls(t, "ResolvePrincipal", 1)
	ac.AssertNotCalled(t, "SecureDirectory", mock.Anything, mock.Anything)
}

func TestProvisionHome_PolicyExhausted(t *testing.T) {
	id, _ := testIdentity(t)
	ac := new(MockAccessController)
	ac.On("ResolvePrincipal", mock.Anything, mock.Anything).Return(Principal{}, ErrIdentityNotMapped)

	err := NewHomeProvisioner(ac, WithRetryPolicy(fastPolicy(3))).
		ProvisionHome(context.Background(), id, "danskvinimport.local")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOwnershipTimeout)
	assert.ErrorIs(t, err, ErrIdentityNotMapped)
	ac.AssertNumberOfCalls(t, "ResolvePrincipal", 3)
}

func TestProvisionHome_ContextCancelled(t *testing.T) {
	id, _ := testIdentity(t)
	ac := new(MockAccessController)
	ac.On("ResolvePrincipal", mock.Anything, mock.Anything).Return(Principal{}, ErrIdentityNotMapped)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewHomeProvisioner(ac, WithRetryPolicy(fastPolicy(0))).ProvisionHome(ctx, id, "danskvinimport.local")

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrOwnershipTimeout)
}

func TestProvisionHome_ExistingDirectory(t *testing.T) {
	id, home := testIdentity(t)
	require.NoError(t, os.MkdirAll(home, 0o755))

	ac := new(MockAccessController)
	ac.On("ResolvePrincipal", mock.Anything, mock.Anything).Return(anna, nil)
	ac.On("SecureDirectory", home, anna).Return(nil)

	assert.NoError(t, NewHomeProvisioner(ac).ProvisionHome(context.Background(), id, "danskvinimport.local"))
}

func TestProvisionHome_PathIsFile(t *testing.T) {
	id, home := testIdentity(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(home), 0o755))
	require.NoError(t, os.WriteFile(home, []byte("not a directory"), 0o600))

	ac := new(MockAccessController)
	err := NewHomeProvisioner(ac).ProvisionHome(context.Background(), id, "danskvinimport.local")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create home directory")
	ac.AssertNotCalled(t, "ResolvePrincipal", mock.Anything, mock.Anything)
}

func TestProvisionHome_InvalidInput(t *testing.T) {
	h := NewHomeProvisioner(new(MockAccessController))

	assert.Error(t, h.ProvisionHome(context.Background(), nil, "danskvinimport.local"))

	noHome := identity.NewWithHome("Anna", "Hansen", "", identity.RoleMarketing, "pw", nil, "", "")
	assert.Error(t, h.ProvisionHome(context.Background(), noHome, "danskvinimport.local"))
}

func TestProvisionHome_RejectsNonLocalPaths(t *testing.T) {
	tests := []struct {
		name    string
		home    string
		windows bool
	}{
		{name: "relative", home: filepath.Join("Bruger", "Anna")},
		{name: "unc share outside windows", home: `\\TEAMJOHN\Bruger\Anna`, windows: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.windows && runtime.GOOS == "windows" {
				t.Skip("UNC paths are absolute on windows")
			}
			t.Chdir(t.TempDir())

			id := identity.NewWithHome("Anna", "Hansen", "", identity.RoleMarketing, "pw", nil, "Z:", tt.home)
			ac := new(MockAccessController)

			err := NewHomeProvisioner(ac).ProvisionHome(context.Background(), id, "danskvinimport.local")

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidHomePath)
			ac.AssertNotCalled(t, "ResolvePrincipal", mock.Anything, mock.Anything)
			ac.AssertNotCalled(t, "SecureDirectory", mock.Anything, mock.Anything)

			entries, err := os.ReadDir(".")
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing may be created in the working directory")
		})
	}
}

func TestProvisionHome_DefaultLayoutOutsideWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the default share is reachable on windows")
	}
	t.Chdir(t.TempDir())

	id := identity.New("Anna", "Hansen", "", identity.RoleMarketing, "pw", nil)
	err := NewHomeProvisioner(new(MockAccessController)).ProvisionHome(context.Background(), id, "danskvinimport.local")

	assert.ErrorIs(t, err, ErrInvalidHomePath)
}

func TestRetryPolicyWithoutCapsIsBounded(t *testing.T) {
	b, ok := RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Second, Multiplier: 2}.backOff().(*backoff.ExponentialBackOff)
	require.True(t, ok)
	assert.Equal(t, DefaultRetryPolicy().MaxElapsed, b.MaxElapsedTime)

	b, ok = fastPolicy(0).backOff().(*backoff.ExponentialBackOff)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, b.MaxElapsedTime)
}

func TestAccountName(t *testing.T) {
	assert.Equal(t, `danskvinimport.local\Anna`, AccountName("danskvinimport.local", "Anna"))
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 500*time.Millisecond, p.InitialInterval)
	assert.Equal(t, 10*time.Second, p.MaxInterval)
	assert.InDelta(t, 2.0, p.Multiplier, 0)
	assert.Equal(t, 2*time.Minute, p.MaxElapsed)
	assert.Zero(t, p.MaxAttempts)
}
