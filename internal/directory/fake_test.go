package directory

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"

	"github.com/isometry/ad-onboard/internal/identity"
	"github.com/isometry/ad-onboard/internal/ldap"
)

// MockClient is a mock.Mock implementation of ldap.Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*ldap.SearchResult)
	return res, args.Error(1)
}

func (m *MockClient) Add(ctx context.Context, req *ldap.AddRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockClient) Modify(ctx context.Context, req *ldap.ModifyRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockClient) PasswordModify(ctx context.Context, dn, newPassword string) error {
	return m.Called(ctx, dn, newPassword).Error(0)
}

func (m *MockClient) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockClient) Close() error {
	return m.Called().Error(0)
}

// MockHomeProvisioner is a mock.Mock implementation of HomeProvisioner.
type MockHomeProvisioner struct {
	mock.Mock
}

func (m *MockHomeProvisioner) ProvisionHome(ctx context.Context, id *identity.Identity, domain string) error {
	return m.Called(ctx, id, domain).Error(0)
}

// fakeDirectory is an in-memory ldap.Client that keeps entries between
// calls, so sequences like "add twice" behave like a real server.
type fakeDirectory struct {
	mu      sync.Mutex
	entries map[string]map[string][]string
	closed  bool

	// failModify makes Modify fail for the given attribute.
	failModify map[string]error

	passwords map[string]string

	// pingErr is returned by Ping.
	pingErr error
}

func newFakeDirectory(dns ...string) *fakeDirectory {
	f := &fakeDirectory{
		entries:    make(map[string]map[string][]string),
		failModify: make(map[string]error),
		passwords:  make(map[string]string),
	}
	for _, dn := range dns {
		f.entries[key(dn)] = map[string][]string{"distinguishedName": {dn}}
	}
	return f
}

func key(dn string) string {
	return strings.ToLower(dn)
}

func (f *fakeDirectory) addGroup(name, parent string) string {
	dn := ldap.ChildDN("CN", name, parent)
	f.entries[key(dn)] = map[string][]string{
		"distinguishedName": {dn},
		"objectClass":       {"top", "group"},
		"cn":                {name},
	}
	return dn
}

func (f *fakeDirectory) entry(dn string) map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[key(dn)]
}

func ldapErr(op string, code uint16, msg string) error {
	return ldap.NewLDAPError(op, goldap.NewError(code, errors.New(msg)))
}

func (f *fakeDirectory) Add(_ context.Context, req *ldap.AddRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.entries[key(req.DN)]; ok {
		return ldapErr("add", goldap.LDAPResultEntryAlreadyExists, "entry already exists")
	}

	attrs := map[string][]string{"distinguishedName": {req.DN}}
	for k, v := range req.Attributes {
		attrs[k] = append([]string(nil), v...)
	}
	if contains(attrs["objectClass"], "user") {
		attrs["objectGUID"] = []string{string([]byte{
			0xff, 0x19, 0x96, 0x6f, 0x86, 0x8b, 0x11, 0xd0,
			0xb4, 0x2d, 0x00, 0xc0, 0x4f, 0xc9, 0x64, 0xff,
		})}
		attrs["objectSid"] = []string{"S-1-5-21-1-2-3-1104"}
	}
	f.entries[key(req.DN)] = attrs
	return nil
}

func (f *fakeDirectory) Modify(_ context.Context, req *ldap.ModifyRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[key(req.DN)]
	if !ok {
		return ldapErr("modify", goldap.LDAPResultNoSuchObject, "no such object")
	}

	for attr := range req.ReplaceAttributes {
		if err := f.failModify[attr]; err != nil {
			return err
		}
	}
	for attr := range req.AddAttributes {
		if err := f.failModify[attr]; err != nil {
			return err
		}
	}

	for attr, values := range req.AddAttributes {
		for _, v := range values {
			if contains(entry[attr], v) {
				return ldapErr("modify", goldap.LDAPResultAttributeOrValueExists, "value exists")
			}
			entry[attr] = append(entry[attr], v)
		}
	}
	for attr, values := range req.ReplaceAttributes {
		entry[attr] = append([]string(nil), values...)
	}
	for _, attr := range req.DeleteAttributes {
		delete(entry, attr)
	}
	return nil
}

var cnFilter = regexp.MustCompile(`\(cn=([^)]*)\)`)

func (f *fakeDirectory) Search(_ context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Scope {
	case ldap.ScopeBaseObject:
		entry, ok := f.entries[key(req.BaseDN)]
		if !ok {
			return nil, ldapErr("search", goldap.LDAPResultNoSuchObject, "no such object")
		}
		return &ldap.SearchResult{Entries: []*goldap.Entry{goldap.NewEntry(req.BaseDN, entry)}}, nil

	case ldap.ScopeSingleLevel:
		if _, ok := f.entries[key(req.BaseDN)]; !ok {
			return nil, ldapErr("search", goldap.LDAPResultNoSuchObject, "no such object")
		}
		var cn string
		if m := cnFilter.FindStringSubmatch(req.Filter); m != nil {
			cn = m[1]
		}
		result := &ldap.SearchResult{}
		for _, entry := range f.entries {
			dn := entry["distinguishedName"][0]
			parent, err := ldap.ParentDN(dn)
			if err != nil || key(parent) != key(req.BaseDN) {
				continue
			}
			if !contains(entry["objectClass"], "group") || !strings.EqualFold(first(entry["cn"]), cn) {
				continue
			}
			result.Entries = append(result.Entries, goldap.NewEntry(dn, entry))
		}
		return result, nil
	}

	return &ldap.SearchResult{}, nil
}

func (f *fakeDirectory) PasswordModify(_ context.Context, dn, newPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[key(dn)]; !ok {
		return ldapErr("password_modify", goldap.LDAPResultNoSuchObject, "no such object")
	}
	f.passwords[key(dn)] = newPassword
	return nil
}

func (f *fakeDirectory) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeDirectory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// connectedSession returns a session for danskvinimport.local backed by dir.
func connectedSession(dir ldap.Client) *Session {
	cfg := ldap.DefaultConfig()
	cfg.Domain = "danskvinimport.local"
	cfg.Username = "svc-onboard"

	s := NewSession(cfg, WithDialer(func(context.Context, *ldap.ConnectionConfig) (ldap.Client, error) {
		return dir, nil
	}))
	if err := s.Connect(context.Background()); err != nil {
		panic(err)
	}
	return s
}
