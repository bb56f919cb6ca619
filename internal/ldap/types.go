package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for a directory connection.
type ConnectionConfig struct {
	// Connection settings
	Domain   string        // DNS domain, used for SRV discovery and the bind path
	LDAPURLs []string      // Direct LDAP URLs (overrides SRV discovery)
	Timeout  time.Duration `default:"30s"` // Dial and per-request timeout

	// Authentication settings
	AuthMethod     AuthMethod // Secure bind mechanism
	Username       string     // Account used to bind (SAM, UPN, or DN for simple bind)
	Password       string     // Password for NTLM, Kerberos password or simple bind
	NTLMDomain     string     // NetBIOS domain for NTLM, defaults to Domain
	KerberosRealm  string     // Kerberos realm for GSSAPI authentication
	KerberosConfig string     `default:"/etc/krb5.conf"` // Path to krb5.conf
	KerberosKeytab string     // Path to Kerberos keytab file
	KerberosCCache string     // Path to Kerberos credential cache
	KerberosSPN    string     // Explicit service principal, defaults to ldap/<host>

	// TLS settings
	UseTLS             bool   `default:"true"` // Upgrade plain connections with StartTLS
	InsecureSkipVerify bool   // Skip certificate verification (testing only)
	TLSCACertFile      string // Path to a PEM CA bundle
	TLSConfig          *tls.Config

	// Retry settings
	MaxRetries     int           `default:"3"`
	InitialBackoff time.Duration `default:"500ms"`
	MaxBackoff     time.Duration `default:"30s"`
	BackoffFactor  float64       `default:"2.0"`
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	cfg := &ConnectionConfig{}
	// Only fails on malformed tags.
	_ = defaults.Set(cfg)
	return cfg
}

// Clone returns a shallow copy with its own URL slice.
func (c *ConnectionConfig) Clone() *ConnectionConfig {
	clone := *c
	clone.LDAPURLs = append([]string(nil), c.LDAPURLs...)
	return &clone
}

// Validate checks the settings that the dialer relies on.
func (c *ConnectionConfig) Validate() error {
	if c.Domain == "" && len(c.LDAPURLs) == 0 {
		return fmt.Errorf("either domain or LDAP URLs must be specified")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries cannot be negative")
	}
	if c.BackoffFactor <= 1.0 {
		return fmt.Errorf("BackoffFactor must be greater than 1.0")
	}
	if c.Username == "" && c.KerberosCCache == "" {
		return fmt.Errorf("username is required for %s authentication", c.AuthMethod)
	}
	return nil
}

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // "srv" or "config"
}

// Client provides the directory operations used by provisioning.
// A Client wraps exactly one authenticated connection.
type Client interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Add(ctx context.Context, req *AddRequest) error
	Modify(ctx context.Context, req *ModifyRequest) error

	// PasswordModify sets a password through the RFC 3062 extended operation.
	PasswordModify(ctx context.Context, dn, newPassword string) error

	// Ping reads the root DSE to check that the connection is alive.
	Ping(ctx context.Context) error
	Close() error
}

// DialFunc builds an authenticated Client from configuration.
type DialFunc func(ctx context.Context, cfg *ConnectionConfig) (Client, error)

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	SizeLimit  int
	TimeLimit  time.Duration
}

// SearchResult contains search results.
type SearchResult struct {
	Entries []*ldap.Entry
}

// AddRequest encapsulates LDAP add parameters.
type AddRequest struct {
	DN         string
	Attributes map[string][]string
}

// ModifyRequest encapsulates LDAP modify parameters.
type ModifyRequest struct {
	DN                string
	AddAttributes     map[string][]string
	ReplaceAttributes map[string][]string
	DeleteAttributes  []string
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// AuthMethod defines the bind mechanism.
type AuthMethod int

const (
	AuthMethodNegotiate AuthMethod = iota // Kerberos when a realm is configured, NTLM otherwise
	AuthMethodKerberos                    // GSSAPI/Kerberos
	AuthMethodNTLM                        // NTLM
	AuthMethodSimple                      // Simple bind, TLS only
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodNegotiate:
		return "negotiate"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodNTLM:
		return "ntlm"
	case AuthMethodSimple:
		return "simple"
	default:
		return "unknown"
	}
}

// ParseAuthMethod parses a configured method name. Empty means negotiate.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "negotiate", "secure":
		return AuthMethodNegotiate, nil
	case "kerberos", "gssapi":
		return AuthMethodKerberos, nil
	case "ntlm":
		return AuthMethodNTLM, nil
	case "simple":
		return AuthMethodSimple, nil
	default:
		return AuthMethodNegotiate, fmt.Errorf("unsupported authentication method: %q", s)
	}
}

// EffectiveAuthMethod resolves negotiate to a concrete mechanism.
func (c *ConnectionConfig) EffectiveAuthMethod() AuthMethod {
	if c.AuthMethod != AuthMethodNegotiate {
		return c.AuthMethod
	}
	if c.KerberosRealm != "" {
		return AuthMethodKerberos
	}
	return AuthMethodNTLM
}

// RetryableError indicates an error that can be retried.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool {
	return e.retryable
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}
