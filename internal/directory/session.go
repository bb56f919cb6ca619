// Package directory creates onboarding objects in Active Directory.
package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/ad-onboard/internal/ldap"
)

// Session is a connection to one domain, bound under its organizational
// unit. A Session is not safe for concurrent use.
type Session struct {
	config *ldap.ConnectionConfig
	dial   ldap.DialFunc

	domain string
	bindDN string
	client ldap.Client
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDialer replaces the function used to open connections.
func WithDialer(dial ldap.DialFunc) SessionOption {
	return func(s *Session) {
		s.dial = dial
	}
}

// NewSession creates a disconnected session. cfg.Domain becomes the default
// domain for Connect.
func NewSession(cfg *ldap.ConnectionConfig, opts ...SessionOption) *Session {
	if cfg == nil {
		cfg = ldap.DefaultConfig()
	}

	s := &Session{
		config: cfg.Clone(),
		dial:   ldap.Dial,
		domain: normalizeDomain(cfg.Domain),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsConnected reports whether the session holds a connection.
func (s *Session) IsConnected() bool {
	return s.client != nil
}

// Domain returns the current default domain.
func (s *Session) Domain() string {
	return s.domain
}

// BindDN returns the organizational unit the session is bound to, or ""
// when disconnected.
func (s *Session) BindDN() string {
	return s.bindDN
}

// ParentDN returns the container above the bound organizational unit, or ""
// when disconnected.
func (s *Session) ParentDN() string {
	if s.bindDN == "" {
		return ""
	}
	parent, err := ldap.ParentDN(s.bindDN)
	if err != nil {
		return ""
	}
	return parent
}

// Connect connects to the default domain.
func (s *Session) Connect(ctx context.Context) error {
	if s.domain == "" {
		s.disconnect(ctx)
		return newError(KindConnection, "connect", fmt.Errorf("no domain configured"))
	}
	return s.ConnectTo(ctx, s.domain)
}

// ConnectTo connects to domain, which becomes the default on success. The
// previous connection is replaced. Any failure leaves the session
// disconnected, including the previous connection.
func (s *Session) ConnectTo(ctx context.Context, domain string) error {
	domain = normalizeDomain(domain)
	start := time.Now()

	bindDN, err := ldap.BindPathForDomain(domain)
	if err != nil {
		s.disconnect(ctx)
		return newError(KindConnection, "connect", err)
	}

	cfg := s.config.Clone()
	cfg.Domain = domain

	tflog.SubsystemDebug(ctx, ldap.SubsystemDirectory, "Connecting session", map[string]any{
		"domain":  domain,
		"bind_dn": bindDN,
	})

	client, err := s.dial(ctx, cfg)
	if err != nil {
		s.disconnect(ctx)
		return newError(KindConnection, "connect", err)
	}

	if err := verifyBindPath(ctx, client, bindDN); err != nil {
		_ = client.Close()
		s.disconnect(ctx)
		return newError(KindConnection, "connect", err)
	}

	s.disconnect(ctx)
	s.client = client
	s.domain = domain
	s.bindDN = bindDN

	tflog.SubsystemInfo(ctx, ldap.SubsystemDirectory, "Session connected", map[string]any{
		"domain":      domain,
		"bind_dn":     bindDN,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// Close releases the connection. The session stays usable and may be
// connected again.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.bindDN = ""
	return err
}

func (s *Session) disconnect(ctx context.Context) {
	if s.client == nil {
		s.bindDN = ""
		return
	}
	if err := s.Close(); err != nil {
		tflog.SubsystemWarn(ctx, ldap.SubsystemDirectory, "Failed to close previous connection", map[string]any{
			"error": err.Error(),
		})
	}
}

// handle returns the live client or a KindNotConnected error for op.
func (s *Session) handle(op string) (ldap.Client, error) {
	if s.client == nil {
		return nil, newError(KindNotConnected, op, ErrNotConnected)
	}
	return s.client, nil
}

// verifyBindPath confirms that the connection answers and that bindDN
// exists and is readable.
func verifyBindPath(ctx context.Context, client ldap.Client, bindDN string) error {
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("directory did not answer root DSE query: %w", err)
	}

	_, err := client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     bindDN,
		Scope:      ldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"distinguishedName"},
		SizeLimit:  1,
	})
	if err != nil {
		return fmt.Errorf("bind path %s could not be verified: %w", bindDN, err)
	}
	return nil
}

func normalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.TrimSpace(domain), ".")
}
