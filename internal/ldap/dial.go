package ldap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Dialer establishes authenticated directory connections.
type Dialer struct {
	// Resolver is used for SRV discovery. Nil means the system resolver.
	Resolver SRVResolver
}

// Dial connects using the zero Dialer.
func Dial(ctx context.Context, cfg *ConnectionConfig) (Client, error) {
	var d Dialer
	return d.Dial(ctx, cfg)
}

// Dial resolves servers for cfg, connects to the first one that accepts a
// secure bind and returns a Client wrapping that connection. Each pass over
// the server list is retried with exponential backoff.
func (d *Dialer) Dial(ctx context.Context, cfg *ConnectionConfig) (Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection configuration: %w", err)
	}

	servers, err := d.resolveServers(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Connecting to directory", map[string]any{
		"domain":       cfg.Domain,
		"server_count": len(servers),
		"auth_method":  cfg.EffectiveAuthMethod().String(),
		"use_tls":      cfg.UseTLS,
	})

	var conn *ldap.Conn
	var server *ServerInfo
	attempt := 0

	err = backoff.RetryNotify(func() error {
		attempt++
		var lastErr error
		for _, s := range servers {
			c, err := connectServer(ctx, cfg, s)
			if err != nil {
				lastErr = err
				LogConnectionEvent(ctx, "connection_failed", map[string]any{
					"server":  ServerInfoToURL(s),
					"attempt": attempt,
					"error":   err.Error(),
				})
				if IsAuthenticationError(err) {
					return backoff.Permanent(err)
				}
				continue
			}
			conn, server = c, s
			return nil
		}
		return lastErr
	}, newBackOff(ctx, cfg), func(err error, wait time.Duration) {
		tflog.SubsystemDebug(ctx, SubsystemLDAP, "Retrying connection", map[string]any{
			"attempt":    attempt,
			"max_retry":  cfg.MaxRetries,
			"backoff_ms": wait.Milliseconds(),
			"last_error": err.Error(),
		})
	})
	if err != nil {
		if IsAuthenticationError(err) {
			return nil, err
		}
		return nil, NewConnectionError("failed to connect to any directory server", true, err)
	}

	LogConnectionEvent(ctx, "connection_established", map[string]any{
		"server":      ServerInfoToURL(server),
		"auth_method": cfg.EffectiveAuthMethod().String(),
		"attempts":    attempt,
	})

	return newClient(conn, cfg, server), nil
}

// resolveServers returns configured URLs or SRV-discovered servers.
func (d *Dialer) resolveServers(ctx context.Context, cfg *ConnectionConfig) ([]*ServerInfo, error) {
	if len(cfg.LDAPURLs) > 0 {
		servers := make([]*ServerInfo, 0, len(cfg.LDAPURLs))
		for _, u := range cfg.LDAPURLs {
			server, err := ParseLDAPURL(u)
			if err != nil {
				return nil, fmt.Errorf("invalid LDAP URL %s: %w", u, err)
			}
			servers = append(servers, server)
		}
		return servers, nil
	}

	if cfg.Domain == "" {
		return nil, errors.New("either domain or LDAP URLs must be specified")
	}

	discoveryCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	servers, err := NewSRVDiscovery(d.Resolver).DiscoverServers(discoveryCtx, cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("SRV discovery failed: %w", err)
	}
	if len(servers) == 0 {
		return nil, errors.New("no servers discovered")
	}
	return servers, nil
}

// connectServer dials one server, secures the channel and binds.
func connectServer(ctx context.Context, cfg *ConnectionConfig, server *ServerInfo) (*ldap.Conn, error) {
	url := ServerInfoToURL(server)

	tlsConfig, err := buildTLSConfig(cfg, server.Host)
	if err != nil {
		return nil, err
	}

	netDialer := &net.Dialer{Timeout: cfg.Timeout}
	secured := false

	var conn *ldap.Conn
	if server.UseTLS {
		conn, err = ldap.DialURL(url, ldap.DialWithDialer(netDialer), ldap.DialWithTLSConfig(tlsConfig))
		secured = err == nil
	} else {
		conn, err = ldap.DialURL(url, ldap.DialWithDialer(netDialer))
		if err == nil && cfg.UseTLS {
			if err = conn.StartTLS(tlsConfig); err != nil {
				conn.Close()
			}
			secured = err == nil
		}
	}
	if err != nil {
		return nil, NewLDAPError("connect", fmt.Errorf("failed to connect to %s: %w", url, err))
	}

	conn.SetTimeout(cfg.Timeout)

	if err := authenticate(ctx, conn, cfg, server, secured); err != nil {
		conn.Close()
		return nil, NewLDAPError("bind", err)
	}

	return conn, nil
}

// authenticate binds conn with the effective mechanism.
func authenticate(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, server *ServerInfo, secured bool) error {
	method := cfg.EffectiveAuthMethod()
	start := time.Now()

	var err error
	switch method {
	case AuthMethodKerberos:
		err = performKerberosAuth(ctx, conn, cfg, server)
	case AuthMethodNTLM:
		domain := cfg.NTLMDomain
		if domain == "" {
			domain = cfg.Domain
		}
		err = conn.NTLMBind(domain, cfg.Username, cfg.Password)
	case AuthMethodSimple:
		if !secured {
			return ldap.NewError(ldap.LDAPResultConfidentialityRequired,
				errors.New("simple bind requires a TLS-protected connection"))
		}
		err = conn.Bind(cfg.Username, cfg.Password)
	default:
		return fmt.Errorf("unsupported authentication method: %s", method)
	}

	if err != nil {
		LogConnectionEvent(ctx, "authentication_failed", map[string]any{
			"auth_method": method.String(),
			"username":    cfg.Username,
			"error":       err.Error(),
		})
		return err
	}

	LogConnectionEvent(ctx, "authentication_success", map[string]any{
		"auth_method": method.String(),
		"username":    cfg.Username,
		"secured":     secured,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// buildTLSConfig returns the TLS settings for host.
func buildTLSConfig(cfg *ConnectionConfig, host string) (*tls.Config, error) {
	var tlsConfig *tls.Config
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = host
	}
	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.TLSCACertFile != "" {
		pem, err := os.ReadFile(cfg.TLSCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.TLSCACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// newBackOff builds the retry schedule from cfg.
func newBackOff(ctx context.Context, cfg *ConnectionConfig) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.Multiplier = cfg.BackoffFactor
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(cfg.MaxRetries, 0))), ctx)
}
