package ldap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("ldap client is closed")

// client implements the Client interface over one bound connection.
type client struct {
	conn   *ldap.Conn
	config *ConnectionConfig
	server *ServerInfo

	mu     sync.RWMutex
	closed bool
}

func newClient(conn *ldap.Conn, config *ConnectionConfig, server *ServerInfo) *client {
	return &client{
		conn:   conn,
		config: config,
		server: server,
	}
}

// Close closes the underlying connection. Further calls are no-ops.
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *client) activeConn() (*ldap.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	return c.conn, nil
}

// Search performs an LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	searchFields := map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
	}

	conn, err := c.activeConn()
	if err != nil {
		return nil, err
	}

	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		ldap.NeverDerefAliases,
		req.SizeLimit,
		int(req.TimeLimit.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		nil,
	)

	var result *ldap.SearchResult
	err = c.withRetry(ctx, "search", func() error {
		var searchErr error
		result, searchErr = conn.Search(ldapReq)
		return searchErr
	})
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			tflog.SubsystemDebug(ctx, SubsystemLDAP, "Search base does not exist", searchFields)
		} else {
			LogLDAPError(ctx, SubsystemLDAP, "search", err, searchFields)
		}
		return nil, WrapError("search", err)
	}

	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Search completed", map[string]any{
		"base_dn":       req.BaseDN,
		"entries_found": len(result.Entries),
	})

	return &SearchResult{Entries: result.Entries}, nil
}

// Add creates a new LDAP entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil {
		return fmt.Errorf("add request cannot be nil")
	}
	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	conn, err := c.activeConn()
	if err != nil {
		return err
	}

	ldapReq := ldap.NewAddRequest(req.DN, nil)
	for attr, values := range req.Attributes {
		ldapReq.Attribute(attr, values)
	}

	err = c.withRetry(ctx, "add", committedAddIsSuccess(ctx, req.DN, func() error {
		return conn.Add(ldapReq)
	}))
	if err != nil {
		LogLDAPError(ctx, SubsystemLDAP, "add", err, map[string]any{"dn": req.DN})
		return NewLDAPError("add", err).WithDN(req.DN)
	}

	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Entry added", map[string]any{"dn": req.DN})
	return nil
}

// Modify modifies an existing LDAP entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}
	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	conn, err := c.activeConn()
	if err != nil {
		return err
	}

	ldapReq := ldap.NewModifyRequest(req.DN, nil)
	for attr, values := range req.AddAttributes {
		ldapReq.Add(attr, values)
	}
	for attr, values := range req.ReplaceAttributes {
		ldapReq.Replace(attr, values)
	}
	for _, attr := range req.DeleteAttributes {
		ldapReq.Delete(attr, []string{})
	}

	err = c.withRetry(ctx, "modify", func() error {
		return conn.Modify(ldapReq)
	})
	if err != nil {
		LogLDAPError(ctx, SubsystemLDAP, "modify", err, map[string]any{"dn": req.DN})
		return NewLDAPError("modify", err).WithDN(req.DN)
	}

	return nil
}

// PasswordModify sets the password of dn through the password modify
// extended operation.
func (c *client) PasswordModify(ctx context.Context, dn, newPassword string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	conn, err := c.activeConn()
	if err != nil {
		return err
	}

	err = c.withRetry(ctx, "password_modify", func() error {
		_, pwErr := conn.PasswordModify(ldap.NewPasswordModifyRequest(dn, "", newPassword))
		return pwErr
	})
	if err != nil {
		LogLDAPError(ctx, SubsystemLDAP, "password_modify", err, map[string]any{"dn": dn})
		return NewLDAPError("password_modify", err).WithDN(dn)
	}
	return nil
}

// Ping reads the root DSE to test connectivity.
func (c *client) Ping(ctx context.Context) error {
	conn, err := c.activeConn()
	if err != nil {
		return err
	}

	searchReq := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false,
		"(objectClass=*)",
		[]string{"defaultNamingContext"},
		nil,
	)

	if _, err := conn.Search(searchReq); err != nil {
		tflog.SubsystemDebug(ctx, SubsystemLDAP, "Ping failed", map[string]any{
			"server": ServerInfoToURL(c.server),
			"error":  err.Error(),
		})
		return WrapError("ping", err)
	}
	return nil
}

// committedAddIsSuccess wraps an add so that entryAlreadyExists on a retry
// counts as success: the earlier attempt reached the server before its
// response was lost. On the first attempt the conflict is returned as is.
func committedAddIsSuccess(ctx context.Context, dn string, add func() error) func() error {
	attempt := 0
	return func() error {
		attempt++
		err := add()
		if attempt > 1 && ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
			tflog.SubsystemWarn(ctx, SubsystemLDAP, "Entry exists after retried add, assuming earlier attempt committed", map[string]any{
				"dn":      dn,
				"attempt": attempt,
			})
			return nil
		}
		return err
	}
}

// withRetry runs operation, retrying transient failures with exponential
// backoff bounded by MaxRetries.
func (c *client) withRetry(ctx context.Context, name string, operation func() error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := operation()
		if err != nil && !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, newBackOff(ctx, c.config), func(err error, wait time.Duration) {
		tflog.SubsystemDebug(ctx, SubsystemLDAP, "Retrying operation", map[string]any{
			"operation":  name,
			"attempt":    attempt,
			"max_retry":  c.config.MaxRetries,
			"backoff_ms": wait.Milliseconds(),
			"last_error": err.Error(),
		})
	})

	if err != nil && attempt > 1 && IsRetryableError(err) {
		tflog.SubsystemError(ctx, SubsystemLDAP, "Operation failed after all retries exhausted", map[string]any{
			"operation":      name,
			"total_attempts": attempt,
			"final_error":    err.Error(),
		})
	}
	return err
}
