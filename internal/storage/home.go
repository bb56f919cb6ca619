// Package storage creates home folders and hands them to their owners.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/ad-onboard/internal/identity"
	"github.com/isometry/ad-onboard/internal/ldap"
	"github.com/isometry/ad-onboard/internal/metrics"
)

// HomeProvisioner creates a user's home folder and secures it.
type HomeProvisioner struct {
	access  AccessController
	policy  RetryPolicy
	metrics *metrics.Recorder
}

// Option configures a HomeProvisioner.
type Option func(*HomeProvisioner)

// WithRetryPolicy sets the ownership retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(h *HomeProvisioner) {
		h.policy = p
	}
}

// WithMetrics records ownership attempts on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(h *HomeProvisioner) {
		h.metrics = r
	}
}

// NewHomeProvisioner returns a provisioner using ac for ownership.
func NewHomeProvisioner(ac AccessController, opts ...Option) *HomeProvisioner {
	h := &HomeProvisioner{
		access: ac,
		policy: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProvisionHome creates id's home directory and makes DOMAIN\user its
// owner with full control. A freshly created account may not resolve yet,
// so resolution is retried under the policy; any other failure is returned
// immediately.
func (h *HomeProvisioner) ProvisionHome(ctx context.Context, id *identity.Identity, domain string) error {
	if id == nil {
		return fmt.Errorf("identity cannot be nil")
	}

	path := id.HomeDirectory()
	if path == "" {
		return fmt.Errorf("home directory is not set for %s", id.Username())
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %s", ErrInvalidHomePath, path)
	}

	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create home directory %s: %w", path, err)
	}

	account := AccountName(domain, id.Username())
	fields := map[string]any{
		"path":    path,
		"account": account,
	}
	tflog.SubsystemDebug(ctx, ldap.SubsystemStorage, "Home directory created", fields)

	start := time.Now()
	attempt := 0

	operation := func() error {
		attempt++
		err := h.secure(ctx, path, account)
		switch {
		case err == nil:
			h.metrics.IncOwnershipAttempt(metrics.OwnershipApplied)
			return nil
		case errors.Is(err, ErrIdentityNotMapped):
			h.metrics.IncOwnershipAttempt(metrics.OwnershipNotMapped)
			return err
		default:
			h.metrics.IncOwnershipAttempt(metrics.OwnershipFailed)
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		tflog.SubsystemDebug(ctx, ldap.SubsystemStorage, "Account not resolvable yet, retrying", map[string]any{
			"account":    account,
			"attempt":    attempt,
			"backoff_ms": wait.Milliseconds(),
		})
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(h.policy.backOff(), ctx), notify)
	if err == nil {
		tflog.SubsystemInfo(ctx, ldap.SubsystemStorage, "Home directory secured", map[string]any{
			"path":        path,
			"account":     account,
			"attempts":    attempt,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}

	if errors.Is(err, ErrIdentityNotMapped) {
		tflog.SubsystemError(ctx, ldap.SubsystemStorage, "Account never became resolvable", map[string]any{
			"account":     account,
			"attempts":    attempt,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrOwnershipTimeout, account, attempt, err)
	}

	return fmt.Errorf("failed to secure %s for %s: %w", path, account, err)
}

func (h *HomeProvisioner) secure(ctx context.Context, path, account string) error {
	p, err := h.access.ResolvePrincipal(ctx, account)
	if err != nil {
		return err
	}
	return h.access.SecureDirectory(path, p)
}
