package storage

import (
	"context"
	"errors"
)

var (
	// ErrIdentityNotMapped means the account is not yet visible to the
	// file server, typically because directory replication is pending.
	ErrIdentityNotMapped = errors.New("identity not mapped")

	// ErrOwnershipTimeout means the retry policy ran out while the account
	// was still unresolvable.
	ErrOwnershipTimeout = errors.New("timed out waiting for account to resolve")

	// ErrInvalidHomePath means the home directory is not an absolute path
	// on this platform, e.g. a UNC share path outside Windows.
	ErrInvalidHomePath = errors.New("home directory is not an absolute local path")
)

// Principal is a resolved security principal.
type Principal struct {
	Account string

	// SID is set on Windows.
	SID string

	// UID and GID are set on unix.
	UID int
	GID int
}

// AccessController resolves accounts and applies ownership and ACLs.
type AccessController interface {
	// ResolvePrincipal returns ErrIdentityNotMapped (possibly wrapped) when
	// the account is not known yet.
	ResolvePrincipal(ctx context.Context, account string) (Principal, error)

	// SecureDirectory makes p the owner of path and grants it full control.
	SecureDirectory(path string, p Principal) error
}

// AccountName returns the down-level logon name DOMAIN\user.
func AccountName(domain, username string) string {
	return domain + `\` + username
}
