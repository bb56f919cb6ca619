//go:build linux

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// systemAccess resolves accounts through NSS, so DOMAIN\user names need
// winbind or sssd configured on the host.
type systemAccess struct{}

// NewAccessController returns the AccessController for this platform.
func NewAccessController() AccessController {
	return systemAccess{}
}

func (systemAccess) ResolvePrincipal(_ context.Context, account string) (Principal, error) {
	return lookupUnixPrincipal(account)
}

func (systemAccess) SecureDirectory(path string, p Principal) error {
	if err := os.Lchown(path, p.UID, p.GID); err != nil {
		return fmt.Errorf("failed to set owner of %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o700); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", path, err)
	}

	err := unix.Setxattr(path, posixACLXattr, encodeOwnerOnlyACL(uint32(p.UID)), 0)
	if err != nil && !errors.Is(err, unix.ENOTSUP) {
		return fmt.Errorf("failed to set ACL on %s: %w", path, err)
	}
	return nil
}
