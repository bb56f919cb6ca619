//go:build !linux && !windows

package storage

import (
	"context"
	"fmt"
	"os"
)

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
	return nil
}
