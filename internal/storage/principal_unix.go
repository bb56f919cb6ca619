//go:build !windows

package storage

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
)

// lookupUnixPrincipal resolves account through NSS.
func lookupUnixPrincipal(account string) (Principal, error) {
	u, err := user.Lookup(account)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return Principal{}, fmt.Errorf("%w: %s", ErrIdentityNotMapped, account)
		}
		return Principal{}, fmt.Errorf("failed to look up %s: %w", account, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Principal{}, fmt.Errorf("unexpected uid %q for %s", u.Uid, account)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Principal{}, fmt.Errorf("unexpected gid %q for %s", u.Gid, account)
	}

	return Principal{Account: account, UID: uid, GID: gid}, nil
}
