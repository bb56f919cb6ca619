//go:build windows

package storage

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

type systemAccess struct{}

// NewAccessController returns the AccessController for this platform.
func NewAccessController() AccessController {
	return systemAccess{}
}

func (systemAccess) ResolvePrincipal(_ context.Context, account string) (Principal, error) {
	sid, _, _, err := windows.LookupSID("", account)
	if err != nil {
		if errors.Is(err, windows.ERROR_NONE_MAPPED) {
			return Principal{}, fmt.Errorf("%w: %s", ErrIdentityNotMapped, account)
		}
		return Principal{}, fmt.Errorf("failed to look up %s: %w", account, err)
	}
	return Principal{Account: account, SID: sid.String()}, nil
}

// SecureDirectory sets p as owner and merges an inheritable full-control
// grant into the existing DACL.
func (systemAccess) SecureDirectory(path string, p Principal) error {
	sid, err := windows.StringToSid(p.SID)
	if err != nil {
		return fmt.Errorf("invalid SID %q for %s: %w", p.SID, p.Account, err)
	}

	sd, err := windows.GetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, windows.DACL_SECURITY_INFORMATION)
	if err != nil {
		return fmt.Errorf("failed to read security descriptor of %s: %w", path, err)
	}
	current, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("failed to read DACL of %s: %w", path, err)
	}

	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.GRANT_ACCESS,
		Inheritance:       windows.SUB_CONTAINERS_AND_OBJECTS_INHERIT,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(sid),
		},
	}}, current)
	if err != nil {
		return fmt.Errorf("failed to build ACL for %s: %w", path, err)
	}

	err = windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.OWNER_SECURITY_INFORMATION|windows.DACL_SECURITY_INFORMATION,
		sid, nil, acl, nil)
	if err != nil {
		return fmt.Errorf("failed to apply owner and ACL to %s: %w", path, err)
	}
	return nil
}
