package ldap

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
)

// DecodeSID converts a binary objectSid to its S-1-5-21-... form.
func DecodeSID(binarySID []byte) (string, error) {
	// Revision, sub-authority count and the 6-byte identifier authority.
	if len(binarySID) < 8 {
		return "", fmt.Errorf("binary SID too short: %d bytes", len(binarySID))
	}
	if want := 8 + 4*int(binarySID[1]); len(binarySID) < want {
		return "", fmt.Errorf("binary SID truncated: have %d bytes, want %d", len(binarySID), want)
	}

	sid := objectsid.Decode(binarySID)
	return sid.String(), nil
}

// ExtractSID reads objectSid from an entry. Binary values come from a real
// directory; string values are accepted for fixtures.
func ExtractSID(entry *ldap.Entry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("LDAP entry cannot be nil")
	}

	if raw := entry.GetRawAttributeValue("objectSid"); len(raw) > 0 {
		if s := string(raw); strings.HasPrefix(s, "S-") {
			return s, nil
		}
		return DecodeSID(raw)
	}

	return "", fmt.Errorf("objectSid attribute not found in entry")
}
