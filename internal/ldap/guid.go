package ldap

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// GUIDBytesLength is the size of a binary objectGUID.
const GUIDBytesLength = 16

// DecodeGUID converts a binary objectGUID to its canonical string form.
// Active Directory stores the first three groups little-endian and the
// remaining eight bytes big-endian.
func DecodeGUID(raw []byte) (string, error) {
	if len(raw) != GUIDBytesLength {
		return "", fmt.Errorf("invalid GUID length: expected %d bytes, got %d", GUIDBytesLength, len(raw))
	}

	b := make([]byte, GUIDBytesLength)
	copy(b, raw)
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]

	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", fmt.Errorf("failed to decode GUID: %w", err)
	}
	return id.String(), nil
}

// ExtractGUID reads objectGUID from an entry.
func ExtractGUID(entry *ldap.Entry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("LDAP entry cannot be nil")
	}

	raw := entry.GetRawAttributeValue("objectGUID")
	if len(raw) == 0 {
		return "", fmt.Errorf("objectGUID attribute not found in entry")
	}
	return DecodeGUID(raw)
}
