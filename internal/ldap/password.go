package ldap

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// EncodeUnicodePwd encodes a password for the Active Directory unicodePwd
// attribute: the value wrapped in double quotes, as UTF-16LE without a BOM.
// AD only accepts writes to unicodePwd over an encrypted connection.
func EncodeUnicodePwd(password string) (string, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.String(`"` + password + `"`)
	if err != nil {
		return "", fmt.Errorf("failed to encode password: %w", err)
	}
	return encoded, nil
}
