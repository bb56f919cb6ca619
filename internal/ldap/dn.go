package ldap

import (
	"fmt"
	"strings"
)

// EscapeDNValue escapes an attribute value for use in a DN (RFC 4514).
//
// Examples:
//   - "Anna Hansen" → "Anna Hansen"
//   - "Hansen, Anna" → "Hansen\, Anna"
//   - " Anna " → "\ Anna\ "
//   - "#42" → "\#42"
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	last := len(value) - 1
	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';', '=':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '#':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case ' ':
			if i == 0 || i == last {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case 0:
			b.WriteString(`\00`)
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// BindPathForDomain converts a DNS domain into the organizational bind path.
// The first label becomes the OU and the remaining labels become DC
// components in order:
//
//	danskvinimport.local → OU=danskvinimport,DC=local
func BindPathForDomain(domain string) (string, error) {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return "", fmt.Errorf("domain cannot be empty")
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("domain %q must contain at least two labels", domain)
	}

	parts := make([]string, 0, len(labels))
	for i, label := range labels {
		if label == "" {
			return "", fmt.Errorf("domain %q contains an empty label", domain)
		}
		if strings.ContainsAny(label, ",=+<>#;\\\" ") {
			return "", fmt.Errorf("domain label %q contains invalid characters", label)
		}
		if i == 0 {
			parts = append(parts, "OU="+label)
			continue
		}
		parts = append(parts, "DC="+label)
	}

	return strings.Join(parts, ","), nil
}

// SplitDN splits a DN into its RDN components, honouring escaped commas.
func SplitDN(dn string) []string {
	if dn == "" {
		return nil
	}

	var (
		parts   []string
		current strings.Builder
		escaped bool
	)

	for _, r := range dn {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			current.WriteRune(r)
			escaped = true
		case r == ',':
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	parts = append(parts, strings.TrimSpace(current.String()))

	return parts
}

// ParentDN returns the DN of the container holding dn.
func ParentDN(dn string) (string, error) {
	parts := SplitDN(dn)
	if len(parts) < 2 {
		return "", fmt.Errorf("DN %q has no parent", dn)
	}
	return strings.Join(parts[1:], ","), nil
}

// ChildDN builds "<attr>=<escaped value>,<parent>".
func ChildDN(attr, value, parent string) string {
	return fmt.Sprintf("%s=%s,%s", attr, EscapeDNValue(value), parent)
}
