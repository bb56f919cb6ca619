package identity

import "fmt"

const redacted = "[REDACTED]"

// Secret holds a credential that must never be printed or logged.
type Secret struct {
	value string
}

// NewSecret wraps value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Reveal returns the plaintext.
func (s Secret) Reveal() string {
	return s.value
}

// IsEmpty reports whether the secret holds no value.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return redacted
}

// Format redacts the value for every verb, including %v, %+v and %#v.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
