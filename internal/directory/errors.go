package directory

import (
	"errors"
	"fmt"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/isometry/ad-onboard/internal/ldap"
)

// Kind classifies an onboarding failure by the stage that produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotConnected
	KindConnection
	KindDirectoryWrite
	KindCredential
	KindStorage
	KindIdentityUnresolved
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not connected"
	case KindConnection:
		return "connection"
	case KindDirectoryWrite:
		return "directory write"
	case KindCredential:
		return "credential"
	case KindStorage:
		return "storage"
	case KindIdentityUnresolved:
		return "identity unresolved"
	default:
		return "unknown"
	}
}

// ErrNotConnected is the cause of every KindNotConnected error.
var ErrNotConnected = errors.New("directory session is not connected")

// Error is returned by Session and Provisioner operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsConflict reports whether err was caused by creating an entry that
// already exists.
func IsConflict(err error) bool {
	return ldap.ResultCode(err) == goldap.LDAPResultEntryAlreadyExists
}
