// Package identity describes the employee being onboarded.
package identity

import (
	"fmt"
	"strings"
)

// DefaultHomeLayout places home folders on the company file server.
var DefaultHomeLayout = HomeLayout{
	Drive: "Z:",
	Root:  `\\TEAMJOHN\Bruger`,
}

// HomeLayout is where home folders live and which drive maps them.
type HomeLayout struct {
	Drive string
	Root  string
}

// PathFor returns the home folder for username under the layout root.
// UNC and drive-letter roots are joined with a backslash, anything else
// with a forward slash.
func (l HomeLayout) PathFor(username string) string {
	sep := "/"
	if strings.Contains(l.Root, `\`) || (len(l.Root) >= 2 && l.Root[1] == ':') {
		sep = `\`
	}
	return strings.TrimRight(l.Root, `\/`) + sep + username
}

// Identity is an immutable description of one employee.
type Identity struct {
	firstName     string
	lastName      string
	description   string
	role          Role
	password      Secret
	groups        []string
	homeDrive     string
	homeDirectory string
}

// New builds an Identity whose home folder follows DefaultHomeLayout.
func New(firstName, lastName, description string, role Role, password string, groups []string) *Identity {
	return NewWithLayout(firstName, lastName, description, role, password, groups, DefaultHomeLayout)
}

// NewWithLayout builds an Identity whose home folder follows layout.
func NewWithLayout(firstName, lastName, description string, role Role, password string, groups []string, layout HomeLayout) *Identity {
	return NewWithHome(firstName, lastName, description, role, password, groups,
		layout.Drive, layout.PathFor(firstName))
}

// NewWithHome builds an Identity with an explicit home drive and path.
func NewWithHome(firstName, lastName, description string, role Role, password string, groups []string, homeDrive, homeDirectory string) *Identity {
	return &Identity{
		firstName:     firstName,
		lastName:      lastName,
		description:   description,
		role:          role,
		password:      NewSecret(password),
		groups:        append([]string(nil), groups...),
		homeDrive:     homeDrive,
		homeDirectory: homeDirectory,
	}
}

func (i *Identity) FirstName() string     { return i.firstName }
func (i *Identity) LastName() string      { return i.lastName }
func (i *Identity) Description() string   { return i.description }
func (i *Identity) Role() Role            { return i.role }
func (i *Identity) Password() Secret      { return i.password }
func (i *Identity) HomeDrive() string     { return i.homeDrive }
func (i *Identity) HomeDirectory() string { return i.homeDirectory }

// Groups returns a copy of the requested group names in the order given.
func (i *Identity) Groups() []string {
	return append([]string(nil), i.groups...)
}

// Username is the logon name. It is the first name as given.
func (i *Identity) Username() string {
	return i.firstName
}

// FullName is "<first> <last>".
func (i *Identity) FullName() string {
	return i.firstName + " " + i.lastName
}

// String describes the identity without its password.
func (i *Identity) String() string {
	return fmt.Sprintf("%s (%s)", i.FullName(), i.role)
}

func (i *Identity) GoString() string {
	return fmt.Sprintf("identity.Identity{Name: %q, Role: %s, Password: %s}", i.FullName(), i.role, redacted)
}
