package directory

// Membership records the outcome of the requested group joins.
type Membership struct {
	Joined  []string
	Missing []string
}

// Complete reports whether every requested group was joined.
func (m Membership) Complete() bool {
	return len(m.Missing) == 0
}

// UserResult describes a created user.
type UserResult struct {
	DN                string
	GUID              string
	SID               string
	UserPrincipalName string
	Membership        Membership
	HomeDirectory     string
}
