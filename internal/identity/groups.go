package identity

import "strings"

// ParseGroupList splits a comma-separated list of group names. Names are
// trimmed and empty entries are dropped; spaces inside a name are kept.
func ParseGroupList(s string) []string {
	var groups []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			groups = append(groups, name)
		}
	}
	return groups
}
