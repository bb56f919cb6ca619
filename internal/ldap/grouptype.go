package ldap

import (
	"fmt"
	"strings"
)

// GroupScope is the replication scope of an Active Directory group.
type GroupScope string

const (
	GroupScopeGlobal      GroupScope = "Global"
	GroupScopeUniversal   GroupScope = "Universal"
	GroupScopeDomainLocal GroupScope = "DomainLocal"
)

func (gs GroupScope) String() string {
	return string(gs)
}

// GroupCategory distinguishes security groups from distribution lists.
type GroupCategory string

const (
	GroupCategorySecurity     GroupCategory = "Security"
	GroupCategoryDistribution GroupCategory = "Distribution"
)

func (gc GroupCategory) String() string {
	return string(gc)
}

// Active Directory groupType bit flags.
const (
	GroupTypeFlagGlobal      int32 = 0x00000002  // ADS_GROUP_TYPE_GLOBAL_GROUP
	GroupTypeFlagDomainLocal int32 = 0x00000004  // ADS_GROUP_TYPE_DOMAIN_LOCAL_GROUP
	GroupTypeFlagUniversal   int32 = 0x00000008  // ADS_GROUP_TYPE_UNIVERSAL_GROUP
	GroupTypeFlagSecurity    int32 = -2147483648 // ADS_GROUP_TYPE_SECURITY_ENABLED (0x80000000 as int32)
)

// ParseGroupScope accepts the scope names case-insensitively.
func ParseGroupScope(s string) (GroupScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "global":
		return GroupScopeGlobal, nil
	case "universal":
		return GroupScopeUniversal, nil
	case "domainlocal", "domain_local":
		return GroupScopeDomainLocal, nil
	}
	return "", fmt.Errorf("invalid group scope %q", s)
}

// ParseGroupCategory accepts the category names case-insensitively.
func ParseGroupCategory(s string) (GroupCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "security":
		return GroupCategorySecurity, nil
	case "distribution":
		return GroupCategoryDistribution, nil
	}
	return "", fmt.Errorf("invalid group category %q", s)
}

// CalculateGroupType returns the groupType value for scope and category.
// Unknown scopes fall back to Global.
func CalculateGroupType(scope GroupScope, category GroupCategory) int32 {
	var groupType int32

	switch scope {
	case GroupScopeDomainLocal:
		groupType |= GroupTypeFlagDomainLocal
	case GroupScopeUniversal:
		groupType |= GroupTypeFlagUniversal
	default:
		groupType |= GroupTypeFlagGlobal
	}

	if category == GroupCategorySecurity {
		groupType |= GroupTypeFlagSecurity
	}

	return groupType
}
