package identity

// Role is an employee's job function. Each role maps to the department
// group it belongs to.
type Role int

const (
	RoleUnknown Role = iota
	RoleMarketing
	RoleWarehouseEmployee
	RolePurchasingConsultant
	RoleWarehouseManager
	RolePurchasingManager
	RoleSysAdmin
	RoleDirector
)

type roleInfo struct {
	name  string // Go-style name
	label string // label shown to and typed by operators
	group string // department group
}

var roleTable = map[Role]roleInfo{
	RoleMarketing:            {"Marketing", "Marketing", "Marketing"},
	RoleWarehouseEmployee:    {"WarehouseEmployee", "Lagermedarbejder", "Lager Gruppen"},
	RolePurchasingConsultant: {"PurchasingConsultant", "Salgskonsulent", "Salg Group"},
	RoleWarehouseManager:     {"WarehouseManager", "Lagerchef", "Lager Gruppen"},
	RolePurchasingManager:    {"PurchasingManager", "Salgschef", "Salg Group"},
	RoleSysAdmin:             {"SysAdmin", "System Administrator", "System Admin"},
	RoleDirector:             {"Director", "Direktør", "Direktør og ejer"},
}

var labelIndex = func() map[string]Role {
	idx := make(map[string]Role, len(roleTable))
	for r, info := range roleTable {
		idx[info.label] = r
	}
	return idx
}()

// Roles returns the known roles in declaration order.
func Roles() []Role {
	return []Role{
		RoleMarketing,
		RoleWarehouseEmployee,
		RolePurchasingConsultant,
		RoleWarehouseManager,
		RolePurchasingManager,
		RoleSysAdmin,
		RoleDirector,
	}
}

// ParseRole maps an operator label to a Role. Matching is exact; any other
// input yields RoleUnknown.
func ParseRole(label string) Role {
	if r, ok := labelIndex[label]; ok {
		return r
	}
	return RoleUnknown
}

// Group returns the department group for r.
func (r Role) Group() string {
	if info, ok := roleTable[r]; ok {
		return info.group
	}
	return "Unknown"
}

// Label returns the operator label that ParseRole accepts for r.
func (r Role) Label() string {
	if info, ok := roleTable[r]; ok {
		return info.label
	}
	return "Unknown"
}

func (r Role) String() string {
	if info, ok := roleTable[r]; ok {
		return info.name
	}
	return "Unknown"
}
