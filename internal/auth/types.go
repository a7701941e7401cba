package auth

// Role is an actor's access level within its company.
type Role string

const (
	// RoleAdmin can manage devices and subscriptions for its company.
	RoleAdmin Role = "admin"

	// RoleOperator can view and issue device commands but not manage
	// subscriptions.
	RoleOperator Role = "operator"

	// RoleService is the internal service account used for MQTT-side
	// operations with no authenticated caller.
	RoleService Role = "service"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleService:
		return true
	}
	return false
}

// Actor identifies who is issuing a command.
type Actor struct {
	UserID    string
	CompanyID string
	Role      Role
}

// Requirement names the module and actions an operation needs.
type Requirement struct {
	Module  string
	Actions []string
}

// Module names used in requirements.
const (
	ModuleDevice       = "device"
	ModuleSubscription = "subscription"
)

// Action names used in requirements.
const (
	ActionView = "view"
	ActionAdd  = "add"
	ActionEdit = "edit"
)
