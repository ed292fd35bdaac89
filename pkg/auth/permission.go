// Package auth provides permission-based access control for operator
// commands.
package auth

// Permission defines an action that can be controlled
type Permission string

// Standard permissions
const (
	PermRoutesView  Permission = "routes.view"
	PermRoutesClear Permission = "routes.clear"

	PermTopologyView Permission = "topology.view"

	PermAuditView Permission = "audit.view"

	PermVNFRun Permission = "vnf.run"

	PermAll Permission = "all" // Superuser - allows everything
)

// PermissionCategory groups related permissions
type PermissionCategory struct {
	Name        string
	Description string
	Permissions []Permission
}

// StandardCategories defines standard permission categories
var StandardCategories = []PermissionCategory{
	{
		Name:        "routes",
		Description: "Controller route management",
		Permissions: []Permission{PermRoutesView, PermRoutesClear},
	},
	{
		Name:        "topology",
		Description: "Topology inspection",
		Permissions: []Permission{PermTopologyView},
	},
	{
		Name:        "audit",
		Description: "Audit log access",
		Permissions: []Permission{PermAuditView},
	},
	{
		Name:        "vnf",
		Description: "Running the routing VNF",
		Permissions: []Permission{PermVNFRun},
	},
}

// IsReadOnly returns true if the permission is read-only
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermRoutesView, PermTopologyView, PermAuditView:
		return true
	}
	return false
}

// IsWriteOperation returns true if the permission changes controller state
func (p Permission) IsWriteOperation() bool {
	return !p.IsReadOnly()
}
