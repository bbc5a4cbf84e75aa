// File: model/identities.go
package model

import "time"

// UserRole is the coarse role carried by an identity. Capabilities are granted by the permission bitmask.
type UserRole string

const (
	RoleNone       UserRole = "None"
	RoleUser       UserRole = "User"       // Project developers, investors
	RoleValidator  UserRole = "Validator"  // Accredited verification bodies
	RoleGovernment UserRole = "Government" // National registry authority
	RoleAdmin      UserRole = "Admin"
	RoleSuperAdmin UserRole = "SuperAdmin"
)

// ValidRoles lists every role accepted by role-assignment operations.
var ValidRoles = map[UserRole]bool{
	RoleNone:       true,
	RoleUser:       true,
	RoleValidator:  true,
	RoleGovernment: true,
	RoleAdmin:      true,
	RoleSuperAdmin: true,
}

// IsAdminRole reports whether the role is Admin or SuperAdmin.
func (r UserRole) IsAdminRole() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Identity stores the access-control record of a participant.
type Identity struct {
	ObjectType    string    `json:"objectType"`    // "Identity"
	FullID        string    `json:"fullId"`        // Full X.509 identity string
	MSPID         string    `json:"mspId"`         // MSP of the identity when it was first seen
	Role          UserRole  `json:"role"`          // Current role
	Permissions   uint64    `json:"permissions"`   // Capability bitmask, see permissions.go
	AssignedBy    string    `json:"assignedBy"`    // Identity (or multisig proposal) that last set role/permissions
	AssignedAt    time.Time `json:"assignedAt"`    // When role/permissions were last set
	IsActive      bool      `json:"isActive"`      // Revocation clears this flag, records are never deleted
	RegisteredAt  time.Time `json:"registeredAt"`  // First registration
	LastUpdatedAt time.Time `json:"lastUpdatedAt"` // Last mutation
}

// Has reports whether the identity is active and carries every bit of perm.
func (i *Identity) Has(perm uint64) bool {
	return i != nil && i.IsActive && i.Permissions&perm == perm
}
