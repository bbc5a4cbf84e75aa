package model

import (
	"sort"
	"strings"
)

// PermissionTableVersion is bumped whenever a bit is added. Bits are never reassigned.
const PermissionTableVersion = 1

const (
	PermRegisterProject   uint64 = 1 << 0
	PermVerifyProject     uint64 = 1 << 1
	PermMintCredits       uint64 = 1 << 2
	PermTransferCredits   uint64 = 1 << 3
	PermRetireCredits     uint64 = 1 << 4
	PermAssignRoles       uint64 = 1 << 5 // "manage users"
	PermCreateProposal    uint64 = 1 << 6
	PermApproveProposal   uint64 = 1 << 7
	PermExecuteProposal   uint64 = 1 << 8
	PermViewAuditLogs     uint64 = 1 << 9
	PermEmergencyPause    uint64 = 1 << 10
	PermCreateListing     uint64 = 1 << 11
	PermApproveCompliance uint64 = 1 << 12
)

// PermissionNames is the bit-to-capability table.
var PermissionNames = map[uint64]string{
	PermRegisterProject:   "REGISTER_PROJECT",
	PermVerifyProject:     "VERIFY_PROJECT",
	PermMintCredits:       "MINT_CREDITS",
	PermTransferCredits:   "TRANSFER_CREDITS",
	PermRetireCredits:     "RETIRE_CREDITS",
	PermAssignRoles:       "ASSIGN_ROLES",
	PermCreateProposal:    "CREATE_PROPOSAL",
	PermApproveProposal:   "APPROVE_PROPOSAL",
	PermExecuteProposal:   "EXECUTE_PROPOSAL",
	PermViewAuditLogs:     "VIEW_AUDIT_LOGS",
	PermEmergencyPause:    "EMERGENCY_PAUSE",
	PermCreateListing:     "CREATE_LISTING",
	PermApproveCompliance: "APPROVE_COMPLIANCE",
}

const (
	UserPermissions       = PermRegisterProject | PermTransferCredits | PermRetireCredits | PermCreateListing
	ValidatorPermissions  = PermVerifyProject | PermViewAuditLogs
	GovernmentPermissions = PermApproveCompliance | PermViewAuditLogs
	AdminPermissions      = PermRegisterProject | PermVerifyProject | PermMintCredits | PermTransferCredits |
		PermRetireCredits | PermAssignRoles | PermCreateProposal | PermApproveProposal | PermExecuteProposal |
		PermViewAuditLogs | PermEmergencyPause | PermCreateListing | PermApproveCompliance
)

// DefaultPermissions returns the bitmask granted to a role when none is given explicitly.
func DefaultPermissions(role UserRole) uint64 {
	switch role {
	case RoleUser:
		return UserPermissions
	case RoleValidator:
		return ValidatorPermissions
	case RoleGovernment:
		return GovernmentPermissions
	case RoleAdmin, RoleSuperAdmin:
		return AdminPermissions
	default:
		return 0
	}
}

// PermissionList renders a bitmask as sorted capability names. Unknown bits are ignored.
func PermissionList(mask uint64) []string {
	names := []string{}
	for bit, name := range PermissionNames {
		if mask&bit != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// FormatPermissions is PermissionList joined with '|'.
func FormatPermissions(mask uint64) string {
	return strings.Join(PermissionList(mask), "|")
}
