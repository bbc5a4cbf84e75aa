package model

import "time"

const (
	MaxMultisigAdmins  = 10
	MaxProposalPayload = 256 // bytes
)

// ProposalType names the effect a proposal applies when executed.
type ProposalType string

const (
	ProposalAssignRole        ProposalType = "AssignRole"
	ProposalRevokeRole        ProposalType = "RevokeRole"
	ProposalAddAdmin          ProposalType = "AddAdmin"
	ProposalRemoveAdmin       ProposalType = "RemoveAdmin"
	ProposalUpdateRegistry    ProposalType = "UpdateRegistry"
	ProposalEmergencyPause    ProposalType = "EmergencyPause"
	ProposalTransferAuthority ProposalType = "TransferAuthority"
	ProposalUpdateThreshold   ProposalType = "UpdateThreshold"
)

var ValidProposalTypes = map[ProposalType]bool{
	ProposalAssignRole:        true,
	ProposalRevokeRole:        true,
	ProposalAddAdmin:          true,
	ProposalRemoveAdmin:       true,
	ProposalUpdateRegistry:    true,
	ProposalEmergencyPause:    true,
	ProposalTransferAuthority: true,
	ProposalUpdateThreshold:   true,
}

// ProposalStatus is the variant tag of a proposal.
type ProposalStatus string

const (
	ProposalOpen      ProposalStatus = "Open"
	ProposalExecuted  ProposalStatus = "Executed"
	ProposalCancelled ProposalStatus = "Cancelled"
	ProposalExpired   ProposalStatus = "Expired"
)

// MultisigConfig is the singleton governance configuration.
type MultisigConfig struct {
	ObjectType     string    `json:"objectType"` // "MultisigConfig"
	Admins         []string  `json:"admins"`     // Insertion order is kept
	Threshold      uint32    `json:"threshold"`
	ProposalCount  uint64    `json:"proposalCount"`
	IsEnabled      bool      `json:"isEnabled"`
	EmergencyAdmin string    `json:"emergencyAdmin"`
	CreatedAt      time.Time `json:"createdAt"`
	LastUpdatedAt  time.Time `json:"lastUpdatedAt"`
}

// Proposal is a pending or settled governance action.
// Executed and Cancelled mirror Status for readers that only look at flags.
type Proposal struct {
	ObjectType        string         `json:"objectType"` // "Proposal"
	ID                uint64         `json:"id"`
	ProposalType      ProposalType   `json:"proposalType"`
	Proposer          string         `json:"proposer"`
	Target            string         `json:"target"`
	Payload           string         `json:"payload"` // JSON, at most MaxProposalPayload bytes
	CreatedAt         time.Time      `json:"createdAt"`
	ExpiresAt         time.Time      `json:"expiresAt"`
	Status            ProposalStatus `json:"status"`
	Executed          bool           `json:"executed"`
	Cancelled         bool           `json:"cancelled"`
	Approvals         []string       `json:"approvals"`  // Sorted
	Rejections        []string       `json:"rejections"` // Sorted
	RequiredApprovals uint32         `json:"requiredApprovals"`
	ExecutedAt        time.Time      `json:"executedAt"`
	ExecutedBy        string         `json:"executedBy"`
}

// RolePayload is the payload of AssignRole proposals.
type RolePayload struct {
	Role        UserRole `json:"role"`
	Permissions *uint64  `json:"permissions,omitempty"` // Role default when absent
}

// PausePayload is the payload of EmergencyPause proposals.
type PausePayload struct {
	Paused bool `json:"paused"`
}

// ThresholdPayload is the payload of UpdateThreshold proposals.
type ThresholdPayload struct {
	Threshold uint32 `json:"threshold"`
}
