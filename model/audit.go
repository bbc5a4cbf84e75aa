package model

import "time"

// AuditAction enumerates privileged actions written to the audit log.
type AuditAction string

const (
	AuditRoleAssigned         AuditAction = "RoleAssigned"
	AuditRoleRevoked          AuditAction = "RoleRevoked"
	AuditIdentityRegistered   AuditAction = "IdentityRegistered"
	AuditProjectRegistered    AuditAction = "ProjectRegistered"
	AuditVerificationStarted  AuditAction = "VerificationInitialized"
	AuditProjectVerified      AuditAction = "ProjectVerified"
	AuditProjectRejected      AuditAction = "ProjectRejected"
	AuditProjectExpired       AuditAction = "ProjectExpired"
	AuditComplianceApproved   AuditAction = "ComplianceApproved"
	AuditCreditsMinted        AuditAction = "CreditsMinted"
	AuditCreditsRetired       AuditAction = "CreditsRetired"
	AuditAssetRegistered      AuditAction = "AssetRegistered"
	AuditAssetIssued          AuditAction = "AssetIssued"
	AuditReviewStarted        AuditAction = "ReviewStarted"
	AuditMonitoringSubmitted  AuditAction = "MonitoringSubmitted"
	AuditImpactReported       AuditAction = "ImpactReported"
	AuditListingCreated       AuditAction = "ListingCreated"
	AuditListingCancelled     AuditAction = "ListingCancelled"
	AuditPoolInitialized      AuditAction = "PoolInitialized"
	AuditProposalCreated      AuditAction = "ProposalCreated"
	AuditProposalApproved     AuditAction = "ProposalApproved"
	AuditProposalRejected     AuditAction = "ProposalRejected"
	AuditProposalExecuted     AuditAction = "ProposalExecuted"
	AuditProposalCancelled    AuditAction = "ProposalCancelled"
	AuditAdminAdded           AuditAction = "AdminAdded"
	AuditAdminRemoved         AuditAction = "AdminRemoved"
	AuditRegistryInitialized  AuditAction = "RegistryInitialized"
	AuditMultisigInitialized  AuditAction = "MultisigInitialized"
	AuditSystemPaused         AuditAction = "SystemPaused"
	AuditSystemUnpaused       AuditAction = "SystemUnpaused"
	AuditSettingsUpdated      AuditAction = "SettingsUpdated"
	AuditAuthorityTransferred AuditAction = "AuthorityTransferred"
	AuditThresholdUpdated     AuditAction = "ThresholdUpdated"
	AuditManualEntry          AuditAction = "ManualEntry"
	AuditVerifierRegistered   AuditAction = "VerifierRegistered"
	AuditVerifierStatus       AuditAction = "VerifierStatusChanged"
)

// AuditLogEntry is one append-only, hash-chained audit record.
type AuditLogEntry struct {
	ObjectType string      `json:"objectType"` // "AuditLogEntry"
	Seq        uint64      `json:"seq"`
	EntryID    string      `json:"entryId"`
	Actor      string      `json:"actor"`
	Action     AuditAction `json:"action"`
	Target     string      `json:"target"`
	Success    bool        `json:"success"`
	Details    string      `json:"details"`
	ProposalID *uint64     `json:"proposalId,omitempty"`
	TxID       string      `json:"txId"`
	Timestamp  time.Time   `json:"timestamp"`
	PrevHash   string      `json:"prevHash"`
	EntryHash  string      `json:"entryHash"`
}

// AuditCounter tracks the head of the audit chain.
type AuditCounter struct {
	ObjectType string `json:"objectType"` // "AuditCounter"
	NextSeq    uint64 `json:"nextSeq"`
	LastHash   string `json:"lastHash"`
}

// AuditChainReport is the result of re-validating the audit hash chain.
type AuditChainReport struct {
	Entries  uint64 `json:"entries"`
	Valid    bool   `json:"valid"`
	BrokenAt uint64 `json:"brokenAt"` // Seq of the first bad entry when !Valid
	Reason   string `json:"reason"`
	HeadHash string `json:"headHash"`
}
