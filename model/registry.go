package model

import "time"

// Registry is the singleton holding global counters and authorities.
type Registry struct {
	ObjectType                string    `json:"objectType"` // "Registry"
	TotalCreditsIssued        uint64    `json:"totalCreditsIssued"`
	TotalProjects             uint64    `json:"totalProjects"`
	Admin                     string    `json:"admin"`
	GovernmentAuthority       string    `json:"governmentAuthority"`
	MintAuthority             string    `json:"mintAuthority"` // Derived address owning the credit asset
	CreditAssetID             string    `json:"creditAssetId"`
	CreditDecimals            uint8     `json:"creditDecimals"`
	FeeAssetID                string    `json:"feeAssetId"`
	MinVerificationFee        uint64    `json:"minVerificationFee"`
	ComplianceRequiredForMint bool      `json:"complianceRequiredForMint"`
	Paused                    bool      `json:"paused"`
	CreatedAt                 time.Time `json:"createdAt"`
	LastUpdatedAt             time.Time `json:"lastUpdatedAt"`
}

// RegistrySettings carries the optional fields of an UpdateRegistry proposal.
type RegistrySettings struct {
	GovernmentAuthority       *string `json:"governmentAuthority,omitempty"`
	MinVerificationFee        *uint64 `json:"minVerificationFee,omitempty"`
	ComplianceRequiredForMint *bool   `json:"complianceRequiredForMint,omitempty"`
}

// PlatformStats is computed on read, never stored.
type PlatformStats struct {
	TotalRegisteredUsers  uint64            `json:"totalRegisteredUsers"`
	TotalValidators       uint64            `json:"totalValidators"`
	ActiveIdentities      uint64            `json:"activeIdentities"`
	TotalProjects         uint64            `json:"totalProjects"`
	ProjectsByStatus      map[string]uint64 `json:"projectsByStatus"`
	TotalCreditsIssued    uint64            `json:"totalCreditsIssued"`
	TotalCreditsRetired   uint64            `json:"totalCreditsRetired"`
	CirculatingCredits    uint64            `json:"circulatingCredits"`
	TotalVolumeCredits    uint64            `json:"totalVolumeCredits"`
	ActiveListings        uint64            `json:"activeListings"`
	Pools                 uint64            `json:"pools"`
	TotalTransactions     uint64            `json:"totalTransactions"` // Audit entries appended
	CreditsIssuedDisplay  string            `json:"creditsIssuedDisplay"`
	CreditsRetiredDisplay string            `json:"creditsRetiredDisplay"`
	CirculatingDisplay    string            `json:"circulatingDisplay"`
}
