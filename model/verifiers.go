package model

import "time"

// VerifierType is the kind of body behind a verifier record.
type VerifierType string

const (
	VerifierScientificInstitution VerifierType = "ScientificInstitution"
	VerifierGovernmentAgency      VerifierType = "GovernmentAgency"
	VerifierCertificationBody     VerifierType = "CertificationBody"
	VerifierLocalCommunity        VerifierType = "LocalCommunity"
	VerifierTechnicalAuditor      VerifierType = "TechnicalAuditor" // ACVA
	VerifierThirdPartyValidator   VerifierType = "ThirdPartyValidator"
)

var ValidVerifierTypes = map[VerifierType]bool{
	VerifierScientificInstitution: true,
	VerifierGovernmentAgency:      true,
	VerifierCertificationBody:     true,
	VerifierLocalCommunity:        true,
	VerifierTechnicalAuditor:      true,
	VerifierThirdPartyValidator:   true,
}

const (
	InitialVerifierReputation uint64 = 100
	VerificationReward        uint64 = 10
)

// Verifier is the public profile of an identity holding VERIFY_PROJECT.
type Verifier struct {
	ObjectType        string          `json:"objectType"` // "Verifier"
	FullID            string          `json:"fullId"`
	VerifierType      VerifierType    `json:"verifierType"`
	Credentials       []string        `json:"credentials"`
	Specializations   []ProjectSector `json:"specializations"`
	ReputationScore   uint64          `json:"reputationScore"`
	VerificationCount uint64          `json:"verificationCount"`
	IsActive          bool            `json:"isActive"`
	RegisteredAt      time.Time       `json:"registeredAt"`
	LastVerifiedAt    time.Time       `json:"lastVerifiedAt"`
}
