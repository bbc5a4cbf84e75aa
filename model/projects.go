package model

import "time"

// VerificationStatus defines the lifecycle states of a project.
type VerificationStatus string

const (
	StatusPending       VerificationStatus = "Pending"       // Registered, no escrow yet
	StatusAwaitingAudit VerificationStatus = "AwaitingAudit" // Fee escrowed, verifier may be assigned
	StatusUnderReview   VerificationStatus = "UnderReview"   // Verifier has started the review
	StatusVerified      VerificationStatus = "Verified"      // Only state from which credits can be minted
	StatusRejected      VerificationStatus = "Rejected"      // Terminal
	StatusMonitoring    VerificationStatus = "Monitoring"    // Health score dropped below threshold after verification
	StatusExpired       VerificationStatus = "Expired"       // Crediting period over
)

// ProjectSector categorises the underlying activity.
type ProjectSector string

const (
	SectorBlueCarbon      ProjectSector = "BlueCarbon"
	SectorForestry        ProjectSector = "Forestry"
	SectorRenewableEnergy ProjectSector = "RenewableEnergy"
	SectorWasteManagement ProjectSector = "WasteManagement"
	SectorAgriculture     ProjectSector = "Agriculture"
	SectorIndustrial      ProjectSector = "Industrial"
)

var ValidSectors = map[ProjectSector]bool{
	SectorBlueCarbon:      true,
	SectorForestry:        true,
	SectorRenewableEnergy: true,
	SectorWasteManagement: true,
	SectorAgriculture:     true,
	SectorIndustrial:      true,
}

// CoBenefit tags a non-carbon outcome of a project.
type CoBenefit string

const (
	CoBenefitBiodiversity        CoBenefit = "Biodiversity"
	CoBenefitWaterConservation   CoBenefit = "WaterConservation"
	CoBenefitSoilHealth          CoBenefit = "SoilHealth"
	CoBenefitCommunityLivelihood CoBenefit = "CommunityLivelihood"
	CoBenefitGenderEquality      CoBenefit = "GenderEquality"
	CoBenefitAirQuality          CoBenefit = "AirQuality"
	CoBenefitCoastalProtection   CoBenefit = "CoastalProtection"
	CoBenefitEducation           CoBenefit = "Education"
	CoBenefitHealthImprovement   CoBenefit = "HealthImprovement"
)

var ValidCoBenefits = map[CoBenefit]bool{
	CoBenefitBiodiversity:        true,
	CoBenefitWaterConservation:   true,
	CoBenefitSoilHealth:          true,
	CoBenefitCommunityLivelihood: true,
	CoBenefitGenderEquality:      true,
	CoBenefitAirQuality:          true,
	CoBenefitCoastalProtection:   true,
	CoBenefitEducation:           true,
	CoBenefitHealthImprovement:   true,
}

// ComplianceApproved is the audit status set by a government approval.
const ComplianceApproved = "Approved"

// GeoPoint represents a latitude/longitude coordinate.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeoLocation is the declared site of a project.
type GeoLocation struct {
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Polygon     []GeoPoint `json:"polygon"`
	CountryCode string     `json:"countryCode"` // ISO 3166-1 alpha-2
	RegionName  string     `json:"regionName"`
}

// ComplianceState is the national-registry sub-record of a project.
type ComplianceState struct {
	CCTSRegistryID           string    `json:"cctsRegistryId"`
	LoAIssued                bool      `json:"loaIssued"`                // Letter of authorization
	DoubleCountingTrackingID string    `json:"doubleCountingTrackingId"` // <projectId>_<ccts>_<country>
	AuditStatus              string    `json:"auditStatus"`
	AuthorizedExportLimit    uint64    `json:"authorizedExportLimit"` // Recorded only
	ApprovedBy               string    `json:"approvedBy"`
	ApprovedAt               time.Time `json:"approvedAt"`
}

// VerificationData points at the off-chain evidence a verifier relied on.
type VerificationData struct {
	SatelliteDataHash    string    `json:"satelliteDataHash"`
	IoTDataHash          string    `json:"iotDataHash"`
	ACVAReportCID        string    `json:"acvaReportCid"`
	LastVerificationDate time.Time `json:"lastVerificationDate"`
}

// Project is the central record of the issuance lifecycle.
type Project struct {
	ObjectType             string             `json:"objectType"` // "Project"
	ProjectID              string             `json:"projectId"`
	Address                string             `json:"address"` // Derived from owner and project id
	Owner                  string             `json:"owner"`
	Name                   string             `json:"name"`
	Description            string             `json:"description"`
	Sector                 ProjectSector      `json:"sector"`
	Location               GeoLocation        `json:"location"`
	LocationFingerprint    string             `json:"locationFingerprint"`
	AreaHectares           float64            `json:"areaHectares"`
	VintageYear            uint32             `json:"vintageYear"`
	EstablishmentDate      time.Time          `json:"establishmentDate"`
	Methodology            string             `json:"methodology"`
	CoBenefits             []CoBenefit        `json:"coBenefits"`
	CertificationStandards []string           `json:"certificationStandards"`
	EstimatedCarbonTons    uint64             `json:"estimatedCarbonTons"`
	CarbonTonsVerified     uint64             `json:"carbonTonsVerified"`
	Status                 VerificationStatus `json:"status"`
	Verifier               string             `json:"verifier"`
	VerifiedAt             time.Time          `json:"verifiedAt"`
	QualityRating          uint8              `json:"qualityRating"`
	AuditEscrowBalance     uint64             `json:"auditEscrowBalance"`
	EscrowVault            string             `json:"escrowVault"`
	Compliance             ComplianceState    `json:"compliance"`
	VerificationData       VerificationData   `json:"verificationData"`
	CreditsIssued          uint64             `json:"creditsIssued"`
	TokensMinted           uint64             `json:"tokensMinted"` // Never exceeds CreditsIssued
	PricePerTon            uint64             `json:"pricePerTon"`
	AvailableQuantity      uint64             `json:"availableQuantity"`
	HealthScore            uint8              `json:"healthScore"`
	RejectionReason        string             `json:"rejectionReason"`
	CreatedAt              time.Time          `json:"createdAt"`
	LastUpdatedAt          time.Time          `json:"lastUpdatedAt"`
}

// LocationClaim is an entry of the double-issuance set.
type LocationClaim struct {
	ObjectType  string    `json:"objectType"` // "LocationClaim"
	Fingerprint string    `json:"fingerprint"`
	ProjectID   string    `json:"projectId"`
	ClaimedBy   string    `json:"claimedBy"`
	ClaimedAt   time.Time `json:"claimedAt"`
}

// MonitoringRecord is one post-verification monitoring submission.
type MonitoringRecord struct {
	ObjectType        string    `json:"objectType"` // "Monitoring"
	ProjectID         string    `json:"projectId"`
	TxID              string    `json:"txId"`
	SubmittedBy       string    `json:"submittedBy"`
	SatelliteDataHash string    `json:"satelliteDataHash"`
	IoTDataHash       string    `json:"iotDataHash"`
	HealthScore       uint8     `json:"healthScore"` // 0-100
	Notes             string    `json:"notes"`
	SubmittedAt       time.Time `json:"submittedAt"`
}

// ImpactReport summarises a reporting period of a verified project.
type ImpactReport struct {
	ObjectType                 string    `json:"objectType"` // "ImpactReport"
	ProjectID                  string    `json:"projectId"`
	ReportingPeriodStart       time.Time `json:"reportingPeriodStart"`
	ReportingPeriodEnd         time.Time `json:"reportingPeriodEnd"`
	CarbonSequestered          uint64    `json:"carbonSequestered"`
	EcosystemHealthImprovement float64   `json:"ecosystemHealthImprovement"`
	CommunityBenefits          string    `json:"communityBenefits"`
	EconomicImpact             uint64    `json:"economicImpact"`
	SDGContributions           []uint32  `json:"sdgContributions"` // UN SDG numbers 1-17
	VerificationReportCID      string    `json:"verificationReportCid"`
	SubmittedBy                string    `json:"submittedBy"`
	SubmittedAt                time.Time `json:"submittedAt"`
}
