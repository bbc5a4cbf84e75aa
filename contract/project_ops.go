package contract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"carbonregistry/model"
	"carbonregistry/pkg/safemath"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// monitoringHealthThreshold is the health score below which a verified project is put under monitoring.
const monitoringHealthThreshold = 50

// --- Project helpers ---

func loadProject(tx *ledgerTx, projectID string) (*model.Project, error) {
	key, err := tx.key(projectObjectType, projectID)
	if err != nil {
		return nil, err
	}
	var p model.Project
	found, err := tx.getJSON(key, &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newError(CodeNotFound, "project '%s' does not exist", projectID)
	}
	ensureProjectSchemaCompliance(&p)
	return &p, nil
}

func saveProject(tx *ledgerTx, p *model.Project) error {
	key, err := tx.key(projectObjectType, p.ProjectID)
	if err != nil {
		return err
	}
	p.LastUpdatedAt = tx.now
	ensureProjectSchemaCompliance(p)
	return tx.putJSON(key, p)
}

func requireProjectOwner(tx *ledgerTx, p *model.Project) error {
	if p.Owner != tx.caller {
		return newError(CodePermissions, "caller '%s' is not the owner of project '%s'", tx.caller, p.ProjectID)
	}
	return nil
}

func emitProjectEvent(tx *ledgerTx, name string, p *model.Project, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"projectId": p.ProjectID,
		"status":    p.Status,
		"owner":     p.Owner,
	}
	for k, v := range extra {
		payload[k] = v
	}
	tx.setEvent(name, payload)
}

type projectArgs struct {
	ProjectID              string            `json:"projectId"`
	Name                   string            `json:"name"`
	Description            string            `json:"description"`
	Sector                 string            `json:"sector"`
	Location               model.GeoLocation `json:"location"`
	AreaHectares           float64           `json:"areaHectares"`
	VintageYear            uint32            `json:"vintageYear"`
	EstablishmentDateStr   string            `json:"establishmentDate"`
	Methodology            string            `json:"methodology"`
	CoBenefits             []model.CoBenefit `json:"coBenefits"`
	CertificationStandards []string          `json:"certificationStandards"`
	EstimatedCarbonTons    uint64            `json:"estimatedCarbonTons"`
	CCTSRegistryID         string            `json:"cctsRegistryId"`
	PricePerTon            uint64            `json:"pricePerTon"`
}

func validateProjectArgs(projectJSON string) (*projectArgs, error) {
	var args projectArgs
	if err := json.Unmarshal([]byte(projectJSON), &args); err != nil {
		return nil, newError(CodeInvalidInput, "invalid projectJSON: %v", err)
	}
	if err := validateRequiredString(args.ProjectID, "projectId", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := validateRequiredString(args.Name, "name", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := validateOptionalString(args.Description, "description", maxDescriptionLength); err != nil {
		return nil, err
	}
	if !model.ValidSectors[model.ProjectSector(args.Sector)] {
		return nil, newError(CodeInvalidInput, "unknown sector '%s'", args.Sector)
	}
	if err := validateCoordinates(args.Location.Latitude, args.Location.Longitude, "location"); err != nil {
		return nil, err
	}
	if len(args.Location.Polygon) > maxArrayElements {
		return nil, newError(CodeInvalidInput, "location.polygon has %d points, exceeding maximum of %d", len(args.Location.Polygon), maxArrayElements)
	}
	for i, pt := range args.Location.Polygon {
		if err := validateCoordinates(pt.Latitude, pt.Longitude, fmt.Sprintf("location.polygon[%d]", i)); err != nil {
			return nil, err
		}
	}
	if err := validateOptionalString(args.Location.CountryCode, "location.countryCode", 3); err != nil {
		return nil, err
	}
	if err := validateOptionalString(args.Location.RegionName, "location.regionName", maxStringInputLength); err != nil {
		return nil, err
	}
	if args.AreaHectares < 0 {
		return nil, newError(CodeInvalidInput, "areaHectares cannot be negative")
	}
	if err := validateOptionalString(args.Methodology, "methodology", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := validateCoBenefits(args.CoBenefits, "coBenefits"); err != nil {
		return nil, err
	}
	if err := validateStringArray(args.CertificationStandards, "certificationStandards", maxArrayElements, maxStringInputLength); err != nil {
		return nil, err
	}
	if args.EstimatedCarbonTons == 0 {
		return nil, newError(CodeInvalidCarbonMeasurement, "estimatedCarbonTons must be greater than zero")
	}
	if strings.TrimSpace(args.CCTSRegistryID) == "" {
		return nil, newError(CodeMissingRegistryID, "cctsRegistryId is required")
	}
	if args.CCTSRegistryID != args.ProjectID {
		return nil, newError(CodeRegistryIDMismatch, "cctsRegistryId '%s' does not match projectId '%s'", args.CCTSRegistryID, args.ProjectID)
	}
	return &args, nil
}

// --- Project Lifecycle Operations ---

// RegisterProject creates a Pending project and claims its location fingerprint.
func (s *CarbonRegistryContract) RegisterProject(ctx contractapi.TransactionContextInterface, projectJSON string) (*model.Project, error) {
	logger.Info("Chaincode Call: RegisterProject")
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, err
	}
	if _, err := NewIdentityManager(tx).RequirePermission(model.PermRegisterProject); err != nil {
		return nil, err
	}
	args, err := validateProjectArgs(projectJSON)
	if err != nil {
		return nil, err
	}
	establishment, err := parseDateString(args.EstablishmentDateStr, "establishmentDate", false)
	if err != nil {
		return nil, err
	}

	key, err := tx.key(projectObjectType, args.ProjectID)
	if err != nil {
		return nil, err
	}
	exists, err := tx.exists(key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(CodeAlreadyExists, "project '%s' already exists", args.ProjectID)
	}

	fingerprint := locationFingerprint(args.Location.Latitude, args.Location.Longitude)
	if err := claimLocation(tx, fingerprint, args.ProjectID); err != nil {
		return nil, err
	}

	p := &model.Project{
		ObjectType:             projectObjectType,
		ProjectID:              args.ProjectID,
		Address:                projectAddress(tx.caller, args.ProjectID),
		Owner:                  tx.caller,
		Name:                   args.Name,
		Description:            args.Description,
		Sector:                 model.ProjectSector(args.Sector),
		Location:               args.Location,
		LocationFingerprint:    fingerprint,
		AreaHectares:           args.AreaHectares,
		VintageYear:            args.VintageYear,
		EstablishmentDate:      establishment,
		Methodology:            args.Methodology,
		CoBenefits:             args.CoBenefits,
		CertificationStandards: args.CertificationStandards,
		EstimatedCarbonTons:    args.EstimatedCarbonTons,
		Status:                 model.StatusPending,
		EscrowVault:            projectEscrowVault(args.ProjectID),
		Compliance:             model.ComplianceState{CCTSRegistryID: args.CCTSRegistryID},
		PricePerTon:            args.PricePerTon,
		CreatedAt:              tx.now,
	}
	if err := saveProject(tx, p); err != nil {
		return nil, err
	}
	if reg.TotalProjects, err = safemath.Add(reg.TotalProjects, 1); err != nil {
		return nil, mathError(err, "total projects")
	}
	if err := saveRegistry(tx, reg); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditProjectRegistered, p.ProjectID, true, "fingerprint="+fingerprint, nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "ProjectRegistered", p, map[string]interface{}{"locationFingerprint": fingerprint})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logger.Infof("Project '%s' registered by '%s'", p.ProjectID, tx.caller)
	return p, nil
}

// InitializeVerification escrows the verification fee and optionally assigns a verifier.
func (s *CarbonRegistryContract) InitializeVerification(ctx contractapi.TransactionContextInterface, projectID string, fee uint64, verifier string) (*model.Project, error) {
	logger.Infof("Chaincode Call: InitializeVerification '%s' fee=%d", projectID, fee)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, err
	}
	p, err := loadProject(tx, projectID)
	if err != nil {
		return nil, err
	}
	if err := requireProjectOwner(tx, p); err != nil {
		return nil, err
	}
	if p.Status != model.StatusPending {
		return nil, newError(CodeProjectAlreadyProcessed, "project '%s' is %s, expected %s", projectID, p.Status, model.StatusPending)
	}
	if fee == 0 || fee < reg.MinVerificationFee {
		return nil, newError(CodeInsufficientVerificationFee, "fee %d is below the minimum of %d", fee, reg.MinVerificationFee)
	}

	verifier = strings.TrimSpace(verifier)
	if verifier != "" {
		vInfo, err := NewIdentityManager(tx).getIdentity(verifier)
		if err != nil {
			return nil, err
		}
		if vInfo == nil || !vInfo.IsActive || !vInfo.Has(model.PermVerifyProject) {
			return nil, newError(CodeVerifierNotActive, "'%s' is not an active verifier", verifier)
		}
		if _, err := requireVerifierActive(tx, verifier); err != nil {
			return nil, err
		}
		p.Verifier = verifier
	}

	if err := NewTokenLedger(tx).Transfer(reg.FeeAssetID, tx.caller, p.EscrowVault, fee); err != nil {
		return nil, err
	}
	if p.AuditEscrowBalance, err = safemath.Add(p.AuditEscrowBalance, fee); err != nil {
		return nil, mathError(err, "escrow balance")
	}
	p.Status = model.StatusAwaitingAudit
	if err := saveProject(tx, p); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditVerificationStarted, projectID, true, fmt.Sprintf("fee=%d verifier=%s", fee, p.Verifier), nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "VerificationInitialized", p, map[string]interface{}{"fee": fee, "verifier": p.Verifier})
	return p, tx.commit()
}

// requireProjectVerifier checks VERIFY_PROJECT and, when a verifier is assigned, that the caller is it or an admin.
// It returns the caller's verifier record, nil when none was registered.
func requireProjectVerifier(tx *ledgerTx, p *model.Project) (*model.Verifier, error) {
	im := NewIdentityManager(tx)
	if _, err := im.RequirePermission(model.PermVerifyProject); err != nil {
		return nil, err
	}
	if p.Verifier != "" && p.Verifier != tx.caller {
		isAdmin, err := im.IsAdmin(tx.caller)
		if err != nil {
			return nil, err
		}
		if !isAdmin {
			return nil, newError(CodeUnauthorizedVerifier, "project '%s' is assigned to verifier '%s'", p.ProjectID, p.Verifier)
		}
	}
	return requireVerifierActive(tx, tx.caller)
}

func requireReviewable(p *model.Project) error {
	switch p.Status {
	case model.StatusPending, model.StatusAwaitingAudit, model.StatusUnderReview:
		return nil
	}
	return newError(CodeProjectAlreadyProcessed, "project '%s' is already %s", p.ProjectID, p.Status)
}

// BeginReview moves an escrowed project into review.
func (s *CarbonRegistryContract) BeginReview(ctx contractapi.TransactionContextInterface, projectID string) (*model.Project, error) {
	logger.Infof("Chaincode Call: BeginReview '%s'", projectID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireNotPaused(tx); err != nil {
		return nil, err
	}
	p, err := loadProject(tx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := requireProjectVerifier(tx, p); err != nil {
		return nil, err
	}
	if p.Status != model.StatusAwaitingAudit {
		return nil, newError(CodeProjectAlreadyProcessed, "project '%s' is %s, expected %s", projectID, p.Status, model.StatusAwaitingAudit)
	}
	if p.Verifier == "" {
		p.Verifier = tx.caller
	}
	p.Status = model.StatusUnderReview
	if err := saveProject(tx, p); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditReviewStarted, projectID, true, "verifier "+p.Verifier, nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "ReviewStarted", p, map[string]interface{}{"verifier": p.Verifier})
	return p, tx.commit()
}

// releaseEscrow pays the whole verification escrow to the caller and zeroes it.
func releaseEscrow(tx *ledgerTx, reg *model.Registry, p *model.Project) (uint64, error) {
	paid, err := NewTokenLedger(tx).DrainTo(reg.FeeAssetID, p.EscrowVault, tx.caller)
	if err != nil {
		return 0, err
	}
	if paid != p.AuditEscrowBalance {
		logger.Warningf("Escrow vault of '%s' held %d but record shows %d", p.ProjectID, paid, p.AuditEscrowBalance)
	}
	p.AuditEscrowBalance = 0
	return paid, nil
}

type verificationDataArgs struct {
	SatelliteDataHash string `json:"satelliteDataHash"`
	IoTDataHash       string `json:"iotDataHash"`
	ACVAReportCID     string `json:"acvaReportCid"`
}

// VerifyProject confirms the carbon quantity, sets Verified and releases the escrow to the caller.
func (s *CarbonRegistryContract) VerifyProject(ctx contractapi.TransactionContextInterface, projectID string, verifiedTons uint64, qualityRating uint8, verificationDataJSON string) (*model.Project, error) {
	logger.Infof("Chaincode Call: VerifyProject '%s' tons=%d rating=%d", projectID, verifiedTons, qualityRating)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, err
	}
	p, err := loadProject(tx, projectID)
	if err != nil {
		return nil, err
	}
	vRec, err := requireProjectVerifier(tx, p)
	if err != nil {
		return nil, err
	}
	if err := requireReviewable(p); err != nil {
		return nil, err
	}
	if verifiedTons == 0 || verifiedTons > p.EstimatedCarbonTons {
		return nil, newError(CodeInvalidCarbonMeasurement, "verified tons %d must be within 1..%d", verifiedTons, p.EstimatedCarbonTons)
	}
	if err := validateQualityRating(qualityRating); err != nil {
		return nil, err
	}
	var vd verificationDataArgs
	if strings.TrimSpace(verificationDataJSON) != "" {
		if err := json.Unmarshal([]byte(verificationDataJSON), &vd); err != nil {
			return nil, newError(CodeInvalidInput, "invalid verificationDataJSON: %v", err)
		}
	}
	for field, v := range map[string]string{"satelliteDataHash": vd.SatelliteDataHash, "iotDataHash": vd.IoTDataHash, "acvaReportCid": vd.ACVAReportCID} {
		if err := validateOptionalString(v, "verificationData."+field, maxStringInputLength); err != nil {
			return nil, err
		}
	}

	paid, err := releaseEscrow(tx, reg, p)
	if err != nil {
		return nil, err
	}
	p.Status = model.StatusVerified
	p.CarbonTonsVerified = verifiedTons
	p.AvailableQuantity = verifiedTons
	p.QualityRating = qualityRating
	p.Verifier = tx.caller
	p.VerifiedAt = tx.now
	p.VerificationData = model.VerificationData{
		SatelliteDataHash:    vd.SatelliteDataHash,
		IoTDataHash:          vd.IoTDataHash,
		ACVAReportCID:        vd.ACVAReportCID,
		LastVerificationDate: tx.now,
	}
	if err := saveProject(tx, p); err != nil {
		return nil, err
	}
	if err := creditVerification(tx, vRec); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditProjectVerified, projectID, true, fmt.Sprintf("tons=%d rating=%d escrowPaid=%d", verifiedTons, qualityRating, paid), nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "ProjectVerified", p, map[string]interface{}{"verifiedTons": verifiedTons, "escrowPaid": paid})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logger.Infof("Project '%s' verified at %d tons by '%s'", projectID, verifiedTons, tx.caller)
	return p, nil
}

// RejectProject sets Rejected. The escrow still pays the reviewer.
func (s *CarbonRegistryContract) RejectProject(ctx contractapi.TransactionContextInterface, projectID, reason string) (*model.Project, error) {
	logger.Infof("Chaincode Call: RejectProject '%s'", projectID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, err
	}
	p, err := loadProject(tx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := requireProjectVerifier(tx, p); err != nil {
		return nil, err
	}
	if err := requireReviewable(p); err != nil {
		return nil, err
	}
	if err := validateOptionalString(reason, "reason", maxDescriptionLength); err != nil {
		return nil, err
	}
	paid, err := releaseEscrow(tx, reg, p)
	if err != nil {
		return nil, err
	}
	p.Status = model.StatusRejected
	p.Verifier = tx.caller
	p.RejectionReason = reason
	if err := saveProject(tx, p); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditProjectRejected, projectID, true, reason, nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "ProjectRejected", p, map[string]interface{}{"reason": reason, "escrowPaid": paid})
	return p, tx.commit()
}

// ApproveProjectCompliance records the national registry approval of a project.
func (s *CarbonRegistryContract) ApproveProjectCompliance(ctx contractapi.TransactionContextInterface, projectID, cctsRegistryID string, exportLimit uint64, loaIssued bool) (*model.Project, error) {
	logger.Infof("Chaincode Call: ApproveProjectCompliance '%s'", projectID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, err
	}
	if reg.GovernmentAuthority != tx.caller {
		if _, err := NewIdentityManager(tx).RequirePermission(model.PermApproveCompliance); err != nil {
			return nil, err
		}
	}
	p, err := loadProject(tx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.StatusRejected {
		return nil, newError(CodeComplianceValidationFailed, "project '%s' was rejected", projectID)
	}
	if strings.TrimSpace(cctsRegistryID) == "" || cctsRegistryID != p.ProjectID {
		return nil, newError(CodeComplianceValidationFailed, "registry id '%s' does not match project '%s'", cctsRegistryID, projectID)
	}
	p.Compliance = model.ComplianceState{
		CCTSRegistryID:           cctsRegistryID,
		LoAIssued:                loaIssued,
		DoubleCountingTrackingID: fmt.Sprintf("%s_%s_%s", p.ProjectID, cctsRegistryID, p.Location.CountryCode),
		AuditStatus:              model.ComplianceApproved,
		AuthorizedExportLimit:    exportLimit,
		ApprovedBy:               tx.caller,
		ApprovedAt:               tx.now,
	}
	if err := saveProject(tx, p); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditComplianceApproved, projectID, true, fmt.Sprintf("exportLimit=%d loa=%t", exportLimit, loaIssued), nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "ComplianceApproved", p, map[string]interface{}{"exportLimit": exportLimit, "loaIssued": loaIssued})
	return p, tx.commit()
}

type monitoringArgs struct {
	SatelliteDataHash string `json:"satelliteDataHash"`
	IoTDataHash       string `json:"iotDataHash"`
	HealthScore       uint8  `json:"healthScore"`
	Notes             string `json:"notes"`
}

// SubmitMonitoringData stores a monitoring record. A low health score puts a verified project under monitoring.
func (s *CarbonRegistryContract) SubmitMonitoringData(ctx contractapi.TransactionContextInterface, projectID, dataJSON string) (*model.MonitoringRecord, error) {
	logger.Infof("Chaincode Call: SubmitMonitoringData '%s'", projectID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireNotPaused(tx); err != nil {
		return nil, err
	}
	p, err := loadProject(tx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Owner != tx.caller {
		if _, err := NewIdentityManager(tx).RequirePermission(model.PermVerifyProject); err != nil {
			return nil, err
		}
	}
	var args monitoringArgs
	if err := json.Unmarshal([]byte(dataJSON), &args); err != nil {
		return nil, newError(CodeInvalidInput, "invalid monitoring dataJSON: %v", err)
	}
	if args.HealthScore > 100 {
		return nil, newError(CodeInvalidInput, "healthScore %d exceeds 100", args.HealthScore)
	}
	if err := validateOptionalString(args.Notes, "notes", maxDescriptionLength); err != nil {
		return nil, err
	}
	rec := &model.MonitoringRecord{
		ObjectType:        monitoringObjectType,
		ProjectID:         projectID,
		TxID:              tx.txID,
		SubmittedBy:       tx.caller,
		SatelliteDataHash: args.SatelliteDataHash,
		IoTDataHash:       args.IoTDataHash,
		HealthScore:       args.HealthScore,
		Notes:             args.Notes,
		SubmittedAt:       tx.now,
	}
	key, err := tx.key(monitoringObjectType, projectID, tx.txID)
	if err != nil {
		return nil, err
	}
	if err := tx.putJSON(key, rec); err != nil {
		return nil, err
	}
	p.HealthScore = args.HealthScore
	if p.Status == model.StatusVerified && args.HealthScore < monitoringHealthThreshold {
		p.Status = model.StatusMonitoring
		logger.Warningf("Project '%s' health score %d is critical, status set to %s", projectID, args.HealthScore, p.Status)
	}
	if err := saveProject(tx, p); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditMonitoringSubmitted, projectID, true, fmt.Sprintf("healthScore=%d", args.HealthScore), nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "MonitoringDataSubmitted", p, map[string]interface{}{"healthScore": args.HealthScore})
	return rec, tx.commit()
}

// ExpireProject ends the crediting period of a verified project.
func (s *CarbonRegistryContract) ExpireProject(ctx contractapi.TransactionContextInterface, projectID string) (*model.Project, error) {
	logger.Infof("Chaincode Call: ExpireProject '%s'", projectID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireNotPaused(tx); err != nil {
		return nil, err
	}
	if err := NewIdentityManager(tx).RequireAdmin(); err != nil {
		return nil, err
	}
	p, err := loadProject(tx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.StatusVerified && p.Status != model.StatusMonitoring {
		return nil, newError(CodeProjectNotVerified, "project '%s' is %s", projectID, p.Status)
	}
	p.Status = model.StatusExpired
	if err := saveProject(tx, p); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditProjectExpired, projectID, true, "", nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "ProjectExpired", p, nil)
	return p, tx.commit()
}

type impactReportArgs struct {
	ReportingPeriodStartStr    string   `json:"reportingPeriodStart"`
	ReportingPeriodEndStr      string   `json:"reportingPeriodEnd"`
	CarbonSequestered          uint64   `json:"carbonSequestered"`
	EcosystemHealthImprovement float64  `json:"ecosystemHealthImprovement"`
	CommunityBenefits          string   `json:"communityBenefits"`
	EconomicImpact             uint64   `json:"economicImpact"`
	SDGContributions           []uint32 `json:"sdgContributions"`
	VerificationReportCID      string   `json:"verificationReportCid"`
}

// GenerateImpactReport stores one impact report per reporting period end.
func (s *CarbonRegistryContract) GenerateImpactReport(ctx contractapi.TransactionContextInterface, projectID, reportJSON string) (*model.ImpactReport, error) {
	logger.Infof("Chaincode Call: GenerateImpactReport '%s'", projectID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireNotPaused(tx); err != nil {
		return nil, err
	}
	p, err := loadProject(tx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Owner != tx.caller && p.Verifier != tx.caller {
		return nil, newError(CodePermissions, "only the owner or verifier of '%s' may report impact", projectID)
	}
	if p.Status != model.StatusVerified && p.Status != model.StatusMonitoring {
		return nil, newError(CodeProjectNotVerified, "project '%s' is %s", projectID, p.Status)
	}
	var args impactReportArgs
	if err := json.Unmarshal([]byte(reportJSON), &args); err != nil {
		return nil, newError(CodeInvalidInput, "invalid reportJSON: %v", err)
	}
	start, err := parseDateString(args.ReportingPeriodStartStr, "reportingPeriodStart", true)
	if err != nil {
		return nil, err
	}
	end, err := parseDateString(args.ReportingPeriodEndStr, "reportingPeriodEnd", true)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, newError(CodeInvalidInput, "reportingPeriodEnd must be after reportingPeriodStart")
	}
	if err := validateOptionalString(args.CommunityBenefits, "communityBenefits", maxDescriptionLength); err != nil {
		return nil, err
	}
	if err := validateOptionalString(args.VerificationReportCID, "verificationReportCid", maxStringInputLength); err != nil {
		return nil, err
	}
	if len(args.SDGContributions) > 17 {
		return nil, newError(CodeInvalidInput, "sdgContributions lists more than 17 goals")
	}
	for _, g := range args.SDGContributions {
		if g < 1 || g > 17 {
			return nil, newError(CodeInvalidInput, "sdg goal %d is outside 1..17", g)
		}
	}

	key, err := tx.key(impactObjectType, projectID, end.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	exists, err := tx.exists(key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(CodeAlreadyExists, "impact report for '%s' ending %s already exists", projectID, args.ReportingPeriodEndStr)
	}
	report := &model.ImpactReport{
		ObjectType:                 impactObjectType,
		ProjectID:                  projectID,
		ReportingPeriodStart:       start,
		ReportingPeriodEnd:         end,
		CarbonSequestered:          args.CarbonSequestered,
		EcosystemHealthImprovement: args.EcosystemHealthImprovement,
		CommunityBenefits:          args.CommunityBenefits,
		EconomicImpact:             args.EconomicImpact,
		SDGContributions:           args.SDGContributions,
		VerificationReportCID:      args.VerificationReportCID,
		SubmittedBy:                tx.caller,
		SubmittedAt:                tx.now,
	}
	if report.SDGContributions == nil {
		report.SDGContributions = []uint32{}
	}
	if err := tx.putJSON(key, report); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditImpactReported, projectID, true, "period ending "+args.ReportingPeriodEndStr, nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "ImpactReportGenerated", p, map[string]interface{}{"carbonSequestered": args.CarbonSequestered})
	return report, tx.commit()
}
