package contract

import (
	"encoding/json"
	"testing"
	"time"

	"carbonregistry/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterProject(t *testing.T) {
	h := standardSetup(t)
	p := h.registeredProject("P1", 21.9497, 89.1833, 1000)

	assert.Equal(t, model.StatusPending, p.Status)
	assert.Equal(t, ownerID, p.Owner)
	assert.Equal(t, projectAddress(ownerID, "P1"), p.Address)
	assert.Equal(t, projectEscrowVault("P1"), p.EscrowVault)
	assert.Equal(t, "P1", p.Compliance.CCTSRegistryID)
	assert.Equal(t, []model.CoBenefit{model.CoBenefitBiodiversity, model.CoBenefitCoastalProtection}, p.CoBenefits)
	assert.Equal(t, "ProjectRegistered", h.lastEvent().Name)

	stored := h.project("P1")
	assert.Equal(t, p.LocationFingerprint, stored.LocationFingerprint)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), stored.EstablishmentDate.UTC())
}

func TestRegisterProjectValidation(t *testing.T) {
	h := standardSetup(t)

	mutate := func(edit func(m map[string]interface{})) string {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(projectJSON("PX", 12.5, 77.5, 100)), &m))
		edit(m)
		raw, err := json.Marshal(m)
		require.NoError(t, err)
		return string(raw)
	}

	cases := []struct {
		name string
		json string
		want error
	}{
		{"zero estimate", mutate(func(m map[string]interface{}) { m["estimatedCarbonTons"] = 0 }), ErrInvalidCarbonMeasurement},
		{"missing registry id", mutate(func(m map[string]interface{}) { m["cctsRegistryId"] = "" }), ErrMissingRegistryID},
		{"mismatched registry id", mutate(func(m map[string]interface{}) { m["cctsRegistryId"] = "OTHER" }), ErrRegistryIDMismatch},
		{"bad latitude", mutate(func(m map[string]interface{}) {
			m["location"].(map[string]interface{})["latitude"] = 95.0
		}), ErrInvalidCoordinates},
		{"unknown sector", mutate(func(m map[string]interface{}) { m["sector"] = "Mining" }), ErrInvalidInput},
		{"unknown co-benefit", mutate(func(m map[string]interface{}) { m["coBenefits"] = []string{"Luck"} }), ErrInvalidInput},
		{"malformed", "{", ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.cc.RegisterProject(h.as(ownerID), tc.json)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := h.cc.RegisterProject(h.as(verifierID), projectJSON("PV", 1, 1, 10))
	assert.ErrorIs(t, err, ErrPermissions, "validators cannot register projects")
	_, err = h.cc.RegisterProject(h.as("x509::CN=stranger::CN=ca"), projectJSON("PS", 2, 2, 10))
	assert.ErrorIs(t, err, ErrUserNotActive)

	h.registeredProject("P1", 3, 3, 10)
	_, err = h.cc.RegisterProject(h.as(ownerID), projectJSON("P1", 4, 4, 10))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestInitializeVerification(t *testing.T) {
	h := standardSetup(t)
	h.registeredProject("P1", 21.9497, 89.1833, 1000)
	h.fund(feeAsset, ownerID, 100)

	_, err := h.cc.InitializeVerification(h.as(ownerID), "P1", minFee-1, "")
	assert.ErrorIs(t, err, ErrInsufficientVerificationFee)
	_, err = h.cc.InitializeVerification(h.as(ownerID), "P1", 0, "")
	assert.ErrorIs(t, err, ErrInsufficientVerificationFee)
	_, err = h.cc.InitializeVerification(h.as(ownerID), "P1", minFee, investorID)
	assert.ErrorIs(t, err, ErrVerifierNotActive, "a plain user cannot be assigned as verifier")
	_, err = h.cc.InitializeVerification(h.as(investorID), "P1", minFee, "")
	assert.ErrorIs(t, err, ErrPermissions)
	_, err = h.cc.InitializeVerification(h.as(ownerID), "P1", 1000, "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	p, err := h.cc.InitializeVerification(h.as(ownerID), "P1", 25, verifierID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingAudit, p.Status)
	assert.Equal(t, verifierID, p.Verifier)
	assert.Equal(t, uint64(25), p.AuditEscrowBalance)
	assert.Equal(t, uint64(25), h.balance(feeAsset, p.EscrowVault))
	assert.Equal(t, uint64(75), h.balance(feeAsset, ownerID))

	_, err = h.cc.InitializeVerification(h.as(ownerID), "P1", 25, "")
	assert.ErrorIs(t, err, ErrProjectAlreadyProcessed)
}

func TestVerifyProjectReleasesEscrow(t *testing.T) {
	h := standardSetup(t)
	h.registerSelf(verifier2ID, model.RoleValidator)
	h.registeredProject("P1", 21.9497, 89.1833, 1000)
	h.fund(feeAsset, ownerID, 30)
	_, err := h.cc.InitializeVerification(h.as(ownerID), "P1", 30, verifierID)
	require.NoError(t, err)

	_, err = h.cc.VerifyProject(h.as(verifier2ID), "P1", 900, 4, "")
	assert.ErrorIs(t, err, ErrUnauthorizedVerifier)
	_, err = h.cc.VerifyProject(h.as(ownerID), "P1", 900, 4, "")
	assert.ErrorIs(t, err, ErrPermissions)
	_, err = h.cc.VerifyProject(h.as(verifierID), "P1", 1001, 4, "")
	assert.ErrorIs(t, err, ErrInvalidCarbonMeasurement)
	_, err = h.cc.VerifyProject(h.as(verifierID), "P1", 900, 6, "")
	assert.ErrorIs(t, err, ErrInvalidQualityRating)

	p, err := h.cc.BeginReview(h.as(verifierID), "P1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderReview, p.Status)

	p, err = h.cc.VerifyProject(h.as(verifierID), "P1", 900, 5, `{"iotDataHash":"iot-7"}`)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, p.Status)
	assert.Equal(t, uint64(900), p.CarbonTonsVerified)
	assert.Equal(t, uint64(900), p.AvailableQuantity)
	assert.Equal(t, "iot-7", p.VerificationData.IoTDataHash)
	assert.Zero(t, p.AuditEscrowBalance)
	assert.Equal(t, uint64(30), h.balance(feeAsset, verifierID), "the whole escrow goes to the verifier")
	assert.Zero(t, h.balance(feeAsset, p.EscrowVault))

	_, err = h.cc.VerifyProject(h.as(verifierID), "P1", 900, 5, "")
	assert.ErrorIs(t, err, ErrProjectAlreadyProcessed)
	_, err = h.cc.RejectProject(h.as(verifierID), "P1", "late")
	assert.ErrorIs(t, err, ErrProjectAlreadyProcessed)
}

func TestAdminMayVerifyAssignedProject(t *testing.T) {
	h := standardSetup(t)
	h.registeredProject("P1", 21.9497, 89.1833, 1000)
	h.fund(feeAsset, ownerID, minFee)
	_, err := h.cc.InitializeVerification(h.as(ownerID), "P1", minFee, verifierID)
	require.NoError(t, err)

	p, err := h.cc.VerifyProject(h.as(adminID), "P1", 1000, 3, "")
	require.NoError(t, err)
	assert.Equal(t, adminID, p.Verifier)
	assert.Equal(t, uint64(minFee), h.balance(feeAsset, adminID))
}

func TestRejectProject(t *testing.T) {
	h := standardSetup(t)
	h.registeredProject("P1", 21.9497, 89.1833, 1000)
	h.fund(feeAsset, ownerID, minFee)
	_, err := h.cc.InitializeVerification(h.as(ownerID), "P1", minFee, "")
	require.NoError(t, err)

	p, err := h.cc.RejectProject(h.as(verifierID), "P1", "baseline not credible")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, p.Status)
	assert.Equal(t, "baseline not credible", p.RejectionReason)
	assert.Zero(t, p.AuditEscrowBalance)
	assert.Equal(t, uint64(minFee), h.balance(feeAsset, verifierID))

	_, err = h.cc.ApproveProjectCompliance(h.as(govID), "P1", "P1", 100, true)
	assert.ErrorIs(t, err, ErrComplianceValidationFailed)
	_, err = h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 1)
	assert.ErrorIs(t, err, ErrProjectNotVerified)
}

func TestApproveProjectCompliance(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)

	_, err := h.cc.ApproveProjectCompliance(h.as(investorID), "P1", "P1", 500, true)
	assert.ErrorIs(t, err, ErrPermissions)
	_, err = h.cc.ApproveProjectCompliance(h.as(govID), "P1", "P9", 500, true)
	assert.ErrorIs(t, err, ErrComplianceValidationFailed)

	p, err := h.cc.ApproveProjectCompliance(h.as(govID), "P1", "P1", 500, true)
	require.NoError(t, err)
	assert.Equal(t, model.ComplianceApproved, p.Compliance.AuditStatus)
	assert.Equal(t, "P1_P1_IN", p.Compliance.DoubleCountingTrackingID)
	assert.Equal(t, uint64(500), p.Compliance.AuthorizedExportLimit)
	assert.True(t, p.Compliance.LoAIssued)
	assert.Equal(t, govID, p.Compliance.ApprovedBy)
}

func TestComplianceApprovalFollowsPermissionBit(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)
	h.verifiedProject("P2", 10, 10, 50, 50)

	_, err := h.cc.AssignRole(h.as(adminID), verifier2ID, "Government", model.PermViewAuditLogs)
	require.NoError(t, err)
	_, err = h.cc.ApproveProjectCompliance(h.as(verifier2ID), "P1", "P1", 500, true)
	assert.ErrorIs(t, err, ErrPermissions, "the Government role alone is not enough")

	_, err = h.cc.UpdateRole(h.as(adminID), traderID, "User", model.UserPermissions|model.PermApproveCompliance)
	require.NoError(t, err)
	p, err := h.cc.ApproveProjectCompliance(h.as(traderID), "P1", "P1", 500, false)
	require.NoError(t, err)
	assert.Equal(t, model.ComplianceApproved, p.Compliance.AuditStatus)
	assert.Equal(t, traderID, p.Compliance.ApprovedBy)

	_, err = h.cc.ApproveProjectCompliance(h.as(govID), "P2", "P2", 50, true)
	require.NoError(t, err, "the configured authority needs no identity record")
}

func TestMonitoringMovesVerifiedProject(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)

	_, err := h.cc.SubmitMonitoringData(h.as(investorID), "P1", `{"healthScore":80}`)
	assert.ErrorIs(t, err, ErrPermissions)
	_, err = h.cc.SubmitMonitoringData(h.as(ownerID), "P1", `{"healthScore":101}`)
	assert.ErrorIs(t, err, ErrInvalidInput)

	rec, err := h.cc.SubmitMonitoringData(h.as(ownerID), "P1", `{"healthScore":80,"notes":"canopy stable"}`)
	require.NoError(t, err)
	assert.Equal(t, uint8(80), rec.HealthScore)
	assert.Equal(t, model.StatusVerified, h.project("P1").Status)

	_, err = h.cc.SubmitMonitoringData(h.as(verifierID), "P1", `{"healthScore":30,"satelliteDataHash":"sat-9"}`)
	require.NoError(t, err)
	p := h.project("P1")
	assert.Equal(t, model.StatusMonitoring, p.Status)
	assert.Equal(t, uint8(30), p.HealthScore)

	records, err := h.cc.GetMonitoringRecords(h.as(adminID), "P1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 1)
	assert.ErrorIs(t, err, ErrProjectNotVerified, "projects under monitoring cannot mint")
}

func TestExpireProject(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)

	_, err := h.cc.ExpireProject(h.as(ownerID), "P1")
	assert.ErrorIs(t, err, ErrPermissions)

	p, err := h.cc.ExpireProject(h.as(adminID), "P1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, p.Status)

	_, err = h.cc.ExpireProject(h.as(adminID), "P1")
	assert.ErrorIs(t, err, ErrProjectNotVerified)
}

func TestGenerateImpactReport(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)
	report := `{"reportingPeriodStart":"2025-01-01T00:00:00Z","reportingPeriodEnd":"2025-12-31T00:00:00Z",` +
		`"carbonSequestered":420,"ecosystemHealthImprovement":12.5,"sdgContributions":[13,14,15]}`

	_, err := h.cc.GenerateImpactReport(h.as(investorID), "P1", report)
	assert.ErrorIs(t, err, ErrPermissions)

	r, err := h.cc.GenerateImpactReport(h.as(ownerID), "P1", report)
	require.NoError(t, err)
	assert.Equal(t, []uint32{13, 14, 15}, r.SDGContributions)
	assert.Equal(t, uint64(420), r.CarbonSequestered)

	_, err = h.cc.GenerateImpactReport(h.as(verifierID), "P1", report)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	bad := `{"reportingPeriodStart":"2026-01-01T00:00:00Z","reportingPeriodEnd":"2026-06-30T00:00:00Z","sdgContributions":[18]}`
	_, err = h.cc.GenerateImpactReport(h.as(ownerID), "P1", bad)
	assert.ErrorIs(t, err, ErrInvalidInput)

	reports, err := h.cc.GetImpactReports(h.as(investorID), "P1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
}

func TestGetProjectsByStatus(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 10, 10, 100, 100)
	h.registeredProject("P2", 20, 20, 100)

	all, err := h.cc.GetProjectsByStatus(h.as(investorID), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	verified, err := h.cc.GetProjectsByStatus(h.as(investorID), string(model.StatusVerified))
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, "P1", verified[0].ProjectID)
}
