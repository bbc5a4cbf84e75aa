package contract

import (
	"testing"
	"time"

	"carbonregistry/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueTransferRetireScenario(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)

	p, err := h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 600)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), p.TokensMinted)
	assert.Equal(t, uint64(600), p.CreditsIssued)
	assert.Equal(t, uint64(600), h.balance(creditAsset, ownerID))

	require.NoError(t, h.cc.TransferCredits(h.as(ownerID), investorID, 200))
	assert.Equal(t, uint64(400), h.balance(creditAsset, ownerID))
	assert.Equal(t, uint64(200), h.balance(creditAsset, investorID))

	rec, err := h.cc.RetireCredits(h.as(investorID), 100, "offset-2025")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), rec.Amount)
	assert.Equal(t, retirementCertificateID(investorID, "offset-2025"), rec.CertificateAssetID)
	assert.NotEmpty(t, rec.CertificateSerial)

	assert.Equal(t, uint64(100), h.balance(creditAsset, investorID))
	assert.Equal(t, uint64(1), h.balance(rec.CertificateAssetID, investorID))

	p = h.project("P1")
	assert.Equal(t, uint64(600), p.TokensMinted, "transfers and retirements leave issuance counters alone")
	assert.Equal(t, uint64(600), p.CreditsIssued)

	credit, err := h.cc.GetAsset(h.as(investorID), creditAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), credit.Supply)

	cert, err := h.cc.GetAsset(h.as(investorID), rec.CertificateAssetID)
	require.NoError(t, err)
	assert.Equal(t, model.AssetCertificate, cert.Kind)
	assert.Empty(t, cert.Authority, "certificate minting is closed")
	assert.True(t, cert.NonTransferable)

	err = h.cc.TransferAsset(h.as(investorID), rec.CertificateAssetID, traderID, 1)
	assert.ErrorIs(t, err, ErrNonTransferable)

	stored, err := h.cc.GetRetirement(h.as(adminID), investorID, "offset-2025")
	require.NoError(t, err)
	assert.Equal(t, rec.CertificateSerial, stored.CertificateSerial)
}

func TestMintCapacity(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 700)

	_, err := h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 701)
	assert.ErrorIs(t, err, ErrExceedsVerifiedCapacity)
	_, err = h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.cc.MintVerifiedCredits(h.as(investorID), "P1", "", 1)
	assert.ErrorIs(t, err, ErrPermissions)

	_, err = h.cc.MintVerifiedCredits(h.as(adminID), "P1", investorID, 300)
	require.NoError(t, err)
	_, err = h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 400)
	require.NoError(t, err)

	p := h.project("P1")
	assert.Equal(t, p.CarbonTonsVerified, p.CreditsIssued)
	assert.LessOrEqual(t, p.TokensMinted, p.CreditsIssued)

	_, err = h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 1)
	assert.ErrorIs(t, err, ErrExceedsVerifiedCapacity)

	reg, err := h.cc.GetRegistry(h.as(adminID))
	require.NoError(t, err)
	assert.Equal(t, uint64(700), reg.TotalCreditsIssued)
}

func TestMintCapacityScalesWithDecimals(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.cc.InitializeRegistry(h.as(adminID), creditAsset, 3, feeAsset, govID, minFee))
	h.registerSelf(ownerID, model.RoleUser)
	h.registerSelf(verifierID, model.RoleValidator)
	h.verifiedProject("P1", 5, 5, 10, 2)

	_, err := h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 2001)
	assert.ErrorIs(t, err, ErrExceedsVerifiedCapacity)
	_, err = h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 2000)
	require.NoError(t, err)
}

func TestBatchMintIsAllOrNothing(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)

	before := h.stateSize()
	_, err := h.cc.BatchMintCredits(h.as(ownerID), "P1", []string{investorID, traderID}, []uint64{600, 500})
	assert.ErrorIs(t, err, ErrExceedsVerifiedCapacity)
	assert.Equal(t, before, h.stateSize())
	assert.Zero(t, h.balance(creditAsset, investorID))

	_, err = h.cc.BatchMintCredits(h.as(ownerID), "P1", []string{investorID, " "}, []uint64{1, 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.cc.BatchMintCredits(h.as(ownerID), "P1", []string{investorID}, []uint64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, before, h.stateSize())

	p, err := h.cc.BatchMintCredits(h.as(ownerID), "P1", []string{investorID, traderID, ownerID}, []uint64{300, 0, 200})
	require.NoError(t, err)
	assert.Equal(t, uint64(500), p.TokensMinted)
	assert.Equal(t, uint64(300), h.balance(creditAsset, investorID))
	assert.Zero(t, h.balance(creditAsset, traderID))
	assert.Equal(t, uint64(200), h.balance(creditAsset, ownerID))
	ev := h.lastEvent()
	assert.Equal(t, "CreditsBatchMinted", ev.Name)
	assert.EqualValues(t, 2, ev.Payload["recipients"])
}

func TestMintRequiresComplianceWhenEnabled(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)
	enableComplianceGate(t, h)

	_, err := h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 10)
	assert.ErrorIs(t, err, ErrComplianceNotApproved)

	_, err = h.cc.ApproveProjectCompliance(h.as(govID), "P1", "P1", 1000, true)
	require.NoError(t, err)
	_, err = h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 10)
	require.NoError(t, err)
}

func TestTransferAndRetireNeedPermissions(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)
	_, err := h.cc.MintVerifiedCredits(h.as(ownerID), "P1", verifierID, 50)
	require.NoError(t, err)

	err = h.cc.TransferCredits(h.as(verifierID), investorID, 10)
	assert.ErrorIs(t, err, ErrPermissions)
	_, err = h.cc.RetireCredits(h.as(verifierID), 10, "r1")
	assert.ErrorIs(t, err, ErrPermissions)

	err = h.cc.TransferCredits(h.as(investorID), ownerID, 1)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	_, err = h.cc.RetireCredits(h.as(investorID), 1, "r1")
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestRetirementIDIsSingleUse(t *testing.T) {
	h := standardSetup(t)
	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)
	_, err := h.cc.MintVerifiedCredits(h.as(ownerID), "P1", "", 50)
	require.NoError(t, err)

	_, err = h.cc.RetireCredits(h.as(ownerID), 10, "r1")
	require.NoError(t, err)
	_, err = h.cc.RetireCredits(h.as(ownerID), 10, "r1")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, uint64(40), h.balance(creditAsset, ownerID))
}

// enableComplianceGate turns on ComplianceRequiredForMint through a one-admin multisig.
func enableComplianceGate(t *testing.T, h *harness) {
	t.Helper()
	_, err := h.cc.InitializeMultisig(h.as(adminID), []string{adminID}, 1)
	require.NoError(t, err)
	prop, err := h.cc.CreateProposal(h.as(adminID), string(model.ProposalUpdateRegistry), "", `{"complianceRequiredForMint":true}`, 0)
	require.NoError(t, err)
	_, err = h.cc.ApproveProposal(h.as(adminID), prop.ID)
	require.NoError(t, err)
	_, err = h.cc.ExecuteProposal(h.as(adminID), prop.ID)
	require.NoError(t, err)
}

func TestDerivedAddressesRefuseDeposits(t *testing.T) {
	h := marketSetup(t)
	expiry := h.clock.Add(30 * 24 * time.Hour).Format(time.RFC3339)
	l, err := h.cc.CreateMarketplaceListing(h.as(ownerID), listingJSON("lot-1", "P1", 100, 5, quoteAsset, expiry))
	require.NoError(t, err)

	err = h.cc.TransferCredits(h.as(ownerID), l.Vault, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.cc.MintVerifiedCredits(h.as(ownerID), "P1", l.Vault, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.cc.BatchMintCredits(h.as(ownerID), "P1", []string{investorID, l.Vault}, []uint64{1, 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, uint64(100), h.balance(creditAsset, l.Vault))

	l, err = h.cc.BuyMarketplaceListing(h.as(investorID), l.ListingID, 100)
	require.NoError(t, err, "the final purchase closes the vault")
	assert.False(t, l.IsActive)

	h.registeredProject("P2", 10, 10, 50)
	h.fund(feeAsset, ownerID, minFee+5)
	p, err := h.cc.InitializeVerification(h.as(ownerID), "P2", minFee, verifierID)
	require.NoError(t, err)
	err = h.cc.TransferAsset(h.as(ownerID), feeAsset, p.EscrowVault, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	err = h.cc.IssueAsset(h.as(adminID), feeAsset, p.EscrowVault, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, uint64(minFee), h.balance(feeAsset, p.EscrowVault))

	paidBefore := h.balance(feeAsset, verifierID)
	_, err = h.cc.VerifyProject(h.as(verifierID), "P2", 50, 3, `{"satelliteDataHash":"sat-2"}`)
	require.NoError(t, err)
	assert.Equal(t, paidBefore+minFee, h.balance(feeAsset, verifierID))

	pool, err := h.cc.InitializePool(h.as(adminID), creditAsset, quoteAsset, 30)
	require.NoError(t, err)
	err = h.cc.TransferCredits(h.as(ownerID), pool.CreditVault, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	err = h.cc.TransferAsset(h.as(investorID), quoteAsset, pool.QuoteVault, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	err = h.cc.IssueAsset(h.as(adminID), quoteAsset, pool.QuoteVault, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, h.balance(creditAsset, pool.CreditVault))
	assert.Zero(t, h.balance(quoteAsset, pool.QuoteVault))
}
