package contract

import (
	"fmt"
	"strings"

	"carbonregistry/model"
	"carbonregistry/pkg/safemath"

	"github.com/google/uuid"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Issuance ---

// mintingCapacity returns how many more base units the project may mint.
func mintingCapacity(reg *model.Registry, p *model.Project) (uint64, error) {
	scale, err := safemath.Pow10(reg.CreditDecimals)
	if err != nil {
		return 0, mathError(err, "unit scale")
	}
	ceiling, err := safemath.Mul(p.CarbonTonsVerified, scale)
	if err != nil {
		return 0, mathError(err, "verified capacity")
	}
	if p.CreditsIssued > ceiling {
		return 0, newError(CodeExceedsVerifiedCapacity, "project '%s' already issued %d over a capacity of %d", p.ProjectID, p.CreditsIssued, ceiling)
	}
	return ceiling - p.CreditsIssued, nil
}

// prepareMint loads the project and registry and checks everything a mint of total units needs.
func prepareMint(tx *ledgerTx, projectID string, total uint64) (*model.Registry, *model.Project, error) {
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, nil, err
	}
	p, err := loadProject(tx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if p.Owner != tx.caller && reg.Admin != tx.caller {
		return nil, nil, newError(CodePermissions, "only the owner of '%s' or the registry admin may mint", projectID)
	}
	if p.Status != model.StatusVerified {
		return nil, nil, newError(CodeProjectNotVerified, "project '%s' is %s", projectID, p.Status)
	}
	if reg.ComplianceRequiredForMint && p.Compliance.AuditStatus != model.ComplianceApproved {
		return nil, nil, newError(CodeComplianceNotApproved, "project '%s' has no compliance approval", projectID)
	}
	if total == 0 {
		return nil, nil, newError(CodeInvalidInput, "mint amount must be greater than zero")
	}
	capacity, err := mintingCapacity(reg, p)
	if err != nil {
		return nil, nil, err
	}
	if total > capacity {
		return nil, nil, newError(CodeExceedsVerifiedCapacity, "requested %d exceeds remaining capacity %d of '%s'", total, capacity, projectID)
	}
	return reg, p, nil
}

// recordIssuance bumps the project and registry counters. tokensMinted tracks creditsIssued exactly.
func recordIssuance(tx *ledgerTx, reg *model.Registry, p *model.Project, total uint64) error {
	var err error
	if p.CreditsIssued, err = safemath.Add(p.CreditsIssued, total); err != nil {
		return mathError(err, "credits issued")
	}
	if p.TokensMinted, err = safemath.Add(p.TokensMinted, total); err != nil {
		return mathError(err, "tokens minted")
	}
	if reg.TotalCreditsIssued, err = safemath.Add(reg.TotalCreditsIssued, total); err != nil {
		return mathError(err, "registry credits issued")
	}
	if err := saveProject(tx, p); err != nil {
		return err
	}
	return saveRegistry(tx, reg)
}

// MintVerifiedCredits issues credits of a verified project to recipient, or to the owner when recipient is empty.
func (s *CarbonRegistryContract) MintVerifiedCredits(ctx contractapi.TransactionContextInterface, projectID, recipient string, amount uint64) (*model.Project, error) {
	logger.Infof("Chaincode Call: MintVerifiedCredits '%s' amount=%d", projectID, amount)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, p, err := prepareMint(tx, projectID, amount)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(recipient) == "" {
		recipient = p.Owner
	} else if recipient, err = validateHolder(recipient, "recipient"); err != nil {
		return nil, err
	}
	if err := recordIssuance(tx, reg, p, amount); err != nil {
		return nil, err
	}
	if err := NewTokenLedger(tx).Mint(reg.CreditAssetID, recipient, amount); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditCreditsMinted, projectID, true, fmt.Sprintf("amount=%d recipient=%s", amount, recipient), nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "CreditsMinted", p, map[string]interface{}{"amount": amount, "recipient": recipient})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logger.Infof("Minted %d credits of '%s' to '%s'", amount, projectID, recipient)
	return p, nil
}

// BatchMintCredits issues credits to several recipients. Either every recipient is credited or none is.
func (s *CarbonRegistryContract) BatchMintCredits(ctx contractapi.TransactionContextInterface, projectID string, recipients []string, amounts []uint64) (*model.Project, error) {
	logger.Infof("Chaincode Call: BatchMintCredits '%s' recipients=%d", projectID, len(recipients))
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if len(recipients) != len(amounts) {
		return nil, newError(CodeInvalidInput, "%d recipients but %d amounts", len(recipients), len(amounts))
	}
	if len(recipients) == 0 || len(recipients) > maxBatchRecipients {
		return nil, newError(CodeInvalidInput, "batch must name 1..%d recipients", maxBatchRecipients)
	}
	holders := make([]string, len(recipients))
	for i, r := range recipients {
		if holders[i], err = validateHolder(r, fmt.Sprintf("recipients[%d]", i)); err != nil {
			return nil, err
		}
	}
	total, err := safemath.Sum(amounts...)
	if err != nil {
		return nil, mathError(err, "batch total")
	}
	reg, p, err := prepareMint(tx, projectID, total)
	if err != nil {
		return nil, err
	}
	if err := recordIssuance(tx, reg, p, total); err != nil {
		return nil, err
	}
	ledger := NewTokenLedger(tx)
	credited := 0
	for i, r := range holders {
		if amounts[i] == 0 {
			continue
		}
		if err := ledger.Mint(reg.CreditAssetID, r, amounts[i]); err != nil {
			return nil, fmt.Errorf("batch mint to recipient %d: %w", i, err)
		}
		credited++
	}
	if err := appendAudit(tx, model.AuditCreditsMinted, projectID, true, fmt.Sprintf("batch total=%d recipients=%d", total, credited), nil); err != nil {
		return nil, err
	}
	emitProjectEvent(tx, "CreditsBatchMinted", p, map[string]interface{}{"total": total, "recipients": credited})
	return p, tx.commit()
}

// --- Transfers ---

// TransferCredits moves credits from the caller to another holder.
func (s *CarbonRegistryContract) TransferCredits(ctx contractapi.TransactionContextInterface, to string, amount uint64) error {
	logger.Infof("Chaincode Call: TransferCredits %d to '%s'", amount, to)
	tx, err := beginTx(ctx)
	if err != nil {
		return err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return err
	}
	return transferAsset(tx, reg, reg.CreditAssetID, to, amount)
}

// TransferAsset moves any transferable asset from the caller to another holder.
func (s *CarbonRegistryContract) TransferAsset(ctx contractapi.TransactionContextInterface, assetID, to string, amount uint64) error {
	logger.Infof("Chaincode Call: TransferAsset %d of '%s' to '%s'", amount, assetID, to)
	tx, err := beginTx(ctx)
	if err != nil {
		return err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return err
	}
	return transferAsset(tx, reg, assetID, to, amount)
}

func transferAsset(tx *ledgerTx, reg *model.Registry, assetID, to string, amount uint64) error {
	if assetID == reg.CreditAssetID {
		if _, err := NewIdentityManager(tx).RequirePermission(model.PermTransferCredits); err != nil {
			return err
		}
	}
	to, err := validateHolder(to, "to")
	if err != nil {
		return err
	}
	if err := NewTokenLedger(tx).Transfer(assetID, tx.caller, to, amount); err != nil {
		return err
	}
	tx.setEvent("AssetTransferred", map[string]interface{}{"assetId": assetID, "to": to, "amount": amount})
	return tx.commit()
}

// --- Retirement ---

func retirementCertificateID(owner, retirementID string) string {
	return deriveAddress("retirement", owner, retirementID)
}

// RetireCredits burns credits and mints a single non-transferable certificate unit as the receipt.
func (s *CarbonRegistryContract) RetireCredits(ctx contractapi.TransactionContextInterface, amount uint64, retirementID string) (*model.RetirementRecord, error) {
	logger.Infof("Chaincode Call: RetireCredits %d as '%s'", amount, retirementID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, err
	}
	if _, err := NewIdentityManager(tx).RequirePermission(model.PermRetireCredits); err != nil {
		return nil, err
	}
	if err := validateRequiredString(retirementID, "retirementId", maxStringInputLength); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, newError(CodeInvalidInput, "retirement amount must be greater than zero")
	}

	ledger := NewTokenLedger(tx)
	if err := ledger.Burn(reg.CreditAssetID, tx.caller, amount); err != nil {
		return nil, err
	}
	certID := retirementCertificateID(tx.caller, retirementID)
	if _, err := ledger.CreateAsset(certID, "RETIRE-CERT", model.AssetCertificate, 0, tx.caller, true); err != nil {
		return nil, err
	}
	if err := ledger.Mint(certID, tx.caller, 1); err != nil {
		return nil, err
	}
	cert, err := ledger.GetAsset(certID)
	if err != nil {
		return nil, err
	}
	// Mint is closed once the single unit exists.
	cert.Authority = ""
	if err := ledger.putAsset(cert); err != nil {
		return nil, err
	}

	rec := &model.RetirementRecord{
		ObjectType:         retirementObjectType,
		Owner:              tx.caller,
		RetirementID:       retirementID,
		Amount:             amount,
		CreditAssetID:      reg.CreditAssetID,
		CertificateAssetID: certID,
		CertificateSerial:  uuid.NewSHA1(addressSpace, []byte(tx.txID+"|"+certID)).String(),
		RetiredAt:          tx.now,
	}
	key, err := tx.key(retirementObjectType, tx.caller, retirementID)
	if err != nil {
		return nil, err
	}
	if err := tx.putJSON(key, rec); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditCreditsRetired, certID, true, fmt.Sprintf("amount=%d retirementId=%s", amount, retirementID), nil); err != nil {
		return nil, err
	}
	tx.setEvent("CreditsRetired", map[string]interface{}{"amount": amount, "retirementId": retirementID, "certificateAssetId": certID})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logger.Infof("'%s' retired %d credits, certificate %s", tx.caller, amount, certID)
	return rec, nil
}
