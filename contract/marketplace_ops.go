package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"carbonregistry/model"
	"carbonregistry/pkg/safemath"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var marketLogger = flogging.MustGetLogger("carbonregistry.marketplace")

func listingIDFor(projectID, seller, listingRef string) string {
	return deriveAddress("listing", projectID, seller, listingRef)
}

func loadListing(tx *ledgerTx, listingID string) (*model.Listing, error) {
	key, err := tx.key(listingObjectType, listingID)
	if err != nil {
		return nil, err
	}
	var l model.Listing
	found, err := tx.getJSON(key, &l)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newError(CodeNotFound, "listing '%s' does not exist", listingID)
	}
	return &l, nil
}

func saveListing(tx *ledgerTx, l *model.Listing) error {
	key, err := tx.key(listingObjectType, l.ListingID)
	if err != nil {
		return err
	}
	if l.CoBenefits == nil {
		l.CoBenefits = []model.CoBenefit{}
	}
	if l.CertificationStandards == nil {
		l.CertificationStandards = []string{}
	}
	return tx.putJSON(key, l)
}

func emitListingEvent(tx *ledgerTx, name string, l *model.Listing, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"listingId":         l.ListingID,
		"projectId":         l.ProjectID,
		"seller":            l.Seller,
		"quantityAvailable": l.QuantityAvailable,
		"isActive":          l.IsActive,
	}
	for k, v := range extra {
		payload[k] = v
	}
	tx.setEvent(name, payload)
}

type listingArgs struct {
	ListingRef             string            `json:"listingRef"`
	ProjectID              string            `json:"projectId"`
	Quantity               uint64            `json:"quantity"`
	PricePerTon            uint64            `json:"pricePerTon"`
	CurrencyAssetID        string            `json:"currencyAssetId"`
	ExpiryDateStr          string            `json:"expiryDate"`
	QualityRating          uint8             `json:"qualityRating"`
	CoBenefits             []model.CoBenefit `json:"coBenefits"`
	CertificationStandards []string          `json:"certificationStandards"`
}

// --- Marketplace Operations ---

// CreateMarketplaceListing escrows the seller's credits in a listing vault.
func (s *CarbonRegistryContract) CreateMarketplaceListing(ctx contractapi.TransactionContextInterface, listingJSON string) (*model.Listing, error) {
	logger.Info("Chaincode Call: CreateMarketplaceListing")
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, err
	}
	if _, err := NewIdentityManager(tx).RequirePermission(model.PermCreateListing); err != nil {
		return nil, err
	}
	var args listingArgs
	if err := json.Unmarshal([]byte(listingJSON), &args); err != nil {
		return nil, newError(CodeInvalidInput, "invalid listingJSON: %v", err)
	}
	if err := validateRequiredString(args.ListingRef, "listingRef", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := validateRequiredString(args.ProjectID, "projectId", maxStringInputLength); err != nil {
		return nil, err
	}
	if args.Quantity == 0 {
		return nil, newError(CodeInvalidInput, "quantity must be greater than zero")
	}
	if args.PricePerTon == 0 {
		return nil, newError(CodeInvalidInput, "pricePerTon must be greater than zero")
	}
	if args.QualityRating != 0 {
		if err := validateQualityRating(args.QualityRating); err != nil {
			return nil, err
		}
	}
	if err := validateCoBenefits(args.CoBenefits, "coBenefits"); err != nil {
		return nil, err
	}
	if err := validateStringArray(args.CertificationStandards, "certificationStandards", maxArrayElements, maxStringInputLength); err != nil {
		return nil, err
	}
	expiry, err := parseDateString(args.ExpiryDateStr, "expiryDate", true)
	if err != nil {
		return nil, err
	}
	if !expiry.After(tx.now) {
		return nil, newError(CodeInvalidInput, "expiryDate must be in the future")
	}

	p, err := loadProject(tx, args.ProjectID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.StatusVerified {
		return nil, newError(CodeProjectNotVerified, "project '%s' is %s", p.ProjectID, p.Status)
	}
	ledger := NewTokenLedger(tx)
	currency, err := ledger.GetAsset(args.CurrencyAssetID)
	if err != nil {
		return nil, err
	}
	if currency.AssetID == reg.CreditAssetID || currency.NonTransferable {
		return nil, newError(CodeInvalidInput, "asset '%s' cannot be used as listing currency", args.CurrencyAssetID)
	}

	listingID := listingIDFor(p.ProjectID, tx.caller, args.ListingRef)
	key, err := tx.key(listingObjectType, listingID)
	if err != nil {
		return nil, err
	}
	exists, err := tx.exists(key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(CodeAlreadyExists, "listing '%s' already exists", args.ListingRef)
	}
	vault := deriveAddress("listing-vault", listingID)
	if err := ledger.Transfer(reg.CreditAssetID, tx.caller, vault, args.Quantity); err != nil {
		return nil, err
	}
	rating := args.QualityRating
	if rating == 0 {
		rating = p.QualityRating
	}
	coBenefits := args.CoBenefits
	if len(coBenefits) == 0 {
		coBenefits = p.CoBenefits
	}
	standards := args.CertificationStandards
	if len(standards) == 0 {
		standards = p.CertificationStandards
	}
	l := &model.Listing{
		ObjectType:             listingObjectType,
		ListingID:              listingID,
		ListingRef:             args.ListingRef,
		Seller:                 tx.caller,
		ProjectID:              p.ProjectID,
		VintageYear:            p.VintageYear,
		QuantityAvailable:      args.Quantity,
		PricePerTon:            args.PricePerTon,
		CurrencyAssetID:        currency.AssetID,
		Vault:                  vault,
		QualityRating:          rating,
		CoBenefits:             coBenefits,
		CertificationStandards: standards,
		ListingDate:            tx.now,
		ExpiryDate:             expiry,
		IsActive:               true,
	}
	if err := saveListing(tx, l); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditListingCreated, listingID, true, fmt.Sprintf("project=%s quantity=%d price=%d %s", p.ProjectID, args.Quantity, args.PricePerTon, currency.AssetID), nil); err != nil {
		return nil, err
	}
	emitListingEvent(tx, "ListingCreated", l, map[string]interface{}{"pricePerTon": l.PricePerTon, "currencyAssetId": l.CurrencyAssetID})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	marketLogger.Infof("Listing '%s' created by '%s': %d credits at %d", listingID, tx.caller, args.Quantity, args.PricePerTon)
	return l, nil
}

// BuyMarketplaceListing pays the seller and releases amount credits from the vault to the buyer.
func (s *CarbonRegistryContract) BuyMarketplaceListing(ctx contractapi.TransactionContextInterface, listingID string, amount uint64) (*model.Listing, error) {
	logger.Infof("Chaincode Call: BuyMarketplaceListing '%s' amount=%d", listingID, amount)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, err
	}
	l, err := loadListing(tx, listingID)
	if err != nil {
		return nil, err
	}
	if !l.IsActive {
		return nil, newError(CodeListingInactive, "listing '%s' is closed", listingID)
	}
	if !tx.now.Before(l.ExpiryDate) {
		return nil, newError(CodeListingExpired, "listing '%s' expired at %s", listingID, l.ExpiryDate)
	}
	if amount == 0 || amount > l.QuantityAvailable {
		return nil, newError(CodeExceedsAvailableQuantity, "amount %d must be within 1..%d", amount, l.QuantityAvailable)
	}
	if tx.caller == l.Seller {
		return nil, newError(CodeInvalidInput, "sellers cannot buy their own listing")
	}
	cost, err := safemath.Mul(amount, l.PricePerTon)
	if err != nil {
		return nil, mathError(err, "listing cost")
	}
	ledger := NewTokenLedger(tx)
	if err := ledger.Transfer(l.CurrencyAssetID, tx.caller, l.Seller, cost); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(reg.CreditAssetID, l.Vault, tx.caller, amount); err != nil {
		return nil, err
	}
	l.QuantityAvailable -= amount
	if l.SoldQuantity, err = safemath.Add(l.SoldQuantity, amount); err != nil {
		return nil, mathError(err, "sold quantity")
	}
	if l.QuantityAvailable == 0 {
		if err := ledger.CloseAccount(reg.CreditAssetID, l.Vault); err != nil {
			return nil, err
		}
		l.IsActive = false
		l.ClosedAt = tx.now
	}
	if err := saveListing(tx, l); err != nil {
		return nil, err
	}
	emitListingEvent(tx, "ListingPurchased", l, map[string]interface{}{"buyer": tx.caller, "amount": amount, "cost": cost})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	marketLogger.Infof("'%s' bought %d from listing '%s' for %d", tx.caller, amount, listingID, cost)
	return l, nil
}

// CancelMarketplaceListing returns the escrowed credits to the seller and closes the listing for good.
func (s *CarbonRegistryContract) CancelMarketplaceListing(ctx contractapi.TransactionContextInterface, listingID string) (*model.Listing, error) {
	logger.Infof("Chaincode Call: CancelMarketplaceListing '%s'", listingID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := requireNotPaused(tx)
	if err != nil {
		return nil, err
	}
	l, err := loadListing(tx, strings.TrimSpace(listingID))
	if err != nil {
		return nil, err
	}
	if l.Seller != tx.caller {
		return nil, newError(CodePermissions, "only the seller may cancel listing '%s'", listingID)
	}
	if !l.IsActive {
		return nil, newError(CodeListingInactive, "listing '%s' is already closed", listingID)
	}
	returned, err := NewTokenLedger(tx).DrainTo(reg.CreditAssetID, l.Vault, l.Seller)
	if err != nil {
		return nil, err
	}
	if returned != l.QuantityAvailable {
		return nil, newError(CodeInsufficientCredits, "listing '%s' vault held %d but %d were available", listingID, returned, l.QuantityAvailable)
	}
	l.QuantityAvailable = 0
	l.IsActive = false
	l.ClosedAt = tx.now
	if err := saveListing(tx, l); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditListingCancelled, l.ListingID, true, fmt.Sprintf("returned=%d", returned), nil); err != nil {
		return nil, err
	}
	emitListingEvent(tx, "ListingCancelled", l, map[string]interface{}{"returned": returned})
	return l, tx.commit()
}

// GetListing returns a listing by id.
func (s *CarbonRegistryContract) GetListing(ctx contractapi.TransactionContextInterface, listingID string) (*model.Listing, error) {
	logger.Debugf("Chaincode Call: GetListing '%s'", listingID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	return loadListing(tx, listingID)
}
