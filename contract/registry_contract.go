package contract

import (
	"fmt"

	"carbonregistry/model"
	"carbonregistry/pkg/safemath"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("carbonregistry.contract")

// Object types for composite keys, also usable as 'docType' or 'objectType' in CouchDB.
const (
	identityObjectType     = "Identity"
	registryObjectType     = "Registry"
	locationObjectType     = "LocationClaim"
	projectObjectType      = "Project"
	assetObjectType        = "Asset"
	balanceObjectType      = "Balance"
	poolObjectType         = "LiquidityPool"
	listingObjectType      = "Listing"
	multisigObjectType     = "MultisigConfig"
	proposalObjectType     = "Proposal"
	auditObjectType        = "AuditLogEntry"
	auditCounterObjectType = "AuditCounter"
	retirementObjectType   = "Retirement"
	monitoringObjectType   = "Monitoring"
	impactObjectType       = "ImpactReport"
	verifierObjectType     = "Verifier"

	registrySingletonID = "main"
)

// Constants for input validation and limits
const (
	maxStringInputLength = 256
	maxDescriptionLength = 1024
	maxArrayElements     = 50
	maxAssetDecimals     = 18
	feeAssetDecimals     = 9
	maxBatchRecipients   = 100
)

// CarbonRegistryContract issues, verifies, trades and retires carbon credits.
// @contract:CarbonRegistryContract
type CarbonRegistryContract struct {
	contractapi.Contract
}

// Instantiate is called during chaincode instantiation.
func (s *CarbonRegistryContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("CarbonRegistryContract Instantiated/Upgraded")
}

// --- Registry bootstrap ---

// InitializeRegistry creates the registry singleton, the credit and fee assets and the caller's super-admin record.
func (s *CarbonRegistryContract) InitializeRegistry(ctx contractapi.TransactionContextInterface, creditAssetID string, creditDecimals uint8, feeAssetID, governmentAuthority string, minVerificationFee uint64) error {
	logger.Infof("Chaincode Call: InitializeRegistry credit='%s' fee='%s'", creditAssetID, feeAssetID)
	tx, err := beginTx(ctx)
	if err != nil {
		return err
	}
	existing, err := loadRegistryIfExists(tx)
	if err != nil {
		return err
	}
	if existing != nil {
		return newError(CodeAlreadyExists, "registry is already initialized")
	}
	if err := validateRequiredString(creditAssetID, "creditAssetId", maxStringInputLength); err != nil {
		return err
	}
	if err := validateRequiredString(feeAssetID, "feeAssetId", maxStringInputLength); err != nil {
		return err
	}
	if creditAssetID == feeAssetID {
		return newError(CodeInvalidInput, "credit and fee assets must differ")
	}
	if creditDecimals > maxAssetDecimals {
		return newError(CodeInvalidInput, "creditDecimals %d exceeds %d", creditDecimals, maxAssetDecimals)
	}
	if _, err := safemath.Pow10(creditDecimals); err != nil {
		return mathError(err, "unit scale")
	}

	ledger := NewTokenLedger(tx)
	if _, err := ledger.CreateAsset(creditAssetID, creditAssetID, model.AssetCredit, creditDecimals, mintAuthorityAddress(), false); err != nil {
		return err
	}
	if _, err := ledger.CreateAsset(feeAssetID, feeAssetID, model.AssetFee, feeAssetDecimals, tx.caller, false); err != nil {
		return err
	}

	im := NewIdentityManager(tx)
	admin := &model.Identity{
		ObjectType:    identityObjectType,
		FullID:        tx.caller,
		MSPID:         im.callerMSPID(),
		Role:          model.RoleSuperAdmin,
		Permissions:   model.AdminPermissions,
		AssignedBy:    tx.caller,
		AssignedAt:    tx.now,
		IsActive:      true,
		RegisteredAt:  tx.now,
		LastUpdatedAt: tx.now,
	}
	if err := im.putIdentity(admin); err != nil {
		return err
	}

	reg := &model.Registry{
		ObjectType:          registryObjectType,
		Admin:               tx.caller,
		GovernmentAuthority: governmentAuthority,
		MintAuthority:       mintAuthorityAddress(),
		CreditAssetID:       creditAssetID,
		CreditDecimals:      creditDecimals,
		FeeAssetID:          feeAssetID,
		MinVerificationFee:  minVerificationFee,
		CreatedAt:           tx.now,
	}
	if err := saveRegistry(tx, reg); err != nil {
		return err
	}
	if err := appendAudit(tx, model.AuditRegistryInitialized, registrySingletonID, true, fmt.Sprintf("credit=%s decimals=%d fee=%s", creditAssetID, creditDecimals, feeAssetID), nil); err != nil {
		return err
	}
	tx.setEvent("RegistryInitialized", map[string]interface{}{"creditAssetId": creditAssetID, "feeAssetId": feeAssetID})
	if err := tx.commit(); err != nil {
		return err
	}
	logger.Infof("Registry initialized by '%s'", tx.caller)
	return nil
}

// RegisterAsset creates a quote asset whose minting authority is the calling admin.
func (s *CarbonRegistryContract) RegisterAsset(ctx contractapi.TransactionContextInterface, assetID, symbol string, decimals uint8) (*model.Asset, error) {
	logger.Infof("Chaincode Call: RegisterAsset '%s'", assetID)
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
	if err := validateRequiredString(assetID, "assetId", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := validateRequiredString(symbol, "symbol", maxStringInputLength); err != nil {
		return nil, err
	}
	if decimals > maxAssetDecimals {
		return nil, newError(CodeInvalidInput, "decimals %d exceeds %d", decimals, maxAssetDecimals)
	}
	asset, err := NewTokenLedger(tx).CreateAsset(assetID, symbol, model.AssetQuote, decimals, tx.caller, false)
	if err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditAssetRegistered, assetID, true, "symbol="+symbol, nil); err != nil {
		return nil, err
	}
	tx.setEvent("AssetRegistered", map[string]interface{}{"assetId": assetID, "symbol": symbol})
	return asset, tx.commit()
}

// IssueAsset mints a quote or fee asset. Only the asset's authority may call it.
func (s *CarbonRegistryContract) IssueAsset(ctx contractapi.TransactionContextInterface, assetID, to string, amount uint64) error {
	logger.Infof("Chaincode Call: IssueAsset %d of '%s' to '%s'", amount, assetID, to)
	tx, err := beginTx(ctx)
	if err != nil {
		return err
	}
	if _, err := requireNotPaused(tx); err != nil {
		return err
	}
	ledger := NewTokenLedger(tx)
	asset, err := ledger.GetAsset(assetID)
	if err != nil {
		return err
	}
	if asset.Kind != model.AssetQuote && asset.Kind != model.AssetFee {
		return newError(CodePermissions, "asset '%s' of kind %s cannot be issued directly", assetID, asset.Kind)
	}
	if asset.Authority != tx.caller {
		return newError(CodePermissions, "caller '%s' is not the authority of asset '%s'", tx.caller, assetID)
	}
	if to, err = validateHolder(to, "to"); err != nil {
		return err
	}
	if err := ledger.Mint(assetID, to, amount); err != nil {
		return err
	}
	if err := appendAudit(tx, model.AuditAssetIssued, assetID, true, fmt.Sprintf("to=%s amount=%d", to, amount), nil); err != nil {
		return err
	}
	tx.setEvent("AssetIssued", map[string]interface{}{"assetId": assetID, "to": to, "amount": amount})
	return tx.commit()
}

// SetEmergencyPause toggles the registry pause. The multisig emergency admin or an EMERGENCY_PAUSE holder may call it.
func (s *CarbonRegistryContract) SetEmergencyPause(ctx contractapi.TransactionContextInterface, paused bool) error {
	logger.Warningf("Chaincode Call: SetEmergencyPause paused=%t", paused)
	tx, err := beginTx(ctx)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(tx)
	if err != nil {
		return err
	}
	cfg, err := loadMultisigIfExists(tx)
	if err != nil {
		return err
	}
	if cfg == nil || cfg.EmergencyAdmin != tx.caller {
		if _, err := NewIdentityManager(tx).RequirePermission(model.PermEmergencyPause); err != nil {
			return err
		}
	}
	if err := applyPause(tx, reg, paused, nil); err != nil {
		return err
	}
	return tx.commit()
}

func applyPause(tx *ledgerTx, reg *model.Registry, paused bool, proposalID *uint64) error {
	reg.Paused = paused
	if err := saveRegistry(tx, reg); err != nil {
		return err
	}
	action := model.AuditSystemUnpaused
	event := "SystemUnpaused"
	if paused {
		action = model.AuditSystemPaused
		event = "SystemPaused"
	}
	if err := appendAudit(tx, action, registrySingletonID, true, "", proposalID); err != nil {
		return err
	}
	tx.setEvent(event, map[string]interface{}{"paused": paused})
	logger.Warningf("Registry pause set to %t by '%s'", paused, tx.caller)
	return nil
}

// --- Identity & Role Management Wrappers (Delegating to IdentityManager) ---

func (s *CarbonRegistryContract) RegisterSelf(ctx contractapi.TransactionContextInterface, role string) (*model.Identity, error) {
	logger.Infof("Chaincode Call: RegisterSelf as '%s'", role)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := requirePauseFree(tx); err != nil {
		return nil, err
	}
	idInfo, err := NewIdentityManager(tx).RegisterSelf(role)
	if err != nil {
		return nil, err
	}
	tx.setEvent("IdentityRegistered", map[string]interface{}{"fullId": idInfo.FullID, "role": idInfo.Role})
	return idInfo, tx.commit()
}

func (s *CarbonRegistryContract) AssignRole(ctx contractapi.TransactionContextInterface, identity, role string, permissions uint64) (*model.Identity, error) {
	logger.Infof("Chaincode Call: AssignRole '%s' to '%s'", role, identity)
	return s.roleChange(ctx, func(im *IdentityManager) (*model.Identity, error) {
		return im.AssignRole(identity, role, permissions)
	})
}

func (s *CarbonRegistryContract) UpdateRole(ctx contractapi.TransactionContextInterface, identity, role string, permissions uint64) (*model.Identity, error) {
	logger.Infof("Chaincode Call: UpdateRole '%s' to '%s'", identity, role)
	return s.roleChange(ctx, func(im *IdentityManager) (*model.Identity, error) {
		return im.UpdateRole(identity, role, permissions)
	})
}

func (s *CarbonRegistryContract) RevokeRole(ctx contractapi.TransactionContextInterface, identity string) (*model.Identity, error) {
	logger.Infof("Chaincode Call: RevokeRole for '%s'", identity)
	return s.roleChange(ctx, func(im *IdentityManager) (*model.Identity, error) {
		return im.RevokeRole(identity)
	})
}

func (s *CarbonRegistryContract) roleChange(ctx contractapi.TransactionContextInterface, change func(im *IdentityManager) (*model.Identity, error)) (*model.Identity, error) {
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := requirePauseFree(tx); err != nil {
		return nil, err
	}
	idInfo, err := change(NewIdentityManager(tx))
	if err != nil {
		return nil, err
	}
	tx.setEvent("RoleChanged", map[string]interface{}{"fullId": idInfo.FullID, "role": idInfo.Role, "isActive": idInfo.IsActive})
	return idInfo, tx.commit()
}

func (s *CarbonRegistryContract) GetIdentity(ctx contractapi.TransactionContextInterface, identity string) (*model.Identity, error) {
	logger.Debugf("Chaincode Call: GetIdentity for '%s'", identity)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	return NewIdentityManager(tx).GetIdentity(identity)
}

func (s *CarbonRegistryContract) GetAllIdentities(ctx contractapi.TransactionContextInterface) ([]model.Identity, error) {
	logger.Debug("Chaincode Call: GetAllIdentities")
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	return NewIdentityManager(tx).GetAllIdentities()
}

// requirePauseFree is requireNotPaused for operations that may run before the registry exists.
func requirePauseFree(tx *ledgerTx) error {
	reg, err := loadRegistryIfExists(tx)
	if err != nil {
		return err
	}
	if reg != nil && reg.Paused {
		return newError(CodeSystemPaused, "registry is paused")
	}
	return nil
}
