package contract

import (
	"carbonregistry/model"
	"carbonregistry/pkg/safemath"

	"github.com/hyperledger/fabric/common/flogging"
)

var ledgerLogger = flogging.MustGetLogger("carbonregistry.ledger")

// TokenLedger keeps fungible assets and their holder balances.
// Asset.Supply always equals the sum of the asset's Balance records.
type TokenLedger struct {
	tx *ledgerTx
}

func NewTokenLedger(tx *ledgerTx) *TokenLedger {
	return &TokenLedger{tx: tx}
}

func (l *TokenLedger) assetKey(assetID string) (string, error) {
	return l.tx.key(assetObjectType, assetID)
}

func (l *TokenLedger) balanceKey(assetID, holder string) (string, error) {
	return l.tx.key(balanceObjectType, assetID, holder)
}

// CreateAsset registers a new asset class with zero supply.
func (l *TokenLedger) CreateAsset(assetID, symbol string, kind model.AssetKind, decimals uint8, authority string, nonTransferable bool) (*model.Asset, error) {
	key, err := l.assetKey(assetID)
	if err != nil {
		return nil, err
	}
	exists, err := l.tx.exists(key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(CodeAlreadyExists, "asset '%s' already exists", assetID)
	}
	asset := &model.Asset{
		ObjectType:      assetObjectType,
		AssetID:         assetID,
		Symbol:          symbol,
		Kind:            kind,
		Decimals:        decimals,
		Authority:       authority,
		NonTransferable: nonTransferable,
		CreatedAt:       l.tx.now,
	}
	if err := l.tx.putJSON(key, asset); err != nil {
		return nil, err
	}
	ledgerLogger.Infof("Asset '%s' (%s, %d decimals) created", assetID, kind, decimals)
	return asset, nil
}

func (l *TokenLedger) getAssetIfExists(assetID string) (*model.Asset, error) {
	key, err := l.assetKey(assetID)
	if err != nil {
		return nil, err
	}
	var asset model.Asset
	found, err := l.tx.getJSON(key, &asset)
	if err != nil || !found {
		return nil, err
	}
	return &asset, nil
}

// GetAsset returns the asset or NotFound.
func (l *TokenLedger) GetAsset(assetID string) (*model.Asset, error) {
	asset, err := l.getAssetIfExists(assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, newError(CodeNotFound, "asset '%s' does not exist", assetID)
	}
	return asset, nil
}

func (l *TokenLedger) putAsset(asset *model.Asset) error {
	key, err := l.assetKey(asset.AssetID)
	if err != nil {
		return err
	}
	return l.tx.putJSON(key, asset)
}

// BalanceOf returns the holder's balance. Closed or never-opened accounts hold zero.
func (l *TokenLedger) BalanceOf(assetID, holder string) (uint64, error) {
	key, err := l.balanceKey(assetID, holder)
	if err != nil {
		return 0, err
	}
	var bal model.Balance
	found, err := l.tx.getJSON(key, &bal)
	if err != nil || !found {
		return 0, err
	}
	return bal.Amount, nil
}

// setBalance writes the account, deleting it when the amount reaches zero.
func (l *TokenLedger) setBalance(assetID, holder string, amount uint64) error {
	key, err := l.balanceKey(assetID, holder)
	if err != nil {
		return err
	}
	if amount == 0 {
		l.tx.delState(key)
		return nil
	}
	return l.tx.putJSON(key, &model.Balance{
		ObjectType: balanceObjectType,
		AssetID:    assetID,
		Holder:     holder,
		Amount:     amount,
	})
}

func insufficientCode(asset *model.Asset) ErrorCode {
	if asset.Kind == model.AssetCredit {
		return CodeInsufficientCredits
	}
	return CodeInsufficientFunds
}

// Mint creates amount units into holder. Callers check the asset authority.
func (l *TokenLedger) Mint(assetID, holder string, amount uint64) error {
	if amount == 0 {
		return newError(CodeInvalidInput, "mint amount must be greater than zero")
	}
	asset, err := l.GetAsset(assetID)
	if err != nil {
		return err
	}
	supply, err := safemath.Add(asset.Supply, amount)
	if err != nil {
		return mathError(err, "asset supply")
	}
	bal, err := l.BalanceOf(assetID, holder)
	if err != nil {
		return err
	}
	newBal, err := safemath.Add(bal, amount)
	if err != nil {
		return mathError(err, "holder balance")
	}
	asset.Supply = supply
	if err := l.putAsset(asset); err != nil {
		return err
	}
	ledgerLogger.Debugf("Minted %d '%s' to '%s'", amount, assetID, holder)
	return l.setBalance(assetID, holder, newBal)
}

// Burn destroys amount units held by holder.
func (l *TokenLedger) Burn(assetID, holder string, amount uint64) error {
	if amount == 0 {
		return newError(CodeInvalidInput, "burn amount must be greater than zero")
	}
	asset, err := l.GetAsset(assetID)
	if err != nil {
		return err
	}
	bal, err := l.BalanceOf(assetID, holder)
	if err != nil {
		return err
	}
	if bal < amount {
		return newError(insufficientCode(asset), "'%s' holds %d '%s', needs %d", holder, bal, assetID, amount)
	}
	supply, err := safemath.Sub(asset.Supply, amount)
	if err != nil {
		return mathError(err, "asset supply")
	}
	asset.Supply = supply
	if err := l.putAsset(asset); err != nil {
		return err
	}
	ledgerLogger.Debugf("Burned %d '%s' from '%s'", amount, assetID, holder)
	return l.setBalance(assetID, holder, bal-amount)
}

// Transfer moves amount units between two holders of the same asset.
func (l *TokenLedger) Transfer(assetID, from, to string, amount uint64) error {
	if amount == 0 {
		return newError(CodeInvalidInput, "transfer amount must be greater than zero")
	}
	asset, err := l.GetAsset(assetID)
	if err != nil {
		return err
	}
	if asset.NonTransferable {
		return newError(CodeNonTransferable, "asset '%s' cannot be transferred", assetID)
	}
	fromBal, err := l.BalanceOf(assetID, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return newError(insufficientCode(asset), "'%s' holds %d '%s', needs %d", from, fromBal, assetID, amount)
	}
	if from == to {
		return nil
	}
	if err := l.setBalance(assetID, from, fromBal-amount); err != nil {
		return err
	}
	toBal, err := l.BalanceOf(assetID, to)
	if err != nil {
		return err
	}
	newTo, err := safemath.Add(toBal, amount)
	if err != nil {
		return mathError(err, "recipient balance")
	}
	return l.setBalance(assetID, to, newTo)
}

// DrainTo moves the whole balance of holder to recipient and closes the account.
// It returns the amount moved, which may be zero.
func (l *TokenLedger) DrainTo(assetID, holder, recipient string) (uint64, error) {
	bal, err := l.BalanceOf(assetID, holder)
	if err != nil || bal == 0 {
		return 0, err
	}
	if err := l.Transfer(assetID, holder, recipient, bal); err != nil {
		return 0, err
	}
	return bal, l.CloseAccount(assetID, holder)
}

// CloseAccount reclaims an empty account. A non-zero balance cannot be closed.
func (l *TokenLedger) CloseAccount(assetID, holder string) error {
	bal, err := l.BalanceOf(assetID, holder)
	if err != nil {
		return err
	}
	if bal != 0 {
		return newError(CodeInvalidInput, "account '%s' of '%s' still holds %d", holder, assetID, bal)
	}
	key, err := l.balanceKey(assetID, holder)
	if err != nil {
		return err
	}
	l.tx.delState(key)
	return nil
}
