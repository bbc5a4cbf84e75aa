package contract

import (
	"fmt"
	"sort"

	"carbonregistry/model"
	"carbonregistry/pkg/safemath"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var ammLogger = flogging.MustGetLogger("carbonregistry.amm")

// poolIDFor derives the pool address from the unordered asset pair.
func poolIDFor(assetA, assetB string) string {
	pair := []string{assetA, assetB}
	sort.Strings(pair)
	return deriveAddress("pool", pair...)
}

func poolVault(poolID, assetID string) string {
	return deriveAddress("pool-vault", poolID, assetID)
}

func loadPool(tx *ledgerTx, poolID string) (*model.LiquidityPool, error) {
	key, err := tx.key(poolObjectType, poolID)
	if err != nil {
		return nil, err
	}
	var pool model.LiquidityPool
	found, err := tx.getJSON(key, &pool)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newError(CodeNotFound, "pool '%s' does not exist", poolID)
	}
	return &pool, nil
}

func savePool(tx *ledgerTx, pool *model.LiquidityPool) error {
	key, err := tx.key(poolObjectType, pool.PoolID)
	if err != nil {
		return err
	}
	return tx.putJSON(key, pool)
}

// poolReserves reads the reserves from the vault balances.
func poolReserves(ledger *TokenLedger, pool *model.LiquidityPool) (rc, rq uint64, err error) {
	if rc, err = ledger.BalanceOf(pool.CreditAssetID, pool.CreditVault); err != nil {
		return 0, 0, err
	}
	if rq, err = ledger.BalanceOf(pool.QuoteAssetID, pool.QuoteVault); err != nil {
		return 0, 0, err
	}
	return rc, rq, nil
}

// swapLeg resolves which side of the pool an input asset is on.
type swapLeg struct {
	inAsset, outAsset string
	inVault, outVault string
}

func resolveSwapLeg(pool *model.LiquidityPool, inputAssetID string) (*swapLeg, error) {
	switch inputAssetID {
	case pool.CreditAssetID:
		return &swapLeg{pool.CreditAssetID, pool.QuoteAssetID, pool.CreditVault, pool.QuoteVault}, nil
	case pool.QuoteAssetID:
		return &swapLeg{pool.QuoteAssetID, pool.CreditAssetID, pool.QuoteVault, pool.CreditVault}, nil
	}
	return nil, newError(CodeInvalidInput, "asset '%s' is not traded by pool '%s'", inputAssetID, pool.PoolID)
}

func quoteSwap(ledger *TokenLedger, pool *model.LiquidityPool, inputAssetID string, amountIn uint64) (*swapLeg, *model.SwapResult, error) {
	leg, err := resolveSwapLeg(pool, inputAssetID)
	if err != nil {
		return nil, nil, err
	}
	rIn, err := ledger.BalanceOf(leg.inAsset, leg.inVault)
	if err != nil {
		return nil, nil, err
	}
	rOut, err := ledger.BalanceOf(leg.outAsset, leg.outVault)
	if err != nil {
		return nil, nil, err
	}
	effIn, out, err := swapOutput(amountIn, rIn, rOut, pool.FeeBasisPoints)
	if err != nil {
		return nil, nil, err
	}
	return leg, &model.SwapResult{
		PoolID:        pool.PoolID,
		InputAssetID:  leg.inAsset,
		OutputAssetID: leg.outAsset,
		AmountIn:      amountIn,
		AmountInAfter: effIn,
		AmountOut:     out,
	}, nil
}

// --- Exchange Operations ---

// InitializePool creates an empty constant-product pool for a credit/quote pair.
func (s *CarbonRegistryContract) InitializePool(ctx contractapi.TransactionContextInterface, creditAssetID, quoteAssetID string, feeBasisPoints uint32) (*model.LiquidityPool, error) {
	logger.Infof("Chaincode Call: InitializePool '%s'/'%s' fee=%d", creditAssetID, quoteAssetID, feeBasisPoints)
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
	if feeBasisPoints > model.BasisPointsDenominator {
		return nil, newError(CodeInvalidFee, "fee %d exceeds %d basis points", feeBasisPoints, model.BasisPointsDenominator)
	}
	if creditAssetID == quoteAssetID {
		return nil, newError(CodeInvalidInput, "pool assets must differ")
	}
	ledger := NewTokenLedger(tx)
	credit, err := ledger.GetAsset(creditAssetID)
	if err != nil {
		return nil, err
	}
	if credit.Kind != model.AssetCredit {
		return nil, newError(CodeInvalidInput, "asset '%s' is not a credit asset", creditAssetID)
	}
	quote, err := ledger.GetAsset(quoteAssetID)
	if err != nil {
		return nil, err
	}
	if quote.NonTransferable || quote.Kind == model.AssetLPShare {
		return nil, newError(CodeInvalidInput, "asset '%s' cannot be pooled", quoteAssetID)
	}

	poolID := poolIDFor(creditAssetID, quoteAssetID)
	key, err := tx.key(poolObjectType, poolID)
	if err != nil {
		return nil, err
	}
	exists, err := tx.exists(key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(CodeAlreadyExists, "pool for '%s'/'%s' already exists", creditAssetID, quoteAssetID)
	}
	lpAssetID := deriveAddress("lp", poolID)
	if _, err := ledger.CreateAsset(lpAssetID, "LP-"+credit.Symbol+"-"+quote.Symbol, model.AssetLPShare, credit.Decimals, poolID, false); err != nil {
		return nil, err
	}
	pool := &model.LiquidityPool{
		ObjectType:     poolObjectType,
		PoolID:         poolID,
		Authority:      tx.caller,
		CreditAssetID:  creditAssetID,
		QuoteAssetID:   quoteAssetID,
		CreditVault:    poolVault(poolID, creditAssetID),
		QuoteVault:     poolVault(poolID, quoteAssetID),
		LPAssetID:      lpAssetID,
		FeeBasisPoints: feeBasisPoints,
		CreatedAt:      tx.now,
	}
	if err := savePool(tx, pool); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditPoolInitialized, poolID, true, fmt.Sprintf("%s/%s fee=%d", creditAssetID, quoteAssetID, feeBasisPoints), nil); err != nil {
		return nil, err
	}
	tx.setEvent("PoolInitialized", map[string]interface{}{"poolId": poolID, "feeBasisPoints": feeBasisPoints})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	ammLogger.Infof("Pool '%s' created for %s/%s", poolID, creditAssetID, quoteAssetID)
	return pool, nil
}

// AddLiquidity deposits both assets and mints LP shares to the caller.
func (s *CarbonRegistryContract) AddLiquidity(ctx contractapi.TransactionContextInterface, poolID string, creditAmount, quoteAmount uint64) (*model.LiquidityResult, error) {
	logger.Infof("Chaincode Call: AddLiquidity '%s' credit=%d quote=%d", poolID, creditAmount, quoteAmount)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireNotPaused(tx); err != nil {
		return nil, err
	}
	pool, err := loadPool(tx, poolID)
	if err != nil {
		return nil, err
	}
	ledger := NewTokenLedger(tx)
	rc, rq, err := poolReserves(ledger, pool)
	if err != nil {
		return nil, err
	}

	var shares, pullCredit, pullQuote uint64
	if pool.TotalLiquidity == 0 {
		if shares, err = bootstrapShares(creditAmount, quoteAmount); err != nil {
			return nil, err
		}
		pullCredit, pullQuote = creditAmount, quoteAmount
	} else if shares, pullCredit, pullQuote, err = proportionalDeposit(creditAmount, quoteAmount, rc, rq, pool.TotalLiquidity); err != nil {
		return nil, err
	}

	if err := ledger.Transfer(pool.CreditAssetID, tx.caller, pool.CreditVault, pullCredit); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(pool.QuoteAssetID, tx.caller, pool.QuoteVault, pullQuote); err != nil {
		return nil, err
	}
	if err := ledger.Mint(pool.LPAssetID, tx.caller, shares); err != nil {
		return nil, err
	}
	if pool.TotalLiquidity, err = safemath.Add(pool.TotalLiquidity, shares); err != nil {
		return nil, mathError(err, "lp supply")
	}
	if err := savePool(tx, pool); err != nil {
		return nil, err
	}
	res := &model.LiquidityResult{PoolID: poolID, Shares: shares, CreditAmount: pullCredit, QuoteAmount: pullQuote}
	tx.setEvent("LiquidityAdded", map[string]interface{}{"poolId": poolID, "shares": shares, "creditAmount": pullCredit, "quoteAmount": pullQuote})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	ammLogger.Infof("'%s' added %d/%d to pool '%s' for %d shares", tx.caller, pullCredit, pullQuote, poolID, shares)
	return res, nil
}

// RemoveLiquidity burns LP shares and pays out the proportional reserves.
func (s *CarbonRegistryContract) RemoveLiquidity(ctx contractapi.TransactionContextInterface, poolID string, lpAmount uint64) (*model.LiquidityResult, error) {
	logger.Infof("Chaincode Call: RemoveLiquidity '%s' lp=%d", poolID, lpAmount)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireNotPaused(tx); err != nil {
		return nil, err
	}
	if lpAmount == 0 {
		return nil, newError(CodeLiquidityZero, "lp amount must be greater than zero")
	}
	pool, err := loadPool(tx, poolID)
	if err != nil {
		return nil, err
	}
	ledger := NewTokenLedger(tx)
	held, err := ledger.BalanceOf(pool.LPAssetID, tx.caller)
	if err != nil {
		return nil, err
	}
	if held < lpAmount {
		return nil, newError(CodeInsufficientFunds, "'%s' holds %d lp shares, needs %d", tx.caller, held, lpAmount)
	}
	rc, rq, err := poolReserves(ledger, pool)
	if err != nil {
		return nil, err
	}
	creditOut, quoteOut, err := withdrawal(lpAmount, rc, rq, pool.TotalLiquidity)
	if err != nil {
		return nil, err
	}
	if creditOut == 0 && quoteOut == 0 {
		return nil, newError(CodeLiquidityZero, "withdrawal of %d shares returns nothing", lpAmount)
	}
	if err := ledger.Burn(pool.LPAssetID, tx.caller, lpAmount); err != nil {
		return nil, err
	}
	if creditOut > 0 {
		if err := ledger.Transfer(pool.CreditAssetID, pool.CreditVault, tx.caller, creditOut); err != nil {
			return nil, err
		}
	}
	if quoteOut > 0 {
		if err := ledger.Transfer(pool.QuoteAssetID, pool.QuoteVault, tx.caller, quoteOut); err != nil {
			return nil, err
		}
	}
	pool.TotalLiquidity -= lpAmount
	if err := savePool(tx, pool); err != nil {
		return nil, err
	}
	res := &model.LiquidityResult{PoolID: poolID, Shares: lpAmount, CreditAmount: creditOut, QuoteAmount: quoteOut}
	tx.setEvent("LiquidityRemoved", map[string]interface{}{"poolId": poolID, "shares": lpAmount, "creditAmount": creditOut, "quoteAmount": quoteOut})
	return res, tx.commit()
}

// Swap trades amountIn of inputAssetId for the other pool asset.
func (s *CarbonRegistryContract) Swap(ctx contractapi.TransactionContextInterface, poolID, inputAssetID string, amountIn, minAmountOut uint64) (*model.SwapResult, error) {
	logger.Infof("Chaincode Call: Swap '%s' in=%d of '%s' min=%d", poolID, amountIn, inputAssetID, minAmountOut)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireNotPaused(tx); err != nil {
		return nil, err
	}
	pool, err := loadPool(tx, poolID)
	if err != nil {
		return nil, err
	}
	ledger := NewTokenLedger(tx)
	leg, res, err := quoteSwap(ledger, pool, inputAssetID, amountIn)
	if err != nil {
		return nil, err
	}
	if res.AmountOut == 0 || res.AmountOut < minAmountOut {
		ammLogger.Warningf("Swap on '%s' rejected: output %d below minimum %d", poolID, res.AmountOut, minAmountOut)
		return nil, newError(CodeSlippageExceeded, "output %d is below the minimum %d", res.AmountOut, minAmountOut)
	}
	if err := ledger.Transfer(leg.inAsset, tx.caller, leg.inVault, amountIn); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(leg.outAsset, leg.outVault, tx.caller, res.AmountOut); err != nil {
		return nil, err
	}
	tx.setEvent("Swapped", map[string]interface{}{"poolId": poolID, "inputAssetId": leg.inAsset, "amountIn": amountIn, "amountOut": res.AmountOut})
	return res, tx.commit()
}

// QuoteSwap previews a swap without moving anything.
func (s *CarbonRegistryContract) QuoteSwap(ctx contractapi.TransactionContextInterface, poolID, inputAssetID string, amountIn uint64) (*model.SwapResult, error) {
	logger.Debugf("Chaincode Call: QuoteSwap '%s' in=%d of '%s'", poolID, amountIn, inputAssetID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := loadPool(tx, poolID)
	if err != nil {
		return nil, err
	}
	_, res, err := quoteSwap(NewTokenLedger(tx), pool, inputAssetID, amountIn)
	return res, err
}

// GetPool returns the pool with its live reserves.
func (s *CarbonRegistryContract) GetPool(ctx contractapi.TransactionContextInterface, poolID string) (*model.PoolView, error) {
	logger.Debugf("Chaincode Call: GetPool '%s'", poolID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := loadPool(tx, poolID)
	if err != nil {
		return nil, err
	}
	ledger := NewTokenLedger(tx)
	rc, rq, err := poolReserves(ledger, pool)
	if err != nil {
		return nil, err
	}
	view := &model.PoolView{Pool: pool, CreditReserve: rc, QuoteReserve: rq}
	if credit, err := ledger.GetAsset(pool.CreditAssetID); err == nil {
		view.CreditReserveDisplay = formatAmount(rc, credit.Decimals)
	}
	if quote, err := ledger.GetAsset(pool.QuoteAssetID); err == nil {
		view.QuoteReserveDisplay = formatAmount(rq, quote.Decimals)
	}
	return view, nil
}
