package model

import "time"

// BasisPointsDenominator is the fee scale of liquidity pools.
const BasisPointsDenominator = 10000

// LiquidityPool is a constant-product pool of the credit against a quote asset.
// Reserves are the balances of the two vault holders.
type LiquidityPool struct {
	ObjectType     string    `json:"objectType"` // "LiquidityPool"
	PoolID         string    `json:"poolId"`
	Authority      string    `json:"authority"`
	CreditAssetID  string    `json:"creditAssetId"`
	QuoteAssetID   string    `json:"quoteAssetId"`
	CreditVault    string    `json:"creditVault"`
	QuoteVault     string    `json:"quoteVault"`
	LPAssetID      string    `json:"lpAssetId"`
	FeeBasisPoints uint32    `json:"feeBasisPoints"` // Immutable after creation
	TotalLiquidity uint64    `json:"totalLiquidity"` // LP shares outstanding
	CreatedAt      time.Time `json:"createdAt"`
}

// PoolView is a pool together with its live reserves.
type PoolView struct {
	Pool                 *LiquidityPool `json:"pool"`
	CreditReserve        uint64         `json:"creditReserve"`
	QuoteReserve         uint64         `json:"quoteReserve"`
	CreditReserveDisplay string         `json:"creditReserveDisplay"`
	QuoteReserveDisplay  string         `json:"quoteReserveDisplay"`
}

// LiquidityResult reports what an add or remove actually moved.
type LiquidityResult struct {
	PoolID       string `json:"poolId"`
	Shares       uint64 `json:"shares"`
	CreditAmount uint64 `json:"creditAmount"`
	QuoteAmount  uint64 `json:"quoteAmount"`
}

// SwapResult reports a swap or a swap quote.
type SwapResult struct {
	PoolID        string `json:"poolId"`
	InputAssetID  string `json:"inputAssetId"`
	OutputAssetID string `json:"outputAssetId"`
	AmountIn      uint64 `json:"amountIn"`
	AmountInAfter uint64 `json:"amountInAfterFee"`
	AmountOut     uint64 `json:"amountOut"`
}
