package contract

import (
	"carbonregistry/model"
	"carbonregistry/pkg/safemath"
)

// Constant-product pool arithmetic. Every division rounds toward the pool.

// bootstrapShares prices the first deposit of an empty pool at sqrt(credit*quote).
func bootstrapShares(creditAmount, quoteAmount uint64) (uint64, error) {
	if creditAmount == 0 || quoteAmount == 0 {
		return 0, newError(CodeLiquidityZero, "both deposit amounts must be greater than zero")
	}
	shares := safemath.SqrtProduct(creditAmount, quoteAmount)
	if shares == 0 {
		return 0, newError(CodeLiquidityZero, "deposit mints no shares")
	}
	return shares, nil
}

// proportionalDeposit returns the shares minted for an offer against reserves rc/rq with supply s,
// and the exact amounts pulled for them. The pulled amounts never exceed the offer.
func proportionalDeposit(creditAmount, quoteAmount, rc, rq, s uint64) (shares, pullCredit, pullQuote uint64, err error) {
	if creditAmount == 0 || quoteAmount == 0 {
		return 0, 0, 0, newError(CodeLiquidityZero, "both deposit amounts must be greater than zero")
	}
	if rc == 0 || rq == 0 {
		return 0, 0, 0, newError(CodeLiquidityZero, "pool has shares outstanding but an empty reserve")
	}
	byCredit, err := safemath.MulDiv(creditAmount, s, rc)
	if err != nil {
		return 0, 0, 0, mathError(err, "credit share ratio")
	}
	byQuote, err := safemath.MulDiv(quoteAmount, s, rq)
	if err != nil {
		return 0, 0, 0, mathError(err, "quote share ratio")
	}
	shares = safemath.Min(byCredit, byQuote)
	if shares == 0 {
		return 0, 0, 0, newError(CodeLiquidityZero, "deposit too small to mint a share")
	}
	if pullCredit, err = safemath.MulDivCeil(shares, rc, s); err != nil {
		return 0, 0, 0, mathError(err, "credit pull")
	}
	if pullQuote, err = safemath.MulDivCeil(shares, rq, s); err != nil {
		return 0, 0, 0, mathError(err, "quote pull")
	}
	return shares, pullCredit, pullQuote, nil
}

// withdrawal returns floor(reserve*lp/s) for both sides.
func withdrawal(lp, rc, rq, s uint64) (creditOut, quoteOut uint64, err error) {
	if s == 0 {
		return 0, 0, newError(CodeLiquidityZero, "pool has no shares outstanding")
	}
	if lp > s {
		return 0, 0, newError(CodeInsufficientFunds, "lp amount %d exceeds supply %d", lp, s)
	}
	if creditOut, err = safemath.MulDiv(rc, lp, s); err != nil {
		return 0, 0, mathError(err, "credit withdrawal")
	}
	if quoteOut, err = safemath.MulDiv(rq, lp, s); err != nil {
		return 0, 0, mathError(err, "quote withdrawal")
	}
	return creditOut, quoteOut, nil
}

// swapOutput applies the fee to amountIn and quotes floor(rOut*effIn/(rIn+effIn)).
func swapOutput(amountIn, rIn, rOut uint64, feeBasisPoints uint32) (effIn, out uint64, err error) {
	if amountIn == 0 {
		return 0, 0, newError(CodeInvalidInput, "swap amount must be greater than zero")
	}
	if rIn == 0 || rOut == 0 {
		return 0, 0, newError(CodeLiquidityZero, "pool has no liquidity")
	}
	if feeBasisPoints > model.BasisPointsDenominator {
		return 0, 0, newError(CodeInvalidFee, "fee %d exceeds %d basis points", feeBasisPoints, model.BasisPointsDenominator)
	}
	effIn, err = safemath.MulDiv(amountIn, uint64(model.BasisPointsDenominator-feeBasisPoints), model.BasisPointsDenominator)
	if err != nil {
		return 0, 0, mathError(err, "fee adjustment")
	}
	denominator, err := safemath.Add(rIn, effIn)
	if err != nil {
		return 0, 0, mathError(err, "input reserve")
	}
	if out, err = safemath.MulDiv(rOut, effIn, denominator); err != nil {
		return 0, 0, mathError(err, "swap output")
	}
	return effIn, out, nil
}
