package model

import "time"

// AssetKind tells what an asset is used for.
type AssetKind string

const (
	AssetCredit      AssetKind = "Credit"
	AssetQuote       AssetKind = "Quote"
	AssetFee         AssetKind = "Fee"
	AssetLPShare     AssetKind = "LPShare"
	AssetCertificate AssetKind = "Certificate"
)

// Asset is a fungible token class kept on this ledger.
type Asset struct {
	ObjectType      string    `json:"objectType"` // "Asset"
	AssetID         string    `json:"assetId"`
	Symbol          string    `json:"symbol"`
	Kind            AssetKind `json:"kind"`
	Decimals        uint8     `json:"decimals"`
	Authority       string    `json:"authority"` // Only this address may mint. Empty means minting is closed.
	Supply          uint64    `json:"supply"`    // Always equals the sum of all balances
	NonTransferable bool      `json:"nonTransferable"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Balance is one holder account of an asset. Zero balances are not stored.
type Balance struct {
	ObjectType string `json:"objectType"` // "Balance"
	AssetID    string `json:"assetId"`
	Holder     string `json:"holder"`
	Amount     uint64 `json:"amount"`
}

// RetirementRecord is the receipt written next to a retirement certificate.
type RetirementRecord struct {
	ObjectType         string    `json:"objectType"` // "Retirement"
	Owner              string    `json:"owner"`
	RetirementID       string    `json:"retirementId"`
	Amount             uint64    `json:"amount"`
	CreditAssetID      string    `json:"creditAssetId"`
	CertificateAssetID string    `json:"certificateAssetId"`
	CertificateSerial  string    `json:"certificateSerial"`
	RetiredAt          time.Time `json:"retiredAt"`
}
