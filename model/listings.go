package model

import "time"

// Listing is a fixed-price sale backed 1:1 by an escrow vault of credits.
type Listing struct {
	ObjectType             string      `json:"objectType"` // "Listing"
	ListingID              string      `json:"listingId"`
	ListingRef             string      `json:"listingRef"` // Seller-chosen reference, part of the derived id
	Seller                 string      `json:"seller"`
	ProjectID              string      `json:"projectId"`
	VintageYear            uint32      `json:"vintageYear"`
	QuantityAvailable      uint64      `json:"quantityAvailable"` // Equals the vault balance while active
	SoldQuantity           uint64      `json:"soldQuantity"`
	PricePerTon            uint64      `json:"pricePerTon"` // Currency base units per credit base unit
	CurrencyAssetID        string      `json:"currencyAssetId"`
	Vault                  string      `json:"vault"`
	QualityRating          uint8       `json:"qualityRating"`
	CoBenefits             []CoBenefit `json:"coBenefits"`
	CertificationStandards []string    `json:"certificationStandards"`
	ListingDate            time.Time   `json:"listingDate"`
	ExpiryDate             time.Time   `json:"expiryDate"`
	IsActive               bool        `json:"isActive"`
	ClosedAt               time.Time   `json:"closedAt"`
}
