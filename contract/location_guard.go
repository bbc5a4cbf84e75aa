package contract

import (
	"fmt"
	"math"

	"carbonregistry/model"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// locationCellDegrees is the grid size of a fingerprint cell, roughly 500 m at the equator.
const locationCellDegrees = 0.005

// locationFingerprint maps a coordinate to the double-SHA256 of its grid cell.
// Two coordinates in the same cell share a fingerprint.
func locationFingerprint(lat, lng float64) string {
	cellLat := int64(math.Floor(lat / locationCellDegrees))
	cellLng := int64(math.Floor(lng / locationCellDegrees))
	return chainhash.DoubleHashH([]byte(fmt.Sprintf("cell:%d:%d", cellLat, cellLng))).String()
}

func (tx *ledgerTx) locationClaim(fingerprint string) (*model.LocationClaim, error) {
	key, err := tx.key(locationObjectType, fingerprint)
	if err != nil {
		return nil, err
	}
	var claim model.LocationClaim
	found, err := tx.getJSON(key, &claim)
	if err != nil || !found {
		return nil, err
	}
	return &claim, nil
}

// claimLocation appends fingerprint to the double-issuance set. A fingerprint is claimed at most once.
func claimLocation(tx *ledgerTx, fingerprint, projectID string) error {
	existing, err := tx.locationClaim(fingerprint)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Warningf("Location %s already claimed by project '%s'", fingerprint, existing.ProjectID)
		return newError(CodeDuplicateLocation, "location is already claimed by project '%s'", existing.ProjectID)
	}
	key, err := tx.key(locationObjectType, fingerprint)
	if err != nil {
		return err
	}
	return tx.putJSON(key, &model.LocationClaim{
		ObjectType:  locationObjectType,
		Fingerprint: fingerprint,
		ProjectID:   projectID,
		ClaimedBy:   tx.caller,
		ClaimedAt:   tx.now,
	})
}

// GetLocationClaim returns the claim covering a coordinate, or NotFound when the cell is free.
func (s *CarbonRegistryContract) GetLocationClaim(ctx contractapi.TransactionContextInterface, latitude, longitude float64) (*model.LocationClaim, error) {
	logger.Debugf("Chaincode Call: GetLocationClaim %f,%f", latitude, longitude)
	if err := validateCoordinates(latitude, longitude, "location"); err != nil {
		return nil, err
	}
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	claim, err := tx.locationClaim(locationFingerprint(latitude, longitude))
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, newError(CodeNotFound, "no project claims this location")
	}
	return claim, nil
}
