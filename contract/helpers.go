package contract

import (
	"fmt"
	"strings"
	"time"

	"carbonregistry/model"

	"github.com/google/uuid"
)

// --- Address derivation ---

// addressSpace seeds every derived address so they never collide with x509 identities.
var addressSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:carbonregistry:address"))

// deriveAddress returns "<namespace>:<uuid>" where the uuid is a SHA-1 name-based UUID of the parts.
// Anyone can recompute it from the namespace and component identifiers.
func deriveAddress(namespace string, parts ...string) string {
	name := namespace + "\x00" + strings.Join(parts, "\x00")
	return namespace + ":" + uuid.NewSHA1(addressSpace, []byte(name)).String()
}

func mintAuthorityAddress() string { return deriveAddress("authority", "mint") }

func projectAddress(owner, projectID string) string { return deriveAddress("project", owner, projectID) }

func projectEscrowVault(projectID string) string { return deriveAddress("escrow", projectID) }

// --- Registry access ---

func loadRegistryIfExists(tx *ledgerTx) (*model.Registry, error) {
	key, err := tx.key(registryObjectType, registrySingletonID)
	if err != nil {
		return nil, err
	}
	var reg model.Registry
	found, err := tx.getJSON(key, &reg)
	if err != nil || !found {
		return nil, err
	}
	return &reg, nil
}

func loadRegistry(tx *ledgerTx) (*model.Registry, error) {
	reg, err := loadRegistryIfExists(tx)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, newError(CodeNotFound, "registry has not been initialized")
	}
	return reg, nil
}

func saveRegistry(tx *ledgerTx, reg *model.Registry) error {
	key, err := tx.key(registryObjectType, registrySingletonID)
	if err != nil {
		return err
	}
	reg.LastUpdatedAt = tx.now
	return tx.putJSON(key, reg)
}

// requireNotPaused loads the registry and fails with SystemPaused while the emergency pause is on.
func requireNotPaused(tx *ledgerTx) (*model.Registry, error) {
	reg, err := loadRegistry(tx)
	if err != nil {
		return nil, err
	}
	if reg.Paused {
		return nil, newError(CodeSystemPaused, "registry is paused")
	}
	return reg, nil
}

// --- Validation Helper Functions ---

func validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return newError(CodeInvalidInput, "%s cannot be empty", field)
	}
	if len(input) > max {
		return newError(CodeInvalidInput, "%s exceeds max length %d", field, max)
	}
	return nil
}

// validateHolder accepts only client identities as token recipients. Derived vault and escrow
// addresses are credited by the contract alone, their balances back listing and escrow records.
func validateHolder(input, field string) (string, error) {
	if err := validateRequiredString(input, field, maxStringInputLength*2); err != nil {
		return "", err
	}
	holder := strings.TrimSpace(input)
	if !isValidX509ID(holder) {
		return "", newError(CodeInvalidInput, "%s '%s' is not a client identity", field, holder)
	}
	return holder, nil
}

func validateOptionalString(input, field string, max int) error {
	if input != "" && len(input) > max {
		return newError(CodeInvalidInput, "%s exceeds max length %d", field, max)
	}
	return nil
}

func validateStringArray(arr []string, field string, maxItems, maxItemLen int) error {
	if len(arr) > maxItems {
		return newError(CodeInvalidInput, "%s has %d items, exceeding maximum of %d", field, len(arr), maxItems)
	}
	for i, v := range arr {
		if err := validateOptionalString(v, fmt.Sprintf("%s[%d]", field, i), maxItemLen); err != nil {
			return err
		}
	}
	return nil
}

func validateCoordinates(lat, lng float64, field string) error {
	if lat < -90 || lat > 90 {
		return newError(CodeInvalidCoordinates, "%s.latitude must be between -90 and 90", field)
	}
	if lng < -180 || lng > 180 {
		return newError(CodeInvalidCoordinates, "%s.longitude must be between -180 and 180", field)
	}
	return nil
}

func validateQualityRating(rating uint8) error {
	if rating < 1 || rating > 5 {
		return newError(CodeInvalidQualityRating, "quality rating %d is outside 1..5", rating)
	}
	return nil
}

func validateCoBenefits(benefits []model.CoBenefit, field string) error {
	if len(benefits) > maxArrayElements {
		return newError(CodeInvalidInput, "%s has %d items, exceeding maximum of %d", field, len(benefits), maxArrayElements)
	}
	for _, b := range benefits {
		if !model.ValidCoBenefits[b] {
			return newError(CodeInvalidInput, "%s contains unknown co-benefit '%s'", field, b)
		}
	}
	return nil
}

func parseDateString(str, field string, required bool) (time.Time, error) {
	sTrimmed := strings.TrimSpace(str)
	if sTrimmed == "" {
		if required {
			return time.Time{}, newError(CodeInvalidInput, "%s is a required date field and cannot be empty", field)
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, sTrimmed)
	if err != nil {
		return time.Time{}, newError(CodeInvalidInput, "invalid format for %s (expected RFC3339 'YYYY-MM-DDTHH:MM:SSZ'): %v", field, err)
	}
	return t, nil
}

func ensureProjectSchemaCompliance(p *model.Project) {
	if p == nil {
		return
	}
	if p.CoBenefits == nil {
		p.CoBenefits = []model.CoBenefit{}
	}
	if p.CertificationStandards == nil {
		p.CertificationStandards = []string{}
	}
	if p.Location.Polygon == nil {
		p.Location.Polygon = []model.GeoPoint{}
	}
}
