package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"carbonregistry/model"
	"carbonregistry/pkg/safemath"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Verifier registry ---

type verifierArgs struct {
	VerifierType    string   `json:"verifierType"`
	Credentials     []string `json:"credentials"`
	Specializations []string `json:"specializations"`
}

func loadVerifierIfExists(tx *ledgerTx, fullID string) (*model.Verifier, error) {
	key, err := tx.key(verifierObjectType, fullID)
	if err != nil {
		return nil, err
	}
	var v model.Verifier
	found, err := tx.getJSON(key, &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

func saveVerifier(tx *ledgerTx, v *model.Verifier) error {
	key, err := tx.key(verifierObjectType, v.FullID)
	if err != nil {
		return err
	}
	return tx.putJSON(key, v)
}

// requireVerifierActive refuses identities whose verifier record has been suspended.
// Validators without a record are accepted.
func requireVerifierActive(tx *ledgerTx, fullID string) (*model.Verifier, error) {
	v, err := loadVerifierIfExists(tx, fullID)
	if err != nil {
		return nil, err
	}
	if v != nil && !v.IsActive {
		return nil, newError(CodeVerifierNotActive, "verifier '%s' is suspended", fullID)
	}
	return v, nil
}

// creditVerification rewards the verifier record, if any, for a completed verification.
func creditVerification(tx *ledgerTx, v *model.Verifier) error {
	if v == nil {
		return nil
	}
	var err error
	if v.VerificationCount, err = safemath.Add(v.VerificationCount, 1); err != nil {
		return mathError(err, "verification count")
	}
	if v.ReputationScore, err = safemath.Add(v.ReputationScore, model.VerificationReward); err != nil {
		return mathError(err, "reputation score")
	}
	v.LastVerifiedAt = tx.now
	return saveVerifier(tx, v)
}

// RegisterVerifier publishes the caller's verifier profile. The caller must hold VERIFY_PROJECT.
func (s *CarbonRegistryContract) RegisterVerifier(ctx contractapi.TransactionContextInterface, verifierJSON string) (*model.Verifier, error) {
	logger.Info("Chaincode Call: RegisterVerifier")
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireNotPaused(tx); err != nil {
		return nil, err
	}
	if _, err := NewIdentityManager(tx).RequirePermission(model.PermVerifyProject); err != nil {
		return nil, err
	}
	existing, err := loadVerifierIfExists(tx, tx.caller)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, newError(CodeAlreadyExists, "verifier '%s' is already registered", tx.caller)
	}

	var args verifierArgs
	if err := json.Unmarshal([]byte(verifierJSON), &args); err != nil {
		return nil, newError(CodeInvalidInput, "invalid verifierJSON: %v", err)
	}
	vType := model.VerifierType(strings.TrimSpace(args.VerifierType))
	if !model.ValidVerifierTypes[vType] {
		return nil, newError(CodeInvalidInput, "unknown verifier type '%s'", args.VerifierType)
	}
	if len(args.Credentials) == 0 || len(args.Credentials) > maxArrayElements {
		return nil, newError(CodeInvalidInput, "credentials must list 1..%d entries", maxArrayElements)
	}
	for i, c := range args.Credentials {
		if err := validateRequiredString(c, fmt.Sprintf("credentials[%d]", i), maxStringInputLength); err != nil {
			return nil, err
		}
	}
	if len(args.Specializations) > maxArrayElements {
		return nil, newError(CodeInvalidInput, "specializations has %d entries, exceeding maximum of %d", len(args.Specializations), maxArrayElements)
	}
	sectors := make([]model.ProjectSector, 0, len(args.Specializations))
	for _, sp := range args.Specializations {
		sector := model.ProjectSector(sp)
		if !model.ValidSectors[sector] {
			return nil, newError(CodeInvalidInput, "unknown sector '%s'", sp)
		}
		sectors = append(sectors, sector)
	}

	v := &model.Verifier{
		ObjectType:      verifierObjectType,
		FullID:          tx.caller,
		VerifierType:    vType,
		Credentials:     args.Credentials,
		Specializations: sectors,
		ReputationScore: model.InitialVerifierReputation,
		IsActive:        true,
		RegisteredAt:    tx.now,
	}
	if err := saveVerifier(tx, v); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditVerifierRegistered, tx.caller, true, "type "+string(vType), nil); err != nil {
		return nil, err
	}
	tx.setEvent("VerifierRegistered", map[string]interface{}{"verifier": tx.caller, "verifierType": vType})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logger.Infof("Verifier '%s' registered as %s", tx.caller, vType)
	return v, nil
}

// SetVerifierActive suspends or reinstates a verifier record. Admin only.
func (s *CarbonRegistryContract) SetVerifierActive(ctx contractapi.TransactionContextInterface, verifier string, active bool) (*model.Verifier, error) {
	logger.Infof("Chaincode Call: SetVerifierActive '%s' active=%t", verifier, active)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := NewIdentityManager(tx).RequireAdmin(); err != nil {
		return nil, err
	}
	v, err := loadVerifierIfExists(tx, strings.TrimSpace(verifier))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, newError(CodeNotFound, "verifier '%s' is not registered", verifier)
	}
	v.IsActive = active
	if err := saveVerifier(tx, v); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditVerifierStatus, v.FullID, true, fmt.Sprintf("active=%t", active), nil); err != nil {
		return nil, err
	}
	tx.setEvent("VerifierStatusChanged", map[string]interface{}{"verifier": v.FullID, "isActive": active})
	return v, tx.commit()
}

// GetVerifier returns a verifier record.
func (s *CarbonRegistryContract) GetVerifier(ctx contractapi.TransactionContextInterface, verifier string) (*model.Verifier, error) {
	logger.Debugf("Chaincode Call: GetVerifier '%s'", verifier)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	v, err := loadVerifierIfExists(tx, strings.TrimSpace(verifier))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, newError(CodeNotFound, "verifier '%s' is not registered", verifier)
	}
	return v, nil
}
