package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"carbonregistry/model"
	"carbonregistry/pkg/safemath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var govLogger = flogging.MustGetLogger("carbonregistry.governance")

const (
	multisigSingletonID = "main"
	defaultProposalTTL  = 7 * 24 * time.Hour
	maxProposalTTL      = 90 * 24 * time.Hour
)

// --- Multisig storage ---

func loadMultisigIfExists(tx *ledgerTx) (*model.MultisigConfig, error) {
	key, err := tx.key(multisigObjectType, multisigSingletonID)
	if err != nil {
		return nil, err
	}
	var cfg model.MultisigConfig
	found, err := tx.getJSON(key, &cfg)
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}

func loadMultisig(tx *ledgerTx) (*model.MultisigConfig, error) {
	cfg, err := loadMultisigIfExists(tx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, newError(CodeNotFound, "multisig has not been initialized")
	}
	return cfg, nil
}

func saveMultisig(tx *ledgerTx, cfg *model.MultisigConfig) error {
	key, err := tx.key(multisigObjectType, multisigSingletonID)
	if err != nil {
		return err
	}
	cfg.LastUpdatedAt = tx.now
	return tx.putJSON(key, cfg)
}

func loadProposal(tx *ledgerTx, id uint64) (*model.Proposal, error) {
	key, err := tx.key(proposalObjectType, seqKey(id))
	if err != nil {
		return nil, err
	}
	var p model.Proposal
	found, err := tx.getJSON(key, &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newError(CodeNotFound, "proposal %d does not exist", id)
	}
	return &p, nil
}

func saveProposal(tx *ledgerTx, p *model.Proposal) error {
	key, err := tx.key(proposalObjectType, seqKey(p.ID))
	if err != nil {
		return err
	}
	return tx.putJSON(key, p)
}

// requireMultisigAdmin checks that the multisig is on and the caller is a member with an active admin identity.
func requireMultisigAdmin(tx *ledgerTx, cfg *model.MultisigConfig) error {
	if !cfg.IsEnabled {
		return newError(CodeMultisigDisabled, "multisig is disabled")
	}
	if !mapset.NewThreadUnsafeSet(cfg.Admins...).Contains(tx.caller) {
		return newError(CodeUnauthorizedAdmin, "'%s' is not a multisig admin", tx.caller)
	}
	idInfo, err := NewIdentityManager(tx).getIdentity(tx.caller)
	if err != nil {
		return err
	}
	if idInfo == nil || !idInfo.IsActive || !idInfo.Role.IsAdminRole() {
		return newError(CodeUnauthorizedAdmin, "'%s' has no active admin identity", tx.caller)
	}
	return nil
}

func multisigAssigner(id uint64) string {
	return "multisig:" + strconv.FormatUint(id, 10)
}

// promoteToAdmin gives target the Admin role unless it already holds an admin role.
func promoteToAdmin(im *IdentityManager, target, assignedBy string) error {
	idInfo, err := im.getIdentity(target)
	if err != nil {
		return err
	}
	if idInfo != nil && idInfo.IsActive && idInfo.Role.IsAdminRole() {
		return nil
	}
	_, err = im.applyRole(target, model.RoleAdmin, model.AdminPermissions, assignedBy, true)
	return err
}

// demoteFromAdmin drops a former multisig member to the User defaults. Revoked records stay revoked.
func demoteFromAdmin(im *IdentityManager, target, assignedBy string) error {
	idInfo, err := im.getIdentity(target)
	if err != nil {
		return err
	}
	if idInfo == nil || !idInfo.Role.IsAdminRole() {
		return nil
	}
	_, err = im.applyRole(target, model.RoleUser, model.UserPermissions, assignedBy, false)
	return err
}

func emitProposalEvent(tx *ledgerTx, name string, p *model.Proposal) {
	tx.setEvent(name, map[string]interface{}{
		"proposalId":   p.ID,
		"proposalType": p.ProposalType,
		"target":       p.Target,
		"status":       p.Status,
		"approvals":    len(p.Approvals),
		"rejections":   len(p.Rejections),
	})
}

// --- Governance Operations ---

// InitializeMultisig creates the admin set and threshold. Only the registry admin may call it, once.
func (s *CarbonRegistryContract) InitializeMultisig(ctx contractapi.TransactionContextInterface, admins []string, threshold uint32) (*model.MultisigConfig, error) {
	logger.Infof("Chaincode Call: InitializeMultisig admins=%d threshold=%d", len(admins), threshold)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry(tx)
	if err != nil {
		return nil, err
	}
	if reg.Admin != tx.caller {
		return nil, newError(CodePermissions, "only the registry admin may initialize the multisig")
	}
	existing, err := loadMultisigIfExists(tx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, newError(CodeAlreadyExists, "multisig is already initialized")
	}
	if len(admins) == 0 {
		return nil, newError(CodeInvalidInput, "at least one admin is required")
	}
	if len(admins) > model.MaxMultisigAdmins {
		return nil, newError(CodeTooManyAdmins, "%d admins exceed the limit of %d", len(admins), model.MaxMultisigAdmins)
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	ordered := make([]string, 0, len(admins))
	for i, a := range admins {
		a = strings.TrimSpace(a)
		if !isValidX509ID(a) {
			return nil, newError(CodeInvalidInput, "admins[%d] '%s' is not a valid X.509 ID format", i, a)
		}
		if !seen.Add(a) {
			return nil, newError(CodeInvalidInput, "admin '%s' is listed twice", a)
		}
		ordered = append(ordered, a)
	}
	if threshold == 0 || int(threshold) > len(ordered) {
		return nil, newError(CodeInvalidThreshold, "threshold %d must be within 1..%d", threshold, len(ordered))
	}

	im := NewIdentityManager(tx)
	for _, a := range ordered {
		if err := promoteToAdmin(im, a, "multisig:init"); err != nil {
			return nil, err
		}
	}
	cfg := &model.MultisigConfig{
		ObjectType:     multisigObjectType,
		Admins:         ordered,
		Threshold:      threshold,
		IsEnabled:      true,
		EmergencyAdmin: tx.caller,
		CreatedAt:      tx.now,
	}
	if err := saveMultisig(tx, cfg); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditMultisigInitialized, multisigSingletonID, true, fmt.Sprintf("admins=%d threshold=%d", len(ordered), threshold), nil); err != nil {
		return nil, err
	}
	tx.setEvent("MultisigInitialized", map[string]interface{}{"admins": ordered, "threshold": threshold})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	govLogger.Infof("Multisig initialized with %d admins, threshold %d", len(ordered), threshold)
	return cfg, nil
}

// CreateProposal opens a proposal. ttlSeconds of zero selects the default lifetime.
func (s *CarbonRegistryContract) CreateProposal(ctx contractapi.TransactionContextInterface, proposalType, target, payload string, ttlSeconds uint64) (*model.Proposal, error) {
	logger.Infof("Chaincode Call: CreateProposal type='%s' target='%s'", proposalType, target)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := loadMultisig(tx)
	if err != nil {
		return nil, err
	}
	if err := requireMultisigAdmin(tx, cfg); err != nil {
		return nil, err
	}
	effect, err := decodeProposalEffect(model.ProposalType(proposalType), target, payload)
	if err != nil {
		return nil, err
	}
	ttl := defaultProposalTTL
	if ttlSeconds > 0 {
		if ttlSeconds > uint64(maxProposalTTL/time.Second) {
			return nil, newError(CodeInvalidInput, "ttlSeconds %d exceeds %d", ttlSeconds, uint64(maxProposalTTL/time.Second))
		}
		ttl = time.Duration(ttlSeconds) * time.Second
	}

	p := openProposal(cfg.ProposalCount, effect, tx.caller, payload, tx.now, ttl, cfg.Threshold)
	if cfg.ProposalCount, err = safemath.Add(cfg.ProposalCount, 1); err != nil {
		return nil, mathError(err, "proposal counter")
	}
	if err := saveMultisig(tx, cfg); err != nil {
		return nil, err
	}
	if err := saveProposal(tx, p); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditProposalCreated, p.Target, true, string(p.ProposalType), &p.ID); err != nil {
		return nil, err
	}
	emitProposalEvent(tx, "ProposalCreated", p)
	if err := tx.commit(); err != nil {
		return nil, err
	}
	govLogger.Infof("Proposal %d (%s) created by '%s'", p.ID, p.ProposalType, tx.caller)
	return p, nil
}

func (s *CarbonRegistryContract) vote(ctx contractapi.TransactionContextInterface, id uint64, approve bool) (*model.Proposal, error) {
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := loadMultisig(tx)
	if err != nil {
		return nil, err
	}
	if err := requireMultisigAdmin(tx, cfg); err != nil {
		return nil, err
	}
	p, err := loadProposal(tx, id)
	if err != nil {
		return nil, err
	}
	next, err := voteTransition(p, tx.caller, approve, tx.now)
	if err != nil {
		return nil, err
	}
	if err := saveProposal(tx, next); err != nil {
		return nil, err
	}
	action, event := model.AuditProposalApproved, "ProposalApproved"
	if !approve {
		action, event = model.AuditProposalRejected, "ProposalRejected"
	}
	if err := appendAudit(tx, action, next.Target, true, "", &next.ID); err != nil {
		return nil, err
	}
	emitProposalEvent(tx, event, next)
	return next, tx.commit()
}

// ApproveProposal records the caller's approval.
func (s *CarbonRegistryContract) ApproveProposal(ctx contractapi.TransactionContextInterface, id uint64) (*model.Proposal, error) {
	logger.Infof("Chaincode Call: ApproveProposal %d", id)
	return s.vote(ctx, id, true)
}

// RejectProposal records the caller's rejection.
func (s *CarbonRegistryContract) RejectProposal(ctx contractapi.TransactionContextInterface, id uint64) (*model.Proposal, error) {
	logger.Infof("Chaincode Call: RejectProposal %d", id)
	return s.vote(ctx, id, false)
}

// ExecuteProposal applies an approved proposal's effect and marks it executed.
func (s *CarbonRegistryContract) ExecuteProposal(ctx contractapi.TransactionContextInterface, id uint64) (*model.Proposal, error) {
	logger.Infof("Chaincode Call: ExecuteProposal %d", id)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := loadMultisig(tx)
	if err != nil {
		return nil, err
	}
	if err := requireMultisigAdmin(tx, cfg); err != nil {
		return nil, err
	}
	p, err := loadProposal(tx, id)
	if err != nil {
		return nil, err
	}
	next, effect, err := executeTransition(p, tx.caller, tx.now)
	if err != nil {
		return nil, err
	}
	if err := applyProposalEffect(tx, cfg, effect); err != nil {
		return nil, err
	}
	if err := saveProposal(tx, next); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditProposalExecuted, next.Target, true, string(next.ProposalType), &next.ID); err != nil {
		return nil, err
	}
	emitProposalEvent(tx, "ProposalExecuted", next)
	if err := tx.commit(); err != nil {
		return nil, err
	}
	govLogger.Infof("Proposal %d (%s) executed by '%s'", id, next.ProposalType, tx.caller)
	return next, nil
}

// applyProposalEffect performs the mutation an executed proposal describes.
func applyProposalEffect(tx *ledgerTx, cfg *model.MultisigConfig, effect *ProposalEffect) error {
	reg, err := loadRegistry(tx)
	if err != nil {
		return err
	}
	im := NewIdentityManager(tx)
	assigner := multisigAssigner(effect.ProposalID)
	pid := effect.ProposalID

	switch effect.Type {
	case model.ProposalAssignRole:
		perms := model.DefaultPermissions(effect.Role.Role)
		if effect.Role.Permissions != nil {
			perms = *effect.Role.Permissions
		}
		_, err = im.applyRole(effect.Target, effect.Role.Role, perms, assigner, true)
		return err

	case model.ProposalRevokeRole:
		if reg.Admin == effect.Target {
			return newError(CodePermissions, "the registry admin cannot be revoked, transfer authority first")
		}
		_, err = im.applyRevoke(effect.Target, assigner)
		return err

	case model.ProposalAddAdmin:
		members := mapset.NewThreadUnsafeSet(cfg.Admins...)
		if members.Contains(effect.Target) {
			return newError(CodeAlreadyExists, "'%s' is already a multisig admin", effect.Target)
		}
		if len(cfg.Admins)+1 > model.MaxMultisigAdmins {
			return newError(CodeTooManyAdmins, "multisig already has %d admins", len(cfg.Admins))
		}
		if err := promoteToAdmin(im, effect.Target, assigner); err != nil {
			return err
		}
		cfg.Admins = append(cfg.Admins, effect.Target)
		if err := saveMultisig(tx, cfg); err != nil {
			return err
		}
		return appendAudit(tx, model.AuditAdminAdded, effect.Target, true, "", &pid)

	case model.ProposalRemoveAdmin:
		if reg.Admin == effect.Target {
			return newError(CodePermissions, "the registry admin cannot be removed, transfer authority first")
		}
		remaining := make([]string, 0, len(cfg.Admins))
		for _, a := range cfg.Admins {
			if a != effect.Target {
				remaining = append(remaining, a)
			}
		}
		if len(remaining) == len(cfg.Admins) {
			return newError(CodeNotFound, "'%s' is not a multisig admin", effect.Target)
		}
		if int(cfg.Threshold) > len(remaining) {
			return newError(CodeInvalidThreshold, "removing '%s' leaves %d admins below threshold %d", effect.Target, len(remaining), cfg.Threshold)
		}
		cfg.Admins = remaining
		if err := saveMultisig(tx, cfg); err != nil {
			return err
		}
		if err := demoteFromAdmin(im, effect.Target, assigner); err != nil {
			return err
		}
		return appendAudit(tx, model.AuditAdminRemoved, effect.Target, true, "", &pid)

	case model.ProposalUpdateRegistry:
		var changes []string
		if v := effect.Settings.GovernmentAuthority; v != nil {
			reg.GovernmentAuthority = *v
			changes = append(changes, "governmentAuthority="+*v)
		}
		if v := effect.Settings.MinVerificationFee; v != nil {
			reg.MinVerificationFee = *v
			changes = append(changes, fmt.Sprintf("minVerificationFee=%d", *v))
		}
		if v := effect.Settings.ComplianceRequiredForMint; v != nil {
			reg.ComplianceRequiredForMint = *v
			changes = append(changes, fmt.Sprintf("complianceRequiredForMint=%t", *v))
		}
		if err := saveRegistry(tx, reg); err != nil {
			return err
		}
		return appendAudit(tx, model.AuditSettingsUpdated, registrySingletonID, true, strings.Join(changes, " "), &pid)

	case model.ProposalEmergencyPause:
		return applyPause(tx, reg, effect.Pause.Paused, &pid)

	case model.ProposalTransferAuthority:
		previous := reg.Admin
		reg.Admin = effect.Target
		if err := saveRegistry(tx, reg); err != nil {
			return err
		}
		govLogger.Warningf("Registry authority transferred from '%s' to '%s'", previous, effect.Target)
		return appendAudit(tx, model.AuditAuthorityTransferred, effect.Target, true, "from "+previous, &pid)

	case model.ProposalUpdateThreshold:
		t := effect.Threshold.Threshold
		if t == 0 || int(t) > len(cfg.Admins) {
			return newError(CodeInvalidThreshold, "threshold %d must be within 1..%d", t, len(cfg.Admins))
		}
		cfg.Threshold = t
		if err := saveMultisig(tx, cfg); err != nil {
			return err
		}
		return appendAudit(tx, model.AuditThresholdUpdated, multisigSingletonID, true, fmt.Sprintf("threshold=%d", t), &pid)
	}
	return newError(CodeInvalidInput, "unknown proposal type '%s'", effect.Type)
}

// CancelProposal withdraws an open proposal. The proposer or the emergency admin may call it.
func (s *CarbonRegistryContract) CancelProposal(ctx contractapi.TransactionContextInterface, id uint64) (*model.Proposal, error) {
	logger.Infof("Chaincode Call: CancelProposal %d", id)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := loadMultisig(tx)
	if err != nil {
		return nil, err
	}
	p, err := loadProposal(tx, id)
	if err != nil {
		return nil, err
	}
	if p.Proposer != tx.caller && cfg.EmergencyAdmin != tx.caller {
		return nil, newError(CodeUnauthorizedAdmin, "only the proposer or the emergency admin may cancel proposal %d", id)
	}
	next, err := cancelTransition(p)
	if err != nil {
		return nil, err
	}
	if err := saveProposal(tx, next); err != nil {
		return nil, err
	}
	if err := appendAudit(tx, model.AuditProposalCancelled, next.Target, true, "", &next.ID); err != nil {
		return nil, err
	}
	emitProposalEvent(tx, "ProposalCancelled", next)
	return next, tx.commit()
}

// ExpireProposal closes an open proposal past its expiry. Anyone may call it.
func (s *CarbonRegistryContract) ExpireProposal(ctx contractapi.TransactionContextInterface, id uint64) (*model.Proposal, error) {
	logger.Infof("Chaincode Call: ExpireProposal %d", id)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	p, err := loadProposal(tx, id)
	if err != nil {
		return nil, err
	}
	next, err := expireTransition(p, tx.now)
	if err != nil {
		return nil, err
	}
	if err := saveProposal(tx, next); err != nil {
		return nil, err
	}
	emitProposalEvent(tx, "ProposalExpired", next)
	return next, tx.commit()
}

// GetMultisigConfig returns the governance configuration.
func (s *CarbonRegistryContract) GetMultisigConfig(ctx contractapi.TransactionContextInterface) (*model.MultisigConfig, error) {
	logger.Debug("Chaincode Call: GetMultisigConfig")
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	return loadMultisig(tx)
}

// GetProposal returns a proposal by id.
func (s *CarbonRegistryContract) GetProposal(ctx contractapi.TransactionContextInterface, id uint64) (*model.Proposal, error) {
	logger.Debugf("Chaincode Call: GetProposal %d", id)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	return loadProposal(tx, id)
}

// GetProposals lists proposals, optionally only those with the given status.
func (s *CarbonRegistryContract) GetProposals(ctx contractapi.TransactionContextInterface, status string) ([]model.Proposal, error) {
	logger.Debugf("Chaincode Call: GetProposals status='%s'", status)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.scan(proposalObjectType)
	if err != nil {
		return nil, err
	}
	proposals := []model.Proposal{}
	for _, raw := range rows {
		var p model.Proposal
		if err := json.Unmarshal(raw, &p); err != nil {
			govLogger.Warningf("Skipping malformed proposal: %v", err)
			continue
		}
		if status != "" && string(p.Status) != status {
			continue
		}
		proposals = append(proposals, p)
	}
	return proposals, nil
}
