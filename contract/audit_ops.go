package contract

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"carbonregistry/model"
	"carbonregistry/pkg/safemath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
	"github.com/shopspring/decimal"
)

var auditLogger = flogging.MustGetLogger("carbonregistry.audit")

const (
	auditCounterID   = "main"
	maxAuditPageSize = 200
)

// seqKey zero-pads sequence numbers so composite keys sort numerically.
func seqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// auditEntryHash commits to the previous hash and every field except EntryHash.
func auditEntryHash(e *model.AuditLogEntry) string {
	proposal := ""
	if e.ProposalID != nil {
		proposal = strconv.FormatUint(*e.ProposalID, 10)
	}
	preimage := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%t|%s|%s|%s|%s",
		e.PrevHash, e.Seq, e.EntryID, e.Actor, e.Action, e.Target, e.Success, e.Details, proposal, e.TxID,
		e.Timestamp.UTC().Format(time.RFC3339Nano))
	return chainhash.HashH([]byte(preimage)).String()
}

func loadAuditCounter(tx *ledgerTx) (*model.AuditCounter, string, error) {
	key, err := tx.key(auditCounterObjectType, auditCounterID)
	if err != nil {
		return nil, "", err
	}
	counter := &model.AuditCounter{ObjectType: auditCounterObjectType}
	if _, err := tx.getJSON(key, counter); err != nil {
		return nil, "", err
	}
	return counter, key, nil
}

// appendAudit stages the next hash-chained audit entry inside the caller's transaction.
func appendAudit(tx *ledgerTx, action model.AuditAction, target string, success bool, details string, proposalID *uint64) error {
	_, err := stageAudit(tx, action, target, success, details, proposalID)
	return err
}

func stageAudit(tx *ledgerTx, action model.AuditAction, target string, success bool, details string, proposalID *uint64) (*model.AuditLogEntry, error) {
	counter, counterKey, err := loadAuditCounter(tx)
	if err != nil {
		return nil, err
	}
	entry := &model.AuditLogEntry{
		ObjectType: auditObjectType,
		Seq:        counter.NextSeq,
		EntryID:    uuid.NewSHA1(addressSpace, []byte(fmt.Sprintf("audit|%s|%d", tx.txID, counter.NextSeq))).String(),
		Actor:      tx.caller,
		Action:     action,
		Target:     target,
		Success:    success,
		Details:    details,
		ProposalID: proposalID,
		TxID:       tx.txID,
		Timestamp:  tx.now,
		PrevHash:   counter.LastHash,
	}
	entry.EntryHash = auditEntryHash(entry)

	key, err := tx.key(auditObjectType, seqKey(entry.Seq))
	if err != nil {
		return nil, err
	}
	if err := tx.putJSON(key, entry); err != nil {
		return nil, err
	}
	next, err := safemath.Add(counter.NextSeq, 1)
	if err != nil {
		return nil, mathError(err, "audit sequence")
	}
	counter.NextSeq = next
	counter.LastHash = entry.EntryHash
	auditLogger.Debugf("Audit #%d %s on '%s' by '%s'", entry.Seq, action, target, tx.caller)
	return entry, tx.putJSON(counterKey, counter)
}

// requireAuditViewer passes admins and holders of VIEW_AUDIT_LOGS.
func requireAuditViewer(tx *ledgerTx) error {
	im := NewIdentityManager(tx)
	isAdmin, err := im.IsAdmin(tx.caller)
	if err != nil {
		return err
	}
	if isAdmin {
		return nil
	}
	_, err = im.RequirePermission(model.PermViewAuditLogs)
	return err
}

// --- Audit & Reporting Operations ---

// CreateAuditLog appends a manual entry to the audit log.
func (s *CarbonRegistryContract) CreateAuditLog(ctx contractapi.TransactionContextInterface, action, target string, success bool, details string) (*model.AuditLogEntry, error) {
	logger.Infof("Chaincode Call: CreateAuditLog action='%s' target='%s'", action, target)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAuditViewer(tx); err != nil {
		return nil, err
	}
	if err := validateRequiredString(action, "action", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := validateOptionalString(target, "target", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := validateOptionalString(details, "details", maxDescriptionLength); err != nil {
		return nil, err
	}
	entry, err := stageAudit(tx, model.AuditManualEntry, target, success, action+": "+details, nil)
	if err != nil {
		return nil, err
	}
	tx.setEvent("AuditLogCreated", map[string]interface{}{"seq": entry.Seq, "target": target})
	return entry, tx.commit()
}

// GetAuditLogs returns up to limit entries starting at fromSeq, in sequence order.
func (s *CarbonRegistryContract) GetAuditLogs(ctx contractapi.TransactionContextInterface, fromSeq uint64, limit uint32) ([]model.AuditLogEntry, error) {
	logger.Debugf("Chaincode Call: GetAuditLogs from=%d limit=%d", fromSeq, limit)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAuditViewer(tx); err != nil {
		return nil, err
	}
	if limit == 0 || limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	counter, _, err := loadAuditCounter(tx)
	if err != nil {
		return nil, err
	}
	// Sequence numbers are dense, so the page is read key by key from fromSeq.
	entries := []model.AuditLogEntry{}
	for seq := fromSeq; seq < counter.NextSeq && uint32(len(entries)) < limit; seq++ {
		key, err := tx.key(auditObjectType, seqKey(seq))
		if err != nil {
			return nil, err
		}
		var entry model.AuditLogEntry
		found, err := tx.getJSON(key, &entry)
		if err != nil {
			return nil, err
		}
		if !found {
			auditLogger.Warningf("Audit entry #%d is missing", seq)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// VerifyAuditChain recomputes every entry hash and the links between them.
func (s *CarbonRegistryContract) VerifyAuditChain(ctx contractapi.TransactionContextInterface) (*model.AuditChainReport, error) {
	logger.Debug("Chaincode Call: VerifyAuditChain")
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAuditViewer(tx); err != nil {
		return nil, err
	}
	rows, err := tx.scan(auditObjectType)
	if err != nil {
		return nil, err
	}
	report := &model.AuditChainReport{Valid: true}
	prev := ""
	for i, raw := range rows {
		var entry model.AuditLogEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return breakChain(report, uint64(i), "entry cannot be decoded"), nil
		}
		report.Entries++
		switch {
		case entry.Seq != uint64(i):
			return breakChain(report, uint64(i), fmt.Sprintf("expected seq %d, found %d", i, entry.Seq)), nil
		case entry.PrevHash != prev:
			return breakChain(report, entry.Seq, "previous hash does not match"), nil
		case auditEntryHash(&entry) != entry.EntryHash:
			return breakChain(report, entry.Seq, "entry hash does not match its contents"), nil
		}
		prev = entry.EntryHash
	}
	counter, _, err := loadAuditCounter(tx)
	if err != nil {
		return nil, err
	}
	if counter.LastHash != prev || counter.NextSeq != report.Entries {
		return breakChain(report, report.Entries, "head counter does not match the last entry"), nil
	}
	report.HeadHash = prev
	return report, nil
}

func breakChain(report *model.AuditChainReport, seq uint64, reason string) *model.AuditChainReport {
	auditLogger.Warningf("Audit chain broken at #%d: %s", seq, reason)
	report.Valid = false
	report.BrokenAt = seq
	report.Reason = reason
	return report
}

// GetPlatformStats aggregates registry-wide figures by scanning committed state.
func (s *CarbonRegistryContract) GetPlatformStats(ctx contractapi.TransactionContextInterface) (*model.PlatformStats, error) {
	logger.Debug("Chaincode Call: GetPlatformStats")
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry(tx)
	if err != nil {
		return nil, err
	}
	stats := &model.PlatformStats{
		ProjectsByStatus:   map[string]uint64{},
		TotalCreditsIssued: reg.TotalCreditsIssued,
	}

	identities, err := tx.scan(identityObjectType)
	if err != nil {
		return nil, err
	}
	for _, raw := range identities {
		var idInfo model.Identity
		if err := json.Unmarshal(raw, &idInfo); err != nil {
			continue
		}
		stats.TotalRegisteredUsers++
		if idInfo.Role == model.RoleValidator {
			stats.TotalValidators++
		}
		if idInfo.IsActive {
			stats.ActiveIdentities++
		}
	}

	projects, err := tx.scan(projectObjectType)
	if err != nil {
		return nil, err
	}
	for _, raw := range projects {
		var p model.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		stats.TotalProjects++
		stats.ProjectsByStatus[string(p.Status)]++
	}

	retirements, err := tx.scan(retirementObjectType)
	if err != nil {
		return nil, err
	}
	for _, raw := range retirements {
		var r model.RetirementRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		if stats.TotalCreditsRetired, err = safemath.Add(stats.TotalCreditsRetired, r.Amount); err != nil {
			return nil, mathError(err, "retired credits")
		}
	}

	listings, err := tx.scan(listingObjectType)
	if err != nil {
		return nil, err
	}
	for _, raw := range listings {
		var l model.Listing
		if err := json.Unmarshal(raw, &l); err != nil {
			continue
		}
		if l.IsActive {
			stats.ActiveListings++
		}
		if stats.TotalVolumeCredits, err = safemath.Add(stats.TotalVolumeCredits, l.SoldQuantity); err != nil {
			return nil, mathError(err, "traded volume")
		}
	}

	pools, err := tx.scan(poolObjectType)
	if err != nil {
		return nil, err
	}
	stats.Pools = uint64(len(pools))

	credit, err := NewTokenLedger(tx).GetAsset(reg.CreditAssetID)
	if err != nil {
		return nil, err
	}
	stats.CirculatingCredits = credit.Supply

	counter, _, err := loadAuditCounter(tx)
	if err != nil {
		return nil, err
	}
	stats.TotalTransactions = counter.NextSeq

	stats.CreditsIssuedDisplay = formatAmount(stats.TotalCreditsIssued, reg.CreditDecimals)
	stats.CreditsRetiredDisplay = formatAmount(stats.TotalCreditsRetired, reg.CreditDecimals)
	stats.CirculatingDisplay = formatAmount(stats.CirculatingCredits, reg.CreditDecimals)
	return stats, nil
}

// formatAmount renders base units as a decimal string with the asset's precision.
func formatAmount(amount uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
	return d.StringFixed(int32(decimals))
}
