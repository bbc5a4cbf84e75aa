package contract

import (
	"encoding/json"

	"carbonregistry/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Query Functions ---

func (s *CarbonRegistryContract) GetRegistry(ctx contractapi.TransactionContextInterface) (*model.Registry, error) {
	logger.Debug("Chaincode Call: GetRegistry")
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	return loadRegistry(tx)
}

func (s *CarbonRegistryContract) GetProject(ctx contractapi.TransactionContextInterface, projectID string) (*model.Project, error) {
	logger.Debugf("Chaincode Call: GetProject '%s'", projectID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	return loadProject(tx, projectID)
}

// GetProjectsByStatus lists projects, all of them when status is empty.
func (s *CarbonRegistryContract) GetProjectsByStatus(ctx contractapi.TransactionContextInterface, status string) ([]model.Project, error) {
	logger.Debugf("Chaincode Call: GetProjectsByStatus '%s'", status)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.scan(projectObjectType)
	if err != nil {
		return nil, err
	}
	projects := []model.Project{}
	for _, raw := range rows {
		var p model.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			logger.Warningf("GetProjectsByStatus: skipping malformed project: %v", err)
			continue
		}
		if status != "" && string(p.Status) != status {
			continue
		}
		ensureProjectSchemaCompliance(&p)
		projects = append(projects, p)
	}
	return projects, nil
}

func (s *CarbonRegistryContract) GetAsset(ctx contractapi.TransactionContextInterface, assetID string) (*model.Asset, error) {
	logger.Debugf("Chaincode Call: GetAsset '%s'", assetID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	return NewTokenLedger(tx).GetAsset(assetID)
}

// GetBalance returns holder's balance of assetID. An empty holder means the caller.
func (s *CarbonRegistryContract) GetBalance(ctx contractapi.TransactionContextInterface, assetID, holder string) (uint64, error) {
	logger.Debugf("Chaincode Call: GetBalance '%s' of '%s'", assetID, holder)
	tx, err := beginTx(ctx)
	if err != nil {
		return 0, err
	}
	if holder == "" {
		holder = tx.caller
	}
	ledger := NewTokenLedger(tx)
	if _, err := ledger.GetAsset(assetID); err != nil {
		return 0, err
	}
	return ledger.BalanceOf(assetID, holder)
}

func (s *CarbonRegistryContract) GetRetirement(ctx contractapi.TransactionContextInterface, owner, retirementID string) (*model.RetirementRecord, error) {
	logger.Debugf("Chaincode Call: GetRetirement '%s' of '%s'", retirementID, owner)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	key, err := tx.key(retirementObjectType, owner, retirementID)
	if err != nil {
		return nil, err
	}
	var rec model.RetirementRecord
	found, err := tx.getJSON(key, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newError(CodeNotFound, "retirement '%s' of '%s' does not exist", retirementID, owner)
	}
	return &rec, nil
}

func (s *CarbonRegistryContract) GetMonitoringRecords(ctx contractapi.TransactionContextInterface, projectID string) ([]model.MonitoringRecord, error) {
	logger.Debugf("Chaincode Call: GetMonitoringRecords '%s'", projectID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.scan(monitoringObjectType, projectID)
	if err != nil {
		return nil, err
	}
	records := []model.MonitoringRecord{}
	for _, raw := range rows {
		var rec model.MonitoringRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *CarbonRegistryContract) GetImpactReports(ctx contractapi.TransactionContextInterface, projectID string) ([]model.ImpactReport, error) {
	logger.Debugf("Chaincode Call: GetImpactReports '%s'", projectID)
	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.scan(impactObjectType, projectID)
	if err != nil {
		return nil, err
	}
	reports := []model.ImpactReport{}
	for _, raw := range rows {
		var r model.ImpactReport
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}
