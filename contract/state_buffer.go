package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// ledgerTx stages every write of one contract call and flushes them in commit.
// A call that returns an error never reaches commit, so nothing it staged is written.
// Reads see staged writes first.
type ledgerTx struct {
	ctx    contractapi.TransactionContextInterface
	stub   shim.ChaincodeStubInterface
	now    time.Time
	txID   string
	caller string

	writes  map[string][]byte // nil value marks a delete
	order   []string
	event   string
	payload map[string]interface{}
}

func beginTx(ctx contractapi.TransactionContextInterface) (*ledgerTx, error) {
	stub := ctx.GetStub()
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	caller, err := currentCallerID(ctx)
	if err != nil {
		return nil, err
	}
	return &ledgerTx{
		ctx:    ctx,
		stub:   stub,
		now:    ts.AsTime().UTC(),
		txID:   stub.GetTxID(),
		caller: caller,
		writes: map[string][]byte{},
	}, nil
}

func (tx *ledgerTx) key(objectType string, attrs ...string) (string, error) {
	k, err := tx.stub.CreateCompositeKey(objectType, attrs)
	if err != nil {
		return "", fmt.Errorf("failed to create %s composite key: %w", objectType, err)
	}
	return k, nil
}

func (tx *ledgerTx) getState(key string) ([]byte, error) {
	if v, ok := tx.writes[key]; ok {
		return v, nil
	}
	v, err := tx.stub.GetState(key)
	if err != nil {
		return nil, fmt.Errorf("ledger error reading '%s': %w", key, err)
	}
	return v, nil
}

func (tx *ledgerTx) putState(key string, value []byte) {
	if _, ok := tx.writes[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = value
}

func (tx *ledgerTx) delState(key string) {
	tx.putState(key, nil)
}

// getJSON loads the record under key into v. It reports false when the key is absent.
func (tx *ledgerTx) getJSON(key string, v interface{}) (bool, error) {
	raw, err := tx.getState(key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal record '%s': %w", key, err)
	}
	return true, nil
}

func (tx *ledgerTx) putJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record '%s': %w", key, err)
	}
	tx.putState(key, raw)
	return nil
}

func (tx *ledgerTx) exists(key string) (bool, error) {
	raw, err := tx.getState(key)
	return raw != nil, err
}

// setEvent records the event emitted on commit. Fabric keeps one event per transaction, so the last call wins.
func (tx *ledgerTx) setEvent(name string, payload map[string]interface{}) {
	tx.event = name
	tx.payload = payload
}

func (tx *ledgerTx) commit() error {
	for _, k := range tx.order {
		v := tx.writes[k]
		if v == nil {
			if err := tx.stub.DelState(k); err != nil {
				return fmt.Errorf("failed to delete '%s': %w", k, err)
			}
			continue
		}
		if err := tx.stub.PutState(k, v); err != nil {
			return fmt.Errorf("failed to write '%s': %w", k, err)
		}
	}
	if tx.event != "" {
		p := map[string]interface{}{
			"actor":       tx.caller,
			"txId":        tx.txID,
			"txTimestamp": tx.now.Format(time.RFC3339),
		}
		for k, v := range tx.payload {
			p[k] = v
		}
		eventBytes, err := json.Marshal(p)
		if err != nil {
			logger.Warningf("commit: failed to marshal payload of event '%s': %v", tx.event, err)
		} else if err := tx.stub.SetEvent(tx.event, eventBytes); err != nil {
			logger.Warningf("commit: failed to set event '%s': %v", tx.event, err)
		}
	}
	logger.Debugf("Committed %d staged writes for tx %s", len(tx.order), tx.txID)
	return nil
}

// scan returns committed records of objectType whose key starts with attrs, in key order.
// Staged writes are not visible; only query paths call it.
func (tx *ledgerTx) scan(objectType string, attrs ...string) ([][]byte, error) {
	it, err := tx.stub.GetStateByPartialCompositeKey(objectType, attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", objectType, err)
	}
	defer it.Close()

	type kv struct {
		key   string
		value []byte
	}
	var rows []kv
	for it.HasNext() {
		r, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s records: %w", objectType, err)
		}
		rows = append(rows, kv{r.Key, r.Value})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
	values := make([][]byte, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.value)
	}
	return values, nil
}

func currentCallerID(ctx contractapi.TransactionContextInterface) (string, error) {
	clientIdentity := ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	return id, nil
}
