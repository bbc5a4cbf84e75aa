package contract

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"carbonregistry/model"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	adminID     = "x509::CN=admin,OU=client,O=Org1::CN=ca.org1.example.com"
	govID       = "x509::CN=ministry,OU=client,O=Gov::CN=ca.gov.example.com"
	ownerID     = "x509::CN=developer,OU=client,O=Org1::CN=ca.org1.example.com"
	investorID  = "x509::CN=investor,OU=client,O=Org2::CN=ca.org2.example.com"
	verifierID  = "x509::CN=acva,OU=client,O=Org3::CN=ca.org3.example.com"
	verifier2ID = "x509::CN=acva2,OU=client,O=Org3::CN=ca.org3.example.com"
	traderID    = "x509::CN=trader,OU=client,O=Org2::CN=ca.org2.example.com"

	creditAsset = "CCT"
	feeAsset    = "FEE"
	quoteAsset  = "USDC"
	minFee      = 10
)

type fakeIdentity struct {
	id  string
	msp string
}

var _ cid.ClientIdentity = (*fakeIdentity)(nil)

func (f *fakeIdentity) GetID() (string, error)    { return f.id, nil }
func (f *fakeIdentity) GetMSPID() (string, error) { return f.msp, nil }
func (f *fakeIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeIdentity) AssertAttributeValue(string, string) error {
	return fmt.Errorf("no attributes")
}
func (f *fakeIdentity) GetX509Certificate() (*x509.Certificate, error) { return nil, nil }

type recordedEvent struct {
	Name    string
	Payload map[string]interface{}
}

// harness drives the contract against a MockStub, one mock transaction per call.
type harness struct {
	t      *testing.T
	stub   *shimtest.MockStub
	cc     *CarbonRegistryContract
	clock  time.Time
	txSeq  int
	events []recordedEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		t:     t,
		stub:  shimtest.NewMockStub("carbonregistry", nil),
		cc:    new(CarbonRegistryContract),
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// as opens a new mock transaction signed by caller.
func (h *harness) as(caller string) contractapi.TransactionContextInterface {
	h.drainEvents()
	h.txSeq++
	h.stub.MockTransactionStart(fmt.Sprintf("tx-%04d", h.txSeq))
	h.stub.TxTimestamp = timestamppb.New(h.clock)
	ctx := new(contractapi.TransactionContext)
	ctx.SetStub(h.stub)
	ctx.SetClientIdentity(&fakeIdentity{id: caller, msp: "Org1MSP"})
	return ctx
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func (h *harness) drainEvents() {
	for {
		select {
		case ev := <-h.stub.ChaincodeEventsChannel:
			rec := recordedEvent{Name: ev.EventName}
			require.NoError(h.t, json.Unmarshal(ev.Payload, &rec.Payload))
			h.events = append(h.events, rec)
		default:
			return
		}
	}
}

func (h *harness) lastEvent() recordedEvent {
	h.t.Helper()
	h.drainEvents()
	require.NotEmpty(h.t, h.events, "no chaincode event was emitted")
	return h.events[len(h.events)-1]
}

func (h *harness) eventCount() int {
	h.drainEvents()
	return len(h.events)
}

// stateSize counts committed keys, used to prove a failed call wrote nothing.
func (h *harness) stateSize() int {
	return len(h.stub.State)
}

func (h *harness) balance(assetID, holder string) uint64 {
	h.t.Helper()
	bal, err := h.cc.GetBalance(h.as(adminID), assetID, holder)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) identity(id string) *model.Identity {
	h.t.Helper()
	idInfo, err := h.cc.GetIdentity(h.as(adminID), id)
	require.NoError(h.t, err)
	return idInfo
}

func (h *harness) project(id string) *model.Project {
	h.t.Helper()
	p, err := h.cc.GetProject(h.as(adminID), id)
	require.NoError(h.t, err)
	return p
}

// bootstrap initializes the registry with a zero-decimal credit so one unit is one ton.
func (h *harness) bootstrap() {
	h.t.Helper()
	require.NoError(h.t, h.cc.InitializeRegistry(h.as(adminID), creditAsset, 0, feeAsset, govID, minFee))
}

func (h *harness) registerSelf(id string, role model.UserRole) {
	h.t.Helper()
	_, err := h.cc.RegisterSelf(h.as(id), string(role))
	require.NoError(h.t, err)
}

func (h *harness) fund(assetID, to string, amount uint64) {
	h.t.Helper()
	require.NoError(h.t, h.cc.IssueAsset(h.as(adminID), assetID, to, amount))
}

func projectJSON(id string, lat, lng float64, estimatedTons uint64) string {
	raw, _ := json.Marshal(map[string]interface{}{
		"projectId":   id,
		"name":        "Sundarbans mangrove restoration " + id,
		"description": "Replanting degraded mangrove stands",
		"sector":      "BlueCarbon",
		"location": map[string]interface{}{
			"latitude":    lat,
			"longitude":   lng,
			"countryCode": "IN",
			"regionName":  "West Bengal",
			"polygon": []map[string]float64{
				{"latitude": lat, "longitude": lng},
				{"latitude": lat + 0.001, "longitude": lng + 0.001},
			},
		},
		"areaHectares":           120.5,
		"vintageYear":            2025,
		"establishmentDate":      "2024-06-01T00:00:00Z",
		"methodology":            "VM0033",
		"coBenefits":             []string{"Biodiversity", "CoastalProtection"},
		"certificationStandards": []string{"VCS"},
		"estimatedCarbonTons":    estimatedTons,
		"cctsRegistryId":         id,
		"pricePerTon":            15,
	})
	return string(raw)
}

// registeredProject registers a Pending project owned by ownerID.
func (h *harness) registeredProject(id string, lat, lng float64, estimatedTons uint64) *model.Project {
	h.t.Helper()
	p, err := h.cc.RegisterProject(h.as(ownerID), projectJSON(id, lat, lng, estimatedTons))
	require.NoError(h.t, err)
	return p
}

// verifiedProject walks a project through escrow and verification at verifiedTons.
func (h *harness) verifiedProject(id string, lat, lng float64, estimatedTons, verifiedTons uint64) *model.Project {
	h.t.Helper()
	h.registeredProject(id, lat, lng, estimatedTons)
	h.fund(feeAsset, ownerID, minFee)
	_, err := h.cc.InitializeVerification(h.as(ownerID), id, minFee, verifierID)
	require.NoError(h.t, err)
	p, err := h.cc.VerifyProject(h.as(verifierID), id, verifiedTons, 4, `{"satelliteDataHash":"sat-1","acvaReportCid":"bafy-report"}`)
	require.NoError(h.t, err)
	return p
}

// standardSetup bootstraps the registry and registers the usual cast.
func standardSetup(t *testing.T) *harness {
	h := newHarness(t)
	h.bootstrap()
	h.registerSelf(ownerID, model.RoleUser)
	h.registerSelf(investorID, model.RoleUser)
	h.registerSelf(traderID, model.RoleUser)
	h.registerSelf(verifierID, model.RoleValidator)
	return h
}
