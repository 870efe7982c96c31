package verify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/veritrace/veritrace/anomaly"
	"github.com/veritrace/veritrace/credential"
	"github.com/veritrace/veritrace/docstore"
	"github.com/veritrace/veritrace/ledger"
	"github.com/veritrace/veritrace/registry"
	"github.com/veritrace/veritrace/telemetry"
)

const testSecret = "s1"

type harness struct {
	engine    *Engine
	ledger    *ledger.Engine
	adapter   *ledger.Adapter
	store     *docstore.Memory
	registry  *registry.Memory
	anomalies *anomaly.DocLog
	base      time.Time
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	mem := docstore.NewMemory()
	adapter := ledger.NewAdapter(mem)
	base := time.Unix(1700000000, 0)

	clock := base
	led := ledger.NewEngine(adapter, ledger.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	reg := registry.NewMemory()
	anomalies := anomaly.NewDocLog(mem)
	scans := telemetry.NewMemoryScanCounter(time.Hour)

	engine := NewEngine(testSecret, reg, led, scans, anomalies, policy,
		// Two days after registration: old enough to be distributed,
		// nowhere near implausibly old.
		WithClock(func() time.Time { return base.Add(48 * time.Hour) }),
	)
	return &harness{
		engine:    engine,
		ledger:    led,
		adapter:   adapter,
		store:     mem,
		registry:  reg,
		anomalies: anomalies,
		base:      base,
	}
}

// registerGenuine registers P1 in both the ledger and the registry and
// returns a sealed token for it.
func (h *harness) registerGenuine(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	_, err := h.ledger.Append(ctx, ledger.AppendRequest{
		Type:      ledger.TxProductRegister,
		RefType:   ledger.RefProduct,
		RefID:     "P1",
		OrgID:     "O1",
		CreatedBy: "U1",
		Payload:   ledger.RegisterPayload{SKU: "SKU-1", Name: "Widget", Quantity: 100},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	h.registry.Add(registry.ProductRecord{
		ProductID:    "P1",
		OrgID:        "O1",
		SKU:          "SKU-1",
		Name:         "Widget",
		RegisteredAt: h.base,
	})

	token, err := credential.Seal(credential.Credential{
		ProductID: "P1",
		IssuerID:  "U1",
		OrgID:     "O1",
		Nonce:     "n1",
		IssuedAt:  h.base.Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	return token
}

func TestVerifyGenuine(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	token := h.registerGenuine(t)

	result, err := h.engine.Verify(ctx, Request{Token: token, VerifierID: "V1", OrgID: "O1"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verdict != ledger.VerdictGenuine {
		t.Fatalf("expected GENUINE, got %s (score %.1f, factors %v)", result.Verdict, result.AIScore, result.Factors)
	}
	if result.RiskLevel != ledger.RiskLow {
		t.Fatalf("expected low risk, got %s", result.RiskLevel)
	}
	if !hasFactor(result.Factors, "identity_match") {
		t.Fatalf("expected identity_match factor, got %v", result.Factors)
	}

	// The attempt itself must now be on the chain.
	txs, err := h.adapter.ListByLineage(ctx, "P1")
	if err != nil {
		t.Fatalf("ListByLineage failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	last := txs[len(txs)-1]
	if last.Type != ledger.TxVerify {
		t.Fatalf("expected VERIFY transaction, got %s", last.Type)
	}
	vp, ok := last.Payload.(ledger.VerifyPayload)
	if !ok {
		t.Fatalf("verify payload decoded as %T", last.Payload)
	}
	if vp.Result.Verdict != ledger.VerdictGenuine {
		t.Fatalf("recorded verdict %s", vp.Result.Verdict)
	}

	report, err := h.ledger.VerifyChain(ctx, "P1")
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if !report.Valid {
		t.Fatalf("chain invalid after verify append: %s", report.Reason)
	}
}

func TestVerifyUndecodableTokenInvalid(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()

	result, err := h.engine.Verify(ctx, Request{Token: "garbage", VerifierID: "V1", OrgID: "O1"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verdict != ledger.VerdictInvalid {
		t.Fatalf("expected INVALID, got %s", result.Verdict)
	}
	if result.AIScore != 0 {
		t.Fatalf("expected score 0, got %.1f", result.AIScore)
	}
	if len(result.Factors) != 1 || !strings.HasPrefix(result.Factors[0], "qr_decode_failed:") {
		t.Fatalf("unexpected factors: %v", result.Factors)
	}

	entries, err := h.anomalies.ListByOrg(ctx, "O1")
	if err != nil {
		t.Fatalf("ListByOrg failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 anomaly entry, got %d", len(entries))
	}
}

func TestVerifyWrongSecretInvalid(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	h.registerGenuine(t)

	token, err := credential.Seal(credential.Credential{
		ProductID: "P1", IssuerID: "U1", OrgID: "O1", Nonce: "n1", IssuedAt: h.base.Unix(),
	}, "some-other-secret")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	result, err := h.engine.Verify(ctx, Request{Token: token, VerifierID: "V1", OrgID: "O1"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verdict != ledger.VerdictInvalid {
		t.Fatalf("expected INVALID, got %s", result.Verdict)
	}
	if result.Factors[0] != "qr_decode_failed:authentication_failed" {
		t.Fatalf("unexpected factors: %v", result.Factors)
	}
}

// A token for a product the registry has never seen cannot be appended to any
// lineage; the attempt lands in the org-level anomaly log instead.
func TestVerifyUnknownProductInvalid(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()

	token, err := credential.Seal(credential.Credential{
		ProductID: "P-ghost", IssuerID: "U1", OrgID: "O1", Nonce: "n1", IssuedAt: h.base.Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	result, err := h.engine.Verify(ctx, Request{Token: token, VerifierID: "V1", OrgID: "O1"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verdict != ledger.VerdictInvalid {
		t.Fatalf("expected INVALID, got %s", result.Verdict)
	}
	if !hasFactor(result.Factors, "product_not_found") {
		t.Fatalf("unexpected factors: %v", result.Factors)
	}

	entries, err := h.anomalies.ListByOrg(ctx, "O1")
	if err != nil {
		t.Fatalf("ListByOrg failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ProductID != "P-ghost" {
		t.Fatalf("anomaly log mismatch: %+v", entries)
	}

	txs, err := h.adapter.ListByLineage(ctx, "P-ghost")
	if err != nil {
		t.Fatalf("ListByLineage failed: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("ghost lineage must stay empty, got %d transactions", len(txs))
	}
}

// A product present in the registry but never anchored on the ledger has no
// lineage to append the attempt to; the attempt must still leave an audit
// trace in the anomaly log instead of failing a doomed append.
func TestVerifyRegistryOnlyProductInvalid(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()

	h.registry.Add(registry.ProductRecord{
		ProductID:    "P-unanchored",
		OrgID:        "O1",
		SKU:          "SKU-9",
		Name:         "Widget",
		RegisteredAt: h.base,
	})
	token, err := credential.Seal(credential.Credential{
		ProductID: "P-unanchored", IssuerID: "U1", OrgID: "O1", Nonce: "n3", IssuedAt: h.base.Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	result, err := h.engine.Verify(ctx, Request{Token: token, VerifierID: "V1", OrgID: "O1"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verdict != ledger.VerdictInvalid {
		t.Fatalf("expected INVALID, got %s (factors %v)", result.Verdict, result.Factors)
	}
	if !hasFactor(result.Factors, "lineage_missing") {
		t.Fatalf("unexpected factors: %v", result.Factors)
	}

	entries, err := h.anomalies.ListByOrg(ctx, "O1")
	if err != nil {
		t.Fatalf("ListByOrg failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ProductID != "P-unanchored" {
		t.Fatalf("anomaly log mismatch: %+v", entries)
	}

	txs, err := h.adapter.ListByLineage(ctx, "P-unanchored")
	if err != nil {
		t.Fatalf("ListByLineage failed: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("unanchored lineage must stay empty, got %d transactions", len(txs))
	}
}

func TestVerifyBrokenChainFake(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	token := h.registerGenuine(t)

	// Corrupt the stored genesis block hash directly in the store.
	txs, err := h.adapter.ListByLineage(ctx, "P1")
	if err != nil {
		t.Fatalf("ListByLineage failed: %v", err)
	}
	raw, err := h.store.Get(ctx, "ledger_transactions", txs[0].TxHash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	doc["block_hash"] = "deadbeef"
	data, _ := json.Marshal(doc)
	err = h.store.Put(ctx, "ledger_transactions", txs[0].TxHash, data, map[string]string{
		"refId": "P1", "block": "00000000000000000000",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	result, err := h.engine.Verify(ctx, Request{Token: token, VerifierID: "V1", OrgID: "O1"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verdict != ledger.VerdictFake {
		t.Fatalf("expected FAKE, got %s", result.Verdict)
	}
	if result.RiskLevel != ledger.RiskCritical {
		t.Fatalf("expected critical risk, got %s", result.RiskLevel)
	}
	if !hasFactor(result.Factors, "chain_integrity_violation") {
		t.Fatalf("unexpected factors: %v", result.Factors)
	}
}

func TestVerifyOrgMismatchScoresFake(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	h.registerGenuine(t)

	token, err := credential.Seal(credential.Credential{
		ProductID: "P1", IssuerID: "U1", OrgID: "O-spoofed", Nonce: "n2", IssuedAt: h.base.Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	result, err := h.engine.Verify(ctx, Request{Token: token, VerifierID: "V1", OrgID: "O1"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verdict != ledger.VerdictFake {
		t.Fatalf("expected FAKE, got %s (score %.1f)", result.Verdict, result.AIScore)
	}
	if !hasFactor(result.Factors, "identity_mismatch") {
		t.Fatalf("unexpected factors: %v", result.Factors)
	}
}

func TestScanRepetitionTurnsSuspicious(t *testing.T) {
	policy := DefaultPolicy()
	policy.ScanAlertCount = 2
	h := newHarness(t, policy)
	ctx := context.Background()
	token := h.registerGenuine(t)

	var last ledger.VerificationResult
	for i := 0; i < 4; i++ {
		var err error
		last, err = h.engine.Verify(ctx, Request{Token: token, VerifierID: "V1", OrgID: "O1"})
		if err != nil {
			t.Fatalf("Verify %d failed: %v", i, err)
		}
	}
	if last.Verdict != ledger.VerdictSuspicious {
		t.Fatalf("expected SUSPICIOUS after repeated scans, got %s (score %.1f)", last.Verdict, last.AIScore)
	}
	if !hasFactor(last.Factors, "scan_repetition_anomaly") {
		t.Fatalf("unexpected factors: %v", last.Factors)
	}
}

// Increasing the score never moves the verdict to a lower-trust category.
func TestVerdictMonotonicity(t *testing.T) {
	policy := DefaultPolicy()
	rank := map[ledger.Verdict]int{
		ledger.VerdictFake:       0,
		ledger.VerdictSuspicious: 1,
		ledger.VerdictGenuine:    2,
	}
	prev := -1
	for score := 0.0; score <= 100; score += 0.5 {
		v := policy.verdictFor(score)
		r, ok := rank[v]
		if !ok {
			t.Fatalf("unexpected verdict %s at score %.1f", v, score)
		}
		if r < prev {
			t.Fatalf("verdict rank dropped at score %.1f", score)
		}
		prev = r
	}
}

func hasFactor(factors []string, want string) bool {
	for _, f := range factors {
		if f == want {
			return true
		}
	}
	return false
}
