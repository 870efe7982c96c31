package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veritrace/veritrace/anomaly"
	"github.com/veritrace/veritrace/credential"
	"github.com/veritrace/veritrace/ledger"
	"github.com/veritrace/veritrace/notify"
	"github.com/veritrace/veritrace/registry"
	"github.com/veritrace/veritrace/telemetry"
)

// ImageScorer is the optional external ML collaborator judging a supplied
// product photo. Scores are 0..100 and are one weighted input among several,
// never a sole decider.
type ImageScorer interface {
	Score(ctx context.Context, image []byte) (float64, error)
}

// Engine runs verification attempts. It is stateless between attempts; all
// mutable state lives in the collaborators.
type Engine struct {
	secret    string
	registry  registry.Registry
	ledger    *ledger.Engine
	scans     telemetry.ScanCounter
	anomalies anomaly.Log
	notifier  notify.Notifier
	images    ImageScorer
	policy    Policy
	now       func() time.Time
}

// Option configures optional collaborators of an Engine.
type Option func(*Engine)

// WithImageScorer attaches the external image-authenticity collaborator.
func WithImageScorer(s ImageScorer) Option {
	return func(e *Engine) { e.images = s }
}

// WithNotifier attaches the notification service; FAKE and SUSPICIOUS
// verdicts publish an event through it.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the engine's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires a verification engine. secret is the QR sealing secret,
// provisioned out-of-band and never persisted by the core.
func NewEngine(secret string, reg registry.Registry, led *ledger.Engine, scans telemetry.ScanCounter, anomalies anomaly.Log, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		secret:    secret,
		registry:  reg,
		ledger:    led,
		scans:     scans,
		anomalies: anomalies,
		notifier:  notify.Nop{},
		policy:    policy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one presented QR token plus scan context.
type Request struct {
	Token      string
	VerifierID string // authenticated actor performing the scan
	OrgID      string // org context of the scan, used for anomaly logging
	Image      []byte // optional product photo
}

// Verify runs the full state machine for one attempt. It always returns a
// populated VerificationResult; a non-nil error reports an infrastructure
// failure (such as the VERIFY append) that the caller may retry, but the
// verdict stands regardless.
func (e *Engine) Verify(ctx context.Context, req Request) (ledger.VerificationResult, error) {
	// Decode. Fail closed: any codec error is terminal INVALID.
	cred, err := credential.Open(req.Token, e.secret)
	if err != nil {
		var ce *credential.CodecError
		kind := "unknown"
		if errors.As(err, &ce) {
			kind = string(ce.Kind)
		}
		result := invalidResult(fmt.Sprintf("qr_decode_failed:%s", kind))
		e.logAnomaly(ctx, req.OrgID, "", result)
		return result, nil
	}

	// Resolve.
	rec, err := e.registry.Lookup(ctx, cred.ProductID)
	if err != nil {
		result := invalidResult("registry_lookup_failed")
		e.logAnomaly(ctx, req.OrgID, cred.ProductID, result)
		return result, err
	}
	if rec == nil {
		// No lineage exists to append to; the attempt is still auditable
		// through the org-level anomaly log.
		result := invalidResult("product_not_found")
		e.logAnomaly(ctx, req.OrgID, cred.ProductID, result)
		return result, nil
	}

	// Lineage check. A broken hash chain is direct tamper evidence, the
	// strongest negative signal there is.
	report, err := e.ledger.VerifyChain(ctx, cred.ProductID)
	if err != nil {
		result := invalidResult("ledger_unavailable")
		return result, err
	}
	if report.BlockCount == 0 {
		// Present in the registry but never anchored on the ledger. There is
		// no lineage to append the attempt to, so it lands in the org-level
		// anomaly log like any other unattachable attempt.
		result := invalidResult("lineage_missing")
		e.logAnomaly(ctx, req.OrgID, cred.ProductID, result)
		return result, nil
	}
	if !report.Valid {
		result := ledger.VerificationResult{
			Verdict:    ledger.VerdictFake,
			AIScore:    0,
			Confidence: 95,
			RiskLevel:  ledger.RiskCritical,
			Factors:    []string{"chain_integrity_violation"},
		}
		return result, e.record(ctx, req, cred, rec, result)
	}

	// Scoring.
	result := e.score(ctx, req, cred, rec, report)

	return result, e.record(ctx, req, cred, rec, result)
}

func invalidResult(factor string) ledger.VerificationResult {
	return ledger.VerificationResult{
		Verdict:    ledger.VerdictInvalid,
		AIScore:    0,
		Confidence: 0,
		RiskLevel:  ledger.RiskHigh,
		Factors:    []string{factor},
	}
}

// score combines the independent signals into a weighted sum normalized over
// the signals that were actually available. Fewer available signals means
// lower confidence even when the score itself is high.
func (e *Engine) score(ctx context.Context, req Request, cred credential.Credential, rec *registry.ProductRecord, report ledger.ValidationReport) ledger.VerificationResult {
	type signal struct {
		weight float64
		value  float64 // 0..1
		factor string
	}
	var available []signal
	const totalSignals = 4

	// Identity match: the decrypted credential must name the registered
	// product and organization. Binary and heavily weighted.
	identity := signal{weight: e.policy.Weights.IdentityMatch, value: 0, factor: "identity_mismatch"}
	if cred.ProductID == rec.ProductID && cred.OrgID == rec.OrgID {
		identity.value = 1
		identity.factor = "identity_match"
	}
	available = append(available, identity)

	// Registration recency: neither too new to be physically distributed
	// nor implausibly old.
	if len(report.Blocks) > 0 {
		age := e.now().Sub(time.Unix(report.Blocks[0].Timestamp, 0))
		recency := signal{weight: e.policy.Weights.Recency, value: 1, factor: "registration_recency_ok"}
		switch {
		case age < e.policy.MinRegistrationAge:
			recency.value = 0
			recency.factor = "registration_too_new"
		case age > e.policy.MaxRegistrationAge:
			recency.value = 0
			recency.factor = "registration_implausibly_old"
		}
		available = append(available, recency)
	}

	// Scan-repetition pressure on this credential nonce.
	if count, err := e.scans.Bump(ctx, cred.Nonce); err == nil {
		scan := signal{weight: e.policy.Weights.ScanPattern, value: 1, factor: "scan_pattern_normal"}
		if count > e.policy.ScanAlertCount {
			scan.value = 0
			scan.factor = "scan_repetition_anomaly"
		}
		available = append(available, scan)
	}

	// Optional external image authenticity score.
	if len(req.Image) > 0 && e.images != nil {
		if imgScore, err := e.images.Score(ctx, req.Image); err == nil {
			available = append(available, signal{
				weight: e.policy.Weights.Image,
				value:  clamp01(imgScore / 100),
				factor: fmt.Sprintf("image_score:%.0f", imgScore),
			})
		}
	}

	var weightSum, scoreSum float64
	factors := make([]string, 0, len(available))
	for _, s := range available {
		weightSum += s.weight
		scoreSum += s.weight * s.value
		factors = append(factors, s.factor)
	}
	score := 0.0
	if weightSum > 0 {
		score = 100 * scoreSum / weightSum
	}

	verdict := e.policy.verdictFor(score)
	return ledger.VerificationResult{
		Verdict:    verdict,
		AIScore:    score,
		Confidence: 100 * float64(len(available)) / totalSignals,
		RiskLevel:  riskFor(verdict),
		Factors:    factors,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// record appends the VERIFY transaction and raises notifications. It runs
// only after the verdict is fully computed, so a cancelled request never
// leaves a half-written attempt behind. The verdict has already been decided
// when record fails; the error is surfaced for the caller's retry policy.
func (e *Engine) record(ctx context.Context, req Request, cred credential.Credential, rec *registry.ProductRecord, result ledger.VerificationResult) error {
	if result.Verdict == ledger.VerdictFake || result.Verdict == ledger.VerdictSuspicious {
		// Best-effort: notification failures never affect the attempt.
		_ = e.notifier.Publish(ctx, notify.NewEvent("verdict", rec.ProductID, rec.OrgID, map[string]any{
			"verdict":  string(result.Verdict),
			"ai_score": result.AIScore,
			"verifier": req.VerifierID,
		}))
	}

	_, err := e.ledger.Append(ctx, ledger.AppendRequest{
		Type:      ledger.TxVerify,
		RefType:   ledger.RefVerification,
		RefID:     cred.ProductID,
		OrgID:     rec.OrgID,
		CreatedBy: req.VerifierID,
		Payload:   ledger.VerifyPayload{Result: result},
	})
	return err
}

func (e *Engine) logAnomaly(ctx context.Context, orgID, productID string, result ledger.VerificationResult) {
	// Best-effort: the result is already terminal; a logging failure must
	// not mask it.
	_ = e.anomalies.Record(ctx, anomaly.Entry{
		OrgID:     orgID,
		ProductID: productID,
		Reason:    string(result.Verdict),
		Factors:   result.Factors,
	})
}
