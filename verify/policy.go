package verify

import (
	"time"

	"github.com/veritrace/veritrace/ledger"
)

// Weights set the relative influence of each scoring signal. The score is
// normalized over the signals actually available, so absent signals lower
// confidence instead of dragging the score down.
type Weights struct {
	IdentityMatch float64
	Recency       float64
	ScanPattern   float64
	Image         float64
}

// Policy is the scoring and verdict configuration. It is data, not code:
// deployments tune it without touching the engine.
type Policy struct {
	Weights Weights

	// GenuineThreshold and SuspiciousThreshold split the score range into
	// verdicts: score >= GenuineThreshold is GENUINE, score >=
	// SuspiciousThreshold is SUSPICIOUS, anything lower is FAKE.
	GenuineThreshold    float64
	SuspiciousThreshold float64

	// A registration younger than MinRegistrationAge is suspicious: the
	// unit can hardly have been distributed yet. Older than
	// MaxRegistrationAge is implausible for goods still in circulation.
	MinRegistrationAge time.Duration
	MaxRegistrationAge time.Duration

	// ScanAlertCount is the number of scans of one credential nonce inside
	// the counter's window above which the scan pattern counts as
	// anomalous.
	ScanAlertCount int64
}

// DefaultPolicy returns the documented example defaults.
func DefaultPolicy() Policy {
	return Policy{
		Weights: Weights{
			IdentityMatch: 50,
			Recency:       20,
			ScanPattern:   20,
			Image:         10,
		},
		GenuineThreshold:    80,
		SuspiciousThreshold: 50,
		MinRegistrationAge:  24 * time.Hour,
		MaxRegistrationAge:  5 * 365 * 24 * time.Hour,
		ScanAlertCount:      10,
	}
}

// verdictFor maps a score to its verdict. Monotonic by construction: a higher
// score never yields a lower-trust verdict.
func (p Policy) verdictFor(score float64) ledger.Verdict {
	switch {
	case score >= p.GenuineThreshold:
		return ledger.VerdictGenuine
	case score >= p.SuspiciousThreshold:
		return ledger.VerdictSuspicious
	default:
		return ledger.VerdictFake
	}
}

func riskFor(v ledger.Verdict) ledger.RiskLevel {
	switch v {
	case ledger.VerdictGenuine:
		return ledger.RiskLow
	case ledger.VerdictSuspicious:
		return ledger.RiskMedium
	default:
		return ledger.RiskHigh
	}
}
