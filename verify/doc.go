// Package verify implements the QR authentication protocol: it decodes a
// presented token, cross-references the product registry and the ledger's
// hash chain, combines independent signals into a weighted authenticity
// score, and maps the score to a terminal verdict.
//
// # Verification Flow
//
// Each attempt walks a fixed sequence with terminal states GENUINE, FAKE,
// SUSPICIOUS and INVALID:
//
//  1. Decode the token; any codec failure is terminal INVALID
//  2. Resolve the product in the registry; unknown products are terminal
//     INVALID and land in the org-level anomaly log
//  3. Validate the lineage's hash chain; a product with no lineage at all
//     is terminal INVALID and lands in the anomaly log, while a broken
//     chain is terminal FAKE, since tamper evidence is proof, not a
//     heuristic
//  4. Score the remaining signals: identity match, registration recency,
//     scan-repetition pressure, and an optional external image score
//  5. Map the score to a verdict through configurable thresholds
//  6. Append a VERIFY transaction recording the result, whatever it was
//
// A verification endpoint must give a physical-world actor an answer, so
// Verify always returns a VerificationResult; infrastructure failures after
// the verdict is computed are reported alongside it, never instead of it.
package verify
