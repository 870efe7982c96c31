// Package ledger implements a tamper-evident, hash-chained audit log over the
// lifecycle of a physical product. Registrations, movements, transfers,
// inspections and verification attempts are recorded as immutable
// transactions and linked into a per-product hash chain whose integrity can
// be re-validated at any time.
//
// This is a single-writer, hash-linked audit log, not a decentralized
// blockchain: there is no consensus, no mining, and no peer replication. The
// chain exists purely as tamper evidence over an ordinary document store.
//
// # Core Components
//
// Transaction: A single ledger entry with a hash derived deterministically
// from its logical content.
//
// Store: Interface for durable, idempotent, per-lineage serialized appends.
//
// Adapter: Store implementation over the external document store; the sole
// point where block-number assignment races are serialized.
//
// Engine: Extends a lineage's chain and validates it, producing a
// ValidationReport that pinpoints the first broken block when tampering is
// detected.
//
// # Security Properties
//
// The chain provides:
//   - Immutability: Once confirmed, transactions are never updated or deleted
//   - Verifiability: The whole lineage can be re-validated from stored fields
//   - Auditability: Verification attempts, including failures, are recorded
//   - Tamper detection: Any modification breaks the hash chain
//
// # Lineages
//
// A lineage is the ordered set of transactions sharing one product ID. Every
// lineage begins with exactly one PRODUCT_REGISTER transaction at block 0
// (the genesis block, previous hash absent) and grows append-only: block i
// always records the block hash of block i-1.
package ledger
