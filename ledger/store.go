package ledger

import (
	"context"
	"fmt"
)

// StoreErrorKind classifies adapter-level failures for retry policy.
type StoreErrorKind string

const (
	// StoreTimeout means the operation exceeded its caller-supplied
	// deadline. Retryable.
	StoreTimeout StoreErrorKind = "timeout"
	// StoreConflict means a block-number race was lost: another append
	// claimed the slot first. The caller must re-fetch the next block
	// number and retry the whole append.
	StoreConflict StoreErrorKind = "conflict"
	// StoreCanceled means the caller abandoned the operation. Not
	// retryable: the cancellation was deliberate.
	StoreCanceled StoreErrorKind = "canceled"
	// StoreUnavailable means the underlying store failed. Retryable.
	StoreUnavailable StoreErrorKind = "unavailable"
)

// StoreError wraps a document-store failure with its retry classification.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger store: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Retryable reports whether the failed operation may be retried as-is.
// Conflicts are not: the append must be rebuilt on a fresh block number.
// Cancellations are not: the caller chose to stop.
func (e *StoreError) Retryable() bool {
	return e.Kind == StoreTimeout || e.Kind == StoreUnavailable
}

// Store is the append-only interface the Engine writes through. All errors
// it returns are *StoreError.
type Store interface {
	// Append durably persists tx. It is idempotent on TxHash: re-appending
	// an existing hash is a no-op success. Appends for the same lineage are
	// serialized; a transaction whose BlockNumber no longer follows the
	// lineage head fails with a Conflict.
	Append(ctx context.Context, tx *Transaction) error

	// ListByLineage returns all transactions for a product ordered by
	// block number ascending.
	ListByLineage(ctx context.Context, productID string) ([]Transaction, error)

	// ListByOrg returns all transactions recorded under an organization.
	ListByOrg(ctx context.Context, orgID string) ([]Transaction, error)

	// ListByType returns all transactions of one type.
	ListByType(ctx context.Context, t TxType) ([]Transaction, error)

	// Head returns the last transaction of a lineage, or nil when the
	// lineage is empty.
	Head(ctx context.Context, productID string) (*Transaction, error)

	// NextBlockNumber returns the block number the next append must claim:
	// current lineage max plus one, or zero for an empty lineage.
	NextBlockNumber(ctx context.Context, productID string) (uint64, error)
}
