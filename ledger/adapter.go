package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veritrace/veritrace/docstore"
)

const txCollection = "ledger_transactions"

// Index fields maintained on every stored transaction. Block numbers are
// zero-padded so string ordering matches numeric ordering.
const (
	ixLineage = "refId"
	ixOrg     = "orgId"
	ixType    = "type"
	ixBlock   = "block"
	ixCreated = "created"
)

// Adapter implements Store over the external document store. It is the sole
// point where block-number assignment races are serialized: appends for the
// same lineage take a per-lineage lock and re-check the lineage head before
// writing (compare-and-append). Appends to different lineages proceed in
// parallel.
type Adapter struct {
	docs docstore.DocumentStore

	mu      sync.Mutex
	lineage map[string]*sync.Mutex
}

// NewAdapter wraps a document store.
func NewAdapter(docs docstore.DocumentStore) *Adapter {
	return &Adapter{docs: docs, lineage: make(map[string]*sync.Mutex)}
}

func (a *Adapter) lineageLock(productID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.lineage[productID]
	if !ok {
		l = &sync.Mutex{}
		a.lineage[productID] = l
	}
	return l
}

// wrap classifies a document-store failure. An exceeded deadline is a
// retryable timeout; a cancelled context means the caller abandoned the
// operation and must not be invited to retry.
func (a *Adapter) wrap(op string, err error) *StoreError {
	kind := StoreUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = StoreTimeout
	case errors.Is(err, context.Canceled):
		kind = StoreCanceled
	}
	return &StoreError{Kind: kind, Op: op, Err: err}
}

func (a *Adapter) Append(ctx context.Context, tx *Transaction) error {
	lock := a.lineageLock(tx.RefID)
	lock.Lock()
	defer lock.Unlock()

	// Idempotency on TxHash: re-appending an existing transaction is a
	// no-op success that reflects the stored confirmation, not a duplicate.
	stored, err := a.docs.Get(ctx, txCollection, tx.TxHash)
	if err == nil {
		var prev Transaction
		if uerr := json.Unmarshal(stored, &prev); uerr != nil {
			return &StoreError{Kind: StoreUnavailable, Op: "append", Err: uerr}
		}
		tx.Status = prev.Status
		tx.ConfirmedAt = prev.ConfirmedAt
		return nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return a.wrap("append", err)
	}

	// Compare-and-append: the block number claimed by the caller must still
	// follow the lineage head. A lost race surfaces as Conflict and the
	// caller rebuilds the append on a fresh number.
	next, err := a.deriveNextBlockNumber(ctx, tx.RefID)
	if err != nil {
		return err
	}
	if tx.BlockNumber != next {
		return &StoreError{
			Kind: StoreConflict,
			Op:   "append",
			Err:  fmt.Errorf("block %d for lineage %s already claimed, next is %d", tx.BlockNumber, tx.RefID, next),
		}
	}

	now := time.Now().UTC()
	tx.Status = StatusConfirmed
	tx.ConfirmedAt = &now

	data, err := json.Marshal(tx)
	if err != nil {
		tx.Status = StatusPending
		tx.ConfirmedAt = nil
		return &StoreError{Kind: StoreUnavailable, Op: "append", Err: err}
	}
	index := map[string]string{
		ixLineage: tx.RefID,
		ixOrg:     tx.OrgID,
		ixType:    string(tx.Type),
		ixBlock:   fmt.Sprintf("%020d", tx.BlockNumber),
		ixCreated: tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := a.docs.Put(ctx, txCollection, tx.TxHash, data, index); err != nil {
		tx.Status = StatusPending
		tx.ConfirmedAt = nil
		return a.wrap("append", err)
	}
	return nil
}

func (a *Adapter) ListByLineage(ctx context.Context, productID string) ([]Transaction, error) {
	return a.list(ctx, "listByLineage", map[string]string{ixLineage: productID}, ixBlock)
}

func (a *Adapter) ListByOrg(ctx context.Context, orgID string) ([]Transaction, error) {
	return a.list(ctx, "listByOrg", map[string]string{ixOrg: orgID}, ixCreated)
}

func (a *Adapter) ListByType(ctx context.Context, t TxType) ([]Transaction, error) {
	return a.list(ctx, "listByType", map[string]string{ixType: string(t)}, ixCreated)
}

func (a *Adapter) list(ctx context.Context, op string, filters map[string]string, orderBy string) ([]Transaction, error) {
	docs, err := a.docs.Query(ctx, txCollection, filters, orderBy, 0)
	if err != nil {
		return nil, a.wrap(op, err)
	}
	txs := make([]Transaction, 0, len(docs))
	for _, doc := range docs {
		var tx Transaction
		if err := json.Unmarshal(doc, &tx); err != nil {
			return nil, &StoreError{Kind: StoreUnavailable, Op: op, Err: err}
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (a *Adapter) Head(ctx context.Context, productID string) (*Transaction, error) {
	txs, err := a.ListByLineage(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[len(txs)-1], nil
}

func (a *Adapter) NextBlockNumber(ctx context.Context, productID string) (uint64, error) {
	return a.deriveNextBlockNumber(ctx, productID)
}

// deriveNextBlockNumber derives the next block number from the durable
// lineage itself, never from in-process state, so multiple service instances
// sharing the store stay consistent.
func (a *Adapter) deriveNextBlockNumber(ctx context.Context, productID string) (uint64, error) {
	head, err := a.Head(ctx, productID)
	if err != nil {
		return 0, err
	}
	if head == nil {
		return 0, nil
	}
	return head.BlockNumber + 1, nil
}
