package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/veritrace/veritrace/hashing"
)

// Engine extends a lineage's hash chain and validates it. It performs no
// automatic retries: a Conflict from the store means the block number raced
// and the caller must rebuild the append, a policy the engine refuses to
// guess at.
type Engine struct {
	store Store
	now   func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source. Used by tests to keep hashes
// reproducible.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine writing through the given store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AppendRequest carries the logical content of a new transaction. All hashes
// are derived by the engine, never supplied by callers.
type AppendRequest struct {
	Type      TxType
	RefType   RefType
	RefID     string // lineage key: the product ID
	OrgID     string
	CreatedBy string
	Payload   Payload
}

// blockSeed is the exact input to the block hash. Field order does not
// matter; canonical encoding sorts keys.
type blockSeed struct {
	PreviousHash string            `json:"previous_hash"`
	SenderHash   string            `json:"sender_hash"`
	ReceiverHash string            `json:"receiver_hash"`
	ProductHash  string            `json:"product_hash"`
	Timestamp    int64             `json:"timestamp"`
	ProductInfo  map[string]string `json:"product_info"`
	Remarks      Remarks           `json:"remarks"`
}

// txSeed is the exact input to the transaction hash. It contains only
// recorded logical content, so re-hashing the same transaction always yields
// the same value.
type txSeed struct {
	Type        TxType  `json:"type"`
	RefID       string  `json:"ref_id"`
	OrgID       string  `json:"org_id"`
	CreatedBy   string  `json:"created_by"`
	Payload     Payload `json:"payload"`
	BlockNumber uint64  `json:"block_number"`
}

// Append validates the request against the lineage's structure, derives the
// block number, hashes and chain linkage, and persists the transaction.
//
// On a store failure the transaction is still returned, with StatusFailed,
// alongside the error; whether to retry is the caller's decision.
func (e *Engine) Append(ctx context.Context, req AppendRequest) (Transaction, error) {
	if req.RefID == "" {
		return Transaction{}, fmt.Errorf("ledger: append requires a product ID")
	}
	if req.Payload == nil {
		return Transaction{}, fmt.Errorf("ledger: append requires a payload")
	}
	if req.Payload.PayloadType() != req.Type {
		return Transaction{}, fmt.Errorf("ledger: payload variant %s does not match transaction type %s",
			req.Payload.PayloadType(), req.Type)
	}

	next, err := e.store.NextBlockNumber(ctx, req.RefID)
	if err != nil {
		return Transaction{}, err
	}

	if req.Type == TxProductRegister && next > 0 {
		return Transaction{}, &DuplicateGenesisError{ProductID: req.RefID}
	}
	if req.Type != TxProductRegister && next == 0 {
		return Transaction{}, &MissingGenesisError{ProductID: req.RefID}
	}

	prevHash := ""
	if next > 0 {
		head, err := e.store.Head(ctx, req.RefID)
		if err != nil {
			return Transaction{}, err
		}
		if head == nil {
			return Transaction{}, fmt.Errorf("ledger: lineage %s head vanished mid-append", req.RefID)
		}
		prevHash = head.BlockHash
	}

	tx := Transaction{
		Type:         req.Type,
		RefType:      req.RefType,
		RefID:        req.RefID,
		OrgID:        req.OrgID,
		CreatedBy:    req.CreatedBy,
		Payload:      req.Payload,
		Status:       StatusPending,
		BlockNumber:  next,
		PreviousHash: prevHash,
		CreatedAt:    e.now().UTC(),
	}
	if next == 0 {
		tx.HashAlg = hashing.AlgSHA256
	}

	blockHash, err := hashBlock(&tx)
	if err != nil {
		return Transaction{}, err
	}
	tx.BlockHash = blockHash

	txHash, err := hashTx(&tx)
	if err != nil {
		return Transaction{}, err
	}
	tx.TxHash = txHash

	if err := e.store.Append(ctx, &tx); err != nil {
		tx.Status = StatusFailed
		return tx, err
	}
	return tx, nil
}

// Lineage returns the product's transactions ordered by block number.
func (e *Engine) Lineage(ctx context.Context, productID string) ([]Transaction, error) {
	return e.store.ListByLineage(ctx, productID)
}

// VerifyChain walks the lineage recomputing every hash from stored fields and
// checking previous-hash linkage. It reads a snapshot and is safe to run
// concurrently with appends: an append in flight is simply invisible until
// confirmed.
func (e *Engine) VerifyChain(ctx context.Context, productID string) (ValidationReport, error) {
	txs, err := e.store.ListByLineage(ctx, productID)
	if err != nil {
		return ValidationReport{}, err
	}

	report := ValidationReport{
		ProductID:   productID,
		BlockCount:  len(txs),
		BrokenIndex: -1,
		Blocks:      make([]BlockView, 0, len(txs)),
	}
	if len(txs) == 0 {
		report.Reason = "lineage is empty"
		return report, nil
	}

	for i := range txs {
		view, err := DeriveBlockView(&txs[i])
		if err != nil {
			report.breakAt(txs, i, fmt.Sprintf("block view underivable: %v", err), "", "")
			return report, nil
		}
		report.Blocks = append(report.Blocks, view)

		if reason, expected, got := checkBlock(txs, i, view); reason != "" {
			report.breakAt(txs, i, reason, expected, got)
			return report, nil
		}
	}
	report.Valid = true
	return report, nil
}

// checkBlock validates block i of the lineage against its stored fields and
// its predecessor. An empty reason means the block is sound.
func checkBlock(txs []Transaction, i int, view BlockView) (reason, expected, got string) {
	tx := &txs[i]

	if view.BlockHash != tx.BlockHash {
		return "stored block hash does not match recomputation", view.BlockHash, tx.BlockHash
	}
	recomputedTx, err := hashTx(tx)
	if err != nil {
		return fmt.Sprintf("transaction hash underivable: %v", err), "", ""
	}
	if recomputedTx != tx.TxHash {
		return "stored transaction hash does not match recomputation", recomputedTx, tx.TxHash
	}

	if i == 0 {
		if tx.Type != TxProductRegister {
			return "genesis block is not a registration", string(TxProductRegister), string(tx.Type)
		}
		if tx.BlockNumber != 0 {
			return "genesis block number is not zero", "0", fmt.Sprintf("%d", tx.BlockNumber)
		}
		if tx.PreviousHash != "" {
			return "genesis block has a previous hash", "", tx.PreviousHash
		}
		if tx.HashAlg != hashing.AlgSHA256 {
			return "genesis block pins an unsupported hash algorithm", hashing.AlgSHA256, tx.HashAlg
		}
		return "", "", ""
	}

	prev := &txs[i-1]
	if tx.BlockNumber != prev.BlockNumber+1 {
		return "block number is not sequential",
			fmt.Sprintf("%d", prev.BlockNumber+1), fmt.Sprintf("%d", tx.BlockNumber)
	}
	if tx.PreviousHash != prev.BlockHash {
		return "previous hash does not link to predecessor", prev.BlockHash, tx.PreviousHash
	}
	return "", "", ""
}

func (r *ValidationReport) breakAt(txs []Transaction, i int, reason, expected, got string) {
	r.Valid = false
	r.BrokenIndex = i
	r.Reason = reason
	r.Expected = expected
	r.Got = got
	for _, tx := range txs[i+1:] {
		r.Unverifiable = append(r.Unverifiable, tx.BlockNumber)
	}
}

// ChainIntegrityError is the error form of a failed validation, surfaced as
// evidence rather than swallowed.
type ChainIntegrityError struct {
	ProductID   string
	BrokenIndex int
	Reason      string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("ledger: chain for %s broken at block %d: %s", e.ProductID, e.BrokenIndex, e.Reason)
}

// IntegrityError returns the report as an error, or nil when the chain is
// intact.
func (r *ValidationReport) IntegrityError() error {
	if r.Valid {
		return nil
	}
	return &ChainIntegrityError{ProductID: r.ProductID, BrokenIndex: r.BrokenIndex, Reason: r.Reason}
}

// DeriveBlockView recomputes the pseudonymized projection of a transaction
// from its stored fields. The returned view's BlockHash is the recomputation,
// which callers compare against the stored value.
func DeriveBlockView(tx *Transaction) (BlockView, error) {
	if tx.Payload == nil {
		return BlockView{}, fmt.Errorf("ledger: transaction %s has no payload", tx.TxHash)
	}
	seed := blockSeedFor(tx)

	hash, err := hashing.HashRecord(seed)
	if err != nil {
		return BlockView{}, err
	}

	view := BlockView{
		BlockNumber:  tx.BlockNumber,
		SenderHash:   seed.SenderHash,
		ReceiverHash: seed.ReceiverHash,
		ProductHash:  seed.ProductHash,
		Timestamp:    seed.Timestamp,
		ProductInfo:  seed.ProductInfo,
		Remarks:      seed.Remarks,
		BlockHash:    hash,
		HashAlg:      tx.HashAlg,
	}
	if tx.PreviousHash != "" {
		prev := tx.PreviousHash
		view.PreviousHash = &prev
	}
	return view, nil
}

// blockSeedFor pseudonymizes the parties and assembles the exact block hash
// input. For events without explicit parties the acting identity stands in
// as sender: the issuer for registrations, the verifier for verifications.
func blockSeedFor(tx *Transaction) blockSeed {
	sender, receiver := tx.Payload.parties()
	if sender == "" {
		sender = tx.CreatedBy
	}
	return blockSeed{
		PreviousHash: tx.PreviousHash,
		SenderHash:   hashing.HashIdentity(sender),
		ReceiverHash: hashing.HashIdentity(receiver),
		ProductHash:  hashing.HashIdentity(tx.RefID),
		Timestamp:    tx.CreatedAt.Unix(),
		ProductInfo:  tx.Payload.summary(),
		Remarks:      remarksFor(tx.Type),
	}
}

func hashBlock(tx *Transaction) (string, error) {
	return hashing.HashRecord(blockSeedFor(tx))
}

func hashTx(tx *Transaction) (string, error) {
	return hashing.HashRecord(txSeed{
		Type:        tx.Type,
		RefID:       tx.RefID,
		OrgID:       tx.OrgID,
		CreatedBy:   tx.CreatedBy,
		Payload:     tx.Payload,
		BlockNumber: tx.BlockNumber,
	})
}
