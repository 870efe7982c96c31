package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// TxType identifies the lifecycle event a transaction records.
type TxType string

const (
	TxProductRegister TxType = "PRODUCT_REGISTER"
	TxMovement        TxType = "MOVEMENT"
	TxTransfer        TxType = "TRANSFER"
	TxVerify          TxType = "VERIFY"
	TxQCLog           TxType = "QC_LOG"
)

// RefType describes what kind of entity RefID points at.
type RefType string

const (
	RefProduct      RefType = "product"
	RefMovement     RefType = "movement"
	RefVerification RefType = "verification"
	RefBatch        RefType = "batch"
)

// TxStatus tracks durability of a transaction. Only confirmed transactions
// carry trust weight.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
)

// Verdict is the terminal classification of a verification attempt.
type Verdict string

const (
	VerdictGenuine    Verdict = "GENUINE"
	VerdictFake       Verdict = "FAKE"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictInvalid    Verdict = "INVALID"
)

// RiskLevel qualifies a negative verdict.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// VerificationResult is the outcome of one verification attempt. It is
// embedded verbatim in the VERIFY transaction payload so that attempts,
// including failed ones, become auditable history.
type VerificationResult struct {
	Verdict    Verdict   `json:"verdict"`
	AIScore    float64   `json:"ai_score"`    // 0..100
	Confidence float64   `json:"confidence"`  // 0..100
	RiskLevel  RiskLevel `json:"risk_level,omitempty"`
	Factors    []string  `json:"factors"`
}

// Remarks labels the block view category of a transaction.
type Remarks string

const (
	RemarkRegister Remarks = "register_record"
	RemarkTransfer Remarks = "transfer_record"
	RemarkVerify   Remarks = "verify_record"
)

// Transaction is an immutable ledger entry. TxHash, PreviousHash and
// BlockHash are derived deterministically at append time and persisted with
// the entry so the chain can be re-validated from stored fields alone.
type Transaction struct {
	TxHash      string     `json:"tx_hash"`
	Type        TxType     `json:"type"`
	RefType     RefType    `json:"ref_type"`
	RefID       string     `json:"ref_id"` // lineage key: the product ID
	OrgID       string     `json:"org_id"`
	CreatedBy   string     `json:"created_by"`
	Payload     Payload    `json:"payload"`
	Status      TxStatus   `json:"status"`
	BlockNumber uint64     `json:"block_number"`
	// PreviousHash is empty only on the genesis block.
	PreviousHash string `json:"previous_hash,omitempty"`
	BlockHash    string `json:"block_hash"`
	// HashAlg is set on the genesis block only and pins the digest
	// algorithm for the whole lineage.
	HashAlg     string     `json:"hash_alg,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// UnmarshalJSON decodes the payload into its concrete variant based on Type.
func (t *Transaction) UnmarshalJSON(b []byte) error {
	type alias Transaction
	tmp := struct {
		*alias
		Payload json.RawMessage `json:"payload"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	if len(tmp.Payload) == 0 || string(tmp.Payload) == "null" {
		t.Payload = nil
		return nil
	}
	p, err := decodePayload(t.Type, tmp.Payload)
	if err != nil {
		return err
	}
	t.Payload = p
	return nil
}

// BlockView is the pseudonymized, hash-linked projection of a Transaction
// used for integrity checking and display. It is derived, never persisted
// independently of its source transaction.
type BlockView struct {
	BlockNumber  uint64            `json:"block_number"`
	PreviousHash *string           `json:"previous_hash"` // nil for genesis
	SenderHash   string            `json:"sender_hash,omitempty"`
	ReceiverHash string            `json:"receiver_hash,omitempty"`
	ProductHash  string            `json:"product_hash"`
	Timestamp    int64             `json:"timestamp"`
	ProductInfo  map[string]string `json:"product_info"`
	Remarks      Remarks           `json:"remarks"`
	BlockHash    string            `json:"block_hash"`
	HashAlg      string            `json:"hash_alg,omitempty"`
	// Reconstructed marks a view rebuilt by migration tooling rather than
	// derived from an originally appended transaction. The engine never
	// sets it; fabricated history must stay distinguishable from real.
	Reconstructed bool `json:"reconstructed,omitempty"`
}

// ValidationReport is the result of walking a lineage's chain. BrokenIndex is
// -1 when the chain is intact; otherwise it is the index of the first block
// that failed validation and Unverifiable lists the block numbers after it,
// whose linkage can no longer be trusted.
type ValidationReport struct {
	ProductID    string      `json:"product_id"`
	Valid        bool        `json:"valid"`
	BlockCount   int         `json:"block_count"`
	BrokenIndex  int         `json:"broken_index"`
	Reason       string      `json:"reason,omitempty"`
	Expected     string      `json:"expected,omitempty"`
	Got          string      `json:"got,omitempty"`
	Unverifiable []uint64    `json:"unverifiable,omitempty"`
	Blocks       []BlockView `json:"blocks"`
}

// DuplicateGenesisError reports a second PRODUCT_REGISTER append for a
// lineage that already has one. Always fatal to the requested operation.
type DuplicateGenesisError struct {
	ProductID string
}

func (e *DuplicateGenesisError) Error() string {
	return fmt.Sprintf("ledger: lineage %s already has a genesis block", e.ProductID)
}

// MissingGenesisError reports a non-register append on a lineage that has no
// genesis yet. A lineage must begin with registration.
type MissingGenesisError struct {
	ProductID string
}

func (e *MissingGenesisError) Error() string {
	return fmt.Sprintf("ledger: lineage %s has no genesis block", e.ProductID)
}
