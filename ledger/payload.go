package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Payload is the tagged union of event-specific facts, keyed by the
// transaction Type. Each variant carries its own typed field set plus an
// Extra escape hatch for forward compatibility, instead of one grab-bag map.
type Payload interface {
	// PayloadType returns the transaction type this payload belongs to.
	PayloadType() TxType

	// parties returns the sending and receiving party identifiers, empty
	// when the variant has no such notion.
	parties() (sender, receiver string)

	// summary returns the facts shown in the block view's product info.
	summary() map[string]string
}

// RegisterPayload describes the product at registration time.
type RegisterPayload struct {
	SKU      string            `json:"sku"`
	Name     string            `json:"name"`
	Category string            `json:"category,omitempty"`
	Quantity int64             `json:"quantity"`
	Info     map[string]string `json:"info,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

func (p RegisterPayload) PayloadType() TxType { return TxProductRegister }

func (p RegisterPayload) parties() (string, string) { return "", "" }

func (p RegisterPayload) summary() map[string]string {
	s := map[string]string{"sku": p.SKU, "name": p.Name}
	if p.Category != "" {
		s["category"] = p.Category
	}
	for k, v := range p.Info {
		s[k] = v
	}
	return s
}

// MovementPayload records stock moving between locations.
type MovementPayload struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Quantity int64             `json:"quantity"`
	SKU      string            `json:"sku,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

func (p MovementPayload) PayloadType() TxType { return TxMovement }

func (p MovementPayload) parties() (string, string) { return p.From, p.To }

func (p MovementPayload) summary() map[string]string {
	s := map[string]string{"quantity": strconv.FormatInt(p.Quantity, 10)}
	if p.SKU != "" {
		s["sku"] = p.SKU
	}
	return s
}

// TransferPayload records a change of custody between parties.
type TransferPayload struct {
	From  string            `json:"from"`
	To    string            `json:"to"`
	Extra map[string]string `json:"extra,omitempty"`
}

func (p TransferPayload) PayloadType() TxType { return TxTransfer }

func (p TransferPayload) parties() (string, string) { return p.From, p.To }

func (p TransferPayload) summary() map[string]string { return map[string]string{} }

// VerifyPayload embeds the full result of a verification attempt.
type VerifyPayload struct {
	Result VerificationResult `json:"result"`
	Extra  map[string]string  `json:"extra,omitempty"`
}

func (p VerifyPayload) PayloadType() TxType { return TxVerify }

func (p VerifyPayload) parties() (string, string) { return "", "" }

func (p VerifyPayload) summary() map[string]string {
	return map[string]string{"verdict": string(p.Result.Verdict)}
}

// QCPayload records a quality-control inspection.
type QCPayload struct {
	Inspector string            `json:"inspector"`
	Result    string            `json:"result"`
	Notes     string            `json:"notes,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

func (p QCPayload) PayloadType() TxType { return TxQCLog }

func (p QCPayload) parties() (string, string) { return "", "" }

func (p QCPayload) summary() map[string]string {
	return map[string]string{"result": p.Result}
}

// decodePayload selects the concrete variant for a stored payload based on
// the transaction type.
func decodePayload(t TxType, raw json.RawMessage) (Payload, error) {
	switch t {
	case TxProductRegister:
		var p RegisterPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TxMovement:
		var p MovementPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TxTransfer:
		var p TransferPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TxVerify:
		var p VerifyPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TxQCLog:
		var p QCPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("ledger: unknown transaction type %q", t)
	}
}

// remarksFor maps a transaction type to its block view category. QC logs are
// attestations about the product's state and render alongside verifications.
func remarksFor(t TxType) Remarks {
	switch t {
	case TxProductRegister:
		return RemarkRegister
	case TxMovement, TxTransfer:
		return RemarkTransfer
	default:
		return RemarkVerify
	}
}
