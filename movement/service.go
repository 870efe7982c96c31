// Package movement is the thin service validating product lifecycle events
// before they reach the ledger engine: registration, stock movements, custody
// transfers and quality-control inspections. All chain mechanics live in the
// engine; this layer only checks that the event makes physical sense.
package movement

import (
	"context"
	"fmt"

	"github.com/veritrace/veritrace/ledger"
	"github.com/veritrace/veritrace/notify"
	"github.com/veritrace/veritrace/registry"
)

// Service validates and appends lifecycle transactions.
type Service struct {
	ledger   *ledger.Engine
	registry registry.Registry
	notifier notify.Notifier
}

// NewService wires the service. notifier may be notify.Nop{}.
func NewService(led *ledger.Engine, reg registry.Registry, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{ledger: led, registry: reg, notifier: notifier}
}

// RegisterProduct appends the genesis transaction for a product. The product
// must already exist in the registry; the ledger genesis is the registry
// record's anchor, not its source.
func (s *Service) RegisterProduct(ctx context.Context, actorID, productID string) (ledger.Transaction, error) {
	rec, err := s.registry.Lookup(ctx, productID)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("registry lookup failed: %w", err)
	}
	if rec == nil {
		return ledger.Transaction{}, fmt.Errorf("product %s is not in the registry", productID)
	}

	return s.ledger.Append(ctx, ledger.AppendRequest{
		Type:      ledger.TxProductRegister,
		RefType:   ledger.RefProduct,
		RefID:     productID,
		OrgID:     rec.OrgID,
		CreatedBy: actorID,
		Payload: ledger.RegisterPayload{
			SKU:      rec.SKU,
			Name:     rec.Name,
			Category: rec.Category,
			Quantity: 1,
			Info:     rec.Specs,
		},
	})
}

// RecordMovement appends a stock movement between locations.
func (s *Service) RecordMovement(ctx context.Context, actorID, productID, orgID string, p ledger.MovementPayload) (ledger.Transaction, error) {
	if p.From == "" || p.To == "" {
		return ledger.Transaction{}, fmt.Errorf("movement requires both endpoints")
	}
	if p.From == p.To {
		return ledger.Transaction{}, fmt.Errorf("movement endpoints must differ")
	}
	if p.Quantity <= 0 {
		return ledger.Transaction{}, fmt.Errorf("movement quantity must be positive, got %d", p.Quantity)
	}

	tx, err := s.ledger.Append(ctx, ledger.AppendRequest{
		Type:      ledger.TxMovement,
		RefType:   ledger.RefMovement,
		RefID:     productID,
		OrgID:     orgID,
		CreatedBy: actorID,
		Payload:   p,
	})
	if err != nil {
		return tx, err
	}
	_ = s.notifier.Publish(ctx, notify.NewEvent("movement", productID, orgID, map[string]any{
		"from": p.From, "to": p.To, "quantity": p.Quantity,
	}))
	return tx, nil
}

// RecordTransfer appends a custody transfer. The transferring party must be
// the product's current holder, derived from the confirmed chain itself so
// the registry boundary stays read-only.
func (s *Service) RecordTransfer(ctx context.Context, actorID, productID, orgID string, p ledger.TransferPayload) (ledger.Transaction, error) {
	if p.From == "" || p.To == "" {
		return ledger.Transaction{}, fmt.Errorf("transfer requires both parties")
	}
	if p.From == p.To {
		return ledger.Transaction{}, fmt.Errorf("transfer parties must differ")
	}

	holder, err := s.CurrentHolder(ctx, productID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if holder != "" && holder != p.From {
		return ledger.Transaction{}, fmt.Errorf("transfer from %s rejected: current holder is %s", p.From, holder)
	}

	tx, err := s.ledger.Append(ctx, ledger.AppendRequest{
		Type:      ledger.TxTransfer,
		RefType:   ledger.RefProduct,
		RefID:     productID,
		OrgID:     orgID,
		CreatedBy: actorID,
		Payload:   p,
	})
	if err != nil {
		return tx, err
	}
	_ = s.notifier.Publish(ctx, notify.NewEvent("transfer", productID, orgID, map[string]any{
		"from": p.From, "to": p.To,
	}))
	return tx, nil
}

// RecordInspection appends a quality-control log entry.
func (s *Service) RecordInspection(ctx context.Context, actorID, productID, orgID string, p ledger.QCPayload) (ledger.Transaction, error) {
	if p.Inspector == "" {
		p.Inspector = actorID
	}
	if p.Result == "" {
		return ledger.Transaction{}, fmt.Errorf("inspection requires a result")
	}
	return s.ledger.Append(ctx, ledger.AppendRequest{
		Type:      ledger.TxQCLog,
		RefType:   ledger.RefBatch,
		RefID:     productID,
		OrgID:     orgID,
		CreatedBy: actorID,
		Payload:   p,
	})
}

// CurrentHolder walks the lineage for the last confirmed custody change and
// returns its receiving party, or the empty string when custody has never
// changed hands.
func (s *Service) CurrentHolder(ctx context.Context, productID string) (string, error) {
	txs, err := s.ledger.Lineage(ctx, productID)
	if err != nil {
		return "", err
	}
	for i := len(txs) - 1; i >= 0; i-- {
		if p, ok := txs[i].Payload.(ledger.TransferPayload); ok {
			return p.To, nil
		}
	}
	return "", nil
}
