// Package registry defines the read-only boundary to the product registry
// collaborator. The core looks products up; writing registry records belongs
// to the surrounding application, except for the genesis ledger append which
// the movement service drives through the ledger engine.
package registry

import (
	"context"
	"time"
)

// ProductRecord is the registry's view of a product.
type ProductRecord struct {
	ProductID    string            `json:"product_id"`
	OrgID        string            `json:"org_id"`
	SKU          string            `json:"sku"`
	Name         string            `json:"name"`
	Category     string            `json:"category,omitempty"`
	Specs        map[string]string `json:"specs,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
}

// Registry is the collaborator interface. Lookup returns nil without error
// when the product does not exist.
type Registry interface {
	Lookup(ctx context.Context, productID string) (*ProductRecord, error)
}
