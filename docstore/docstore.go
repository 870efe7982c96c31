// Package docstore defines the narrow boundary to the external document
// store: durable keyed storage with equality queries and ordering over
// indexed fields. The ledger adapter is the only core component that should
// touch this boundary.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists under the key.
var ErrNotFound = errors.New("docstore: document not found")

// DocumentStore is the collaborator interface. Implementations must treat Put
// for an existing key as an overwrite and must apply all index fields
// atomically with the document body.
type DocumentStore interface {
	// Put stores data under (collection, key). The index map holds the
	// queryable fields of the document; values are compared as strings, so
	// numeric fields must be encoded in an order-preserving form by the
	// caller (e.g. zero-padded).
	Put(ctx context.Context, collection, key string, data []byte, index map[string]string) error

	// Get returns the document stored under (collection, key), or
	// ErrNotFound.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Query returns the documents in collection whose index fields match
	// every entry of filters, ordered ascending by the orderBy index field
	// (insertion order if orderBy is empty). limit <= 0 means no limit.
	Query(ctx context.Context, collection string, filters map[string]string, orderBy string, limit int) ([][]byte, error)
}
