// Package anomaly records verification attempts that cannot be attached to
// any product lineage, such as tokens naming products the registry has never
// seen. These land in an org-level log instead of the (nonexistent) lineage
// so that probing with fabricated QR codes still leaves a trace.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veritrace/veritrace/docstore"
)

// Entry is one anomalous verification attempt.
type Entry struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id,omitempty"`
	ProductID string    `json:"product_id,omitempty"` // as claimed by the token
	Reason    string    `json:"reason"`
	Factors   []string  `json:"factors,omitempty"`
	At        time.Time `json:"at"`
}

// Log is the collaborator interface.
type Log interface {
	Record(ctx context.Context, e Entry) error
	ListByOrg(ctx context.Context, orgID string) ([]Entry, error)
}

const collection = "anomaly_log"

// DocLog stores entries in the document store, indexed by organization.
type DocLog struct {
	docs docstore.DocumentStore
}

// NewDocLog wraps a document store.
func NewDocLog(docs docstore.DocumentStore) *DocLog {
	return &DocLog{docs: docs}
}

func (l *DocLog) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode anomaly entry: %w", err)
	}
	return l.docs.Put(ctx, collection, e.ID, data, map[string]string{
		"orgId":   e.OrgID,
		"created": e.At.UTC().Format(time.RFC3339Nano),
	})
}

func (l *DocLog) ListByOrg(ctx context.Context, orgID string) ([]Entry, error) {
	docs, err := l.docs.Query(ctx, collection, map[string]string{"orgId": orgID}, "created", 0)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		var e Entry
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("failed to decode anomaly entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
