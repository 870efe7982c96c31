package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Put(ctx, "tx", "k1", []byte("v1"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := m.Get(ctx, "tx", "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected v1, got %s", got)
	}

	_, err = m.Get(ctx, "tx", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryQueryFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 3; i >= 0; i-- {
		key := fmt.Sprintf("k%d", i)
		err := m.Put(ctx, "tx", key, []byte(key), map[string]string{
			"refId": "P1",
			"block": fmt.Sprintf("%020d", i),
		})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := m.Put(ctx, "tx", "other", []byte("other"), map[string]string{"refId": "P2"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	docs, err := m.Query(ctx, "tx", map[string]string{"refId": "P1"}, "block", 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 4 {
		t.Fatalf("expected 4 docs, got %d", len(docs))
	}
	for i, doc := range docs {
		want := fmt.Sprintf("k%d", i)
		if string(doc) != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, doc)
		}
	}

	limited, err := m.Query(ctx, "tx", map[string]string{"refId": "P1"}, "block", 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(limited))
	}
}

func TestMemoryOverwriteKeepsSingleDoc(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Put(ctx, "tx", "k1", []byte("v1"), map[string]string{"refId": "P1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Put(ctx, "tx", "k1", []byte("v2"), map[string]string{"refId": "P1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	docs, err := m.Query(ctx, "tx", map[string]string{"refId": "P1"}, "", 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 1 || string(docs[0]) != "v2" {
		t.Fatalf("expected single v2 doc, got %d docs", len(docs))
	}
}

func TestMemoryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()

	if err := m.Put(ctx, "tx", "k1", []byte("v1"), nil); err == nil {
		t.Fatal("expected context error")
	}
}
