package docstore

import (
	"context"
	"sort"
	"sync"
)

type memoryDoc struct {
	data  []byte
	index map[string]string
	seq   uint64
}

// Memory is an in-memory DocumentStore for tests and the demo binary. It is
// safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryDoc
	nextSeq     uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]memoryDoc)}
}

func (m *Memory) Put(ctx context.Context, collection, key string, data []byte, index map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[collection]
	if !ok {
		col = make(map[string]memoryDoc)
		m.collections[collection] = col
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	idx := make(map[string]string, len(index))
	for k, v := range index {
		idx[k] = v
	}

	seq := m.nextSeq
	if prev, ok := col[key]; ok {
		seq = prev.seq // overwrite keeps insertion order
	} else {
		m.nextSeq++
	}
	col[key] = memoryDoc{data: cp, index: idx, seq: seq}
	return nil
}

func (m *Memory) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(doc.data))
	copy(cp, doc.data)
	return cp, nil
}

func (m *Memory) Query(ctx context.Context, collection string, filters map[string]string, orderBy string, limit int) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []memoryDoc
	for _, doc := range m.collections[collection] {
		if matchesFilters(doc.index, filters) {
			matched = append(matched, doc)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if orderBy != "" {
			a, b := matched[i].index[orderBy], matched[j].index[orderBy]
			if a != b {
				return a < b
			}
		}
		return matched[i].seq < matched[j].seq
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([][]byte, len(matched))
	for i, doc := range matched {
		cp := make([]byte, len(doc.data))
		copy(cp, doc.data)
		out[i] = cp
	}
	return out, nil
}

func matchesFilters(index, filters map[string]string) bool {
	for k, v := range filters {
		if index[k] != v {
			return false
		}
	}
	return true
}
