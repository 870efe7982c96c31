package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Redis is a DocumentStore backed by a Redis instance. Documents live in
// plain keys, index fields in a per-document hash, and each indexed
// field=value pair in a membership set used to answer equality queries.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. prefix namespaces all keys so several
// stores can share one instance.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "veritrace"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) docKey(collection, key string) string {
	return fmt.Sprintf("%s:%s:doc:%s", r.prefix, collection, key)
}

func (r *Redis) metaKey(collection, key string) string {
	return fmt.Sprintf("%s:%s:meta:%s", r.prefix, collection, key)
}

func (r *Redis) indexKey(collection, field, value string) string {
	return fmt.Sprintf("%s:%s:ix:%s:%s", r.prefix, collection, field, value)
}

func (r *Redis) allKey(collection string) string {
	return fmt.Sprintf("%s:%s:all", r.prefix, collection)
}

func (r *Redis) Put(ctx context.Context, collection, key string, data []byte, index map[string]string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.docKey(collection, key), data, 0)
	if len(index) > 0 {
		fields := make(map[string]any, len(index))
		for f, v := range index {
			fields[f] = v
			pipe.SAdd(ctx, r.indexKey(collection, f, v), key)
		}
		pipe.HSet(ctx, r.metaKey(collection, key), fields)
	}
	// Insertion order for unordered queries; overwrites keep a single entry.
	pipe.LRem(ctx, r.allKey(collection), 0, key)
	pipe.RPush(ctx, r.allKey(collection), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Get(ctx context.Context, collection, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.docKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (r *Redis) Query(ctx context.Context, collection string, filters map[string]string, orderBy string, limit int) ([][]byte, error) {
	keys, err := r.candidateKeys(ctx, collection, filters)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	if orderBy != "" {
		type ranked struct {
			key  string
			rank string
		}
		rankedKeys := make([]ranked, 0, len(keys))
		for _, k := range keys {
			v, err := r.client.HGet(ctx, r.metaKey(collection, k), orderBy).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return nil, err
			}
			rankedKeys = append(rankedKeys, ranked{key: k, rank: v})
		}
		sort.Slice(rankedKeys, func(i, j int) bool { return rankedKeys[i].rank < rankedKeys[j].rank })
		keys = keys[:0]
		for _, rk := range rankedKeys {
			keys = append(keys, rk.key)
		}
	}

	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		data, err := r.client.Get(ctx, r.docKey(collection, k)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between index read and fetch
		}
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// candidateKeys returns the keys matching all equality filters, in insertion
// order when no filter applies.
func (r *Redis) candidateKeys(ctx context.Context, collection string, filters map[string]string) ([]string, error) {
	if len(filters) == 0 {
		return r.client.LRange(ctx, r.allKey(collection), 0, -1).Result()
	}
	setKeys := make([]string, 0, len(filters))
	for f, v := range filters {
		setKeys = append(setKeys, r.indexKey(collection, f, v))
	}
	return r.client.SInter(ctx, setKeys...).Result()
}
