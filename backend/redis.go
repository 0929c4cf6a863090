package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/sona"
)

// RedisVectorStore implements the vector half of the backend contract on
// top of Redis. Entries are stored as JSON values with a set index of ids;
// similarity scoring happens client-side.
type RedisVectorStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Key prefix, default "sona:"
}

// NewRedisVectorStore creates a new Redis-backed vector store
func NewRedisVectorStore(opts RedisOptions) *RedisVectorStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisVectorStoreWithClient(client, opts.Prefix)
}

// NewRedisVectorStoreWithClient creates a store over an existing client.
// Useful for testing with miniredis.
func NewRedisVectorStoreWithClient(client redis.UniversalClient, prefix string) *RedisVectorStore {
	if prefix == "" {
		prefix = "sona:"
	}
	return &RedisVectorStore{client: client, prefix: prefix}
}

func (s *RedisVectorStore) entryKey(id string) string {
	return fmt.Sprintf("%sentry:%s", s.prefix, id)
}

func (s *RedisVectorStore) indexKey() string {
	return s.prefix + "entries"
}

// Insert stores an entry, assigning an id when none is set
func (s *RedisVectorStore) Insert(ctx context.Context, entry *sona.VectorEntry) (string, error) {
	if entry == nil || len(entry.Vector) == 0 {
		return "", sona.NewValidationError("entry", "missing vector")
	}
	if entry.ID == "" {
		entry.ID = sona.NewID()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.entryKey(entry.ID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), entry.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", sona.NewBackendError("insert", err)
	}
	return entry.ID, nil
}

// Search loads all indexed entries and scores them client-side by cosine
// similarity, highest first.
func (s *RedisVectorStore) Search(ctx context.Context, vector []float32, opts *sona.SearchOptions) ([]sona.SearchResult, error) {
	if opts == nil {
		opts = &sona.SearchOptions{}
	}

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, sona.NewBackendError("search", err)
	}

	results := make([]sona.SearchResult, 0, len(ids))
	for _, id := range ids {
		entry, err := s.load(ctx, id)
		if err != nil || entry == nil {
			continue
		}
		if !matchesFilter(entry.Metadata, opts.Filter) {
			continue
		}
		score := sona.CosineSimilarity(vector, entry.Vector)
		if score < opts.MinScore {
			continue
		}
		results = append(results, sona.SearchResult{Entry: entry, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if opts.Limit > 0 && opts.Limit < len(results) {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Get returns an entry by id, or nil when it does not exist
func (s *RedisVectorStore) Get(ctx context.Context, id string) (*sona.VectorEntry, error) {
	return s.load(ctx, id)
}

func (s *RedisVectorStore) load(ctx context.Context, id string) (*sona.VectorEntry, error) {
	data, err := s.client.Get(ctx, s.entryKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, sona.NewBackendError("get", err)
	}

	var entry sona.VectorEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %s: %w", id, err)
	}
	return &entry, nil
}

// Delete removes an entry and reports whether it existed
func (s *RedisVectorStore) Delete(ctx context.Context, id string) (bool, error) {
	pipe := s.client.Pipeline()
	delCmd := pipe.Del(ctx, s.entryKey(id))
	pipe.SRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, sona.NewBackendError("delete", err)
	}
	return delCmd.Val() > 0, nil
}

// Close closes the underlying client
func (s *RedisVectorStore) Close() error {
	return s.client.Close()
}
