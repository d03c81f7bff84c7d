package capabilities

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// Document is one knowledge-base entry returned by a search.
type Document struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// KnowledgeStore is the "knowledge query" collaborator: read, write and
// search content scoped by knowledge-base identifier.
type KnowledgeStore interface {
	Read(ctx context.Context, kb, key string) (string, error)
	Write(ctx context.Context, kb, key, content string) error
	Search(ctx context.Context, kb, query string, limit int) ([]Document, error)
}

// ErrDocumentNotFound indicates a read for a key that was never written.
var ErrDocumentNotFound = errors.New("document not found")

// MemoryKnowledgeStore is an in-process store for tests and local runs.
type MemoryKnowledgeStore struct {
	mu    sync.RWMutex
	bases map[string]map[string]string
}

// NewMemoryKnowledgeStore creates an empty in-memory store.
func NewMemoryKnowledgeStore() *MemoryKnowledgeStore {
	return &MemoryKnowledgeStore{
		bases: make(map[string]map[string]string),
	}
}

func (s *MemoryKnowledgeStore) Read(_ context.Context, kb, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.bases[kb][key]
	if !ok {
		return "", Errorf(ErrorKindKnowledge, "%v: %s/%s", ErrDocumentNotFound, kb, key)
	}

	return content, nil
}

func (s *MemoryKnowledgeStore) Write(_ context.Context, kb, key, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bases[kb] == nil {
		s.bases[kb] = make(map[string]string)
	}

	s.bases[kb][key] = content

	return nil
}

func (s *MemoryKnowledgeStore) Search(_ context.Context, kb, query string, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return matchDocuments(s.bases[kb], query, limit), nil
}

const redisKeyPrefix = "a9ents:kb:"

// RedisKnowledgeStore stores each knowledge base as a Redis hash keyed by
// document key.
type RedisKnowledgeStore struct {
	client redis.UniversalClient
}

// NewRedisKnowledgeStore creates a store backed by the given client.
func NewRedisKnowledgeStore(client redis.UniversalClient) *RedisKnowledgeStore {
	return &RedisKnowledgeStore{client: client}
}

func (s *RedisKnowledgeStore) Read(ctx context.Context, kb, key string) (string, error) {
	content, err := s.client.HGet(ctx, redisKeyPrefix+kb, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", Errorf(ErrorKindKnowledge, "%v: %s/%s", ErrDocumentNotFound, kb, key)
		}

		return "", Errorf(ErrorKindKnowledge, "failed to read %s/%s: %v", kb, key, err)
	}

	return content, nil
}

func (s *RedisKnowledgeStore) Write(ctx context.Context, kb, key, content string) error {
	err := s.client.HSet(ctx, redisKeyPrefix+kb, key, content).Err()
	if err != nil {
		return Errorf(ErrorKindKnowledge, "failed to write %s/%s: %v", kb, key, err)
	}

	return nil
}

func (s *RedisKnowledgeStore) Search(ctx context.Context, kb, query string, limit int) ([]Document, error) {
	entries, err := s.client.HGetAll(ctx, redisKeyPrefix+kb).Result()
	if err != nil {
		return nil, Errorf(ErrorKindKnowledge, "failed to search %s: %v", kb, err)
	}

	return matchDocuments(entries, query, limit), nil
}

// matchDocuments filters entries by case-insensitive substring match on key
// or content, ordered by key for deterministic results.
func matchDocuments(entries map[string]string, query string, limit int) []Document {
	needle := strings.ToLower(query)

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	matches := make([]Document, 0)

	for _, key := range keys {
		content := entries[key]
		if needle != "" &&
			!strings.Contains(strings.ToLower(key), needle) &&
			!strings.Contains(strings.ToLower(content), needle) {
			continue
		}

		matches = append(matches, Document{Key: key, Content: content})
		if limit > 0 && len(matches) >= limit {
			break
		}
	}

	return matches
}
