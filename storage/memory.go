package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/songzhibin97/workflow-graph/types"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
type MemoryStorage struct {
	records map[uint64]types.ManifestRecord
	latest  map[string]uint64
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[uint64]types.ManifestRecord),
		latest:  make(map[string]uint64),
	}
}

// getItem looks up key in m under the read lock.
func getItem[K comparable, T any](ctx context.Context, mu *sync.RWMutex, m map[K]T, key K) (T, error) {
	return withContext(ctx, func() (T, error) {
		mu.RLock()
		defer mu.RUnlock()
		item, ok := m[key]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: key=%v", ErrManifestNotFound, key)
		}
		return item, nil
	})
}

func (s *MemoryStorage) put(rec types.ManifestRecord) {
	s.records[rec.ID] = rec
	s.latest[rec.FilePath] = rec.ID
}

// SaveManifest saves a manifest record to memory.
func (s *MemoryStorage) SaveManifest(ctx context.Context, rec types.ManifestRecord) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.put(rec)
		return nil
	})
}

// GetManifest retrieves a manifest record from memory.
func (s *MemoryStorage) GetManifest(ctx context.Context, id uint64) (types.ManifestRecord, error) {
	return getItem(ctx, &s.mu, s.records, id)
}

// LatestManifest retrieves the newest record saved for filePath.
func (s *MemoryStorage) LatestManifest(ctx context.Context, filePath string) (types.ManifestRecord, error) {
	id, err := getItem(ctx, &s.mu, s.latest, filePath)
	if err != nil {
		return types.ManifestRecord{}, err
	}
	return s.GetManifest(ctx, id)
}

// SaveManifests saves multiple records in a single lock, in order.
func (s *MemoryStorage) SaveManifests(ctx context.Context, recs []types.ManifestRecord) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, rec := range recs {
			s.put(rec)
		}
		return nil
	})
}

// DeleteFile removes every record saved for filePath.
func (s *MemoryStorage) DeleteFile(ctx context.Context, filePath string) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, rec := range s.records {
			if rec.FilePath == filePath {
				delete(s.records, id)
			}
		}
		delete(s.latest, filePath)
		return nil
	})
}
