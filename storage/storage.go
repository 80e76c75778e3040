package storage

import (
	"context"
	"errors"

	"github.com/songzhibin97/workflow-graph/types"
)

// ErrManifestNotFound is returned when no record matches a lookup.
var ErrManifestNotFound = errors.New("manifest not found")

// Storage defines the interface for persisting and retrieving emitted manifests.
type Storage interface {
	// SaveManifest saves a manifest record and marks it as the latest one
	// for its file path.
	SaveManifest(ctx context.Context, rec types.ManifestRecord) error

	// GetManifest retrieves a manifest record by ID.
	GetManifest(ctx context.Context, id uint64) (types.ManifestRecord, error)

	// LatestManifest retrieves the most recently saved record for a file path.
	LatestManifest(ctx context.Context, filePath string) (types.ManifestRecord, error)
}

// withContext runs fn unless ctx is already done.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}

// withContextError handles context cancellation for operations that only return an error.
func withContextError(ctx context.Context, fn func() error) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
