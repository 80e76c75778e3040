package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/workflow-graph/types"
)

// newRecord creates a small single-workflow manifest record for filePath.
func newRecord(id uint64, filePath string) types.ManifestRecord {
	stepID := "s1"
	return types.ManifestRecord{
		ID:       id,
		FilePath: filePath,
		Manifest: types.WorkflowGraphManifest{
			Version: types.ManifestVersion,
			Workflows: map[string]types.WorkflowGraph{
				"Order": {
					WorkflowID:   "wf1",
					WorkflowName: "Order",
					FilePath:     filePath,
					Nodes: []types.GraphNode{
						{ID: types.StartNodeID, Type: types.NodeTypeWorkflowStart, Position: types.Position{X: 250},
							Data: types.NodeData{Label: "Start: Order", NodeKind: types.NodeKindWorkflowStart}},
						{ID: "node_0", Type: types.NodeTypeStep, Position: types.Position{X: 250, Y: 100},
							Data: types.NodeData{Label: "Validate", NodeKind: types.NodeKindStep, StepID: &stepID, Line: 10}},
					},
					Edges: []types.GraphEdge{
						{ID: "e_start_node_0", Source: types.StartNodeID, Target: "node_0", Type: types.EdgeTypeDefault},
					},
				},
			},
		},
		CreatedAt: time.Now().UnixMilli(),
	}
}

func TestMemoryStorage(t *testing.T) {
	t.Run("NewMemoryStorage", func(t *testing.T) {
		store := NewMemoryStorage()
		assert.NotNil(t, store)
		assert.Empty(t, store.records)
		assert.Empty(t, store.latest)
	})

	t.Run("SaveAndGetManifest", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		rec := newRecord(1, "order.ts")
		require.NoError(t, store.SaveManifest(ctx, rec))

		got, err := store.GetManifest(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, rec, got)

		_, err = store.GetManifest(ctx, 2)
		assert.ErrorIs(t, err, ErrManifestNotFound)
	})

	t.Run("LatestManifest", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		require.NoError(t, store.SaveManifest(ctx, newRecord(10, "order.ts")))
		require.NoError(t, store.SaveManifest(ctx, newRecord(11, "order.ts")))
		require.NoError(t, store.SaveManifest(ctx, newRecord(12, "billing.ts")))

		got, err := store.LatestManifest(ctx, "order.ts")
		assert.NoError(t, err)
		assert.Equal(t, uint64(11), got.ID)

		_, err = store.GetManifest(ctx, 10)
		assert.NoError(t, err, "older records stay addressable by id")

		_, err = store.LatestManifest(ctx, "missing.ts")
		assert.ErrorIs(t, err, ErrManifestNotFound)
	})

	t.Run("SaveManifests", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		recs := []types.ManifestRecord{newRecord(1, "a.ts"), newRecord(2, "a.ts"), newRecord(3, "b.ts")}
		require.NoError(t, store.SaveManifests(ctx, recs))

		for _, rec := range recs {
			got, err := store.GetManifest(ctx, rec.ID)
			assert.NoError(t, err)
			assert.Equal(t, rec, got)
		}
		latest, err := store.LatestManifest(ctx, "a.ts")
		assert.NoError(t, err)
		assert.Equal(t, uint64(2), latest.ID)
	})

	t.Run("DeleteFile", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		require.NoError(t, store.SaveManifests(ctx, []types.ManifestRecord{
			newRecord(1, "a.ts"), newRecord(2, "a.ts"), newRecord(3, "b.ts"),
		}))
		require.NoError(t, store.DeleteFile(ctx, "a.ts"))

		_, err := store.GetManifest(ctx, 1)
		assert.ErrorIs(t, err, ErrManifestNotFound)
		_, err = store.GetManifest(ctx, 2)
		assert.ErrorIs(t, err, ErrManifestNotFound)
		_, err = store.LatestManifest(ctx, "a.ts")
		assert.ErrorIs(t, err, ErrManifestNotFound)

		_, err = store.LatestManifest(ctx, "b.ts")
		assert.NoError(t, err)
	})

	t.Run("ContextCancellation", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, store.SaveManifest(ctx, newRecord(1, "a.ts")), context.Canceled)
		_, err := store.GetManifest(ctx, 1)
		assert.ErrorIs(t, err, context.Canceled)
		_, err = store.LatestManifest(ctx, "a.ts")
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, store.SaveManifests(ctx, []types.ManifestRecord{newRecord(1, "a.ts")}), context.Canceled)
		assert.ErrorIs(t, store.DeleteFile(ctx, "a.ts"), context.Canceled)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()
		var wg sync.WaitGroup

		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				err := store.SaveManifest(ctx, newRecord(uint64(id), fmt.Sprintf("file%d.ts", id%10)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		errs := make(chan error, 100)
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				if _, err := store.GetManifest(ctx, uint64(id)); err != nil {
					errs <- fmt.Errorf("GetManifest failed for id=%d: %w", id, err)
				}
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
	})
}

func TestGetItem(t *testing.T) {
	var mu sync.RWMutex
	ctx := context.Background()
	m := map[uint64]string{1: "one", 2: "two"}

	t.Run("Found", func(t *testing.T) {
		result, err := getItem(ctx, &mu, m, uint64(1))
		assert.NoError(t, err)
		assert.Equal(t, "one", result)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := getItem(ctx, &mu, m, uint64(3))
		assert.ErrorIs(t, err, ErrManifestNotFound)
		assert.Contains(t, err.Error(), "key=3")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := getItem(ctx, &mu, m, uint64(1))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWithContext(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		result, err := withContext(context.Background(), func() (string, error) {
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", result)
	})

	t.Run("Error", func(t *testing.T) {
		err := withContextError(context.Background(), func() error {
			return fmt.Errorf("fail")
		})
		assert.EqualError(t, err, "fail")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := withContext(ctx, func() (string, error) {
			return "success", nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, withContextError(ctx, func() error { return nil }), context.Canceled)
	})
}
