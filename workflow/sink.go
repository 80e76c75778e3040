package workflow

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/songzhibin97/workflow-graph/types"
)

// Sink receives every manifest record the emitter produces.
type Sink interface {
	Write(ctx context.Context, rec types.ManifestRecord) error
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(ctx context.Context, rec types.ManifestRecord) error

// Write implements the Sink interface.
func (f SinkFunc) Write(ctx context.Context, rec types.ManifestRecord) error {
	return f(ctx, rec)
}

// ManifestFileName is the artifact name written for a source file:
// "order.ts" becomes "order.graph.json".
func ManifestFileName(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".graph.json"
}

// DirSink writes each manifest as JSON into a directory.
type DirSink struct {
	Dir string
}

// Write implements the Sink interface.
func (s DirSink) Write(ctx context.Context, rec types.ManifestRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := types.EncodeManifest(rec.Manifest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Dir, err)
	}
	path := filepath.Join(s.Dir, ManifestFileName(rec.FilePath))
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriterSink streams each manifest as JSON to an io.Writer.
type WriterSink struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterSink creates a WriterSink for w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Write implements the Sink interface.
func (s *WriterSink) Write(ctx context.Context, rec types.ManifestRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := types.EncodeManifest(rec.Manifest)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
