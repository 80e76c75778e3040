package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/songzhibin97/gkit/generator"
	"github.com/songzhibin97/workflow-graph/events"
	"github.com/songzhibin97/workflow-graph/graph"
	"github.com/songzhibin97/workflow-graph/internal/ctxlog"
	"github.com/songzhibin97/workflow-graph/storage"
	"github.com/songzhibin97/workflow-graph/trace"
	"github.com/songzhibin97/workflow-graph/workflow"
)

// Run replays every trace in cfg into its own builder and emits one manifest
// per trace. Manifests go to cfg.OutDir, or to out as JSON when no directory
// is set. Logs go to logW.
func Run(ctx context.Context, cfg *Config, out, logW io.Writer) error {
	logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)

	store, closeStore, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	snowflake := generator.NewSnowflake(time.Now().Add(-1*time.Second), cfg.MachineID)
	em, err := workflow.NewEmitter(snowflake, store, nil,
		workflow.WithValidation(cfg.Validate),
		workflow.WithKeepEmpty(cfg.KeepEmpty),
	)
	if err != nil {
		return err
	}
	defer em.Stop(context.Background())

	var sink workflow.Sink = workflow.NewWriterSink(out)
	if cfg.OutDir != "" {
		sink = workflow.DirSink{Dir: cfg.OutDir}
	}
	if err := em.RegisterSink(ctx, "output", sink); err != nil {
		return err
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		for _, t := range []string{events.TypeWorkflowStarted, events.TypeNodeAdded, events.TypeWorkflowFinished, events.TypeEventDropped} {
			em.SubscribeEvent(t, logHandler{logger: logger})
		}
	}

	for _, path := range cfg.Traces {
		if err := emitTrace(ctx, em, path, cfg.Filter); err != nil {
			return err
		}
	}
	return nil
}

func emitTrace(ctx context.Context, em *workflow.Emitter, path, filter string) error {
	logger := ctxlog.FromContext(ctx).With("trace", path)

	tr, err := trace.Load(path)
	if err != nil {
		return err
	}
	filePath := tr.Source
	if filePath == "" {
		filePath = tr.Path
	}

	b := em.NewBuilder(graph.WithLogger(logger))
	trace.Replay(tr, b)

	rec, err := em.Emit(ctx, filePath, b, filter)
	if errors.Is(err, workflow.ErrNoWorkflows) {
		logger.Info("Trace recorded no workflows, skipping.")
		return nil
	}
	if err != nil && rec == nil {
		return fmt.Errorf("failed to emit %s: %w", path, err)
	}
	if err != nil {
		return fmt.Errorf("record %d for %s was saved but not written: %w", rec.ID, path, err)
	}
	return nil
}

func openStorage(cfg *Config) (storage.Storage, func(), error) {
	if cfg.RedisAddr == "" {
		return storage.NewMemoryStorage(), func() {}, nil
	}
	rs, err := storage.NewRedisStorage(storage.RedisOptions{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
		IdleTimeout:  5 * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	return rs, func() { _ = rs.Close() }, nil
}

// logHandler writes builder events to the debug log.
type logHandler struct {
	logger *slog.Logger
}

func (h logHandler) Handle(ctx context.Context, event events.Event) error {
	h.logger.Debug("Graph event.", "type", event.Type, "workflow", event.Workflow, "node", event.NodeID, "data", event.Data)
	return nil
}
