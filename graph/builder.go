package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/songzhibin97/workflow-graph/events"
	"github.com/songzhibin97/workflow-graph/types"
)

// Default layout of the top-to-bottom chain.
const (
	DefaultX     = 250.0
	DefaultStepY = 100.0
)

// Builder accumulates workflow graphs for one compilation unit.
type Builder struct {
	graphs          map[string]*types.WorkflowGraph
	currentWorkflow string
	recording       bool
	currentY        float64
	nodeCount       int
	prevNodeID      string
	hasPrev         bool
	sealed          bool

	x        float64
	stepY    float64
	logger   *slog.Logger
	eventBus *events.EventBus
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used to report dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithEventBus publishes every accepted or dropped event to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(b *Builder) {
		b.eventBus = bus
	}
}

// WithLayout overrides the horizontal coordinate and the vertical increment
// between consecutive nodes.
func WithLayout(x, stepY float64) Option {
	return func(b *Builder) {
		b.x = x
		b.stepY = stepY
	}
}

// NewBuilder creates an empty Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		graphs: make(map[string]*types.WorkflowGraph),
		x:      DefaultX,
		stepY:  DefaultStepY,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// StartWorkflow begins recording the workflow name, replacing any graph
// already recorded under that name. A workflow that is still being recorded
// is abandoned as is.
func (b *Builder) StartWorkflow(name, filePath, workflowID string) {
	if b.sealed {
		b.drop("start_workflow", name)
		return
	}
	if b.recording {
		b.logger.Debug("Abandoning unfinished workflow.", "workflow", b.currentWorkflow, "next", name)
	}

	b.graphs[name] = &types.WorkflowGraph{
		WorkflowID:   workflowID,
		WorkflowName: name,
		FilePath:     filePath,
		Nodes:        []types.GraphNode{},
		Edges:        []types.GraphEdge{},
	}
	b.currentWorkflow = name
	b.recording = true
	b.currentY = 0
	b.nodeCount = 0
	b.prevNodeID = ""
	b.hasPrev = false

	b.publish(events.TypeWorkflowStarted, types.StartNodeID, map[string]interface{}{
		"workflow_id": workflowID,
		"file_path":   filePath,
	})
	b.addNode(types.StartNodeID, types.NodeTypeWorkflowStart, "Start: "+name, types.NodeKindWorkflowStart, nil, 0)
}

// AddStepNode records a step invocation in the current workflow.
func (b *Builder) AddStepNode(stepName, stepID string, line int) {
	if !b.active("add_step_node", stepName) {
		return
	}
	b.addNode(b.nextNodeID(), types.NodeTypeStep, stepName, types.NodeKindStep, &stepID, line)
	b.nodeCount++
}

// AddWorkflowNode records a call to another workflow from the current one.
// The node marks the call site only; the callee's graph is not linked.
func (b *Builder) AddWorkflowNode(workflowName, workflowID string, line int) {
	if !b.active("add_workflow_node", workflowName) {
		return
	}
	b.addNode(b.nextNodeID(), types.NodeTypeWorkflowCall, workflowName, types.NodeKindWorkflow, &workflowID, line)
	b.nodeCount++
}

// FinishWorkflow closes the current workflow with the end node. The layout
// offset and node counter are left for the next StartWorkflow to reset.
func (b *Builder) FinishWorkflow() {
	if !b.active("finish_workflow", "") {
		return
	}
	name := b.currentWorkflow
	b.addNode(types.EndNodeID, types.NodeTypeWorkflowEnd, "Return", types.NodeKindWorkflowEnd, nil, 0)

	b.currentWorkflow = ""
	b.recording = false
	b.prevNodeID = ""
	b.hasPrev = false

	g := b.graphs[name]
	b.publishFor(name, events.TypeWorkflowFinished, types.EndNodeID, map[string]interface{}{
		"nodes": len(g.Nodes),
		"edges": len(g.Edges),
	})
}

// HasWorkflows reports whether at least one workflow has been started.
func (b *Builder) HasWorkflows() bool {
	return len(b.graphs) > 0
}

// CurrentWorkflow returns the name of the workflow being recorded.
func (b *Builder) CurrentWorkflow() (string, bool) {
	return b.currentWorkflow, b.recording
}

// ToManifest hands all recorded graphs to the caller. The builder is sealed
// afterwards: later events are dropped and another call yields an empty
// manifest.
func (b *Builder) ToManifest() types.WorkflowGraphManifest {
	workflows := make(map[string]types.WorkflowGraph, len(b.graphs))
	for name, g := range b.graphs {
		workflows[name] = *g
	}

	b.graphs = make(map[string]*types.WorkflowGraph)
	b.currentWorkflow = ""
	b.recording = false
	b.prevNodeID = ""
	b.hasPrev = false
	b.sealed = true

	return types.WorkflowGraphManifest{
		Version:   types.ManifestVersion,
		Workflows: workflows,
	}
}

func (b *Builder) nextNodeID() string {
	return fmt.Sprintf("node_%d", b.nodeCount)
}

// active reports whether a workflow is being recorded, dropping op otherwise.
func (b *Builder) active(op, subject string) bool {
	if b.sealed || !b.recording {
		b.drop(op, subject)
		return false
	}
	if _, ok := b.graphs[b.currentWorkflow]; !ok {
		b.drop(op, subject)
		return false
	}
	return true
}

func (b *Builder) drop(op, subject string) {
	b.logger.Debug("Dropping graph event.", "op", op, "subject", subject, "sealed", b.sealed)
	b.publishFor("", events.TypeEventDropped, "", map[string]interface{}{
		"op":      op,
		"subject": subject,
		"sealed":  b.sealed,
	})
}

// addNode appends a node to the current workflow, chaining it to the
// previously added node.
func (b *Builder) addNode(id, nodeType, label, kind string, stepID *string, line int) {
	g, ok := b.graphs[b.currentWorkflow]
	if !b.recording || !ok {
		return
	}

	if b.hasPrev {
		g.Edges = append(g.Edges, types.GraphEdge{
			ID:     edgeID(b.prevNodeID, id),
			Source: b.prevNodeID,
			Target: id,
			Type:   types.EdgeTypeDefault,
		})
	}

	g.Nodes = append(g.Nodes, types.GraphNode{
		ID:       id,
		Type:     nodeType,
		Position: types.Position{X: b.x, Y: b.currentY},
		Data: types.NodeData{
			Label:    label,
			NodeKind: kind,
			StepID:   stepID,
			Line:     line,
		},
	})
	b.prevNodeID = id
	b.hasPrev = true
	b.currentY += b.stepY

	data := map[string]interface{}{
		"type":  nodeType,
		"label": label,
		"line":  line,
	}
	if stepID != nil {
		data["step_id"] = *stepID
	}
	b.publish(events.TypeNodeAdded, id, data)
}

func edgeID(source, target string) string {
	return "e_" + source + "_" + target
}

func (b *Builder) publish(eventType, nodeID string, data map[string]interface{}) {
	b.publishFor(b.currentWorkflow, eventType, nodeID, data)
}

// publishFor delivers synchronously so observers see events in call order.
func (b *Builder) publishFor(workflow, eventType, nodeID string, data map[string]interface{}) {
	if b.eventBus == nil || !b.eventBus.HasSubscribers(eventType) {
		return
	}
	errs := b.eventBus.PublishSync(context.Background(), events.Event{
		Type:     eventType,
		Workflow: workflow,
		NodeID:   nodeID,
		Data:     data,
	})
	for _, err := range errs {
		b.logger.Debug("Graph event observer failed.", "type", eventType, "workflow", workflow, "error", err)
	}
}
