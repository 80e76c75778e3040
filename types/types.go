package types

// ManifestVersion is the schema version stamped on every manifest.
const ManifestVersion = "1.0.0"

// Node types select the rendering variant of a node.
const (
	NodeTypeWorkflowStart = "workflowStart"
	NodeTypeStep          = "step"
	NodeTypeWorkflowCall  = "workflowCall"
	NodeTypeWorkflowEnd   = "workflowEnd"
)

// Node kinds are the semantic tags carried in NodeData.
const (
	NodeKindWorkflowStart = "workflow_start"
	NodeKindStep          = "step"
	NodeKindWorkflow      = "workflow"
	NodeKindWorkflowEnd   = "workflow_end"
)

// EdgeTypeDefault is the only edge variant: strict sequential flow.
const EdgeTypeDefault = "default"

// Fixed ids of the synthetic nodes.
const (
	StartNodeID = "start"
	EndNodeID   = "end"
)

// WorkflowGraphManifest is the versioned collection of all workflow graphs
// recorded for one compilation unit, keyed by workflow name.
type WorkflowGraphManifest struct {
	Version   string                   `json:"version"`
	Workflows map[string]WorkflowGraph `json:"workflows"`
}

// WorkflowGraph is the control-flow graph of a single workflow.
type WorkflowGraph struct {
	WorkflowID   string      `json:"workflowId"`
	WorkflowName string      `json:"workflowName"`
	FilePath     string      `json:"filePath"`
	Nodes        []GraphNode `json:"nodes"`
	Edges        []GraphEdge `json:"edges"`
}

// Finished reports whether the graph was closed with an end node.
func (g WorkflowGraph) Finished() bool {
	return len(g.Nodes) > 0 && g.Nodes[len(g.Nodes)-1].ID == EndNodeID
}

// GraphNode is one visual element of a workflow graph.
type GraphNode struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"` // "workflowStart", "step", "workflowCall", "workflowEnd"
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Position is the default layout coordinate of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the payload rendered inside a node.
type NodeData struct {
	Label    string  `json:"label"`
	NodeKind string  `json:"nodeKind"` // "workflow_start", "step", "workflow", "workflow_end"
	StepID   *string `json:"stepId,omitempty"`
	Line     int     `json:"line"`
}

// GraphEdge is a directed connection between two nodes of the same graph.
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// ManifestRecord is a manifest as persisted by a storage backend.
type ManifestRecord struct {
	ID        uint64                `json:"id"`
	FilePath  string                `json:"file_path"`
	Manifest  WorkflowGraphManifest `json:"manifest"`
	CreatedAt int64                 `json:"created_at"`
}
