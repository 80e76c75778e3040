package graph

import (
	"errors"
	"fmt"
	"sort"

	dgraph "github.com/dominikbraun/graph"
	"github.com/songzhibin97/workflow-graph/types"
)

// ErrStructural is wrapped by every StructuralError.
var ErrStructural = errors.New("structural error")

// Kinds of structural violations.
const (
	KindEmpty         = "empty"
	KindMissingStart  = "missing_start"
	KindDuplicateID   = "duplicate_id"
	KindDanglingEdge  = "dangling_edge"
	KindDuplicateEdge = "duplicate_edge"
	KindEdgeID        = "edge_id"
	KindCycle         = "cycle"
	KindEdgeCount     = "edge_count"
	KindDisconnected  = "disconnected"
	KindKeyMismatch   = "key_mismatch"
)

// StructuralError describes why a recorded graph is not a valid chain.
type StructuralError struct {
	Kind     string
	Workflow string
	Msg      string
}

func (e *StructuralError) Error() string {
	if e.Workflow == "" {
		return fmt.Sprintf("%s: %s: %s", ErrStructural, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: workflow %q: %s: %s", ErrStructural, e.Workflow, e.Kind, e.Msg)
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

// Validate checks that g is a single chain rooted at the start node: unique
// node ids, no dangling or duplicate edges, no cycles, one edge less than
// nodes, and every node reachable from start. A finished graph must also
// reach its end node through every other node.
func Validate(g types.WorkflowGraph) error {
	fail := func(kind, format string, args ...interface{}) error {
		return &StructuralError{Kind: kind, Workflow: g.WorkflowName, Msg: fmt.Sprintf(format, args...)}
	}

	if len(g.Nodes) == 0 {
		return fail(KindEmpty, "graph has no nodes")
	}
	if g.Nodes[0].ID != types.StartNodeID {
		return fail(KindMissingStart, "first node is %q", g.Nodes[0].ID)
	}

	dg := dgraph.New(dgraph.StringHash, dgraph.Directed(), dgraph.PreventCycles())
	for _, node := range g.Nodes {
		if err := dg.AddVertex(node.ID); err != nil {
			if errors.Is(err, dgraph.ErrVertexAlreadyExists) {
				return fail(KindDuplicateID, "duplicate node ID %q", node.ID)
			}
			return fail(KindDuplicateID, "node %q: %v", node.ID, err)
		}
	}

	for _, edge := range g.Edges {
		if want := edgeID(edge.Source, edge.Target); edge.ID != want {
			return fail(KindEdgeID, "edge %q should be named %q", edge.ID, want)
		}
		err := dg.AddEdge(edge.Source, edge.Target)
		switch {
		case err == nil:
		case errors.Is(err, dgraph.ErrVertexNotFound):
			return fail(KindDanglingEdge, "edge %q references an unknown node", edge.ID)
		case errors.Is(err, dgraph.ErrEdgeAlreadyExists):
			return fail(KindDuplicateEdge, "edge %q is recorded twice", edge.ID)
		case errors.Is(err, dgraph.ErrEdgeCreatesCycle):
			return fail(KindCycle, "edge %q closes a cycle", edge.ID)
		default:
			return fail(KindDanglingEdge, "edge %q: %v", edge.ID, err)
		}
	}

	if len(g.Edges) != len(g.Nodes)-1 {
		return fail(KindEdgeCount, "%d nodes but %d edges", len(g.Nodes), len(g.Edges))
	}

	reached := 0
	if err := dgraph.BFS(dg, types.StartNodeID, func(string) bool {
		reached++
		return false
	}); err != nil {
		return fail(KindDisconnected, "walk from start: %v", err)
	}
	if reached != len(g.Nodes) {
		return fail(KindDisconnected, "%d of %d nodes reachable from start", reached, len(g.Nodes))
	}

	if g.Finished() {
		path, err := dgraph.ShortestPath(dg, types.StartNodeID, types.EndNodeID)
		if err != nil {
			return fail(KindDisconnected, "no path from start to end: %v", err)
		}
		if len(path) != len(g.Nodes) {
			return fail(KindDisconnected, "path from start to end skips %d nodes", len(g.Nodes)-len(path))
		}
	}
	return nil
}

// ValidateManifest validates every graph of m and checks that each graph is
// stored under its own workflow name. Workflows are checked in name order.
func ValidateManifest(m types.WorkflowGraphManifest) error {
	names := make([]string, 0, len(m.Workflows))
	for name := range m.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		g := m.Workflows[name]
		if g.WorkflowName != name {
			return &StructuralError{
				Kind:     KindKeyMismatch,
				Workflow: name,
				Msg:      fmt.Sprintf("stored under %q but named %q", name, g.WorkflowName),
			}
		}
		if err := Validate(g); err != nil {
			return err
		}
	}
	return nil
}
