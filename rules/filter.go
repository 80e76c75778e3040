package rules

import (
	"fmt"
	"strings"

	"github.com/songzhibin97/workflow-graph/types"
)

// GraphEnv exposes a workflow graph to filter expressions.
//
//	workflowName, workflowId, filePath  string
//	nodeCount, edgeCount                int
//	steps, calls                        []string (labels in visitation order)
//	finished                            bool
func GraphEnv(g types.WorkflowGraph) map[string]interface{} {
	steps := []string{}
	calls := []string{}
	for _, n := range g.Nodes {
		switch n.Data.NodeKind {
		case types.NodeKindStep:
			steps = append(steps, n.Data.Label)
		case types.NodeKindWorkflow:
			calls = append(calls, n.Data.Label)
		}
	}
	return map[string]interface{}{
		"workflowName": g.WorkflowName,
		"workflowId":   g.WorkflowID,
		"filePath":     g.FilePath,
		"nodeCount":    len(g.Nodes),
		"edgeCount":    len(g.Edges),
		"steps":        steps,
		"calls":        calls,
		"finished":     g.Finished(),
	}
}

// Filter returns a manifest holding only the workflows of m for which
// expression holds. An empty expression keeps every workflow.
func Filter(ev Evaluator, m types.WorkflowGraphManifest, expression string) (types.WorkflowGraphManifest, error) {
	out := types.WorkflowGraphManifest{
		Version:   m.Version,
		Workflows: make(map[string]types.WorkflowGraph, len(m.Workflows)),
	}
	if strings.TrimSpace(expression) == "" {
		for name, g := range m.Workflows {
			out.Workflows[name] = g
		}
		return out, nil
	}

	for name, g := range m.Workflows {
		keep, err := ev.Evaluate(expression, GraphEnv(g))
		if err != nil {
			return types.WorkflowGraphManifest{}, fmt.Errorf("failed to evaluate filter for workflow %q: %w", name, err)
		}
		if keep {
			out.Workflows[name] = g
		}
	}
	return out, nil
}
