package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/workflow-graph/types"
)

func sampleManifest() types.WorkflowGraphManifest {
	id := func(s string) *string { return &s }
	return types.WorkflowGraphManifest{
		Version: types.ManifestVersion,
		Workflows: map[string]types.WorkflowGraph{
			"Order": {
				WorkflowID: "wf1", WorkflowName: "Order", FilePath: "order.ts",
				Nodes: []types.GraphNode{
					{ID: types.StartNodeID, Data: types.NodeData{NodeKind: types.NodeKindWorkflowStart}},
					{ID: "node_0", Data: types.NodeData{Label: "Validate", NodeKind: types.NodeKindStep, StepID: id("s1")}},
					{ID: "node_1", Data: types.NodeData{Label: "Payment", NodeKind: types.NodeKindWorkflow, StepID: id("wf2")}},
					{ID: types.EndNodeID, Data: types.NodeData{NodeKind: types.NodeKindWorkflowEnd}},
				},
				Edges: make([]types.GraphEdge, 3),
			},
			"Payment": {
				WorkflowID: "wf2", WorkflowName: "Payment", FilePath: "order.ts",
				Nodes: []types.GraphNode{
					{ID: types.StartNodeID, Data: types.NodeData{NodeKind: types.NodeKindWorkflowStart}},
				},
				Edges: []types.GraphEdge{},
			},
		},
	}
}

func TestGraphEnv(t *testing.T) {
	env := GraphEnv(sampleManifest().Workflows["Order"])
	assert.Equal(t, "Order", env["workflowName"])
	assert.Equal(t, "wf1", env["workflowId"])
	assert.Equal(t, "order.ts", env["filePath"])
	assert.Equal(t, 4, env["nodeCount"])
	assert.Equal(t, 3, env["edgeCount"])
	assert.Equal(t, []string{"Validate"}, env["steps"])
	assert.Equal(t, []string{"Payment"}, env["calls"])
	assert.Equal(t, true, env["finished"])

	empty := GraphEnv(sampleManifest().Workflows["Payment"])
	assert.Equal(t, []string{}, empty["steps"])
	assert.Equal(t, false, empty["finished"])
}

func TestFilter(t *testing.T) {
	evaluator := NewExprEvaluator()

	tests := []struct {
		name       string
		expression string
		want       []string
	}{
		{name: "empty keeps all", expression: "", want: []string{"Order", "Payment"}},
		{name: "whitespace keeps all", expression: "   ", want: []string{"Order", "Payment"}},
		{name: "finished only", expression: "finished", want: []string{"Order"}},
		{name: "calls another workflow", expression: `"Payment" in calls`, want: []string{"Order"}},
		{name: "by name", expression: `workflowName == "Payment"`, want: []string{"Payment"}},
		{name: "none", expression: "nodeCount > 100", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleManifest()
			out, err := Filter(evaluator, m, tt.expression)
			require.NoError(t, err)
			assert.Equal(t, types.ManifestVersion, out.Version)

			names := make([]string, 0, len(out.Workflows))
			for name := range out.Workflows {
				names = append(names, name)
			}
			assert.ElementsMatch(t, tt.want, names)
			assert.Len(t, m.Workflows, 2, "input manifest must not be modified")
		})
	}
}

func TestFilter_Errors(t *testing.T) {
	evaluator := NewExprEvaluator()

	_, err := Filter(evaluator, sampleManifest(), "nodeCount")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "did not evaluate to a boolean")

	_, err = Filter(evaluator, sampleManifest(), "nodeCount >>> 1")
	assert.Error(t, err)
}
