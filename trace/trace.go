// Package trace loads recorded visitor events for one compilation unit from
// an HCL file and replays them into a graph recorder.
//
//	source = "order.ts"
//
//	workflow "Order" {
//	  id = "wf1"
//	  node "step" "Validate" {
//	    id   = "s1"
//	    line = 10
//	  }
//	  node "workflow" "Payment" {
//	    id   = "wf2"
//	    line = 30
//	  }
//	}
//
// Attributes may reference path.trace and path.dir, the trace file's own path
// and directory.
package trace

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// ErrTrace wraps every failure to read a trace file.
var ErrTrace = errors.New("invalid trace")

// Node kinds accepted in node blocks.
const (
	KindStep     = "step"
	KindWorkflow = "workflow"
)

// Trace is the ordered event sequence of one compilation unit.
type Trace struct {
	Path      string
	Source    string
	Workflows []Workflow
}

// Workflow is one start..finish span of events.
type Workflow struct {
	Name       string
	ID         string
	FilePath   string
	Unfinished bool
	Nodes      []Node
}

// Node is one step or sub-workflow call event.
type Node struct {
	Kind string
	Name string
	ID   string
	Line int
}

// Recorder receives replayed events. *graph.Builder implements it.
type Recorder interface {
	StartWorkflow(name, filePath, workflowID string)
	AddStepNode(stepName, stepID string, line int)
	AddWorkflowNode(workflowName, workflowID string, line int)
	FinishWorkflow()
}

type fileRoot struct {
	Source    string           `hcl:"source,optional"`
	Workflows []*workflowBlock `hcl:"workflow,block"`
}

type workflowBlock struct {
	Name       string       `hcl:"name,label"`
	ID         string       `hcl:"id"`
	File       string       `hcl:"file,optional"`
	Unfinished bool         `hcl:"unfinished,optional"`
	Nodes      []*nodeBlock `hcl:"node,block"`
}

type nodeBlock struct {
	Kind string   `hcl:"kind,label"`
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type nodeAttrs struct {
	ID   string `hcl:"id"`
	Line int    `hcl:"line,optional"`
}

// Load reads and decodes the trace file at path.
func Load(path string) (*Trace, error) {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrTrace, path, diags)
	}
	return decode(file, path)
}

// Parse decodes trace source held in memory. filename is used for
// diagnostics and the path variables.
func Parse(src []byte, filename string) (*Trace, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrTrace, filename, diags)
	}
	return decode(file, filename)
}

func evalContext(path string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"path": cty.ObjectVal(map[string]cty.Value{
				"trace": cty.StringVal(path),
				"dir":   cty.StringVal(filepath.Dir(path)),
			}),
		},
	}
}

func decode(file *hcl.File, path string) (*Trace, error) {
	ctx := evalContext(path)

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, ctx, &root); diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode %s: %w", ErrTrace, path, diags)
	}

	t := &Trace{Path: path, Source: root.Source}
	defaultFile := root.Source
	if defaultFile == "" {
		defaultFile = path
	}

	for _, wb := range root.Workflows {
		wf := Workflow{
			Name:       wb.Name,
			ID:         wb.ID,
			FilePath:   wb.File,
			Unfinished: wb.Unfinished,
		}
		if wf.FilePath == "" {
			wf.FilePath = defaultFile
		}

		var diags hcl.Diagnostics
		for _, nb := range wb.Nodes {
			if nb.Kind != KindStep && nb.Kind != KindWorkflow {
				rng := nb.Body.MissingItemRange()
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Unsupported node kind",
					Detail:   fmt.Sprintf("Node %q has kind %q; expected %q or %q.", nb.Name, nb.Kind, KindStep, KindWorkflow),
					Subject:  &rng,
				})
				continue
			}

			var attrs nodeAttrs
			if nodeDiags := gohcl.DecodeBody(nb.Body, ctx, &attrs); nodeDiags.HasErrors() {
				diags = append(diags, nodeDiags...)
				continue
			}
			wf.Nodes = append(wf.Nodes, Node{Kind: nb.Kind, Name: nb.Name, ID: attrs.ID, Line: attrs.Line})
		}
		if diags.HasErrors() {
			return nil, fmt.Errorf("%w: workflow %q in %s: %w", ErrTrace, wb.Name, path, diags)
		}

		t.Workflows = append(t.Workflows, wf)
	}
	return t, nil
}

// Replay feeds the trace into rec in file order.
func Replay(t *Trace, rec Recorder) {
	for _, wf := range t.Workflows {
		rec.StartWorkflow(wf.Name, wf.FilePath, wf.ID)
		for _, n := range wf.Nodes {
			switch n.Kind {
			case KindStep:
				rec.AddStepNode(n.Name, n.ID, n.Line)
			case KindWorkflow:
				rec.AddWorkflowNode(n.Name, n.ID, n.Line)
			}
		}
		if !wf.Unfinished {
			rec.FinishWorkflow()
		}
	}
}
