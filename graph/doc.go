// Package graph records workflow control-flow graphs from the structural
// events reported by a compiler's syntax-tree visitor.
//
// A Builder is driven through StartWorkflow, any number of AddStepNode and
// AddWorkflowNode calls, and FinishWorkflow, once per workflow. Each workflow
// becomes a linear chain of nodes from a synthetic "start" node to a
// synthetic "end" node. ToManifest hands the accumulated graphs to the caller.
//
// The builder never fails: events that arrive in an invalid order are
// dropped, and a restarted workflow name replaces the earlier graph. One
// Builder serves one compilation unit and is not safe for concurrent use.
package graph
