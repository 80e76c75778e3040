package types

import (
	"encoding/json"
	"fmt"
)

// EncodeManifest renders a manifest as indented JSON.
func EncodeManifest(m WorkflowGraphManifest) ([]byte, error) {
	if m.Workflows == nil {
		m.Workflows = map[string]WorkflowGraph{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// DecodeManifest parses a manifest previously produced by EncodeManifest.
func DecodeManifest(data []byte) (WorkflowGraphManifest, error) {
	var m WorkflowGraphManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return WorkflowGraphManifest{}, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if m.Workflows == nil {
		m.Workflows = map[string]WorkflowGraph{}
	}
	return m, nil
}
