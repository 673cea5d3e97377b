// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package costs

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/fanout-engine/pkg/types"
)

// WriteSummary saves the cost rollup to a YAML file next to the other run
// artifacts so a run's spend can be inspected without parsing the run JSON.
func WriteSummary(path string, s types.CostSummary) error {
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshaling cost summary: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSummary loads a previously written cost summary file.
func ReadSummary(path string) (types.CostSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.CostSummary{}, fmt.Errorf("reading cost summary: %w", err)
	}
	var s types.CostSummary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return types.CostSummary{}, fmt.Errorf("parsing cost summary: %w", err)
	}
	return s, nil
}
