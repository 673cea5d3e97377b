// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/fanout-engine/pkg/types"
)

const artifactTimestamp = "20060102-150405"

// RunArtifactPath returns the run JSON path for a run started at t.
func RunArtifactPath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("fanout-run-%s.json", t.UTC().Format(artifactTimestamp)))
}

// ReportArtifactPath returns the Markdown report path for a run started at t.
func ReportArtifactPath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("fanout-plan-%s.md", t.UTC().Format(artifactTimestamp)))
}

// CostsArtifactPath returns the cost summary YAML path for a run started at t.
func CostsArtifactPath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("fanout-costs-%s.yaml", t.UTC().Format(artifactTimestamp)))
}

// SaveRun persists the run as indented JSON, creating dir as needed.
func SaveRun(run *types.Run, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing run: %w", err)
	}
	return nil
}

// LoadRun reads a persisted run artifact back.
func LoadRun(path string) (*types.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run: %w", err)
	}
	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", path, err)
	}
	return &run, nil
}
