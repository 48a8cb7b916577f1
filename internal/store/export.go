// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportYAML writes one run, with its documents and notes, to
// DataDir/<runID>.yaml and returns the written path.
func (s *Store) ExportYAML(ctx context.Context, runID string) (string, error) {
	run, err := s.Run(ctx, runID)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("marshaling run: %w", err)
	}

	path := filepath.Join(s.dataDir, runID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}
