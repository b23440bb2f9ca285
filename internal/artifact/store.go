// Package artifact provides file-backed storage for trained model
// artifacts, the fitted scaler and the model comparison document.
//
// Artifacts live in a single directory under conventional names:
// "{name}_model.json" for a standard model, the three-file
// "{name}_model_gru.json" / "{name}_model_svm.json" /
// "{name}_model_metadata.json" layout for a composite model,
// "scaler.json" for the scaler state and "model_comparison.json" for
// per-model evaluation metrics.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// ScalerFile is the conventional scaler artifact name.
	ScalerFile = "scaler.json"
	// ComparisonFile holds evaluation metrics for all models.
	ComparisonFile = "model_comparison.json"

	modelSuffix    = "_model.json"
	metadataSuffix = "_model_metadata.json"
)

// ModelFile returns the conventional artifact name for a standard model.
func ModelFile(name string) string { return name + "_model.json" }

// CompositeMetadataFile returns the metadata artifact name for a
// composite model.
func CompositeMetadataFile(name string) string { return name + "_model_metadata.json" }

// CompositeStageFile returns the artifact name for one stage of a
// composite model, e.g. stage "gru" or "svm".
func CompositeStageFile(name, stage string) string {
	return fmt.Sprintf("%s_model_%s.json", name, stage)
}

// Source is the minimal storage contract the inference side consumes.
// *Store satisfies it; tests substitute counting fakes.
type Source interface {
	Exists(name string) bool
	ReadJSON(name string, v any) error
	WriteJSON(name string, v any) error
	ModelNames() ([]string, error)
}

// Store reads and writes JSON artifacts in one directory.
type Store struct {
	dir string
}

// NewStore opens an artifact directory, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the artifact directory path.
func (s *Store) Dir() string { return s.dir }

// Path resolves an artifact name to its path. Absolute names pass
// through untouched so recorded metadata paths keep working.
func (s *Store) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// Exists reports whether an artifact is present on disk.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir()
}

// ReadJSON decodes an artifact into v.
func (s *Store) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return nil
}

// WriteJSON persists v as an indented JSON artifact.
func (s *Store) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	return os.WriteFile(s.Path(name), data, 0o600)
}

// ModelNames scans the directory for conventional model artifact paths
// and returns the model names they imply, sorted. Composite models are
// recognized by their metadata file. Nothing is loaded.
func (s *Store) ModelNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan artifact directory: %w", err)
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		switch {
		case strings.HasSuffix(n, metadataSuffix):
			seen[strings.TrimSuffix(n, metadataSuffix)] = struct{}{}
		case strings.HasSuffix(n, modelSuffix):
			seen[strings.TrimSuffix(n, modelSuffix)] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
