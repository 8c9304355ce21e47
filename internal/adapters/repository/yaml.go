package repository

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.yaml.in/yaml/v3"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileName returns the file name WriteYAML uses for result.
func FileName(result *MetricResult) string {
	name := unsafeFileChars.ReplaceAllString(result.Metric, "_")
	if name == "" {
		name = "metric"
	}
	return fmt.Sprintf("%s_%s.yaml", name, result.RunID)
}

// WriteYAML writes result into dir, creating dir if needed, and returns the
// path written.
func WriteYAML(ctx context.Context, dir string, result *MetricResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrPersist, dir, err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return "", fmt.Errorf("%w: encode %s: %w", ErrPersist, result.RunID, err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("%w: encode %s: %w", ErrPersist, result.RunID, err)
	}

	path := filepath.Join(dir, FileName(result))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // results are meant to be shared
		return "", fmt.Errorf("%w: write %s: %w", ErrPersist, path, err)
	}
	return path, nil
}

// ReadYAML loads a result written by WriteYAML.
func ReadYAML(path string) (MetricResult, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return MetricResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	var result MetricResult
	if err := yaml.Unmarshal(data, &result); err != nil {
		return MetricResult{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return result, nil
}

// LoadDir reads every result file in dir into store and returns how many
// runs were loaded. A file that cannot be decoded aborts the load.
func LoadDir(ctx context.Context, dir string, store Store) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	loaded := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		result, err := ReadYAML(path)
		if err != nil {
			return loaded, err
		}
		if result.RunID == "" {
			return loaded, fmt.Errorf("decode %s: missing run_id", path)
		}
		if err := load(ctx, store, &result); err != nil {
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded++
	}
	return loaded, nil
}

func load(ctx context.Context, store Store, result *MetricResult) error {
	if err := store.Begin(ctx, *result); err != nil {
		return err
	}
	for _, v := range result.Values {
		if err := store.Record(ctx, result.RunID, v); err != nil {
			return err
		}
	}
	for stat, value := range result.Summary {
		if err := store.SetSummary(ctx, result.RunID, stat, value); err != nil {
			return err
		}
	}
	return nil
}
