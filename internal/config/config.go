// Package config loads declarative pipeline files and builds a wired
// Controller from them. Decoding is strict in both supported formats:
// unknown keys are load-time errors, never silently ignored.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"ragtune/internal/registry"
)

// ComponentConfig is one component record: a registry type string plus
// free-form constructor params.
type ComponentConfig struct {
	Type   string          `toml:"type" yaml:"type"`
	Params registry.Params `toml:"params" yaml:"params"`
}

// Components selects the implementation of every pipeline role. Estimator
// and Scheduler accept either a single record or an ordered list (a list
// becomes a composite).
type Components struct {
	Retriever    *ComponentConfig `toml:"retriever" yaml:"retriever"`
	Reranker     *ComponentConfig `toml:"reranker" yaml:"reranker"`
	Reformulator *ComponentConfig `toml:"reformulator" yaml:"reformulator"`
	Assembler    *ComponentConfig `toml:"assembler" yaml:"assembler"`
	Feedback     *ComponentConfig `toml:"feedback" yaml:"feedback"`
	Estimator    any              `toml:"estimator" yaml:"estimator"`
	Scheduler    any              `toml:"scheduler" yaml:"scheduler"`
}

// BudgetConfig declares the per-resource limits.
type BudgetConfig struct {
	Limits map[string]float64 `toml:"limits" yaml:"limits"`
}

// RetrievalConfig tunes the fan-out depths.
type RetrievalConfig struct {
	OriginalQueryDepth    int  `toml:"original_query_depth" yaml:"original_query_depth"`
	NumReformulations     int  `toml:"num_reformulations" yaml:"num_reformulations"`
	DepthPerReformulation int  `toml:"depth_per_reformulation" yaml:"depth_per_reformulation"`
	MaxPoolSize           int  `toml:"max_pool_size" yaml:"max_pool_size"`
	ParallelFanout        bool `toml:"parallel_fanout" yaml:"parallel_fanout"`
}

// Pipeline is the recognized configuration surface.
type Pipeline struct {
	Name       string          `toml:"name" yaml:"name"`
	Budget     BudgetConfig    `toml:"budget" yaml:"budget"`
	Components Components      `toml:"components" yaml:"components"`
	Retrieval  RetrievalConfig `toml:"retrieval" yaml:"retrieval"`
}

// Config is the root of a pipeline file.
type Config struct {
	Pipeline Pipeline `toml:"pipeline" yaml:"pipeline"`
}

// Load reads and strictly decodes a pipeline file; the format is chosen by
// extension (.toml, .yaml, .yml).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .toml or .yaml)", filepath.Ext(path))
	}
	if err := normalize(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyBudgetOverrides merges CLI overrides into the configured limits.
func (c *Config) ApplyBudgetOverrides(overrides map[string]float64) {
	if len(overrides) == 0 {
		return
	}
	if c.Pipeline.Budget.Limits == nil {
		c.Pipeline.Budget.Limits = make(map[string]float64, len(overrides))
	}
	for resource, limit := range overrides {
		c.Pipeline.Budget.Limits[resource] = limit
	}
}

// normalize validates the union-typed fields up front so Build never sees
// raw decoder output.
func normalize(cfg *Config) error {
	for _, field := range []struct {
		name string
		v    *any
	}{
		{"estimator", &cfg.Pipeline.Components.Estimator},
		{"scheduler", &cfg.Pipeline.Components.Scheduler},
	} {
		records, err := parseComponentSpec(*field.v)
		if err != nil {
			return fmt.Errorf("components.%s: %w", field.name, err)
		}
		*field.v = records
	}
	return nil
}

// componentSpec returns the normalized record list for estimator/scheduler.
func componentSpec(v any) []ComponentConfig {
	records, _ := v.([]ComponentConfig)
	return records
}

// parseComponentSpec accepts a single {type, params} record or an ordered
// list of them. Keys other than type/params are rejected.
func parseComponentSpec(v any) ([]ComponentConfig, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []ComponentConfig:
		return t, nil
	case map[string]any:
		rec, err := parseComponentRecord(t)
		if err != nil {
			return nil, err
		}
		return []ComponentConfig{rec}, nil
	case []map[string]any:
		// go-toml delivers arrays of tables this way.
		anys := make([]any, len(t))
		for i, m := range t {
			anys[i] = m
		}
		return parseComponentSpec(anys)
	case []any:
		out := make([]ComponentConfig, 0, len(t))
		for i, entry := range t {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("entry %d: expected a {type, params} record", i)
			}
			rec, err := parseComponentRecord(m)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			out = append(out, rec)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a {type, params} record or a list of them, got %T", v)
	}
}

func parseComponentRecord(m map[string]any) (ComponentConfig, error) {
	var rec ComponentConfig
	for key, val := range m {
		switch key {
		case "type":
			s, ok := val.(string)
			if !ok {
				return rec, fmt.Errorf("type must be a string, got %T", val)
			}
			rec.Type = s
		case "params":
			p, ok := val.(map[string]any)
			if !ok {
				return rec, fmt.Errorf("params must be a mapping, got %T", val)
			}
			rec.Params = registry.Params(p)
		default:
			return rec, fmt.Errorf("unknown key %q", key)
		}
	}
	if rec.Type == "" {
		return rec, fmt.Errorf("missing type")
	}
	return rec, nil
}
