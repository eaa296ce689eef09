package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragtune/internal/estimator"
	"ragtune/internal/registry"
	"ragtune/internal/scheduler"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const tomlPipeline = `[pipeline]
name = "test"

[pipeline.budget.limits]
tokens = 4000
rerank_docs = 50

[pipeline.retrieval]
original_query_depth = 10
num_reformulations = 2
depth_per_reformulation = 5

[pipeline.components.retriever]
type = "memory"

[pipeline.components.estimator]
type = "baseline"

[pipeline.components.scheduler]
type = "batch"
params = { batch_size = 3 }
`

const yamlPipeline = `pipeline:
  name: test
  budget:
    limits:
      tokens: 4000
      rerank_docs: 50
  retrieval:
    original_query_depth: 10
    num_reformulations: 2
    depth_per_reformulation: 5
  components:
    retriever:
      type: memory
    estimator:
      - type: baseline
      - type: similarity
        params:
          winner_threshold: 0.8
          merge: max
    scheduler:
      type: batch
      params:
        batch_size: 3
`

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "p.toml", tomlPipeline))
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Pipeline.Name)
	assert.Equal(t, 4000.0, cfg.Pipeline.Budget.Limits["tokens"])
	assert.Equal(t, 2, cfg.Pipeline.Retrieval.NumReformulations)

	specs := componentSpec(cfg.Pipeline.Components.Estimator)
	require.Len(t, specs, 1)
	assert.Equal(t, "baseline", specs[0].Type)

	scheds := componentSpec(cfg.Pipeline.Components.Scheduler)
	require.Len(t, scheds, 1)
	assert.Equal(t, 3, scheds[0].Params.Int("batch_size", 0))
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "p.yaml", yamlPipeline))
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Pipeline.Name)

	specs := componentSpec(cfg.Pipeline.Components.Estimator)
	require.Len(t, specs, 2)
	assert.Equal(t, "baseline", specs[0].Type)
	assert.Equal(t, "similarity", specs[1].Type)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "p.toml", tomlPipeline+"\n[pipeline.surprise]\nkey = 1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "p.yaml", yamlPipeline+"  surprise: 1\n"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownComponentKeys(t *testing.T) {
	bad := `pipeline:
  components:
    estimator:
      type: baseline
      extra: nope
`
	_, err := Load(writeConfig(t, "p.yaml", bad))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load(writeConfig(t, "p.json", "{}"))
	assert.Error(t, err)
}

func TestApplyBudgetOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, "p.toml", tomlPipeline))
	require.NoError(t, err)

	cfg.ApplyBudgetOverrides(map[string]float64{"tokens": 100, "rerank_calls": 2})
	assert.Equal(t, 100.0, cfg.Pipeline.Budget.Limits["tokens"])
	assert.Equal(t, 2.0, cfg.Pipeline.Budget.Limits["rerank_calls"])
	assert.Equal(t, 50.0, cfg.Pipeline.Budget.Limits["rerank_docs"])
}

func TestBuildWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "p.toml", "[pipeline]\nname = \"empty\"\n"))
	require.NoError(t, err)

	ctrl, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, ctrl)
}

func TestBuildFromFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, "p.yaml", yamlPipeline))
	require.NoError(t, err)

	ctrl, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, ctrl)
}

func TestBuildRejectsUnknownComponentType(t *testing.T) {
	bad := `pipeline:
  components:
    reranker:
      type: quantum
`
	cfg, err := Load(writeConfig(t, "p.yaml", bad))
	require.NoError(t, err)
	_, err = Build(cfg, nil)
	assert.Error(t, err)
}

func TestBuildEstimatorListBecomesComposite(t *testing.T) {
	RegisterBuiltins(registry.Default, nil)
	records := []ComponentConfig{{Type: "baseline"}, {Type: "similarity"}}

	est, err := buildEstimator(registry.Default, records)
	require.NoError(t, err)
	_, ok := est.(*estimator.Composite)
	assert.True(t, ok)
}

func TestBuildSchedulerListBecomesPessimisticComposite(t *testing.T) {
	RegisterBuiltins(registry.Default, nil)
	records := []ComponentConfig{{Type: "batch"}, {Type: "batch"}}

	sch, err := buildScheduler(registry.Default, records)
	require.NoError(t, err)
	_, ok := sch.(*scheduler.Composite)
	assert.True(t, ok)
}
