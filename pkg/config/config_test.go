package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "totml.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
experiment:
  name: house-prices
  goal: Predict the sales price for each house
  eval: RMSE between log-prices
  steps: 10
agent:
  num_drafts: 3
  debug_prob: 0.25
  code:
    model: claude-3-5-sonnet
exec:
  timeout: 30m
store:
  kind: memory
`), 0o644))

	t.Setenv("TOTML_STEPS", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "house-prices", cfg.Experiment.Name)
	assert.Equal(t, 12, cfg.Experiment.Steps, "env wins over file")
	assert.Equal(t, 0.25, cfg.Agent.DebugProb)
	assert.Equal(t, 3, cfg.Agent.NumDrafts)
	assert.Equal(t, "claude-3-5-sonnet", cfg.Agent.Code.Model)
	assert.Equal(t, 30*time.Minute, cfg.Exec.Timeout)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, 3, cfg.Agent.MaxDebugDepth, "defaults survive partial files")
}

func TestLoad_MalformedEnv(t *testing.T) {
	t.Setenv("TOTML_DEBUG_PROB", "0,7")
	t.Setenv("TOTML_NUM_DRAFTS", "three")
	t.Setenv("TOTML_STORE", "etcd")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	var keys []string
	for _, e := range ValidationErrors(err) {
		keys = append(keys, e.(*ValidationError).Key)
	}
	assert.ElementsMatch(t, []string{"agent.debug_prob", "agent.num_drafts", "store.kind"}, keys)
	assert.Contains(t, err.Error(), "TOTML_DEBUG_PROB must be a number")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Aggregates(t *testing.T) {
	cfg := Default()
	cfg.Agent.DebugProb = 1.5
	cfg.Store.Kind = "postgres"
	cfg.Exec.Command = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	errs := ValidationErrors(err)
	require.Len(t, errs, 3)

	var keys []string
	for _, e := range errs {
		keys = append(keys, e.(*ValidationError).Key)
	}
	assert.ElementsMatch(t, []string{"agent.debug_prob", "store.kind", "exec.command"}, keys)
}

func TestValidate_RequiredIf(t *testing.T) {
	cfg := Default()
	cfg.Store.Kind = "redis"
	cfg.Store.RedisAddr = ""

	errs := ValidationErrors(cfg.Validate())
	require.Len(t, errs, 1)
	assert.Equal(t, "store.redis_addr", errs[0].(*ValidationError).Key)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TOTML_SEED":         "42",
		"TOTML_EXEC_TIMEOUT": "90s",
		"TOTML_STORE":        "badger",
		"TOTML_CODE_MODEL":   "gpt-4o",
	}
	cfg := Default()
	errs := applyEnv(&cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.Empty(t, errs)

	assert.Equal(t, uint64(42), cfg.Agent.Seed)
	assert.Equal(t, 90*time.Second, cfg.Exec.Timeout)
	assert.Equal(t, "badger", cfg.Store.Kind)
	assert.Equal(t, "gpt-4o", cfg.Agent.Code.Model)
}
