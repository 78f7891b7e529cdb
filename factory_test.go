package totml

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/pkg/config"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Agent.NumDrafts = 3
	cfg.Agent.DebugProb = 0.25
	cfg.Agent.MaxDebugDepth = 2
	cfg.Agent.ExposePrediction = true
	cfg.Backend.MaxTokens = 4096
	cfg.Exec.Timeout = 10 * time.Minute

	rc := agentConfig(cfg)
	assert.Equal(t, 3, rc.Search.NumDrafts)
	assert.Equal(t, 0.25, rc.Search.DebugProb)
	assert.Equal(t, 2, rc.Search.MaxDebugDepth)
	assert.Equal(t, "gpt-4o", rc.Code.Model)
	assert.Equal(t, "gpt-4o-mini", rc.Feedback.Model)
	require.NotNil(t, rc.Code.Temperature)
	assert.Equal(t, 0.5, *rc.Code.Temperature)
	assert.Equal(t, 4096, rc.MaxTokens)
	assert.Equal(t, 10*time.Minute, rc.ExecTimeout)
	assert.True(t, rc.ExposePrediction)
	assert.Equal(t, 5, rc.KFoldValidation)
}

func TestOpenStore(t *testing.T) {
	logger := logging.NewNop()

	t.Run("memory", func(t *testing.T) {
		st, err := openStore(config.StoreConfig{Kind: "memory"}, logger)
		require.NoError(t, err)
		assert.NotNil(t, st.store)
		assert.Nil(t, st.locker)
	})

	t.Run("file", func(t *testing.T) {
		st, err := openStore(config.StoreConfig{Kind: "file", Path: t.TempDir()}, logger)
		require.NoError(t, err)
		assert.NotNil(t, st.store)
	})

	t.Run("badger", func(t *testing.T) {
		st, err := openStore(config.StoreConfig{Kind: "badger", Path: t.TempDir()}, logger)
		require.NoError(t, err)
		require.NotNil(t, st.close)
		assert.NoError(t, st.close())
	})

	t.Run("redis", func(t *testing.T) {
		st, err := openStore(config.StoreConfig{Kind: "redis", RedisAddr: "localhost:0", Prefix: "t"}, logger)
		require.NoError(t, err)
		assert.NotNil(t, st.locker)
		assert.NoError(t, st.close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := openStore(config.StoreConfig{Kind: "etcd"}, logger)
		assert.Error(t, err)
	})

	t.Run("bad key", func(t *testing.T) {
		_, err := openStore(config.StoreConfig{Kind: "memory", EncryptionKey: base64.StdEncoding.EncodeToString([]byte("short"))}, logger)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	})
}

func TestOpenStore_Middleware(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

	st, err := openStore(config.StoreConfig{Kind: "file", Path: dir, Redact: true, EncryptionKey: key}, logging.NewNop())
	require.NoError(t, err)

	exp := &domain.Experiment{
		ID:     "exp-1",
		Name:   "secret",
		Task:   domain.Task{Goal: "predict churn"},
		Status: domain.StatusPending,
		Config: map[string]any{"api": "token=abc123"},
	}
	require.NoError(t, st.store.Save(ctx, exp))

	raw, err := os.ReadFile(filepath.Join(dir, "exp-1.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "predict churn")

	loaded, err := st.store.Load(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "predict churn", loaded.Task.Goal)
	assert.Equal(t, "***", loaded.Config["api"])
}

func TestPrepareWorkspace(t *testing.T) {
	logger := logging.NewNop()

	t.Run("links data", func(t *testing.T) {
		data := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(data, "train.csv"), []byte("a\n1\n"), 0644))
		ws := filepath.Join(t.TempDir(), "exp")

		require.NoError(t, prepareWorkspace(ws, data, logger))
		content, err := os.ReadFile(filepath.Join(ws, inputDir, "train.csv"))
		require.NoError(t, err)
		assert.Equal(t, "a\n1\n", string(content))

		require.NoError(t, prepareWorkspace(ws, data, logger), "second call keeps the existing input")
	})

	t.Run("missing data", func(t *testing.T) {
		ws := t.TempDir()
		require.NoError(t, prepareWorkspace(ws, filepath.Join(ws, "nope"), logger))
		entries, err := os.ReadDir(filepath.Join(ws, inputDir))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("copy", func(t *testing.T) {
		src := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "x.txt"), []byte("x"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(src, ".hidden"), []byte("h"), 0644))
		dst := filepath.Join(t.TempDir(), "copy")

		require.NoError(t, copyTree(src, dst))
		_, err := os.Stat(filepath.Join(dst, "sub", "x.txt"))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(dst, ".hidden"))
		assert.True(t, os.IsNotExist(err))
	})
}
