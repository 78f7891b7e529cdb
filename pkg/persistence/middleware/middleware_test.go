package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/botasky11/totml/pkg/adapters/memory"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/persistence/middleware"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func experiment(t *testing.T, termOut string) *domain.Experiment {
	t.Helper()
	j := domain.NewJournal()
	n := domain.NewNode("plan", "print('secret model')", nil)
	require.NoError(t, n.AbsorbExecResult(domain.ExecutionResult{TermOut: termOut}))
	require.NoError(t, n.AbsorbReview("fine", false, domain.NewMetric(0.7, true)))
	require.NoError(t, j.Append(n))

	exp := &domain.Experiment{
		ID:         "exp-secure",
		Name:       "secure",
		Task:       domain.Task{Goal: "confidential goal"},
		Status:     domain.StatusRunning,
		TotalSteps: 3,
		Config:     map[string]any{"code_model": "gpt-4o"},
		Journal:    j.Snapshot(),
	}
	exp.RecordBest(j)
	return exp
}

func secure(t *testing.T, next ports.ExperimentStore, cfg middleware.EncryptionConfig) ports.ExperimentStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()
	exp := experiment(t, "ok")

	require.NoError(t, store.Save(ctx, exp))

	raw, err := underlying.Load(ctx, exp.ID)
	require.NoError(t, err)
	assert.Empty(t, raw.Task.Goal, "task must be hidden")
	assert.Empty(t, raw.BestCode, "code must be hidden")
	assert.Empty(t, raw.Journal.Nodes, "journal must be hidden")
	assert.Contains(t, raw.Config, "__encrypted__")
	assert.Equal(t, domain.StatusRunning, raw.Status, "status stays readable")
	require.NotNil(t, raw.BestMetric)

	loaded, err := store.Load(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "confidential goal", loaded.Task.Goal)
	assert.Equal(t, exp.BestCode, loaded.BestCode)
	assert.Equal(t, "gpt-4o", loaded.Config["code_model"])
	j, err := domain.RestoreJournal(loaded.Journal)
	require.NoError(t, err)
	assert.Equal(t, exp.BestNodeID, j.BestNode(true).ID)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{exp.ID}, ids)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()
	exp := experiment(t, "ok")

	oldStore := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, oldStore.Save(ctx, exp))

	rotated := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	loaded, err := rotated.Load(ctx, exp.ID)
	require.NoError(t, err, "fallback key should decrypt old records")
	assert.Equal(t, "confidential goal", loaded.Task.Goal)

	require.NoError(t, rotated.Save(ctx, loaded))
	_, err = oldStore.Load(ctx, exp.ID)
	assert.Error(t, err, "records re-saved with the new key are unreadable with the old one")
}

func TestEncryptionMiddleware_PlainRecord(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, experiment(t, "ok")))

	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err := store.Load(ctx, "exp-secure")
	assert.ErrorIs(t, err, middleware.ErrMissingEnvelope)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrExperimentNotFound)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRedactionMiddleware(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewRedactionMiddleware(middleware.DefaultSecretPatterns)
	require.NoError(t, err)
	store := mw(underlying)
	ctx := context.Background()

	exp := experiment(t, "using key sk-abcdefghijklmnopqrstuvwx\nOPENAI_API_KEY=hunter2\naccuracy 0.7")
	exp.Config["note"] = "token: abc123"
	require.NoError(t, store.Save(ctx, exp))

	loaded, err := store.Load(ctx, exp.ID)
	require.NoError(t, err)
	out := loaded.Journal.Nodes[0].TermOut
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuvwx")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "accuracy 0.7")
	assert.Equal(t, middleware.Mask, loaded.Config["note"])

	assert.Contains(t, exp.Journal.Nodes[0].TermOut, "hunter2", "caller's record is left untouched")
}

func TestRedactionMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewRedactionMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	underlying := memory.NewStore()
	redact, err := middleware.NewRedactionMiddleware(middleware.DefaultSecretPatterns)
	require.NoError(t, err)
	encrypt, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, redact, encrypt)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, experiment(t, "password=letmein")))

	loaded, err := store.Load(ctx, "exp-secure")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Journal.Nodes[0].TermOut)
}
