package badger_test

import (
	"context"
	"testing"

	"github.com/botasky11/totml/pkg/adapters/badger"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.ExperimentStore = (*badger.Store)(nil)

func TestBadgerStore_Contract(t *testing.T) {
	store, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ports.RunExperimentStoreContract(t, store)
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := badger.DefaultConfig(dir)
	store, err := badger.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, &domain.Experiment{ID: "durable", Name: "kept", Status: domain.StatusCompleted}))
	require.NoError(t, store.Close())

	store, err = badger.Open(cfg)
	require.NoError(t, err)
	defer store.Close()

	exp, err := store.Load(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, "kept", exp.Name)
	assert.Equal(t, domain.StatusCompleted, exp.Status)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"durable"}, ids)
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := badger.Open(badger.Config{})
	assert.Error(t, err)
}
