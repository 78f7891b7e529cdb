package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/botasky11/totml/internal/adapters/file"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.ExperimentStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunExperimentStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Experiment{ID: "exp-1", Name: "demo"}))

	data, err := os.ReadFile(filepath.Join(dir, "exp-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "demo"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not survive a save")
}

func TestFileStore_RejectsUnsafeIDs(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "..", "../escape", `a\b`} {
		assert.Error(t, store.Save(ctx, &domain.Experiment{ID: id}), "id %q", id)
	}
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "missing"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	_, err := file.New(dir).Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrExperimentNotFound)
}
