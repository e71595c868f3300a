package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverShardsBasic(t *testing.T) {
	dir := t.TempDir()
	mustTouch(t, filepath.Join(dir, "shard-000000.tar"))
	mustTouch(t, filepath.Join(dir, "nested", "shard-000001.tar"))
	mustTouch(t, filepath.Join(dir, "ignore.txt"))

	shards, err := DiscoverShards(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "nested", "shard-000001.tar"),
		filepath.Join(dir, "shard-000000.tar"),
	}, shards)
}

func TestDiscoverShardsGrowth(t *testing.T) {
	dir := t.TempDir()
	mustTouch(t, filepath.Join(dir, "shard-000000.tar"))

	first, err := DiscoverShards(dir)
	require.NoError(t, err)
	require.Len(t, first, 1)

	mustTouch(t, filepath.Join(dir, "shard-000001.tar"))

	second, err := DiscoverShards(dir)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

func TestDiscoverByRoot(t *testing.T) {
	temp := t.TempDir()
	rootA := filepath.Join(temp, "a")
	rootB := filepath.Join(temp, "b")
	mustTouch(t, filepath.Join(rootA, "shard-000000.tar"))
	mustTouch(t, filepath.Join(rootB, "shard-000000.tar"))
	mustTouch(t, filepath.Join(rootB, "shard-000001.tar"))

	byRoot, err := DiscoverByRoot([]string{rootA, rootB})
	require.NoError(t, err)
	assert.Len(t, byRoot[rootA], 1)
	assert.Len(t, byRoot[rootB], 2)
}

func mustTouch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
}
