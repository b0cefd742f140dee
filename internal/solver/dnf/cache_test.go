package dnf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillCache(t *testing.T, root string, files map[string]int) {
	t.Helper()
	for name, size := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	}
}

func TestCacheClean(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	fillCache(t, root, map[string]int{
		"repodata/primary.xml.gz":   4096,
		"repodata/filelists.xml.gz": 8192,
	})

	// Under the limit the cache is kept.
	cache := newMetadataCache(root, 1024*1024)
	require.NoError(t, cache.clean())
	assert.DirExists(t, root)

	// Over the limit the whole tree goes.
	cache.maxSize = 1024
	require.NoError(t, cache.clean())
	assert.NoDirExists(t, root)
}

func TestCacheCleanMissingDir(t *testing.T) {
	cache := newMetadataCache(filepath.Join(t.TempDir(), "does-not-exist"), 1024)
	assert.NoError(t, cache.clean())
}

func TestCacheSize(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	fillCache(t, root, map[string]int{
		"a": 100,
		"b": 50,
	})

	cache := newMetadataCache(root, 1024)
	size, err := cache.size()
	require.NoError(t, err)
	// Directory entries count towards the total, so the files are a
	// lower bound.
	assert.GreaterOrEqual(t, size, uint64(150))
}
