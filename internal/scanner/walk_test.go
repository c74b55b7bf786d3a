package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestWalkFiltersByExtensionAndSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movie.mkv"), 200)
	writeFile(t, filepath.Join(root, "movie.txt"), 200)
	writeFile(t, filepath.Join(root, "tiny.mkv"), 50)

	entries, err := Walk(context.Background(), WalkOptions{
		Root:         root,
		Extensions:   []string{".mkv"},
		MinSizeBytes: 100,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "movie.mkv", filepath.Base(entries[0].Path))
}

func TestWalkBoundaryAtMinSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "exact.mkv"), 100)
	writeFile(t, filepath.Join(root, "below.mkv"), 99)

	entries, err := Walk(context.Background(), WalkOptions{
		Root:         root,
		Extensions:   []string{".mkv"},
		MinSizeBytes: 100,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "exact.mkv", filepath.Base(entries[0].Path))
}

func TestWalkExcludesTargetSubtree(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "library")
	writeFile(t, filepath.Join(root, "source.mkv"), 200)
	writeFile(t, filepath.Join(target, "already-linked.mkv"), 200)

	entries, err := Walk(context.Background(), WalkOptions{
		Root:         root,
		Extensions:   []string{".mkv"},
		MinSizeBytes: 0,
		ExcludeDir:   target,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "source.mkv", filepath.Base(entries[0].Path))
}

func TestWalkIsCaseInsensitiveOnExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Movie.MKV"), 200)

	entries, err := Walk(context.Background(), WalkOptions{
		Root:         root,
		Extensions:   []string{".mkv"},
		MinSizeBytes: 0,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWalkSymlinkLoopTerminatesWithoutRevisiting(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, filepath.Join(sub, "movie.mkv"), 200)

	loop := filepath.Join(sub, "loop")
	require.NoError(t, os.Symlink(sub, loop))

	entries, err := Walk(context.Background(), WalkOptions{
		Root:           root,
		Extensions:     []string{".mkv"},
		MinSizeBytes:   0,
		FollowSymlinks: true,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWalkDoesNotFollowDirectorySymlinksByDefault(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "movie.mkv"), 200)
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "linked")))

	entries, err := Walk(context.Background(), WalkOptions{
		Root:         root,
		Extensions:   []string{".mkv"},
		MinSizeBytes: 0,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
