package files_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/files"
)

func newManager(t *testing.T) *files.Manager {
	t.Helper()
	m, err := files.New(t.TempDir(), nil)
	require.NoError(t, err)
	return m
}

// partials lists the in-flight upload files of target.
func partials(t *testing.T, target string) []string {
	t.Helper()
	found, err := filepath.Glob(target + ".*.part")
	require.NoError(t, err)
	return found
}

func TestLayout(t *testing.T) {
	m := newManager(t)
	assert.Equal(t, filepath.Join(m.Root(), "maps", "map_17"), m.MapPath(17))
	p, err := m.FilePath("level.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.Root(), "files", "level.bin"), p)

	for _, dir := range []string{"maps", "files"} {
		fi, err := os.Stat(filepath.Join(m.Root(), dir))
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}
}

func TestValidFileName(t *testing.T) {
	assert.True(t, files.ValidFileName("map.bin"))
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, "x.part", "bell\x07", strings.Repeat("n", 128)} {
		assert.False(t, files.ValidFileName(bad), "%q must be rejected", bad)
	}
}

func TestCommitReplacesMapAtomically(t *testing.T) {
	m := newManager(t)
	require.NoError(t, os.WriteFile(m.MapPath(3), []byte("old"), 0o644))

	up, err := m.CreateMap(3)
	require.NoError(t, err)
	_, err = up.Write([]byte("new map"))
	require.NoError(t, err)

	// the previous map is served until the upload commits
	data, err := os.ReadFile(m.MapPath(3))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	require.NoError(t, up.Commit())
	data, err = os.ReadFile(m.MapPath(3))
	require.NoError(t, err)
	assert.Equal(t, "new map", string(data))
	assert.Empty(t, partials(t, m.MapPath(3)))

	up.Abort()
	assert.FileExists(t, m.MapPath(3), "abort after commit is a no-op")
}

func TestAbortLeavesNoPartialFile(t *testing.T) {
	m := newManager(t)
	up, err := m.CreateFile("draft")
	require.NoError(t, err)
	_, err = up.Write([]byte("partial"))
	require.NoError(t, err)
	up.Abort()

	path, _ := m.FilePath("draft")
	assert.NoFileExists(t, path)
	assert.Empty(t, partials(t, path))
	assert.Error(t, up.Commit())
}

func TestConcurrentUploadsOfOneNameStayApart(t *testing.T) {
	m := newManager(t)
	first, err := m.CreateFile("shared.bin")
	require.NoError(t, err)
	second, err := m.CreateFile("shared.bin")
	require.NoError(t, err)
	assert.Len(t, partials(t, filepath.Join(m.Root(), "files", "shared.bin")), 2)

	_, err = first.Write([]byte("AAAAAAAAAA"))
	require.NoError(t, err)
	_, err = second.Write([]byte("BBBB"))
	require.NoError(t, err)

	path, err := m.FilePath("shared.bin")
	require.NoError(t, err)
	require.NoError(t, first.Commit())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAAA", string(data))

	require.NoError(t, second.Commit())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "BBBB", string(data), "the last commit wins whole")
	assert.Empty(t, partials(t, path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())
}

func TestOpenReportsSizeAndMissing(t *testing.T) {
	m := newManager(t)
	_, err := m.OpenMap(9)
	assert.ErrorIs(t, err, api.ErrNotFound)
	_, err = m.OpenFile("../escape")
	assert.ErrorIs(t, err, files.ErrInvalidName)

	require.NoError(t, os.WriteFile(m.MapPath(9), []byte("0123456789"), 0o644))
	src, err := m.OpenMap(9)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, uint64(10), src.Size())

	buf := make([]byte, 4)
	_, err = src.ReadAt(buf, 6)
	require.True(t, err == nil || err == io.EOF)
	assert.Equal(t, "6789", string(buf))
}

func TestStrandSerializesFileWork(t *testing.T) {
	m := newManager(t)
	var order []int
	for i := 0; i < 10; i++ {
		m.Strand().Post(func() { order = append(order, i) })
	}
	m.Strand().Do(func() {})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}
