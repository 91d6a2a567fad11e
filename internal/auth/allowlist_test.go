package auth_test

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/internal/auth"
)

func TestParseSkipsMalformedLines(t *testing.T) {
	in := strings.NewReader("10.0.0.0/8\n\n# comment\n192.168.1.77/24\nnot-an-ip\n300.1.1.1/8\n")
	prefixes, skipped, err := auth.Parse(in)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.0/24"),
	}, prefixes)
}

func TestAllowedMatchesPrefixes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.txt")
	require.NoError(t, os.WriteFile(path, []byte("10.1.0.0/16\n127.0.0.1/32\n"), 0o644))
	a, err := auth.Load(path, nil)
	require.NoError(t, err)

	assert.True(t, a.Allowed(netip.MustParseAddr("10.1.200.3")))
	assert.True(t, a.Allowed(netip.MustParseAddr("::ffff:127.0.0.1")))
	assert.False(t, a.Allowed(netip.MustParseAddr("10.2.0.1")))
	assert.Equal(t, 2, a.Len())
}

func TestLoadCreatesEmptyFileThatDeniesAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "allow.txt")
	a, err := auth.Load(path, nil)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.False(t, a.Allowed(netip.MustParseAddr("127.0.0.1")))
}

func TestDisabledAllowsEveryone(t *testing.T) {
	a := auth.Disabled()
	assert.True(t, a.Allowed(netip.MustParseAddr("203.0.113.5")))
	changed, err := a.Reload()
	assert.NoError(t, err)
	assert.False(t, changed)
}

func TestReloadOnlyOnModificationTimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.txt")
	require.NoError(t, os.WriteFile(path, []byte("10.0.0.0/8\n"), 0o644))
	a, err := auth.Load(path, nil)
	require.NoError(t, err)

	changed, err := a.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte("192.168.0.0/16\n"), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	changed, err = a.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, a.Allowed(netip.MustParseAddr("10.0.0.1")))
	assert.True(t, a.Allowed(netip.MustParseAddr("192.168.3.4")))
}

func TestWatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.txt")
	a, err := auth.Load(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx, 10*time.Millisecond) }()

	require.NoError(t, os.WriteFile(path, []byte("127.0.0.0/8\n"), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Eventually(t, func() bool {
		return a.Allowed(netip.MustParseAddr("127.0.0.1"))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
