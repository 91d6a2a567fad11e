package session_test

import (
	"net"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/internal/session"
)

type nopHandler struct{}

func (nopHandler) OnStart(*session.Session)               {}
func (nopHandler) OnStartError(*session.Session, error)   {}
func (nopHandler) OnTimeout(*session.Session)             {}
func (nopHandler) OnShutdown(*session.Session)            {}

func TestManagerSingleThreaded(t *testing.T) {
	m := session.NewManager(8)
	s := session.New(nopHandler{})

	require.True(t, m.Add(s))
	assert.False(t, m.Add(s))
	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.True(t, m.Remove(s.ID()))
	assert.False(t, m.Remove(s.ID()))
	_, ok = m.Get(s.ID())
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := session.NewManager(32)
	sessions := make([]*session.Session, 100)
	for i := range sessions {
		sessions[i] = session.New(nopHandler{})
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			m.Add(s)
		}(s)
	}
	wg.Wait()
	assert.Equal(t, len(sessions), m.Len())

	seen := 0
	m.Range(func(*session.Session) bool {
		seen++
		return true
	})
	assert.Equal(t, len(sessions), seen)
}

func TestManagerShutdownAll(t *testing.T) {
	m := session.NewManager(4)
	var peers []net.Conn
	for i := 0; i < 3; i++ {
		local, peer := net.Pipe()
		peers = append(peers, peer)
		s := session.New(nopHandler{})
		require.NoError(t, s.Start(local))
		m.Add(s)
	}
	defer func() {
		for _, p := range peers {
			_ = p.Close()
		}
	}()

	assert.Equal(t, 3, m.ShutdownAll())
	m.Range(func(s *session.Session) bool {
		assert.True(t, s.IsShutdown())
		return true
	})
}

type capture struct {
	to   netip.AddrPort
	sent []byte
}

func (c *capture) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	c.to = addr
	c.sent = append([]byte(nil), b...)
	return len(b), nil
}

func TestDatagramReplyConcatenatesParts(t *testing.T) {
	w := &capture{}
	remote := netip.MustParseAddrPort("[::ffff:10.0.0.5]:4000")
	d := session.NewDatagram(w, remote, []byte{1, 2})

	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), d.Remote().Addr())
	require.NoError(t, d.Reply([]byte{0x81}, []byte{2}))
	assert.Equal(t, []byte{0x81, 2}, w.sent)
	assert.Equal(t, uint16(4000), w.to.Port())
}
