package registry_test

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/registry"
	"github.com/momentics/fleetlink/internal/wire"
)

var (
	deviceAddr = netip.MustParseAddr("10.0.0.7")
	otherAddr  = netip.MustParseAddr("10.0.0.8")
)

func newDB() *registry.Database {
	return registry.New(registry.Config{ControllerSlots: 64}, nil)
}

func TestRegisterHostAllocatesIncreasingIds(t *testing.T) {
	db := newDB()
	first, ok := db.RegisterHost(api.NoID, "alpha", nil)
	require.True(t, ok)
	second, ok := db.RegisterHost(api.NoID, "beta", nil)
	require.True(t, ok)

	assert.NotEqual(t, api.NoID, first)
	assert.Greater(t, second, first)
}

func TestRegisterHostWithExplicitId(t *testing.T) {
	db := newDB()
	id, ok := db.RegisterHost(42, "fixed", nil)
	require.True(t, ok)
	assert.Equal(t, api.ID(42), id)

	_, ok = db.RegisterHost(42, "again", nil)
	assert.False(t, ok, "a live id must not be claimed twice")

	h, found := db.Host(42)
	require.True(t, found)
	assert.Equal(t, "fixed", h.Name)
	assert.Nil(t, h.Session())
}

func TestRemoveHostOrphansControllers(t *testing.T) {
	db := newDB()
	host, _ := db.RegisterHost(api.NoID, "h", nil)
	c1, code := db.RegisterController("c1", deviceAddr)
	require.Equal(t, wire.ControllerAccepted, code)
	c2, code := db.RegisterController("c2", deviceAddr)
	require.Equal(t, wire.ControllerAccepted, code)
	require.True(t, db.AttachController(host, c1))
	require.True(t, db.AttachController(host, c2))

	require.True(t, db.RemoveHost(host))
	assert.False(t, db.RemoveHost(host))

	for _, id := range []api.ID{c1, c2} {
		c, ok := db.Controller(id)
		require.True(t, ok, "controller %d must survive host removal", id)
		assert.Equal(t, api.NoID, c.Host)
	}
}

func TestAttachMovesControllerBetweenHosts(t *testing.T) {
	db := newDB()
	h1, _ := db.RegisterHost(api.NoID, "h1", nil)
	h2, _ := db.RegisterHost(api.NoID, "h2", nil)
	c, _ := db.RegisterController("c", deviceAddr)

	require.True(t, db.AttachController(h1, c))
	require.True(t, db.AttachController(h2, c))

	first, _ := db.Host(h1)
	second, _ := db.Host(h2)
	assert.NotContains(t, first.Controllers, c)
	assert.Contains(t, second.Controllers, c)

	// removing the former host must not orphan a controller it no longer owns
	require.True(t, db.RemoveHost(h1))
	ctrl, _ := db.Controller(c)
	assert.Equal(t, h2, ctrl.Host)
}

func TestAttachRejectsUnknownRecords(t *testing.T) {
	db := newDB()
	h, _ := db.RegisterHost(api.NoID, "h", nil)
	c, _ := db.RegisterController("c", deviceAddr)
	assert.False(t, db.AttachController(h+1, c))
	assert.False(t, db.AttachController(h, c+1))
}

func TestRegisterControllerResultCodes(t *testing.T) {
	db := newDB()
	_, code := db.RegisterController("", deviceAddr)
	assert.Equal(t, wire.ControllerInvalid, code)
	_, code = db.RegisterController("bad\x01name", deviceAddr)
	assert.Equal(t, wire.ControllerInvalid, code)

	id, code := db.RegisterController("arm", deviceAddr)
	assert.Equal(t, wire.ControllerAccepted, code)
	assert.NotEqual(t, api.NoID, id)

	_, code = db.RegisterController("arm", otherAddr)
	assert.Equal(t, wire.ControllerInUse, code)
}

func TestConcurrentRegistrationOfOneName(t *testing.T) {
	db := newDB()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, code := db.RegisterController("same", deviceAddr); code == wire.ControllerAccepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestRemoveControllerDetachesFromHost(t *testing.T) {
	db := newDB()
	h, _ := db.RegisterHost(api.NoID, "h", nil)
	c, _ := db.RegisterController("c", deviceAddr)
	require.True(t, db.AttachController(h, c))

	require.True(t, db.RemoveController(c))
	assert.False(t, db.RemoveController(c))
	host, _ := db.Host(h)
	assert.Empty(t, host.Controllers)
}

func TestRotationFetchRequiresRegisteredAddress(t *testing.T) {
	db := newDB()
	c, _ := db.RegisterController("c", deviceAddr)
	require.True(t, db.UpdateRotation(c, api.Rotation{1, 2, 3}))
	assert.False(t, db.UpdateRotation(c+1, api.Rotation{}))

	rot, ok := db.FetchRotation(c, deviceAddr)
	require.True(t, ok)
	assert.Equal(t, api.Rotation{1, 2, 3}, rot)

	_, ok = db.FetchRotation(c, otherAddr)
	assert.False(t, ok)
	_, ok = db.FetchRotation(c, netip.MustParseAddr("::ffff:10.0.0.7"))
	assert.True(t, ok, "IPv4-mapped addresses match their IPv4 form")
}

func TestWorldLifecycle(t *testing.T) {
	db := newDB()
	endpoint := netip.MustParseAddrPort("10.0.0.9:7777")
	assert.Equal(t, api.NoID, db.CreateWorld(5, endpoint), "unknown host cannot start a world")

	h, _ := db.RegisterHost(api.NoID, "h", nil)
	w := db.CreateWorld(h, endpoint)
	require.NotEqual(t, api.NoID, w)

	world, ok := db.World(w)
	require.True(t, ok)
	assert.Equal(t, h, world.MainHost)
	assert.Equal(t, endpoint, world.Endpoint)

	assert.False(t, db.RemoveWorld(w, h+1))
	assert.True(t, db.RemoveWorld(w, h))
	assert.Equal(t, map[string]int{"hosts": 1, "controllers": 0, "worlds": 0}, db.Stats())
}
