// File: internal/registry/registry.go
// Package registry holds the Host, Controller and World records of the fleet.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hosts and worlds live in serial tables, controllers in a slot table so UDP
// state traffic for different controllers never contends. Operations that
// touch hosts and controllers together run inside the host strand and take
// controller slot locks from there; nothing takes them in the reverse order.

package registry

import (
	"net/netip"
	"strings"
	"unicode"
	"weak"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/internal/store"
	"github.com/momentics/fleetlink/internal/wire"
)

// Host is a registered host machine.
type Host struct {
	ID          api.ID
	Name        string
	Endpoint    netip.AddrPort
	Controllers map[api.ID]struct{}

	session weak.Pointer[session.Session]
}

// Session returns the host's TCP session, or nil once it has been collected.
// The registry never keeps the session alive.
func (h *Host) Session() *session.Session {
	return h.session.Value()
}

// Controller is a subordinate unit.
type Controller struct {
	ID       api.ID
	Name     string
	Endpoint netip.Addr
	// Host is api.NoID while the controller is unassigned.
	Host     api.ID
	Rotation api.Rotation
}

// World is a running world hosted by MainHost.
type World struct {
	ID       api.ID
	MainHost api.ID
	Endpoint netip.AddrPort
}

// Config sizes the tables.
type Config struct {
	ControllerSlots int
}

// Database bundles the three tables.
type Database struct {
	Hosts       *store.SerialTable[Host]
	Controllers *store.SlotTable[Controller]
	Worlds      *store.SerialTable[World]

	logger *zap.Logger
}

// New returns an empty database.
func New(cfg Config, logger *zap.Logger) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Database{
		Hosts:       store.NewSerialTable[Host](logger.Named("hosts")),
		Controllers: store.NewSlotTable[Controller](cfg.ControllerSlots),
		Worlds:      store.NewSerialTable[World](logger.Named("worlds")),
		logger:      logger,
	}
}

// RegisterHost installs a host bound to s. With id == api.NoID a fresh id is
// allocated; otherwise the requested id is claimed if free.
func (db *Database) RegisterHost(id api.ID, name string, s *session.Session) (api.ID, bool) {
	h := Host{
		Name:        name,
		Controllers: make(map[api.ID]struct{}),
		session:     weak.Make(s),
	}
	if s != nil {
		h.Endpoint = s.RemoteAddrPort()
	}
	var ok bool
	db.Hosts.Exec(func(tx *store.Txn[Host]) {
		if id == api.NoID {
			id = tx.Create(h)
			ok = id != api.NoID
		} else {
			ok = tx.Put(id, h)
		}
		if ok {
			tx.Get(id).ID = id
		}
	})
	if ok {
		db.logger.Info("host registered", zap.Stringer("host", id), zap.String("name", name))
	}
	return id, ok
}

// RemoveHost erases a host after orphaning every controller attached to it.
func (db *Database) RemoveHost(id api.ID) bool {
	var (
		ok       bool
		orphaned int
	)
	db.Hosts.Exec(func(tx *store.Txn[Host]) {
		h := tx.Get(id)
		if h == nil {
			return
		}
		for cid := range h.Controllers {
			db.Controllers.AccessWrite(cid, func(c *Controller) {
				if c != nil && c.Host == id {
					c.Host = api.NoID
					orphaned++
				}
			})
		}
		ok = tx.Delete(id)
	})
	if ok {
		db.logger.Info("host removed", zap.Stringer("host", id), zap.Int("orphaned", orphaned))
	}
	return ok
}

// HostExists reports whether id is a registered host.
func (db *Database) HostExists(id api.ID) bool {
	var ok bool
	db.Hosts.AccessRead(id, func(h *Host) { ok = h != nil })
	return ok
}

// ValidName reports whether name is acceptable for a controller.
func ValidName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// RegisterController installs a controller reachable at endpoint.
func (db *Database) RegisterController(name string, endpoint netip.Addr) (api.ID, wire.ResultCode) {
	if !ValidName(name) {
		return api.NoID, wire.ControllerInvalid
	}
	// name uniqueness and creation are checked under the host strand so
	// concurrent registrations of one name serialize
	var (
		id   api.ID
		code = wire.ControllerAccepted
	)
	db.Hosts.Exec(func(*store.Txn[Host]) {
		db.Controllers.Range(func(_ api.ID, c *Controller) bool {
			if c.Name == name {
				code = wire.ControllerInUse
				return false
			}
			return true
		})
		if code != wire.ControllerAccepted {
			return
		}
		id = db.Controllers.CreateAndAdd(Controller{Name: name, Endpoint: endpoint.Unmap()})
		if id == api.NoID {
			code = wire.ControllerInvalid
			return
		}
		db.Controllers.AccessWrite(id, func(c *Controller) { c.ID = id })
	})
	if code == wire.ControllerAccepted {
		db.logger.Info("controller registered", zap.Stringer("controller", id), zap.String("name", name))
	} else if id == api.NoID && code == wire.ControllerInvalid {
		db.logger.Warn("controller table exhausted", zap.String("name", name))
	}
	return id, code
}

// AttachController assigns a controller to a host, detaching it from its
// previous host if any.
func (db *Database) AttachController(hostID, controllerID api.ID) bool {
	var ok bool
	db.Hosts.Exec(func(tx *store.Txn[Host]) {
		h := tx.Get(hostID)
		if h == nil {
			return
		}
		db.Controllers.AccessWrite(controllerID, func(c *Controller) {
			if c == nil {
				return
			}
			if c.Host != api.NoID && c.Host != hostID {
				if prev := tx.Get(c.Host); prev != nil {
					delete(prev.Controllers, controllerID)
				}
			}
			c.Host = hostID
			ok = true
		})
		if ok {
			h.Controllers[controllerID] = struct{}{}
		}
	})
	return ok
}

// RemoveController erases a controller and detaches it from its host.
func (db *Database) RemoveController(id api.ID) bool {
	var ok bool
	db.Hosts.Exec(func(tx *store.Txn[Host]) {
		host := api.NoID
		db.Controllers.AccessRead(id, func(c *Controller) {
			if c != nil {
				host = c.Host
			}
		})
		if !db.Controllers.Remove(id) {
			return
		}
		ok = true
		if h := tx.Get(host); h != nil {
			delete(h.Controllers, id)
		}
	})
	return ok
}

// Controller returns a copy of the controller record.
func (db *Database) Controller(id api.ID) (Controller, bool) {
	var (
		out Controller
		ok  bool
	)
	db.Controllers.AccessRead(id, func(c *Controller) {
		if c != nil {
			out, ok = *c, true
		}
	})
	return out, ok
}

// Host returns a copy of the host record. The controller set is copied too.
func (db *Database) Host(id api.ID) (Host, bool) {
	var (
		out Host
		ok  bool
	)
	db.Hosts.AccessRead(id, func(h *Host) {
		if h == nil {
			return
		}
		out, ok = *h, true
		out.Controllers = make(map[api.ID]struct{}, len(h.Controllers))
		for c := range h.Controllers {
			out.Controllers[c] = struct{}{}
		}
	})
	return out, ok
}

// FetchRotation returns the rotation of a controller, only when from matches
// its registered address.
func (db *Database) FetchRotation(id api.ID, from netip.Addr) (api.Rotation, bool) {
	var (
		rot api.Rotation
		ok  bool
	)
	db.Controllers.AccessRead(id, func(c *Controller) {
		if c != nil && c.Endpoint == from.Unmap() {
			rot, ok = c.Rotation, true
		}
	})
	return rot, ok
}

// UpdateRotation overwrites the rotation of a controller.
func (db *Database) UpdateRotation(id api.ID, rot api.Rotation) bool {
	var ok bool
	db.Controllers.AccessWrite(id, func(c *Controller) {
		if c != nil {
			c.Rotation = rot
			ok = true
		}
	})
	return ok
}

// CreateWorld starts a world led by mainHost, reachable at endpoint.
func (db *Database) CreateWorld(mainHost api.ID, endpoint netip.AddrPort) api.ID {
	if !db.HostExists(mainHost) {
		return api.NoID
	}
	var id api.ID
	db.Worlds.Exec(func(tx *store.Txn[World]) {
		id = tx.Create(World{MainHost: mainHost, Endpoint: endpoint})
		if id != api.NoID {
			tx.Get(id).ID = id
		}
	})
	if id != api.NoID {
		db.logger.Info("world created", zap.Stringer("world", id), zap.Stringer("host", mainHost),
			zap.Stringer("endpoint", endpoint))
	}
	return id
}

// RemoveWorld stops a world. Only its main host may do so.
func (db *Database) RemoveWorld(id, byHost api.ID) bool {
	var ok bool
	db.Worlds.Exec(func(tx *store.Txn[World]) {
		w := tx.Get(id)
		if w == nil || w.MainHost != byHost {
			return
		}
		ok = tx.Delete(id)
	})
	return ok
}

// World returns a copy of the world record.
func (db *Database) World(id api.ID) (World, bool) {
	var (
		out World
		ok  bool
	)
	db.Worlds.AccessRead(id, func(w *World) {
		if w != nil {
			out, ok = *w, true
		}
	})
	return out, ok
}

// Stats reports table sizes.
func (db *Database) Stats() map[string]int {
	return map[string]int{
		"hosts":       db.Hosts.Len(),
		"controllers": db.Controllers.Len(),
		"worlds":      db.Worlds.Len(),
	}
}
