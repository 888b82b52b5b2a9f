package replication

import (
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/input"
	"vessel-racer/internal/protocol"
	"vessel-racer/internal/vessel"
)

// Client is the client side of the handshake: it caches broadcast vessel
// definitions, applies the server's replication frames onto local entities,
// announces the locally built vessel and sends control on change.
type Client struct {
	world     *ecs.World
	assets    *vessel.AssetTable
	root      ecs.Entity
	id        protocol.ClientID
	connected bool
	announced ecs.Entity
	// controlDue forces the next SendControl after an announce.
	controlDue bool
	entities  map[ecs.Entity]ecs.Entity // server entity -> local entity
	out       []protocol.Message
}

// NewClient creates a client over w and assets.
func NewClient(w *ecs.World, assets *vessel.AssetTable) *Client {
	return &Client{
		world:    w,
		assets:   assets,
		entities: make(map[ecs.Entity]ecs.Entity),
	}
}

// SetRoot parents every received entity under root.
func (c *Client) SetRoot(root ecs.Entity) { c.root = root }

// ID returns the id the server assigned, or zero before Welcome.
func (c *Client) ID() protocol.ClientID { return c.id }

// Connected reports whether the handshake has completed.
func (c *Client) Connected() bool { return c.connected }

// Local returns the local entity mapped to a server entity.
func (c *Client) Local(server ecs.Entity) (ecs.Entity, bool) {
	e, ok := c.entities[server]
	return e, ok
}

// Welcome completes the handshake.
func (c *Client) Welcome(msg *protocol.Welcome) {
	c.id = msg.ClientID
	c.connected = true
	c.announced = ecs.Invalid
	log.Info().Uint64("client", uint64(msg.ClientID)).Msg("🔗 connected to server")
}

// Disconnected drops every entity received from the server except the local
// vessel, which is kept so it can be announced again on reconnect.
func (c *Client) Disconnected() {
	if !c.connected {
		return
	}
	c.connected = false
	local, _ := input.Local(c.world)
	for server, e := range c.entities {
		if e != local {
			c.world.DespawnRecursive(e)
		} else {
			ecs.Remove[Replicated](c.world, e)
		}
		delete(c.entities, server)
	}
	c.announced = ecs.Invalid
	c.controlDue = false
	c.out = nil
	log.Info().Uint64("client", uint64(c.id)).Msg("🔌 disconnected from server")
}

// Handle applies one server message. Unexpected message types are ignored.
func (c *Client) Handle(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Welcome:
		c.Welcome(m)
	case *protocol.BroadcastVessel:
		if c.assets.Insert(m.VesselID, m.Definition) {
			log.Debug().Stringer("vessel", m.VesselID).Msg("received vessel definition")
		}
	case *protocol.ReplicationFrame:
		c.applyFrame(m)
	default:
		log.Warn().Stringer("type", msg.Type()).Msg("⚠️ unexpected message from server")
	}
}

func (c *Client) applyFrame(f *protocol.ReplicationFrame) {
	for _, sp := range f.Spawns {
		if e, ok := c.entities[sp.ServerEntity]; ok && c.world.Alive(e) {
			writeState(c.world, e, sp.State)
			continue
		}
		e := c.spawnLocal(sp)
		c.entities[sp.ServerEntity] = e
		setupPlaceholder(c.world, e)
		writeState(c.world, e, sp.State)
	}

	for _, up := range f.Updates {
		e, ok := c.entities[up.ServerEntity]
		if !ok || !c.world.Alive(e) {
			continue
		}
		writeState(c.world, e, up.State)
	}

	for _, server := range f.Despawns {
		e, ok := c.entities[server]
		if !ok {
			continue
		}
		delete(c.entities, server)
		c.world.DespawnRecursive(e)
	}
}

// spawnLocal maps a server entity onto the announced placeholder when the
// server says so, otherwise creates a fresh entity that the spawn pipeline
// resolves once the definition is known.
func (c *Client) spawnLocal(sp protocol.EntitySpawn) ecs.Entity {
	if sp.ClientEntity != ecs.Invalid && c.world.Alive(sp.ClientEntity) {
		ecs.Insert(c.world, sp.ClientEntity, Replicated{})
		log.Debug().Uint64("server_entity", uint64(sp.ServerEntity)).Uint64("entity", uint64(sp.ClientEntity)).
			Msg("mapped server entity onto placeholder")
		return sp.ClientEntity
	}
	e := c.world.Spawn()
	if !sp.VesselID.IsZero() {
		ecs.Insert(c.world, e, sp.VesselID)
	}
	ecs.Insert(c.world, e, Replicated{})
	if c.root != ecs.Invalid && c.world.Alive(c.root) {
		c.world.SetParent(e, c.root)
	}
	return e
}

// Announce queues an AnnounceVessel for the locally controlled vessel if it
// has not been announced on this connection yet. It reports whether a
// message was queued.
func (c *Client) Announce() bool {
	if !c.connected {
		return false
	}
	e, ok := input.Local(c.world)
	if !ok || e == c.announced {
		return false
	}
	idp, ok := ecs.Get[vessel.ID](c.world, e)
	if !ok {
		return false
	}
	def, ok := c.assets.Get(*idp)
	if !ok {
		log.Warn().Stringer("vessel", *idp).Msg("⚠️ local vessel has no definition, not announcing")
		return false
	}
	c.out = append(c.out, &protocol.AnnounceVessel{VesselID: *idp, Definition: def, ClientEntity: e})
	c.announced = e
	c.controlDue = true
	log.Info().Stringer("vessel", *idp).Uint64("entity", uint64(e)).Msg("📣 announcing vessel")
	return true
}

// SendControl queues the local vessel's Control if it changed this tick, or
// unconditionally on the first call after an announce: the server spawns the
// announced vessel with a zero control, and a key held since before the
// connection never registers as a change.
func (c *Client) SendControl() bool {
	if !c.connected {
		return false
	}
	e, ok := input.Local(c.world)
	if !ok {
		return false
	}
	ctrl, ok := ecs.Get[vessel.Control](c.world, e)
	if !ok || (!c.controlDue && !ecs.Changed[vessel.Control](c.world, e)) {
		return false
	}
	c.controlDue = false
	c.out = append(c.out, &protocol.Control{Axis: ctrl.Axis})
	return true
}

// Flush returns and clears the outgoing queue.
func (c *Client) Flush() []protocol.Message {
	out := c.out
	c.out = nil
	return out
}
