package replication

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/protocol"
	"vessel-racer/internal/vessel"
)

// Mode says who an outgoing server message goes to.
type Mode int

const (
	Broadcast Mode = iota
	BroadcastExcept
	Direct
)

// Outgoing is a queued server message. Client is the recipient for Direct
// and the excluded client for BroadcastExcept.
type Outgoing struct {
	Mode   Mode
	Client protocol.ClientID
	Msg    protocol.Message
}

// ServerHooks observe the server for metrics and the event log.
type ServerHooks struct {
	OnConnect    func(client protocol.ClientID)
	OnDisconnect func(client protocol.ClientID, e ecs.Entity, owned bool)
	OnAnnounce   func(client protocol.ClientID, e ecs.Entity, id vessel.ID, def vessel.Definition)
	OnCatchUp    func(client protocol.ClientID, sent, skipped int)
	OnDrop       func(client protocol.ClientID, reason string)
}

type clientEntity struct {
	client protocol.ClientID
	entity ecs.Entity
}

// Server is the authoritative side of the handshake. All methods run on the
// simulation goroutine.
type Server struct {
	world    *ecs.World
	assets   *vessel.AssetTable
	owners   *Ownership
	root     ecs.Entity
	hooks    ServerHooks
	clients  map[protocol.ClientID]map[ecs.Entity]struct{} // replication known set
	mappings map[ecs.Entity]clientEntity                  // pending client-entity remaps
	controls map[protocol.ClientID]mgl32.Vec2
	order    []protocol.ClientID
	out      []Outgoing
}

// NewServer creates a server over w and assets.
func NewServer(w *ecs.World, assets *vessel.AssetTable) *Server {
	return &Server{
		world:    w,
		assets:   assets,
		owners:   NewOwnership(),
		clients:  make(map[protocol.ClientID]map[ecs.Entity]struct{}),
		mappings: make(map[ecs.Entity]clientEntity),
		controls: make(map[protocol.ClientID]mgl32.Vec2),
	}
}

// SetRoot parents every server-spawned vessel under root.
func (s *Server) SetRoot(root ecs.Entity) { s.root = root }

// SetHooks replaces the observer hooks.
func (s *Server) SetHooks(h ServerHooks) { s.hooks = h }

// Ownership exposes the ownership map read-only by convention.
func (s *Server) Ownership() *Ownership { return s.owners }

// Connected reports whether client is connected.
func (s *Server) Connected(client protocol.ClientID) bool {
	_, ok := s.clients[client]
	return ok
}

// Clients returns the connected clients in ascending order.
func (s *Server) Clients() []protocol.ClientID {
	out := make([]protocol.ClientID, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Connect registers a new client and queues the catch-up: one direct
// BroadcastVessel per active replicated vessel.
func (s *Server) Connect(client protocol.ClientID) {
	if _, ok := s.clients[client]; ok {
		return
	}
	s.clients[client] = make(map[ecs.Entity]struct{})
	log.Info().Uint64("client", uint64(client)).Msg("📱 client connected")
	if s.hooks.OnConnect != nil {
		s.hooks.OnConnect(client)
	}
	s.catchUp(client)
}

func (s *Server) catchUp(client protocol.ClientID) {
	sent, skipped := 0, 0
	shared := make(map[vessel.ID]struct{})
	for _, e := range ecs.Query[Replicated](s.world) {
		idp, ok := ecs.Get[vessel.ID](s.world, e)
		if !ok {
			continue
		}
		id := *idp
		if _, dup := shared[id]; dup {
			continue
		}
		def, ok := s.assets.Get(id)
		if !ok {
			skipped++
			log.Warn().Uint64("client", uint64(client)).Stringer("vessel", id).Uint64("entity", uint64(e)).
				Msg("⚠️ no definition to share with new client, skipping")
			continue
		}
		shared[id] = struct{}{}
		s.queue(Outgoing{Mode: Direct, Client: client, Msg: &protocol.BroadcastVessel{VesselID: id, Definition: def}})
		sent++
	}
	log.Debug().Uint64("client", uint64(client)).Int("sent", sent).Int("skipped", skipped).Msg("catch-up queued")
	if s.hooks.OnCatchUp != nil {
		s.hooks.OnCatchUp(client, sent, skipped)
	}
}

// Disconnect removes client's ownership entry and despawns its entity with
// all children. Calling it for an unknown client is a no-op.
func (s *Server) Disconnect(client protocol.ClientID) {
	_, connected := s.clients[client]
	delete(s.clients, client)
	delete(s.controls, client)
	for e, m := range s.mappings {
		if m.client == client {
			delete(s.mappings, e)
		}
	}

	e, owned := s.owners.Remove(client)
	if owned {
		n := s.world.DespawnRecursive(e)
		log.Info().Uint64("client", uint64(client)).Uint64("entity", uint64(e)).Int("removed", n).Msg("👋 client disconnected, vessel removed")
	} else if connected {
		log.Info().Uint64("client", uint64(client)).Msg("👋 client disconnected")
	}
	if (connected || owned) && s.hooks.OnDisconnect != nil {
		s.hooks.OnDisconnect(client, e, owned)
	}
}

// Announce handles a client's vessel announcement: store the definition,
// share it with everyone else, spawn the authoritative entity, remember
// the placeholder remap and record ownership. A client announcing again
// replaces its previous vessel.
func (s *Server) Announce(client protocol.ClientID, msg *protocol.AnnounceVessel) (ecs.Entity, error) {
	if _, ok := s.clients[client]; !ok {
		return ecs.Invalid, fmt.Errorf("%w: %d", ErrUnknownClient, client)
	}
	if msg.VesselID.IsZero() {
		return ecs.Invalid, fmt.Errorf("%w: nil vessel id", ErrBadAnnounce)
	}
	if err := msg.Definition.Properties.Validate(); err != nil {
		return ecs.Invalid, fmt.Errorf("%w: %w", ErrBadAnnounce, err)
	}

	if s.assets.Insert(msg.VesselID, msg.Definition) {
		log.Info().Uint64("client", uint64(client)).Stringer("vessel", msg.VesselID).Int("parts", len(msg.Definition.Parts)).
			Msg("🚤 new vessel definition")
	}
	def, _ := s.assets.Get(msg.VesselID)
	s.queue(Outgoing{Mode: BroadcastExcept, Client: client, Msg: &protocol.BroadcastVessel{VesselID: msg.VesselID, Definition: def}})

	if old, ok := s.owners.Entity(client); ok {
		delete(s.mappings, old)
		s.world.DespawnRecursive(old)
		log.Info().Uint64("client", uint64(client)).Uint64("entity", uint64(old)).Msg("🔁 client replaced its vessel")
	}

	e := s.world.Spawn()
	ecs.Insert(s.world, e, msg.VesselID)
	ecs.Insert(s.world, e, Replicated{})
	if s.root != ecs.Invalid && s.world.Alive(s.root) {
		s.world.SetParent(e, s.root)
	}
	if msg.ClientEntity != ecs.Invalid {
		s.mappings[e] = clientEntity{client: client, entity: msg.ClientEntity}
	}
	if _, err := s.owners.Set(client, e); err != nil {
		// fresh entity, cannot be owned already
		s.world.DespawnRecursive(e)
		return ecs.Invalid, err
	}

	if s.hooks.OnAnnounce != nil {
		s.hooks.OnAnnounce(client, e, msg.VesselID, def)
	}
	return e, nil
}

// Share broadcasts a definition the server built itself (a listen server's
// own vessel) to every connected client. Clients that connect later get it
// through the catch-up.
func (s *Server) Share(id vessel.ID) bool {
	def, ok := s.assets.Get(id)
	if !ok {
		return false
	}
	s.queue(Outgoing{Mode: Broadcast, Msg: &protocol.BroadcastVessel{VesselID: id, Definition: def}})
	return true
}

// QueueControl stores a client's latest control for ApplyControls. Later
// messages in the same tick supersede earlier ones.
func (s *Server) QueueControl(client protocol.ClientID, msg *protocol.Control) {
	if _, ok := s.controls[client]; !ok {
		s.order = append(s.order, client)
	}
	s.controls[client] = msg.Axis
}

// ApplyControls writes every queued control into the owning client's entity.
// Controls that cannot be applied are dropped and reported.
func (s *Server) ApplyControls() {
	for _, client := range s.order {
		axis, ok := s.controls[client]
		if !ok {
			continue
		}
		if err := s.ApplyControl(client, axis); err != nil {
			log.Warn().Err(err).Uint64("client", uint64(client)).Msg("⚠️ dropped control")
			if s.hooks.OnDrop != nil {
				s.hooks.OnDrop(client, DropReason(err))
			}
		}
	}
	s.order = s.order[:0]
	clear(s.controls)
}

// ApplyControl overwrites the Control of client's entity.
func (s *Server) ApplyControl(client protocol.ClientID, axis mgl32.Vec2) error {
	for _, v := range axis {
		if math.IsNaN(float64(v)) || v < -1 || v > 1 {
			return fmt.Errorf("%w: %v", ErrBadControl, axis)
		}
	}
	e, ok := s.owners.Entity(client)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotOwner, client)
	}
	if !s.world.Alive(e) {
		return fmt.Errorf("%w: %d", ErrEntityGone, e)
	}
	c, ok := ecs.Get[vessel.Control](s.world, e)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotReady, e)
	}
	c.Axis = axis
	ecs.Touch[vessel.Control](s.world, e)
	return nil
}

// QueueFrames builds this tick's replication frame for every connected
// client. Empty frames are not sent.
func (s *Server) QueueFrames(tick uint64) {
	replicated := ecs.Query[Replicated](s.world)
	live := make(map[ecs.Entity]struct{}, len(replicated))
	for _, e := range replicated {
		live[e] = struct{}{}
	}

	for _, client := range s.Clients() {
		known := s.clients[client]
		frame := &protocol.ReplicationFrame{Tick: tick}

		for _, e := range replicated {
			state := readState(s.world, e)
			if _, seen := known[e]; seen {
				frame.Updates = append(frame.Updates, protocol.EntityUpdate{ServerEntity: e, State: state})
				continue
			}
			spawn := protocol.EntitySpawn{ServerEntity: e, State: state}
			if id, ok := ecs.Get[vessel.ID](s.world, e); ok {
				spawn.VesselID = *id
			}
			if m, ok := s.mappings[e]; ok && m.client == client {
				spawn.ClientEntity = m.entity
				delete(s.mappings, e)
			}
			frame.Spawns = append(frame.Spawns, spawn)
			known[e] = struct{}{}
		}

		for e := range known {
			if _, ok := live[e]; !ok {
				frame.Despawns = append(frame.Despawns, e)
				delete(known, e)
			}
		}
		sort.Slice(frame.Despawns, func(i, j int) bool { return frame.Despawns[i] < frame.Despawns[j] })

		if !frame.Empty() {
			s.queue(Outgoing{Mode: Direct, Client: client, Msg: frame})
		}
	}
}

func (s *Server) queue(o Outgoing) {
	s.out = append(s.out, o)
}

// Flush returns and clears the outgoing queue.
func (s *Server) Flush() []Outgoing {
	out := s.out
	s.out = nil
	return out
}

// Recipients expands o into the connected clients it should reach.
func (s *Server) Recipients(o Outgoing) []protocol.ClientID {
	switch o.Mode {
	case Direct:
		if _, ok := s.clients[o.Client]; ok {
			return []protocol.ClientID{o.Client}
		}
		return nil
	case BroadcastExcept:
		all := s.Clients()
		out := all[:0]
		for _, c := range all {
			if c != o.Client {
				out = append(out, c)
			}
		}
		return out
	default:
		return s.Clients()
	}
}
