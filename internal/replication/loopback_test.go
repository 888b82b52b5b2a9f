package replication

import (
	"sort"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/input"
	"vessel-racer/internal/physics"
	"vessel-racer/internal/protocol"
	"vessel-racer/internal/vessel"
)

// peer is one client process: its own world, asset table and pipeline.
type peer struct {
	id       protocol.ClientID
	world    *ecs.World
	assets   *vessel.AssetTable
	spawner  *vessel.Spawner
	client   *Client
	keys     input.KeyState
	inbox    []protocol.Message
	received []protocol.Message
	pending  []protocol.Message
}

// loopback wires a server and its peers in memory. Every message goes
// through the real codec.
type loopback struct {
	t       *testing.T
	codec   *protocol.Codec
	world   *ecs.World
	assets  *vessel.AssetTable
	spawner *vessel.Spawner
	server  *Server
	peers   map[protocol.ClientID]*peer
	nextID  protocol.ClientID
	drops   []string
}

func newLoopback(t *testing.T) *loopback {
	t.Helper()
	w := ecs.NewWorld()
	assets := vessel.NewAssetTable()
	lb := &loopback{
		t:       t,
		codec:   protocol.NewCodec(512),
		world:   w,
		assets:  assets,
		spawner: vessel.NewSpawner(w, assets, vessel.DefaultCatalogue(), 0),
		server:  NewServer(w, assets),
		peers:   make(map[protocol.ClientID]*peer),
	}
	lb.server.SetHooks(ServerHooks{
		OnDrop: func(_ protocol.ClientID, reason string) { lb.drops = append(lb.drops, reason) },
	})
	return lb
}

func (lb *loopback) connect() *peer {
	lb.nextID++
	w := ecs.NewWorld()
	assets := vessel.NewAssetTable()
	p := &peer{
		id:      lb.nextID,
		world:   w,
		assets:  assets,
		spawner: vessel.NewSpawner(w, assets, vessel.DefaultCatalogue(), 0),
		client:  NewClient(w, assets),
	}
	lb.peers[p.id] = p
	lb.server.Connect(p.id)
	p.client.Welcome(&protocol.Welcome{ClientID: p.id})
	return p
}

func (lb *loopback) disconnect(p *peer) {
	lb.server.Disconnect(p.id)
	p.client.Disconnected()
	delete(lb.peers, p.id)
}

func (lb *loopback) wire(msg protocol.Message) protocol.Message {
	raw, err := lb.codec.Encode(msg)
	require.NoError(lb.t, err)
	out, err := lb.codec.Decode(raw)
	require.NoError(lb.t, err)
	return out
}

func (lb *loopback) ids() []protocol.ClientID {
	out := make([]protocol.ClientID, 0, len(lb.peers))
	for id := range lb.peers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// tick runs one server tick followed by one tick on every peer.
func (lb *loopback) tick() {
	lb.world.Advance()
	for _, id := range lb.ids() {
		p := lb.peers[id]
		for _, msg := range p.pending {
			switch m := lb.wire(msg).(type) {
			case *protocol.AnnounceVessel:
				_, err := lb.server.Announce(id, m)
				require.NoError(lb.t, err)
			case *protocol.Control:
				lb.server.QueueControl(id, m)
			}
		}
		p.pending = nil
	}
	require.NoError(lb.t, lb.spawner.Run())
	lb.server.ApplyControls()
	vessel.Move(lb.world)
	lb.server.QueueFrames(lb.world.Tick())

	for _, o := range lb.server.Flush() {
		for _, id := range lb.server.Recipients(o) {
			p := lb.peers[id]
			p.inbox = append(p.inbox, lb.wire(o.Msg))
		}
	}

	for _, id := range lb.ids() {
		p := lb.peers[id]
		p.world.Advance()
		for _, msg := range p.inbox {
			p.client.Handle(msg)
		}
		p.received = append(p.received, p.inbox...)
		p.inbox = nil
		require.NoError(lb.t, p.spawner.Run())
		input.Apply(p.world, p.keys)
		p.client.Announce()
		p.client.SendControl()
		p.pending = append(p.pending, p.client.Flush()...)
	}
}

func (lb *loopback) run(n int) {
	for i := 0; i < n; i++ {
		lb.tick()
	}
}

// buildLocal gives p a locally controlled vessel, the way entering play does.
func (p *peer) buildLocal(def vessel.Definition) (vessel.ID, ecs.Entity) {
	id := vessel.NewID()
	p.assets.Insert(id, def)
	e := p.world.Spawn()
	ecs.Insert(p.world, e, input.LocallyControlled{})
	p.spawner.Request(vessel.SpawnRequest{ID: id, Definition: def, Entity: e})
	return id, e
}

func scenarioDefinition() vessel.Definition {
	return vessel.Definition{
		Parts: []vessel.Part{
			{ElementID: "block", Transform: physics.FromTranslation(mgl32.Vec3{0, 0, 0})},
			{ElementID: "block", Transform: physics.FromTranslation(mgl32.Vec3{1, 0, 0})},
		},
		Properties: vessel.Properties{
			ControlForwardsForce:     8,
			ControlTorque:            6,
			SideFriction:             2.2,
			RotaryFrictionHorizontal: 3,
			RotaryFrictionVertical:   6,
		},
	}
}

func entitiesWith(w *ecs.World, id vessel.ID) []ecs.Entity {
	var out []ecs.Entity
	ecs.Each(w, func(e ecs.Entity, got *vessel.ID) {
		if *got == id {
			out = append(out, e)
		}
	})
	return out
}

func broadcasts(msgs []protocol.Message) []*protocol.BroadcastVessel {
	var out []*protocol.BroadcastVessel
	for _, m := range msgs {
		if b, ok := m.(*protocol.BroadcastVessel); ok {
			out = append(out, b)
		}
	}
	return out
}
