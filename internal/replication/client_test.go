package replication

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/input"
	"vessel-racer/internal/physics"
	"vessel-racer/internal/protocol"
	"vessel-racer/internal/vessel"
)

func newTestClient() (*ecs.World, *vessel.AssetTable, *vessel.Spawner, *Client) {
	w := ecs.NewWorld()
	assets := vessel.NewAssetTable()
	return w, assets, vessel.NewSpawner(w, assets, vessel.DefaultCatalogue(), 0), NewClient(w, assets)
}

func TestEntityBeforeDefinitionResolvesLater(t *testing.T) {
	w, _, spawner, c := newTestClient()
	c.Welcome(&protocol.Welcome{ClientID: 1})
	id := vessel.NewID()

	c.Handle(&protocol.ReplicationFrame{Spawns: []protocol.EntitySpawn{{
		ServerEntity: 40,
		VesselID:     id,
		State:        protocol.BodyState{Position: mgl32.Vec3{3, 1, 2}, Rotation: mgl32.QuatIdent()},
	}}})
	e, ok := c.Local(40)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		w.Advance()
		require.NoError(t, spawner.Run())
	}
	assert.False(t, ecs.Has[vessel.Spawned](w, e), "no definition yet")
	pos, ok := ecs.Get[physics.Position](w, e)
	require.True(t, ok, "placeholder gets a transform right away")
	assert.Equal(t, mgl32.Vec3{3, 1, 2}, pos.Value)

	c.Handle(&protocol.BroadcastVessel{VesselID: id, Definition: scenarioDefinition()})
	w.Advance()
	require.NoError(t, spawner.Run())
	assert.True(t, ecs.Has[vessel.Spawned](w, e))
	assert.Len(t, w.Children(e), 2)

	pos, _ = ecs.Get[physics.Position](w, e)
	assert.Equal(t, mgl32.Vec3{3, 1, 2}, pos.Value, "spawning keeps the replicated position")
}

func TestFrameUpdatesAndDespawns(t *testing.T) {
	w, _, _, c := newTestClient()
	c.Welcome(&protocol.Welcome{ClientID: 1})
	c.Handle(&protocol.ReplicationFrame{Spawns: []protocol.EntitySpawn{{ServerEntity: 5, VesselID: vessel.NewID()}}})
	e, _ := c.Local(5)

	c.Handle(&protocol.ReplicationFrame{Updates: []protocol.EntityUpdate{
		{ServerEntity: 5, State: protocol.BodyState{LinearVelocity: mgl32.Vec3{0, 0, 4}}},
		{ServerEntity: 99}, // unknown, ignored
	}})
	vel, ok := ecs.Get[physics.LinearVelocity](w, e)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{0, 0, 4}, vel.Value)
	rot, _ := ecs.Get[physics.Rotation](w, e)
	assert.Equal(t, mgl32.QuatIdent(), rot.Value, "zero rotation on the wire becomes identity")

	child := w.Spawn()
	w.SetParent(child, e)
	c.Handle(&protocol.ReplicationFrame{Despawns: []ecs.Entity{5, 6}})
	assert.False(t, w.Alive(e))
	assert.False(t, w.Alive(child))
	_, ok = c.Local(5)
	assert.False(t, ok)
}

func TestDuplicateSpawnIsAnUpdate(t *testing.T) {
	w, _, _, c := newTestClient()
	c.Welcome(&protocol.Welcome{ClientID: 1})
	sp := protocol.EntitySpawn{ServerEntity: 5, VesselID: vessel.NewID()}
	c.Handle(&protocol.ReplicationFrame{Spawns: []protocol.EntitySpawn{sp}})
	sp.State.Position = mgl32.Vec3{1, 0, 0}
	c.Handle(&protocol.ReplicationFrame{Spawns: []protocol.EntitySpawn{sp}})
	assert.Equal(t, 1, w.Len())
}

func TestAnnounceOncePerConnection(t *testing.T) {
	w, assets, spawner, c := newTestClient()
	id := vessel.NewID()
	assets.Insert(id, scenarioDefinition())
	e := w.Spawn()
	ecs.Insert(w, e, input.LocallyControlled{})
	spawner.Request(vessel.SpawnRequest{ID: id, Definition: scenarioDefinition(), Entity: e})
	require.NoError(t, spawner.Run())

	assert.False(t, c.Announce(), "not connected")
	c.Welcome(&protocol.Welcome{ClientID: 2})
	assert.True(t, c.Announce())
	assert.False(t, c.Announce())

	out := c.Flush()
	require.Len(t, out, 1)
	ann := out[0].(*protocol.AnnounceVessel)
	assert.Equal(t, id, ann.VesselID)
	assert.Equal(t, e, ann.ClientEntity)
	assert.Equal(t, scenarioDefinition(), ann.Definition)

	// a reconnect announces again
	c.Disconnected()
	c.Welcome(&protocol.Welcome{ClientID: 3})
	assert.True(t, c.Announce())
}

func TestDisconnectedKeepsLocalVessel(t *testing.T) {
	w, _, _, c := newTestClient()
	local := w.Spawn()
	ecs.Insert(w, local, input.LocallyControlled{})
	c.Welcome(&protocol.Welcome{ClientID: 1})
	c.Handle(&protocol.ReplicationFrame{Spawns: []protocol.EntitySpawn{
		{ServerEntity: 10, ClientEntity: local},
		{ServerEntity: 11, VesselID: vessel.NewID()},
	}})
	remote, _ := c.Local(11)
	assert.True(t, ecs.Has[Replicated](w, local))

	c.Disconnected()
	assert.False(t, c.Connected())
	assert.True(t, w.Alive(local))
	assert.False(t, ecs.Has[Replicated](w, local))
	assert.False(t, w.Alive(remote))
}
