package game

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/input"
	"vessel-racer/internal/physics"
	"vessel-racer/internal/replication"
	"vessel-racer/internal/vessel"
)

// MaxSnapshotVessels caps the vessels copied into one snapshot.
const MaxSnapshotVessels = 256

// VesselSnapshot is an immutable copy of one vessel for the HTTP surface
// and the debug view. Value types only.
type VesselSnapshot struct {
	Entity     uint64     `json:"entity"`
	VesselID   string     `json:"vesselId"`
	Owner      uint64     `json:"owner,omitempty"`
	Local      bool       `json:"local"`
	Replicated bool       `json:"replicated"`
	Spawned    bool       `json:"spawned"`
	Abandoned  bool       `json:"abandoned,omitempty"`
	Parts      int        `json:"parts"`
	Position   [3]float32 `json:"position"`
	Heading    float32    `json:"heading"` // radians around Y, 0 = +X
	Speed      float32    `json:"speed"`
	Control    [2]float32 `json:"control"`
	Force      [3]float32 `json:"force"`
}

// ClientSnapshot is one connected client as the server sees it.
type ClientSnapshot struct {
	ID     uint64 `json:"id"`
	Entity uint64 `json:"entity,omitempty"`
	Owns   bool   `json:"owns"`
}

// Snapshot is a complete immutable engine state. The engine publishes a
// fresh one after every tick; readers never touch the world.
type Snapshot struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Tick      uint64    `json:"tick"`
	Mode      string    `json:"mode"`
	State     string    `json:"state"`

	Vessels []VesselSnapshot `json:"vessels"`
	Clients []ClientSnapshot `json:"clients"`

	Assets  int  `json:"assets"`
	Pending int  `json:"pending"`
	Running bool `json:"running"`

	// client mode only
	ClientID  uint64 `json:"clientId,omitempty"`
	Connected bool   `json:"connected"`

	Events EventLogStats `json:"events"`
}

// heading returns the yaw of the vessel's forward (+X) axis.
func heading(q mgl32.Quat) float32 {
	f := q.Rotate(mgl32.Vec3{1, 0, 0})
	return float32(math.Atan2(float64(-f.Z()), float64(f.X())))
}

// produceSnapshot copies the world into a new Snapshot. Called at the end of
// each tick from the tick goroutine.
func (e *Engine) produceSnapshot() {
	w := e.world
	snap := &Snapshot{
		Sequence:  e.snapSeq.Add(1),
		Timestamp: time.Now(),
		Tick:      w.Tick(),
		Mode:      e.mode.String(),
		State:     e.state.String(),
		Assets:    e.assets.Len(),
		Pending:   e.spawner.Pending(),
		Running:   e.running.Load(),
		Events:    e.eventLog.Stats(),
	}

	local, _ := input.Local(w)
	var owners *replication.Ownership
	if e.server != nil {
		owners = e.server.Ownership()
	}

	for _, ent := range ecs.Query[vessel.ID](w) {
		if len(snap.Vessels) >= MaxSnapshotVessels {
			break
		}
		id, _ := ecs.Get[vessel.ID](w, ent)
		v := VesselSnapshot{
			Entity:     uint64(ent),
			VesselID:   id.String(),
			Local:      ent == local,
			Replicated: ecs.Has[replication.Replicated](w, ent),
			Spawned:    ecs.Has[vessel.Spawned](w, ent),
			Abandoned:  ecs.Has[vessel.Abandoned](w, ent),
		}
		if owners != nil {
			if c, ok := owners.Owner(ent); ok {
				v.Owner = uint64(c)
			}
		}
		for _, c := range w.Children(ent) {
			if ecs.Has[vessel.Visual](w, c) {
				v.Parts++
			}
		}
		if p, ok := ecs.Get[physics.Position](w, ent); ok {
			v.Position = p.Value
		}
		if r, ok := ecs.Get[physics.Rotation](w, ent); ok {
			v.Heading = heading(r.Value)
		}
		if lv, ok := ecs.Get[physics.LinearVelocity](w, ent); ok {
			v.Speed = lv.Value.Len()
		}
		if c, ok := ecs.Get[vessel.Control](w, ent); ok {
			v.Control = c.Axis
		}
		if f, ok := ecs.Get[physics.ExternalForce](w, ent); ok {
			v.Force = f.Force
		}
		snap.Vessels = append(snap.Vessels, v)
	}

	if e.server != nil {
		for _, c := range e.server.Clients() {
			cs := ClientSnapshot{ID: uint64(c)}
			if ent, ok := owners.Entity(c); ok {
				cs.Entity = uint64(ent)
				cs.Owns = true
			}
			snap.Clients = append(snap.Clients, cs)
		}
	}
	if e.client != nil {
		snap.ClientID = uint64(e.client.ID())
		snap.Connected = e.client.Connected()
	}

	e.snapshot.Store(snap)
}

// Snapshot returns the latest published state. It never returns nil.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}
