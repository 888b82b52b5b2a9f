package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vessel-racer/internal/ecs"
)

func TestCuboidVolumeAndCorners(t *testing.T) {
	c := NewCuboid(1, 2, 3)
	assert.InDelta(t, 6, c.Volume(), 1e-6)
	corners := c.Corners()
	require.Len(t, corners, 8)
	assert.Contains(t, corners, mgl32.Vec3{-0.5, -1, -1.5})
	assert.Contains(t, corners, mgl32.Vec3{0.5, 1, 1.5})
}

func TestCompoundOffsetsCorners(t *testing.T) {
	c := NewCompound([]CompoundPart{
		{Offset: mgl32.Vec3{0, 0, 0}, Rotation: mgl32.QuatIdent(), Shape: NewCuboid(1, 1, 1)},
		{Offset: mgl32.Vec3{1, 0, 0}, Rotation: mgl32.QuatIdent(), Shape: NewCuboid(1, 1, 1)},
	})
	assert.InDelta(t, 2, c.Volume(), 1e-6)
	assert.Len(t, c.Corners(), 16)
	assert.Contains(t, c.Corners(), mgl32.Vec3{1.5, 0.5, 0.5})
}

func TestEmptyCompoundIsLegal(t *testing.T) {
	c := NewCompound(nil)
	assert.Zero(t, c.Volume())
	assert.Empty(t, c.Corners())
}

func TestStepAppliesForceWithoutGravity(t *testing.T) {
	w := ecs.NewWorld()
	e := w.Spawn()
	AttachDynamic(w, e, NewCuboid(1, 1, 1), 0)
	f, _ := ecs.Get[ExternalForce](w, e)
	f.Apply(mgl32.Vec3{2, 0, 0})

	in := NewIntegrator(Config{Density: 1})
	in.Step(w, 0.5)

	vel, _ := ecs.Get[LinearVelocity](w, e)
	pos, _ := ecs.Get[Position](w, e)
	assert.InDelta(t, 1.0, vel.Value.X(), 1e-5)
	assert.InDelta(t, 0.5, pos.Value.X(), 1e-5)
}

func TestGroundStopsFalling(t *testing.T) {
	w := ecs.NewWorld()
	e := w.Spawn()
	ecs.Insert(w, e, Position{Value: mgl32.Vec3{0, 2, 0}})
	AttachDynamic(w, e, NewCuboid(1, 1, 1), 0)

	in := NewIntegrator(DefaultConfig())
	for i := 0; i < 240; i++ {
		in.Step(w, 1.0/60)
	}

	pos, _ := ecs.Get[Position](w, e)
	vel, _ := ecs.Get[LinearVelocity](w, e)
	assert.InDelta(t, 0.5, pos.Value.Y(), 1e-3, "box should rest on the ground")
	assert.GreaterOrEqual(t, vel.Value.Y(), float32(-0.3))
}

func TestStaticBodiesDoNotMove(t *testing.T) {
	w := ecs.NewWorld()
	e := w.Spawn()
	ecs.Insert(w, e, RigidBody{Kind: Static})
	ecs.Insert(w, e, Collider{Shape: NewCuboid(1, 1, 1)})
	ecs.Insert(w, e, Position{Value: mgl32.Vec3{0, 5, 0}})

	NewIntegrator(DefaultConfig()).Step(w, 1)

	pos, _ := ecs.Get[Position](w, e)
	assert.Equal(t, mgl32.Vec3{0, 5, 0}, pos.Value)
}

func TestTorqueSpinsBody(t *testing.T) {
	w := ecs.NewWorld()
	e := w.Spawn()
	AttachDynamic(w, e, NewCuboid(1, 1, 1), 0)
	tq, _ := ecs.Get[ExternalTorque](w, e)
	tq.Apply(mgl32.Vec3{0, 1, 0})

	NewIntegrator(Config{Density: 1}).Step(w, 0.1)

	ang, _ := ecs.Get[AngularVelocity](w, e)
	rot, _ := ecs.Get[Rotation](w, e)
	assert.Greater(t, ang.Value.Y(), float32(0))
	assert.InDelta(t, 1.0, rot.Value.Len(), 1e-5, "rotation stays normalized")
}
