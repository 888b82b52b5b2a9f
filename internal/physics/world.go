package physics

import (
	"github.com/go-gl/mathgl/mgl32"

	"vessel-racer/internal/ecs"
)

// Config tunes the integrator.
type Config struct {
	Gravity      mgl32.Vec3
	GroundHeight float32
	Ground       bool
	Density      float32
}

// DefaultConfig returns gravity -15 on Y and a ground plane at y=0.
func DefaultConfig() Config {
	return Config{
		Gravity:      mgl32.Vec3{0, -15, 0},
		GroundHeight: 0,
		Ground:       true,
		Density:      1,
	}
}

// minMass keeps shapeless bodies from dividing by zero.
const minMass = 0.001

// Integrator advances every dynamic body by one fixed step.
type Integrator struct {
	cfg Config
}

// NewIntegrator creates an integrator.
func NewIntegrator(cfg Config) *Integrator {
	if cfg.Density <= 0 {
		cfg.Density = 1
	}
	return &Integrator{cfg: cfg}
}

// AttachDynamic inserts everything a dynamic body needs on e. Existing
// position and rotation are kept; velocities and accumulators are reset.
func AttachDynamic(w *ecs.World, e ecs.Entity, shape Shape, friction float32) {
	ecs.Insert(w, e, RigidBody{Kind: Dynamic})
	ecs.Insert(w, e, Collider{Shape: shape})
	ecs.Insert(w, e, Friction{Coefficient: friction})
	if !ecs.Has[Position](w, e) {
		ecs.Insert(w, e, Position{})
	}
	if !ecs.Has[Rotation](w, e) {
		ecs.Insert(w, e, Rotation{Value: mgl32.QuatIdent()})
	}
	ecs.Insert(w, e, LinearVelocity{})
	ecs.Insert(w, e, AngularVelocity{})
	ecs.Insert(w, e, ExternalForce{})
	ecs.Insert(w, e, ExternalTorque{})
}

// Step integrates all dynamic bodies over dt seconds.
func (in *Integrator) Step(w *ecs.World, dt float32) {
	ecs.Each(w, func(e ecs.Entity, rb *RigidBody) {
		if rb.Kind != Dynamic {
			return
		}
		col, ok := ecs.Get[Collider](w, e)
		if !ok {
			return
		}
		pos, ok1 := ecs.Get[Position](w, e)
		rot, ok2 := ecs.Get[Rotation](w, e)
		vel, ok3 := ecs.Get[LinearVelocity](w, e)
		ang, ok4 := ecs.Get[AngularVelocity](w, e)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return
		}

		mass := col.Shape.Volume() * in.cfg.Density
		if mass < minMass {
			mass = minMass
		}
		inertia := mass * meanCornerDistSq(col.Shape) / 4.5
		if inertia < minMass {
			inertia = minMass
		}

		accel := in.cfg.Gravity
		if f, ok := ecs.Get[ExternalForce](w, e); ok {
			accel = accel.Add(f.Force.Mul(1 / mass))
		}
		vel.Value = vel.Value.Add(accel.Mul(dt))
		if t, ok := ecs.Get[ExternalTorque](w, e); ok {
			ang.Value = ang.Value.Add(t.Torque.Mul(dt / inertia))
		}

		pos.Value = pos.Value.Add(vel.Value.Mul(dt))
		rot.Value = integrateRotation(rot.Value, ang.Value, dt)

		if in.cfg.Ground {
			in.resolveGround(col.Shape, pos, rot, vel)
		}
	})
}

// integrateRotation applies q' = q + dt/2 * (0, w) * q.
func integrateRotation(q mgl32.Quat, w mgl32.Vec3, dt float32) mgl32.Quat {
	spin := mgl32.Quat{W: 0, V: w}.Mul(q).Scale(0.5 * dt)
	out := q.Add(spin)
	if out.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return out.Normalize()
}

func (in *Integrator) resolveGround(shape Shape, pos *Position, rot *Rotation, vel *LinearVelocity) {
	corners := shape.Corners()
	if len(corners) == 0 {
		corners = []mgl32.Vec3{{}}
	}
	lowest := float32(0)
	for i, c := range corners {
		y := rot.Value.Rotate(c).Y() + pos.Value.Y()
		if i == 0 || y < lowest {
			lowest = y
		}
	}
	if lowest >= in.cfg.GroundHeight {
		return
	}
	pos.Value[1] += in.cfg.GroundHeight - lowest
	if vel.Value.Y() < 0 {
		vel.Value[1] = 0
	}
}

func meanCornerDistSq(s Shape) float32 {
	corners := s.Corners()
	if len(corners) == 0 {
		return 1
	}
	var sum float32
	for _, c := range corners {
		sum += c.Dot(c)
	}
	return sum / float32(len(corners))
}
