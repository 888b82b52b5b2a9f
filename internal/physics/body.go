package physics

import "github.com/go-gl/mathgl/mgl32"

// BodyKind selects how the integrator treats a body.
type BodyKind uint8

const (
	Static BodyKind = iota
	Dynamic
)

// RigidBody marks an entity as simulated.
type RigidBody struct {
	Kind BodyKind
}

// Collider holds the body's collision shape.
type Collider struct {
	Shape Shape
}

// Friction is the engine's own contact friction coefficient.
type Friction struct {
	Coefficient float32
}

// Position is the body's world-space translation.
type Position struct {
	Value mgl32.Vec3
}

// Rotation is the body's world-space orientation.
type Rotation struct {
	Value mgl32.Quat
}

// LinearVelocity in world units per second.
type LinearVelocity struct {
	Value mgl32.Vec3
}

// AngularVelocity as a world-space axis scaled by radians per second.
type AngularVelocity struct {
	Value mgl32.Vec3
}

// ExternalForce accumulates forces for the coming step. It is not cleared by
// the integrator.
type ExternalForce struct {
	Force mgl32.Vec3
}

// Apply adds f to the accumulator.
func (f *ExternalForce) Apply(v mgl32.Vec3) {
	f.Force = f.Force.Add(v)
}

// Clear resets the accumulator.
func (f *ExternalForce) Clear() {
	f.Force = mgl32.Vec3{}
}

// ExternalTorque accumulates torques for the coming step.
type ExternalTorque struct {
	Torque mgl32.Vec3
}

// Apply adds t to the accumulator.
func (t *ExternalTorque) Apply(v mgl32.Vec3) {
	t.Torque = t.Torque.Add(v)
}

// Clear resets the accumulator.
func (t *ExternalTorque) Clear() {
	t.Torque = mgl32.Vec3{}
}
