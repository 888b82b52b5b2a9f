package vessel

import (
	"github.com/go-gl/mathgl/mgl32"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/physics"
)

// Control is the current steering input of one vessel. Axis X is
// forward/back and Axis Y is right/left, each in [-1, 1].
//
// Exactly one driver writes it per tick: the local input reader on the
// locally controlled entity, or the replication layer on the server.
type Control struct {
	Axis mgl32.Vec2
}

// Forward returns the throttle component.
func (c Control) Forward() float32 { return c.Axis.X() }

// Turn returns the steering component, positive to the right.
func (c Control) Turn() float32 { return c.Axis.Y() }

// Forces translates control and the current motion state into this tick's
// force and torque. Vessel-local axes: X forward, Y up, Z right.
func Forces(c Control, p Properties, rot mgl32.Quat, vel, angVel mgl32.Vec3) (force, torque mgl32.Vec3) {
	// sideways slip
	localVel := rot.Inverse().Rotate(vel)
	side := mgl32.Vec3{0, 0, -localVel.Z() * p.SideFriction}
	force = force.Add(rot.Rotate(side))

	// spin around Y is damped separately from pitch and roll
	hor := mgl32.Vec3{0, angVel.Y(), 0}
	ver := mgl32.Vec3{angVel.X(), 0, angVel.Z()}
	torque = torque.Sub(hor.Mul(p.RotaryFrictionHorizontal))
	torque = torque.Sub(ver.Mul(p.RotaryFrictionVertical))

	// throttle stays in the horizontal plane so vessels cannot fly
	forward := rot.Rotate(mgl32.Vec3{1, 0, 0})
	forward[1] = 0
	if l := forward.Len(); l > 1e-6 {
		force = force.Add(forward.Mul(p.ControlForwardsForce * c.Forward() / l))
	}

	torque = torque.Add(mgl32.Vec3{0, -c.Turn() * p.ControlTorque, 0})
	return force, torque
}

// Move recomputes the force accumulators of every controllable vessel. The
// accumulators are cleared first so nothing carries over between ticks.
func Move(w *ecs.World) {
	ecs.Each(w, func(e ecs.Entity, c *Control) {
		props, ok := ecs.Get[Properties](w, e)
		if !ok {
			return
		}
		rot, ok1 := ecs.Get[physics.Rotation](w, e)
		vel, ok2 := ecs.Get[physics.LinearVelocity](w, e)
		ang, ok3 := ecs.Get[physics.AngularVelocity](w, e)
		force, ok4 := ecs.Get[physics.ExternalForce](w, e)
		torque, ok5 := ecs.Get[physics.ExternalTorque](w, e)
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
			return
		}
		f, t := Forces(*c, *props, rot.Value, vel.Value, ang.Value)
		force.Clear()
		force.Apply(f)
		torque.Clear()
		torque.Apply(t)
	})
}
