// Package input is the local control driver: it turns digital key state into
// the Control of the one locally controlled vessel.
package input

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/vessel"
)

// LocallyControlled tags the entity whose Control this process drives and
// whose camera follows it. At most one exists per process.
type LocallyControlled struct{}

// KeyState is a snapshot of the four driving keys.
type KeyState struct {
	Forward bool
	Back    bool
	Left    bool
	Right   bool
}

// Axis maps key state to a control vector. Each press contributes a unit on
// its axis and opposing presses cancel; X is throttle, Y is turn (right +).
func (k KeyState) Axis() mgl32.Vec2 {
	var a mgl32.Vec2
	if k.Forward {
		a[0]++
	}
	if k.Back {
		a[0]--
	}
	if k.Right {
		a[1]++
	}
	if k.Left {
		a[1]--
	}
	return a
}

// Clamp bounds both axes to [-1, 1].
func Clamp(a mgl32.Vec2) mgl32.Vec2 {
	return mgl32.Vec2{mgl32.Clamp(a[0], -1, 1), mgl32.Clamp(a[1], -1, 1)}
}

// Local returns the locally controlled entity, if any.
func Local(w *ecs.World) (ecs.Entity, bool) {
	es := ecs.Query[LocallyControlled](w)
	switch len(es) {
	case 0:
		return ecs.Invalid, false
	case 1:
		return es[0], true
	default:
		log.Warn().Int("count", len(es)).Msg("⚠️ more than one locally controlled entity")
		return es[0], true
	}
}

// Apply writes keys into the locally controlled entity's Control when the
// resulting vector differs from what it already holds, marking it changed for
// this tick. It reports whether a write happened.
func Apply(w *ecs.World, keys KeyState) bool {
	e, ok := Local(w)
	if !ok {
		return false
	}
	c, ok := ecs.Get[vessel.Control](w, e)
	if !ok {
		// not spawned yet
		return false
	}
	axis := Clamp(keys.Axis())
	if axis == c.Axis {
		return false
	}
	c.Axis = axis
	ecs.Touch[vessel.Control](w, e)
	return true
}
