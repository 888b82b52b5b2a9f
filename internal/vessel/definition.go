// Package vessel holds everything about player-built vehicles: their
// serializable definition, the element catalogue they are made from, the
// asset table that names them, the pipeline that turns them into live
// entities, and the control model that drives them.
package vessel

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"vessel-racer/internal/physics"
)

// ID names a Definition in the asset table. Inserting an ID on an entity asks
// the spawn pipeline to turn that entity into the vessel.
type ID uuid.UUID

// NewID returns a random ID.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical uuid text form.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse vessel id: %w", err)
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the nil uuid.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Properties is the physical behaviour of a vessel. Every entity gets its own
// copy at spawn time.
type Properties struct {
	// ControlForwardsForce is applied when the input is fully forwards.
	ControlForwardsForce float32 `yaml:"control_forwards_force" json:"controlForwardsForce"`
	// ControlTorque turns the vessel when the input is fully left or right.
	ControlTorque float32 `yaml:"control_torque" json:"controlTorque"`
	// SideFriction is the fraction of sideways speed applied as counter-force.
	SideFriction float32 `yaml:"side_friction" json:"sideFriction"`
	// RotaryFrictionHorizontal damps spin around the vertical axis.
	RotaryFrictionHorizontal float32 `yaml:"rotary_friction_hor" json:"rotaryFrictionHorizontal"`
	// RotaryFrictionVertical damps pitch and roll.
	RotaryFrictionVertical float32 `yaml:"rotary_friction_ver" json:"rotaryFrictionVertical"`
}

// DefaultProperties returns the stock tuning.
func DefaultProperties() Properties {
	return Properties{
		ControlForwardsForce:     8,
		ControlTorque:            6,
		SideFriction:             2.2,
		RotaryFrictionHorizontal: 3,
		RotaryFrictionVertical:   6,
	}
}

// ErrInvalidProperty is returned by Validate.
var ErrInvalidProperty = errors.New("vessel property must be a finite non-negative number")

// Validate checks that every coefficient is finite and non-negative.
func (p Properties) Validate() error {
	fields := []struct {
		name string
		v    float32
	}{
		{"control_forwards_force", p.ControlForwardsForce},
		{"control_torque", p.ControlTorque},
		{"side_friction", p.SideFriction},
		{"rotary_friction_hor", p.RotaryFrictionHorizontal},
		{"rotary_friction_ver", p.RotaryFrictionVertical},
	}
	for _, f := range fields {
		v := float64(f.v)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%s=%v: %w", f.name, f.v, ErrInvalidProperty)
		}
	}
	return nil
}

// Part places one catalogue element inside the vessel.
type Part struct {
	ElementID string
	Transform physics.Transform
}

// Definition is the immutable, serializable makeup of one vessel. Part order
// is display order only.
type Definition struct {
	Parts      []Part
	Properties Properties
}

// Clone returns a deep copy so callers cannot alias a stored definition.
func (d Definition) Clone() Definition {
	out := Definition{Properties: d.Properties}
	if d.Parts != nil {
		out.Parts = make([]Part, len(d.Parts))
		copy(out.Parts, d.Parts)
	}
	return out
}
