// Package physics is the rigid-body collaborator the vessel code runs against.
//
// It deliberately stays small: shapes are boxes and compounds of boxes, the
// integrator is a semi-implicit Euler step with a flat ground plane, and
// contact friction is left to whoever drives the body.
package physics

import "github.com/go-gl/mathgl/mgl32"

// Shape is a collision shape expressed in its own local space.
type Shape interface {
	// Volume is used to derive mass.
	Volume() float32
	// Corners returns the hull vertices used for ground contact.
	Corners() []mgl32.Vec3
}

// Cuboid is an axis-aligned box with full edge lengths Size.
type Cuboid struct {
	Size mgl32.Vec3
}

// NewCuboid creates a box collider from edge lengths.
func NewCuboid(x, y, z float32) Cuboid {
	return Cuboid{Size: mgl32.Vec3{x, y, z}}
}

// Volume returns x*y*z.
func (c Cuboid) Volume() float32 {
	return c.Size.X() * c.Size.Y() * c.Size.Z()
}

// Corners returns the 8 box vertices.
func (c Cuboid) Corners() []mgl32.Vec3 {
	h := c.Size.Mul(0.5)
	out := make([]mgl32.Vec3, 0, 8)
	for _, sx := range []float32{-1, 1} {
		for _, sy := range []float32{-1, 1} {
			for _, sz := range []float32{-1, 1} {
				out = append(out, mgl32.Vec3{sx * h.X(), sy * h.Y(), sz * h.Z()})
			}
		}
	}
	return out
}

// CompoundPart is one child shape placed inside a Compound.
type CompoundPart struct {
	Offset   mgl32.Vec3
	Rotation mgl32.Quat
	Shape    Shape
}

// Compound is the union of its parts.
type Compound struct {
	Parts []CompoundPart
}

// NewCompound builds a compound collider. An empty part list is legal and
// yields a shapeless body.
func NewCompound(parts []CompoundPart) Compound {
	return Compound{Parts: parts}
}

// Volume sums the part volumes; overlaps are counted twice.
func (c Compound) Volume() float32 {
	var v float32
	for _, p := range c.Parts {
		v += p.Shape.Volume()
	}
	return v
}

// Corners returns every part corner moved into the compound's space.
func (c Compound) Corners() []mgl32.Vec3 {
	var out []mgl32.Vec3
	for _, p := range c.Parts {
		for _, corner := range p.Shape.Corners() {
			out = append(out, p.Rotation.Rotate(corner).Add(p.Offset))
		}
	}
	return out
}

// Transform places something relative to its parent.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
}

// Identity returns a transform with no offset and no rotation.
func Identity() Transform {
	return Transform{Rotation: mgl32.QuatIdent()}
}

// FromTranslation returns an unrotated transform at t.
func FromTranslation(t mgl32.Vec3) Transform {
	return Transform{Translation: t, Rotation: mgl32.QuatIdent()}
}
