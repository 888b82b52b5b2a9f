package vessel

import (
	"vessel-racer/internal/physics"
)

// RenderPart is a visual child of a spawned vessel with its handles resolved.
type RenderPart struct {
	ElementID string
	Graphics  Graphics
	Transform physics.Transform
}

// Resolved is a definition made spawnable against a catalogue.
type Resolved struct {
	Collider   physics.Compound
	Parts      []RenderPart
	Properties Properties
}

// Resolve is a pure function of the definition and the catalogue. It fails
// with *UnknownElementError on the first element the catalogue lacks.
func Resolve(def Definition, cat *Catalogue) (Resolved, error) {
	out := Resolved{
		Properties: def.Properties,
		Parts:      make([]RenderPart, 0, len(def.Parts)),
	}
	colliders := make([]physics.CompoundPart, 0, len(def.Parts))
	for _, p := range def.Parts {
		el, err := cat.FindByID(p.ElementID)
		if err != nil {
			return Resolved{}, err
		}
		colliders = append(colliders, physics.CompoundPart{
			Offset:   p.Transform.Translation,
			Rotation: p.Transform.Rotation,
			Shape:    el.Collider,
		})
		out.Parts = append(out.Parts, RenderPart{
			ElementID: el.ID,
			Graphics:  el.Graphics,
			Transform: p.Transform,
		})
	}
	out.Collider = physics.NewCompound(colliders)
	return out, nil
}
