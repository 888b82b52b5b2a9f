// Package editor holds what the player builds before driving: a creation of
// catalogue elements placed on an integer grid, and the build step that turns
// it into a playable vessel definition.
//
// Coordinate system: X+ is forwards, Y+ is up, Z+ is to the right.
package editor

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"vessel-racer/internal/physics"
	"vessel-racer/internal/vessel"
)

// Object is one placed element.
type Object struct {
	Element string `yaml:"element"`
	Pos     [3]int `yaml:"pos"`
}

// Creation is whatever the player made in the editor.
type Creation struct {
	Objects    []Object           `yaml:"objects"`
	Properties *vessel.Properties `yaml:"properties,omitempty"`
}

// Place appends an object at pos.
func (c *Creation) Place(element string, x, y, z int) {
	c.Objects = append(c.Objects, Object{Element: element, Pos: [3]int{x, y, z}})
}

// ParseCreation reads a YAML creation.
func ParseCreation(raw []byte) (Creation, error) {
	var c Creation
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Creation{}, fmt.Errorf("creation: %w", err)
	}
	return c, nil
}

// LoadCreation reads a YAML creation from disk.
func LoadCreation(path string) (Creation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Creation{}, fmt.Errorf("creation %s: %w", path, err)
	}
	return ParseCreation(raw)
}

// Build turns a creation into a definition. Every element must exist in the
// catalogue; parts sit at their grid position with no rotation.
func Build(c Creation, cat *vessel.Catalogue) (vessel.Definition, error) {
	def := vessel.Definition{
		Parts:      make([]vessel.Part, 0, len(c.Objects)),
		Properties: vessel.DefaultProperties(),
	}
	if c.Properties != nil {
		if err := c.Properties.Validate(); err != nil {
			return vessel.Definition{}, err
		}
		def.Properties = *c.Properties
	}
	for _, obj := range c.Objects {
		if _, err := cat.FindByID(obj.Element); err != nil {
			return vessel.Definition{}, err
		}
		pos := mgl32.Vec3{float32(obj.Pos[0]), float32(obj.Pos[1]), float32(obj.Pos[2])}
		def.Parts = append(def.Parts, vessel.Part{
			ElementID: obj.Element,
			Transform: physics.FromTranslation(pos),
		})
	}
	return def, nil
}

// BuildInto builds the creation, stores it in assets under a fresh id and
// returns that id, which becomes the user's vessel id.
func BuildInto(c Creation, cat *vessel.Catalogue, assets *vessel.AssetTable) (vessel.ID, vessel.Definition, error) {
	def, err := Build(c, cat)
	if err != nil {
		return vessel.ID{}, vessel.Definition{}, err
	}
	id := vessel.NewID()
	assets.Insert(id, def)
	return id, def, nil
}

// Demo is the creation used when the player has not built anything: a
// three-block hull with a green marker on top.
func Demo() Creation {
	var c Creation
	c.Place("block", -1, 0, 0)
	c.Place("block", 0, 0, 0)
	c.Place("block", 1, 0, 0)
	c.Place("green_block", 0, 1, 0)
	return c
}
