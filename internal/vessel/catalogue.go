package vessel

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"vessel-racer/internal/physics"
)

// ErrUnknownElement matches every *UnknownElementError.
var ErrUnknownElement = errors.New("unknown element")

// UnknownElementError is a content error: a definition references an element
// the catalogue does not have. It is fatal for the running session.
type UnknownElementError struct {
	ID string
}

func (e *UnknownElementError) Error() string {
	return fmt.Sprintf("unknown element %q", e.ID)
}

// Is lets errors.Is(err, ErrUnknownElement) match.
func (e *UnknownElementError) Is(target error) bool {
	return target == ErrUnknownElement
}

// Graphics are the renderable handles of an element.
type Graphics struct {
	Mesh     string
	Material string
	Color    string // hex, used by the debug view
}

// Element is one building block type.
type Element struct {
	ID       string
	Graphics Graphics
	Collider physics.Shape
}

// Catalogue maps element ids to elements. It is populated once and read-only
// afterwards, so any goroutine may read it without locking.
type Catalogue struct {
	elements []*Element
	byID     map[string]*Element
}

// NewCatalogue builds a catalogue. Duplicate ids are rejected.
func NewCatalogue(elements ...Element) (*Catalogue, error) {
	c := &Catalogue{byID: make(map[string]*Element, len(elements))}
	for i := range elements {
		el := elements[i]
		if el.ID == "" {
			return nil, fmt.Errorf("element %d: empty id", i)
		}
		if _, dup := c.byID[el.ID]; dup {
			return nil, fmt.Errorf("element %q: duplicate id", el.ID)
		}
		if el.Collider == nil {
			el.Collider = physics.NewCuboid(1, 1, 1)
		}
		c.elements = append(c.elements, &el)
		c.byID[el.ID] = &el
	}
	return c, nil
}

// DefaultCatalogue returns the two stock unit blocks.
func DefaultCatalogue() *Catalogue {
	c, _ := NewCatalogue(
		Element{
			ID:       "block",
			Graphics: Graphics{Mesh: "cube", Material: "stone", Color: "#e6d9cc"},
			Collider: physics.NewCuboid(1, 1, 1),
		},
		Element{
			ID:       "green_block",
			Graphics: Graphics{Mesh: "cube", Material: "green", Color: "#33e633"},
			Collider: physics.NewCuboid(1, 1, 1),
		},
	)
	return c
}

// FindByID looks up an element. A miss returns *UnknownElementError.
func (c *Catalogue) FindByID(id string) (*Element, error) {
	if el, ok := c.byID[id]; ok {
		return el, nil
	}
	return nil, &UnknownElementError{ID: id}
}

// IDs returns every element id, sorted.
func (c *Catalogue) IDs() []string {
	out := make([]string, 0, len(c.elements))
	for _, el := range c.elements {
		out = append(out, el.ID)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of elements.
func (c *Catalogue) Len() int {
	return len(c.elements)
}

type catalogueFile struct {
	Elements []struct {
		ID       string     `yaml:"id"`
		Mesh     string     `yaml:"mesh"`
		Material string     `yaml:"material"`
		Color    string     `yaml:"color"`
		Size     [3]float32 `yaml:"size"`
	} `yaml:"elements"`
}

// ParseCatalogue reads a YAML catalogue. Every element is a box collider of
// the given size (defaults to a unit cube).
func ParseCatalogue(raw []byte) (*Catalogue, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	elements := make([]Element, 0, len(f.Elements))
	for _, e := range f.Elements {
		size := e.Size
		if size == [3]float32{} {
			size = [3]float32{1, 1, 1}
		}
		elements = append(elements, Element{
			ID:       e.ID,
			Graphics: Graphics{Mesh: e.Mesh, Material: e.Material, Color: e.Color},
			Collider: physics.NewCuboid(size[0], size[1], size[2]),
		})
	}
	return NewCatalogue(elements...)
}

// LoadCatalogue reads a YAML catalogue from disk.
func LoadCatalogue(path string) (*Catalogue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue %s: %w", path, err)
	}
	return ParseCatalogue(raw)
}
