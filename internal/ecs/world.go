// Package ecs is a small typed entity/component store.
//
// Entities are opaque ids that are never reused within a World. Components
// are plain Go values stored per type; each slot remembers the tick it was
// last written so systems can gate work on change ("send on change").
package ecs

import (
	"reflect"
	"sort"
)

// Entity is an opaque identifier. The zero value is never allocated.
type Entity uint64

// Invalid is the zero entity.
const Invalid Entity = 0

type slot struct {
	value   any // always a pointer to the component
	changed uint64
}

type node struct {
	parent   Entity
	children []Entity
}

// World owns every entity and component of one running process.
// It is not safe for concurrent use; the engine serializes access.
type World struct {
	next   Entity
	tick   uint64
	nodes  map[Entity]*node
	stores map[reflect.Type]map[Entity]*slot
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		nodes:  make(map[Entity]*node),
		stores: make(map[reflect.Type]map[Entity]*slot),
	}
}

// Advance moves the change clock to the next tick and returns it.
func (w *World) Advance() uint64 {
	w.tick++
	return w.tick
}

// Tick returns the current change tick.
func (w *World) Tick() uint64 {
	return w.tick
}

// Spawn allocates a new entity with no components.
func (w *World) Spawn() Entity {
	w.next++
	e := w.next
	w.nodes[e] = &node{}
	return e
}

// Alive reports whether e exists.
func (w *World) Alive(e Entity) bool {
	_, ok := w.nodes[e]
	return ok
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return len(w.nodes)
}

// SetParent attaches child under parent, detaching it from any previous parent.
func (w *World) SetParent(child, parent Entity) {
	cn, ok := w.nodes[child]
	if !ok {
		return
	}
	pn, ok := w.nodes[parent]
	if !ok || child == parent {
		return
	}
	w.detach(child, cn)
	cn.parent = parent
	pn.children = append(pn.children, child)
}

// Parent returns the parent of e, or Invalid.
func (w *World) Parent(e Entity) Entity {
	if n, ok := w.nodes[e]; ok {
		return n.parent
	}
	return Invalid
}

// Children returns a copy of e's children.
func (w *World) Children(e Entity) []Entity {
	n, ok := w.nodes[e]
	if !ok || len(n.children) == 0 {
		return nil
	}
	out := make([]Entity, len(n.children))
	copy(out, n.children)
	return out
}

func (w *World) detach(e Entity, n *node) {
	if n.parent == Invalid {
		return
	}
	if pn, ok := w.nodes[n.parent]; ok {
		for i, c := range pn.children {
			if c == e {
				pn.children = append(pn.children[:i], pn.children[i+1:]...)
				break
			}
		}
	}
	n.parent = Invalid
}

// Despawn removes e and all its components. Children are orphaned, not removed.
func (w *World) Despawn(e Entity) bool {
	n, ok := w.nodes[e]
	if !ok {
		return false
	}
	w.detach(e, n)
	for _, c := range n.children {
		if cn, ok := w.nodes[c]; ok {
			cn.parent = Invalid
		}
	}
	for _, store := range w.stores {
		delete(store, e)
	}
	delete(w.nodes, e)
	return true
}

// DespawnRecursive removes e and its whole subtree. Returns the number of
// entities removed.
func (w *World) DespawnRecursive(e Entity) int {
	n, ok := w.nodes[e]
	if !ok {
		return 0
	}
	removed := 0
	for _, c := range append([]Entity(nil), n.children...) {
		removed += w.DespawnRecursive(c)
	}
	if w.Despawn(e) {
		removed++
	}
	return removed
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (w *World) store(t reflect.Type) map[Entity]*slot {
	s, ok := w.stores[t]
	if !ok {
		s = make(map[Entity]*slot)
		w.stores[t] = s
	}
	return s
}

// Insert attaches c to e, replacing any existing component of the same type.
// The slot is marked changed at the current tick. Inserting on a dead entity
// is a no-op.
func Insert[T any](w *World, e Entity, c T) {
	if !w.Alive(e) {
		return
	}
	v := new(T)
	*v = c
	w.store(typeOf[T]())[e] = &slot{value: v, changed: w.tick}
}

// Get returns a pointer to e's component of type T. Writes through the
// pointer do not mark the slot changed; call Touch for that.
func Get[T any](w *World, e Entity) (*T, bool) {
	s, ok := w.stores[typeOf[T]()]
	if !ok {
		return nil, false
	}
	sl, ok := s[e]
	if !ok {
		return nil, false
	}
	return sl.value.(*T), true
}

// Has reports whether e carries a component of type T.
func Has[T any](w *World, e Entity) bool {
	_, ok := Get[T](w, e)
	return ok
}

// Remove detaches e's component of type T, if any.
func Remove[T any](w *World, e Entity) {
	if s, ok := w.stores[typeOf[T]()]; ok {
		delete(s, e)
	}
}

// Touch marks e's component of type T as changed in the current tick.
func Touch[T any](w *World, e Entity) {
	if s, ok := w.stores[typeOf[T]()]; ok {
		if sl, ok := s[e]; ok {
			sl.changed = w.tick
		}
	}
}

// Changed reports whether e's component of type T was inserted or touched
// during the current tick.
func Changed[T any](w *World, e Entity) bool {
	s, ok := w.stores[typeOf[T]()]
	if !ok {
		return false
	}
	sl, ok := s[e]
	return ok && sl.changed == w.tick
}

// Query returns every entity carrying T, in ascending id order.
func Query[T any](w *World) []Entity {
	s := w.stores[typeOf[T]()]
	out := make([]Entity, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Each calls fn for every entity carrying T, in ascending id order.
func Each[T any](w *World, fn func(Entity, *T)) {
	for _, e := range Query[T](w) {
		if c, ok := Get[T](w, e); ok {
			fn(e, c)
		}
	}
}
