package vessel

import (
	"bytes"
	"sort"
)

// AssetTable stores every known Definition by ID for the whole session.
// Entries are never removed or replaced. It has a single writer per tick
// phase (the engine's receive phase) and is not locked.
type AssetTable struct {
	defs     map[ID]Definition
	onInsert []func(ID)
}

// NewAssetTable creates an empty table.
func NewAssetTable() *AssetTable {
	return &AssetTable{defs: make(map[ID]Definition)}
}

// OnInsert registers fn to run after every new insertion.
func (t *AssetTable) OnInsert(fn func(ID)) {
	t.onInsert = append(t.onInsert, fn)
}

// Insert stores def under id. Re-inserting an existing id is harmless and
// keeps the first definition; it reports whether anything was stored.
func (t *AssetTable) Insert(id ID, def Definition) bool {
	if _, ok := t.defs[id]; ok {
		return false
	}
	t.defs[id] = def.Clone()
	for _, fn := range t.onInsert {
		fn(id)
	}
	return true
}

// Get returns a copy of the definition stored under id.
func (t *AssetTable) Get(id ID) (Definition, bool) {
	def, ok := t.defs[id]
	if !ok {
		return Definition{}, false
	}
	return def.Clone(), true
}

// Has reports whether id is known.
func (t *AssetTable) Has(id ID) bool {
	_, ok := t.defs[id]
	return ok
}

// Len returns the number of definitions.
func (t *AssetTable) Len() int {
	return len(t.defs)
}

// IDs returns every id in byte order.
func (t *AssetTable) IDs() []ID {
	out := make([]ID, 0, len(t.defs))
	for id := range t.defs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
