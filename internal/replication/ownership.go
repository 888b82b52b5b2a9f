package replication

import (
	"fmt"
	"sort"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/protocol"
)

// Ownership is the server's bidirectional client <-> entity relation.
// It is injective both ways: a client owns at most one entity and an entity
// is owned by at most one client.
type Ownership struct {
	byClient map[protocol.ClientID]ecs.Entity
	byEntity map[ecs.Entity]protocol.ClientID
}

// NewOwnership returns an empty map.
func NewOwnership() *Ownership {
	return &Ownership{
		byClient: make(map[protocol.ClientID]ecs.Entity),
		byEntity: make(map[ecs.Entity]protocol.ClientID),
	}
}

// Set records client -> e, replacing the client's previous entity, which is
// returned. Fails if e is already owned by someone else.
func (o *Ownership) Set(client protocol.ClientID, e ecs.Entity) (prev ecs.Entity, err error) {
	if other, ok := o.byEntity[e]; ok && other != client {
		return ecs.Invalid, fmt.Errorf("%w: entity %d belongs to client %d", ErrEntityOwned, e, other)
	}
	if old, ok := o.byClient[client]; ok {
		delete(o.byEntity, old)
		prev = old
	}
	o.byClient[client] = e
	o.byEntity[e] = client
	return prev, nil
}

// Entity returns the entity client owns.
func (o *Ownership) Entity(client protocol.ClientID) (ecs.Entity, bool) {
	e, ok := o.byClient[client]
	return e, ok
}

// Owner returns the client owning e.
func (o *Ownership) Owner(e ecs.Entity) (protocol.ClientID, bool) {
	c, ok := o.byEntity[e]
	return c, ok
}

// Remove deletes client's entry and returns the entity it owned.
func (o *Ownership) Remove(client protocol.ClientID) (ecs.Entity, bool) {
	e, ok := o.byClient[client]
	if !ok {
		return ecs.Invalid, false
	}
	delete(o.byClient, client)
	delete(o.byEntity, e)
	return e, true
}

// Len returns the number of entries.
func (o *Ownership) Len() int {
	return len(o.byClient)
}

// Clients returns every owning client in ascending order.
func (o *Ownership) Clients() []protocol.ClientID {
	out := make([]protocol.ClientID, 0, len(o.byClient))
	for c := range o.byClient {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
