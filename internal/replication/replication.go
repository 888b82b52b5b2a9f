// Package replication keeps player-built vessels in step between a server
// and its clients: the announce/broadcast/catch-up handshake, the ownership
// map, remote control and the per-tick entity stream.
//
// Nothing here touches a socket. Server and Client consume decoded messages
// during the receive phase of a tick and queue outgoing messages that the
// transport flushes during the send phase, in queue order.
package replication

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/physics"
	"vessel-racer/internal/protocol"
)

var (
	ErrNotOwner      = errors.New("replication: client owns no entity")
	ErrEntityGone    = errors.New("replication: owned entity no longer exists")
	ErrNotReady      = errors.New("replication: owned entity not spawned yet")
	ErrEntityOwned   = errors.New("replication: entity already owned")
	ErrUnknownClient = errors.New("replication: unknown client")
	ErrBadControl    = errors.New("replication: control out of range")
	ErrBadAnnounce   = errors.New("replication: invalid vessel announcement")
)

// Drop reasons, used as metric labels.
const (
	DropNotOwner   = "not_owner"
	DropEntityGone = "entity_gone"
	DropNotReady   = "not_ready"
	DropBadControl = "bad_control"
	DropUnknown    = "unknown_client"
)

// DropReason maps a control error to its metric label.
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrNotOwner):
		return DropNotOwner
	case errors.Is(err, ErrEntityGone):
		return DropEntityGone
	case errors.Is(err, ErrNotReady):
		return DropNotReady
	case errors.Is(err, ErrBadControl):
		return DropBadControl
	default:
		return DropUnknown
	}
}

// Replicated marks an entity that is part of the server's replicated set.
// On a client it marks entities that came from (or were mapped onto) the
// server's stream.
type Replicated struct{}

// readState collects the replicated physics state of e, with defaults for
// anything missing.
func readState(w *ecs.World, e ecs.Entity) protocol.BodyState {
	s := protocol.BodyState{Rotation: mgl32.QuatIdent()}
	if p, ok := ecs.Get[physics.Position](w, e); ok {
		s.Position = p.Value
	}
	if r, ok := ecs.Get[physics.Rotation](w, e); ok {
		s.Rotation = r.Value
	}
	if v, ok := ecs.Get[physics.LinearVelocity](w, e); ok {
		s.LinearVelocity = v.Value
	}
	if v, ok := ecs.Get[physics.AngularVelocity](w, e); ok {
		s.AngularVelocity = v.Value
	}
	return s
}

// writeState overwrites e's physics state, inserting components that are
// missing.
func writeState(w *ecs.World, e ecs.Entity, s protocol.BodyState) {
	rot := s.Rotation
	if rot.Len() == 0 {
		rot = mgl32.QuatIdent()
	}
	ecs.Insert(w, e, physics.Position{Value: s.Position})
	ecs.Insert(w, e, physics.Rotation{Value: rot})
	ecs.Insert(w, e, physics.LinearVelocity{Value: s.LinearVelocity})
	ecs.Insert(w, e, physics.AngularVelocity{Value: s.AngularVelocity})
}

// setupPlaceholder gives a freshly received entity a transform so it is
// positioned before its vessel resolves.
func setupPlaceholder(w *ecs.World, e ecs.Entity) {
	if !ecs.Has[physics.Position](w, e) {
		ecs.Insert(w, e, physics.Position{})
	}
	if !ecs.Has[physics.Rotation](w, e) {
		ecs.Insert(w, e, physics.Rotation{Value: mgl32.QuatIdent()})
	}
}
