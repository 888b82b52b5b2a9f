// Package protocol defines the messages exchanged between vessel servers and
// clients and the binary framing they travel in.
package protocol

import (
	"github.com/go-gl/mathgl/mgl32"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/vessel"
)

// Type identifies a message on the wire.
type Type byte

const (
	TypeHello     Type = 0x01
	TypeWelcome   Type = 0x02
	TypeControl   Type = 0x03
	TypeAnnounce  Type = 0x04
	TypeBroadcast Type = 0x05
	TypeFrame     Type = 0x06
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "hello"
	case TypeWelcome:
		return "welcome"
	case TypeControl:
		return "control"
	case TypeAnnounce:
		return "announce_vessel"
	case TypeBroadcast:
		return "broadcast_vessel"
	case TypeFrame:
		return "replication_frame"
	default:
		return "unknown"
	}
}

// Channel is the delivery guarantee a message type needs.
type Channel int

const (
	// Ordered messages are delivered in send order per sender.
	Ordered Channel = iota
	// Unordered messages carry their own identity and may arrive in any order.
	Unordered
	// Unreliable messages may be dropped under load; the next one supersedes.
	Unreliable
)

// ChannelOf returns the channel t travels on.
func ChannelOf(t Type) Channel {
	switch t {
	case TypeAnnounce, TypeBroadcast:
		return Unordered
	case TypeFrame:
		return Unreliable
	default:
		return Ordered
	}
}

// ClientID is assigned by the server when a connection completes its
// handshake. It is never zero for a real client.
type ClientID uint64

// Message is anything that can be framed.
type Message interface {
	Type() Type
}

// Hello opens a connection from the client side.
type Hello struct {
	Version    uint16
	ProtocolID uint64
}

// Welcome accepts a connection and tells the client who it is.
type Welcome struct {
	ClientID ClientID
}

// Control carries a client's steering input. Sent on change only.
type Control struct {
	Axis mgl32.Vec2
}

// AnnounceVessel tells the server "I built this vessel, attach it to my
// placeholder entity".
type AnnounceVessel struct {
	VesselID     vessel.ID
	Definition   vessel.Definition
	ClientEntity ecs.Entity
}

// BroadcastVessel shares a vessel definition so the receiver can resolve
// entities that reference it.
type BroadcastVessel struct {
	VesselID   vessel.ID
	Definition vessel.Definition
}

// BodyState is the replicated physics state of one entity.
type BodyState struct {
	Position        mgl32.Vec3
	Rotation        mgl32.Quat
	LinearVelocity  mgl32.Vec3
	AngularVelocity mgl32.Vec3
}

// EntitySpawn introduces a replicated entity to a client. ClientEntity is
// set only for the client that announced the vessel, and names its local
// placeholder.
type EntitySpawn struct {
	ServerEntity ecs.Entity
	VesselID     vessel.ID
	ClientEntity ecs.Entity
	State        BodyState
}

// EntityUpdate carries fresh state for an entity the client already knows.
type EntityUpdate struct {
	ServerEntity ecs.Entity
	State        BodyState
}

// ReplicationFrame is one tick of the server's entity replication stream
// for one client.
type ReplicationFrame struct {
	Tick     uint64
	Spawns   []EntitySpawn
	Updates  []EntityUpdate
	Despawns []ecs.Entity
}

// Empty reports whether the frame carries nothing.
func (f *ReplicationFrame) Empty() bool {
	return len(f.Spawns) == 0 && len(f.Updates) == 0 && len(f.Despawns) == 0
}

// Droppable reports whether losing the frame is harmless: it only carries
// state that the next frame supersedes.
func (f *ReplicationFrame) Droppable() bool {
	return len(f.Spawns) == 0 && len(f.Despawns) == 0
}

func (*Hello) Type() Type            { return TypeHello }
func (*Welcome) Type() Type          { return TypeWelcome }
func (*Control) Type() Type          { return TypeControl }
func (*AnnounceVessel) Type() Type   { return TypeAnnounce }
func (*BroadcastVessel) Type() Type  { return TypeBroadcast }
func (*ReplicationFrame) Type() Type { return TypeFrame }

func newMessage(t Type) (Message, bool) {
	switch t {
	case TypeHello:
		return &Hello{}, true
	case TypeWelcome:
		return &Welcome{}, true
	case TypeControl:
		return &Control{}, true
	case TypeAnnounce:
		return &AnnounceVessel{}, true
	case TypeBroadcast:
		return &BroadcastVessel{}, true
	case TypeFrame:
		return &ReplicationFrame{}, true
	default:
		return nil, false
	}
}
