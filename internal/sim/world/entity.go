package world

import (
	"fmt"
	"math"

	"agarclient/internal/protocol"
)

// Kind tags an entity. World objects and players live in separate id
// namespaces; the kind decides which one.
type Kind uint8

const (
	KindFood Kind = iota + 1
	KindBonus
	KindTrap
	KindRemotePlayer
	KindLocalPlayer
)

func (k Kind) IsPlayer() bool { return k == KindRemotePlayer || k == KindLocalPlayer }
func (k Kind) IsObject() bool { return k == KindFood || k == KindBonus || k == KindTrap }

func (k Kind) String() string {
	switch k {
	case KindFood:
		return "food"
	case KindBonus:
		return "bonus"
	case KindTrap:
		return "trap"
	case KindRemotePlayer:
		return "remote_player"
	case KindLocalPlayer:
		return "local_player"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ObjectKind maps a wire object type to a world object kind.
func ObjectKind(objectType uint8) (Kind, bool) {
	switch objectType {
	case protocol.ObjectTypeIdleFood:
		return KindFood, true
	case protocol.ObjectTypeBonusFood:
		return KindBonus, true
	case protocol.ObjectTypeTrap:
		return KindTrap, true
	default:
		return 0, false
	}
}

// ObjectType is the inverse of ObjectKind; players map to ObjectTypePlayer.
func (k Kind) ObjectType() uint8 {
	switch k {
	case KindFood:
		return protocol.ObjectTypeIdleFood
	case KindBonus:
		return protocol.ObjectTypeBonusFood
	case KindTrap:
		return protocol.ObjectTypeTrap
	case KindRemotePlayer, KindLocalPlayer:
		return protocol.ObjectTypePlayer
	default:
		return protocol.ObjectTypeNone
	}
}

// Namespace selects the id space an entity id belongs to.
type Namespace uint8

const (
	Objects Namespace = iota
	Players
)

// Ref addresses one entity across both namespaces.
type Ref struct {
	NS Namespace
	ID int32
}

func ObjectRef(id int32) Ref { return Ref{NS: Objects, ID: id} }
func PlayerRef(id int32) Ref { return Ref{NS: Players, ID: id} }

func (r Ref) String() string {
	if r.NS == Players {
		return fmt.Sprintf("player:%d", r.ID)
	}
	return fmt.Sprintf("object:%d", r.ID)
}

// Family is the wire family byte used by eat requests and destroy messages.
func (r Ref) Family() uint8 {
	if r.NS == Players {
		return protocol.FamilyPlayer
	}
	return protocol.FamilyObject
}

// RefForFamily builds a Ref from a wire family byte.
func RefForFamily(family uint8, id int32) (Ref, bool) {
	switch family {
	case protocol.FamilyPlayer:
		return PlayerRef(id), true
	case protocol.FamilyObject:
		return ObjectRef(id), true
	default:
		return Ref{}, false
	}
}

// Entity is the shared shape of every world object and player. Player-only
// fields are zero for world objects. Param is the object parameter or the
// player's color.
type Entity struct {
	ID    int32
	Kind  Kind
	X, Y  float32
	Param int32

	Name     string
	Size     int32
	Moving   bool
	Angle    float32
	MoveCoef float32

	// Consumed marks an optimistic local eat awaiting server confirmation.
	Consumed bool
}

func (e *Entity) Ref() Ref {
	if e.Kind.IsPlayer() {
		return PlayerRef(e.ID)
	}
	return ObjectRef(e.ID)
}

func (e *Entity) Cell() Cell { return CellOf(e.X, e.Y) }

// Movement speed tuning: world units per millisecond.
const (
	MaxMoveCoef     = 0.01
	MinMoveCoef     = 0.002
	MoveCoefMinSize = 12
	MoveCoefMaxSize = 500
)

// MoveCoef interpolates linearly from MaxMoveCoef at MoveCoefMinSize down to
// MinMoveCoef at MoveCoefMaxSize, clamping outside that range.
func MoveCoef(size int32) float32 {
	if size <= MoveCoefMinSize {
		return MaxMoveCoef
	}
	if size >= MoveCoefMaxSize {
		return MinMoveCoef
	}
	t := float64(size-MoveCoefMinSize) / float64(MoveCoefMaxSize-MoveCoefMinSize)
	return float32(MaxMoveCoef - t*(MaxMoveCoef-MinMoveCoef))
}

// MinObjectCaptureDistance keeps a capture reach for very small players.
const MinObjectCaptureDistance = 0.2

// Radius is the interaction radius of a player of the given size.
func Radius(size int32) float32 {
	return float32(size) * 0.3 / 30 / 2
}

func hypot(dx, dy float32) float32 {
	return float32(math.Hypot(float64(dx), float64(dy)))
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
