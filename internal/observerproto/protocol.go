package observerproto

import "encoding/json"

// Version is the observer feed protocol version (separate from the game wire protocol).
const Version = "1.0"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeFrame     = "FRAME"
	TypeState     = "STATE"
	TypeEvent     = "EVENT"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Objects off drops food, bonuses and traps from frames.
	Objects *bool `json:"objects,omitempty"`
}

func (m SubscribeMsg) WantObjects() bool {
	return m.Objects == nil || *m.Objects
}

// Server -> Client. Sent at the feed's frame rate.
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	TS              int64  `json:"ts"`
	State           string `json:"state"`

	MapWidth  float32 `json:"map_width"`
	MapHeight float32 `json:"map_height"`

	Local     *PlayerState  `json:"local,omitempty"`
	LocalDead bool          `json:"local_dead"`
	Players   []PlayerState `json:"players"`
	Objects   []ObjectState `json:"objects"`
}

type PlayerState struct {
	ID     int32   `json:"id"`
	Name   string  `json:"name"`
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Size   int32   `json:"size"`
	Radius float32 `json:"radius"`
	Color  int32   `json:"color"`
	Moving bool    `json:"moving"`
	Angle  float32 `json:"angle"`
}

type ObjectState struct {
	ID    int32   `json:"id"`
	Kind  string  `json:"kind"`
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Param int32   `json:"param"`
}

// Server -> Client. Connection state transition.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TS              int64  `json:"ts"`
	Addr            string `json:"addr"`
	State           string `json:"state"`
}

// Server -> Client. A client event (login result, death, kick...).
type EventMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	TS              int64           `json:"ts"`
	Event           json.RawMessage `json:"event"`
}
