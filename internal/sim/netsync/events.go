package netsync

import "agarclient/internal/protocol"

type EventType string

const (
	EventLogin           EventType = "LOGIN"
	EventRegister        EventType = "REGISTER"
	EventRoomList        EventType = "ROOM_LIST"
	EventJoinRoom        EventType = "JOIN_ROOM"
	EventCreateRoom      EventType = "CREATE_ROOM"
	EventWorldLoaded     EventType = "WORLD_LOADED"
	EventLocalDeath      EventType = "LOCAL_DEATH"
	EventKicked          EventType = "KICKED"
	EventSessionRestored EventType = "SESSION_RESTORED"
	EventSessionExpired  EventType = "SESSION_EXPIRED"
	EventLatency         EventType = "LATENCY"
)

// Event is what the synchronizer surfaces to the UI side. Only the fields
// relevant to Type are set.
type Event struct {
	Type EventType `json:"type"`

	// Response status and its user-facing text.
	OK      bool   `json:"ok"`
	Status  uint8  `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	Rooms       []protocol.RoomInfo `json:"rooms,omitempty"`
	ChatChannel int32               `json:"chat_channel,omitempty"`

	// Reinit distinguishes a resumed session from a first load.
	Reinit bool `json:"reinit,omitempty"`
	Dead   bool `json:"dead,omitempty"`

	// PlayerID is the eater on LOCAL_DEATH.
	PlayerID  int32 `json:"player_id,omitempty"`
	LatencyMs int32 `json:"latency_ms,omitempty"`
}

func statusEvent(typ EventType, op protocol.Opcode, status uint8) Event {
	return Event{
		Type:    typ,
		OK:      status == 0,
		Status:  status,
		Message: protocol.StatusText(op, status),
	}
}
