package protocol

import "fmt"

// GameVersion is sent with login and register requests.
const GameVersion = 1

// Opcode identifies a message on the wire. CP* opcodes travel client -> server,
// SP* opcodes server -> client.
type Opcode uint16

const (
	OpNone                 Opcode = 0x00
	CPLogin                Opcode = 0x01
	SPLoginResponse        Opcode = 0x02
	CPRegister             Opcode = 0x03
	SPRegisterResponse     Opcode = 0x04
	CPRoomList             Opcode = 0x05
	SPRoomListResponse     Opcode = 0x06
	CPJoinRoom             Opcode = 0x07
	SPJoinRoomResponse     Opcode = 0x08
	CPCreateRoom           Opcode = 0x09
	SPCreateRoomResponse   Opcode = 0x0A
	SPNewPlayer            Opcode = 0x0B
	SPNewWorld             Opcode = 0x0C
	CPMoveDirection        Opcode = 0x0D
	CPMoveStart            Opcode = 0x0E
	CPMoveStop             Opcode = 0x0F
	CPMoveHeartbeat        Opcode = 0x10
	SPMoveDirection        Opcode = 0x11
	SPMoveStart            Opcode = 0x12
	SPMoveStop             Opcode = 0x13
	SPMoveHeartbeat        Opcode = 0x14
	SPObjectEaten          Opcode = 0x15
	SPPlayerEaten          Opcode = 0x16
	CPUseBonus             Opcode = 0x17
	SPUseBonusFailed       Opcode = 0x18
	SPUseBonus             Opcode = 0x19
	SPCancelBonus          Opcode = 0x1A
	SPNewObject            Opcode = 0x1B
	CPPlayerExit           Opcode = 0x1C
	SPPlayerExit           Opcode = 0x1D
	CPStats                Opcode = 0x1E
	SPStatsResponse        Opcode = 0x1F
	CPChatMsg              Opcode = 0x20
	SPChatMsg              Opcode = 0x21
	// Later revision; numbered after the base table.
	CPWorldRequest         Opcode = 0x22
	SPUpdateWorld          Opcode = 0x23
	CPEatRequest           Opcode = 0x24
	SPDestroyObject        Opcode = 0x25
	CPRestoreSession       Opcode = 0x26
	SPRestoreSessionResult Opcode = 0x27
	SPPing                 Opcode = 0x28
	CPPong                 Opcode = 0x29
	SPPingPong             Opcode = 0x2A
	SPKick                 Opcode = 0x2B
)

var opcodeNames = map[Opcode]string{
	OpNone:                 "OPCODE_NONE",
	CPLogin:                "CP_LOGIN",
	SPLoginResponse:        "SP_LOGIN_RESPONSE",
	CPRegister:             "CP_REGISTER",
	SPRegisterResponse:     "SP_REGISTER_RESPONSE",
	CPRoomList:             "CP_ROOM_LIST",
	SPRoomListResponse:     "SP_ROOM_LIST_RESPONSE",
	CPJoinRoom:             "CP_JOIN_ROOM",
	SPJoinRoomResponse:     "SP_JOIN_ROOM_RESPONSE",
	CPCreateRoom:           "CP_CREATE_ROOM",
	SPCreateRoomResponse:   "SP_CREATE_ROOM_RESPONSE",
	SPNewPlayer:            "SP_NEW_PLAYER",
	SPNewWorld:             "SP_NEW_WORLD",
	CPMoveDirection:        "CP_MOVE_DIRECTION",
	CPMoveStart:            "CP_MOVE_START",
	CPMoveStop:             "CP_MOVE_STOP",
	CPMoveHeartbeat:        "CP_MOVE_HEARTBEAT",
	SPMoveDirection:        "SP_MOVE_DIRECTION",
	SPMoveStart:            "SP_MOVE_START",
	SPMoveStop:             "SP_MOVE_STOP",
	SPMoveHeartbeat:        "SP_MOVE_HEARTBEAT",
	SPObjectEaten:          "SP_OBJECT_EATEN",
	SPPlayerEaten:          "SP_PLAYER_EATEN",
	CPUseBonus:             "CP_USE_BONUS",
	SPUseBonusFailed:       "SP_USE_BONUS_FAILED",
	SPUseBonus:             "SP_USE_BONUS",
	SPCancelBonus:          "SP_CANCEL_BONUS",
	SPNewObject:            "SP_NEW_OBJECT",
	CPPlayerExit:           "CP_PLAYER_EXIT",
	SPPlayerExit:           "SP_PLAYER_EXIT",
	CPStats:                "CP_STATS",
	SPStatsResponse:        "SP_STATS_RESPONSE",
	CPChatMsg:              "CP_CHAT_MSG",
	SPChatMsg:              "SP_CHAT_MSG",
	CPWorldRequest:         "CP_WORLD_REQUEST",
	SPUpdateWorld:          "SP_UPDATE_WORLD",
	CPEatRequest:           "CP_EAT_REQUEST",
	SPDestroyObject:        "SP_DESTROY_OBJECT",
	CPRestoreSession:       "CP_RESTORE_SESSION",
	SPRestoreSessionResult: "SP_RESTORE_SESSION_RESPONSE",
	SPPing:                 "SP_PING",
	CPPong:                 "CP_PONG",
	SPPingPong:             "SP_PING_PONG",
	SPKick:                 "SP_KICK",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("OPCODE_0x%04X", uint16(op))
}

// Known reports whether op is part of the opcode table.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

// Object type ids carried in object descriptions.
const (
	ObjectTypeNone      uint8 = 0
	ObjectTypePlayer    uint8 = 1
	ObjectTypeIdleFood  uint8 = 2
	ObjectTypeBonusFood uint8 = 3
	ObjectTypeTrap      uint8 = 4
)

// Entity families used by eat requests and destroy messages. Player ids and
// world object ids are separate namespaces.
const (
	FamilyPlayer uint8 = 0
	FamilyObject uint8 = 1
)

// Game types for room listing.
const (
	GameTypeFreeForAll uint8 = 0
	GameTypeRated      uint8 = 1
)
