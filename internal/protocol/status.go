package protocol

// Response status codes. Zero is success for every response opcode.
const (
	LoginOK              uint8 = 0
	LoginUnknownUser     uint8 = 1
	LoginBadPassword     uint8 = 2
	LoginVersionMismatch uint8 = 3

	RegisterOK              uint8 = 0
	RegisterInvalidName     uint8 = 1
	RegisterNameTooShort    uint8 = 2
	RegisterNameTooLong     uint8 = 3
	RegisterPassTooShort    uint8 = 4
	RegisterPassTooLong     uint8 = 5
	RegisterNameTaken       uint8 = 6
	RegisterVersionMismatch uint8 = 7

	JoinRoomOK           uint8 = 0
	JoinRoomFull         uint8 = 1
	JoinRoomNoSpectators uint8 = 2
	JoinRoomNotFound     uint8 = 3
	JoinRoomAlreadyIn    uint8 = 4

	CreateRoomOK            uint8 = 0
	CreateRoomLimitReached  uint8 = 1
	CreateRoomInvalidParams uint8 = 2

	RestoreSessionOK uint8 = 0
)

var statusText = map[Opcode]map[uint8]string{
	SPLoginResponse: {
		LoginOK:              "ok",
		LoginUnknownUser:     "unknown user",
		LoginBadPassword:     "wrong password",
		LoginVersionMismatch: "game version mismatch",
	},
	SPRegisterResponse: {
		RegisterOK:              "ok",
		RegisterInvalidName:     "invalid user name",
		RegisterNameTooShort:    "user name too short",
		RegisterNameTooLong:     "user name too long",
		RegisterPassTooShort:    "password too short",
		RegisterPassTooLong:     "password too long",
		RegisterNameTaken:       "user name already registered",
		RegisterVersionMismatch: "game version mismatch",
	},
	SPJoinRoomResponse: {
		JoinRoomOK:           "ok",
		JoinRoomFull:         "room is full",
		JoinRoomNoSpectators: "room does not accept spectators",
		JoinRoomNotFound:     "room no longer exists",
		JoinRoomAlreadyIn:    "already in room",
	},
	SPCreateRoomResponse: {
		CreateRoomOK:            "ok",
		CreateRoomLimitReached:  "server room limit reached",
		CreateRoomInvalidParams: "invalid room parameters",
	},
	SPRestoreSessionResult: {
		RestoreSessionOK: "ok",
	},
}

// IsKnownStatus reports whether code is defined for the response opcode.
func IsKnownStatus(op Opcode, code uint8) bool {
	_, ok := statusText[op][code]
	return ok
}

// StatusText returns a user-facing description of a response status.
func StatusText(op Opcode, code uint8) string {
	if s, ok := statusText[op][code]; ok {
		return s
	}
	if op == SPRestoreSessionResult {
		return "session expired"
	}
	return "unknown status"
}
