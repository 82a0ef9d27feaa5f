package protocol

import "testing"

func TestIsKnownStatus(t *testing.T) {
	cases := []struct {
		op   Opcode
		code uint8
	}{
		{SPLoginResponse, LoginOK},
		{SPLoginResponse, LoginVersionMismatch},
		{SPRegisterResponse, RegisterNameTaken},
		{SPRegisterResponse, RegisterVersionMismatch},
		{SPJoinRoomResponse, JoinRoomFull},
		{SPJoinRoomResponse, JoinRoomAlreadyIn},
		{SPCreateRoomResponse, CreateRoomInvalidParams},
		{SPRestoreSessionResult, RestoreSessionOK},
	}
	for _, c := range cases {
		if !IsKnownStatus(c.op, c.code) {
			t.Fatalf("expected known status: %s/%d", c.op, c.code)
		}
	}
	if IsKnownStatus(SPLoginResponse, 9) {
		t.Fatalf("expected unknown login status rejected")
	}
	if IsKnownStatus(SPNewWorld, 0) {
		t.Fatalf("expected non-response opcode rejected")
	}
}

func TestStatusText(t *testing.T) {
	if got := StatusText(SPJoinRoomResponse, JoinRoomFull); got != "room is full" {
		t.Fatalf("join full: got %q", got)
	}
	if got := StatusText(SPRestoreSessionResult, 3); got != "session expired" {
		t.Fatalf("restore failure: got %q", got)
	}
	if got := StatusText(SPCreateRoomResponse, 200); got != "unknown status" {
		t.Fatalf("unknown: got %q", got)
	}
}
