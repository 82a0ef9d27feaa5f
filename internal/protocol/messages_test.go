package protocol

import (
	"errors"
	"reflect"
	"testing"
)

// reframe pushes p through the wire encoding so decoders see exactly what a
// peer would send.
func reframe(t *testing.T, p *Packet) *Packet {
	t.Helper()
	b, err := p.Bytes()
	if err != nil {
		t.Fatalf("encode %s: %v", p.Opcode, err)
	}
	return FromPayload(p.Opcode, b[HeaderSize:])
}

func TestWorld_FullSnapshot(t *testing.T) {
	in := World{
		Full:      true,
		MapWidth:  100,
		MapHeight: 100,
		Self:      PlayerDesc{ID: 1, Name: "me", Size: 30, X: 50, Y: 50, Color: 0xff00ff, Angle: 0.5},
		Players: []PlayerDesc{
			{ID: 2, Name: "bob", Size: 40, X: 52, Y: 48, Moving: true, Angle: -1},
			{ID: 3, Name: "", Size: 12, X: 45, Y: 55},
		},
		Objects: []ObjectDesc{
			{ID: 10, X: 51, Y: 51, Type: ObjectTypeIdleFood},
			{ID: 11, X: 49, Y: 47, Type: ObjectTypeBonusFood, Param: 2},
			{ID: 12, X: 55, Y: 50, Type: ObjectTypeTrap, Param: -5},
		},
	}
	out, err := DecodeWorld(reframe(t, in.Encode()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestWorld_DeadFlagOptional(t *testing.T) {
	in := World{Full: true, MapWidth: 10, MapHeight: 10, Self: PlayerDesc{ID: 4}, Dead: true}
	p := in.Encode()
	out, err := DecodeWorld(reframe(t, p))
	if err != nil || !out.Dead {
		t.Fatalf("dead flag: %+v %v", out, err)
	}

	trimmed := FromPayload(SPNewWorld, p.Payload()[:p.Len()-1])
	out, err = DecodeWorld(trimmed)
	if err != nil || out.Dead {
		t.Fatalf("without flag: %+v %v", out, err)
	}
}

func TestWorld_Update(t *testing.T) {
	in := World{
		Players: []PlayerDesc{{ID: 9, Name: "x", Size: 20}},
		Objects: []ObjectDesc{},
	}
	p := in.Encode()
	if p.Opcode != SPUpdateWorld {
		t.Fatalf("opcode: %s", p.Opcode)
	}
	out, err := DecodeWorld(reframe(t, p))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Full || len(out.Players) != 1 || out.Players[0].Name != "x" || len(out.Objects) != 0 {
		t.Fatalf("got %+v", out)
	}
}

func TestWorld_WrongOpcode(t *testing.T) {
	if _, err := DecodeWorld(NewPacket(SPNewPlayer)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWorld_TruncatedList(t *testing.T) {
	p := NewPacket(SPUpdateWorld).PutInt32(2).PutInt32(1)
	if _, err := DecodeWorld(p); !errors.Is(err, ErrBadCount) {
		t.Fatalf("expected ErrBadCount, got %v", err)
	}
}

func TestLoginResponse(t *testing.T) {
	out, err := DecodeLoginResponse(reframe(t, LoginResponse{Status: LoginOK, SessionToken: "tok-1"}.Encode()))
	if err != nil || out.SessionToken != "tok-1" {
		t.Fatalf("ok: %+v %v", out, err)
	}

	// Older servers send the status byte alone.
	out, err = DecodeLoginResponse(FromPayload(SPLoginResponse, []byte{0}))
	if err != nil || out.Status != LoginOK || out.SessionToken != "" {
		t.Fatalf("bare ok: %+v %v", out, err)
	}

	p := LoginResponse{Status: LoginBadPassword, SessionToken: "ignored"}.Encode()
	if p.Len() != 1 {
		t.Fatalf("failure carries token: len=%d", p.Len())
	}
}

func TestRoomList(t *testing.T) {
	in := RoomList{Rooms: []RoomInfo{
		{ID: 1, GameType: GameTypeFreeForAll, Players: 3, Capacity: 10, Name: "lobby"},
		{ID: 7, GameType: GameTypeRated, Players: 0, Capacity: 2, Name: "duel"},
	}}
	out, err := DecodeRoomList(reframe(t, in.Encode()))
	if err != nil || !reflect.DeepEqual(in, out) {
		t.Fatalf("got %+v %v", out, err)
	}
}

func TestClientMessages(t *testing.T) {
	ms, err := DecodeMoveState(reframe(t, MoveState{X: 1, Y: 2, Angle: 3}.Encode(true)))
	if err != nil || ms != (MoveState{X: 1, Y: 2, Angle: 3}) {
		t.Fatalf("move state: %+v %v", ms, err)
	}
	if (MoveState{}).Encode(false).Opcode != CPMoveStop {
		t.Fatalf("move stop opcode")
	}

	er, err := DecodeEatRequest(reframe(t, EatRequest{Family: FamilyObject, ID: 42}.Encode()))
	if err != nil || er.Family != FamilyObject || er.ID != 42 {
		t.Fatalf("eat request: %+v %v", er, err)
	}

	tok, err := DecodeRestoreSession(reframe(t, EncodeRestoreSession("abc")))
	if err != nil || tok != "abc" {
		t.Fatalf("restore: %q %v", tok, err)
	}

	cr, err := DecodeCredentials(reframe(t, Credentials{Username: "u", Password: "p", Version: GameVersion}.Encode(CPRegister)))
	if err != nil || cr.Username != "u" || cr.Password != "p" || cr.Version != GameVersion {
		t.Fatalf("credentials: %+v %v", cr, err)
	}

	if p := (JoinRoom{RoomID: 5, Spectator: true}).Encode(); p.Len() != 5 || p.Payload()[4] != 1 {
		t.Fatalf("join room: %x", p.Payload())
	}
	if p := (CreateRoom{Name: "r", Capacity: 4, MapSize: 100}).Encode(); p.Len() != 2+4+4 {
		t.Fatalf("create room: %x", p.Payload())
	}
	if p := (RoomListRequest{GameType: GameTypeRated}).Encode(); p.Len() != 1 {
		t.Fatalf("room list: %x", p.Payload())
	}
	if p := EncodeMoveDirection(1); p.Opcode != CPMoveDirection || p.Len() != 4 {
		t.Fatalf("direction: %s %d", p.Opcode, p.Len())
	}
}

func TestServerEvents(t *testing.T) {
	pp, err := DecodePlayerPos(reframe(t, PlayerPos{ID: 3, X: 4, Y: 5}.Encode(SPMoveStop)))
	if err != nil || pp != (PlayerPos{ID: 3, X: 4, Y: 5}) {
		t.Fatalf("pos: %+v %v", pp, err)
	}
	pa, err := DecodePlayerAngle(reframe(t, PlayerAngle{ID: 3, Angle: -0.25}.Encode(SPMoveDirection)))
	if err != nil || pa != (PlayerAngle{ID: 3, Angle: -0.25}) {
		t.Fatalf("angle: %+v %v", pa, err)
	}
	ea, err := DecodeEaten(reframe(t, Eaten{Subject: 10, Eater: 1, SizeDelta: 2}.Encode(SPObjectEaten)))
	if err != nil || ea != (Eaten{Subject: 10, Eater: 1, SizeDelta: 2}) {
		t.Fatalf("eaten: %+v %v", ea, err)
	}
	de, err := DecodeDestroy(reframe(t, Destroy{ID: 8, Family: FamilyPlayer, Reason: 1}.Encode()))
	if err != nil || de != (Destroy{ID: 8, Family: FamilyPlayer, Reason: 1}) {
		t.Fatalf("destroy: %+v %v", de, err)
	}
	rr, err := DecodeRoomResponse(reframe(t, RoomResponse{Status: JoinRoomOK, ChatChannel: 77}.Encode(SPJoinRoomResponse)))
	if err != nil || rr.ChatChannel != 77 {
		t.Fatalf("room response: %+v %v", rr, err)
	}
	st, err := DecodeStatus(reframe(t, EncodeStatus(SPRegisterResponse, RegisterNameTaken)))
	if err != nil || st != RegisterNameTaken {
		t.Fatalf("status: %d %v", st, err)
	}
	v, err := DecodeInt32(reframe(t, EncodeInt32(SPPingPong, 120)))
	if err != nil || v != 120 {
		t.Fatalf("int32: %d %v", v, err)
	}
	pd, err := DecodePlayerDesc(reframe(t, PlayerDesc{ID: 6, Name: "n", Size: 30}.Encode()))
	if err != nil || pd.ID != 6 || pd.Name != "n" {
		t.Fatalf("player desc: %+v %v", pd, err)
	}
	od, err := DecodeObjectDesc(reframe(t, ObjectDesc{ID: 6, Type: ObjectTypeTrap}.Encode()))
	if err != nil || od.Type != ObjectTypeTrap {
		t.Fatalf("object desc: %+v %v", od, err)
	}
}
