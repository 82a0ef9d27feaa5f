package protocol

import "fmt"

// Field order of every message below is part of the wire contract.

// CP_LOGIN / CP_REGISTER (client -> server)
type Credentials struct {
	Username string
	Password string
	Version  int32
}

func (m Credentials) Encode(op Opcode) *Packet {
	return NewPacket(op).PutString(m.Username).PutString(m.Password).PutInt32(m.Version)
}

func DecodeCredentials(p *Packet) (Credentials, error) {
	r := p.Reader()
	m := Credentials{Username: r.CString(), Password: r.CString(), Version: r.Int32()}
	return m, r.Err()
}

// CP_ROOM_LIST (client -> server)
type RoomListRequest struct {
	GameType uint8
}

func (m RoomListRequest) Encode() *Packet {
	return NewPacket(CPRoomList).PutUint8(m.GameType)
}

// CP_JOIN_ROOM (client -> server)
type JoinRoom struct {
	RoomID    int32
	Spectator bool
}

func (m JoinRoom) Encode() *Packet {
	return NewPacket(CPJoinRoom).PutInt32(m.RoomID).PutBool(m.Spectator)
}

// CP_CREATE_ROOM (client -> server)
type CreateRoom struct {
	Name     string
	Capacity int32
	MapSize  int32
}

func (m CreateRoom) Encode() *Packet {
	return NewPacket(CPCreateRoom).PutString(m.Name).PutInt32(m.Capacity).PutInt32(m.MapSize)
}

// CP_MOVE_START / CP_MOVE_STOP (client -> server)
type MoveState struct {
	X, Y  float32
	Angle float32
}

func (m MoveState) Encode(moving bool) *Packet {
	op := CPMoveStop
	if moving {
		op = CPMoveStart
	}
	return NewPacket(op).PutFloat32(m.X).PutFloat32(m.Y).PutFloat32(m.Angle)
}

func DecodeMoveState(p *Packet) (MoveState, error) {
	r := p.Reader()
	m := MoveState{X: r.Float32(), Y: r.Float32(), Angle: r.Float32()}
	return m, r.Err()
}

// CP_MOVE_DIRECTION (client -> server)
func EncodeMoveDirection(angle float32) *Packet {
	return NewPacket(CPMoveDirection).PutFloat32(angle)
}

// CP_MOVE_HEARTBEAT (client -> server)
func EncodeMoveHeartbeat(x, y float32) *Packet {
	return NewPacket(CPMoveHeartbeat).PutFloat32(x).PutFloat32(y)
}

// CP_EAT_REQUEST (client -> server)
type EatRequest struct {
	Family uint8
	ID     int32
}

func (m EatRequest) Encode() *Packet {
	return NewPacket(CPEatRequest).PutUint8(m.Family).PutInt32(m.ID)
}

func DecodeEatRequest(p *Packet) (EatRequest, error) {
	r := p.Reader()
	m := EatRequest{Family: r.Uint8(), ID: r.Int32()}
	return m, r.Err()
}

// CP_RESTORE_SESSION (client -> server)
func EncodeRestoreSession(token string) *Packet {
	return NewPacket(CPRestoreSession).PutString(token)
}

func DecodeRestoreSession(p *Packet) (string, error) {
	r := p.Reader()
	t := r.CString()
	return t, r.Err()
}

// LoginResponse (SP_LOGIN_RESPONSE). The session token is present only when
// Status is LoginOK.
type LoginResponse struct {
	Status       uint8
	SessionToken string
}

func (m LoginResponse) Encode() *Packet {
	p := NewPacket(SPLoginResponse).PutUint8(m.Status)
	if m.Status == LoginOK {
		p.PutString(m.SessionToken)
	}
	return p
}

func DecodeLoginResponse(p *Packet) (LoginResponse, error) {
	r := p.Reader()
	m := LoginResponse{Status: r.Uint8()}
	if m.Status == LoginOK && r.Err() == nil && r.Remaining() > 0 {
		m.SessionToken = r.CString()
	}
	return m, r.Err()
}

// Status-only responses: SP_REGISTER_RESPONSE, SP_RESTORE_SESSION_RESPONSE.
func EncodeStatus(op Opcode, status uint8) *Packet {
	return NewPacket(op).PutUint8(status)
}

func DecodeStatus(p *Packet) (uint8, error) {
	r := p.Reader()
	s := r.Uint8()
	return s, r.Err()
}

// SP_JOIN_ROOM_RESPONSE / SP_CREATE_ROOM_RESPONSE
type RoomResponse struct {
	Status      uint8
	ChatChannel int32
}

func (m RoomResponse) Encode(op Opcode) *Packet {
	return NewPacket(op).PutUint8(m.Status).PutInt32(m.ChatChannel)
}

func DecodeRoomResponse(p *Packet) (RoomResponse, error) {
	r := p.Reader()
	m := RoomResponse{Status: r.Uint8(), ChatChannel: r.Int32()}
	return m, r.Err()
}

type RoomInfo struct {
	ID       int32
	GameType uint8
	Players  uint8
	Capacity uint8
	Name     string
}

// SP_ROOM_LIST_RESPONSE
type RoomList struct {
	Rooms []RoomInfo
}

func (m RoomList) Encode() *Packet {
	p := NewPacket(SPRoomListResponse).PutInt32(int32(len(m.Rooms)))
	for _, rm := range m.Rooms {
		p.PutInt32(rm.ID).PutUint8(rm.GameType).PutUint8(rm.Players).PutUint8(rm.Capacity).PutString(rm.Name)
	}
	return p
}

func DecodeRoomList(p *Packet) (RoomList, error) {
	r := p.Reader()
	n := r.Count(8)
	m := RoomList{Rooms: make([]RoomInfo, 0, n)}
	for i := 0; i < n && r.Err() == nil; i++ {
		m.Rooms = append(m.Rooms, RoomInfo{
			ID:       r.Int32(),
			GameType: r.Uint8(),
			Players:  r.Uint8(),
			Capacity: r.Uint8(),
			Name:     r.CString(),
		})
	}
	return m, r.Err()
}

// PlayerDesc fully describes a player (SP_NEW_PLAYER and world lists).
type PlayerDesc struct {
	ID     int32
	Name   string
	Size   int32
	X, Y   float32
	Color  int32
	Moving bool
	Angle  float32
}

// Minimum encoded size: id, empty name, size, x, y, color, moving, angle.
const minPlayerDesc = 4 + 1 + 4 + 4 + 4 + 4 + 1 + 4

func (d PlayerDesc) put(p *Packet) {
	p.PutInt32(d.ID).PutString(d.Name).PutInt32(d.Size).
		PutFloat32(d.X).PutFloat32(d.Y).PutInt32(d.Color).
		PutBool(d.Moving).PutFloat32(d.Angle)
}

func readPlayerDesc(r *Reader) PlayerDesc {
	return PlayerDesc{
		ID:     r.Int32(),
		Name:   r.CString(),
		Size:   r.Int32(),
		X:      r.Float32(),
		Y:      r.Float32(),
		Color:  r.Int32(),
		Moving: r.Bool(),
		Angle:  r.Float32(),
	}
}

func (d PlayerDesc) Encode() *Packet {
	p := NewPacket(SPNewPlayer)
	d.put(p)
	return p
}

func DecodePlayerDesc(p *Packet) (PlayerDesc, error) {
	r := p.Reader()
	d := readPlayerDesc(r)
	return d, r.Err()
}

// ObjectDesc fully describes a world object (SP_NEW_OBJECT and world lists).
type ObjectDesc struct {
	ID    int32
	X, Y  float32
	Type  uint8
	Param int32
}

const minObjectDesc = 4 + 4 + 4 + 1 + 4

func (d ObjectDesc) put(p *Packet) {
	p.PutInt32(d.ID).PutFloat32(d.X).PutFloat32(d.Y).PutUint8(d.Type).PutInt32(d.Param)
}

func readObjectDesc(r *Reader) ObjectDesc {
	return ObjectDesc{
		ID:    r.Int32(),
		X:     r.Float32(),
		Y:     r.Float32(),
		Type:  r.Uint8(),
		Param: r.Int32(),
	}
}

func (d ObjectDesc) Encode() *Packet {
	p := NewPacket(SPNewObject)
	d.put(p)
	return p
}

func DecodeObjectDesc(p *Packet) (ObjectDesc, error) {
	r := p.Reader()
	d := readObjectDesc(r)
	return d, r.Err()
}

// World is SP_NEW_WORLD (Full) or SP_UPDATE_WORLD. Only the full variant
// carries map size and the local player; Dead is the optional trailing flag of
// later protocol revisions.
type World struct {
	Full      bool
	MapWidth  float32
	MapHeight float32
	Self      PlayerDesc
	Dead      bool
	Players   []PlayerDesc
	Objects   []ObjectDesc
}

func (w World) Encode() *Packet {
	op := SPUpdateWorld
	if w.Full {
		op = SPNewWorld
	}
	p := NewPacket(op)
	if w.Full {
		p.PutFloat32(w.MapWidth).PutFloat32(w.MapHeight)
		w.Self.put(p)
	}
	p.PutInt32(int32(len(w.Players)))
	for _, d := range w.Players {
		d.put(p)
	}
	p.PutInt32(int32(len(w.Objects)))
	for _, d := range w.Objects {
		d.put(p)
	}
	if w.Full && w.Dead {
		p.PutBool(true)
	}
	return p
}

func DecodeWorld(p *Packet) (World, error) {
	var w World
	switch p.Opcode {
	case SPNewWorld:
		w.Full = true
	case SPUpdateWorld:
	default:
		return w, fmt.Errorf("decode world: unexpected opcode %s", p.Opcode)
	}
	r := p.Reader()
	if w.Full {
		w.MapWidth = r.Float32()
		w.MapHeight = r.Float32()
		w.Self = readPlayerDesc(r)
	}
	n := r.Count(minPlayerDesc)
	w.Players = make([]PlayerDesc, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		w.Players = append(w.Players, readPlayerDesc(r))
	}
	n = r.Count(minObjectDesc)
	w.Objects = make([]ObjectDesc, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		w.Objects = append(w.Objects, readObjectDesc(r))
	}
	if w.Full && r.Err() == nil && r.Remaining() > 0 {
		w.Dead = r.Bool()
	}
	return w, r.Err()
}

// PlayerPos is SP_MOVE_HEARTBEAT and SP_MOVE_STOP.
type PlayerPos struct {
	ID   int32
	X, Y float32
}

func (m PlayerPos) Encode(op Opcode) *Packet {
	return NewPacket(op).PutInt32(m.ID).PutFloat32(m.X).PutFloat32(m.Y)
}

func DecodePlayerPos(p *Packet) (PlayerPos, error) {
	r := p.Reader()
	m := PlayerPos{ID: r.Int32(), X: r.Float32(), Y: r.Float32()}
	return m, r.Err()
}

// PlayerAngle is SP_MOVE_DIRECTION and SP_MOVE_START.
type PlayerAngle struct {
	ID    int32
	Angle float32
}

func (m PlayerAngle) Encode(op Opcode) *Packet {
	return NewPacket(op).PutInt32(m.ID).PutFloat32(m.Angle)
}

func DecodePlayerAngle(p *Packet) (PlayerAngle, error) {
	r := p.Reader()
	m := PlayerAngle{ID: r.Int32(), Angle: r.Float32()}
	return m, r.Err()
}

// Eaten is SP_OBJECT_EATEN (Subject is an object id) and SP_PLAYER_EATEN
// (Subject is the victim player id).
type Eaten struct {
	Subject   int32
	Eater     int32
	SizeDelta int32
}

func (m Eaten) Encode(op Opcode) *Packet {
	return NewPacket(op).PutInt32(m.Subject).PutInt32(m.Eater).PutInt32(m.SizeDelta)
}

func DecodeEaten(p *Packet) (Eaten, error) {
	r := p.Reader()
	m := Eaten{Subject: r.Int32(), Eater: r.Int32(), SizeDelta: r.Int32()}
	return m, r.Err()
}

// SP_DESTROY_OBJECT
type Destroy struct {
	ID     int32
	Family uint8
	Reason uint8
}

func (m Destroy) Encode() *Packet {
	return NewPacket(SPDestroyObject).PutInt32(m.ID).PutUint8(m.Family).PutUint8(m.Reason)
}

func DecodeDestroy(p *Packet) (Destroy, error) {
	r := p.Reader()
	m := Destroy{ID: r.Int32(), Family: r.Uint8(), Reason: r.Uint8()}
	return m, r.Err()
}

// SP_PLAYER_EXIT carries a player id; SP_PING_PONG carries latency in ms.
func EncodeInt32(op Opcode, v int32) *Packet {
	return NewPacket(op).PutInt32(v)
}

func DecodeInt32(p *Packet) (int32, error) {
	r := p.Reader()
	v := r.Int32()
	return v, r.Err()
}
