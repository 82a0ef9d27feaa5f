package netsync

import (
	"io"
	"log"
	"sync"

	"agarclient/internal/protocol"
	"agarclient/internal/sim/world"
	"agarclient/internal/transport/tcp"
)

// Conn is the part of the connection manager the synchronizer drives.
type Conn interface {
	Send(*protocol.Packet) error
	SetSessionToken(token string)
	Disconnect()
}

// Synchronizer applies inbound packets to the world store and issues the
// client commands. It keeps no world state of its own.
type Synchronizer struct {
	store *world.Store
	conn  Conn
	log   *log.Logger

	mu      sync.Mutex
	onEvent []func(Event)
	reinit  bool
}

func New(store *world.Store, conn Conn, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Synchronizer{store: store, conn: conn, log: logger}
}

// OnEvent registers a handler for events surfaced to the UI side.
func (s *Synchronizer) OnEvent(h func(Event)) {
	s.mu.Lock()
	s.onEvent = append(s.onEvent, h)
	s.mu.Unlock()
}

func (s *Synchronizer) emit(ev Event) {
	s.mu.Lock()
	hs := s.onEvent
	s.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// HandleState reacts to connection state changes. An explicit disconnect
// ends the session, so the world is wiped.
func (s *Synchronizer) HandleState(st tcp.State) {
	if st == tcp.StateDisconnected {
		s.store.WipeAll()
	}
}

// HandlePacket applies one inbound packet. A returned error means the
// payload could not be decoded.
func (s *Synchronizer) HandlePacket(p *protocol.Packet) error {
	switch p.Opcode {
	case protocol.SPNewWorld, protocol.SPUpdateWorld:
		return s.handleWorld(p)
	case protocol.SPMoveHeartbeat:
		return s.handleMoveHeartbeat(p)
	case protocol.SPMoveDirection:
		return s.handleMoveDirection(p)
	case protocol.SPMoveStart:
		return s.handleMoveStart(p)
	case protocol.SPMoveStop:
		return s.handleMoveStop(p)
	case protocol.SPNewPlayer:
		return s.handleNewPlayer(p)
	case protocol.SPNewObject:
		return s.handleNewObject(p)
	case protocol.SPObjectEaten:
		return s.handleObjectEaten(p)
	case protocol.SPPlayerEaten:
		return s.handlePlayerEaten(p)
	case protocol.SPDestroyObject:
		return s.handleDestroy(p)
	case protocol.SPPlayerExit:
		return s.handlePlayerExit(p)
	case protocol.SPRestoreSessionResult:
		return s.handleRestoreSession(p)
	case protocol.SPLoginResponse:
		return s.handleLogin(p)
	case protocol.SPRegisterResponse:
		return s.handleStatus(p, EventRegister)
	case protocol.SPRoomListResponse:
		return s.handleRoomList(p)
	case protocol.SPJoinRoomResponse:
		return s.handleRoomResponse(p, EventJoinRoom)
	case protocol.SPCreateRoomResponse:
		return s.handleRoomResponse(p, EventCreateRoom)
	case protocol.SPPing:
		return s.conn.Send(protocol.NewPacket(protocol.CPPong))
	case protocol.SPPingPong:
		v, err := protocol.DecodeInt32(p)
		if err != nil {
			return err
		}
		s.emit(Event{Type: EventLatency, LatencyMs: v})
		return nil
	case protocol.SPKick:
		s.log.Printf("kicked by server")
		s.conn.Disconnect()
		s.emit(Event{Type: EventKicked})
		return nil
	default:
		s.log.Printf("ignoring %s (%d bytes)", p.Opcode, p.Len())
		return nil
	}
}

// isLocal reports whether id is the local player. Server echoes of our own
// movement are ignored; local position is predicted.
func (s *Synchronizer) isLocal(id int32) bool {
	lid, ok := s.store.LocalID()
	return ok && lid == id
}

func playerEntity(d protocol.PlayerDesc) world.Entity {
	return world.Entity{
		ID:     d.ID,
		Kind:   world.KindRemotePlayer,
		X:      d.X,
		Y:      d.Y,
		Param:  d.Color,
		Name:   d.Name,
		Size:   d.Size,
		Moving: d.Moving,
		Angle:  d.Angle,
	}
}

func objectEntity(d protocol.ObjectDesc) (world.Entity, bool) {
	k, ok := world.ObjectKind(d.Type)
	if !ok {
		return world.Entity{}, false
	}
	return world.Entity{ID: d.ID, Kind: k, X: d.X, Y: d.Y, Param: d.Param}, true
}

func (s *Synchronizer) handleWorld(p *protocol.Packet) error {
	w, err := protocol.DecodeWorld(p)
	if err != nil {
		return err
	}
	if w.Full {
		s.store.WipeAll()
		s.store.SetMapSize(w.MapWidth, w.MapHeight)
		s.store.SetLocal(playerEntity(w.Self))
		if w.Dead {
			s.store.SetLocalDead(true)
		}
	}
	for _, d := range w.Players {
		if s.isLocal(d.ID) {
			continue
		}
		s.store.PutPlayer(playerEntity(d))
	}
	for _, d := range w.Objects {
		e, ok := objectEntity(d)
		if !ok {
			s.log.Printf("object %d: unknown type %d", d.ID, d.Type)
			continue
		}
		s.store.PutObject(e)
	}
	if w.Full {
		s.mu.Lock()
		reinit := s.reinit
		s.reinit = false
		s.mu.Unlock()
		s.emit(Event{Type: EventWorldLoaded, Reinit: reinit, Dead: w.Dead})
	}
	return nil
}

func (s *Synchronizer) handleMoveHeartbeat(p *protocol.Packet) error {
	m, err := protocol.DecodePlayerPos(p)
	if err != nil || s.isLocal(m.ID) {
		return err
	}
	s.store.Move(world.PlayerRef(m.ID), m.X, m.Y)
	return nil
}

func (s *Synchronizer) handleMoveDirection(p *protocol.Packet) error {
	m, err := protocol.DecodePlayerAngle(p)
	if err != nil || s.isLocal(m.ID) {
		return err
	}
	s.store.SetAngle(world.PlayerRef(m.ID), m.Angle)
	return nil
}

func (s *Synchronizer) handleMoveStart(p *protocol.Packet) error {
	m, err := protocol.DecodePlayerAngle(p)
	if err != nil || s.isLocal(m.ID) {
		return err
	}
	ref := world.PlayerRef(m.ID)
	s.store.SetAngle(ref, m.Angle)
	s.store.SetMoving(ref, true)
	return nil
}

func (s *Synchronizer) handleMoveStop(p *protocol.Packet) error {
	m, err := protocol.DecodePlayerPos(p)
	if err != nil || s.isLocal(m.ID) {
		return err
	}
	ref := world.PlayerRef(m.ID)
	if s.store.Move(ref, m.X, m.Y) {
		s.store.SetMoving(ref, false)
	}
	return nil
}

func (s *Synchronizer) handleNewPlayer(p *protocol.Packet) error {
	d, err := protocol.DecodePlayerDesc(p)
	if err != nil || s.isLocal(d.ID) {
		return err
	}
	s.store.PutPlayer(playerEntity(d))
	return nil
}

func (s *Synchronizer) handleNewObject(p *protocol.Packet) error {
	d, err := protocol.DecodeObjectDesc(p)
	if err != nil {
		return err
	}
	e, ok := objectEntity(d)
	if !ok {
		s.log.Printf("object %d: unknown type %d", d.ID, d.Type)
		return nil
	}
	s.store.PutObject(e)
	return nil
}

// handleObjectEaten credits the eater. The object itself stays until a
// destroy message or window eviction removes it.
func (s *Synchronizer) handleObjectEaten(p *protocol.Packet) error {
	m, err := protocol.DecodeEaten(p)
	if err != nil {
		return err
	}
	if !s.store.GrowPlayer(world.PlayerRef(m.Eater), m.SizeDelta) {
		s.log.Printf("object %d eaten by unknown player %d", m.Subject, m.Eater)
	}
	return nil
}

func (s *Synchronizer) handlePlayerEaten(p *protocol.Packet) error {
	m, err := protocol.DecodeEaten(p)
	if err != nil {
		return err
	}
	if s.isLocal(m.Subject) {
		s.store.SetLocalDead(true)
		s.emit(Event{Type: EventLocalDeath, PlayerID: m.Eater})
		return nil
	}
	s.store.Remove(world.PlayerRef(m.Subject))
	s.store.GrowPlayer(world.PlayerRef(m.Eater), m.SizeDelta)
	return nil
}

func (s *Synchronizer) handleDestroy(p *protocol.Packet) error {
	m, err := protocol.DecodeDestroy(p)
	if err != nil {
		return err
	}
	ref, ok := world.RefForFamily(m.Family, m.ID)
	if !ok {
		s.log.Printf("destroy %d: unknown family %d", m.ID, m.Family)
		return nil
	}
	if ref.NS == world.Players && s.isLocal(m.ID) {
		return nil
	}
	s.store.Remove(ref)
	return nil
}

func (s *Synchronizer) handlePlayerExit(p *protocol.Packet) error {
	id, err := protocol.DecodeInt32(p)
	if err != nil || s.isLocal(id) {
		return err
	}
	s.store.Remove(world.PlayerRef(id))
	return nil
}

func (s *Synchronizer) handleRestoreSession(p *protocol.Packet) error {
	st, err := protocol.DecodeStatus(p)
	if err != nil {
		return err
	}
	if st != protocol.RestoreSessionOK {
		s.log.Printf("session restore rejected: status %d", st)
		s.conn.Disconnect()
		s.emit(statusEvent(EventSessionExpired, p.Opcode, st))
		return nil
	}
	s.emit(statusEvent(EventSessionRestored, p.Opcode, st))
	return s.RequestWorld(true)
}

func (s *Synchronizer) handleLogin(p *protocol.Packet) error {
	m, err := protocol.DecodeLoginResponse(p)
	if err != nil {
		return err
	}
	if m.Status == protocol.LoginOK && m.SessionToken != "" {
		s.conn.SetSessionToken(m.SessionToken)
	}
	s.emit(statusEvent(EventLogin, p.Opcode, m.Status))
	return nil
}

func (s *Synchronizer) handleStatus(p *protocol.Packet, typ EventType) error {
	st, err := protocol.DecodeStatus(p)
	if err != nil {
		return err
	}
	s.emit(statusEvent(typ, p.Opcode, st))
	return nil
}

func (s *Synchronizer) handleRoomList(p *protocol.Packet) error {
	m, err := protocol.DecodeRoomList(p)
	if err != nil {
		return err
	}
	s.emit(Event{Type: EventRoomList, OK: true, Rooms: m.Rooms})
	return nil
}

func (s *Synchronizer) handleRoomResponse(p *protocol.Packet, typ EventType) error {
	m, err := protocol.DecodeRoomResponse(p)
	if err != nil {
		return err
	}
	ev := statusEvent(typ, p.Opcode, m.Status)
	ev.ChatChannel = m.ChatChannel
	s.emit(ev)
	return nil
}
