package netsync

import (
	"agarclient/internal/protocol"
	"agarclient/internal/sim/world"
)

func (s *Synchronizer) Login(user, pass string) error {
	return s.conn.Send(protocol.Credentials{Username: user, Password: pass, Version: protocol.GameVersion}.Encode(protocol.CPLogin))
}

func (s *Synchronizer) Register(user, pass string) error {
	return s.conn.Send(protocol.Credentials{Username: user, Password: pass, Version: protocol.GameVersion}.Encode(protocol.CPRegister))
}

func (s *Synchronizer) RequestRooms(gameType uint8) error {
	return s.conn.Send(protocol.RoomListRequest{GameType: gameType}.Encode())
}

func (s *Synchronizer) JoinRoom(id int32, spectator bool) error {
	return s.conn.Send(protocol.JoinRoom{RoomID: id, Spectator: spectator}.Encode())
}

func (s *Synchronizer) CreateRoom(name string, capacity, mapSize int32) error {
	return s.conn.Send(protocol.CreateRoom{Name: name, Capacity: capacity, MapSize: mapSize}.Encode())
}

// RequestWorld asks for a full snapshot. reinit marks the resulting
// WORLD_LOADED event as a resumed session.
func (s *Synchronizer) RequestWorld(reinit bool) error {
	s.mu.Lock()
	s.reinit = reinit
	s.mu.Unlock()
	return s.conn.Send(protocol.NewPacket(protocol.CPWorldRequest))
}

// Leave exits the current room and clears the world.
func (s *Synchronizer) Leave() error {
	err := s.conn.Send(protocol.NewPacket(protocol.CPPlayerExit))
	s.store.WipeAll()
	return err
}

// Logout ends the session without reconnecting.
func (s *Synchronizer) Logout() {
	s.conn.SetSessionToken("")
	s.conn.Disconnect()
	s.store.WipeAll()
}

// SendEat requests to eat the referenced entity.
func (s *Synchronizer) SendEat(ref world.Ref) error {
	return s.conn.Send(protocol.EatRequest{Family: ref.Family(), ID: ref.ID}.Encode())
}
