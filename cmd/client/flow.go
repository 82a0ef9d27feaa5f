package main

import (
	"errors"
	"fmt"
	"io"
	"log"

	"agarclient/internal/config"
	"agarclient/internal/protocol"
	"agarclient/internal/sim/netsync"
	"agarclient/internal/transport/tcp"
)

var (
	errKicked    = errors.New("kicked by server")
	errBadServer = errors.New("server address rejected")
)

// commands is the part of the synchronizer the session flow drives.
type commands interface {
	Login(user, pass string) error
	Register(user, pass string) error
	JoinRoom(id int32, spectator bool) error
	CreateRoom(name string, capacity, mapSize int32) error
	RequestWorld(reinit bool) error
}

type action int

const (
	actNone action = iota
	actRespawn
	actRestart
)

// flow walks a fresh connection through register, login, room entry and
// the first world request. Reconnects after a successful login are left to
// the connection manager, which restores the session on its own.
type flow struct {
	cmd   commands
	acct  config.AccountConfig
	lobby config.LobbyConfig
	log   *log.Logger

	prev       tcp.State
	registered bool
	loggedIn   bool
	inRoom     bool
}

func newFlow(cmd commands, acct config.AccountConfig, lobby config.LobbyConfig, logger *log.Logger) *flow {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &flow{cmd: cmd, acct: acct, lobby: lobby, log: logger}
}

func (f *flow) onState(st tcp.State) (action, error) {
	prev := f.prev
	f.prev = st
	switch st {
	case tcp.StateConnected:
		if prev == tcp.StateDisconnectedRetry && f.loggedIn {
			f.log.Printf("reconnected, session restore pending")
			return actNone, nil
		}
		f.loggedIn = false
		f.inRoom = false
		if f.acct.Register && !f.registered {
			return actNone, f.cmd.Register(f.acct.Username, f.acct.Password)
		}
		return actNone, f.cmd.Login(f.acct.Username, f.acct.Password)
	case tcp.StateConnectionFailedServerBad:
		return actNone, errBadServer
	case tcp.StateConnectionFailed:
		return actRestart, nil
	}
	return actNone, nil
}

func (f *flow) onEvent(ev netsync.Event) (action, error) {
	switch ev.Type {
	case netsync.EventRegister:
		f.registered = true
		if !ev.OK && ev.Status != protocol.RegisterNameTaken {
			return actNone, fmt.Errorf("register: %s", ev.Message)
		}
		return actNone, f.cmd.Login(f.acct.Username, f.acct.Password)
	case netsync.EventLogin:
		if !ev.OK {
			return actNone, fmt.Errorf("login: %s", ev.Message)
		}
		f.loggedIn = true
		if f.lobby.RoomID >= 0 {
			return actNone, f.cmd.JoinRoom(f.lobby.RoomID, f.lobby.Spectator)
		}
		return actNone, f.cmd.CreateRoom(f.lobby.CreateName, f.lobby.CreateCapacity, f.lobby.CreateMapSize)
	case netsync.EventJoinRoom, netsync.EventCreateRoom:
		if !ev.OK && !(ev.Type == netsync.EventJoinRoom && ev.Status == protocol.JoinRoomAlreadyIn) {
			return actNone, fmt.Errorf("%s: %s", ev.Type, ev.Message)
		}
		f.inRoom = true
		return actNone, f.cmd.RequestWorld(false)
	case netsync.EventWorldLoaded:
		if ev.Dead && !f.lobby.Spectator {
			return actRespawn, nil
		}
	case netsync.EventLocalDeath:
		if !f.lobby.Spectator {
			return actRespawn, nil
		}
	case netsync.EventSessionExpired:
		f.loggedIn = false
		return actRestart, nil
	case netsync.EventKicked:
		return actNone, errKicked
	}
	return actNone, nil
}
