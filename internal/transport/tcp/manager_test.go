package tcp

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"agarclient/internal/protocol"
)

const waitTimeout = 5 * time.Second

type fakeServer struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, conns: make(chan net.Conn, 16)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			s.conns <- c
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) next(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(waitTimeout):
		t.Fatalf("no connection accepted")
		return nil
	}
}

func readFrame(t *testing.T, c net.Conn) *protocol.Packet {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(waitTimeout))
	p, err := protocol.ReadFrame(c)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return p
}

func recordStates(m *Manager) <-chan State {
	ch := make(chan State, 64)
	m.OnState(func(s State) {
		select {
		case ch <- s:
		default:
		}
	})
	return ch
}

func waitState(t *testing.T, ch <-chan State, want State) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case s := <-ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Config{ReconnectDelay: 10 * time.Millisecond, WatchdogLimit: 30}, nil)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_WatchdogTripsOn31stSend(t *testing.T) {
	srv := newFakeServer(t)
	m := newTestManager(t)
	states := recordStates(m)
	if err := m.Start(srv.addr()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, states, StateConnected)
	srv.next(t)

	for i := 0; i < 30; i++ {
		if err := m.Send(protocol.EncodeMoveHeartbeat(1, 2)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if m.State() != StateConnected || m.Unacked() != 30 {
		t.Fatalf("after 30 sends: state=%s unacked=%d", m.State(), m.Unacked())
	}
	select {
	case s := <-states:
		t.Fatalf("unexpected transition to %s", s)
	default:
	}

	if err := m.Send(protocol.EncodeMoveHeartbeat(1, 2)); err != nil {
		t.Fatalf("send 31: %v", err)
	}
	waitState(t, states, StateDisconnectedRetry)
}

func TestManager_InboundFrameResetsWatchdog(t *testing.T) {
	srv := newFakeServer(t)
	m := newTestManager(t)
	got := make(chan *protocol.Packet, 1)
	m.OnPacket(func(p *protocol.Packet) error {
		got <- p
		return nil
	})
	states := recordStates(m)
	_ = m.Start(srv.addr())
	waitState(t, states, StateConnected)
	c := srv.next(t)

	for i := 0; i < 20; i++ {
		_ = m.Send(protocol.EncodeMoveDirection(0.5))
	}
	if err := protocol.WriteFrame(c, protocol.EncodeInt32(protocol.SPPingPong, 42)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	select {
	case p := <-got:
		if p.Opcode != protocol.SPPingPong {
			t.Fatalf("got %s", p.Opcode)
		}
		if v, _ := protocol.DecodeInt32(p); v != 42 {
			t.Fatalf("payload %d", v)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("packet not delivered")
	}
	if n := m.Unacked(); n != 0 {
		t.Fatalf("unacked=%d after inbound frame", n)
	}
}

func TestManager_ReconnectRestoresThenFlushesInOrder(t *testing.T) {
	srv := newFakeServer(t)
	m := newTestManager(t)
	var refuse atomic.Bool
	m.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		if refuse.Load() {
			return nil, errors.New("connection refused")
		}
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
	m.SetSessionToken("tok-1")
	states := recordStates(m)
	_ = m.Start(srv.addr())
	waitState(t, states, StateConnected)
	c1 := srv.next(t)

	refuse.Store(true)
	_ = c1.Close()
	waitState(t, states, StateDisconnectedRetry)

	for _, a := range []float32{1, 2, 3} {
		if err := m.Send(protocol.EncodeMoveDirection(a)); err != nil {
			t.Fatalf("queue: %v", err)
		}
	}
	if n := m.Queued(); n != 3 {
		t.Fatalf("queued=%d", n)
	}

	refuse.Store(false)
	waitState(t, states, StateConnected)
	_ = m.Send(protocol.EncodeMoveDirection(4))

	c2 := srv.next(t)
	p := readFrame(t, c2)
	if p.Opcode != protocol.CPRestoreSession {
		t.Fatalf("first frame %s, want restore", p.Opcode)
	}
	if tok, _ := protocol.DecodeRestoreSession(p); tok != "tok-1" {
		t.Fatalf("token %q", tok)
	}
	for _, want := range []float32{1, 2, 3, 4} {
		p := readFrame(t, c2)
		if p.Opcode != protocol.CPMoveDirection {
			t.Fatalf("got %s", p.Opcode)
		}
		if a := p.Reader().Float32(); a != want {
			t.Fatalf("angle %v, want %v", a, want)
		}
	}
	if m.Queued() != 0 {
		t.Fatalf("queue not drained")
	}
}

func TestManager_ConnectionFailedWaitsForStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	dead := ln.Addr().String()
	_ = ln.Close()

	m := newTestManager(t)
	states := recordStates(m)
	_ = m.Start(dead)
	waitState(t, states, StateConnectionFailed)

	_ = m.Send(protocol.NewPacket(protocol.CPWorldRequest))
	select {
	case s := <-states:
		t.Fatalf("retried on its own: %s", s)
	case <-time.After(50 * time.Millisecond):
	}

	srv := newFakeServer(t)
	_ = m.Start(srv.addr())
	waitState(t, states, StateConnected)
	if p := readFrame(t, srv.next(t)); p.Opcode != protocol.CPWorldRequest {
		t.Fatalf("got %s", p.Opcode)
	}
}

func TestManager_BadServerAddress(t *testing.T) {
	for _, addr := range []string{"no-port", ":7000", "127.0.0.1:0", "127.0.0.1:70000", "127.0.0.1:http"} {
		t.Run(addr, func(t *testing.T) {
			m := newTestManager(t)
			states := recordStates(m)
			_ = m.Start(addr)
			waitState(t, states, StateConnectionFailedServerBad)
		})
	}
}

func TestManager_DisconnectDoesNotRetry(t *testing.T) {
	srv := newFakeServer(t)
	m := newTestManager(t)
	m.SetSessionToken("tok-2")
	states := recordStates(m)
	_ = m.Start(srv.addr())
	waitState(t, states, StateConnected)
	srv.next(t)

	m.Disconnect()
	waitState(t, states, StateDisconnected)
	select {
	case s := <-states:
		t.Fatalf("unexpected transition to %s", s)
	case <-time.After(50 * time.Millisecond):
	}

	_ = m.Send(protocol.NewPacket(protocol.CPRoomList).PutUint8(0))
	_ = m.Start("")
	waitState(t, states, StateConnected)
	if p := readFrame(t, srv.next(t)); p.Opcode != protocol.CPRoomList {
		t.Fatalf("fresh connection sent %s first", p.Opcode)
	}
}

func TestManager_DisconnectWhileRetryingStaysDown(t *testing.T) {
	srv := newFakeServer(t)
	m := newTestManager(t)
	var refuse atomic.Bool
	m.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		if refuse.Load() {
			return nil, errors.New("connection refused")
		}
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
	m.SetSessionToken("tok-3")
	states := recordStates(m)
	_ = m.Start(srv.addr())
	waitState(t, states, StateConnected)
	c1 := srv.next(t)

	refuse.Store(true)
	_ = c1.Close()
	waitState(t, states, StateDisconnectedRetry)

	m.Disconnect()
	waitState(t, states, StateDisconnected)
	refuse.Store(false)

	select {
	case s := <-states:
		t.Fatalf("reconnected on its own: %s", s)
	case <-time.After(200 * time.Millisecond):
	}
	if m.State() != StateDisconnected {
		t.Fatalf("state %s", m.State())
	}

	_ = m.Start("")
	waitState(t, states, StateConnected)
	_ = m.Send(protocol.NewPacket(protocol.CPWorldRequest))
	if p := readFrame(t, srv.next(t)); p.Opcode != protocol.CPWorldRequest {
		t.Fatalf("fresh connection sent %s first", p.Opcode)
	}
}

func TestManager_HandlerErrorDropsConnection(t *testing.T) {
	srv := newFakeServer(t)
	m := newTestManager(t)
	m.OnPacket(func(p *protocol.Packet) error {
		_, err := protocol.DecodeEaten(p)
		return err
	})
	states := recordStates(m)
	_ = m.Start(srv.addr())
	waitState(t, states, StateConnected)
	c := srv.next(t)

	short := protocol.NewPacket(protocol.SPObjectEaten).PutInt32(1)
	if err := protocol.WriteFrame(c, short); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitState(t, states, StateDisconnectedRetry)
	waitState(t, states, StateConnected)
}

func TestManager_SentHookSeesFlushedFrames(t *testing.T) {
	srv := newFakeServer(t)
	m := newTestManager(t)
	var sent atomic.Int32
	m.OnSent(func(*protocol.Packet) { sent.Add(1) })
	_ = m.Send(protocol.NewPacket(protocol.CPWorldRequest))
	_ = m.Send(protocol.NewPacket(protocol.CPPong))
	states := recordStates(m)
	_ = m.Start(srv.addr())
	waitState(t, states, StateConnected)
	if n := sent.Load(); n != 2 {
		t.Fatalf("sent hook calls=%d", n)
	}
}

func TestManager_Close(t *testing.T) {
	srv := newFakeServer(t)
	m := NewManager(Config{}, nil)
	states := recordStates(m)
	_ = m.Start(srv.addr())
	waitState(t, states, StateConnected)
	srv.next(t)

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Fatalf("state %s", m.State())
	}
	if err := m.Send(protocol.NewPacket(protocol.CPPong)); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
	if err := m.Start(""); !errors.Is(err, ErrClosed) {
		t.Fatalf("start after close: %v", err)
	}
}

func TestManager_EncodeErrorReturned(t *testing.T) {
	m := newTestManager(t)
	err := m.Send(protocol.NewPacket(protocol.CPLogin).PutString("a\x00b"))
	if !errors.Is(err, protocol.ErrStringNUL) {
		t.Fatalf("got %v", err)
	}
	if m.Queued() != 0 {
		t.Fatalf("invalid packet queued")
	}
}
