package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"agarclient/internal/protocol"
)

var (
	ErrClosed   = errors.New("tcp: manager closed")
	errWatchdog = errors.New("tcp: no response to outbound packets")
	errHalted   = errors.New("tcp: disconnected by request")
)

type Config struct {
	// ReconnectDelay is the fixed backoff between attempts while retrying.
	ReconnectDelay time.Duration
	// WatchdogLimit is the number of sends without any inbound frame that
	// the connection tolerates before it is presumed dead.
	WatchdogLimit int
	// DialTimeout bounds a single connect attempt. Zero means no limit.
	DialTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReconnectDelay: 3 * time.Second,
		WatchdogLimit:  30,
		DialTimeout:    10 * time.Second,
	}
}

type (
	PacketHandler func(*protocol.Packet) error
	StateHandler  func(State)
)

// Manager owns the socket, the outbound queue and the reconnect state machine.
// One goroutine dials and reads; Send may be called from any goroutine.
type Manager struct {
	cfg  Config
	log  *log.Logger
	dial func(ctx context.Context, addr string) (net.Conn, error)

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	state    State
	addr     string
	token    string
	conn     net.Conn
	started  bool
	closed   bool
	onPacket []PacketHandler
	onState  []StateHandler
	onSent   []func(*protocol.Packet)

	// halts counts explicit disconnects. The run loop stays down while it
	// differs from the count it last resumed with.
	halts uint64

	// sendMu serializes socket writes with the queue. Lock order: sendMu, mu.
	sendMu sync.Mutex
	wconn  net.Conn
	queue  []*protocol.Packet

	unacked atomic.Int32
}

func NewManager(cfg Config, logger *log.Logger) *Manager {
	def := DefaultConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.WatchdogLimit <= 0 {
		cfg.WatchdogLimit = def.WatchdogLimit
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	m.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: m.cfg.DialTimeout}
		return d.DialContext(ctx, "tcp", addr)
	}
	return m
}

// OnPacket registers a handler for every inbound frame. Handlers run on the
// connection goroutine in registration order; an error aborts the connection
// as a protocol error.
func (m *Manager) OnPacket(h PacketHandler) {
	m.mu.Lock()
	m.onPacket = append(m.onPacket, h)
	m.mu.Unlock()
}

// OnState registers a handler for connection state changes.
func (m *Manager) OnState(h StateHandler) {
	m.mu.Lock()
	m.onState = append(m.onState, h)
	m.mu.Unlock()
}

// OnSent registers a hook called for every frame written to the socket.
func (m *Manager) OnSent(h func(*protocol.Packet)) {
	m.mu.Lock()
	m.onSent = append(m.onSent, h)
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// SetSessionToken stores the token sent in CP_RESTORE_SESSION after a
// reconnect.
func (m *Manager) SetSessionToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *Manager) SessionToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Unacked returns the current watchdog counter.
func (m *Manager) Unacked() int {
	return int(m.unacked.Load())
}

// Start begins connecting to addr. The first call starts the connection
// goroutine; later calls wake it after ConnectionFailed or an explicit
// Disconnect. An empty addr keeps the previous address.
func (m *Manager) Start(addr string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if addr != "" {
		m.addr = addr
	}
	first := !m.started
	m.started = true
	waiting := m.state.Failed() || m.state == StateDisconnected
	m.mu.Unlock()

	if first {
		go m.run()
		return nil
	}
	if waiting {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Send writes p immediately while connected, otherwise appends it to the
// outbound queue. Write failures are handled by the state machine and are not
// returned; only encoding errors and ErrClosed are.
func (m *Manager) Send(p *protocol.Packet) error {
	b, err := p.Bytes()
	if err != nil {
		return err
	}

	m.sendMu.Lock()
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.sendMu.Unlock()
		return ErrClosed
	}
	conn := m.wconn
	if conn == nil {
		m.queue = append(m.queue, p)
		m.sendMu.Unlock()
		return nil
	}
	n := m.unacked.Add(1)
	_, err = conn.Write(b)
	m.sendMu.Unlock()

	if err != nil {
		m.log.Printf("write %s: %v", p.Opcode, err)
		m.drop(conn, err)
		return nil
	}
	m.sent(p)
	if int(n) > m.cfg.WatchdogLimit {
		m.log.Printf("%d packets without response, closing", n)
		m.drop(conn, errWatchdog)
	}
	return nil
}

// Queued returns the number of packets waiting for a connection.
func (m *Manager) Queued() int {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return len(m.queue)
}

// Disconnect closes the connection without retrying; Start must be called
// to connect again. Queued packets are discarded.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.halts++
	hs := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.sendMu.Lock()
	m.wconn = nil
	m.queue = nil
	m.sendMu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.notify(hs, StateDisconnected)
}

// Drop closes the current connection as if the transport had failed, which
// leads to a reconnect and session restore.
func (m *Manager) Drop() {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		m.drop(conn, errors.New("dropped by request"))
	}
}

// Close stops the connection goroutine and waits for it to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	conn := m.conn
	m.mu.Unlock()

	m.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	if started {
		<-m.done
	}
	return nil
}

func (m *Manager) stopping() bool {
	return m.ctx.Err() != nil
}

func (m *Manager) run() {
	defer close(m.done)
	defer m.finish()

	epoch := m.haltCount()
	for !m.stopping() {
		if m.haltCount() != epoch {
			// Explicit Disconnect: stay down until Start wakes us.
			if !m.waitWake() {
				return
			}
			epoch = m.haltCount()
			continue
		}

		m.mu.Lock()
		addr := m.addr
		retrying := m.state == StateDisconnectedRetry
		m.mu.Unlock()

		conn, err := m.connect(addr, epoch)
		if err != nil {
			if m.stopping() {
				return
			}
			if errors.Is(err, errHalted) || m.haltCount() != epoch {
				continue
			}
			if retrying {
				m.log.Printf("connect %s: %v, retrying in %s", addr, err, m.cfg.ReconnectDelay)
				if !m.sleep(m.cfg.ReconnectDelay) {
					return
				}
				continue
			}
			st := StateConnectionFailed
			if isBadServer(err) {
				st = StateConnectionFailedServerBad
			}
			m.log.Printf("connect %s: %v", addr, err)
			m.setState(st)
			if !m.waitWake() {
				return
			}
			epoch = m.haltCount()
			continue
		}

		m.log.Printf("connected to %s", conn.RemoteAddr())
		if err := m.attach(conn, retrying, epoch); err != nil {
			if !errors.Is(err, errHalted) {
				m.log.Printf("flush: %v", err)
			}
			m.drop(conn, err)
			continue
		}

		err = m.readLoop(conn)
		if m.stopping() {
			return
		}
		m.drop(conn, err)
	}
}

func (m *Manager) haltCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halts
}

func (m *Manager) finish() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	var hs []StateHandler
	if m.state != StateDisconnected {
		hs = m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	m.sendMu.Lock()
	m.wconn = nil
	m.sendMu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.notify(hs, StateDisconnected)
}

func (m *Manager) connect(addr string, epoch uint64) (net.Conn, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	conn, err := m.dial(m.ctx, addr)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	if m.halts != epoch {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, errHalted
	}
	m.conn = conn
	m.mu.Unlock()
	return conn, nil
}

// attach writes the session restore request when resuming, then the queued
// packets in order, and only then opens the connection to direct sends.
func (m *Manager) attach(conn net.Conn, resuming bool, epoch uint64) error {
	m.sendMu.Lock()
	token := m.SessionToken()
	if resuming && token != "" {
		m.log.Printf("restoring session")
		if err := m.writeLocked(conn, protocol.EncodeRestoreSession(token)); err != nil {
			m.sendMu.Unlock()
			return err
		}
	}
	for len(m.queue) > 0 {
		if err := m.writeLocked(conn, m.queue[0]); err != nil {
			m.sendMu.Unlock()
			return err
		}
		m.queue[0] = nil
		m.queue = m.queue[1:]
	}

	m.mu.Lock()
	if m.halts != epoch {
		m.mu.Unlock()
		m.sendMu.Unlock()
		return errHalted
	}
	m.queue = nil
	m.wconn = conn
	hs := m.setStateLocked(StateConnected)
	m.mu.Unlock()
	m.sendMu.Unlock()

	m.notify(hs, StateConnected)
	return nil
}

func (m *Manager) writeLocked(conn net.Conn, p *protocol.Packet) error {
	b, err := p.Bytes()
	if err != nil {
		m.log.Printf("drop queued %s: %v", p.Opcode, err)
		return nil
	}
	if _, err := conn.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", p.Opcode, err)
	}
	m.sent(p)
	return nil
}

func (m *Manager) readLoop(conn net.Conn) error {
	for {
		p, err := protocol.ReadFrame(conn)
		if err != nil {
			return err
		}
		m.unacked.Store(0)

		m.mu.Lock()
		hs := m.onPacket
		m.mu.Unlock()
		for _, h := range hs {
			if err := h(p); err != nil {
				return fmt.Errorf("handle %s: %w", p.Opcode, err)
			}
		}
	}
}

// drop retires conn. If it is still the live connection the machine moves
// to DisconnectedRetry; stale or already retired connections only get closed.
func (m *Manager) drop(conn net.Conn, cause error) {
	_ = conn.Close()

	m.sendMu.Lock()
	if m.wconn == conn {
		m.wconn = nil
	}
	m.sendMu.Unlock()

	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	var hs []StateHandler
	if m.state != StateDisconnected && m.state != StateDisconnectedRetry && !m.closed {
		hs = m.setStateLocked(StateDisconnectedRetry)
	}
	m.mu.Unlock()

	if hs != nil && cause != nil {
		m.log.Printf("connection lost: %v", cause)
	}
	m.notify(hs, StateDisconnectedRetry)
}

func (m *Manager) setState(st State) {
	m.mu.Lock()
	hs := m.setStateLocked(st)
	m.mu.Unlock()
	m.notify(hs, st)
}

// setStateLocked records st, resets the watchdog and returns the handlers to
// notify once the lock is released.
func (m *Manager) setStateLocked(st State) []StateHandler {
	m.unacked.Store(0)
	m.state = st
	return append([]StateHandler(nil), m.onState...)
}

func (m *Manager) notify(hs []StateHandler, st State) {
	for _, h := range hs {
		h(st)
	}
}

func (m *Manager) sent(p *protocol.Packet) {
	m.mu.Lock()
	hs := m.onSent
	m.mu.Unlock()
	for _, h := range hs {
		h(p)
	}
}

func (m *Manager) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *Manager) waitWake() bool {
	select {
	case <-m.ctx.Done():
		return false
	case <-m.wake:
		return true
	}
}

type badServerError struct {
	addr string
	msg  string
}

func (e *badServerError) Error() string {
	return fmt.Sprintf("bad server address %q: %s", e.addr, e.msg)
}

// checkAddr rejects addresses that can never be dialed.
func checkAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return &badServerError{addr: addr, msg: err.Error()}
	}
	if host == "" {
		return &badServerError{addr: addr, msg: "missing host"}
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return &badServerError{addr: addr, msg: "port out of range"}
	}
	return nil
}

func isBadServer(err error) bool {
	var bad *badServerError
	if errors.As(err, &bad) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
