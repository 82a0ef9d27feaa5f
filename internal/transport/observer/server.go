package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"agarclient/internal/observerproto"
	"agarclient/internal/sim/world"
)

const Path = "/v1/observe"

// Server streams store frames, connection states and client events to
// loopback websocket subscribers.
type Server struct {
	store    *world.Store
	interval time.Duration
	log      *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	seq      atomic.Uint64
	dropped  atomic.Uint64

	mu    sync.Mutex
	subs  map[uint64]*subscriber
	state string
}

type subscriber struct {
	id      uint64
	objects bool
	out     chan []byte
}

func NewServer(store *world.Store, interval time.Duration, logger *log.Logger) *Server {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		store:    store,
		interval: interval,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs:  map[uint64]*subscriber{},
		state: "IDLE",
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.WSHandler())
	return mux
}

// Subscribers returns the number of connected observers.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped counts messages skipped for slow subscribers.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Run broadcasts a frame every interval until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.BroadcastFrame(now)
		}
	}
}

// BroadcastFrame snapshots the store once and sends it to every subscriber.
func (s *Server) BroadcastFrame(now time.Time) {
	s.mu.Lock()
	if len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	state := s.state
	s.mu.Unlock()

	frame := BuildFrame(s.store.Snapshot(), s.seq.Add(1), now, state)
	full, err := json.Marshal(frame)
	if err != nil {
		s.log.Printf("marshal frame: %v", err)
		return
	}
	var bare []byte
	s.fanout(func(sub *subscriber) []byte {
		if sub.objects {
			return full
		}
		if bare == nil {
			f := frame
			f.Objects = []observerproto.ObjectState{}
			bare, _ = json.Marshal(f)
		}
		return bare
	})
}

// PublishState records the connection state for later frames and forwards
// the transition.
func (s *Server) PublishState(addr, state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	b, err := json.Marshal(observerproto.StateMsg{
		Type:            observerproto.TypeState,
		ProtocolVersion: observerproto.Version,
		TS:              time.Now().UnixMilli(),
		Addr:            addr,
		State:           state,
	})
	if err != nil {
		return
	}
	s.fanout(func(*subscriber) []byte { return b })
}

func (s *Server) PublishEvent(ev any) {
	raw, err := json.Marshal(ev)
	if err != nil {
		s.log.Printf("marshal event: %v", err)
		return
	}
	b, err := json.Marshal(observerproto.EventMsg{
		Type:            observerproto.TypeEvent,
		ProtocolVersion: observerproto.Version,
		TS:              time.Now().UnixMilli(),
		Event:           raw,
	})
	if err != nil {
		return
	}
	s.fanout(func(*subscriber) []byte { return b })
}

func (s *Server) fanout(msg func(*subscriber) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub.out <- msg(sub):
		default:
			s.dropped.Add(1)
		}
	}
}

// BuildFrame converts a store snapshot to a FRAME message.
func BuildFrame(snap world.Snapshot, seq uint64, now time.Time, state string) observerproto.FrameMsg {
	f := observerproto.FrameMsg{
		Type:            observerproto.TypeFrame,
		ProtocolVersion: observerproto.Version,
		Seq:             seq,
		TS:              now.UnixMilli(),
		State:           state,
		MapWidth:        snap.MapWidth,
		MapHeight:       snap.MapHeight,
		LocalDead:       snap.LocalDead,
		Players:         make([]observerproto.PlayerState, 0, len(snap.Players)),
		Objects:         make([]observerproto.ObjectState, 0, len(snap.Objects)),
	}
	if snap.Local != nil {
		p := playerState(*snap.Local)
		f.Local = &p
	}
	for _, e := range snap.Players {
		f.Players = append(f.Players, playerState(e))
	}
	for _, e := range snap.Objects {
		f.Objects = append(f.Objects, observerproto.ObjectState{
			ID:    e.ID,
			Kind:  e.Kind.String(),
			X:     e.X,
			Y:     e.Y,
			Param: e.Param,
		})
	}
	return f
}

func playerState(e world.Entity) observerproto.PlayerState {
	return observerproto.PlayerState{
		ID:     e.ID,
		Name:   e.Name,
		X:      e.X,
		Y:      e.Y,
		Size:   e.Size,
		Radius: world.Radius(e.Size),
		Color:  e.Param,
		Moving: e.Moving,
		Angle:  e.Angle,
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		me := &subscriber{
			id:      s.nextID.Add(1),
			objects: sub.WantObjects(),
			out:     make(chan []byte, 64),
		}
		s.mu.Lock()
		s.subs[me.id] = me
		s.mu.Unlock()
		s.log.Printf("observer %d connected from %s", me.id, r.RemoteAddr)
		defer func() {
			s.mu.Lock()
			delete(s.subs, me.id)
			s.mu.Unlock()
			s.log.Printf("observer %d disconnected", me.id)
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-me.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop only detects the peer going away.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// ListenAndServe serves the feed on a loopback address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Printf("observer feed on ws://%s%s", ln.Addr(), Path)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
