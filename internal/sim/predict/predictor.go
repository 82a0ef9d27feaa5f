package predict

import (
	"context"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"agarclient/internal/protocol"
	"agarclient/internal/sim/world"
)

// Sender is the outbound side of the connection manager.
type Sender interface {
	Send(*protocol.Packet) error
}

type Config struct {
	Tick           time.Duration
	Heartbeat      time.Duration
	EatInterval    time.Duration
	AngleThreshold float64
}

func DefaultConfig() Config {
	return Config{
		Tick:           10 * time.Millisecond,
		Heartbeat:      500 * time.Millisecond,
		EatInterval:    10 * time.Millisecond,
		AngleThreshold: 0.01,
	}
}

// Intent is the directional input: four booleans from the input handler.
type Intent struct {
	Up, Down, Left, Right bool
}

// Vector converts the intent to screen-space axes (y grows downwards).
func (i Intent) Vector() (vx, vy float64) {
	if i.Up {
		vy--
	}
	if i.Down {
		vy++
	}
	if i.Left {
		vx--
	}
	if i.Right {
		vx++
	}
	return vx, vy
}

// Angle returns the movement angle for a non-zero intent vector. atan only
// covers the right half-plane, so vectors pointing left are shifted by -pi.
func Angle(vx, vy float64) float32 {
	a := math.Atan(vy / vx)
	if vx < 0 {
		a -= math.Pi
	}
	return float32(a)
}

// Predictor moves the local player from input between authoritative updates,
// dead-reckons remote players and sends the movement and eat packets.
type Predictor struct {
	store *world.Store
	conn  Sender
	cfg   Config
	log   *log.Logger

	mu            sync.Mutex
	out           []*protocol.Packet
	intent        Intent
	localID       int32
	hasLocal      bool
	sentAngle     float32
	lastTick      time.Time
	lastHeartbeat time.Time
	lastEat       time.Time
}

func New(store *world.Store, conn Sender, cfg Config, logger *log.Logger) *Predictor {
	def := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = def.Heartbeat
	}
	if cfg.EatInterval <= 0 {
		cfg.EatInterval = def.EatInterval
	}
	if cfg.AngleThreshold <= 0 {
		cfg.AngleThreshold = def.AngleThreshold
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Predictor{store: store, conn: conn, cfg: cfg, log: logger}
}

func (p *Predictor) SetIntent(i Intent) {
	p.mu.Lock()
	p.intent = i
	p.mu.Unlock()
}

func (p *Predictor) Intent() Intent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intent
}

// Run ticks until ctx is done.
func (p *Predictor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			p.Tick(now)
		}
	}
}

// Tick runs one prediction step at now and returns the number of eat
// requests sent. Packets are sent after the step, outside the lock.
func (p *Predictor) Tick(now time.Time) int {
	p.mu.Lock()
	eats := p.step(now)
	out := p.out
	p.out = nil
	p.mu.Unlock()

	for _, pkt := range out {
		if err := p.conn.Send(pkt); err != nil {
			p.log.Printf("send %s: %v", pkt.Opcode, err)
		}
	}
	return eats
}

func (p *Predictor) step(now time.Time) int {

	var elapsedMs float64
	if !p.lastTick.IsZero() && now.After(p.lastTick) {
		elapsedMs = float64(now.Sub(p.lastTick)) / float64(time.Millisecond)
	}
	if p.lastTick.IsZero() {
		p.lastHeartbeat = now
	}
	p.lastTick = now

	local, ok := p.store.Local()
	if !ok || p.store.LocalDead() {
		p.hasLocal = false
		p.store.AdvanceRemote(elapsedMs)
		return 0
	}
	if !p.hasLocal || p.localID != local.ID {
		// Respawned or first snapshot: whatever we sent before is void.
		p.hasLocal, p.localID = true, local.ID
		p.sentAngle = local.Angle
		p.lastHeartbeat = now
	}
	ref := world.PlayerRef(local.ID)

	vx, vy := p.intent.Vector()
	switch {
	case vx != 0 || vy != 0:
		angle := Angle(vx, vy)
		p.store.SetAngle(ref, angle)
		local.Angle = angle
		if !local.Moving {
			p.store.SetMoving(ref, true)
			local.Moving = true
			p.send(protocol.MoveState{X: local.X, Y: local.Y, Angle: angle}.Encode(true))
			p.sentAngle = angle
		}
	case local.Moving:
		p.store.SetMoving(ref, false)
		local.Moving = false
		p.send(protocol.MoveState{X: local.X, Y: local.Y, Angle: local.Angle}.Encode(false))
	}

	if local.Moving && math.Abs(float64(local.Angle-p.sentAngle)) > p.cfg.AngleThreshold {
		p.send(protocol.EncodeMoveDirection(local.Angle))
		p.sentAngle = local.Angle
	}

	if now.Sub(p.lastHeartbeat) >= p.cfg.Heartbeat {
		p.send(protocol.EncodeMoveHeartbeat(local.X, local.Y))
		p.lastHeartbeat = now
	}

	p.store.AdvanceLocal(elapsedMs)
	p.store.AdvanceRemote(elapsedMs)

	eats := 0
	if now.Sub(p.lastEat) >= p.cfg.EatInterval {
		p.lastEat = now
		for {
			e, ok := p.store.ClaimIntersection()
			if !ok {
				break
			}
			target := e.Ref()
			p.send(protocol.EatRequest{Family: target.Family(), ID: target.ID}.Encode())
			eats++
		}
	}
	return eats
}

// send queues pkt for the end of the current Tick.
func (p *Predictor) send(pkt *protocol.Packet) {
	p.out = append(p.out, pkt)
}
