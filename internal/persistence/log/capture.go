package log

import (
	"path/filepath"
	"sync/atomic"

	"agarclient/internal/protocol"
)

type Direction string

const (
	DirIn  Direction = "in"
	DirOut Direction = "out"
)

// PacketRecord is one captured frame. Payload is base64 in JSON.
type PacketRecord struct {
	TS      int64     `json:"ts"`
	Dir     Direction `json:"dir"`
	Opcode  uint16    `json:"opcode"`
	Name    string    `json:"name"`
	Len     int       `json:"len"`
	Payload []byte    `json:"payload,omitempty"`
}

func (r PacketRecord) Packet() *protocol.Packet {
	return protocol.FromPayload(protocol.Opcode(r.Opcode), r.Payload)
}

// StateRecord is one connection state transition.
type StateRecord struct {
	TS    int64  `json:"ts"`
	Addr  string `json:"addr"`
	State string `json:"state"`
}

const (
	PacketPrefix = "packets"
	StatePrefix  = "states"
)

// PacketLogger captures every inbound and outbound frame. Write failures are
// counted, never returned to the network goroutines.
type PacketLogger struct {
	w    *JSONLZstdWriter
	errs atomic.Int64
}

func NewPacketLogger(dataDir string) *PacketLogger {
	return &PacketLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "capture"), PacketPrefix)}
}

func (l *PacketLogger) Record(dir Direction, p *protocol.Packet) {
	payload := append([]byte(nil), p.Payload()...)
	rec := PacketRecord{
		TS:      l.w.now().UnixMilli(),
		Dir:     dir,
		Opcode:  uint16(p.Opcode),
		Name:    p.Opcode.String(),
		Len:     len(payload),
		Payload: payload,
	}
	if err := l.w.Write(rec); err != nil {
		l.errs.Add(1)
	}
}

func (l *PacketLogger) In(p *protocol.Packet) error {
	l.Record(DirIn, p)
	return nil
}

func (l *PacketLogger) Out(p *protocol.Packet) { l.Record(DirOut, p) }

func (l *PacketLogger) Errors() int64 { return l.errs.Load() }
func (l *PacketLogger) Path() string  { return l.w.Path() }
func (l *PacketLogger) Close() error  { return l.w.Close() }

// StateLogger records connection state transitions next to the packet capture.
type StateLogger struct {
	w    *JSONLZstdWriter
	errs atomic.Int64
}

func NewStateLogger(dataDir string) *StateLogger {
	return &StateLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "capture"), StatePrefix)}
}

func (l *StateLogger) Record(addr, state string) {
	if err := l.w.Write(StateRecord{TS: l.w.now().UnixMilli(), Addr: addr, State: state}); err != nil {
		l.errs.Add(1)
	}
}

func (l *StateLogger) Errors() int64 { return l.errs.Load() }
func (l *StateLogger) Close() error  { return l.w.Close() }
