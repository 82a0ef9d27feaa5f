package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Frame layout: [Opcode:2][Length:2][Payload:Length], big-endian.
const (
	HeaderSize     = 4
	MaxPayloadSize = math.MaxUint16
)

var (
	ErrShortPayload    = errors.New("protocol: short payload")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds 65535 bytes")
	ErrStringNUL       = errors.New("protocol: string contains NUL byte")
	ErrBadCount        = errors.New("protocol: bad element count")
)

// Packet is one framed message. Outbound packets are built with the Put*
// methods in the field order fixed for their opcode; inbound packets are read
// back through Reader in the same order.
type Packet struct {
	Opcode  Opcode
	payload []byte
	err     error
}

func NewPacket(op Opcode) *Packet {
	return &Packet{Opcode: op}
}

// FromPayload wraps a received payload. The slice is retained, not copied.
func FromPayload(op Opcode, payload []byte) *Packet {
	return &Packet{Opcode: op, payload: payload}
}

func (p *Packet) Payload() []byte { return p.payload }
func (p *Packet) Len() int        { return len(p.payload) }

// Err returns the first encoding error recorded by a Put* call.
func (p *Packet) Err() error { return p.err }

func (p *Packet) PutInt32(v int32) *Packet {
	p.payload = binary.BigEndian.AppendUint32(p.payload, uint32(v))
	return p
}

func (p *Packet) PutFloat32(v float32) *Packet {
	p.payload = binary.BigEndian.AppendUint32(p.payload, math.Float32bits(v))
	return p
}

func (p *Packet) PutUint8(v uint8) *Packet {
	p.payload = append(p.payload, v)
	return p
}

func (p *Packet) PutBool(v bool) *Packet {
	if v {
		return p.PutUint8(1)
	}
	return p.PutUint8(0)
}

// PutString appends s as UTF-8 followed by a single 0x00 terminator.
func (p *Packet) PutString(s string) *Packet {
	if strings.IndexByte(s, 0) >= 0 {
		if p.err == nil {
			p.err = fmt.Errorf("%w: %s field at offset %d", ErrStringNUL, p.Opcode, len(p.payload))
		}
		return p
	}
	p.payload = append(p.payload, s...)
	p.payload = append(p.payload, 0)
	return p
}

// Bytes serializes header and payload into one buffer.
func (p *Packet) Bytes() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	if len(p.payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s has %d bytes", ErrPayloadTooLarge, p.Opcode, len(p.payload))
	}
	out := make([]byte, HeaderSize, HeaderSize+len(p.payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(p.Opcode))
	binary.BigEndian.PutUint16(out[2:4], uint16(len(p.payload)))
	return append(out, p.payload...), nil
}

// Reader returns a fresh sequential reader over the payload.
func (p *Packet) Reader() *Reader {
	return &Reader{op: p.Opcode, buf: p.payload}
}

// Reader decodes primitives in order. The first out-of-bounds read records a
// sticky error; later reads return zero values.
type Reader struct {
	op  Opcode
	buf []byte
	pos int
	err error
}

func (r *Reader) Err() error     { return r.err }
func (r *Reader) Pos() int       { return r.pos }
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if r.Remaining() < n {
		r.err = fmt.Errorf("%w: %s %s at offset %d needs %d bytes, %d left", ErrShortPayload, r.op, what, r.pos, n, r.Remaining())
		return false
	}
	return true
}

func (r *Reader) Int32() int32 {
	if !r.need(4, "int32") {
		return 0
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v
}

func (r *Reader) Float32() float32 {
	if !r.need(4, "float32") {
		return 0
	}
	v := math.Float32frombits(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v
}

func (r *Reader) Uint8() uint8 {
	if !r.need(1, "uint8") {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

// Bool reads a byte; only 1 is true.
func (r *Reader) Bool() bool {
	return r.Uint8() == 1
}

// CString reads a NUL-terminated UTF-8 string.
func (r *Reader) CString() string {
	if r.err != nil {
		return ""
	}
	i := bytes.IndexByte(r.buf[r.pos:], 0)
	if i < 0 {
		r.err = fmt.Errorf("%w: %s string at offset %d has no terminator", ErrShortPayload, r.op, r.pos)
		return ""
	}
	s := string(r.buf[r.pos : r.pos+i])
	r.pos += i + 1
	return s
}

// Count reads an int32 element count and checks it against the bytes left,
// given the minimum encoded size of one element.
func (r *Reader) Count(minElem int) int {
	n := r.Int32()
	if r.err != nil {
		return 0
	}
	if n < 0 || (minElem > 0 && int(n) > r.Remaining()/minElem) {
		r.err = fmt.Errorf("%w: %s count %d with %d bytes left", ErrBadCount, r.op, n, r.Remaining())
		return 0
	}
	return int(n)
}

// WriteFrame writes p as a single buffer.
func WriteFrame(w io.Writer, p *Packet) error {
	b, err := p.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadFrame blocks until a full header and payload have been read.
func ReadFrame(r io.Reader) (*Packet, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	op := Opcode(binary.BigEndian.Uint16(hdr[0:2]))
	n := binary.BigEndian.Uint16(hdr[2:4])
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read %s payload: %w", op, err)
		}
	}
	return FromPayload(op, payload), nil
}
