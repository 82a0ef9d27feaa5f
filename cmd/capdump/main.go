package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	persistlog "agarclient/internal/persistence/log"
	"agarclient/internal/protocol"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory")
		file    = flag.String("file", "", "single capture file (optional; default all packets-*.jsonl.zst under <data>/capture)")
		states  = flag.Bool("states", false, "print connection state transitions instead of packets")
		op      = flag.String("op", "", "only print this opcode name, e.g. SP_NEW_WORLD (optional)")
		dir     = flag.String("dir", "", "only print in or out (optional)")
		raw     = flag.Bool("raw", false, "do not decode payloads")
		limit   = flag.Int("limit", 0, "stop after this many records (0 = all)")
	)
	flag.Parse()

	prefix := persistlog.PacketPrefix
	if *states {
		prefix = persistlog.StatePrefix
	}
	files := []string{*file}
	if strings.TrimSpace(*file) == "" {
		var err error
		files, err = persistlog.ListFiles(filepath.Join(*dataDir, "capture"), prefix)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list capture files:", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "no capture files found in", filepath.Join(*dataDir, "capture"))
			os.Exit(1)
		}
	}

	d := dumper{
		out:   os.Stdout,
		op:    strings.ToUpper(strings.TrimSpace(*op)),
		dir:   persistlog.Direction(strings.ToLower(strings.TrimSpace(*dir))),
		raw:   *raw,
		limit: *limit,
	}
	for _, path := range files {
		var err error
		if *states {
			err = persistlog.ReadStates(path, d.state)
		} else {
			err = persistlog.ReadPackets(path, d.packet)
		}
		if errors.Is(err, errLimit) {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}
	fmt.Fprintf(os.Stderr, "%d records\n", d.n)
}

var errLimit = errors.New("limit reached")

type dumper struct {
	out   io.Writer
	op    string
	dir   persistlog.Direction
	raw   bool
	limit int
	n     int
}

func (d *dumper) count() error {
	d.n++
	if d.limit > 0 && d.n >= d.limit {
		return errLimit
	}
	return nil
}

func stamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("15:04:05.000")
}

func (d *dumper) packet(r persistlog.PacketRecord) error {
	if d.op != "" && r.Name != d.op {
		return nil
	}
	if d.dir != "" && r.Dir != d.dir {
		return nil
	}
	line := fmt.Sprintf("%s %-3s %-28s %5d", stamp(r.TS), r.Dir, r.Name, r.Len)
	if !d.raw {
		if s := describe(r.Packet()); s != "" {
			line += "  " + s
		}
	}
	fmt.Fprintln(d.out, line)
	return d.count()
}

func (d *dumper) state(r persistlog.StateRecord) error {
	fmt.Fprintf(d.out, "%s %s %s\n", stamp(r.TS), r.Addr, r.State)
	return d.count()
}

// describe decodes the payload of known opcodes into a one-line summary.
func describe(p *protocol.Packet) string {
	var (
		v   any
		err error
	)
	switch p.Opcode {
	case protocol.CPLogin, protocol.CPRegister:
		var c protocol.Credentials
		c, err = protocol.DecodeCredentials(p)
		c.Password = strings.Repeat("*", len(c.Password))
		v = c
	case protocol.CPMoveStart, protocol.CPMoveStop:
		v, err = protocol.DecodeMoveState(p)
	case protocol.CPEatRequest:
		v, err = protocol.DecodeEatRequest(p)
	case protocol.CPRestoreSession:
		v, err = protocol.DecodeRestoreSession(p)
	case protocol.SPLoginResponse:
		var m protocol.LoginResponse
		m, err = protocol.DecodeLoginResponse(p)
		v = fmt.Sprintf("%s token=%q", protocol.StatusText(p.Opcode, m.Status), m.SessionToken)
	case protocol.SPRegisterResponse, protocol.SPRestoreSessionResult:
		var st uint8
		st, err = protocol.DecodeStatus(p)
		v = protocol.StatusText(p.Opcode, st)
	case protocol.SPJoinRoomResponse, protocol.SPCreateRoomResponse:
		var m protocol.RoomResponse
		m, err = protocol.DecodeRoomResponse(p)
		v = fmt.Sprintf("%s chat=%d", protocol.StatusText(p.Opcode, m.Status), m.ChatChannel)
	case protocol.SPRoomListResponse:
		v, err = protocol.DecodeRoomList(p)
	case protocol.SPNewWorld, protocol.SPUpdateWorld:
		var w protocol.World
		w, err = protocol.DecodeWorld(p)
		v = fmt.Sprintf("full=%v map=%gx%g self=%d dead=%v players=%d objects=%d",
			w.Full, w.MapWidth, w.MapHeight, w.Self.ID, w.Dead, len(w.Players), len(w.Objects))
	case protocol.SPMoveHeartbeat, protocol.SPMoveStop:
		v, err = protocol.DecodePlayerPos(p)
	case protocol.SPMoveStart, protocol.SPMoveDirection:
		v, err = protocol.DecodePlayerAngle(p)
	case protocol.SPNewPlayer:
		v, err = protocol.DecodePlayerDesc(p)
	case protocol.SPNewObject:
		v, err = protocol.DecodeObjectDesc(p)
	case protocol.SPObjectEaten, protocol.SPPlayerEaten:
		v, err = protocol.DecodeEaten(p)
	case protocol.SPDestroyObject:
		v, err = protocol.DecodeDestroy(p)
	case protocol.SPPlayerExit, protocol.SPPingPong:
		v, err = protocol.DecodeInt32(p)
	default:
		return ""
	}
	if err != nil {
		return "decode: " + err.Error()
	}
	return fmt.Sprintf("%+v", v)
}
