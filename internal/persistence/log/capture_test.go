package log

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"agarclient/internal/protocol"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestPacketLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	l := NewPacketLogger(dir)
	l.w.now = fixedClock(&now)

	out := protocol.Credentials{Username: "ann", Password: "pw", Version: protocol.GameVersion}.Encode(protocol.CPLogin)
	in := protocol.PlayerPos{ID: 7, X: 1.5, Y: -2}.Encode(protocol.SPMoveHeartbeat)
	l.Out(out)
	if err := l.In(in); err != nil {
		t.Fatalf("in: %v", err)
	}
	l.Out(protocol.NewPacket(protocol.CPWorldRequest))
	path := l.Path()
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Errors() != 0 {
		t.Fatalf("write errors: %d", l.Errors())
	}
	if want := filepath.Join(dir, "capture", "packets-2026-03-01-10.jsonl.zst"); path != want {
		t.Fatalf("path %s, want %s", path, want)
	}

	var recs []PacketRecord
	if err := ReadPackets(path, func(r PacketRecord) error {
		recs = append(recs, r)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records=%d", len(recs))
	}
	if recs[0].Dir != DirOut || recs[0].Name != "CP_LOGIN" || !bytes.Equal(recs[0].Payload, out.Payload()) {
		t.Fatalf("record 0: %+v", recs[0])
	}
	if recs[0].TS != now.UnixMilli() || recs[0].Len != out.Len() {
		t.Fatalf("record 0 header: %+v", recs[0])
	}
	m, err := protocol.DecodePlayerPos(recs[1].Packet())
	if err != nil || recs[1].Dir != DirIn || m.ID != 7 || m.X != 1.5 || m.Y != -2 {
		t.Fatalf("record 1: %+v %+v %v", recs[1], m, err)
	}
	if recs[2].Len != 0 || recs[2].Payload != nil {
		t.Fatalf("empty payload record: %+v", recs[2])
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l := NewStateLogger(dir)
	l.w.now = fixedClock(&now)

	l.Record("127.0.0.1:7000", "CONNECTED")
	now = now.Add(2 * time.Minute)
	l.Record("127.0.0.1:7000", "DISCONNECTED_RETRY")
	l.Record("127.0.0.1:7000", "CONNECTED")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "capture"), StatePrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v", files)
	}
	var counts []int
	for _, f := range files {
		n := 0
		if err := ReadStates(f, func(StateRecord) error { n++; return nil }); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		counts = append(counts, n)
	}
	if counts[0] != 1 || counts[1] != 2 {
		t.Fatalf("per-file counts %v", counts)
	}
}

func TestJSONLZstdWriter_WriteAfterCloseAppends(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := NewJSONLZstdWriter(dir, "x")
	w.now = fixedClock(&now)
	for i := 0; i < 2; i++ {
		if err := w.Write(StateRecord{TS: int64(i)}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	files, err := ListFiles(dir, "x")
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var ts []int64
	if err := ReadStates(files[0], func(r StateRecord) error { ts = append(ts, r.TS); return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ts) != 2 || ts[0] != 0 || ts[1] != 1 {
		t.Fatalf("ts=%v", ts)
	}
}

func TestListFiles_FiltersPrefix(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, prefix := range []string{PacketPrefix, StatePrefix} {
		w := NewJSONLZstdWriter(dir, prefix)
		w.now = fixedClock(&now)
		_ = w.Write(StateRecord{})
		_ = w.Close()
	}
	files, err := ListFiles(dir, PacketPrefix)
	if err != nil || len(files) != 1 || filepath.Base(files[0]) != "packets-2026-03-01-10.jsonl.zst" {
		t.Fatalf("files=%v err=%v", files, err)
	}
}
