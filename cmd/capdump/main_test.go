package main

import (
	"bytes"
	"strings"
	"testing"

	persistlog "agarclient/internal/persistence/log"
	"agarclient/internal/protocol"
)

func TestDescribe(t *testing.T) {
	cases := []struct {
		p    *protocol.Packet
		want string
	}{
		{protocol.Credentials{Username: "ann", Password: "secret", Version: 1}.Encode(protocol.CPLogin), "Password:******"},
		{protocol.World{Full: true, MapWidth: 100, MapHeight: 80, Self: protocol.PlayerDesc{ID: 4}, Dead: true}.Encode(), "full=true map=100x80 self=4 dead=true"},
		{protocol.EncodeStatus(protocol.SPRestoreSessionResult, 1), "session expired"},
		{protocol.NewPacket(protocol.SPPlayerEaten).PutInt32(1), "decode:"},
		{protocol.NewPacket(protocol.CPWorldRequest), ""},
	}
	for _, c := range cases {
		got := describe(c.p)
		if c.want == "" && got != "" || !strings.Contains(got, c.want) {
			t.Fatalf("%s: got %q, want %q", c.p.Opcode, got, c.want)
		}
	}
}

func TestDumper_FiltersAndLimit(t *testing.T) {
	var buf bytes.Buffer
	d := dumper{out: &buf, dir: persistlog.DirIn, limit: 2}
	recs := []persistlog.PacketRecord{
		{Dir: persistlog.DirOut, Name: "CP_PONG"},
		{Dir: persistlog.DirIn, Name: "SP_PING"},
		{Dir: persistlog.DirIn, Name: "SP_PING"},
	}
	var err error
	for _, r := range recs {
		if err = d.packet(r); err != nil {
			break
		}
	}
	if err != errLimit {
		t.Fatalf("got %v, want limit", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 || strings.Contains(buf.String(), "CP_PONG") {
		t.Fatalf("output:\n%s", buf.String())
	}
}
