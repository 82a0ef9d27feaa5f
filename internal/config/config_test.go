package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_ShippedConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load("../../configs/client.yaml")
	if err != nil {
		t.Fatalf("load client.yaml: %v", err)
	}
	want := Defaults()
	want.Normalize()
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("client.yaml drifted from defaults:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7000" || cfg.Net.WatchdogLimit != 30 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \" 10.0.0.2:9000 \"\naccount:\n  username: bob\nsim:\n  heartbeat_ms: 250\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "10.0.0.2:9000" {
		t.Fatalf("addr %q", cfg.Server.Addr)
	}
	if cfg.Account.Username != "bob" {
		t.Fatalf("username %q", cfg.Account.Username)
	}
	p := cfg.Predict()
	if p.Heartbeat != 250*time.Millisecond || p.Tick != 10*time.Millisecond {
		t.Fatalf("predict config %+v", p)
	}
	n := cfg.TCP()
	if n.ReconnectDelay != 3*time.Second || n.WatchdogLimit != 30 {
		t.Fatalf("tcp config %+v", n)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name, body, want string
	}{
		{"syntax", "server: [", "client.yaml"},
		{"addr", "server:\n  addr: nowhere\n", "server.addr"},
		{"user", "account:\n  username: \"  \"\n", "account.username"},
		{"watchdog", "net:\n  watchdog_limit: -1\n", "net.watchdog_limit"},
		{"observer public", "observer:\n  addr: \"0.0.0.0:8090\"\n", "loopback"},
		{"observer rate", "observer:\n  addr: \"127.0.0.1:8090\"\n  frame_rate_hz: 500\n", "frame_rate_hz"},
		{"capacity", "lobby:\n  room_id: -1\n  create_capacity: -4\n", "create_capacity"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, c.body))
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("got %v, want error containing %q", err, c.want)
			}
		})
	}
}

func TestValidate_ObserverLoopbackHosts(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:8090", "localhost:8090", "[::1]:8090"} {
		cfg := Defaults()
		cfg.Observer.Addr = addr
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%s: %v", addr, err)
		}
	}
}

func TestFrameInterval(t *testing.T) {
	cfg := Defaults()
	if got := cfg.FrameInterval(); got != 50*time.Millisecond {
		t.Fatalf("got %s", got)
	}
}
