package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"agarclient/internal/sim/predict"
	"agarclient/internal/transport/tcp"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Account  AccountConfig  `yaml:"account"`
	Lobby    LobbyConfig    `yaml:"lobby"`
	Net      NetConfig      `yaml:"net"`
	Sim      SimConfig      `yaml:"sim"`
	Data     DataConfig     `yaml:"data"`
	Observer ObserverConfig `yaml:"observer"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Register creates the account before logging in.
	Register bool `yaml:"register"`
}

type LobbyConfig struct {
	GameType uint8 `yaml:"game_type"`
	// RoomID < 0 creates a room instead of joining one.
	RoomID         int32  `yaml:"room_id"`
	CreateName     string `yaml:"create_name"`
	CreateCapacity int32  `yaml:"create_capacity"`
	CreateMapSize  int32  `yaml:"create_map_size"`
	Spectator      bool   `yaml:"spectator"`
}

type NetConfig struct {
	ReconnectDelayMs int `yaml:"reconnect_delay_ms"`
	WatchdogLimit    int `yaml:"watchdog_limit"`
	DialTimeoutMs    int `yaml:"dial_timeout_ms"`
}

type SimConfig struct {
	TickMs         int     `yaml:"tick_ms"`
	HeartbeatMs    int     `yaml:"heartbeat_ms"`
	EatIntervalMs  int     `yaml:"eat_interval_ms"`
	AngleThreshold float64 `yaml:"angle_threshold"`
}

type DataConfig struct {
	Dir     string `yaml:"dir"`
	Capture bool   `yaml:"capture"`
	Index   bool   `yaml:"index"`
}

type ObserverConfig struct {
	// Addr empty disables the feed.
	Addr        string `yaml:"addr"`
	FrameRateHz int    `yaml:"frame_rate_hz"`
}

func Defaults() Config {
	return Config{
		Server:  ServerConfig{Addr: "127.0.0.1:7000"},
		Account: AccountConfig{Username: "player"},
		Lobby: LobbyConfig{
			GameType:       0,
			RoomID:         -1,
			CreateName:     "arena",
			CreateCapacity: 16,
			CreateMapSize:  1000,
		},
		Net: NetConfig{
			ReconnectDelayMs: 3000,
			WatchdogLimit:    30,
			DialTimeoutMs:    10000,
		},
		Sim: SimConfig{
			TickMs:         10,
			HeartbeatMs:    500,
			EatIntervalMs:  10,
			AngleThreshold: 0.01,
		},
		Data:     DataConfig{Dir: "./data", Capture: true, Index: true},
		Observer: ObserverConfig{Addr: "", FrameRateHz: 20},
	}
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	name := filepath.Base(path)
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// Normalize trims strings and fills unset numeric fields from Defaults.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	def := Defaults()
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Account.Username = strings.TrimSpace(c.Account.Username)
	c.Lobby.CreateName = strings.TrimSpace(c.Lobby.CreateName)
	c.Data.Dir = strings.TrimSpace(c.Data.Dir)
	c.Observer.Addr = strings.TrimSpace(c.Observer.Addr)

	if c.Lobby.CreateName == "" {
		c.Lobby.CreateName = def.Lobby.CreateName
	}
	if c.Lobby.CreateCapacity == 0 {
		c.Lobby.CreateCapacity = def.Lobby.CreateCapacity
	}
	if c.Lobby.CreateMapSize == 0 {
		c.Lobby.CreateMapSize = def.Lobby.CreateMapSize
	}
	if c.Net.ReconnectDelayMs == 0 {
		c.Net.ReconnectDelayMs = def.Net.ReconnectDelayMs
	}
	if c.Net.WatchdogLimit == 0 {
		c.Net.WatchdogLimit = def.Net.WatchdogLimit
	}
	if c.Net.DialTimeoutMs == 0 {
		c.Net.DialTimeoutMs = def.Net.DialTimeoutMs
	}
	if c.Sim.TickMs == 0 {
		c.Sim.TickMs = def.Sim.TickMs
	}
	if c.Sim.HeartbeatMs == 0 {
		c.Sim.HeartbeatMs = def.Sim.HeartbeatMs
	}
	if c.Sim.EatIntervalMs == 0 {
		c.Sim.EatIntervalMs = def.Sim.EatIntervalMs
	}
	if c.Sim.AngleThreshold == 0 {
		c.Sim.AngleThreshold = def.Sim.AngleThreshold
	}
	if c.Data.Dir == "" {
		c.Data.Dir = def.Data.Dir
	}
	if c.Observer.FrameRateHz == 0 {
		c.Observer.FrameRateHz = def.Observer.FrameRateHz
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr %q: %w", c.Server.Addr, err)
	}
	if c.Account.Username == "" {
		return fmt.Errorf("account.username must not be empty")
	}
	if strings.ContainsRune(c.Account.Username, 0) || strings.ContainsRune(c.Account.Password, 0) {
		return fmt.Errorf("account credentials must not contain NUL")
	}
	if c.Lobby.RoomID < 0 {
		if c.Lobby.CreateCapacity <= 0 {
			return fmt.Errorf("lobby.create_capacity must be > 0")
		}
		if c.Lobby.CreateMapSize <= 0 {
			return fmt.Errorf("lobby.create_map_size must be > 0")
		}
	}
	if c.Net.ReconnectDelayMs < 0 {
		return fmt.Errorf("net.reconnect_delay_ms must be >= 0")
	}
	if c.Net.WatchdogLimit <= 0 {
		return fmt.Errorf("net.watchdog_limit must be > 0")
	}
	if c.Net.DialTimeoutMs < 0 {
		return fmt.Errorf("net.dial_timeout_ms must be >= 0")
	}
	if c.Sim.TickMs <= 0 || c.Sim.HeartbeatMs <= 0 || c.Sim.EatIntervalMs <= 0 {
		return fmt.Errorf("sim intervals must be > 0")
	}
	if c.Sim.AngleThreshold <= 0 {
		return fmt.Errorf("sim.angle_threshold must be > 0")
	}
	if c.Observer.Addr != "" {
		host, _, err := net.SplitHostPort(c.Observer.Addr)
		if err != nil {
			return fmt.Errorf("observer.addr %q: %w", c.Observer.Addr, err)
		}
		if !isLoopback(host) {
			return fmt.Errorf("observer.addr %q must be a loopback address", c.Observer.Addr)
		}
		if c.Observer.FrameRateHz <= 0 || c.Observer.FrameRateHz > 120 {
			return fmt.Errorf("observer.frame_rate_hz must be in [1, 120]")
		}
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c Config) TCP() tcp.Config {
	return tcp.Config{
		ReconnectDelay: ms(c.Net.ReconnectDelayMs),
		WatchdogLimit:  c.Net.WatchdogLimit,
		DialTimeout:    ms(c.Net.DialTimeoutMs),
	}
}

func (c Config) Predict() predict.Config {
	return predict.Config{
		Tick:           ms(c.Sim.TickMs),
		Heartbeat:      ms(c.Sim.HeartbeatMs),
		EatInterval:    ms(c.Sim.EatIntervalMs),
		AngleThreshold: c.Sim.AngleThreshold,
	}
}

func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Observer.FrameRateHz)
}
