package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"agarclient/internal/config"
	"agarclient/internal/persistence/indexdb"
	persistlog "agarclient/internal/persistence/log"
	"agarclient/internal/protocol"
	"agarclient/internal/sim/netsync"
	"agarclient/internal/sim/predict"
	"agarclient/internal/sim/world"
	"agarclient/internal/transport/observer"
	"agarclient/internal/transport/tcp"
)

const respawnDelay = 2 * time.Second

func main() {
	var (
		configPath = flag.String("config", "./configs/client.yaml", "client config path (missing file means defaults)")
		addr       = flag.String("addr", "", "server address host:port (overrides config)")
		user       = flag.String("user", "", "account name (overrides config)")
		pass       = flag.String("pass", "", "account password (overrides config)")
		register   = flag.Bool("register", false, "register the account before logging in")
		room       = flag.Int("room", 0, "room id to join; -1 creates a room (overrides config)")
		spectate   = flag.Bool("spectate", false, "join as spectator")
		wander     = flag.Bool("wander", false, "move around randomly")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		observe    = flag.String("observer", "", "observer feed listen address, loopback only (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the session index")
		noCapture  = flag.Bool("no_capture", false, "disable packet capture")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	path := strings.TrimSpace(*configPath)
	if path != "" && !set["config"] {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if set["addr"] {
		cfg.Server.Addr = *addr
	}
	if set["user"] {
		cfg.Account.Username = *user
	}
	if set["pass"] {
		cfg.Account.Password = *pass
	}
	if set["register"] {
		cfg.Account.Register = *register
	}
	if set["room"] {
		cfg.Lobby.RoomID = int32(*room)
	}
	if set["spectate"] {
		cfg.Lobby.Spectator = *spectate
	}
	if set["data"] {
		cfg.Data.Dir = *dataDir
	}
	if set["observer"] {
		cfg.Observer.Addr = *observe
	}
	if *disableDB {
		cfg.Data.Index = false
	}
	if *noCapture {
		cfg.Data.Capture = false
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := world.NewStore()
	mgr := tcp.NewManager(cfg.TCP(), log.New(os.Stdout, "[net] ", log.LstdFlags|log.Lmicroseconds))
	syncer := netsync.New(store, mgr, log.New(os.Stdout, "[sync] ", log.LstdFlags|log.Lmicroseconds))
	pred := predict.New(store, mgr, cfg.Predict(), log.New(os.Stdout, "[predict] ", log.LstdFlags|log.Lmicroseconds))

	states := make(chan tcp.State, 64)
	events := make(chan netsync.Event, 64)
	// done releases the network goroutine once the main loop has stopped reading.
	done := make(chan struct{})

	// Capture sees inbound frames before the synchronizer can reject them.
	var (
		packets   *persistlog.PacketLogger
		stateLogs *persistlog.StateLogger
	)
	if cfg.Data.Capture {
		packets = persistlog.NewPacketLogger(cfg.Data.Dir)
		stateLogs = persistlog.NewStateLogger(cfg.Data.Dir)
		defer packets.Close()
		defer stateLogs.Close()
		mgr.OnPacket(packets.In)
		mgr.OnSent(packets.Out)
	}

	var idx *indexdb.SQLiteIndex
	if cfg.Data.Index {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.Data.Dir, "index", "sessions.db"))
		if err != nil {
			logger.Fatalf("open session index: %v", err)
		}
		defer idx.Close()
	}

	var feed *observer.Server
	if cfg.Observer.Addr != "" {
		feed = observer.NewServer(store, cfg.FrameInterval(), log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))
		go func() {
			if err := feed.ListenAndServe(ctx, cfg.Observer.Addr); err != nil {
				logger.Printf("observer: %v", err)
			}
		}()
		go func() { _ = feed.Run(ctx) }()
	}

	mgr.OnPacket(syncer.HandlePacket)
	mgr.OnState(func(st tcp.State) {
		syncer.HandleState(st)
		addr := mgr.Addr()
		if stateLogs != nil {
			stateLogs.Record(addr, st.String())
		}
		idx.RecordState(addr, st.String())
		if feed != nil {
			feed.PublishState(addr, st.String())
		}
		select {
		case states <- st:
		case <-done:
		}
	})
	syncer.OnEvent(func(ev netsync.Event) {
		if ev.Type == netsync.EventLogin && ev.OK {
			idx.RecordSession(mgr.Addr(), cfg.Account.Username, mgr.SessionToken())
		}
		if feed != nil {
			feed.PublishEvent(ev)
		}
		select {
		case events <- ev:
		case <-done:
		}
	})

	go func() { _ = pred.Run(ctx) }()

	logger.Printf("connecting to %s as %s", cfg.Server.Addr, cfg.Account.Username)
	if err := mgr.Start(cfg.Server.Addr); err != nil {
		logger.Fatalf("start: %v", err)
	}

	fl := newFlow(syncer, cfg.Account, cfg.Lobby, logger)
	var wand *wanderer
	if *wander {
		wand = newWanderer(time.Now().UnixNano())
	}
	wanderTick := time.NewTicker(250 * time.Millisecond)
	defer wanderTick.Stop()
	var respawn <-chan time.Time
	var restart <-chan time.Time

	handle := func(act action, err error) bool {
		if err != nil {
			if errors.Is(err, errKicked) || errors.Is(err, errBadServer) {
				logger.Printf("stopping: %v", err)
			} else {
				logger.Printf("session: %v", err)
			}
			return false
		}
		switch act {
		case actRespawn:
			logger.Printf("dead, respawning in %s", respawnDelay)
			respawn = time.After(respawnDelay)
		case actRestart:
			restart = time.After(cfg.TCP().ReconnectDelay)
		}
		return true
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case st := <-states:
			if !handle(fl.onState(st)) {
				break loop
			}
		case ev := <-events:
			switch ev.Type {
			case netsync.EventLatency:
			case netsync.EventRoomList:
				logger.Printf("%d rooms", len(ev.Rooms))
			default:
				logger.Printf("%s ok=%v %s", ev.Type, ev.OK, ev.Message)
			}
			if !handle(fl.onEvent(ev)) {
				break loop
			}
		case <-respawn:
			respawn = nil
			if err := syncer.RequestWorld(false); err != nil {
				logger.Printf("respawn: %v", err)
			}
		case <-restart:
			restart = nil
			if err := mgr.Start(""); err != nil {
				logger.Printf("restart: %v", err)
			}
		case now := <-wanderTick.C:
			if wand == nil {
				continue
			}
			if in, ok := wand.step(now); ok {
				pred.SetIntent(in)
			}
		}
	}

	close(done)
	logger.Printf("shutting down")
	if mgr.State() == tcp.StateConnected {
		_ = mgr.Send(protocol.NewPacket(protocol.CPPlayerExit))
	}
	syncer.Logout()
	idx.RecordSession(mgr.Addr(), cfg.Account.Username, "")
	if err := mgr.Close(); err != nil {
		logger.Printf("close: %v", err)
	}
	if packets != nil && packets.Errors() > 0 {
		logger.Printf("capture: %d write errors", packets.Errors())
	}
	if idx != nil {
		st := idx.Stats()
		if st.DroppedTotal > 0 || st.ErrorTotal > 0 {
			logger.Printf("session index: dropped=%d errors=%d", st.DroppedTotal, st.ErrorTotal)
		}
	}
}
