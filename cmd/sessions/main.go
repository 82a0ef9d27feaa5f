package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agarclient/internal/persistence/indexdb"
)

func main() {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; default <data>/index/sessions.db)")
	addr := fs.String("addr", "", "server address filter (states, latest)")
	user := fs.String("user", "", "account name (latest)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(os.Args[1:])

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "sessions.db")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	if *limit <= 0 {
		*limit = 20
	}
	ctx := context.Background()

	switch q {
	case "sessions":
		rows, err := idx.Sessions(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(sessionRow(r))
		}
	case "states":
		rows, err := idx.States(ctx, strings.TrimSpace(*addr), *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(struct {
				Addr  string `json:"addr"`
				State string `json:"state"`
				At    string `json:"at"`
			}{r.Addr, r.State, r.At.Format(time.RFC3339Nano)})
		}
	case "latest":
		if strings.TrimSpace(*addr) == "" || strings.TrimSpace(*user) == "" {
			fmt.Fprintln(os.Stderr, "latest needs -addr and -user")
			os.Exit(2)
		}
		r, ok, err := idx.LatestSession(ctx, *addr, *user)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "no session recorded")
			os.Exit(2)
		}
		printJSON(sessionRow(r))
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want sessions, states or latest)")
		os.Exit(2)
	}
}

type sessionJSON struct {
	Addr     string `json:"addr"`
	Username string `json:"username"`
	Token    string `json:"token"`
	Active   bool   `json:"active"`
	IssuedAt string `json:"issued_at"`
}

func sessionRow(s indexdb.Session) sessionJSON {
	return sessionJSON{
		Addr:     s.Addr,
		Username: s.Username,
		Token:    s.Token,
		Active:   s.Token != "",
		IssuedAt: s.IssuedAt.Format(time.RFC3339Nano),
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
