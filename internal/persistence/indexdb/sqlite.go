package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteIndex records issued session tokens and connection state
// transitions. Writes go through a buffered channel to a single writer
// goroutine and are dropped when it falls behind; the capture log stays
// the source of truth.
type SQLiteIndex struct {
	db  *sql.DB
	now func() time.Time

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// chMu guards sends on ch against Close closing it.
	chMu   sync.RWMutex
	closed atomic.Bool

	dropped   atomic.Uint64
	writeErrs atomic.Uint64
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqState
	reqFlush
)

type req struct {
	kind reqKind

	session Session
	state   StateRow
	done    chan struct{}
}

// Session is one issued (or cleared) session token.
type Session struct {
	Addr     string
	Username string
	Token    string
	IssuedAt time.Time
}

type StateRow struct {
	Addr  string
	State string
	At    time.Time
}

type Stats struct {
	DroppedTotal  uint64
	ErrorTotal    uint64
	QueueDepth    int
	QueueCapacity int
}

const timeLayout = time.RFC3339Nano

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		now: time.Now,
		ch:  make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			addr TEXT NOT NULL,
			username TEXT NOT NULL,
			token TEXT NOT NULL,
			issued_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_addr_user ON sessions(addr, username, id);`,
		`CREATE TABLE IF NOT EXISTS states (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			addr TEXT NOT NULL,
			state TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.chMu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.chMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req) {
	s.chMu.RLock()
	defer s.chMu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// RecordSession stores the token issued to user on addr. An empty token
// records a logout.
func (s *SQLiteIndex) RecordSession(addr, username, token string) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqSession, session: Session{
		Addr:     addr,
		Username: username,
		Token:    token,
		IssuedAt: s.now().UTC(),
	}})
}

func (s *SQLiteIndex) RecordState(addr, state string) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqState, state: StateRow{Addr: addr, State: state, At: s.now().UTC()}})
}

// Flush waits until every write queued before it is committed.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.chMu.RLock()
	if s.closed.Load() {
		s.chMu.RUnlock()
		return
	}
	s.ch <- req{kind: reqFlush, done: done}
	s.chMu.RUnlock()
	<-done
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DroppedTotal:  s.dropped.Load(),
		ErrorTotal:    s.writeErrs.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

// LatestSession returns the most recent session row for user on addr.
func (s *SQLiteIndex) LatestSession(ctx context.Context, addr, username string) (Session, bool, error) {
	s.Flush()
	row := s.db.QueryRowContext(ctx,
		`SELECT addr,username,token,issued_at FROM sessions WHERE addr=? AND username=? ORDER BY id DESC LIMIT 1`,
		addr, username)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var (
		sess Session
		at   string
	)
	if err := sc.Scan(&sess.Addr, &sess.Username, &sess.Token, &at); err != nil {
		return Session{}, err
	}
	t, err := time.Parse(timeLayout, at)
	if err != nil {
		return Session{}, fmt.Errorf("sessions.issued_at %q: %w", at, err)
	}
	sess.IssuedAt = t
	return sess, nil
}

// Sessions lists session rows, newest first.
func (s *SQLiteIndex) Sessions(ctx context.Context, limit int) ([]Session, error) {
	s.Flush()
	rows, err := s.db.QueryContext(ctx,
		`SELECT addr,username,token,issued_at FROM sessions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// States lists state transitions for addr (all when empty), newest first.
func (s *SQLiteIndex) States(ctx context.Context, addr string, limit int) ([]StateRow, error) {
	s.Flush()
	rows, err := s.db.QueryContext(ctx,
		`SELECT addr,state,at FROM states WHERE (?='' OR addr=?) ORDER BY id DESC LIMIT ?`, addr, addr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StateRow
	for rows.Next() {
		var (
			r  StateRow
			at string
		)
		if err := rows.Scan(&r.Addr, &r.State, &at); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeLayout, at)
		if err != nil {
			return nil, fmt.Errorf("states.at %q: %w", at, err)
		}
		r.At = t
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT INTO sessions(addr,username,token,issued_at) VALUES(?,?,?,?)`)
	insertState, _ := s.db.Prepare(`INSERT INTO states(addr,state,at) VALUES(?,?,?)`)
	defer func() {
		if insertSession != nil {
			_ = insertSession.Close()
		}
		if insertState != nil {
			_ = insertState.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrs.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrs.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
		s.writeErrs.Add(1)
	}
	// Rows are sparse, so an idle queue commits right away and keeps the
	// single connection free for readers.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSession:
			if insertSession == nil {
				break
			}
			se := r.session
			if _, err := tx.Stmt(insertSession).Exec(se.Addr, se.Username, se.Token, se.IssuedAt.Format(timeLayout)); err != nil {
				rollback()
				continue
			}
			opCount++
		case reqState:
			if insertState == nil {
				break
			}
			st := r.state
			if _, err := tx.Stmt(insertState).Exec(st.Addr, st.State, st.At.Format(timeLayout)); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
