// Package indexdb is a queryable side index of server activity: sessions,
// chat and saves. It never feeds back into the simulation.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SessionEvent is a connect/join/leave record.
type SessionEvent struct {
	At     time.Time
	Conn   int
	Entity int64
	Name   string
	Kind   string // "connect", "join", "resume", "leave"
}

type ChatEvent struct {
	At      time.Time
	From    int64
	Source  string
	To      string // recipient name for private messages
	Text    string
	Command string
}

type SaveEvent struct {
	At       time.Time
	SaveID   string
	Path     string
	Entities int
	Players  int
	Manual   bool
}

// Stats reports the writer backlog. Dropped counts records that never
// reached the database, whether shed at the queue or lost to a write error.
type Stats struct {
	QueueDepth    int
	QueueCapacity int
	Dropped       uint64
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqChat
	reqSave
)

type req struct {
	kind reqKind

	session SessionEvent
	chat    ChatEvent
	save    SaveEvent
}

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
		db: db,
		ch: make(chan req, 8192),
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
		`CREATE TABLE IF NOT EXISTS sessions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			conn INTEGER NOT NULL,
			entity INTEGER NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('connect','join','resume','leave'))
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_name ON sessions(name, at);`,
		`CREATE TABLE IF NOT EXISTS chat (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			from_entity INTEGER NOT NULL,
			source TEXT NOT NULL,
			to_name TEXT,
			text TEXT NOT NULL,
			command TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_from ON chat(from_entity, at);`,
		`CREATE TABLE IF NOT EXISTS saves (
			save_id TEXT PRIMARY KEY,
			at TEXT NOT NULL,
			path TEXT NOT NULL,
			entities INTEGER NOT NULL,
			players INTEGER NOT NULL,
			manual INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes queued records and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		Dropped:       s.dropped.Load(),
	}
}

// enqueue drops when the writer falls behind; the journal remains the
// source of truth.
func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) RecordSession(e SessionEvent) { s.enqueue(req{kind: reqSession, session: e}) }
func (s *SQLiteIndex) RecordChat(e ChatEvent)       { s.enqueue(req{kind: reqChat, chat: e}) }
func (s *SQLiteIndex) RecordSave(e SaveEvent)       { s.enqueue(req{kind: reqSave, save: e}) }

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT INTO sessions(at,conn,entity,name,kind) VALUES(?,?,?,?,?)`)
	insertChat, _ := s.db.Prepare(`INSERT INTO chat(at,from_entity,source,to_name,text,command) VALUES(?,?,?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(save_id,at,path,entities,players,manual) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertSession, insertChat, insertSave} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
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
			s.dropped.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	// A failed statement is undone on its own; the rest of the batch stays.
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			s.dropped.Add(1)
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.dropped.Add(1)
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.dropped.Add(1)
			continue
		}
		switch r.kind {
		case reqSession:
			e := r.session
			exec(insertSession, ts(e.At), e.Conn, e.Entity, e.Name, e.Kind)
		case reqChat:
			e := r.chat
			exec(insertChat, ts(e.At), e.From, e.Source, e.To, e.Text, e.Command)
		case reqSave:
			e := r.save
			manual := 0
			if e.Manual {
				manual = 1
			}
			exec(insertSave, e.SaveID, ts(e.At), e.Path, e.Entities, e.Players, manual)
		}
		// Saves are rare and worth seeing immediately.
		if r.kind == reqSave || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
