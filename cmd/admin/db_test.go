package main

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"realmsync.ai/internal/persistence/indexdb"
)

func TestRunQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	at := time.Unix(1_700_000_000, 0)
	idx.RecordSession(indexdb.SessionEvent{At: at, Conn: 1, Entity: 7, Name: "alice", Kind: "join"})
	idx.RecordSession(indexdb.SessionEvent{At: at, Conn: 2, Entity: 8, Name: "bob", Kind: "join"})
	idx.RecordChat(indexdb.ChatEvent{At: at, From: 7, Source: "alice", Text: "hi"})
	idx.RecordSave(indexdb.SaveEvent{At: at, SaveID: "s1", Path: "p", Entities: 4, Players: 2, Manual: true})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var got []any
	emit := func(v any) { got = append(got, v) }

	if err := runQuery(db, "sessions", "alice", 10, emit); err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(got) != 1 || got[0].(sessionRow).Entity != 7 {
		t.Fatalf("sessions=%v", got)
	}

	got = nil
	if err := runQuery(db, "saves", "", 10, emit); err != nil {
		t.Fatalf("saves: %v", err)
	}
	if len(got) != 1 || !got[0].(saveRow).Manual || got[0].(saveRow).Players != 2 {
		t.Fatalf("saves=%v", got)
	}

	got = nil
	if err := runQuery(db, "chat", "", 10, emit); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(got) != 1 || got[0].(chatRow).Text != "hi" {
		t.Fatalf("chat=%v", got)
	}

	if err := runQuery(db, "nope", "", 10, emit); err == nil {
		t.Fatalf("expected error for unknown query")
	}
}
