package main

import (
	"testing"
	"time"

	"realmsync.ai/internal/persistence/journal"
	"realmsync.ai/internal/protocol"
)

func TestSummary_CountsKindsAndBadFrames(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	encode := func(p protocol.Payload) []byte {
		b, err := protocol.Encode(protocol.New(now, p))
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		return b
	}

	s := newSummary()
	s.add(journal.Entry{At: 10, Conn: 1, Raw: encode(&protocol.Move{EntityID: 1})})
	s.add(journal.Entry{At: 30, Conn: 1, Raw: encode(&protocol.Chat{Text: "hi"})})
	s.add(journal.Entry{At: 20, Conn: 2, Raw: encode(&protocol.Chat{Text: "yo"})})
	s.add(journal.Entry{At: 25, Conn: 2, Raw: []byte(`{"type":"NOPE"}`)})
	s.add(journal.Entry{At: 26, Conn: 2, Bad: "garbage"})

	if s.total != 5 || s.bad != 2 {
		t.Fatalf("total=%d bad=%d", s.total, s.bad)
	}
	if s.byKind[protocol.KindChat] != 2 || s.byKind[protocol.KindMove] != 1 {
		t.Fatalf("byKind=%v", s.byKind)
	}
	if s.reliables != 2 {
		t.Fatalf("reliables=%d", s.reliables)
	}
	if s.first != 10 || s.last != 30 || len(s.byConn) != 2 {
		t.Fatalf("first=%d last=%d conns=%d", s.first, s.last, len(s.byConn))
	}
}
