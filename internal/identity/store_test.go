package identity

import (
	"os"
	"path/filepath"
	"testing"

	"realmsync.ai/internal/protocol"
)

func TestStore_RebindingNameDropsOldID(t *testing.T) {
	s := NewStore()
	s.AddData("alice", 5)
	s.AddData("alice", 9)

	if got := s.GetID("alice"); got != 9 {
		t.Fatalf("GetID(alice)=%d want 9", got)
	}
	if name, ok := s.GetName(5); ok {
		t.Fatalf("GetName(5)=%q want absent", name)
	}
	if name, ok := s.GetName(9); !ok || name != "alice" {
		t.Fatalf("GetName(9)=%q,%v", name, ok)
	}
}

func TestStore_BindingIDDisplacesPriorName(t *testing.T) {
	s := NewStore()
	s.AddData("alice", 5)
	s.AddData("bob", 5)

	if s.ContainsName("alice") {
		t.Fatalf("alice still registered")
	}
	if got := s.GetID("bob"); got != 5 {
		t.Fatalf("GetID(bob)=%d want 5", got)
	}
	if s.Len() != 1 {
		t.Fatalf("len=%d want 1", s.Len())
	}
}

func TestStore_PruneReleasesRejectedIDs(t *testing.T) {
	s := NewStore()
	s.AddData("carol", 7)
	s.AddData("alice", 2)
	s.AddData("bob", 6)

	dropped := s.Prune(func(id protocol.EntityID) bool { return id < 5 })
	if len(dropped) != 2 || dropped[0] != "bob" || dropped[1] != "carol" {
		t.Fatalf("dropped=%v", dropped)
	}
	if s.ContainsName("bob") || s.Len() != 1 {
		t.Fatalf("records=%v", s.Records())
	}
	if _, ok := s.GetName(6); ok {
		t.Fatalf("id 6 still named")
	}
	if s.GetID("alice") != 2 {
		t.Fatalf("alice=%d", s.GetID("alice"))
	}
}

func TestStore_UnknownName(t *testing.T) {
	s := NewStore()
	if got := s.GetID("nobody"); got != NotFound {
		t.Fatalf("GetID=%d want NotFound", got)
	}
	if s.ContainsName("nobody") {
		t.Fatalf("ContainsName true for unknown name")
	}
}

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players", "players.json")
	s := NewStore()
	s.AddData("carol", 3)
	s.AddData("alice", 1)
	if err := s.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	recs := got.Records()
	if len(recs) != 2 || recs[0] != (Record{Name: "alice", ID: 1}) || recs[1] != (Record{Name: "carol", ID: 3}) {
		t.Fatalf("records=%+v", recs)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("len=%d want 0", s.Len())
	}
}
