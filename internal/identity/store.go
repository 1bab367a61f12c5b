// Package identity keeps the name <-> entity id bindings of returning players.
// It is saved next to the world snapshot but in its own file.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"realmsync.ai/internal/protocol"
)

// NotFound is returned by GetID for unknown names.
const NotFound = protocol.NoEntity

// Record is one persisted binding.
type Record struct {
	Name string            `json:"name"`
	ID   protocol.EntityID `json:"id"`
}

// Store holds at most one id per name and at most one name per id.
// It is owned by the server simulation goroutine.
type Store struct {
	byName map[string]protocol.EntityID
	byID   map[protocol.EntityID]string
}

func NewStore() *Store {
	return &Store{
		byName: map[string]protocol.EntityID{},
		byID:   map[protocol.EntityID]string{},
	}
}

func (s *Store) ContainsName(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// AddData binds name to id. The name's previous id and any other name
// previously bound to id are released.
func (s *Store) AddData(name string, id protocol.EntityID) {
	if old, ok := s.byName[name]; ok {
		delete(s.byID, old)
	}
	if oldName, ok := s.byID[id]; ok {
		delete(s.byName, oldName)
	}
	s.byName[name] = id
	s.byID[id] = name
}

func (s *Store) GetID(name string) protocol.EntityID {
	id, ok := s.byName[name]
	if !ok {
		return NotFound
	}
	return id
}

func (s *Store) GetName(id protocol.EntityID) (string, bool) {
	name, ok := s.byID[id]
	return name, ok
}

func (s *Store) Remove(name string) {
	if id, ok := s.byName[name]; ok {
		delete(s.byID, id)
		delete(s.byName, name)
	}
}

// Prune removes every binding whose id keep rejects and returns the
// released names sorted.
func (s *Store) Prune(keep func(protocol.EntityID) bool) []string {
	var dropped []string
	for name, id := range s.byName {
		if keep(id) {
			continue
		}
		delete(s.byName, name)
		delete(s.byID, id)
		dropped = append(dropped, name)
	}
	sort.Strings(dropped)
	return dropped
}

func (s *Store) Len() int { return len(s.byName) }

// Records returns every binding sorted by name.
func (s *Store) Records() []Record {
	out := make([]Record, 0, len(s.byName))
	for name, id := range s.byName {
		out = append(out, Record{Name: name, ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save writes the records as a JSON list, replacing path atomically.
func (s *Store) Save(path string) error {
	b, err := json.MarshalIndent(s.Records(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a store written by Save. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := NewStore()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	for _, r := range recs {
		if r.Name == "" || r.ID < 0 {
			continue
		}
		s.AddData(r.Name, r.ID)
	}
	return s, nil
}
