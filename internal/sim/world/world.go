// Package world is the mutable world model shared by the server and client
// coordinators. It is owned by one simulation goroutine and never locked.
package world

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/protocol"
)

var (
	ErrNotFound     = errors.New("world: entity not found")
	ErrExists       = errors.New("world: entity already exists")
	ErrNotHeld      = errors.New("world: item not held by entity")
	ErrNotContainer = errors.New("world: entity has no inventory")
)

// ContractError is a message that disagrees with world state in a way a
// correct peer never produces. Coordinators treat it as fatal.
type ContractError struct {
	Op     string
	ID     protocol.EntityID
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("world: %s %d: %s", e.Op, e.ID, e.Reason)
}

// Defaults applied by Spawn.
const (
	DefaultPlayerHP = 10
	DefaultMobHP    = 3
	PotionHeal      = 5
)

type World struct {
	entities map[protocol.EntityID]*Entity
	nextID   protocol.EntityID

	time        float64 // day clock in [0,1)
	mobSpawning bool
	kills       int
}

func New() *World {
	return &World{entities: map[protocol.EntityID]*Entity{}}
}

// Spawn allocates the next id. Ids are monotonic and never reused.
func (w *World) Spawn(kind Kind, pos mgl64.Vec3) *Entity {
	e := &Entity{
		ID:     w.nextID,
		Kind:   kind,
		Pos:    pos,
		Dir:    mgl64.Vec3{0, 0, 1},
		Holder: protocol.NoEntity,
	}
	w.nextID++
	switch kind {
	case KindPlayer:
		e.HP, e.MaxHP = DefaultPlayerHP, DefaultPlayerHP
	case KindMob:
		e.HP, e.MaxHP = DefaultMobHP, DefaultMobHP
	case KindChest:
		e.Available = true
	case KindLever:
		e.Activatable = true
	}
	w.entities[e.ID] = e
	return e
}

// Insert adds an entity with a server-assigned id.
func (w *World) Insert(e *Entity) error {
	if e == nil {
		return fmt.Errorf("world: nil entity")
	}
	if _, ok := w.entities[e.ID]; ok {
		return fmt.Errorf("%w: %d", ErrExists, e.ID)
	}
	w.entities[e.ID] = e
	if e.ID >= w.nextID {
		w.nextID = e.ID + 1
	}
	return nil
}

// Admit inserts the whole batch or nothing.
func (w *World) Admit(batch []*Entity) error {
	seen := make(map[protocol.EntityID]struct{}, len(batch))
	for _, e := range batch {
		if e == nil {
			return fmt.Errorf("world: nil entity in batch")
		}
		if _, ok := w.entities[e.ID]; ok {
			return fmt.Errorf("%w: %d", ErrExists, e.ID)
		}
		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("%w: %d twice in batch", ErrExists, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	for _, e := range batch {
		_ = w.Insert(e)
	}
	return nil
}

func (w *World) Get(id protocol.EntityID) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// Remove deletes id. Items it carried fall to the ground where it stood.
func (w *World) Remove(id protocol.EntityID) (*Entity, bool) {
	e, ok := w.entities[id]
	if !ok {
		return nil, false
	}
	delete(w.entities, id)
	if e.Holder != protocol.NoEntity {
		if h, ok := w.entities[e.Holder]; ok {
			h.Contents = removeID(h.Contents, id)
			h.Equipped = removeID(h.Equipped, id)
		}
	}
	for _, itemID := range e.Contents {
		if it, ok := w.entities[itemID]; ok {
			it.Holder = protocol.NoEntity
			it.Pos = e.Pos
		}
	}
	return e, true
}

func (w *World) Len() int { return len(w.entities) }

// Entities returns every entity sorted by id.
func (w *World) Entities() []*Entity {
	out := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) OfKind(kind Kind) []*Entity {
	var out []*Entity
	for _, e := range w.Entities() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (w *World) NextID() protocol.EntityID { return w.nextID }

// Restore sets the allocator after loading a save.
func (w *World) Restore(next protocol.EntityID) {
	if next > w.nextID {
		w.nextID = next
	}
}

// Snapshot returns deep copies of every entity, sorted by id.
func (w *World) Snapshot() []*Entity {
	ents := w.Entities()
	out := make([]*Entity, len(ents))
	for i, e := range ents {
		out[i] = e.clone()
	}
	return out
}

func (w *World) Time() float64 { return w.time }

func (w *World) SetTime(t float64) {
	t = math.Mod(t, 1)
	if t < 0 {
		t++
	}
	w.time = t
}

// Advance moves the day clock by dt over a day of dayLength.
func (w *World) Advance(dt, dayLength float64) {
	if dayLength <= 0 {
		return
	}
	w.SetTime(w.time + dt/dayLength)
}

func (w *World) MobSpawning() bool      { return w.mobSpawning }
func (w *World) SetMobSpawning(on bool) { w.mobSpawning = on }
func (w *World) Kills() int             { return w.kills }
func (w *World) SetKills(n int)         { w.kills = n }
