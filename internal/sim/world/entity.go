package world

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/protocol"
)

type Kind string

const (
	KindPlayer Kind = "PLAYER"
	KindMob    Kind = "MOB"
	KindItem   Kind = "ITEM"
	KindChest  Kind = "CHEST"
	KindLever  Kind = "LEVER"
)

func (k Kind) valid() bool {
	switch k {
	case KindPlayer, KindMob, KindItem, KindChest, KindLever:
		return true
	}
	return false
}

// holds reports whether entities of this kind carry an inventory.
func (k Kind) holds() bool { return k == KindPlayer || k == KindChest }

// AnimState is the animation ordinal carried by Move.
type AnimState uint8

const (
	StateIdle AnimState = iota
	StateWalk
	StateRun
	StateAttack
	StateDead
)

type ItemKind string

const (
	ItemNone   ItemKind = ""
	ItemWeapon ItemKind = "WEAPON"
	ItemArmor  ItemKind = "ARMOR"
	ItemPotion ItemKind = "POTION"
	ItemKey    ItemKind = "KEY"
)

func (k ItemKind) Equippable() bool { return k == ItemWeapon || k == ItemArmor }
func (k ItemKind) Consumable() bool { return k == ItemPotion }

// Entity is the state this layer reads and writes. Scene and physics data
// live with the simulation collaborator.
type Entity struct {
	ID    protocol.EntityID `json:"id"`
	Kind  Kind              `json:"kind"`
	Name  string            `json:"name,omitempty"`
	Pos   mgl64.Vec3        `json:"pos"`
	Dir   mgl64.Vec3        `json:"dir"`
	State AnimState         `json:"state"`

	HP    int `json:"hp,omitempty"`
	MaxHP int `json:"max_hp,omitempty"`
	Hits  int `json:"hits,omitempty"`

	Item     ItemKind            `json:"item,omitempty"`
	Holder   protocol.EntityID   `json:"holder"`
	Contents []protocol.EntityID `json:"contents,omitempty"`
	Equipped []protocol.EntityID `json:"equipped,omitempty"`

	// Available is the container access flag: false while one client holds it open.
	Available   bool `json:"available"`
	Activatable bool `json:"activatable,omitempty"`
	Active      bool `json:"active,omitempty"`

	// InContainer is client-local UI state and never leaves the process.
	InContainer bool `json:"-"`
}

func (e *Entity) Alive() bool {
	switch e.Kind {
	case KindPlayer, KindMob:
		return e.HP > 0 && e.State != StateDead
	}
	return true
}

func (e *Entity) has(id protocol.EntityID) bool {
	for _, c := range e.Contents {
		if c == id {
			return true
		}
	}
	return false
}

func (e *Entity) IsEquipped(id protocol.EntityID) bool {
	for _, c := range e.Equipped {
		if c == id {
			return true
		}
	}
	return false
}

func removeID(ids []protocol.EntityID, id protocol.EntityID) []protocol.EntityID {
	for i, c := range ids {
		if c == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (e *Entity) clone() *Entity {
	c := *e
	c.Contents = append([]protocol.EntityID(nil), e.Contents...)
	c.Equipped = append([]protocol.EntityID(nil), e.Equipped...)
	return &c
}

// EncodeEntity produces the opaque blob carried by AddEntity and snapshots.
func EncodeEntity(e *Entity) ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEntity(b []byte) (*Entity, error) {
	var e Entity
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	if e.ID < 0 {
		return nil, fmt.Errorf("decode entity: negative id %d", e.ID)
	}
	if !e.Kind.valid() {
		return nil, fmt.Errorf("decode entity %d: unknown kind %q", e.ID, e.Kind)
	}
	return &e, nil
}
