package world

import (
	"fmt"

	"realmsync.ai/internal/protocol"
)

func (w *World) holderOf(id protocol.EntityID) (*Entity, error) {
	h, ok := w.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if !h.Kind.holds() {
		return nil, fmt.Errorf("%w: %d is %s", ErrNotContainer, id, h.Kind)
	}
	return h, nil
}

func (w *World) item(id protocol.EntityID) (*Entity, error) {
	it, ok := w.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	return it, nil
}

// Give puts a loose item into holder's inventory.
func (w *World) Give(holder, item protocol.EntityID) error {
	h, err := w.holderOf(holder)
	if err != nil {
		return err
	}
	it, err := w.item(item)
	if err != nil {
		return err
	}
	if it.Holder != protocol.NoEntity {
		if it.Holder == holder {
			return nil
		}
		return fmt.Errorf("%w: item %d is held by %d", ErrNotHeld, item, it.Holder)
	}
	it.Holder = holder
	h.Contents = append(h.Contents, item)
	return nil
}

// MoveItem transfers item from one inventory to another. Moving an item
// that already sits in to is a no-op, so replays converge.
func (w *World) MoveItem(item, from, to protocol.EntityID) error {
	src, err := w.holderOf(from)
	if err != nil {
		return err
	}
	dst, err := w.holderOf(to)
	if err != nil {
		return err
	}
	it, err := w.item(item)
	if err != nil {
		return err
	}
	if it.Holder == to && dst.has(item) {
		return nil
	}
	if it.Holder != from || !src.has(item) {
		return fmt.Errorf("%w: item %d not in %d", ErrNotHeld, item, from)
	}
	src.Contents = removeID(src.Contents, item)
	src.Equipped = removeID(src.Equipped, item)
	dst.Contents = append(dst.Contents, item)
	it.Holder = to
	return nil
}

// Drop places a held item on the ground at the actor's position.
func (w *World) Drop(actor, item protocol.EntityID) error {
	a, err := w.holderOf(actor)
	if err != nil {
		return err
	}
	it, err := w.item(item)
	if err != nil {
		return err
	}
	if it.Holder != actor || !a.has(item) {
		return fmt.Errorf("%w: item %d not in %d", ErrNotHeld, item, actor)
	}
	a.Contents = removeID(a.Contents, item)
	a.Equipped = removeID(a.Equipped, item)
	it.Holder = protocol.NoEntity
	it.Pos = a.Pos
	return nil
}

// Pickup moves a ground item into the actor's inventory.
func (w *World) Pickup(actor, item protocol.EntityID) error {
	return w.Give(actor, item)
}

// Equip toggles item in the actor's equipment. Only one item of each kind is
// equipped at a time.
func (w *World) Equip(actor, item protocol.EntityID, on bool) error {
	a, err := w.holderOf(actor)
	if err != nil {
		return err
	}
	it, err := w.item(item)
	if err != nil {
		return err
	}
	if !it.Item.Equippable() {
		return &ContractError{Op: "equip", ID: item, Reason: fmt.Sprintf("item kind %q is not equippable", it.Item)}
	}
	if !a.has(item) {
		return fmt.Errorf("%w: item %d not in %d", ErrNotHeld, item, actor)
	}
	if !on {
		a.Equipped = removeID(a.Equipped, item)
		return nil
	}
	if a.IsEquipped(item) {
		return nil
	}
	keep := a.Equipped[:0]
	for _, id := range a.Equipped {
		if other, ok := w.entities[id]; ok && other.Item == it.Item {
			continue
		}
		keep = append(keep, id)
	}
	a.Equipped = append(keep, item)
	return nil
}

// Use applies a right-click on a held item. Consumables are used up and the
// return value reports that.
func (w *World) Use(actor, item protocol.EntityID) (consumed bool, err error) {
	a, err := w.holderOf(actor)
	if err != nil {
		return false, err
	}
	it, err := w.item(item)
	if err != nil {
		return false, err
	}
	if !a.has(item) {
		return false, fmt.Errorf("%w: item %d not in %d", ErrNotHeld, item, actor)
	}
	if !it.Item.Consumable() {
		return false, nil
	}
	a.HP += PotionHeal
	if a.MaxHP > 0 && a.HP > a.MaxHP {
		a.HP = a.MaxHP
	}
	w.Remove(item)
	return true, nil
}

// Activate toggles an activatable entity.
func (w *World) Activate(actor, target protocol.EntityID) (bool, error) {
	if _, ok := w.entities[actor]; !ok {
		return false, fmt.Errorf("%w: actor %d", ErrNotFound, actor)
	}
	t, ok := w.entities[target]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrNotFound, target)
	}
	if !t.Activatable {
		return false, &ContractError{Op: "activate", ID: target, Reason: fmt.Sprintf("%s is not activatable", t.Kind)}
	}
	t.Active = !t.Active
	return t.Active, nil
}
