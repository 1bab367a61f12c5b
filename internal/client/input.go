package client

import (
	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/sim/world"
)

// Local input. Every method applies the change to the local world first and
// then tells the server; Move alone waits for the send cadence.

// Synced reports whether at least one ping round has set the clock offset.
func (c *Client) Synced() bool { return c.offsetKnown }

// Join asks the server for an entity under the configured name.
func (c *Client) Join() {
	c.send(&protocol.PlayerSetup{ConnectionID: c.conn, Name: c.name})
}

// StartPing begins a round of clock offset estimation.
func (c *Client) StartPing() {
	c.nextPingID++
	c.send(&protocol.Ping{ID: c.nextPingID, SentTime: c.now().UnixMilli(), RemainingRounds: c.tune.PingRounds})
}

// MoveTo places the local player. The server hears about it on the next
// send tick.
func (c *Client) MoveTo(pos, dir mgl64.Vec3, state world.AnimState) {
	e, ok := c.world.Get(c.local)
	if !ok {
		return
	}
	e.Pos, e.Dir, e.State = pos, dir, state
}

func (c *Client) Attack() {
	e, ok := c.world.Get(c.local)
	if !ok || !c.ready {
		return
	}
	e.State = world.StateAttack
	c.send(&protocol.Attack{EntityID: e.ID, Pos: [3]float64(e.Pos), Dir: [3]float64(e.Dir)})
}

func (c *Client) Say(text string) {
	if text == "" {
		return
	}
	c.send(&protocol.Chat{Text: text, Source: c.name, ID: c.local})
}

func (c *Client) Drop(item protocol.EntityID) {
	if !must(c.world.Drop(c.local, item)) {
		return
	}
	c.send(&protocol.ItemTransfer{ItemID: item, ActorID: c.local, Drop: true})
}

func (c *Client) PickUp(item protocol.EntityID) {
	if !must(c.world.Pickup(c.local, item)) {
		return
	}
	c.send(&protocol.ItemTransfer{ItemID: item, ActorID: c.local, Drop: false})
}

func (c *Client) Equip(item protocol.EntityID, on bool) {
	if !must(c.world.Equip(c.local, item, on)) {
		return
	}
	c.send(&protocol.EquipItem{ItemID: item, ActorID: c.local, Equip: on})
}

func (c *Client) RightClick(item protocol.EntityID) {
	if _, err := c.world.Use(c.local, item); !must(err) {
		return
	}
	c.send(&protocol.RightClick{ItemID: item, ActorID: c.local})
}

func (c *Client) Activate(target protocol.EntityID) {
	if _, err := c.world.Activate(c.local, target); !must(err) {
		return
	}
	c.send(&protocol.OnActivate{EntityID: target, ActorID: c.local})
}

// OpenChest flags the local player as entering the container and asks the
// server. The UI opens only when the server grants it.
func (c *Client) OpenChest(chest protocol.EntityID) {
	p, ok := c.world.Get(c.local)
	if !ok {
		return
	}
	p.InContainer = true
	c.send(&protocol.ChestAccess{ContainerID: chest, ActorID: c.local, Open: true})
}

func (c *Client) CloseChest() {
	p, ok := c.world.Get(c.local)
	if !ok || c.chestOpen == protocol.NoEntity {
		return
	}
	chest := c.chestOpen
	p.InContainer = false
	c.chestOpen = protocol.NoEntity
	c.send(&protocol.ChestAccess{ContainerID: chest, ActorID: c.local, Open: false})
}

// Take moves item out of the open chest into the local inventory.
func (c *Client) Take(item protocol.EntityID) {
	if c.chestOpen == protocol.NoEntity {
		return
	}
	c.transfer(item, c.chestOpen, c.local)
}

// Store moves item from the local inventory into the open chest.
func (c *Client) Store(item protocol.EntityID) {
	if c.chestOpen == protocol.NoEntity {
		return
	}
	c.transfer(item, c.local, c.chestOpen)
}

func (c *Client) transfer(item, from, to protocol.EntityID) {
	if !must(c.world.MoveItem(item, from, to)) {
		return
	}
	c.send(&protocol.InventoryTransfer{FromID: from, ToID: to, ItemID: item})
}

func (c *Client) RequestSave() {
	c.send(&protocol.ServerSave{})
}
