package client

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/sim/world"
)

var _ protocol.Handler = (*Client)(nil)

// must panics on contract violations; other errors mean the entity is
// already gone and the update is dropped.
func must(err error) bool {
	if err == nil {
		return true
	}
	var ce *world.ContractError
	if errors.As(err, &ce) {
		panic(ce)
	}
	return false
}

func (c *Client) HandleMove(src protocol.Source, m *protocol.Move) {
	if m.EntityID == c.local {
		return
	}
	if c.stale(src.Timestamp) {
		return
	}
	e, ok := c.world.Get(m.EntityID)
	if !ok {
		return
	}
	c.targets[e.ID] = mgl64.Vec3(m.Pos)
	e.Dir = mgl64.Vec3(m.Dir)
	e.State = world.AnimState(m.State)
}

func (c *Client) HandleAttack(_ protocol.Source, m *protocol.Attack) {
	if m.EntityID == c.local {
		return
	}
	e, ok := c.world.Get(m.EntityID)
	if !ok {
		return
	}
	e.Pos = mgl64.Vec3(m.Pos)
	e.Dir = mgl64.Vec3(m.Dir)
	e.State = world.StateAttack
	delete(c.targets, e.ID)
}

func (c *Client) HandleChat(_ protocol.Source, m *protocol.Chat) {
	for _, line := range WrapChat(m.Source, m.Text, c.tune.ChatWrapOver, c.tune.ChatLineWidth) {
		c.say(line)
	}
}

func (c *Client) HandleEffect(_ protocol.Source, m *protocol.Effect) {
	if c.onEffect != nil {
		c.onEffect(m.Data)
	}
}

// HandleAddEntity only queues; nothing is visible until the finish signal.
func (c *Client) HandleAddEntity(_ protocol.Source, m *protocol.AddEntity) {
	c.pending = append(c.pending, m)
}

// HandleAddEntityFinish admits the whole pending batch or none of it.
func (c *Client) HandleAddEntityFinish(protocol.Source, *protocol.AddEntityFinish) {
	pending := c.pending
	c.pending = nil
	batch := make([]*world.Entity, 0, len(pending))
	for _, add := range pending {
		e, err := world.DecodeEntity(add.Data)
		if err != nil {
			c.log.Printf("admit: drop batch of %d: %v", len(pending), err)
			return
		}
		e.ID = add.EntityID
		e.Pos = mgl64.Vec3(add.Pos)
		batch = append(batch, e)
	}
	if err := c.world.Admit(batch); err != nil {
		c.log.Printf("admit: drop batch of %d: %v", len(pending), err)
	}
}

func (c *Client) HandleRemoveEntity(_ protocol.Source, m *protocol.RemoveEntity) {
	c.world.Remove(m.EntityID)
	delete(c.targets, m.EntityID)
	if c.chestOpen == m.EntityID {
		c.chestOpen = protocol.NoEntity
	}
	if m.EntityID == c.local {
		c.local = protocol.NoEntity
		c.ready = false
		c.chestOpen = protocol.NoEntity
	}
}

func (c *Client) HandleDayNight(_ protocol.Source, m *protocol.DayNight) {
	c.world.SetTime(m.Time)
}

// HandleChestAccess shows the chest only when the local player asked for it.
// A denial closes any local container state.
func (c *Client) HandleChestAccess(_ protocol.Source, m *protocol.ChestAccess) {
	p, ok := c.world.Get(c.local)
	if !ok || m.ActorID != c.local {
		return
	}
	if m.Open {
		if p.InContainer {
			c.chestOpen = m.ContainerID
		}
		return
	}
	p.InContainer = false
	c.chestOpen = protocol.NoEntity
	c.say(HUDChestDenied)
}

// HandleInventoryTransfer mirrors the server. Our own transfers were already
// applied locally and MoveItem treats the echo as a no-op.
func (c *Client) HandleInventoryTransfer(_ protocol.Source, m *protocol.InventoryTransfer) {
	must(c.world.MoveItem(m.ItemID, m.FromID, m.ToID))
}

func (c *Client) HandleItemTransfer(_ protocol.Source, m *protocol.ItemTransfer) {
	if m.ActorID == c.local {
		return
	}
	if m.Drop {
		must(c.world.Drop(m.ActorID, m.ItemID))
		return
	}
	must(c.world.Pickup(m.ActorID, m.ItemID))
}

func (c *Client) HandleEquipItem(_ protocol.Source, m *protocol.EquipItem) {
	if m.ActorID == c.local {
		return
	}
	must(c.world.Equip(m.ActorID, m.ItemID, m.Equip))
}

func (c *Client) HandleServerSave(protocol.Source, *protocol.ServerSave) {
	c.say(HUDGameSaved)
}

func (c *Client) HandleRightClick(_ protocol.Source, m *protocol.RightClick) {
	if m.ActorID == c.local {
		return
	}
	_, err := c.world.Use(m.ActorID, m.ItemID)
	must(err)
}

func (c *Client) HandleOnActivate(_ protocol.Source, m *protocol.OnActivate) {
	if m.ActorID == c.local {
		return
	}
	_, err := c.world.Activate(m.ActorID, m.EntityID)
	must(err)
}

// HandlePlayerSetup is the server's answer to a join or /name. An empty name
// means we were given a fresh entity.
func (c *Client) HandlePlayerSetup(_ protocol.Source, m *protocol.PlayerSetup) {
	if m.Name != "" {
		c.name = m.Name
	}
}

func (c *Client) HandlePlayerJoined(_ protocol.Source, m *protocol.PlayerJoined) {
	c.local = m.EntityID
	c.conn = m.ConnectionID
	c.ready = true
	c.chestOpen = protocol.NoEntity
	delete(c.targets, m.EntityID)
	c.log.Printf("joined entity=%d conn=%d", m.EntityID, m.ConnectionID)
}

// HandlePing updates the clock offset from the echo and sends the next round
// until the counter runs out.
func (c *Client) HandlePing(src protocol.Source, m *protocol.Ping) {
	now := c.now()
	rtt := now.Sub(time.UnixMilli(m.SentTime))
	if rtt < 0 {
		rtt = 0
	}
	c.offset = now.Sub(time.UnixMilli(src.Timestamp)) - rtt/2
	c.offsetKnown = true

	left := m.RemainingRounds - 1
	if left <= 0 {
		c.log.Printf("clock offset=%s rtt=%s", c.offset, rtt)
		return
	}
	c.send(&protocol.Ping{ID: m.ID, SentTime: now.UnixMilli(), RemainingRounds: left})
}

func (c *Client) HandleGameWon(protocol.Source, *protocol.GameWon) {
	if c.won {
		return
	}
	c.won = true
	c.say(HUDWon)
}

func (c *Client) HandlePlayerSpeed(_ protocol.Source, m *protocol.PlayerSpeed) {
	c.speed = m.Speed
	c.spawn = mgl64.Vec3(m.Spawn)
}
