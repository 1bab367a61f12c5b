// Package client mirrors the authoritative world for one player. Network
// callbacks only enqueue; all state changes happen on the simulation goroutine.
package client

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/sim/tasks"
	"realmsync.ai/internal/sim/tuning"
	"realmsync.ai/internal/sim/world"
)

// HUD texts.
const (
	HUDDisconnected = "SERVER DISCONNECTED"
	HUDChestDenied  = "COULD NOT OPEN THIS CHEST"
	HUDGameSaved    = "GAME SAVED"
	HUDWon          = "YOU WON"
)

const hudKeep = 64

type Transport interface {
	Send(env protocol.Envelope) error
}

type Config struct {
	Tuning tuning.Tuning
	Name   string
	Logger *log.Logger
	Now    func() time.Time

	// OnEffect receives effect blobs for the simulation to play.
	OnEffect func(data []byte)

	QueueSize int
}

type Client struct {
	tune     tuning.Tuning
	log      *log.Logger
	now      func() time.Time
	onEffect func([]byte)

	bridge *tasks.Bridge
	out    Transport
	world  *world.World

	name  string
	conn  protocol.ConnID
	local protocol.EntityID
	ready bool

	pending []*protocol.AddEntity
	targets map[protocol.EntityID]mgl64.Vec3

	offset      time.Duration
	offsetKnown bool
	nextPingID  int

	chestOpen protocol.EntityID

	speed float64
	spawn mgl64.Vec3
	won   bool

	hud          []string
	lastMoveSent time.Time
}

func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		tune:      cfg.Tuning,
		log:       cfg.Logger,
		now:       cfg.Now,
		onEffect:  cfg.OnEffect,
		bridge:    tasks.NewBridge(cfg.QueueSize),
		world:     world.New(),
		name:      cfg.Name,
		local:     protocol.NoEntity,
		targets:   map[protocol.EntityID]mgl64.Vec3{},
		chestOpen: protocol.NoEntity,
	}
}

func (c *Client) Attach(t Transport) { c.out = t }

// Accessors below are for the simulation goroutine.

func (c *Client) World() *world.World                { return c.world }
func (c *Client) Ready() bool                        { return c.ready }
func (c *Client) Local() protocol.EntityID           { return c.local }
func (c *Client) Name() string                       { return c.name }
func (c *Client) Offset() time.Duration              { return c.offset }
func (c *Client) ChestOpen() protocol.EntityID       { return c.chestOpen }
func (c *Client) Won() bool                          { return c.won }
func (c *Client) PlayerSpeed() float64               { return c.speed }
func (c *Client) SpawnPoint() mgl64.Vec3             { return c.spawn }
func (c *Client) Pending() int                       { return len(c.pending) }
func (c *Client) HUD() []string                      { return append([]string(nil), c.hud...) }
func (c *Client) Enqueue(fn func()) error            { return c.bridge.Enqueue(fn) }
func (c *Client) LocalEntity() (*world.Entity, bool) { return c.world.Get(c.local) }

// Run drives the client loop until ctx is done. tick runs after each step.
func (c *Client) Run(ctx context.Context, tick func(now time.Time)) error {
	err := c.bridge.Run(ctx, c.tune.TickInterval(), func(now time.Time) {
		c.advance(now)
		if tick != nil {
			tick(now)
		}
	})
	c.bridge.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Step runs one tick synchronously.
func (c *Client) Step(now time.Time) {
	c.bridge.Step()
	c.advance(now)
}

// Listener side, on the connection goroutine.

func (c *Client) OnMessage(env protocol.Envelope) {
	task := func() { protocol.Dispatch(0, env, c) }
	if !env.Reliable {
		c.bridge.TryEnqueue(task)
		return
	}
	_ = c.bridge.Enqueue(task)
}

func (c *Client) OnDisconnect() {
	_ = c.bridge.Enqueue(func() {
		c.ready = false
		c.say(HUDDisconnected)
	})
}

// Simulation goroutine from here on.

func (c *Client) say(line string) {
	c.hud = append(c.hud, line)
	if len(c.hud) > hudKeep {
		c.hud = append(c.hud[:0], c.hud[len(c.hud)-hudKeep:]...)
	}
	c.log.Printf("hud %s", line)
}

func (c *Client) send(p protocol.Payload) {
	if c.out == nil {
		return
	}
	if err := c.out.Send(protocol.New(c.now(), p)); err != nil {
		c.log.Printf("send type=%s err=%v", p.Kind(), err)
	}
}

func (c *Client) advance(now time.Time) {
	c.smooth()
	if !c.ready {
		return
	}
	if now.Sub(c.lastMoveSent) < c.tune.MoveSendInterval() {
		return
	}
	e, ok := c.world.Get(c.local)
	if !ok {
		return
	}
	c.lastMoveSent = now
	c.send(&protocol.Move{EntityID: e.ID, Pos: [3]float64(e.Pos), State: uint8(e.State), Dir: [3]float64(e.Dir)})
}

// smooth moves each remote entity a fixed fraction toward its last reported
// position.
func (c *Client) smooth() {
	for id, target := range c.targets {
		e, ok := c.world.Get(id)
		if !ok {
			delete(c.targets, id)
			continue
		}
		e.Pos = world.Lerp(e.Pos, target, c.tune.SmoothingFraction)
		if e.Pos.ApproxEqualThreshold(target, 1e-3) {
			e.Pos = target
			delete(c.targets, id)
		}
	}
}

// stale reports whether a server timestamp is too old to apply.
func (c *Client) stale(ts int64) bool {
	local := time.UnixMilli(ts).Add(c.offset)
	return c.now().Sub(local) > c.tune.StaleAfter()
}
