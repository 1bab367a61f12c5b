// Package server is the authoritative coordinator. Network goroutines only
// enqueue work; every handler runs on the simulation goroutine.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/identity"
	"realmsync.ai/internal/persistence/indexdb"
	"realmsync.ai/internal/persistence/journal"
	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/registry"
	"realmsync.ai/internal/sim/tasks"
	"realmsync.ai/internal/sim/tuning"
	"realmsync.ai/internal/sim/world"
)

// Transport delivers envelopes to one connection.
type Transport interface {
	Send(conn protocol.ConnID, env protocol.Envelope) error
}

// Index receives activity records. Implementations must not block.
type Index interface {
	RecordSession(e indexdb.SessionEvent)
	RecordChat(e indexdb.ChatEvent)
	RecordSave(e indexdb.SaveEvent)
}

type Journal interface {
	Record(e journal.Entry) error
}

// Mirror copies finished save files off the host. Enqueue must not block
// for long.
type Mirror interface {
	Enqueue(localPath string)
}

type Config struct {
	Tuning tuning.Tuning

	// DataDir holds snapshots and the identity store. Empty disables saving.
	DataDir  string
	Identity *identity.Store

	Logger  *log.Logger
	Now     func() time.Time
	Rand    *rand.Rand
	Index   Index
	Journal Journal
	Mirror  Mirror

	// ArchiveManual copies manual saves into DataDir/archives.
	ArchiveManual bool

	QueueSize int
}

type Metrics struct {
	Tick        uint64 `json:"tick"`
	Conns       int    `json:"conns"`
	Players     int    `json:"players"`
	Entities    int    `json:"entities"`
	QueueDepth  int    `json:"queue_depth"`
	Kills       int    `json:"kills"`
	MobSpawning bool   `json:"mob_spawning"`
	GameWon     bool   `json:"game_won"`
	LastSave    string `json:"last_save,omitempty"`
}

type Server struct {
	tune    tuning.Tuning
	dataDir string
	log     *log.Logger
	now     func() time.Time
	rng     *rand.Rand
	index   Index
	journal Journal
	mirror  Mirror
	archive bool

	bridge *tasks.Bridge
	out    Transport

	world *world.World
	reg   *registry.Registry
	ids   *identity.Store

	// greeted connections have received the entity bootstrap and may be
	// sent deltas.
	greeted map[protocol.ConnID]struct{}
	// chests maps a held container to the connection holding it.
	chests map[protocol.EntityID]protocol.ConnID

	spawn   mgl64.Vec3
	speed   float64
	gameWon bool

	last          time.Time
	lastMoves     time.Time
	lastDayNight  time.Time
	lastMobSpawn  time.Time
	lastSave      time.Time
	lastSavedPath string

	metrics atomic.Pointer[Metrics]
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Identity == nil {
		cfg.Identity = identity.NewStore()
	}
	s := &Server{
		tune:    cfg.Tuning,
		dataDir: cfg.DataDir,
		log:     cfg.Logger,
		now:     cfg.Now,
		rng:     cfg.Rand,
		index:   cfg.Index,
		journal: cfg.Journal,
		mirror:  cfg.Mirror,
		archive: cfg.ArchiveManual,
		bridge:  tasks.NewBridge(cfg.QueueSize),
		world:   world.New(),
		reg:     registry.New(),
		ids:     cfg.Identity,
		greeted: map[protocol.ConnID]struct{}{},
		chests:  map[protocol.EntityID]protocol.ConnID{},
		spawn:   mgl64.Vec3(cfg.Tuning.Spawn),
		speed:   cfg.Tuning.PlayerSpeed,
	}
	s.metrics.Store(&Metrics{})
	return s
}

// Attach sets the transport. Call before Run.
func (s *Server) Attach(t Transport) { s.out = t }

// World is for tests and the simulation goroutine only.
func (s *Server) World() *world.World { return s.world }

func (s *Server) Metrics() Metrics { return *s.metrics.Load() }

// Run drives the simulation until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	err := s.bridge.Run(ctx, s.tune.TickInterval(), s.advance)
	s.bridge.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Step runs one tick synchronously.
func (s *Server) Step(now time.Time) {
	s.bridge.Step()
	s.advance(now)
}

// Seed populates an empty world with a chest, a lever and some loot. Names
// bound to players of another world are forgotten.
func (s *Server) Seed() {
	chest := s.world.Spawn(world.KindChest, mgl64.Vec3{5, 0, 5})
	for _, k := range []world.ItemKind{world.ItemPotion, world.ItemKey, world.ItemArmor} {
		it := s.world.Spawn(world.KindItem, chest.Pos)
		it.Item = k
		_ = s.world.Give(chest.ID, it.ID)
	}
	s.world.Spawn(world.KindLever, mgl64.Vec3{-5, 0, 5})
	sword := s.world.Spawn(world.KindItem, mgl64.Vec3{2, 0, -2})
	sword.Item = world.ItemWeapon
	s.dropStaleNames()
}

// Listener side. These run on connection goroutines.

func (s *Server) OnConnect(conn protocol.ConnID) {
	_ = s.bridge.Enqueue(func() { s.connect(conn) })
}

// OnFrame journals an inbound frame exactly as it arrived.
func (s *Server) OnFrame(conn protocol.ConnID, frame []byte) {
	if s.journal == nil {
		return
	}
	var typ string
	if base, err := protocol.DecodeBase(frame); err == nil {
		typ = string(base.Type)
	}
	if err := s.journal.Record(journal.FromFrame(s.now(), int(conn), typ, frame)); err != nil {
		s.log.Printf("journal conn=%d: %v", conn, err)
	}
}

func (s *Server) OnMessage(conn protocol.ConnID, env protocol.Envelope) {
	task := func() { protocol.Dispatch(conn, env, s) }
	if !env.Reliable {
		// A late Move is worthless; shed it instead of stalling the reader.
		s.bridge.TryEnqueue(task)
		return
	}
	_ = s.bridge.Enqueue(task)
}

func (s *Server) OnDisconnect(conn protocol.ConnID) {
	_ = s.bridge.Enqueue(func() { s.disconnect(conn) })
}

// Simulation goroutine from here on.

func (s *Server) env(p protocol.Payload) protocol.Envelope { return protocol.New(s.now(), p) }

func (s *Server) send(conn protocol.ConnID, p protocol.Payload) {
	if s.out == nil {
		return
	}
	if err := s.out.Send(conn, s.env(p)); err != nil {
		s.log.Printf("send conn=%d type=%s err=%v", conn, p.Kind(), err)
	}
}

func (s *Server) conns() []protocol.ConnID {
	out := make([]protocol.ConnID, 0, len(s.greeted))
	for c := range s.greeted {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Server) broadcast(p protocol.Payload) {
	s.broadcastExcept(0, p)
}

// broadcastExcept skips one connection; ConnIDs start at 1 so 0 skips none.
func (s *Server) broadcastExcept(except protocol.ConnID, p protocol.Payload) {
	if s.out == nil {
		return
	}
	env := s.env(p)
	for _, c := range s.conns() {
		if c == except {
			continue
		}
		if err := s.out.Send(c, env); err != nil && env.Reliable {
			s.log.Printf("broadcast conn=%d type=%s err=%v", c, p.Kind(), err)
		}
	}
}

func addEntity(e *world.Entity) *protocol.AddEntity {
	blob, err := world.EncodeEntity(e)
	if err != nil {
		panic(err)
	}
	return &protocol.AddEntity{EntityID: e.ID, Pos: [3]float64(e.Pos), Data: blob}
}

func (s *Server) connect(conn protocol.ConnID) {
	s.greeted[conn] = struct{}{}
	s.send(conn, &protocol.PlayerSpeed{Speed: s.speed, Spawn: [3]float64(s.spawn)})
	for _, e := range s.world.Entities() {
		s.send(conn, addEntity(e))
	}
	s.send(conn, &protocol.AddEntityFinish{})
	s.log.Printf("connect conn=%d entities=%d", conn, s.world.Len())
	s.recordSession(conn, protocol.NoEntity, "connect")
}

func (s *Server) disconnect(conn protocol.ConnID) {
	delete(s.greeted, conn)
	s.releaseChests(conn)
	eid, ok := s.reg.Unbind(conn)
	if ok {
		if e, found := s.world.Get(eid); found && e.Alive() {
			e.State = world.StateIdle
		}
	}
	s.log.Printf("disconnect conn=%d entity=%d", conn, eid)
	s.recordSession(conn, eid, "leave")
}

func (s *Server) releaseChests(conn protocol.ConnID) {
	for id, holder := range s.chests {
		if holder != conn {
			continue
		}
		delete(s.chests, id)
		if c, ok := s.world.Get(id); ok {
			c.Available = true
		}
	}
}

func (s *Server) recordSession(conn protocol.ConnID, eid protocol.EntityID, kind string) {
	if s.index == nil {
		return
	}
	name, _ := s.ids.GetName(eid)
	s.index.RecordSession(indexdb.SessionEvent{At: s.now(), Conn: int(conn), Entity: int64(eid), Name: name, Kind: kind})
}

// actor returns the sender's own entity when id names it.
func (s *Server) actor(conn protocol.ConnID, id protocol.EntityID) (*world.Entity, bool) {
	bound, ok := s.reg.Entity(conn)
	if !ok || bound != id {
		return nil, false
	}
	return s.world.Get(id)
}

// must panics on contract violations and swallows everything else, which
// is a benign race with a removal.
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

func (s *Server) displayName(id protocol.EntityID) string {
	if name, ok := s.ids.GetName(id); ok {
		return name
	}
	return guestName(id)
}

func (s *Server) advance(now time.Time) {
	if s.last.IsZero() {
		s.last, s.lastMoves, s.lastDayNight, s.lastMobSpawn, s.lastSave = now, now, now, now, now
	}
	dt := now.Sub(s.last).Seconds()
	s.last = now

	s.world.Advance(dt, s.tune.DayLengthS)

	if s.world.MobSpawning() {
		if due(now, s.lastMobSpawn, s.tune.MobSpawnEvery()) {
			s.lastMobSpawn = now
			s.spawnMob()
		}
	}
	if dt > 0 {
		s.world.StepMobs(dt, s.tune.Mobs.Speed)
	}
	if now.Sub(s.lastMoves) >= s.tune.MoveBroadcastInterval() {
		s.lastMoves = now
		s.broadcastMoves()
	}
	if due(now, s.lastDayNight, s.tune.DayNightEvery()) {
		s.lastDayNight = now
		s.broadcast(&protocol.DayNight{Time: s.world.Time()})
	}
	if s.dataDir != "" && due(now, s.lastSave, s.tune.AutosaveEvery()) {
		s.lastSave = now
		if _, err := s.Save(false); err != nil {
			s.log.Printf("autosave: %v", err)
		}
	}
	s.publish()
}

// due reports whether a cadence of every has elapsed since last. A cadence
// of zero or less never fires.
func due(now, last time.Time, every time.Duration) bool {
	return every > 0 && now.Sub(last) >= every
}

// broadcastMoves sends every connected player and every mob, so remote
// positions refresh even when nobody moves.
func (s *Server) broadcastMoves() {
	var ents []*world.Entity
	for _, c := range s.reg.Conns() {
		eid, _ := s.reg.Entity(c)
		if e, ok := s.world.Get(eid); ok {
			ents = append(ents, e)
		}
	}
	ents = append(ents, s.world.OfKind(world.KindMob)...)
	for _, e := range ents {
		s.broadcast(&protocol.Move{EntityID: e.ID, Pos: [3]float64(e.Pos), State: uint8(e.State), Dir: [3]float64(e.Dir)})
	}
}

func (s *Server) spawnMob() {
	alive := 0
	for _, m := range s.world.OfKind(world.KindMob) {
		if m.Alive() {
			alive++
		}
	}
	if alive >= s.tune.Mobs.Cap {
		return
	}
	r := s.tune.Mobs.SpawnRadius
	center := mgl64.Vec3(s.tune.Mobs.Center)
	pos := center.Add(mgl64.Vec3{(s.rng.Float64()*2 - 1) * r, 0, (s.rng.Float64()*2 - 1) * r})
	m := s.world.Spawn(world.KindMob, pos)
	s.broadcast(addEntity(m))
	s.broadcast(&protocol.AddEntityFinish{})
}

func (s *Server) publish() {
	players := 0
	for _, p := range s.world.OfKind(world.KindPlayer) {
		if p.Alive() {
			players++
		}
	}
	s.metrics.Store(&Metrics{
		Tick:        s.bridge.Tick(),
		Conns:       len(s.greeted),
		Players:     players,
		Entities:    s.world.Len(),
		QueueDepth:  s.bridge.Depth(),
		Kills:       s.world.Kills(),
		MobSpawning: s.world.MobSpawning(),
		GameWon:     s.gameWon,
		LastSave:    s.lastSavedPath,
	})
}
