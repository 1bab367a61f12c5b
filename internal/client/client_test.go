package client

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/sim/tuning"
	"realmsync.ai/internal/sim/world"
)

type fakeTransport struct {
	sent []protocol.Envelope
}

func (f *fakeTransport) Send(env protocol.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) ofKind(k protocol.Kind) []protocol.Envelope {
	var out []protocol.Envelope
	for _, e := range f.sent {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	t   *testing.T
	c   *Client
	tr  *fakeTransport
	now time.Time
	src *world.World // stands in for the server's world
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, tr: &fakeTransport{}, now: time.UnixMilli(1_700_000_000_000), src: world.New()}
	h.c = New(Config{
		Tuning: tuning.Defaults(),
		Name:   "bob",
		Now:    func() time.Time { return h.now },
	})
	h.c.Attach(h.tr)
	return h
}

func (h *harness) step() { h.c.Step(h.now) }

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
	h.step()
}

// deliver hands the client a server envelope stamped at ts and runs a tick.
func (h *harness) deliverAt(ts time.Time, p protocol.Payload) {
	h.c.OnMessage(protocol.New(ts, p))
	h.step()
}

func (h *harness) deliver(p protocol.Payload) { h.deliverAt(h.now, p) }

func (h *harness) add(e *world.Entity) *protocol.AddEntity {
	h.t.Helper()
	blob, err := world.EncodeEntity(e)
	if err != nil {
		h.t.Fatalf("EncodeEntity: %v", err)
	}
	return &protocol.AddEntity{EntityID: e.ID, Pos: [3]float64(e.Pos), Data: blob}
}

// admit spawns entities on the stand-in server world and delivers them as
// one batch.
func (h *harness) admit(kinds ...world.Kind) []*world.Entity {
	h.t.Helper()
	var out []*world.Entity
	for _, k := range kinds {
		e := h.src.Spawn(k, mgl64.Vec3{})
		out = append(out, e)
		h.deliver(h.add(e))
	}
	h.deliver(&protocol.AddEntityFinish{})
	return out
}

// joinAs admits a player entity and makes it the local player.
func (h *harness) joinAs() *world.Entity {
	h.t.Helper()
	p := h.admit(world.KindPlayer)[0]
	h.deliver(&protocol.PlayerJoined{EntityID: p.ID, ConnectionID: 1})
	if !h.c.Ready() || h.c.Local() != p.ID {
		h.t.Fatalf("not ready after join: ready=%v local=%d", h.c.Ready(), h.c.Local())
	}
	e, _ := h.c.World().Get(p.ID)
	return e
}

func hudHas(c *Client, line string) bool {
	for _, l := range c.HUD() {
		if l == line {
			return true
		}
	}
	return false
}

func TestClient_DeferredAdmission(t *testing.T) {
	h := newHarness(t)
	const n = 4
	for i := 0; i < n; i++ {
		e := h.src.Spawn(world.KindMob, mgl64.Vec3{float64(i), 0, 0})
		h.deliver(h.add(e))
		if h.c.World().Len() != 0 {
			t.Fatalf("entity visible before finish after %d adds", i+1)
		}
	}
	if h.c.Pending() != n {
		t.Fatalf("pending=%d want %d", h.c.Pending(), n)
	}
	h.deliver(&protocol.AddEntityFinish{})
	if h.c.World().Len() != n || h.c.Pending() != 0 {
		t.Fatalf("len=%d pending=%d want %d/0", h.c.World().Len(), h.c.Pending(), n)
	}
}

func TestClient_AdmissionAtomicUnderConcurrentDelivery(t *testing.T) {
	h := newHarness(t)
	const n = 200
	adds := make([]*protocol.AddEntity, n)
	for i := range adds {
		adds[i] = h.add(h.src.Spawn(world.KindMob, mgl64.Vec3{float64(i), 0, 0}))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, a := range adds {
			h.c.OnMessage(protocol.New(h.now, a))
			runtime.Gosched()
		}
		h.c.OnMessage(protocol.New(h.now, &protocol.AddEntityFinish{}))
	}()

	deadline := time.After(5 * time.Second)
	steps := 0
	for {
		h.c.Step(h.now)
		steps++
		switch got := h.c.World().Len(); got {
		case 0:
		case n:
			<-done
			if h.c.Pending() != 0 {
				t.Fatalf("pending=%d after finish", h.c.Pending())
			}
			return
		default:
			t.Fatalf("step %d observed %d of %d entities", steps, got, n)
		}
		select {
		case <-deadline:
			t.Fatalf("batch never admitted after %d steps", steps)
		default:
		}
		runtime.Gosched()
	}
}

func TestClient_AdmissionIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	known := h.admit(world.KindChest)[0]

	fresh := h.src.Spawn(world.KindItem, mgl64.Vec3{})
	h.deliver(h.add(fresh))
	h.deliver(h.add(known)) // duplicate id poisons the batch
	h.deliver(&protocol.AddEntityFinish{})
	if _, ok := h.c.World().Get(fresh.ID); ok {
		t.Fatalf("partial batch admitted")
	}
	if h.c.Pending() != 0 {
		t.Fatalf("pending not cleared")
	}
}

func TestClient_ContainerReferencesResolveInOneBatch(t *testing.T) {
	h := newHarness(t)
	chest := h.src.Spawn(world.KindChest, mgl64.Vec3{})
	item := h.src.Spawn(world.KindItem, mgl64.Vec3{})
	if err := h.src.Give(chest.ID, item.ID); err != nil {
		t.Fatalf("Give: %v", err)
	}
	h.deliver(h.add(chest))
	h.deliver(h.add(item))
	h.deliver(&protocol.AddEntityFinish{})

	c, _ := h.c.World().Get(chest.ID)
	it, ok := h.c.World().Get(item.ID)
	if !ok || it.Holder != chest.ID || len(c.Contents) != 1 {
		t.Fatalf("chest contents=%v item ok=%v", c.Contents, ok)
	}
}

func TestClient_MoveSmoothing(t *testing.T) {
	h := newHarness(t)
	mob := h.admit(world.KindMob)[0]

	h.deliver(&protocol.Move{EntityID: mob.ID, Pos: [3]float64{10, 0, 0}, State: uint8(world.StateWalk), Dir: [3]float64{1, 0, 0}})
	e, _ := h.c.World().Get(mob.ID)
	if d := e.Pos.X() - 1; d > 1e-9 || d < -1e-9 {
		t.Fatalf("after one tick x=%v want 1", e.Pos.X())
	}
	if e.State != world.StateWalk {
		t.Fatalf("state=%d want walk", e.State)
	}
	h.step()
	if d := e.Pos.X() - 1.9; d > 1e-9 || d < -1e-9 {
		t.Fatalf("after two ticks x=%v want 1.9", e.Pos.X())
	}
	for i := 0; i < 200; i++ {
		h.step()
	}
	if e.Pos != (mgl64.Vec3{10, 0, 0}) {
		t.Fatalf("did not settle: %v", e.Pos)
	}
}

func TestClient_SelfMoveIgnored(t *testing.T) {
	h := newHarness(t)
	me := h.joinAs()
	me.Pos = mgl64.Vec3{1, 2, 3}
	h.deliver(&protocol.Move{EntityID: me.ID, Pos: [3]float64{9, 9, 9}})
	h.step()
	if me.Pos != (mgl64.Vec3{1, 2, 3}) {
		t.Fatalf("local player corrected to %v", me.Pos)
	}
}

func TestClient_StaleMoveDiscarded(t *testing.T) {
	h := newHarness(t)
	mob := h.admit(world.KindMob)[0]
	e, _ := h.c.World().Get(mob.ID)
	before := *e

	h.deliverAt(h.now.Add(-1500*time.Millisecond), &protocol.Move{EntityID: mob.ID, Pos: [3]float64{5, 0, 0}, State: uint8(world.StateRun)})
	if e.Pos != before.Pos || e.State != before.State || e.Dir != before.Dir {
		t.Fatalf("stale move applied: %+v", e)
	}

	h.deliverAt(h.now.Add(-500*time.Millisecond), &protocol.Move{EntityID: mob.ID, Pos: [3]float64{5, 0, 0}, State: uint8(world.StateRun)})
	if e.State != world.StateRun {
		t.Fatalf("fresh move dropped")
	}
}

func TestClient_StalenessUsesClockOffset(t *testing.T) {
	h := newHarness(t)
	mob := h.admit(world.KindMob)[0]

	// The server clock runs two seconds behind ours.
	h.deliverAt(h.now.Add(-2*time.Second), &protocol.Ping{ID: 1, SentTime: h.now.UnixMilli(), RemainingRounds: 1})
	if h.c.Offset() != 2*time.Second || !h.c.Synced() {
		t.Fatalf("offset=%s synced=%v", h.c.Offset(), h.c.Synced())
	}

	h.deliverAt(h.now.Add(-2500*time.Millisecond), &protocol.Move{EntityID: mob.ID, Pos: [3]float64{5, 0, 0}, State: uint8(world.StateRun)})
	if e, _ := h.c.World().Get(mob.ID); e.State != world.StateRun {
		t.Fatalf("move within the window after offset was dropped")
	}
}

func TestClient_PingRounds(t *testing.T) {
	h := newHarness(t)
	h.c.StartPing()

	var rounds []int
	for i := 0; i < 10; i++ {
		pings := h.tr.ofKind(protocol.KindPing)
		if len(pings) <= i {
			break
		}
		p := pings[i].Payload.(*protocol.Ping)
		rounds = append(rounds, p.RemainingRounds)
		h.advance(20 * time.Millisecond)
		h.deliver(p) // the server echoes unchanged
	}
	want := []int{4, 3, 2, 1}
	if len(rounds) != len(want) {
		t.Fatalf("rounds=%v want %v", rounds, want)
	}
	for i := range want {
		if rounds[i] != want[i] {
			t.Fatalf("rounds=%v want %v", rounds, want)
		}
	}
}

func TestClient_ChestAccess(t *testing.T) {
	h := newHarness(t)
	me := h.joinAs()
	chest := h.admit(world.KindChest)[0]

	// An unsolicited grant does not open the UI.
	h.deliver(&protocol.ChestAccess{ContainerID: chest.ID, ActorID: me.ID, Open: true})
	if h.c.ChestOpen() != protocol.NoEntity {
		t.Fatalf("chest opened without a request")
	}

	h.c.OpenChest(chest.ID)
	if got := h.tr.ofKind(protocol.KindChestAccess); len(got) != 1 || !got[0].Payload.(*protocol.ChestAccess).Open {
		t.Fatalf("open request not sent")
	}
	if h.c.ChestOpen() != protocol.NoEntity {
		t.Fatalf("chest shown before the server granted it")
	}
	h.deliver(&protocol.ChestAccess{ContainerID: chest.ID, ActorID: me.ID, Open: true})
	if h.c.ChestOpen() != chest.ID {
		t.Fatalf("granted chest not shown")
	}

	h.c.CloseChest()
	h.c.OpenChest(chest.ID)
	h.deliver(&protocol.ChestAccess{ContainerID: chest.ID, ActorID: me.ID, Open: false})
	if h.c.ChestOpen() != protocol.NoEntity || me.InContainer {
		t.Fatalf("denial left container state open=%d in=%v", h.c.ChestOpen(), me.InContainer)
	}
	if !hudHas(h.c, HUDChestDenied) {
		t.Fatalf("hud=%v", h.c.HUD())
	}
}

func TestClient_TakeFromChestIsConfirmedIdempotently(t *testing.T) {
	h := newHarness(t)
	me := h.joinAs()
	chest := h.src.Spawn(world.KindChest, mgl64.Vec3{})
	potion := h.src.Spawn(world.KindItem, mgl64.Vec3{})
	potion.Item = world.ItemPotion
	_ = h.src.Give(chest.ID, potion.ID)
	h.deliver(h.add(chest))
	h.deliver(h.add(potion))
	h.deliver(&protocol.AddEntityFinish{})

	h.c.OpenChest(chest.ID)
	h.deliver(&protocol.ChestAccess{ContainerID: chest.ID, ActorID: me.ID, Open: true})
	h.c.Take(potion.ID)
	if it, _ := h.c.World().Get(potion.ID); it.Holder != me.ID {
		t.Fatalf("take not applied locally")
	}
	h.deliver(&protocol.InventoryTransfer{FromID: chest.ID, ToID: me.ID, ItemID: potion.ID})
	if len(me.Contents) != 1 {
		t.Fatalf("confirmation double-applied: contents=%v", me.Contents)
	}
}

func TestClient_MirroringShortCircuitsOwnActions(t *testing.T) {
	h := newHarness(t)
	me := h.joinAs()
	ents := h.admit(world.KindPlayer, world.KindItem, world.KindItem)
	other, mySword, theirSword := ents[0], ents[1], ents[2]
	for _, id := range []protocol.EntityID{mySword.ID, theirSword.ID} {
		it, _ := h.c.World().Get(id)
		it.Item = world.ItemWeapon
	}
	if err := h.c.World().Give(me.ID, mySword.ID); err != nil {
		t.Fatalf("Give: %v", err)
	}
	if err := h.c.World().Give(other.ID, theirSword.ID); err != nil {
		t.Fatalf("Give: %v", err)
	}

	h.c.Equip(mySword.ID, true)
	if sent := h.tr.ofKind(protocol.KindEquipItem); len(sent) != 1 {
		t.Fatalf("equip not sent")
	}
	// An echo of our own action must not toggle it back.
	h.deliver(&protocol.EquipItem{ItemID: mySword.ID, ActorID: me.ID, Equip: false})
	if !me.IsEquipped(mySword.ID) {
		t.Fatalf("own action applied twice")
	}

	h.deliver(&protocol.EquipItem{ItemID: theirSword.ID, ActorID: other.ID, Equip: true})
	o, _ := h.c.World().Get(other.ID)
	if !o.IsEquipped(theirSword.ID) {
		t.Fatalf("remote equip not mirrored")
	}
}

func TestClient_RemoteActivateContractViolationPanics(t *testing.T) {
	h := newHarness(t)
	h.joinAs()
	ents := h.admit(world.KindPlayer, world.KindChest)
	defer func() {
		if _, ok := recover().(*world.ContractError); !ok {
			t.Fatalf("expected a contract violation panic")
		}
	}()
	h.deliver(&protocol.OnActivate{EntityID: ents[1].ID, ActorID: ents[0].ID})
}

func TestClient_MoveCadenceOnlyWhileReady(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.advance(100 * time.Millisecond)
	}
	if n := len(h.tr.ofKind(protocol.KindMove)); n != 0 {
		t.Fatalf("sent %d moves before joining", n)
	}

	me := h.joinAs()
	first := len(h.tr.ofKind(protocol.KindMove))
	for i := 0; i < 10; i++ {
		h.advance(50 * time.Millisecond)
	}
	moves := h.tr.ofKind(protocol.KindMove)
	if got := len(moves) - first; got != 5 {
		t.Fatalf("moves in 500ms=%d want 5", got)
	}
	for _, m := range moves {
		if m.Reliable {
			t.Fatalf("move sent reliable")
		}
		if m.Payload.(*protocol.Move).EntityID != me.ID {
			t.Fatalf("move for wrong entity")
		}
	}

	h.c.Attack()
	if n := len(h.tr.ofKind(protocol.KindAttack)); n != 1 {
		t.Fatalf("attack not sent immediately")
	}

	h.c.OnDisconnect()
	h.step()
	if h.c.Ready() {
		t.Fatalf("still ready after disconnect")
	}
	if !hudHas(h.c, HUDDisconnected) {
		t.Fatalf("hud=%v", h.c.HUD())
	}
	sent := len(h.tr.ofKind(protocol.KindMove))
	for i := 0; i < 5; i++ {
		h.advance(100 * time.Millisecond)
	}
	if n := len(h.tr.ofKind(protocol.KindMove)); n != sent {
		t.Fatalf("moves sent while disconnected")
	}
}

func TestClient_LocalRemovalClearsReady(t *testing.T) {
	h := newHarness(t)
	me := h.joinAs()
	h.deliver(&protocol.RemoveEntity{EntityID: me.ID})
	if h.c.Ready() || h.c.Local() != protocol.NoEntity {
		t.Fatalf("ready=%v local=%d after own removal", h.c.Ready(), h.c.Local())
	}
}

func TestClient_ServerNotices(t *testing.T) {
	h := newHarness(t)
	h.deliver(&protocol.PlayerSpeed{Speed: 7.5, Spawn: [3]float64{1, 0, 1}})
	if h.c.PlayerSpeed() != 7.5 || h.c.SpawnPoint() != (mgl64.Vec3{1, 0, 1}) {
		t.Fatalf("speed=%v spawn=%v", h.c.PlayerSpeed(), h.c.SpawnPoint())
	}
	h.deliver(&protocol.DayNight{Time: 0.25})
	if h.c.World().Time() != 0.25 {
		t.Fatalf("time=%v", h.c.World().Time())
	}
	h.deliver(&protocol.ServerSave{})
	h.deliver(&protocol.GameWon{})
	h.deliver(&protocol.GameWon{})
	if !hudHas(h.c, HUDGameSaved) || !h.c.Won() {
		t.Fatalf("hud=%v won=%v", h.c.HUD(), h.c.Won())
	}
	won := 0
	for _, l := range h.c.HUD() {
		if l == HUDWon {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("won lines=%d want 1", won)
	}
	h.deliver(&protocol.PlayerSetup{ConnectionID: 1, Name: "robert"})
	if h.c.Name() != "robert" {
		t.Fatalf("name=%q", h.c.Name())
	}
}

func TestWrapChat(t *testing.T) {
	lines := WrapChat("Bob", strings.Repeat("x", 80), 55, 35)
	if len(lines) != 3 {
		t.Fatalf("lines=%d want 3", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "Bob: ") {
			t.Fatalf("line %q missing prefix", l)
		}
		if n := len(strings.TrimPrefix(l, "Bob: ")); n > 35 {
			t.Fatalf("chunk len=%d", n)
		}
	}
	if got := WrapChat("Bob", "hi there", 55, 35); len(got) != 1 || got[0] != "Bob: hi there" {
		t.Fatalf("short=%q", got)
	}
	if got := WrapChat("Bob", strings.Repeat("y", 52), 55, 35); len(got) != 1 {
		t.Fatalf("exactly at threshold split into %d", len(got))
	}
}

func TestClient_ChatGoesToHUD(t *testing.T) {
	h := newHarness(t)
	h.deliver(&protocol.Chat{Text: strings.Repeat("x", 80), Source: "Bob", ID: 3})
	if n := len(h.c.HUD()); n != 3 {
		t.Fatalf("hud lines=%d want 3", n)
	}
}
