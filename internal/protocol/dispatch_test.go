package protocol

import (
	"testing"
	"time"
)

// recorder notes which handler method ran.
type recorder struct {
	got []Kind
	src []Source
}

func (r *recorder) note(s Source, k Kind) {
	r.got = append(r.got, k)
	r.src = append(r.src, s)
}

func (r *recorder) HandleMove(s Source, _ *Move)                           { r.note(s, KindMove) }
func (r *recorder) HandleAttack(s Source, _ *Attack)                       { r.note(s, KindAttack) }
func (r *recorder) HandleChat(s Source, _ *Chat)                           { r.note(s, KindChat) }
func (r *recorder) HandleEffect(s Source, _ *Effect)                       { r.note(s, KindEffect) }
func (r *recorder) HandleAddEntity(s Source, _ *AddEntity)                 { r.note(s, KindAddEntity) }
func (r *recorder) HandleAddEntityFinish(s Source, _ *AddEntityFinish)     { r.note(s, KindAddEntityFinish) }
func (r *recorder) HandleRemoveEntity(s Source, _ *RemoveEntity)           { r.note(s, KindRemoveEntity) }
func (r *recorder) HandleDayNight(s Source, _ *DayNight)                   { r.note(s, KindDayNight) }
func (r *recorder) HandleChestAccess(s Source, _ *ChestAccess)             { r.note(s, KindChestAccess) }
func (r *recorder) HandleInventoryTransfer(s Source, _ *InventoryTransfer) { r.note(s, KindInventoryTransfer) }
func (r *recorder) HandleItemTransfer(s Source, _ *ItemTransfer)           { r.note(s, KindItemTransfer) }
func (r *recorder) HandleEquipItem(s Source, _ *EquipItem)                 { r.note(s, KindEquipItem) }
func (r *recorder) HandleServerSave(s Source, _ *ServerSave)               { r.note(s, KindServerSave) }
func (r *recorder) HandleRightClick(s Source, _ *RightClick)               { r.note(s, KindRightClick) }
func (r *recorder) HandleOnActivate(s Source, _ *OnActivate)               { r.note(s, KindOnActivate) }
func (r *recorder) HandlePlayerSetup(s Source, _ *PlayerSetup)             { r.note(s, KindPlayerSetup) }
func (r *recorder) HandlePlayerJoined(s Source, _ *PlayerJoined)           { r.note(s, KindPlayerJoined) }
func (r *recorder) HandlePing(s Source, _ *Ping)                           { r.note(s, KindPing) }
func (r *recorder) HandleGameWon(s Source, _ *GameWon)                     { r.note(s, KindGameWon) }
func (r *recorder) HandlePlayerSpeed(s Source, _ *PlayerSpeed)             { r.note(s, KindPlayerSpeed) }

func TestDispatch_EveryKindReachesItsMethod(t *testing.T) {
	now := time.UnixMilli(5000)
	for _, k := range Kinds() {
		mk, ok := factories[k]
		if !ok {
			t.Fatalf("no factory for %s", k)
		}
		r := &recorder{}
		Dispatch(9, New(now, mk()), r)
		if len(r.got) != 1 || r.got[0] != k {
			t.Fatalf("dispatch %s reached %v", k, r.got)
		}
		if r.src[0].Conn != 9 || r.src[0].Timestamp != 5000 {
			t.Fatalf("dispatch %s source=%+v", k, r.src[0])
		}
	}
	if len(factories) != len(Kinds()) {
		t.Fatalf("factories=%d kinds=%d", len(factories), len(Kinds()))
	}
}

func TestNew_OnlyMoveIsUnreliable(t *testing.T) {
	for _, k := range Kinds() {
		env := New(time.Now(), factories[k]())
		if env.Reliable != (k != KindMove) {
			t.Fatalf("%s reliable=%v", k, env.Reliable)
		}
	}
}

func TestDecode_RoundTripKeepsFields(t *testing.T) {
	in := New(time.UnixMilli(42), &ChestAccess{ContainerID: 7, ActorID: 3, Open: true})
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ca, ok := out.Payload.(*ChestAccess)
	if !ok {
		t.Fatalf("payload type %T", out.Payload)
	}
	if *ca != (ChestAccess{ContainerID: 7, ActorID: 3, Open: true}) || out.Timestamp != 42 || !out.Reliable {
		t.Fatalf("decoded %+v ts=%d reliable=%v", *ca, out.Timestamp, out.Reliable)
	}
}

func TestDecode_ReliabilityFollowsKind(t *testing.T) {
	out, err := Decode([]byte(`{"type":"MOVE","ts":1,"reliable":true,"payload":{"entity_id":1}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Reliable {
		t.Fatalf("MOVE decoded as reliable")
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"TELEPORT","ts":1,"reliable":true}`))
	if CodeOf(err) != ErrUnknownKind {
		t.Fatalf("err=%v want %s", err, ErrUnknownKind)
	}
}

func TestDecodeBase(t *testing.T) {
	b, err := DecodeBase([]byte(`{"type":"PING","ts":77,"payload":{}}`))
	if err != nil {
		t.Fatalf("decode base: %v", err)
	}
	if b.Type != KindPing || b.Timestamp != 77 {
		t.Fatalf("base=%+v", b)
	}
}
