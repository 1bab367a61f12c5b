package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

const Version = "1.0"

// EntityID is assigned by the server and never reused while the entity is live.
type EntityID int64

// NoEntity marks an absent entity reference (unequipped slot, item on the ground).
const NoEntity EntityID = -1

// ConnID identifies one transport connection on the server.
type ConnID int

// Kind is the wire discriminator of a payload.
type Kind string

// Message kinds.
const (
	KindMove              Kind = "MOVE"
	KindAttack            Kind = "ATTACK"
	KindChat              Kind = "CHAT"
	KindEffect            Kind = "EFFECT"
	KindAddEntity         Kind = "ADD_ENTITY"
	KindAddEntityFinish   Kind = "ADD_ENTITY_FINISH"
	KindRemoveEntity      Kind = "REMOVE_ENTITY"
	KindDayNight          Kind = "DAY_NIGHT"
	KindChestAccess       Kind = "CHEST_ACCESS"
	KindInventoryTransfer Kind = "INVENTORY_TRANSFER"
	KindItemTransfer      Kind = "ITEM_TRANSFER"
	KindEquipItem         Kind = "EQUIP_ITEM"
	KindServerSave        Kind = "SERVER_SAVE"
	KindRightClick        Kind = "RIGHT_CLICK"
	KindOnActivate        Kind = "ON_ACTIVATE"
	KindPlayerSetup       Kind = "PLAYER_SETUP"
	KindPlayerJoined      Kind = "PLAYER_JOINED"
	KindPing              Kind = "PING"
	KindGameWon           Kind = "GAME_WON"
	KindPlayerSpeed       Kind = "PLAYER_SPEED"
)

// Reliable reports whether the kind travels on the reliable channel.
// Move is the only kind that may be dropped or reordered.
func (k Kind) Reliable() bool { return k != KindMove }

// Envelope is the common frame around every payload. Immutable once sent.
type Envelope struct {
	Timestamp int64 // unix milliseconds at creation, sender clock
	Reliable  bool
	Payload   Payload
}

// Kind of the wrapped payload.
func (e Envelope) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// New stamps p with ts and the reliability of its kind.
func New(ts time.Time, p Payload) Envelope {
	return Envelope{
		Timestamp: ts.UnixMilli(),
		Reliable:  p.Kind().Reliable(),
		Payload:   p,
	}
}

// wireEnvelope is the JSON frame. The payload is decoded in a second pass once
// the type is known.
type wireEnvelope struct {
	Type      Kind            `json:"type"`
	Timestamp int64           `json:"ts"`
	Reliable  bool            `json:"reliable"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// BaseMessage lets callers route raw frames without decoding the payload.
type BaseMessage struct {
	Type      Kind  `json:"type"`
	Timestamp int64 `json:"ts"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

func Encode(env Envelope) ([]byte, error) {
	if env.Payload == nil {
		return nil, fmt.Errorf("%s: nil payload", ErrBadEnvelope)
	}
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Kind(), err)
	}
	return json.Marshal(wireEnvelope{
		Type:      env.Kind(),
		Timestamp: env.Timestamp,
		Reliable:  env.Kind().Reliable(),
		Payload:   raw,
	})
}

func Decode(b []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, fmt.Errorf("%s: %w", ErrBadEnvelope, err)
	}
	mk, ok := factories[w.Type]
	if !ok {
		return Envelope{}, &CodeError{Code: ErrUnknownKind, Detail: string(w.Type)}
	}
	p := mk()
	if len(w.Payload) > 0 && string(w.Payload) != "null" {
		if err := json.Unmarshal(w.Payload, p); err != nil {
			return Envelope{}, fmt.Errorf("decode %s: %w", w.Type, err)
		}
	}
	return Envelope{
		Timestamp: w.Timestamp,
		Reliable:  w.Type.Reliable(),
		Payload:   p,
	}, nil
}
