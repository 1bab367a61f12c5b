package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"realmsync.ai/internal/protocol"
)

func TestSchemas_ValidateEncodedEnvelopes(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "envelope.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	now := time.UnixMilli(1_700_000_000_000)
	samples := []protocol.Payload{
		&protocol.Move{EntityID: 3, Pos: [3]float64{1, 2, 3}, State: 1, Dir: [3]float64{0, 0, 1}},
		&protocol.ChestAccess{ContainerID: 7, ActorID: 3, Open: true},
		&protocol.Ping{ID: 1, SentTime: now.UnixMilli(), RemainingRounds: 4},
		&protocol.AddEntityFinish{},
		&protocol.Chat{Text: "hi", Source: "bob", ID: 3},
	}
	for _, p := range samples {
		b, err := protocol.Encode(protocol.New(now, p))
		if err != nil {
			t.Fatalf("encode %s: %v", p.Kind(), err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal %s: %v", p.Kind(), err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", p.Kind(), err)
		}
	}
}

func TestSchemas_RejectReliableMove(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "envelope.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var v any
	_ = json.Unmarshal([]byte(`{
	  "type":"MOVE",
	  "ts":1,
	  "reliable":true,
	  "payload":{"entity_id":1,"pos":[0,0,0],"state":0,"dir":[0,0,1]}
	}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected reliable MOVE to be rejected")
	}
}
