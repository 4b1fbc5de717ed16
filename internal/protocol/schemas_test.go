package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"factoryforge.io/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(doc); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(compile("hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       "bot1",
		Team:            1,
		Player:          true,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	})

	validate(compile("welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		AgentID:         "A1",
		ResumeToken:     "resume_0f6b",
		Team:            1,
		WorldParams:     protocol.WorldParams{TickRateHz: 60, Width: 64, Height: 64},
		Catalogs: protocol.CatalogDigests{
			BlockPalette: protocol.DigestRef{Digest: "deadbeef", Count: 13},
			ItemPalette:  protocol.DigestRef{Digest: "deadbeef", Count: 14},
			BlocksDigest: "deadbeef",
			ItemsDigest:  "deadbeef",
		},
	})

	validate(compile("order.schema.json"), protocol.OrderMsg{
		Type:            protocol.TypeOrder,
		ProtocolVersion: protocol.Version,
		ID:              "M1",
		Orders: []protocol.OrderReq{
			{ID: "O1", Type: protocol.OrderPlace, Pos: [2]int{4, 4}, Block: "COPPER_WALL", Config: json.RawMessage(`{"color":1}`)},
			{ID: "O2", Type: protocol.OrderPower, Pos: [2]int{10, 10}, Power: 1},
		},
	})

	validate(compile("call.schema.json"), protocol.CallMsg{
		Type:            protocol.TypeCall,
		ProtocolVersion: protocol.Version,
		Seq:             1,
		Tick:            3,
		Name:            "constructFinish",
		Args:            json.RawMessage(`{"pos":{"x":1,"y":2},"block":3}`),
	})
}

func TestSchemas_RejectUnknownOrderType(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "order.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var doc any
	_ = json.Unmarshal([]byte(`{"type":"ORDER","protocol_version":"1.0","orders":[{"id":"O1","type":"TELEPORT","pos":[0,0]}]}`), &doc)
	if err := s.Validate(doc); err == nil {
		t.Fatalf("expected TELEPORT to be rejected")
	}
}
