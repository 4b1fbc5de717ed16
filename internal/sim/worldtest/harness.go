package worldtest

import (
	"encoding/json"
	"fmt"
	"testing"

	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/model"
	"factoryforge.io/internal/sim/tuning"
	"factoryforge.io/internal/sim/world"
)

// Harness drives a world through its exported API only, the way a server
// does: joins and orders go through StepOnce and every agent has an Out
// channel that the harness drains after each tick.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	W    *world.World

	sessions map[string]*session
	nextRef  int
}

type session struct {
	AgentID string
	Out     chan []byte
	Calls   []protocol.CallMsg
	Events  []protocol.Event
}

// NewHarness builds a world from the repository configs.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	w, err := world.New(world.ConfigFromTuning("worldtest", tune), cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return &Harness{T: t, Cats: cats, W: w, sessions: map[string]*session{}}
}

func (h *Harness) Join(name string, team model.Team, buildSpeed float32) string {
	h.T.Helper()
	out := make(chan []byte, 256)
	resp := make(chan world.JoinResponse, 1)
	h.W.StepOnce([]world.JoinRequest{{
		Name:       name,
		Team:       team,
		BuildSpeed: buildSpeed,
		Out:        out,
		Resp:       resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.AgentID == "" {
		h.T.Fatalf("join returned empty agent id")
	}
	h.sessions[jr.Welcome.AgentID] = &session{AgentID: jr.Welcome.AgentID, Out: out}
	h.drain()
	return jr.Welcome.AgentID
}

func (h *Harness) ref() string {
	h.nextRef++
	return fmt.Sprintf("R%d", h.nextRef)
}

func (h *Harness) Place(block string, x, y int) protocol.OrderReq {
	return protocol.OrderReq{ID: h.ref(), Type: protocol.OrderPlace, Pos: [2]int{x, y}, Block: block}
}

func (h *Harness) Break(x, y int) protocol.OrderReq {
	return protocol.OrderReq{ID: h.ref(), Type: protocol.OrderBreak, Pos: [2]int{x, y}}
}

// Order builds one envelope per agent order list.
func Order(agentID string, reqs ...protocol.OrderReq) world.OrderEnvelope {
	return world.OrderEnvelope{AgentID: agentID, Order: protocol.OrderMsg{
		Type:            protocol.TypeOrder,
		ProtocolVersion: protocol.Version,
		Orders:          reqs,
	}}
}

// Step advances one tick with the given orders.
func (h *Harness) Step(orders ...world.OrderEnvelope) string {
	h.T.Helper()
	_, digest := h.W.StepOnce(nil, nil, orders)
	h.drain()
	return digest
}

// StepUntil steps until cond holds and returns the number of ticks taken.
func (h *Harness) StepUntil(limit int, cond func() bool) int {
	h.T.Helper()
	for i := 1; i <= limit; i++ {
		h.Step()
		if cond() {
			return i
		}
	}
	h.T.Fatalf("condition not met within %d ticks", limit)
	return 0
}

func (h *Harness) Calls(agentID string) []protocol.CallMsg { return h.session(agentID).Calls }

func (h *Harness) Events(agentID, typ string) []protocol.Event {
	var out []protocol.Event
	for _, e := range h.session(agentID).Events {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *Harness) session(agentID string) *session {
	h.T.Helper()
	s := h.sessions[agentID]
	if s == nil {
		h.T.Fatalf("unknown agent id: %q", agentID)
	}
	return s
}

func (h *Harness) drain() {
	h.T.Helper()
	for _, s := range h.sessions {
		for {
			var b []byte
			select {
			case b = <-s.Out:
			default:
			}
			if b == nil {
				break
			}
			h.record(s, b)
		}
	}
}

func (h *Harness) record(s *session, b []byte) {
	h.T.Helper()
	base, err := protocol.DecodeBase(b)
	if err != nil {
		h.T.Fatalf("decode: %v", err)
	}
	switch base.Type {
	case protocol.TypeCall:
		var c protocol.CallMsg
		if err := json.Unmarshal(b, &c); err != nil {
			h.T.Fatalf("unmarshal CALL: %v", err)
		}
		s.Calls = append(s.Calls, c)
	case protocol.TypeEvent:
		var ev protocol.EventMsg
		if err := json.Unmarshal(b, &ev); err != nil {
			h.T.Fatalf("unmarshal EVENT: %v", err)
		}
		s.Events = append(s.Events, ev.Events...)
	}
}
