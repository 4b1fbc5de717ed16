package world

import (
	"fmt"
	"testing"

	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/model"
	"factoryforge.io/internal/sim/tuning"
)

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func testConfig() WorldConfig {
	rules := tuning.Defaults().Rules
	rules.Teams = map[int]tuning.TeamRules{2: {InfiniteResources: true}}
	return WorldConfig{
		ID:           "test",
		TickRateHz:   60,
		Width:        96,
		Height:       96,
		CoreCapacity: 4000,
		StarterItems: map[string]int{
			"COPPER":         1000,
			"LEAD":           1500,
			"SILICON":        800,
			"GRAPHITE":       800,
			"THORIUM":        300,
			"TITANIUM":       100,
			"SURGE_ALLOY":    300,
			"METAGLASS":      400,
			"BLAST_COMPOUND": 100,
		},
		Rules: rules,
	}
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(testConfig(), testCatalogs(t))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

// copperWallSpeed makes one tick of effort exactly a quarter of a copper
// wall (build cost 138).
const copperWallSpeed = 34.5

func joinAgent(t *testing.T, w *World, name string, team model.Team, player bool, speed float32) string {
	t.Helper()
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: name, Team: team, Player: player, BuildSpeed: speed, Resp: resp}}, nil, nil)
	r := <-resp
	if r.Welcome.AgentID == "" {
		t.Fatalf("join failed")
	}
	return r.Welcome.AgentID
}

func orders(agentID string, reqs ...protocol.OrderReq) []OrderEnvelope {
	return []OrderEnvelope{{AgentID: agentID, Order: protocol.OrderMsg{
		Type:            protocol.TypeOrder,
		ProtocolVersion: protocol.Version,
		Orders:          reqs,
	}}}
}

var orderSeq int

func nextOrderID() string {
	orderSeq++
	return fmt.Sprintf("O%d", orderSeq)
}

func placeOrder(block string, x, y int) protocol.OrderReq {
	return protocol.OrderReq{ID: nextOrderID(), Type: protocol.OrderPlace, Pos: [2]int{x, y}, Block: block}
}

func breakOrder(x, y int) protocol.OrderReq {
	return protocol.OrderReq{ID: nextOrderID(), Type: protocol.OrderBreak, Pos: [2]int{x, y}}
}

// resultFor finds the ORDER_RESULT event for ref among the agent's pending events.
func resultFor(t *testing.T, w *World, agentID, ref string) protocol.Event {
	t.Helper()
	for _, e := range w.agents[agentID].Events {
		if e["type"] == "ORDER_RESULT" && e["ref"] == ref {
			return e
		}
	}
	t.Fatalf("no ORDER_RESULT for %s", ref)
	return nil
}

func countEvents(w *World, agentID, typ string) int {
	n := 0
	for _, e := range w.agents[agentID].Events {
		if e["type"] == typ {
			n++
		}
	}
	return n
}

// putBuilding places a finished building directly, bypassing construction.
func putBuilding(t *testing.T, w *World, name string, x, y int, team model.Team) *Tile {
	t.Helper()
	b := w.catalogs.Blocks.ByName(name)
	if b == nil {
		t.Fatalf("unknown block %s", name)
	}
	tile := &Tile{Pos: model.Pos{X: x, Y: y}, Team: team, Block: b, Health: b.Health()}
	if def := b.Reactor(); def != nil {
		tile.Reactor = newReactorState(def)
	}
	w.putTile(tile)
	return tile
}

func stepN(w *World, n int) string {
	var digest string
	for i := 0; i < n; i++ {
		_, digest = w.StepOnce(nil, nil, nil)
	}
	return digest
}

func posOf(x, y int) model.Pos { return model.Pos{X: x, Y: y} }
