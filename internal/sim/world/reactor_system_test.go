package world

import (
	"testing"

	"factoryforge.io/internal/protocol"
)

func fedReactor(t *testing.T, w *World, a string, x, y int) *Tile {
	t.Helper()
	r := putBuilding(t, w, "IMPACT_REACTOR", x, y, 1)
	w.StepOnce(nil, nil, orders(a,
		protocol.OrderReq{ID: nextOrderID(), Type: protocol.OrderFeed, Pos: [2]int{x, y}, Item: "BLAST_COMPOUND", Count: 10},
		protocol.OrderReq{ID: nextOrderID(), Type: protocol.OrderPower, Pos: [2]int{x, y}, Power: 1},
	))
	return r
}

func TestFedReactorWarmsUp(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "owner", 1, false, 1)
	r := fedReactor(t, w, a, 10, 10)
	stepN(w, 499)

	if warm := r.Reactor.Model.Warmup; warm <= 0.3 {
		t.Fatalf("warmup after 500 ticks: got %v want > 0.3", warm)
	}
	// One batch on the first tick, then one per item duration.
	if got := r.Reactor.Items["BLAST_COMPOUND"]; got != 6 {
		t.Fatalf("buffer after 500 ticks: got %d want 6", got)
	}
	if r.Reactor.Model.TotalProgress <= 0 {
		t.Fatalf("total progress should accumulate")
	}
}

func TestUnpoweredReactorStaysCold(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "owner", 1, false, 1)
	r := putBuilding(t, w, "IMPACT_REACTOR", 10, 10, 1)
	w.StepOnce(nil, nil, orders(a,
		protocol.OrderReq{ID: nextOrderID(), Type: protocol.OrderFeed, Pos: [2]int{10, 10}, Item: "BLAST_COMPOUND", Count: 10},
	))
	stepN(w, 200)
	if r.Reactor.Model.Warmup != 0 {
		t.Fatalf("unpowered reactor warmed to %v", r.Reactor.Model.Warmup)
	}
	if got := r.Reactor.Items["BLAST_COMPOUND"]; got != 10 {
		t.Fatalf("unpowered reactor consumed items: %d left", got)
	}
}

func TestStarvedReactorCoolsAndIsSafe(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "owner", 1, false, 1)
	r := fedReactor(t, w, a, 10, 10)
	stepN(w, 400)
	peak := r.Reactor.Model.Warmup

	r.Reactor.Items = map[string]int{}
	stepN(w, 1000)
	if r.Reactor.Model.Warmup >= peak || r.Reactor.Model.Warmup >= 0.3 {
		t.Fatalf("starved reactor should cool below the blast threshold: %v", r.Reactor.Model.Warmup)
	}

	putBuilding(t, w, "COPPER_WALL", 15, 10, 1)
	w.StepOnce(nil, nil, orders(a, protocol.OrderReq{ID: nextOrderID(), Type: protocol.OrderDestroy, Pos: [2]int{10, 10}}))
	if w.tiles[posOf(15, 10)] == nil {
		t.Fatalf("cooled reactor exploded")
	}
}
