package world

import (
	"testing"

	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/completion"
	"factoryforge.io/internal/sim/model"
)

func TestBuildAndBreakCopperWall(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "builder", 1, false, copperWallSpeed)
	core := w.coreFor(1)

	place := placeOrder("COPPER_WALL", 5, 5)
	w.StepOnce(nil, nil, orders(a, place))
	if ok := resultFor(t, w, a, place.ID)["ok"]; ok != true {
		t.Fatalf("place rejected: %v", resultFor(t, w, a, place.ID))
	}
	tile := w.tiles[model.Pos{X: 5, Y: 5}]
	if tile == nil || tile.Site == nil {
		t.Fatalf("expected a construction site at 5,5")
	}
	if tile.Site.Progress != 0.25 {
		t.Fatalf("progress after one tick: got %v want 0.25", tile.Site.Progress)
	}
	if got := core.Get("COPPER"); got != 999 {
		t.Fatalf("copper after one tick: got %d want 999", got)
	}

	stepN(w, 3)
	tile = w.tiles[model.Pos{X: 5, Y: 5}]
	if tile == nil || tile.Site != nil || tile.Block == nil || tile.Block.Name() != "COPPER_WALL" {
		t.Fatalf("expected a finished copper wall, got %+v", tile)
	}
	if tile.Health != 320 {
		t.Fatalf("health: got %v want 320", tile.Health)
	}
	if got := core.Get("COPPER"); got != 994 {
		t.Fatalf("copper after build: got %d want 994", got)
	}
	if n := countEvents(w, a, "PLAN_DONE"); n != 1 {
		t.Fatalf("PLAN_DONE events: got %d want 1", n)
	}
	if n := countEvents(w, a, "BUILD_END"); n != 1 {
		t.Fatalf("BUILD_END events: got %d want 1", n)
	}

	brk := breakOrder(5, 5)
	w.StepOnce(nil, nil, orders(a, brk))
	if ok := resultFor(t, w, a, brk.ID)["ok"]; ok != true {
		t.Fatalf("break rejected")
	}
	tile = w.tiles[model.Pos{X: 5, Y: 5}]
	if tile == nil || tile.Site == nil || tile.Site.Progress != 0.75 {
		t.Fatalf("expected a deconstruction site at 0.75, got %+v", tile)
	}
	stepN(w, 3)
	if w.tiles[model.Pos{X: 5, Y: 5}] != nil {
		t.Fatalf("expected wall to be gone")
	}
	if got := core.Get("COPPER"); got != 997 {
		t.Fatalf("copper after refund: got %d want 997", got)
	}
}

func TestResumingSiteKeepsProgress(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "builder", 1, false, copperWallSpeed)

	w.StepOnce(nil, nil, orders(a, placeOrder("COPPER_WALL", 3, 3)))
	cancel := protocol.OrderReq{ID: nextOrderID(), Type: protocol.OrderCancel, Pos: [2]int{3, 3}}
	w.StepOnce(nil, nil, orders(a, cancel))
	site := w.tiles[model.Pos{X: 3, Y: 3}].Site
	if site == nil || site.Progress != 0.25 {
		t.Fatalf("site should stay at 0.25 after cancel")
	}

	seq := w.CallSeq()
	again := placeOrder("COPPER_WALL", 3, 3)
	w.StepOnce(nil, nil, orders(a, again))
	if ok := resultFor(t, w, a, again.ID)["ok"]; ok != true {
		t.Fatalf("resume rejected")
	}
	if w.CallSeq() != seq {
		t.Fatalf("resuming an existing site issued a call")
	}
	if site.Progress != 0.5 {
		t.Fatalf("progress after resume: got %v want 0.5", site.Progress)
	}
	stepN(w, 2)
	if tile := w.tiles[model.Pos{X: 3, Y: 3}]; tile == nil || tile.Block == nil {
		t.Fatalf("expected wall to finish")
	}
}

func TestInfiniteTeamDoesNotDebitCore(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "creative", 2, false, copperWallSpeed)
	w.StepOnce(nil, nil, orders(a, placeOrder("COPPER_WALL", 8, 8)))
	stepN(w, 3)
	if tile := w.tiles[model.Pos{X: 8, Y: 8}]; tile == nil || tile.Block == nil {
		t.Fatalf("expected wall to finish")
	}
	if got := w.coreFor(2).Get("COPPER"); got != 1000 {
		t.Fatalf("infinite team core changed: got %d", got)
	}
}

func TestFinishAfterSiteDestroyedIsNoop(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "builder", 1, false, copperWallSpeed)
	w.StepOnce(nil, nil, orders(a, placeOrder("COPPER_WALL", 4, 4)))

	destroy := protocol.OrderReq{ID: nextOrderID(), Type: protocol.OrderDestroy, Pos: [2]int{4, 4}}
	w.StepOnce(nil, nil, orders(a, destroy))
	if w.tiles[model.Pos{X: 4, Y: 4}] != nil {
		t.Fatalf("site should be destroyed")
	}
	if n := countEvents(w, a, "PLAN_ABORTED"); n != 1 {
		t.Fatalf("PLAN_ABORTED events: got %d want 1", n)
	}

	wall := w.catalogs.Blocks.ByName("COPPER_WALL")
	if w.completion.ConstructFinish(completion.ConstructFinished{Pos: model.Pos{X: 4, Y: 4}, Block: wall.ID(), Team: 1}) {
		t.Fatalf("finish on a destroyed site should report false")
	}
	if w.tiles[model.Pos{X: 4, Y: 4}] != nil {
		t.Fatalf("late finish must not place a block")
	}
}

func TestOverwriteConveyorRecordsPrior(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "builder", 1, false, 100)
	conveyor := putBuilding(t, w, "CONVEYOR", 6, 6, 1)

	w.StepOnce(nil, nil, orders(a, placeOrder("TITANIUM_CONVEYOR", 6, 6)))
	site := w.tiles[model.Pos{X: 6, Y: 6}].Site
	if site == nil {
		t.Fatalf("expected a site over the conveyor")
	}
	if site.Previous == nil || site.Previous.ID() != conveyor.Block.ID() {
		t.Fatalf("previous should be the conveyor")
	}
	stepN(w, 20)
	tile := w.tiles[model.Pos{X: 6, Y: 6}]
	if tile == nil || tile.Block == nil || tile.Block.Name() != "TITANIUM_CONVEYOR" {
		t.Fatalf("expected a titanium conveyor")
	}
	if len(tile.Overwrote) != 1 || tile.Overwrote[0].Block != conveyor.Block.ID() {
		t.Fatalf("overwrote: got %+v", tile.Overwrote)
	}
}

func TestReactorWarningOncePerInterval(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "player", 1, true, 1)
	w.StepOnce(nil, nil, orders(a, placeOrder("IMPACT_REACTOR", 20, 20)))
	if n := countEvents(w, a, "REACTOR_WARNING"); n != 1 {
		t.Fatalf("REACTOR_WARNING events: got %d want 1", n)
	}
	stepN(w, 30)
	if n := countEvents(w, a, "REACTOR_WARNING"); n != 1 {
		t.Fatalf("warning repeated inside the interval: got %d", n)
	}
	stepN(w, reactorWarnSeconds*60)
	if n := countEvents(w, a, "REACTOR_WARNING"); n != 2 {
		t.Fatalf("REACTOR_WARNING after interval: got %d want 2", n)
	}
}

func TestNonPlayerReactorBuildIsSilent(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "drone", 1, false, 1)
	w.StepOnce(nil, nil, orders(a, placeOrder("IMPACT_REACTOR", 20, 20)))
	stepN(w, 5)
	if n := countEvents(w, a, "REACTOR_WARNING"); n != 0 {
		t.Fatalf("non-player build warned %d times", n)
	}
}

func TestSlowBuildPaysAndRefundsWholeItems(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "slow", 1, false, 1)
	core := w.coreFor(1)
	pos := model.Pos{X: 12, Y: 12}

	place := placeOrder("GRAPHITE_PRESS", pos.X, pos.Y)
	w.StepOnce(nil, nil, orders(a, place))
	if ok := resultFor(t, w, a, place.ID)["ok"]; ok != true {
		t.Fatalf("place rejected: %v", resultFor(t, w, a, place.ID))
	}
	for i := 0; ; i++ {
		if tile := w.tiles[pos]; tile != nil && tile.Site == nil {
			if tile.Block == nil || tile.Block.Name() != "GRAPHITE_PRESS" {
				t.Fatalf("expected a graphite press, got %+v", tile)
			}
			break
		}
		if i > 2000 {
			t.Fatalf("press not built after %d ticks", i)
		}
		w.StepOnce(nil, nil, nil)
	}
	if got := core.Get("COPPER"); got != 1000-75 {
		t.Fatalf("copper after build: got %d want %d", got, 1000-75)
	}
	if got := core.Get("LEAD"); got != 1500-30 {
		t.Fatalf("lead after build: got %d want %d", got, 1500-30)
	}

	brk := breakOrder(pos.X, pos.Y)
	w.StepOnce(nil, nil, orders(a, brk))
	if ok := resultFor(t, w, a, brk.ID)["ok"]; ok != true {
		t.Fatalf("break rejected")
	}
	for i := 0; w.tiles[pos] != nil; i++ {
		if i > 2000 {
			t.Fatalf("press not removed after %d ticks", i)
		}
		w.StepOnce(nil, nil, nil)
	}
	refund := w.cfg.Rules.DeconstructRefundMultiplier
	if got, want := core.Get("COPPER"), 1000-75+int(refund*75); got != want {
		t.Fatalf("copper after refund: got %d want %d", got, want)
	}
	if got, want := core.Get("LEAD"), 1500-30+int(refund*30); got != want {
		t.Fatalf("lead after refund: got %d want %d", got, want)
	}
}
