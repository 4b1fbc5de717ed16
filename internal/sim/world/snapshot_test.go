package world

import (
	"path/filepath"
	"testing"

	"factoryforge.io/internal/persistence/snapshot"
	"factoryforge.io/internal/protocol"
)

func TestSnapshotRoundTripContinues(t *testing.T) {
	w := newTestWorld(t)
	a := joinAgent(t, w, "builder", 1, true, copperWallSpeed)
	b := joinAgent(t, w, "creative", 2, false, 5)
	r := fedReactor(t, w, a, 40, 40)
	w.StepOnce(nil, nil, append(
		orders(a, placeOrder("COPPER_WALL", 1, 1), placeOrder("IMPACT_REACTOR", 20, 20)),
		orders(b, placeOrder("COPPER_WALL_LARGE", 60, 60))...,
	))
	stepN(w, 6)
	w.StepOnce(nil, nil, orders(a, breakOrder(1, 1)))
	stepN(w, 2)
	if r.Reactor.Model.Warmup == 0 {
		t.Fatalf("reactor should be warming")
	}

	last := w.CurrentTick() - 1
	snap := w.ExportSnapshot(last)
	path := filepath.Join(t.TempDir(), "snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	w2 := newTestWorld(t)
	if err := w2.ImportSnapshot(loaded); err != nil {
		t.Fatalf("import: %v", err)
	}
	if w2.CurrentTick() != w.CurrentTick() {
		t.Fatalf("tick after import: got %d want %d", w2.CurrentTick(), w.CurrentTick())
	}
	if w2.stateDigest(last) != w.stateDigest(last) {
		t.Fatalf("digest differs after import")
	}
	if w2.OccupantDigest() != w.OccupantDigest() {
		t.Fatalf("occupants differ after import")
	}

	for i := 0; i < 200; i++ {
		_, d1 := w.StepOnce(nil, nil, nil)
		_, d2 := w2.StepOnce(nil, nil, nil)
		if d1 != d2 {
			t.Fatalf("digest diverged %d ticks after import", i+1)
		}
	}

	// Joins continue the id sequence.
	c1 := joinAgent(t, w, "late", 1, false, 1)
	c2 := joinAgent(t, w2, "late", 1, false, 1)
	if c1 != c2 {
		t.Fatalf("agent ids after import: %s vs %s", c1, c2)
	}
}

func TestImportRejectsMirrorAndCatalogMismatch(t *testing.T) {
	m, err := NewMirror(testConfig(), testCatalogs(t), MirrorOptions{})
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	w := newTestWorld(t)
	snap := w.ExportSnapshot(0)
	if err := m.ImportSnapshot(snap); err == nil {
		t.Fatalf("mirror accepted a snapshot")
	}
	snap.BlocksDigest = "bogus"
	if err := w.ImportSnapshot(snap); err == nil {
		t.Fatalf("catalog mismatch accepted")
	}
}

func TestSnapshotSinkCadence(t *testing.T) {
	cfg := testConfig()
	cfg.SnapshotEveryTicks = 5
	w, err := New(cfg, testCatalogs(t))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	sink := make(chan snapshot.SnapshotV1, 8)
	w.SetSnapshotSink(sink)
	stepN(w, 11)
	close(sink)
	var ticks []uint64
	for s := range sink {
		ticks = append(ticks, s.Header.Tick)
	}
	if len(ticks) != 2 || ticks[0] != 5 || ticks[1] != 10 {
		t.Fatalf("snapshot ticks: %v", ticks)
	}
}

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memBuildLog struct{ entries []BuildLogEntry }

func (m *memBuildLog) WriteBuild(e BuildLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestLoggersRecordTicksAndBuilds(t *testing.T) {
	w := newTestWorld(t)
	ticks := &memTickLog{}
	builds := &memBuildLog{}
	w.SetTickLogger(ticks)
	w.SetBuildLogger(builds)

	a := joinAgent(t, w, "builder", 1, false, copperWallSpeed)
	place := placeOrder("COPPER_WALL", 1, 1)
	w.StepOnce(nil, nil, orders(a, place))
	stepN(w, 3)

	if len(ticks.entries) != 5 {
		t.Fatalf("tick entries: got %d want 5", len(ticks.entries))
	}
	if len(ticks.entries[0].Joins) != 1 || ticks.entries[0].Joins[0].AgentID != a {
		t.Fatalf("tick 0 should record the join")
	}
	if o := ticks.entries[1].Orders; len(o) != 1 || o[0].Order.ID != place.ID || o[0].Order.Type != protocol.OrderPlace {
		t.Fatalf("tick 1 should record the order: %+v", o)
	}
	if len(builds.entries) != 2 {
		t.Fatalf("build entries: got %d want 2", len(builds.entries))
	}
	if builds.entries[0].Call != CallBeginPlace || builds.entries[1].Call != CallConstructFinish {
		t.Fatalf("build calls: %+v", builds.entries)
	}
	if builds.entries[1].Seq != 2 || builds.entries[1].Block != "COPPER_WALL" {
		t.Fatalf("finish entry: %+v", builds.entries[1])
	}
}
