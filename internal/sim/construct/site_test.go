package construct

import (
	"bytes"
	"math/rand"
	"testing"

	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/model"
)

type testBlock struct {
	id        int16
	reqs      []catalogs.ItemCount
	cost      float32
	threshold float32
	solid     bool
}

func (b *testBlock) ID() int16                          { return b.id }
func (b *testBlock) Requirements() []catalogs.ItemCount { return b.reqs }
func (b *testBlock) BuildCost() float32                 { return b.cost }
func (b *testBlock) DeconstructThreshold() float32      { return b.threshold }
func (b *testBlock) Solid() bool                        { return b.solid }

type testCore struct {
	items    map[string]int
	capacity int
	locked   map[string]bool
}

func newCore(capacity int, items map[string]int) *testCore {
	return &testCore{items: items, capacity: capacity, locked: map[string]bool{}}
}

func (c *testCore) Get(item string) int       { return c.items[item] }
func (c *testCore) Add(item string, n int)    { c.items[item] += n }
func (c *testCore) Remove(item string, n int) { c.items[item] -= n }
func (c *testCore) Capacity(item string) int  { return c.capacity }
func (c *testCore) Unlocked(item string) bool { return !c.locked[item] }

var defaultRules = Rules{BuildCostMultiplier: 1, DeconstructRefundMultiplier: 0.5}

func smelter() *testBlock {
	return &testBlock{
		id:    3,
		reqs:  []catalogs.ItemCount{{Item: "COPPER", Count: 10}, {Item: "SILICON", Count: 5}},
		cost:  34,
		solid: true,
	}
}

var player = Builder{ID: "A1", Team: model.TeamSharded, Player: true}

func TestConstruct_SufficientResourcesReachesOne(t *testing.T) {
	b := smelter()
	core := newCore(1000, map[string]int{"COPPER": 100, "SILICON": 100})
	s := NewConstruct(nil, b, 0, model.TeamSharded, defaultRules)

	var last float32
	var finish *Finish
	calls := 0
	for finish == nil {
		calls++
		if calls > 4 {
			t.Fatalf("site did not finish after %d calls, progress=%v", calls-1, s.Progress)
		}
		res := s.Construct(player, core, 0.25, nil, defaultRules)
		if res.Progress < last {
			t.Fatalf("progress decreased: %v -> %v", last, res.Progress)
		}
		last = res.Progress
		finish = res.Finish
	}
	if s.Progress != 1 {
		t.Fatalf("progress: got %v want 1", s.Progress)
	}
	if finish.Kind != FinishConstruct || finish.Block != Block(b) || finish.Builder != "A1" {
		t.Fatalf("unexpected finish: %+v", finish)
	}
	if core.items["COPPER"] != 90 || core.items["SILICON"] != 95 {
		t.Fatalf("inventory debit: %v", core.items)
	}
	if s.Phase() != PhaseFinalizing {
		t.Fatalf("phase: %v", s.Phase())
	}
	if res := s.Construct(player, core, 0.25, nil, defaultRules); res.Finish != nil {
		t.Fatalf("finalizing site must not finish twice")
	}
}

func TestConstruct_StarvedRequirementBlocksProgress(t *testing.T) {
	core := newCore(1000, map[string]int{"COPPER": 10, "SILICON": 0})
	s := NewConstruct(nil, smelter(), 0, model.TeamSharded, defaultRules)

	res := s.Construct(player, core, 1, nil, defaultRules)
	if res.Applied != 0 || s.Progress != 0 {
		t.Fatalf("starved site advanced: applied=%v progress=%v", res.Applied, s.Progress)
	}
	if core.items["COPPER"] != 10 || core.items["SILICON"] != 0 {
		t.Fatalf("starved site debited inventory: %v", core.items)
	}
	if res.Finish != nil {
		t.Fatalf("starved site finished")
	}
}

func TestConstruct_ZeroAmountIsNoop(t *testing.T) {
	core := newCore(1000, map[string]int{"COPPER": 100, "SILICON": 100})
	s := NewConstruct(nil, smelter(), 0, model.TeamSharded, defaultRules)
	s.Construct(player, core, 0.3, nil, defaultRules)

	acc0, total0 := s.Accumulators()
	p0 := s.Progress
	items0 := map[string]int{"COPPER": core.items["COPPER"], "SILICON": core.items["SILICON"]}

	s.Construct(player, core, 0, nil, defaultRules)

	acc1, total1 := s.Accumulators()
	for i := range acc0 {
		if acc0[i] != acc1[i] || total0[i] != total1[i] {
			t.Fatalf("slot %d changed: acc %v->%v total %v->%v", i, acc0[i], acc1[i], total0[i], total1[i])
		}
	}
	if s.Progress != p0 {
		t.Fatalf("progress changed: %v -> %v", p0, s.Progress)
	}
	for k, v := range items0 {
		if core.items[k] != v {
			t.Fatalf("inventory %s changed: %d -> %d", k, v, core.items[k])
		}
	}
}

func TestCheckRequired_LedgerStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		b := &testBlock{id: 4, cost: 50}
		for i := 0; i < 1+rng.Intn(4); i++ {
			b.reqs = append(b.reqs, catalogs.ItemCount{Item: string(rune('A' + i)), Count: rng.Intn(40)})
		}
		core := newCore(1000, map[string]int{})
		for _, r := range b.reqs {
			core.items[r.Item] = rng.Intn(30)
		}
		s := NewConstruct(nil, b, 0, model.TeamSharded, defaultRules)
		for step := 0; step < 40 && s.Phase() != PhaseFinalizing; step++ {
			s.Construct(player, core, rng.Float32()*0.2, nil, defaultRules)
			acc, total := s.Accumulators()
			for i, r := range b.reqs {
				if acc[i] < 0 {
					t.Fatalf("trial %d: acc[%d] negative: %v", trial, i, acc[i])
				}
				if total[i] > defaultRules.Scaled(r.Count) {
					t.Fatalf("trial %d: total[%d]=%v exceeds %v", trial, i, total[i], defaultRules.Scaled(r.Count))
				}
			}
			for item, n := range core.items {
				if n < 0 {
					t.Fatalf("trial %d: inventory %s negative", trial, item)
				}
			}
		}
	}
}

func TestDeconstruct_FullRefundRoundsDownPerResource(t *testing.T) {
	b := smelter()
	core := newCore(1<<30, map[string]int{})
	s := NewDeconstruct(b, 0, model.TeamSharded, defaultRules)
	if s.Progress != 1 || s.Target != Block(b) {
		t.Fatalf("setDeconstruct: progress=%v target=%v", s.Progress, s.Target)
	}

	res := s.Deconstruct(player, core, 1, defaultRules)
	if core.items["COPPER"] != 5 || core.items["SILICON"] != 2 {
		t.Fatalf("refund: %v", core.items)
	}
	if res.Finish == nil || res.Finish.Kind != FinishDeconstruct || res.Finish.Block != Block(b) {
		t.Fatalf("unexpected finish: %+v", res.Finish)
	}
}

func TestDeconstruct_PartialSiteRefundsOnlyBuiltShare(t *testing.T) {
	b := smelter()
	core := newCore(1<<30, map[string]int{"COPPER": 100, "SILICON": 100})
	s := NewConstruct(nil, b, 0, model.TeamSharded, defaultRules)
	s.Construct(player, core, 0.5, nil, defaultRules)
	if s.Progress != 0.5 {
		t.Fatalf("progress: %v", s.Progress)
	}
	core.items = map[string]int{}

	res := s.Deconstruct(player, core, 1, defaultRules)
	if core.items["COPPER"] != 2 || core.items["SILICON"] != 1 {
		t.Fatalf("refund: %v", core.items)
	}
	if res.Applied != 0.5 || s.Progress != 0 {
		t.Fatalf("applied=%v progress=%v", res.Applied, s.Progress)
	}
}

func TestDeconstruct_OverflowAndLockedItemsAreDropped(t *testing.T) {
	b := smelter()
	core := newCore(3, map[string]int{"COPPER": 2})
	core.locked["SILICON"] = true
	s := NewDeconstruct(b, 0, model.TeamSharded, defaultRules)

	s.Deconstruct(player, core, 0.5, defaultRules)
	if core.items["COPPER"] != 3 {
		t.Fatalf("copper should fill to capacity, got %d", core.items["COPPER"])
	}
	if core.items["SILICON"] != 0 {
		t.Fatalf("locked item refunded: %d", core.items["SILICON"])
	}
	acc, _ := s.Accumulators()
	for i, a := range acc {
		if a >= 1 {
			t.Fatalf("slot %d kept %v whole units after flush", i, a)
		}
	}
	core.capacity = 1 << 30
	s.Deconstruct(player, core, 0.5, defaultRules)
	// 3 from the first pass, 3 from the second. A re-queued overflow unit would make it 7.
	if core.items["COPPER"] != 6 {
		t.Fatalf("overflow must not be re-queued, copper=%d", core.items["COPPER"])
	}
}

func TestDeconstruct_FinishTargetBranch(t *testing.T) {
	rubble := &testBlock{id: 9, cost: 0}
	s := NewDeconstruct(rubble, 0, model.TeamDerelict, defaultRules)
	if s.Target != nil || s.BuildCost != DefaultBuildCost {
		t.Fatalf("costless block must not become refund target: target=%v cost=%v", s.Target, s.BuildCost)
	}
	res := s.Deconstruct(player, nil, 1, defaultRules)
	if res.Finish == nil || res.Finish.Block != Block(rubble) {
		t.Fatalf("rubble should finish as previous, got %+v", res.Finish)
	}

	wallA := &testBlock{id: 5, cost: 40, threshold: 0.5, reqs: []catalogs.ItemCount{{Item: "COPPER", Count: 6}}}
	wallB := &testBlock{id: 6, cost: 60, reqs: []catalogs.ItemCount{{Item: "COPPER", Count: 12}}}
	s = NewConstruct(wallA, wallB, 0, model.TeamSharded, defaultRules)
	s.Construct(player, nil, 0.75, nil, defaultRules)
	res = s.Deconstruct(player, nil, 0.2, defaultRules)
	if res.Finish != nil {
		t.Fatalf("progress %v above previous threshold must not finish", s.Progress)
	}
	res = s.Deconstruct(player, nil, 0.1, defaultRules)
	if res.Finish == nil || res.Finish.Block != Block(wallB) {
		t.Fatalf("mid-construction site should finish back to target, got %+v", res.Finish)
	}
}

func TestConstruct_NoTargetKillsSite(t *testing.T) {
	s := &Site{}
	res := s.Construct(player, nil, 1, nil, defaultRules)
	if res.Finish == nil || res.Finish.Kind != FinishKill {
		t.Fatalf("expected kill, got %+v", res.Finish)
	}
}

func TestConstruct_InfiniteResources(t *testing.T) {
	core := newCore(1000, map[string]int{})
	rules := defaultRules
	rules.TeamInfinite = map[model.Team]bool{model.TeamSharded: true}
	s := NewConstruct(nil, smelter(), 0, model.TeamSharded, rules)
	res := s.Construct(player, core, 0.5, nil, rules)
	if res.Applied != 0.5 || res.Finish != nil {
		t.Fatalf("team infinite: applied=%v finish=%+v", res.Applied, res.Finish)
	}

	rules.InfiniteResources = true
	res = s.Construct(Builder{ID: "U7", Team: model.TeamSharded}, core, 0.1, nil, rules)
	if res.Finish == nil || res.Finish.Builder != "A1" {
		t.Fatalf("global infinite must finish with last player builder, got %+v", res.Finish)
	}
}

func TestConstruct_DirectionChangeResetsLedger(t *testing.T) {
	core := newCore(1<<30, map[string]int{})
	s := NewDeconstruct(smelter(), 0, model.TeamSharded, defaultRules)
	s.Deconstruct(player, core, 0.15, defaultRules)
	core.items = map[string]int{"COPPER": 100, "SILICON": 100}
	s.Construct(player, core, 0.05, nil, defaultRules)
	if s.Phase() != PhaseBuilding {
		t.Fatalf("phase: %v", s.Phase())
	}
	acc, _ := s.Accumulators()
	for i, a := range acc {
		if a < 0 {
			t.Fatalf("slot %d negative after direction change: %v", i, a)
		}
	}
}

func TestScaledRounding(t *testing.T) {
	r := Rules{BuildCostMultiplier: 1.5}
	if got := r.Scaled(5); got != 8 {
		t.Fatalf("round(7.5): got %v want 8", got)
	}
	if got := r.Scaled(0); got != 0 {
		t.Fatalf("zero count: %v", got)
	}
}

func TestSolid(t *testing.T) {
	wall := &testBlock{id: 1, cost: 10, solid: true}
	belt := &testBlock{id: 2, cost: 10}
	if !NewConstruct(nil, belt, 0, 0, defaultRules).Solid() {
		t.Fatalf("site without previous block must be solid")
	}
	if NewConstruct(belt, belt, 0, 0, defaultRules).Solid() {
		t.Fatalf("belt over belt must not be solid")
	}
	if !NewConstruct(belt, wall, 0, 0, defaultRules).Solid() {
		t.Fatalf("solid target must make the site solid")
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	b := smelter()
	core := newCore(1000, map[string]int{"COPPER": 100, "SILICON": 100})
	rules := Rules{BuildCostMultiplier: 2, DeconstructRefundMultiplier: 0.5}
	prev := &testBlock{id: 2, cost: 10}
	s := NewConstruct(prev, b, 1, model.TeamSharded, rules)
	s.Construct(player, core, 0.137, nil, rules)

	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != 4+2+2+1+len(b.reqs)*8 {
		t.Fatalf("encoded length: %d", buf.Len())
	}

	lookup := func(id int16) Block {
		switch id {
		case b.id:
			return b
		case prev.id:
			return prev
		}
		return nil
	}
	var got Site
	if err := got.Read(&buf, lookup, rules); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Progress != s.Progress || got.Target != Block(b) || got.Previous != Block(prev) {
		t.Fatalf("header mismatch: %+v", got)
	}
	if got.BuildCost != b.BuildCost()*2 {
		t.Fatalf("build cost not recomputed: %v", got.BuildCost)
	}
	wantAcc, wantTotal := s.Accumulators()
	gotAcc, gotTotal := got.Accumulators()
	for i := range wantAcc {
		if wantAcc[i] != gotAcc[i] || wantTotal[i] != gotTotal[i] {
			t.Fatalf("slot %d: got (%v,%v) want (%v,%v)", i, gotAcc[i], gotTotal[i], wantAcc[i], wantTotal[i])
		}
	}
}

func TestRead_UnsetLedgerAndSelfHeal(t *testing.T) {
	var s Site
	s.Progress = 0.4
	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got Site
	if err := got.Read(bytes.NewReader(buf.Bytes()), nil, defaultRules); err != nil {
		t.Fatalf("read: %v", err)
	}
	if acc, _ := got.Accumulators(); acc != nil || got.BuildCost != DefaultBuildCost {
		t.Fatalf("unset ledger: acc=%v cost=%v", acc, got.BuildCost)
	}

	// Ledger sized for two requirements, target now has three.
	b := &testBlock{id: 7, cost: 30, reqs: []catalogs.ItemCount{{Item: "A", Count: 1}, {Item: "B", Count: 1}, {Item: "C", Count: 1}}}
	old := NewConstruct(nil, smelter(), 0, model.TeamSharded, defaultRules)
	old.Progress = 0.25
	buf.Reset()
	if err := old.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	got = Site{}
	if err := got.Read(&buf, func(int16) Block { return b }, defaultRules); err != nil {
		t.Fatalf("read: %v", err)
	}
	got.Construct(player, nil, 0.25, nil, defaultRules)
	if acc, _ := got.Accumulators(); len(acc) != 3 {
		t.Fatalf("ledger not reinitialized: len=%d", len(acc))
	}
	if got.Progress != 0.5 {
		t.Fatalf("reinit must keep progress, got %v", got.Progress)
	}
}

func TestFamilyTable(t *testing.T) {
	ft := NewFamilyTable(catalogs.MaxBlockSize)
	f, err := ft.Get(4)
	if err != nil || f.Name != "build4" || f.Health != FamilyHealth {
		t.Fatalf("get(4): %+v %v", f, err)
	}
	if _, err := ft.Get(catalogs.MaxBlockSize + 1); err == nil {
		t.Fatalf("oversize family must error")
	}
	if _, err := NewFamilyTable(2).Get(3); err == nil {
		t.Fatalf("unregistered family must error")
	}
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if err := ft.Check(&cats.Blocks); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := NewFamilyTable(2).Check(&cats.Blocks); err == nil {
		t.Fatalf("impact reactor needs family 4")
	}
}

func TestEffort(t *testing.T) {
	if got := Effort(1, 0.5, 2, 20); got != 0.05 {
		t.Fatalf("effort: %v", got)
	}
	if got := Effort(1, 1, 1, 0); got != 1/DefaultBuildCost {
		t.Fatalf("zero build cost falls back to default: %v", got)
	}
}

func TestBuildAndBreakInEqualSteps(t *testing.T) {
	for _, n := range []int{3, 7, 79, 500} {
		b := smelter()
		core := newCore(1000, map[string]int{"COPPER": 100, "SILICON": 100})
		step := 1 / float32(n)

		s := NewConstruct(nil, b, 0, model.TeamSharded, defaultRules)
		calls := 0
		for res := (Result{}); res.Finish == nil; {
			if calls++; calls > n+2 {
				t.Fatalf("n=%d: build not finished after %d calls, progress=%v", n, calls-1, s.Progress)
			}
			res = s.Construct(player, core, step, nil, defaultRules)
		}
		if core.items["COPPER"] != 90 || core.items["SILICON"] != 95 {
			t.Fatalf("n=%d: build debit: %v want COPPER:90 SILICON:95", n, core.items)
		}

		d := NewDeconstruct(b, 0, model.TeamSharded, defaultRules)
		calls = 0
		for res := (Result{}); res.Finish == nil; {
			if calls++; calls > n+2 {
				t.Fatalf("n=%d: break not finished after %d calls, progress=%v", n, calls-1, d.Progress)
			}
			res = d.Deconstruct(player, core, step, defaultRules)
		}
		// floor(0.5 × 10) copper and floor(0.5 × 5) silicon come back.
		if core.items["COPPER"] != 95 || core.items["SILICON"] != 97 {
			t.Fatalf("n=%d: break refund: %v want COPPER:95 SILICON:97", n, core.items)
		}
	}
}
