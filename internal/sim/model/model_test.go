package model

import (
	"sort"
	"testing"
)

func TestPosDst(t *testing.T) {
	if got := (Pos{X: 0, Y: 0}).Dst(Pos{X: 3, Y: 4}); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
}

func TestPosLessRowMajor(t *testing.T) {
	ps := []Pos{{X: 2, Y: 1}, {X: 0, Y: 2}, {X: 5, Y: 0}, {X: 1, Y: 1}}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
	want := []Pos{{X: 5, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 1}, {X: 0, Y: 2}}
	for i := range want {
		if ps[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %+v want %+v", i, ps[i], want[i])
		}
	}
}

func TestClamp01(t *testing.T) {
	if Clamp01(-0.5) != 0 || Clamp01(1.5) != 1 || Clamp01(0.25) != 0.25 {
		t.Fatalf("clamp mismatch")
	}
}
