package tuning

import (
	"strings"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz <= 0 || tu.Rules.BuildCostMultiplier <= 0 {
		t.Fatalf("bad tuning: %+v", tu)
	}
	if tu.Audio.MinGap().Milliseconds() != 32 || tu.Audio.BurstWindow().Milliseconds() != 480 {
		t.Fatalf("audio: %+v", tu.Audio)
	}
}

func TestParse_DefaultsFillMissing(t *testing.T) {
	tu, err := Parse([]byte("width: 32\nrules:\n  teams:\n    2:\n      infinite_resources: true\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tu.Width != 32 || tu.Height != 64 {
		t.Fatalf("size: %dx%d", tu.Width, tu.Height)
	}
	if !tu.Rules.ReactorExplosions || tu.Rules.DeconstructRefundMultiplier != 0.5 {
		t.Fatalf("rule defaults lost: %+v", tu.Rules)
	}
	if !tu.Rules.Teams[2].InfiniteResources {
		t.Fatalf("team rules: %+v", tu.Rules.Teams)
	}
}

func TestParse_RejectsInvalid(t *testing.T) {
	cases := []struct {
		name, yaml, field string
	}{
		{"refund above one", "rules:\n  deconstruct_refund_multiplier: 1.5\n", "DeconstructRefundMultiplier"},
		{"zero cost multiplier", "rules:\n  build_cost_multiplier: 0\n", "BuildCostMultiplier"},
		{"negative starter", "starter_items:\n  COPPER: -1\n", "StarterItems"},
		{"tick rate", "tick_rate_hz: 0\n", "TickRateHz"},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.yaml))
		if err == nil || !strings.Contains(err.Error(), tc.field) {
			t.Fatalf("%s: expected error naming %s, got %v", tc.name, tc.field, err)
		}
	}
}
