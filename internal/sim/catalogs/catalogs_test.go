package catalogs

import (
	"math"
	"strings"
	"testing"
)

func TestLoad_PaletteAndDerivedStats(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cats.Blocks.Palette[0] != "AIR" || cats.Blocks.Index["AIR"] != AirID {
		t.Fatalf("AIR must be palette id 0, got %v", cats.Blocks.Palette[:1])
	}
	if cats.Blocks.PaletteDigest == "" || cats.Items.DefsDigest == "" {
		t.Fatalf("digests not computed")
	}

	wall := cats.Blocks.ByName("COPPER_WALL")
	if wall == nil {
		t.Fatalf("missing COPPER_WALL")
	}
	if got := wall.BuildCost(); got != 138 {
		t.Fatalf("copper wall build cost: got %v want 138", got)
	}
	if cats.Blocks.ByID(wall.ID()) != wall {
		t.Fatalf("ByID/ByName mismatch")
	}

	reactor := cats.Blocks.ByName("IMPACT_REACTOR")
	if reactor == nil || reactor.Reactor() == nil {
		t.Fatalf("missing IMPACT_REACTOR reactor params")
	}
	if got := reactor.BuildCost(); math.Abs(float64(got)-1795) > 0.01 {
		t.Fatalf("impact reactor build cost: got %v want 1795", got)
	}
	if reactor.Size() != 4 {
		t.Fatalf("impact reactor size: %d", reactor.Size())
	}

	drill := cats.Blocks.ByName("MECHANICAL_DRILL")
	if drill.Health() != 2*2*40 {
		t.Fatalf("default health: got %v", drill.Health())
	}
	if cats.Blocks.ByID(NoBlock) != nil || cats.Blocks.ByID(int16(len(cats.Blocks.Palette))) != nil {
		t.Fatalf("out of range ids must resolve to nil")
	}
}

func TestParse_RejectsUnknownRequirementItem(t *testing.T) {
	items := []byte(`[{"id":"COPPER","cost":0.5}]`)
	blocks := []byte(`[{"id":"AIR"},{"id":"WALL","requirements":[{"item":"LEAD","count":1}]}]`)
	_, err := Parse(blocks, items)
	if err == nil || !strings.Contains(err.Error(), "LEAD") {
		t.Fatalf("expected unknown item error, got %v", err)
	}
}

func TestParse_SchemaViolation(t *testing.T) {
	items := []byte(`[{"id":"copper"}]`)
	if _, err := Parse([]byte(`[{"id":"AIR"}]`), items); err == nil {
		t.Fatalf("expected schema error for lowercase id")
	}
	items = []byte(`[{"id":"COPPER"}]`)
	blocks := []byte(`[{"id":"AIR"},{"id":"BIG","size":17,"requirements":[{"item":"COPPER","count":1}]}]`)
	if _, err := Parse(blocks, items); err == nil {
		t.Fatalf("expected oversize block to be rejected")
	}
}

func TestParse_MissingAir(t *testing.T) {
	items := []byte(`[{"id":"COPPER"}]`)
	blocks := []byte(`[{"id":"WALL","requirements":[{"item":"COPPER","count":1}]}]`)
	if _, err := Parse(blocks, items); err == nil {
		t.Fatalf("expected missing AIR error")
	}
}

func TestItemDefaultCost(t *testing.T) {
	cats, err := Parse([]byte(`[{"id":"AIR"},{"id":"W","requirements":[{"item":"X","count":10}]}]`), []byte(`[{"id":"X"}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := cats.Blocks.ByName("W").BuildCost(); got != 30 {
		t.Fatalf("build cost with default item cost: got %v want 30", got)
	}
}
