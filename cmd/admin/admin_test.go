package main

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"factoryforge.io/internal/observerproto"
	"factoryforge.io/internal/persistence/indexdb"
	persistlog "factoryforge.io/internal/persistence/log"
	"factoryforge.io/internal/persistence/snapshot"
	"factoryforge.io/internal/sim/world"
)

func seededIndex(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 1, Digest: "d1"})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 2, Digest: "d2"})
	_ = idx.WriteBuild(world.BuildLogEntry{Tick: 1, Seq: 1, Call: world.CallBeginPlace, Pos: [2]int{3, 4}, Block: "COPPER_WALL", Builder: "A1", Team: 1})
	_ = idx.WriteBuild(world.BuildLogEntry{Tick: 5, Seq: 2, Call: world.CallConstructFinish, Pos: [2]int{3, 4}, Block: "COPPER_WALL", Builder: "A1", Team: 1})
	_ = idx.WriteBuild(world.BuildLogEntry{Tick: 6, Seq: 3, Call: world.CallBeginBreak, Pos: [2]int{9, 9}, Builder: "A2", Team: 2, Breaking: true})
	idx.RecordSnapshot("/snaps/10.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 10}, CallSeq: 3})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestQueryBuilds(t *testing.T) {
	db := seededIndex(t)

	rows, err := queryBuilds(db, buildFilter{Pos: &[2]int{3, 4}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 || rows[0].Call != world.CallConstructFinish || rows[1].Seq != 1 {
		t.Fatalf("by pos: %+v", rows)
	}

	rows, err = queryBuilds(db, buildFilter{Builder: "A2"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || !rows[0].Breaking || rows[0].Pos != [2]int{9, 9} {
		t.Fatalf("by builder: %+v", rows)
	}

	rows, err = queryBuilds(db, buildFilter{Limit: 1})
	if err != nil || len(rows) != 1 || rows[0].Seq != 3 {
		t.Fatalf("limit: %+v err=%v", rows, err)
	}
}

func TestQueryTicksAndSnapshots(t *testing.T) {
	db := seededIndex(t)
	ticks, err := queryTicks(db, 0)
	if err != nil || len(ticks) != 2 || ticks[0].Digest != "d2" {
		t.Fatalf("ticks: %+v err=%v", ticks, err)
	}
	snaps, err := querySnapshots(db, 5)
	if err != nil || len(snaps) != 1 || snaps[0].CallSeq != 3 {
		t.Fatalf("snapshots: %+v err=%v", snaps, err)
	}
}

func TestBuildHistory(t *testing.T) {
	worldDir := t.TempDir()
	l := persistlog.NewBuildLogger(worldDir)
	_ = l.WriteBuild(world.BuildLogEntry{Tick: 1, Seq: 1, Call: world.CallBeginPlace, Pos: [2]int{1, 1}})
	_ = l.WriteBuild(world.BuildLogEntry{Tick: 2, Seq: 2, Call: world.CallBeginPlace, Pos: [2]int{2, 2}})
	_ = l.WriteBuild(world.BuildLogEntry{Tick: 4, Seq: 3, Call: world.CallConstructFinish, Pos: [2]int{1, 1}})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := buildHistory(worldDir, &[2]int{1, 1}, 0)
	if err != nil || len(recs) != 2 {
		t.Fatalf("pos filter: %+v err=%v", recs, err)
	}
	recs, err = buildHistory(worldDir, nil, 2)
	if err != nil || len(recs) != 2 || recs[0].Seq != 2 {
		t.Fatalf("since filter: %+v err=%v", recs, err)
	}
}

func TestParsePos(t *testing.T) {
	if p, err := parsePos(" 3, -4 "); err != nil || p != [2]int{3, -4} {
		t.Fatalf("parsePos: %v %v", p, err)
	}
	for _, bad := range []string{"", "1", "1,2,3", "a,b"} {
		if _, err := parsePos(bad); err == nil {
			t.Fatalf("parsePos(%q) should fail", bad)
		}
	}
}

func TestSummarize(t *testing.T) {
	b := observerproto.BootstrapResponse{
		WorldID:      "w",
		Tick:         7,
		CallSeq:      3,
		WorldParams:  observerproto.WorldParams{Width: 8, Height: 8},
		BlockPalette: []string{"AIR", "COPPER_WALL"},
		Agents: []observerproto.AgentInfo{
			{AgentID: "A2", Name: "bob", Team: 2},
			{AgentID: "A1", Name: "alice", Team: 1, Player: true},
		},
		Occupants: []observerproto.Occupant{
			{Pos: [2]int{1, 1}, Block: 1, Team: 1},
			{Pos: [2]int{2, 1}, Block: 1, Team: 1},
			{Pos: [2]int{4, 4}, Block: 5, Team: 2, Site: &observerproto.SiteRef{Size: 1, Target: 1, Progress: 0.25}},
			{Pos: [2]int{5, 4}, Block: 5, Team: 2, Site: &observerproto.SiteRef{Size: 1, Target: 9, Breaking: true, Progress: 0.5}},
		},
	}
	got := summarize(b)
	want := []string{
		"world=w tick=7 call_seq=3 size=8x8",
		"agent A1 name=alice team=1 player=true",
		"agent A2 name=bob team=2 player=false",
		"buildings COPPER_WALL=2",
		"site 4,4 building COPPER_WALL team=2 25%",
		"site 5,4 breaking #9 team=2 50%",
	}
	if strings.Join(want, "\n")+"\n" != got {
		t.Fatalf("summary:\n%s", got)
	}
}
