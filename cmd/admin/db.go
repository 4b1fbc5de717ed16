package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type snapshotRow struct {
	Tick    int64  `json:"tick"`
	Path    string `json:"path"`
	CallSeq int64  `json:"call_seq"`
	Tiles   int    `json:"tiles"`
	Sites   int    `json:"sites"`
	Agents  int    `json:"agents"`
}

type buildRow struct {
	Seq      int64  `json:"seq"`
	Call     string `json:"call"`
	Tick     int64  `json:"tick"`
	Pos      [2]int `json:"pos"`
	Block    string `json:"block,omitempty"`
	Builder  string `json:"builder,omitempty"`
	Team     int    `json:"team"`
	Breaking bool   `json:"breaking,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type tickRow struct {
	Tick   int64  `json:"tick"`
	Digest string `json:"digest"`
	Joins  int    `json:"joins"`
	Leaves int    `json:"leaves"`
	Orders int    `json:"orders"`
}

type buildFilter struct {
	Pos     *[2]int
	Builder string
	Limit   int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	pos := fs.String("pos", "", "cell filter for builds: x,y")
	builder := fs.String("builder", "", "agent filter for builds")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var rows any
	switch q {
	case "snapshots":
		rows, err = querySnapshots(db, *limit)
	case "ticks":
		rows, err = queryTicks(db, *limit)
	case "builds":
		f := buildFilter{Builder: strings.TrimSpace(*builder), Limit: *limit}
		if strings.TrimSpace(*pos) != "" {
			p, perr := parsePos(*pos)
			if perr != nil {
				fmt.Fprintln(os.Stderr, "bad -pos:", perr)
				os.Exit(2)
			}
			f.Pos = &p
		}
		rows, err = queryBuilds(db, f)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want snapshots|ticks|builds)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rows)
}

func clampLimit(n int) int {
	if n <= 0 {
		return 20
	}
	return n
}

func querySnapshots(db *sql.DB, limit int) ([]snapshotRow, error) {
	rows, err := db.Query(`SELECT tick,path,call_seq,tiles,sites,agents FROM snapshots ORDER BY tick DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []snapshotRow
	for rows.Next() {
		var r snapshotRow
		if err := rows.Scan(&r.Tick, &r.Path, &r.CallSeq, &r.Tiles, &r.Sites, &r.Agents); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryTicks(db *sql.DB, limit int) ([]tickRow, error) {
	rows, err := db.Query(`SELECT tick,digest,joins,leaves,orders FROM ticks ORDER BY tick DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tickRow
	for rows.Next() {
		var r tickRow
		if err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Orders); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// queryBuilds lists structural changes newest first.
func queryBuilds(db *sql.DB, f buildFilter) ([]buildRow, error) {
	q := `SELECT seq,call,tick,x,y,block,builder,team,breaking,COALESCE(reason,'') FROM builds`
	var where []string
	var args []any
	if f.Pos != nil {
		where = append(where, "x=? AND y=?")
		args = append(args, f.Pos[0], f.Pos[1])
	}
	if f.Builder != "" {
		where = append(where, "builder=?")
		args = append(args, f.Builder)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []buildRow
	for rows.Next() {
		var r buildRow
		var breaking int
		if err := rows.Scan(&r.Seq, &r.Call, &r.Tick, &r.Pos[0], &r.Pos[1], &r.Block, &r.Builder, &r.Team, &breaking, &r.Reason); err != nil {
			return nil, err
		}
		r.Breaking = breaking != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
