package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	persistlog "factoryforge.io/internal/persistence/log"
	"factoryforge.io/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "history":
			historyCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// historyCmd prints the build log of one world, optionally for one cell.
func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	pos := fs.String("pos", "", "cell filter: x,y (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "skip entries before this tick")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	var at *[2]int
	if strings.TrimSpace(*pos) != "" {
		p, err := parsePos(*pos)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -pos:", err)
			os.Exit(2)
		}
		at = &p
	}

	recs, err := buildHistory(filepath.Join(*dataDir, "worlds", *worldID), at, *sinceTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read builds:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range recs {
		_ = enc.Encode(r)
	}
}

func buildHistory(worldDir string, at *[2]int, since uint64) ([]world.BuildLogEntry, error) {
	var out []world.BuildLogEntry
	err := persistlog.ReadBuilds(worldDir, func(e world.BuildLogEntry) error {
		if e.Tick < since {
			return nil
		}
		if at != nil && e.Pos != *at {
			return nil
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func parsePos(s string) ([2]int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return [2]int{}, fmt.Errorf("want x,y")
	}
	var p [2]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return [2]int{}, err
		}
		p[i] = v
	}
	return p, nil
}
