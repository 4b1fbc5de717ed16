package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"factoryforge.io/internal/persistence/snapshot"
)

const snapSuffix = ".snap.zst"

type snapFile struct {
	tick uint64
	path string
}

// listSnapshots returns the world's snapshot files ordered by tick.
func listSnapshots(worldDir string) []snapFile {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []snapFile
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, snapSuffix) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, snapSuffix), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, snapFile{tick: tick, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tick < out[j].tick })
	return out
}

func latestSnapshot(worldDir string) string {
	all := listSnapshots(worldDir)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1].path
}

// pruneSnapshots removes all but the newest keep snapshots. keep <= 0 keeps
// everything.
func pruneSnapshots(worldDir string, keep int) (removed int, err error) {
	if keep <= 0 {
		return 0, nil
	}
	all := listSnapshots(worldDir)
	for len(all) > keep {
		if rmErr := os.Remove(all[0].path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		} else {
			removed++
		}
		all = all[1:]
	}
	return removed, err
}

// snapshotWriter persists snapshots emitted by the world, records them in the
// index and applies the retention limit.
type snapshotWriter struct {
	worldDir string
	keep     int
	idx      runtimeIndex
	logger   *log.Logger
}

func (sw snapshotWriter) run(ctx context.Context, in <-chan snapshot.SnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-in:
			sw.write(snap)
		}
	}
}

func (sw snapshotWriter) write(snap snapshot.SnapshotV1) {
	path := filepath.Join(sw.worldDir, "snapshots", fmt.Sprintf("%d%s", snap.Header.Tick, snapSuffix))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		sw.logger.Printf("snapshot write: %v", err)
		return
	}
	if sw.idx != nil {
		sw.idx.RecordSnapshot(path, snap)
	}
	if n, err := pruneSnapshots(sw.worldDir, sw.keep); err != nil {
		sw.logger.Printf("snapshot prune: %v", err)
	} else if n > 0 {
		sw.logger.Printf("snapshot tick=%d written, pruned %d", snap.Header.Tick, n)
	}
}
