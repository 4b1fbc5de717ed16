package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"factoryforge.io/internal/persistence/indexdb"
	"factoryforge.io/internal/persistence/snapshot"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/tuning"
	"factoryforge.io/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.BuildLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("FF_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported FF_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiBuildLogger struct {
	a world.BuildLogger
	b world.BuildLogger
}

func (m multiBuildLogger) WriteBuild(entry world.BuildLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteBuild(entry)
	}
	if m.b != nil {
		_ = m.b.WriteBuild(entry)
	}
	return nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
