package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "factoryforge.io/internal/persistence/log"
	"factoryforge.io/internal/persistence/snapshot"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/tuning"
	"factoryforge.io/internal/sim/world"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks/builds + catalogs + snapshot metadata)")
		keepSnaps  = flag.Int("keep_snapshots", 0, "snapshots to retain on disk (0 keeps all)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	resumeFrom := strings.TrimSpace(*snapPath)
	if resumeFrom == "" && *loadLatest {
		resumeFrom = latestSnapshot(worldDir)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := loadTuning(tp, resumeFrom != "")
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	// The index is a read model; it never feeds back into the simulation.
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	w, err := world.New(world.ConfigFromTuning(*worldID, tune), cats)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if resumeFrom != "" {
		if err := resume(w, *worldID, resumeFrom); err != nil {
			logger.Fatalf("resume: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(resumeFrom), w.CurrentTick())
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	buildLog := persistlog.NewBuildLogger(worldDir)
	defer tickLog.Close()
	defer buildLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	w.SetBuildLogger(multiBuildLogger{a: buildLog, b: idx})

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go snapshotWriter{worldDir: worldDir, keep: *keepSnaps, idx: idx, logger: logger}.run(ctx, snapCh)

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	rt := routes{
		worldID: *worldID,
		w:       w,
		idx:     idx,
		tune:    tune,
		logger:  logger,
		admin:   envBool("FF_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		pprof:   envBool("FF_ENABLE_PPROF_HTTP", false),
	}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           rt.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// loadTuning reads the rules file. A missing file is tolerated when resuming,
// since the snapshot carries the effective rules; rate limits and audio
// settings then fall back to defaults.
func loadTuning(path string, resuming bool) (tuning.Tuning, error) {
	tune, err := tuning.Load(path)
	if err == nil {
		return tune, nil
	}
	if resuming && errors.Is(err, fs.ErrNotExist) {
		return tuning.Defaults(), nil
	}
	return tuning.Tuning{}, err
}

func resume(w *world.World, worldID, path string) error {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != worldID {
		return fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", worldID, snap.Header.WorldID)
	}
	return w.ImportSnapshot(snap)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
