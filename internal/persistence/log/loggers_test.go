package log

import (
	"path/filepath"
	"testing"
	"time"

	"factoryforge.io/internal/sim/world"
)

func TestTickLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := uint64(0); i < 3; i++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: i, Digest: "d"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []uint64
	err := ReadTicks(dir, func(e world.TickLogEntry) error {
		got = append(got, e.Tick)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("ticks: %v", got)
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "builds")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	if err := w.Write(world.BuildLogEntry{Tick: 1, Call: world.CallBeginPlace}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(world.BuildLogEntry{Tick: 2, Call: world.CallConstructFinish}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "builds")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "builds-2026-03-01-10.jsonl.zst" {
		t.Fatalf("files: %v", files)
	}
	var calls []string
	err = ReadAll(dir, "builds", func(e world.BuildLogEntry) error {
		calls = append(calls, e.Call)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(calls) != 2 || calls[1] != world.CallConstructFinish {
		t.Fatalf("calls: %v", calls)
	}
}

func TestReopenAppendsFrames(t *testing.T) {
	dir := t.TempDir()
	for i := uint64(0); i < 2; i++ {
		l := NewBuildLogger(dir)
		if err := l.WriteBuild(world.BuildLogEntry{Tick: i}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	n := 0
	if err := ReadBuilds(dir, func(world.BuildLogEntry) error { n++; return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 2 {
		t.Fatalf("entries: got %d want 2", n)
	}
}
