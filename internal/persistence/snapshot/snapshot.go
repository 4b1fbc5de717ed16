package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate           int            `json:"tick_rate_hz"`
	Width              int            `json:"width"`
	Height             int            `json:"height"`
	SnapshotEveryTicks int            `json:"snapshot_every_ticks,omitempty"`
	CoreCapacity       int            `json:"core_capacity"`
	MaxQueue           int            `json:"max_queue"`
	StarterItems       map[string]int `json:"starter_items,omitempty"`
	Rules              RulesV1        `json:"rules"`

	// Site and reactor payloads carry numeric block ids; a snapshot only
	// loads against the block catalog it was taken with.
	BlocksDigest string `json:"blocks_digest"`

	CallSeq      uint64 `json:"call_seq"`
	NextAgentNum uint64 `json:"next_agent_num"`

	Tiles  []TileV1  `json:"tiles"`
	Agents []AgentV1 `json:"agents"`
	Cores  []CoreV1  `json:"cores"`
}

type RulesV1 struct {
	BuildCostMultiplier         float32 `json:"build_cost_multiplier"`
	DeconstructRefundMultiplier float32 `json:"deconstruct_refund_multiplier"`
	BuildSpeedMultiplier        float32 `json:"build_speed_multiplier"`
	InfiniteResources           bool    `json:"infinite_resources"`
	ReactorExplosions           bool    `json:"reactor_explosions"`
	InfiniteTeams               []int   `json:"infinite_teams,omitempty"`
}

type TileV1 struct {
	Pos          [2]int    `json:"pos"`
	Block        string    `json:"block,omitempty"`
	Team         uint8     `json:"team"`
	Rotation     uint8     `json:"rotation"`
	Health       float32   `json:"health"`
	Config       []byte    `json:"config,omitempty"`
	LastAccessed string    `json:"last_accessed,omitempty"`
	Overwrote    []PriorV1 `json:"overwrote,omitempty"`

	Site    *SiteV1    `json:"site,omitempty"`
	Reactor *ReactorV1 `json:"reactor,omitempty"`
}

type PriorV1 struct {
	Pos   [2]int `json:"pos"`
	Block int16  `json:"block"`
}

type SiteV1 struct {
	Size        int       `json:"size"`
	Phase       uint8     `json:"phase"`
	Rotation    uint8     `json:"rotation"`
	Team        uint8     `json:"team"`
	LastBuilder string    `json:"last_builder,omitempty"`
	LastConfig  []byte    `json:"last_config,omitempty"`
	Prior       []PriorV1 `json:"prior,omitempty"`
	WarnedAt    uint64    `json:"warned_at,omitempty"`
	// Data is the site's binary encoding (progress, block ids, ledger).
	Data []byte `json:"data"`
}

type ReactorV1 struct {
	PowerStatus float32        `json:"power_status"`
	Items       map[string]int `json:"items,omitempty"`
	// Data is the warmup model's binary encoding.
	Data []byte `json:"data"`
}

type AgentV1 struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Team       uint8    `json:"team"`
	Player     bool     `json:"player"`
	BuildSpeed float32  `json:"build_speed"`
	MaxQueue   int      `json:"max_queue"`
	Plans      []PlanV1 `json:"plans,omitempty"`
}

type PlanV1 struct {
	ID       string `json:"id"`
	Breaking bool   `json:"breaking"`
	Pos      [2]int `json:"pos"`
	Block    string `json:"block,omitempty"`
	Rotation uint8  `json:"rotation"`
	Config   []byte `json:"config,omitempty"`
}

type CoreV1 struct {
	Team  uint8          `json:"team"`
	Items map[string]int `json:"items"`
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
