package world

import (
	"fmt"
	"sort"
	"sync/atomic"

	"factoryforge.io/internal/observerproto"
	"factoryforge.io/internal/persistence/snapshot"
	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/completion"
	"factoryforge.io/internal/sim/construct"
	"factoryforge.io/internal/sim/model"
	"factoryforge.io/internal/sim/replicate"
	"factoryforge.io/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	Width              int
	Height             int
	SnapshotEveryTicks int
	CoreCapacity       int
	StarterItems       map[string]int
	MaxQueue           int
	Rules              tuning.Rules
}

// DefaultMaxQueue bounds an agent's build plan queue when HELLO does not.
const DefaultMaxQueue = 32

// ConfigFromTuning maps the tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		Width:              t.Width,
		Height:             t.Height,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		CoreCapacity:       t.CoreCapacity,
		StarterItems:       t.StarterItems,
		MaxQueue:           DefaultMaxQueue,
		Rules:              t.Rules,
	}
}

type JoinRequest struct {
	Name       string
	Team       model.Team
	Player     bool
	BuildSpeed float32
	MaxQueue   int
	Out        chan []byte
	Resp       chan JoinResponse
}

type AttachRequest struct {
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

type OrderEnvelope struct {
	AgentID string
	Order   protocol.OrderMsg
}

type RecordedJoin struct {
	AgentID    string     `json:"agent_id"`
	Name       string     `json:"name"`
	Team       model.Team `json:"team"`
	Player     bool       `json:"player,omitempty"`
	BuildSpeed float32    `json:"build_speed"`
	MaxQueue   int        `json:"max_queue"`
}

type RecordedOrder struct {
	AgentID string            `json:"agent_id"`
	Order   protocol.OrderReq `json:"order"`
}

type TickLogEntry struct {
	Tick   uint64          `json:"tick"`
	Joins  []RecordedJoin  `json:"joins,omitempty"`
	Leaves []string        `json:"leaves,omitempty"`
	Orders []RecordedOrder `json:"orders,omitempty"`
	Digest string          `json:"digest"`
}

// BuildLogEntry records one structural change made by a replicated call.
type BuildLogEntry struct {
	Tick     uint64     `json:"tick"`
	Seq      uint64     `json:"seq"`
	Call     string     `json:"call"`
	Pos      [2]int     `json:"pos"`
	Block    string     `json:"block,omitempty"`
	Builder  string     `json:"builder,omitempty"`
	Team     model.Team `json:"team"`
	Breaking bool       `json:"breaking,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type BuildLogger interface {
	WriteBuild(entry BuildLogEntry) error
}

type clientState struct {
	Out chan []byte
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	families *construct.FamilyTable

	tick atomic.Uint64

	// tiles is keyed by anchor; occupied maps every covered cell to its anchor.
	tiles    map[model.Pos]*Tile
	occupied map[model.Pos]model.Pos

	agents  map[string]*Agent
	clients map[string]*clientState
	cores   map[model.Team]*Core

	calls      *replicate.Table
	dispatch   *replicate.Dispatcher
	replica    *replicate.Replica
	completion *completion.Protocol
	mirror     bool
	onCue      func(completion.Cue)

	inbox  chan OrderEnvelope
	join   chan JoinRequest
	attach chan AttachRequest
	leave  chan string
	stop   chan struct{}

	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	observers     map[string]*observerClient
	bootstrapReq  chan chan observerproto.BootstrapResponse

	nextAgentNum atomic.Uint64

	// Calls and events produced during the current tick, for observers.
	callsThisTick  []replicate.Call
	eventsThisTick []protocol.Event

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	buildLogger BuildLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1
}

// New builds an authoritative world: calls are issued by the world itself
// and applied locally before being streamed to observers.
func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	w, err := newWorld(cfg, cats)
	if err != nil {
		return nil, err
	}
	w.dispatch = replicate.NewDispatcher(w.calls)
	w.dispatch.Subscribe(func(c replicate.Call) {
		w.callsThisTick = append(w.callsThisTick, c)
	})
	return w, nil
}

func newWorld(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 60
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("world: bad size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = DefaultMaxQueue
	}
	if cfg.Rules.BuildCostMultiplier == 0 {
		cfg.Rules.BuildCostMultiplier = 1
	}
	if cfg.Rules.BuildSpeedMultiplier == 0 {
		cfg.Rules.BuildSpeedMultiplier = 1
	}
	families := construct.NewFamilyTable(catalogs.MaxBlockSize)
	if err := families.Check(&cats.Blocks); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}

	w := &World{
		cfg:           cfg,
		catalogs:      cats,
		families:      families,
		tiles:         map[model.Pos]*Tile{},
		occupied:      map[model.Pos]model.Pos{},
		agents:        map[string]*Agent{},
		clients:       map[string]*clientState{},
		cores:         map[model.Team]*Core{},
		calls:         replicate.NewTable(),
		inbox:         make(chan OrderEnvelope, 1024),
		join:          make(chan JoinRequest, 64),
		attach:        make(chan AttachRequest, 64),
		leave:         make(chan string, 64),
		stop:          make(chan struct{}),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerClient{},
		bootstrapReq:  make(chan chan observerproto.BootstrapResponse, 16),
	}
	w.completion = &completion.Protocol{
		Grid:     gridView{w: w},
		Blocks:   &cats.Blocks,
		Agents:   agentRegistry{w: w},
		Observer: buildObserver{w: w},
	}
	w.registerCalls()
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetBuildLogger(l BuildLogger) { w.buildLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) {
	w.snapshotSink = ch
}

func (w *World) Inbox() chan<- OrderEnvelope  { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Attach() chan<- AttachRequest { return w.attach }
func (w *World) Leave() chan<- string         { return w.leave }
func (w *World) CurrentTick() uint64          { return w.tick.Load() }
func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest {
	return w.observerJoin
}
func (w *World) ObserverLeave() chan<- string { return w.observerLeave }

func (w *World) Config() WorldConfig {
	cfg := w.cfg
	if cfg.StarterItems != nil {
		m := make(map[string]int, len(cfg.StarterItems))
		for k, v := range cfg.StarterItems {
			m[k] = v
		}
		cfg.StarterItems = m
	}
	return cfg
}

// CallSeq is the sequence number of the last replicated call applied here.
func (w *World) CallSeq() uint64 {
	if w.dispatch != nil {
		return w.dispatch.Seq()
	}
	return w.replica.Applied()
}

func (w *World) siteRules() construct.Rules {
	r := construct.Rules{
		BuildCostMultiplier:         w.cfg.Rules.BuildCostMultiplier,
		DeconstructRefundMultiplier: w.cfg.Rules.DeconstructRefundMultiplier,
		InfiniteResources:           w.cfg.Rules.InfiniteResources,
	}
	for team, tr := range w.cfg.Rules.Teams {
		if !tr.InfiniteResources {
			continue
		}
		if r.TeamInfinite == nil {
			r.TeamInfinite = map[model.Team]bool{}
		}
		r.TeamInfinite[model.Team(team)] = true
	}
	return r
}

func (w *World) sortedAnchors() []model.Pos {
	out := make([]model.Pos, 0, len(w.tiles))
	for p := range w.tiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (w *World) sortedAgents() []*Agent {
	out := make([]*Agent, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (w *World) broadcast(ev protocol.Event) {
	for _, a := range w.agents {
		a.AddEvent(ev)
	}
	w.eventsThisTick = append(w.eventsThisTick, ev)
}

func (w *World) teamEvent(team model.Team, ev protocol.Event) {
	for _, a := range w.agents {
		if a.Team == team {
			a.AddEvent(ev)
		}
	}
	w.eventsThisTick = append(w.eventsThisTick, ev)
}
