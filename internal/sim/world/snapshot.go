package world

import (
	"bytes"
	"fmt"
	"sort"

	"factoryforge.io/internal/persistence/snapshot"
	"factoryforge.io/internal/sim/construct"
	"factoryforge.io/internal/sim/model"
	"factoryforge.io/internal/sim/tuning"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header:             snapshot.Header{Version: snapshot.Version, WorldID: w.cfg.ID, Tick: nowTick},
		TickRate:           w.cfg.TickRateHz,
		Width:              w.cfg.Width,
		Height:             w.cfg.Height,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		CoreCapacity:       w.cfg.CoreCapacity,
		MaxQueue:           w.cfg.MaxQueue,
		StarterItems:       copyItems(w.cfg.StarterItems),
		Rules: snapshot.RulesV1{
			BuildCostMultiplier:         w.cfg.Rules.BuildCostMultiplier,
			DeconstructRefundMultiplier: w.cfg.Rules.DeconstructRefundMultiplier,
			BuildSpeedMultiplier:        w.cfg.Rules.BuildSpeedMultiplier,
			InfiniteResources:           w.cfg.Rules.InfiniteResources,
			ReactorExplosions:           w.cfg.Rules.ReactorExplosions,
		},
		BlocksDigest: w.catalogs.Blocks.DefsDigest,
		CallSeq:      w.CallSeq(),
		NextAgentNum: w.nextAgentNum.Load(),
	}
	for team, tr := range w.cfg.Rules.Teams {
		if tr.InfiniteResources {
			s.Rules.InfiniteTeams = append(s.Rules.InfiniteTeams, team)
		}
	}
	sort.Ints(s.Rules.InfiniteTeams)

	for _, pos := range w.sortedAnchors() {
		s.Tiles = append(s.Tiles, exportTile(w.tiles[pos]))
	}
	for _, a := range w.sortedAgents() {
		av := snapshot.AgentV1{
			ID:         a.ID,
			Name:       a.Name,
			Team:       uint8(a.Team),
			Player:     a.Player,
			BuildSpeed: a.BuildSpeed,
			MaxQueue:   a.MaxQueue,
		}
		for _, p := range a.Plans {
			pv := snapshot.PlanV1{ID: p.ID, Breaking: p.Breaking, Pos: [2]int{p.Pos.X, p.Pos.Y}, Rotation: p.Rotation, Config: p.Config}
			if p.Block != nil {
				pv.Block = p.Block.Name()
			}
			av.Plans = append(av.Plans, pv)
		}
		s.Agents = append(s.Agents, av)
	}
	for _, team := range w.sortedTeams() {
		s.Cores = append(s.Cores, snapshot.CoreV1{Team: uint8(team), Items: copyItems(w.cores[team].Items)})
	}
	return s
}

func exportTile(t *Tile) snapshot.TileV1 {
	tv := snapshot.TileV1{
		Pos:          [2]int{t.Pos.X, t.Pos.Y},
		Team:         uint8(t.Team),
		Rotation:     t.Rotation,
		Health:       t.Health,
		Config:       t.Config,
		LastAccessed: t.LastAccessed,
		Overwrote:    exportPriors(t.Overwrote),
	}
	if t.Block != nil {
		tv.Block = t.Block.Name()
	}
	if s := t.Site; s != nil {
		var buf bytes.Buffer
		// Write only fails on more than 127 requirements, which the catalog schema rules out.
		_ = s.Write(&buf)
		tv.Site = &snapshot.SiteV1{
			Size:        t.Family.Size,
			Phase:       uint8(s.Phase()),
			Rotation:    s.Rotation,
			Team:        uint8(s.Team),
			LastBuilder: s.LastBuilder,
			LastConfig:  s.LastConfig,
			Prior:       exportPriors(s.Prior),
			WarnedAt:    t.warnedAt,
			Data:        buf.Bytes(),
		}
	}
	if r := t.Reactor; r != nil {
		var buf bytes.Buffer
		_ = r.Model.Write(&buf)
		tv.Reactor = &snapshot.ReactorV1{PowerStatus: r.PowerStatus, Items: copyItems(r.Items), Data: buf.Bytes()}
	}
	return tv
}

func exportPriors(ps []construct.Prior) []snapshot.PriorV1 {
	var out []snapshot.PriorV1
	for _, p := range ps {
		out = append(out, snapshot.PriorV1{Pos: [2]int{p.Pos.X, p.Pos.Y}, Block: p.Block})
	}
	return out
}

func importPriors(ps []snapshot.PriorV1) []construct.Prior {
	var out []construct.Prior
	for _, p := range ps {
		out = append(out, construct.Prior{Pos: model.Pos{X: p.Pos[0], Y: p.Pos[1]}, Block: p.Block})
	}
	return out
}

func copyItems(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ImportSnapshot replaces the world state with s. The world resumes at the
// tick after the one the snapshot was taken at.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if w.mirror {
		return fmt.Errorf("import snapshot: mirrors load from a bootstrap")
	}
	if s.BlocksDigest != "" && s.BlocksDigest != w.catalogs.Blocks.DefsDigest {
		return fmt.Errorf("import snapshot: block catalog digest mismatch")
	}
	w.cfg.TickRateHz = s.TickRate
	w.cfg.Width = s.Width
	w.cfg.Height = s.Height
	w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	w.cfg.CoreCapacity = s.CoreCapacity
	w.cfg.MaxQueue = s.MaxQueue
	w.cfg.StarterItems = copyItems(s.StarterItems)
	w.cfg.Rules = tuning.Rules{
		BuildCostMultiplier:         s.Rules.BuildCostMultiplier,
		DeconstructRefundMultiplier: s.Rules.DeconstructRefundMultiplier,
		BuildSpeedMultiplier:        s.Rules.BuildSpeedMultiplier,
		InfiniteResources:           s.Rules.InfiniteResources,
		ReactorExplosions:           s.Rules.ReactorExplosions,
	}
	for _, team := range s.Rules.InfiniteTeams {
		if w.cfg.Rules.Teams == nil {
			w.cfg.Rules.Teams = map[int]tuning.TeamRules{}
		}
		w.cfg.Rules.Teams[team] = tuning.TeamRules{InfiniteResources: true}
	}

	w.tiles = map[model.Pos]*Tile{}
	w.occupied = map[model.Pos]model.Pos{}
	for _, tv := range s.Tiles {
		t, err := w.importTile(tv)
		if err != nil {
			return fmt.Errorf("import snapshot: tile %v: %w", tv.Pos, err)
		}
		w.putTile(t)
	}

	w.agents = map[string]*Agent{}
	w.clients = map[string]*clientState{}
	for i, av := range s.Agents {
		a := &Agent{
			ID:          av.ID,
			Name:        av.Name,
			Team:        model.Team(av.Team),
			Player:      av.Player,
			Seq:         uint64(i + 1),
			BuildSpeed:  av.BuildSpeed,
			MaxQueue:    av.MaxQueue,
			ResumeToken: newResumeToken(),
		}
		var n uint64
		if _, err := fmt.Sscanf(av.ID, "A%d", &n); err == nil {
			a.Seq = n
		}
		for _, pv := range av.Plans {
			p := &Plan{ID: pv.ID, Breaking: pv.Breaking, Pos: model.Pos{X: pv.Pos[0], Y: pv.Pos[1]}, Rotation: pv.Rotation, Config: pv.Config}
			if !pv.Breaking {
				p.Block = w.catalogs.Blocks.ByName(pv.Block)
				if p.Block == nil {
					return fmt.Errorf("import snapshot: agent %s plan %s: unknown block %q", av.ID, pv.ID, pv.Block)
				}
			}
			a.Plans = append(a.Plans, p)
		}
		w.agents[a.ID] = a
	}

	w.cores = map[model.Team]*Core{}
	for _, cv := range s.Cores {
		c := &Core{Team: model.Team(cv.Team), Items: copyItems(cv.Items), capacity: w.cfg.CoreCapacity, items: &w.catalogs.Items}
		if c.Items == nil {
			c.Items = map[string]int{}
		}
		w.cores[c.Team] = c
	}

	w.dispatch.Resume(s.CallSeq)
	w.nextAgentNum.Store(s.NextAgentNum)
	w.tick.Store(s.Header.Tick + 1)
	return nil
}

func (w *World) importTile(tv snapshot.TileV1) (*Tile, error) {
	t := &Tile{
		Pos:          model.Pos{X: tv.Pos[0], Y: tv.Pos[1]},
		Team:         model.Team(tv.Team),
		Rotation:     tv.Rotation,
		Health:       tv.Health,
		Config:       tv.Config,
		LastAccessed: tv.LastAccessed,
		Overwrote:    importPriors(tv.Overwrote),
	}
	if sv := tv.Site; sv != nil {
		fam, err := w.families.Get(sv.Size)
		if err != nil {
			return nil, err
		}
		site := &construct.Site{
			Rotation:    sv.Rotation,
			Team:        model.Team(sv.Team),
			LastBuilder: sv.LastBuilder,
			LastConfig:  sv.LastConfig,
			Prior:       importPriors(sv.Prior),
		}
		if err := site.Read(bytes.NewReader(sv.Data), construct.CatalogLookup(&w.catalogs.Blocks), w.siteRules()); err != nil {
			return nil, err
		}
		site.RestorePhase(construct.Phase(sv.Phase))
		t.Site = site
		t.Family = fam
		t.warnedAt = sv.WarnedAt
	} else {
		t.Block = w.catalogs.Blocks.ByName(tv.Block)
		if t.Block == nil {
			return nil, fmt.Errorf("unknown block %q", tv.Block)
		}
	}
	if rv := tv.Reactor; rv != nil {
		if t.Block == nil || t.Block.Reactor() == nil {
			return nil, fmt.Errorf("reactor state on non-reactor block")
		}
		r := newReactorState(t.Block.Reactor())
		if err := r.Model.Read(bytes.NewReader(rv.Data)); err != nil {
			return nil, err
		}
		r.PowerStatus = rv.PowerStatus
		for k, v := range rv.Items {
			r.Items[k] = v
		}
		t.Reactor = r
	}
	if !w.inBounds(t.Pos, t.Size()) {
		return nil, fmt.Errorf("out of bounds")
	}
	return t, nil
}
