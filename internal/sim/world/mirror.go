package world

import (
	"errors"
	"fmt"

	"factoryforge.io/internal/observerproto"
	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/completion"
	"factoryforge.io/internal/sim/construct"
	"factoryforge.io/internal/sim/model"
	"factoryforge.io/internal/sim/replicate"
)

var ErrNotMirror = errors.New("world: not a mirror")

type MirrorOptions struct {
	// Throttle paces completion cues. Nil disables cues.
	Throttle *completion.Throttle
	OnCue    func(completion.Cue)
}

// NewMirror builds a non-authoritative world that only changes by applying
// replicated calls received from an authority.
func NewMirror(cfg WorldConfig, cats *catalogs.Catalogs, opts MirrorOptions) (*World, error) {
	w, err := newWorld(cfg, cats)
	if err != nil {
		return nil, err
	}
	w.mirror = true
	w.replica = replicate.NewReplica(w.calls)
	w.completion.Throttle = opts.Throttle
	w.onCue = opts.OnCue
	return w, nil
}

func (w *World) IsMirror() bool { return w.mirror }

// LoadBootstrap replaces the mirror's occupants with the authority's and
// resumes the call stream after b.CallSeq.
func (w *World) LoadBootstrap(b observerproto.BootstrapResponse) error {
	if !w.mirror {
		return ErrNotMirror
	}
	if b.BlocksDigest != "" && b.BlocksDigest != w.catalogs.Blocks.DefsDigest {
		return fmt.Errorf("bootstrap: block catalog digest mismatch")
	}
	lookup := construct.CatalogLookup(&w.catalogs.Blocks)
	rules := w.siteRules()

	w.tiles = map[model.Pos]*Tile{}
	w.occupied = map[model.Pos]model.Pos{}
	w.agents = map[string]*Agent{}
	for _, a := range b.Agents {
		w.addMirrorAgent(a)
	}

	for _, o := range b.Occupants {
		pos := model.Pos{X: o.Pos[0], Y: o.Pos[1]}
		t := &Tile{
			Pos:      pos,
			Team:     model.Team(o.Team),
			Rotation: o.Rotation,
			Health:   o.Health,
			Config:   o.Config,
		}
		for _, p := range o.Overwrote {
			t.Overwrote = append(t.Overwrote, priorFromRef(p))
		}
		if ref := o.Site; ref != nil {
			fam, err := w.families.Get(ref.Size)
			if err != nil {
				return fmt.Errorf("bootstrap: site at %v: %w", pos, err)
			}
			target := lookup(ref.Target)
			previous := lookup(ref.Previous)
			var site *construct.Site
			if ref.Breaking {
				site = construct.NewDeconstruct(previous, o.Rotation, t.Team, rules)
				site.Target = target
			} else {
				site = construct.NewConstruct(previous, target, o.Rotation, t.Team, rules)
			}
			site.Progress = ref.Progress
			for _, p := range ref.Prior {
				site.Prior = append(site.Prior, priorFromRef(p))
			}
			t.Site = site
			t.Family = fam
		} else {
			block := w.catalogs.Blocks.ByID(o.Block)
			if block == nil {
				return fmt.Errorf("bootstrap: unknown block %d at %v", o.Block, pos)
			}
			t.Block = block
			if def := block.Reactor(); def != nil {
				t.Reactor = newReactorState(def)
			}
		}
		if !w.inBounds(pos, t.Size()) {
			return fmt.Errorf("bootstrap: occupant at %v out of bounds", pos)
		}
		w.putTile(t)
	}
	w.replica.Resume(b.CallSeq)
	w.tick.Store(b.Tick)
	return nil
}

// ApplyCall applies one call from the authority's stream. Redelivered calls
// report false; a gap is an error and the mirror must re-bootstrap.
func (w *World) ApplyCall(c replicate.Call) (bool, error) {
	if !w.mirror {
		return false, ErrNotMirror
	}
	w.tick.Store(c.Tick)
	return w.replica.Apply(c)
}

func (w *World) ApplyCallMsg(m protocol.CallMsg) (bool, error) {
	return w.ApplyCall(replicate.Call{Seq: m.Seq, Tick: m.Tick, Name: m.Name, Args: m.Args})
}

// ObserveTick keeps the mirror's agent registry in step with the authority.
func (w *World) ObserveTick(m observerproto.TickMsg) {
	for _, a := range m.Joins {
		w.addMirrorAgent(a)
	}
}

func (w *World) addMirrorAgent(a observerproto.AgentInfo) {
	w.agents[a.AgentID] = &Agent{ID: a.AgentID, Name: a.Name, Team: model.Team(a.Team), Player: a.Player}
}

func priorFromRef(p observerproto.PriorRef) construct.Prior {
	return construct.Prior{Pos: model.Pos{X: p.Pos[0], Y: p.Pos[1]}, Block: p.Block}
}
