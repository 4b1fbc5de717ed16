package world

import (
	"encoding/json"
	"fmt"

	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/completion"
	"factoryforge.io/internal/sim/construct"
	"factoryforge.io/internal/sim/model"
	"factoryforge.io/internal/sim/replicate"
)

// Replicated calls. Every structural change to the grid goes through one of
// these so that observers converge by applying the same stream.
const (
	CallBeginPlace        = "beginPlace"
	CallBeginBreak        = "beginBreak"
	CallConstructFinish   = "constructFinish"
	CallDeconstructFinish = "deconstructFinish"
	CallBuildDestroyed    = "buildDestroyed"
	CallBuildDamaged      = "buildDamaged"
)

type BeginPlaceArgs struct {
	Pos      model.Pos       `json:"pos"`
	Block    int16           `json:"block"`
	Rotation uint8           `json:"rotation"`
	Team     model.Team      `json:"team"`
	Builder  string          `json:"builder,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

type BeginBreakArgs struct {
	Pos     model.Pos `json:"pos"`
	Builder string    `json:"builder,omitempty"`
}

type BuildDestroyedArgs struct {
	Pos    model.Pos  `json:"pos"`
	Reason string     `json:"reason,omitempty"`
	Blast  *BlastArgs `json:"blast,omitempty"`
}

type BlastArgs struct {
	Radius int     `json:"radius"`
	Damage float32 `json:"damage"`
}

type BuildDamagedArgs struct {
	Pos    model.Pos `json:"pos"`
	Health float32   `json:"health"`
}

func (w *World) registerCalls() {
	replicate.Handle(w.calls, CallBeginPlace, w.applyBeginPlace)
	replicate.Handle(w.calls, CallBeginBreak, w.applyBeginBreak)
	replicate.Handle(w.calls, CallConstructFinish, func(m completion.ConstructFinished) error {
		w.completion.ConstructFinish(m)
		return nil
	})
	replicate.Handle(w.calls, CallDeconstructFinish, func(m completion.DeconstructFinished) error {
		w.completion.DeconstructFinish(m)
		return nil
	})
	replicate.Handle(w.calls, CallBuildDestroyed, w.applyBuildDestroyed)
	replicate.Handle(w.calls, CallBuildDamaged, w.applyBuildDamaged)
}

// invoke issues a call from the authority. Mirrors never originate calls.
func (w *World) invoke(nowTick uint64, name string, args any) bool {
	if w.dispatch == nil {
		return false
	}
	if _, err := w.dispatch.Invoke(nowTick, name, args); err != nil {
		w.eventsThisTick = append(w.eventsThisTick, protocol.Event{
			"t":       nowTick,
			"type":    "CALL_ERROR",
			"call":    name,
			"message": err.Error(),
		})
		return false
	}
	return true
}

func (w *World) applyBeginPlace(a BeginPlaceArgs) error {
	target := w.catalogs.Blocks.ByID(a.Block)
	if target == nil || !target.Buildable() {
		return fmt.Errorf("beginPlace: block %d is not buildable", a.Block)
	}
	size := target.Size()
	if !w.inBounds(a.Pos, size) {
		return fmt.Errorf("beginPlace: %v size %d out of bounds", a.Pos, size)
	}
	fam, err := w.families.Get(size)
	if err != nil {
		return fmt.Errorf("beginPlace: %w", err)
	}

	var previous construct.Block
	var prior []construct.Prior
	for _, t := range w.overlapping(a.Pos, size) {
		if t.Block != nil {
			prior = append(prior, construct.Prior{Pos: t.Pos, Block: t.Block.ID()})
			if t.Pos == a.Pos && t.Size() == size {
				previous = t.Block
			}
		}
		w.removeTile(t)
	}

	site := construct.NewConstruct(previous, target, a.Rotation, a.Team, w.siteRules())
	site.Prior = prior
	site.LastConfig = a.Config
	w.putTile(&Tile{
		Pos:      a.Pos,
		Team:     a.Team,
		Rotation: a.Rotation,
		Health:   fam.Health,
		Site:     site,
		Family:   fam,
	})
	w.logBuild(CallBeginPlace, a.Pos, target.Name(), a.Builder, a.Team, false, "")
	return nil
}

func (w *World) applyBeginBreak(a BeginBreakArgs) error {
	t := w.tiles[a.Pos]
	if t == nil {
		return fmt.Errorf("beginBreak: nothing at %v", a.Pos)
	}
	if t.Site != nil {
		return nil
	}
	fam, err := w.families.Get(t.Block.Size())
	if err != nil {
		return fmt.Errorf("beginBreak: %w", err)
	}
	site := construct.NewDeconstruct(t.Block, t.Rotation, t.Team, w.siteRules())
	site.LastConfig = t.Config
	nt := &Tile{
		Pos:      t.Pos,
		Team:     t.Team,
		Rotation: t.Rotation,
		Health:   fam.Health * t.HealthFraction(),
		Site:     site,
		Family:   fam,
	}
	w.removeTile(t)
	w.putTile(nt)
	w.logBuild(CallBeginBreak, a.Pos, t.Block.Name(), a.Builder, t.Team, true, "")
	return nil
}

// applyBuildDestroyed removes whatever occupies the anchor. A missing tile is a no-op.
func (w *World) applyBuildDestroyed(a BuildDestroyedArgs) error {
	t := w.tiles[a.Pos]
	if t == nil {
		return nil
	}
	ev := protocol.Event{
		"t":      w.tick.Load(),
		"type":   "BUILD_DESTROYED",
		"pos":    []int{a.Pos.X, a.Pos.Y},
		"block":  t.Name(),
		"team":   int(t.Team),
		"reason": a.Reason,
	}
	if a.Blast != nil {
		ev["blast_radius"] = a.Blast.Radius
		ev["blast_damage"] = a.Blast.Damage
	}
	w.broadcast(ev)
	if t.Site != nil {
		w.effect(completion.Effect{Kind: EffectRubble, Pos: t.Pos, Size: t.Size()})
	}
	w.removeTile(t)
	w.logBuild(CallBuildDestroyed, a.Pos, t.Name(), "", t.Team, false, a.Reason)
	return nil
}

func (w *World) applyBuildDamaged(a BuildDamagedArgs) error {
	t := w.tiles[a.Pos]
	if t == nil {
		return nil
	}
	t.Health = min(a.Health, t.MaxHealth())
	return nil
}

const EffectRubble = "RUBBLE"

// buildObserver receives completion notifications on behalf of the world.
type buildObserver struct{ w *World }

func (o buildObserver) BuildEnded(e completion.BuildEnd) {
	w := o.w
	name := ""
	if b := w.catalogs.Blocks.ByID(e.Block); b != nil {
		name = b.Name()
	}
	ev := protocol.Event{
		"t":        w.tick.Load(),
		"type":     "BUILD_END",
		"pos":      []int{e.Pos.X, e.Pos.Y},
		"block":    name,
		"team":     int(e.Team),
		"breaking": e.Breaking,
	}
	if e.Builder != "" {
		ev["builder"] = e.Builder
	}
	if len(e.Config) > 0 {
		ev["config"] = e.Config
	}
	w.teamEvent(e.Team, ev)
	call := CallConstructFinish
	if e.Breaking {
		call = CallDeconstructFinish
	}
	w.logBuild(call, e.Pos, name, e.Builder, e.Team, e.Breaking, "")
}

func (o buildObserver) Effect(e completion.Effect) { o.w.effect(e) }

func (o buildObserver) Cue(c completion.Cue) {
	if o.w.onCue != nil {
		o.w.onCue(c)
	}
}

func (w *World) effect(e completion.Effect) {
	w.eventsThisTick = append(w.eventsThisTick, protocol.Event{
		"t":    w.tick.Load(),
		"type": "EFFECT",
		"kind": e.Kind,
		"pos":  []int{e.Pos.X, e.Pos.Y},
		"size": e.Size,
	})
}

// logBuild records a structural change. The call being applied is one past
// the last applied sequence number.
func (w *World) logBuild(call string, pos model.Pos, block, builder string, team model.Team, breaking bool, reason string) {
	if w.buildLogger == nil {
		return
	}
	_ = w.buildLogger.WriteBuild(BuildLogEntry{
		Tick:     w.tick.Load(),
		Seq:      w.CallSeq() + 1,
		Call:     call,
		Pos:      [2]int{pos.X, pos.Y},
		Block:    block,
		Builder:  builder,
		Team:     team,
		Breaking: breaking,
		Reason:   reason,
	})
}
