package world

import (
	"math"

	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/completion"
	"factoryforge.io/internal/sim/construct"
	"factoryforge.io/internal/sim/model"
)

// reactorWarnSeconds spaces reactor-construction warnings for a single site.
const reactorWarnSeconds = 10

// systemBuild applies one tick of effort from every agent's head plan, in
// join order. Contributions to a shared site are therefore serialized.
func (w *World) systemBuild(nowTick uint64) {
	rules := w.siteRules()
	for _, a := range w.sortedAgents() {
		p := a.head()
		if p == nil {
			continue
		}
		t := w.tiles[p.Pos]
		if t == nil || t.Site == nil {
			done := !p.Breaking && t != nil && t.Block != nil && t.Block.ID() == p.Block.ID()
			if p.Breaking && t == nil {
				done = true
			}
			a.popPlan()
			a.AddEvent(planEvent(nowTick, p, done))
			continue
		}
		if t.Team != a.Team && t.Team != model.TeamDerelict {
			a.popPlan()
			a.AddEvent(planEvent(nowTick, p, false))
			continue
		}
		if !p.Breaking && (t.Site.Target == nil || t.Site.Target.ID() != p.Block.ID()) {
			a.popPlan()
			a.AddEvent(planEvent(nowTick, p, false))
			continue
		}

		core := w.coreFor(a.Team)
		amount := construct.Effort(1, a.BuildSpeed, w.cfg.Rules.BuildSpeedMultiplier, t.Site.BuildCost)
		var res construct.Result
		if p.Breaking {
			res = t.Site.Deconstruct(a.builder(), core, amount, rules)
		} else {
			before := t.Site.Progress
			res = t.Site.Construct(a.builder(), core, amount, p.Config, rules)
			if res.Progress > before {
				w.maybeWarnReactor(nowTick, t)
			}
		}
		if res.Finish == nil {
			continue
		}
		a.popPlan()
		w.finish(nowTick, t.Pos, res.Finish)
		a.AddEvent(planEvent(nowTick, p, true))
	}
}

// finish turns a site's finish trigger into the matching replicated call.
func (w *World) finish(nowTick uint64, pos model.Pos, f *construct.Finish) {
	if f.Kind == construct.FinishKill {
		w.destroy(nowTick, pos, "invalid")
		return
	}
	args, ok := completion.Payload(pos, f)
	if !ok {
		return
	}
	name := CallConstructFinish
	if f.Kind == construct.FinishDeconstruct {
		name = CallDeconstructFinish
	}
	w.invoke(nowTick, name, args)
}

// maybeWarnReactor tells the site's team that a player is building a reactor.
func (w *World) maybeWarnReactor(nowTick uint64, t *Tile) {
	s := t.Site
	target := w.catalogs.Blocks.ByID(s.Target.ID())
	if target == nil || target.Reactor() == nil || s.Progress >= 0.99 || s.LastBuilder == "" {
		return
	}
	a := w.agents[s.LastBuilder]
	if a == nil || !a.Player {
		return
	}
	every := uint64(reactorWarnSeconds * w.cfg.TickRateHz)
	if t.warnedAt != 0 && nowTick < t.warnedAt+every {
		return
	}
	t.warnedAt = max(nowTick, 1)
	w.teamEvent(t.Team, protocol.Event{
		"t":       nowTick,
		"type":    "REACTOR_WARNING",
		"pos":     []int{t.Pos.X, t.Pos.Y},
		"block":   target.Name(),
		"builder": a.Name,
		"percent": int(math.Round(float64(s.Progress * 100))),
	})
}

func planEvent(tick uint64, p *Plan, done bool) protocol.Event {
	status := "DONE"
	if !done {
		status = "ABORTED"
	}
	return protocol.Event{
		"t":        tick,
		"type":     "PLAN_" + status,
		"ref":      p.ID,
		"pos":      []int{p.Pos.X, p.Pos.Y},
		"breaking": p.Breaking,
	}
}
