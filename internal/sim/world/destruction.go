package world

import (
	"math"

	"factoryforge.io/internal/sim/completion"
	"factoryforge.io/internal/sim/model"
	"factoryforge.io/internal/sim/reactor"
)

const EffectExplosion = "EXPLOSION"

type doomed struct {
	pos    model.Pos
	reason string
}

// destroy removes the occupant at anchor and resolves any chain of reactor
// explosions it sets off. Blast targets are visited in anchor order so the
// resulting call stream is deterministic.
func (w *World) destroy(nowTick uint64, anchor model.Pos, reason string) {
	queue := []doomed{{pos: anchor, reason: reason}}
	queued := map[model.Pos]bool{anchor: true}
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		t := w.tiles[d.pos]
		if t == nil {
			continue
		}

		var blast *BlastArgs
		if t.Reactor != nil {
			if ex, ok := t.Reactor.Model.OnDestroyed(t.Reactor.Params, w.cfg.Rules.ReactorExplosions); ok {
				blast = &BlastArgs{Radius: ex.Radius, Damage: ex.Damage}
			}
		}
		cx, cy := t.center()
		if !w.invoke(nowTick, CallBuildDestroyed, BuildDestroyedArgs{Pos: d.pos, Reason: d.reason, Blast: blast}) {
			continue
		}
		if blast == nil {
			continue
		}
		w.effect(completion.Effect{Kind: EffectExplosion, Pos: d.pos, Size: blast.Radius})

		for _, q := range w.sortedAnchors() {
			if queued[q] {
				continue
			}
			target := w.tiles[q]
			tx, ty := target.center()
			dist := float32(math.Hypot(float64(tx-cx), float64(ty-cy)))
			dmg := reactor.Falloff(blast.Damage, dist, float32(blast.Radius))
			if dmg <= 0 {
				continue
			}
			if health := target.Health - dmg; health > 0 {
				w.invoke(nowTick, CallBuildDamaged, BuildDamagedArgs{Pos: q, Health: health})
				continue
			}
			queued[q] = true
			queue = append(queue, doomed{pos: q, reason: "explosion"})
		}
	}
}
