package world

import (
	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/reactor"
)

// systemReactors advances every reactor's warmup by one tick, in anchor order.
func (w *World) systemReactors(nowTick uint64) {
	for _, pos := range w.sortedAnchors() {
		t := w.tiles[pos]
		if t == nil || t.Reactor == nil {
			continue
		}
		r := t.Reactor
		consumes := t.Block.Reactor().Consumes
		st := r.Model.Update(r.Params, reactor.Input{
			Efficiency:  inputEfficiency(r, consumes),
			PowerStatus: r.PowerStatus,
			TimeScale:   1,
			Delta:       1,
		})
		if st.Consume {
			for _, c := range consumes {
				r.Items[c.Item] = max(r.Items[c.Item]-c.Count, 0)
				if r.Items[c.Item] == 0 {
					delete(r.Items, c.Item)
				}
			}
		}
		if st.ImpactPower {
			w.teamEvent(t.Team, protocol.Event{
				"t":         nowTick,
				"type":      "REACTOR_ONLINE",
				"pos":       []int{t.Pos.X, t.Pos.Y},
				"net_power": r.Model.NetPower(r.Params),
			})
		}
	}
}

// inputEfficiency is 1 when every consumed item has a full batch buffered.
func inputEfficiency(r *ReactorState, consumes []catalogs.ItemCount) float32 {
	for _, c := range consumes {
		if r.Items[c.Item] < c.Count {
			return 0
		}
	}
	return 1
}
