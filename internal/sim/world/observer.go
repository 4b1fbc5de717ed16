package world

import (
	"encoding/json"
	"sort"

	"factoryforge.io/internal/observerproto"
	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/construct"
	"factoryforge.io/internal/sim/replicate"
)

// ObserverJoinRequest registers a read-only observer session. The world
// answers on Resp with a bootstrap and then streams every call and a TICK
// message per tick on Out. Calls are never dropped: an observer that falls
// behind is disconnected and Out is closed.
type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte
	Events    bool
	Resp      chan observerproto.BootstrapResponse
}

type observerClient struct {
	id     string
	out    chan []byte
	events bool
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	w.observers[req.SessionID] = &observerClient{id: req.SessionID, out: req.Out, events: req.Events}
	if req.Resp != nil {
		req.Resp <- w.Bootstrap()
	}
}

func (w *World) handleObserverLeave(id string) {
	delete(w.observers, id)
}

func callMsg(c replicate.Call) protocol.CallMsg {
	return protocol.CallMsg{
		Type:            protocol.TypeCall,
		ProtocolVersion: protocol.Version,
		Seq:             c.Seq,
		Tick:            c.Tick,
		Name:            c.Name,
		Args:            c.Args,
	}
}

func (w *World) stepObservers(nowTick uint64, digest string, joins []RecordedJoin, leaves []string, orders int) {
	if len(w.observers) == 0 {
		return
	}
	calls := make([][]byte, 0, len(w.callsThisTick))
	for _, c := range w.callsThisTick {
		b, err := json.Marshal(callMsg(c))
		if err != nil {
			continue
		}
		calls = append(calls, b)
	}

	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		CallSeq:         w.CallSeq(),
		Digest:          digest,
		OccupantDigest:  w.OccupantDigest(),
		Leaves:          leaves,
		Orders:          orders,
		Sites:           w.siteProgress(),
		Reactors:        w.reactorStates(),
	}
	for _, j := range joins {
		msg.Joins = append(msg.Joins, observerproto.AgentInfo{AgentID: j.AgentID, Name: j.Name, Team: int(j.Team), Player: j.Player})
	}
	plain, err := json.Marshal(msg)
	if err != nil {
		return
	}
	var withEvents []byte
	if len(w.eventsThisTick) > 0 {
		msg.Events = w.eventsThisTick
		withEvents, _ = json.Marshal(msg)
	}

	ids := make([]string, 0, len(w.observers))
	for id := range w.observers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := w.observers[id]
		tick := plain
		if c.events && withEvents != nil {
			tick = withEvents
		}
		if !c.send(calls, tick) {
			delete(w.observers, id)
			close(c.out)
		}
	}
}

func (c *observerClient) send(calls [][]byte, tick []byte) bool {
	for _, b := range calls {
		if !trySend(c.out, b) {
			return false
		}
	}
	return trySend(c.out, tick)
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

func (w *World) siteProgress() []observerproto.SiteProgress {
	var out []observerproto.SiteProgress
	for _, pos := range w.sortedAnchors() {
		t := w.tiles[pos]
		if t.Site == nil {
			continue
		}
		out = append(out, observerproto.SiteProgress{
			Pos:      [2]int{pos.X, pos.Y},
			Progress: t.Site.Progress,
			Breaking: t.Site.Phase() == construct.PhaseDeconstructing,
		})
	}
	return out
}

func (w *World) reactorStates() []observerproto.ReactorState {
	var out []observerproto.ReactorState
	for _, pos := range w.sortedAnchors() {
		t := w.tiles[pos]
		if t.Reactor == nil {
			continue
		}
		m := &t.Reactor.Model
		out = append(out, observerproto.ReactorState{
			Pos:           [2]int{pos.X, pos.Y},
			Warmup:        m.Heat(),
			TotalProgress: m.TotalProgress,
			Efficiency:    m.ProductionEfficiency(),
			NetPower:      m.NetPower(t.Reactor.Params),
		})
	}
	return out
}

// Bootstrap captures the occupant state an observer mirrors from, together
// with the sequence of the last call it reflects.
func (w *World) Bootstrap() observerproto.BootstrapResponse {
	b := observerproto.BootstrapResponse{
		Type:            observerproto.TypeBootstrap,
		ProtocolVersion: observerproto.Version,
		WorldID:         w.cfg.ID,
		Tick:            w.tick.Load(),
		CallSeq:         w.CallSeq(),
		WorldParams: observerproto.WorldParams{
			TickRateHz: w.cfg.TickRateHz,
			Width:      w.cfg.Width,
			Height:     w.cfg.Height,
		},
		BlockPalette: append([]string(nil), w.catalogs.Blocks.Palette...),
		BlocksDigest: w.catalogs.Blocks.DefsDigest,
	}
	for _, a := range w.sortedAgents() {
		b.Agents = append(b.Agents, observerproto.AgentInfo{AgentID: a.ID, Name: a.Name, Team: int(a.Team), Player: a.Player})
	}
	for _, pos := range w.sortedAnchors() {
		t := w.tiles[pos]
		o := observerproto.Occupant{
			Pos:      [2]int{pos.X, pos.Y},
			Block:    t.BlockID(),
			Team:     int(t.Team),
			Rotation: t.Rotation,
			Health:   t.Health,
			Config:   t.Config,
		}
		for _, p := range t.Overwrote {
			o.Overwrote = append(o.Overwrote, priorRef(p))
		}
		if s := t.Site; s != nil {
			o.Site = &observerproto.SiteRef{
				Size:     t.Family.Size,
				Target:   idOf(s.Target),
				Previous: idOf(s.Previous),
				Breaking: s.Phase() == construct.PhaseDeconstructing,
				Progress: s.Progress,
			}
			for _, p := range s.Prior {
				o.Site.Prior = append(o.Site.Prior, priorRef(p))
			}
		}
		b.Occupants = append(b.Occupants, o)
	}
	return b
}

func priorRef(p construct.Prior) observerproto.PriorRef {
	return observerproto.PriorRef{Pos: [2]int{p.Pos.X, p.Pos.Y}, Block: p.Block}
}
