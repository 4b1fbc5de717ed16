package world

import (
	"encoding/json"

	"factoryforge.io/internal/protocol"
)

func (w *World) stepInternal(joins []JoinRequest, leaves []string, orders []OrderEnvelope) {
	nowTick := w.tick.Load()
	w.callsThisTick = w.callsThisTick[:0]
	w.eventsThisTick = w.eventsThisTick[:0]

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := w.agents[id]; ok {
			w.handleLeave(id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp, rec := w.joinAgent(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, rec)
	}

	// Apply orders in server receive order (the inbox order).
	recorded := make([]RecordedOrder, 0, len(orders))
	for _, env := range orders {
		a := w.agents[env.AgentID]
		if a == nil {
			continue
		}
		env.Order.AgentID = env.AgentID // trust session identity
		for _, o := range env.Order.Orders {
			recorded = append(recorded, RecordedOrder{AgentID: env.AgentID, Order: o})
		}
		w.applyOrders(a, env.Order, nowTick)
	}

	// Systems: builders, then reactors.
	w.systemBuild(nowTick)
	w.systemReactors(nowTick)

	w.flushClients(nowTick)

	digest := w.stateDigest(nowTick)

	// Observer stream (admin-only, read-only).
	w.stepObservers(nowTick, digest, recordedJoins, recordedLeaves, len(recorded))

	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Orders: recorded, Digest: digest})
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	w.tick.Add(1)
}

// flushClients sends this tick's calls and each agent's pending events to
// its connection, if any.
func (w *World) flushClients(nowTick uint64) {
	calls := make([][]byte, 0, len(w.callsThisTick))
	for _, c := range w.callsThisTick {
		b, err := json.Marshal(callMsg(c))
		if err != nil {
			continue
		}
		calls = append(calls, b)
	}
	for id, a := range w.agents {
		cl := w.clients[id]
		if cl == nil {
			// Detached agents keep their events until they resume.
			continue
		}
		for _, b := range calls {
			sendLatest(cl.Out, b)
		}
		events := a.TakeEvents()
		if len(events) == 0 {
			continue
		}
		b, err := json.Marshal(protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			Events:          events,
		})
		if err != nil {
			continue
		}
		sendLatest(cl.Out, b)
	}
}
