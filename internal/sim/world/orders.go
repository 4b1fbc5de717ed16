package world

import (
	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/model"
)

func orderResult(tick uint64, ref string, ok bool, code string, message string) protocol.Event {
	e := protocol.Event{
		"t":    tick,
		"type": "ORDER_RESULT",
		"ref":  ref,
		"ok":   ok,
	}
	if code != "" {
		e["code"] = code
	}
	if message != "" {
		e["message"] = message
	}
	return e
}

func (w *World) applyOrders(a *Agent, msg protocol.OrderMsg, nowTick uint64) {
	for _, o := range msg.Orders {
		code, message := w.applyOrder(a, o, nowTick)
		a.AddEvent(orderResult(nowTick, o.ID, code == "", code, message))
	}
}

// applyOrder validates one order and carries it out. It returns an empty
// code on success.
func (w *World) applyOrder(a *Agent, o protocol.OrderReq, nowTick uint64) (string, string) {
	pos := model.Pos{X: o.Pos[0], Y: o.Pos[1]}
	switch o.Type {
	case protocol.OrderPlace:
		return w.orderPlace(a, o, pos, nowTick)
	case protocol.OrderBreak:
		return w.orderBreak(a, o, pos, nowTick)
	case protocol.OrderCancel:
		if a.cancelPlans(pos) == 0 {
			if t := w.tileAt(pos); t != nil && a.cancelPlans(t.Pos) > 0 {
				return "", ""
			}
			return protocol.ErrInvalidTarget, "no plan at position"
		}
		return "", ""
	case protocol.OrderFeed:
		return w.orderFeed(a, o, pos)
	case protocol.OrderPower:
		t, code, msg := w.ownReactor(a, pos)
		if code != "" {
			return code, msg
		}
		if o.Power < 0 || o.Power > 1 {
			return protocol.ErrBadRequest, "power must be in [0,1]"
		}
		t.Reactor.PowerStatus = o.Power
		return "", ""
	case protocol.OrderDestroy:
		t := w.tileAt(pos)
		if t == nil {
			return protocol.ErrInvalidTarget, "nothing to destroy"
		}
		if t.Team != a.Team {
			return protocol.ErrNoPermission, "not your building"
		}
		w.destroy(nowTick, t.Pos, "order")
		return "", ""
	default:
		return protocol.ErrBadRequest, "unknown order type"
	}
}

func (w *World) enqueue(a *Agent, p *Plan) (string, string) {
	if len(a.Plans) >= a.MaxQueue {
		return protocol.ErrRateLimit, "plan queue full"
	}
	a.Plans = append(a.Plans, p)
	return "", ""
}

func (w *World) orderPlace(a *Agent, o protocol.OrderReq, pos model.Pos, nowTick uint64) (string, string) {
	block := w.catalogs.Blocks.ByName(o.Block)
	if block == nil || !block.Buildable() {
		return protocol.ErrBadRequest, "unknown or unbuildable block"
	}
	if o.Rotation > 3 {
		return protocol.ErrBadRequest, "rotation must be 0..3"
	}
	size := block.Size()
	if !w.inBounds(pos, size) {
		return protocol.ErrInvalidTarget, "out of bounds"
	}
	if a.hasPlan(pos, false) {
		return protocol.ErrConflict, "already planned"
	}
	plan := &Plan{ID: o.ID, Pos: pos, Block: block, Rotation: o.Rotation, Config: o.Config}

	// Joining a site that is already building the same block keeps its progress.
	if t := w.tiles[pos]; t != nil && t.Site != nil {
		if t.Team != a.Team {
			return protocol.ErrNoPermission, "site belongs to another team"
		}
		if t.Site.Target == nil || t.Site.Target.ID() != block.ID() {
			return protocol.ErrConflict, "a different block is under construction"
		}
		return w.enqueue(a, plan)
	}

	existing := w.overlapping(pos, size)
	if len(existing) > 0 {
		t := existing[0]
		if t.Team != a.Team && t.Team != model.TeamDerelict {
			return protocol.ErrNoPermission, "cell owned by another team"
		}
		replaceable := len(existing) == 1 && t.Block != nil && t.Pos == pos && t.Size() == size &&
			t.Block.ID() != block.ID() && t.Block.Overwrites() && block.Overwrites()
		if !replaceable {
			return protocol.ErrConflict, "cell occupied"
		}
	}
	if len(a.Plans) >= a.MaxQueue {
		return protocol.ErrRateLimit, "plan queue full"
	}
	if !w.invoke(nowTick, CallBeginPlace, BeginPlaceArgs{
		Pos:      pos,
		Block:    block.ID(),
		Rotation: o.Rotation,
		Team:     a.Team,
		Builder:  a.ID,
		Config:   o.Config,
	}) {
		return protocol.ErrInternal, "beginPlace failed"
	}
	return w.enqueue(a, plan)
}

func (w *World) orderBreak(a *Agent, o protocol.OrderReq, pos model.Pos, nowTick uint64) (string, string) {
	t := w.tileAt(pos)
	if t == nil {
		return protocol.ErrInvalidTarget, "nothing to break"
	}
	if t.Team != a.Team && t.Team != model.TeamDerelict {
		return protocol.ErrNoPermission, "not your building"
	}
	if a.hasPlan(t.Pos, true) {
		return protocol.ErrConflict, "already planned"
	}
	if len(a.Plans) >= a.MaxQueue {
		return protocol.ErrRateLimit, "plan queue full"
	}
	if t.Site == nil {
		if !w.invoke(nowTick, CallBeginBreak, BeginBreakArgs{Pos: t.Pos, Builder: a.ID}) {
			return protocol.ErrInternal, "beginBreak failed"
		}
	}
	return w.enqueue(a, &Plan{ID: o.ID, Breaking: true, Pos: t.Pos})
}

func (w *World) ownReactor(a *Agent, pos model.Pos) (*Tile, string, string) {
	t := w.tileAt(pos)
	if t == nil || t.Reactor == nil {
		return nil, protocol.ErrInvalidTarget, "not a reactor"
	}
	if t.Team != a.Team {
		return nil, protocol.ErrNoPermission, "not your reactor"
	}
	return t, "", ""
}

func (w *World) orderFeed(a *Agent, o protocol.OrderReq, pos model.Pos) (string, string) {
	t, code, msg := w.ownReactor(a, pos)
	if code != "" {
		return code, msg
	}
	if o.Count <= 0 {
		return protocol.ErrBadRequest, "count must be positive"
	}
	accepted := false
	for _, c := range t.Block.Reactor().Consumes {
		if c.Item == o.Item {
			accepted = true
			break
		}
	}
	if !accepted {
		return protocol.ErrBadRequest, "reactor does not accept item"
	}
	core := w.coreFor(a.Team)
	have := core.Get(o.Item)
	if have <= 0 {
		return protocol.ErrNoResource, "core has none"
	}
	n := min(o.Count, have, ReactorItemCapacity-t.Reactor.Items[o.Item])
	if n <= 0 {
		return protocol.ErrConflict, "reactor buffer full"
	}
	core.Remove(o.Item, n)
	t.Reactor.Items[o.Item] += n
	return "", ""
}
