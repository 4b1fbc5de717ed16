package world

import (
	"encoding/json"

	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/construct"
	"factoryforge.io/internal/sim/model"
)

type Agent struct {
	ID     string
	Name   string
	Team   model.Team
	Player bool
	// Seq is the join order; builders act in this order every tick.
	Seq uint64

	BuildSpeed float32
	MaxQueue   int

	// ResumeToken is a transport-level token used for reconnects.
	// It is intentionally NOT included in snapshots/digests.
	ResumeToken string

	// Plans is the build queue; only the head receives effort.
	Plans []*Plan

	Events []protocol.Event
}

// Plan is one queued build or break job at an anchor.
type Plan struct {
	ID       string
	Breaking bool
	Pos      model.Pos
	Block    *catalogs.Block
	Rotation uint8
	Config   json.RawMessage
}

const maxPendingEvents = 256

func (a *Agent) AddEvent(e protocol.Event) {
	if len(a.Events) >= maxPendingEvents {
		a.Events = a.Events[1:]
	}
	a.Events = append(a.Events, e)
}

func (a *Agent) TakeEvents() []protocol.Event {
	out := a.Events
	a.Events = nil
	return out
}

func (a *Agent) builder() construct.Builder {
	return construct.Builder{ID: a.ID, Team: a.Team, Player: a.Player}
}

func (a *Agent) head() *Plan {
	if len(a.Plans) == 0 {
		return nil
	}
	return a.Plans[0]
}

func (a *Agent) popPlan() {
	if len(a.Plans) > 0 {
		a.Plans = a.Plans[1:]
	}
}

func (a *Agent) hasPlan(pos model.Pos, breaking bool) bool {
	for _, p := range a.Plans {
		if p.Pos == pos && p.Breaking == breaking {
			return true
		}
	}
	return false
}

// cancelPlans drops every plan at pos and reports how many were removed.
func (a *Agent) cancelPlans(pos model.Pos) int {
	kept := a.Plans[:0]
	n := 0
	for _, p := range a.Plans {
		if p.Pos == pos {
			n++
			continue
		}
		kept = append(kept, p)
	}
	a.Plans = kept
	return n
}
