// Package construct models a construction site: a transient occupant that
// turns builder effort into resource consumption and progress, and back into
// refunds when the site is taken apart.
package construct

import (
	"encoding/json"
	"math"

	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/ledger"
	"factoryforge.io/internal/sim/model"
)

// DefaultBuildCost applies to sites without a buildable target.
const DefaultBuildCost float32 = 20

// accrualSlack lets the outstanding amount settle to a whole unit despite
// float rounding in the running total.
const accrualSlack float32 = 0.00001

// Block is anything a site can build or take apart.
type Block interface {
	ID() int16
	Requirements() []catalogs.ItemCount
	BuildCost() float32
	DeconstructThreshold() float32
}

type solidBlock interface {
	Solid() bool
}

// Lookup resolves a persisted block id. Unknown ids resolve to nil.
type Lookup func(id int16) Block

// CatalogLookup adapts a block catalog to Lookup.
func CatalogLookup(c *catalogs.BlockCatalog) Lookup {
	return func(id int16) Block {
		if b := c.ByID(id); b != nil {
			return b
		}
		return nil
	}
}

type Inventory interface {
	Get(item string) int
	Add(item string, n int)
	Remove(item string, n int)
}

// Core is a team inventory with per-item capacity and unlock state.
type Core interface {
	Inventory
	Capacity(item string) int
	Unlocked(item string) bool
}

type Rules struct {
	BuildCostMultiplier         float32
	DeconstructRefundMultiplier float32
	InfiniteResources           bool
	TeamInfinite                map[model.Team]bool
}

func (r Rules) infinite(team model.Team) bool {
	return r.InfiniteResources || r.TeamInfinite[team]
}

// Scaled is the per-site amount of a requirement: round(count * buildCostMultiplier).
func (r Rules) Scaled(count int) float32 {
	return float32(math.Round(float64(r.BuildCostMultiplier * float32(count))))
}

type Builder struct {
	ID     string
	Team   model.Team
	Player bool
}

type Phase uint8

const (
	PhaseBuilding Phase = iota
	PhaseDeconstructing
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseBuilding:
		return "BUILDING"
	case PhaseDeconstructing:
		return "DECONSTRUCTING"
	case PhaseFinalizing:
		return "FINALIZING"
	default:
		return "UNKNOWN"
	}
}

// Prior is a building the site replaced, handed to the finished block if it accepts overwrites.
type Prior struct {
	Pos   model.Pos `json:"pos"`
	Block int16     `json:"block"`
}

type FinishKind uint8

const (
	FinishConstruct FinishKind = iota + 1
	FinishDeconstruct
	// FinishKill removes an invalid site that has nothing to build.
	FinishKill
)

// Finish is the trigger for the completion call. Sites never apply it themselves.
type Finish struct {
	Kind     FinishKind
	Block    Block
	Builder  string
	Rotation uint8
	Team     model.Team
	Config   json.RawMessage
}

type Result struct {
	Progress float32
	// Applied is the progress actually granted this call.
	Applied float32
	Finish  *Finish
}

type Site struct {
	Target      Block
	Previous    Block
	Progress    float32
	BuildCost   float32
	LastBuilder string
	LastConfig  json.RawMessage
	Rotation    uint8
	Team        model.Team
	Prior       []Prior

	ledger ledger.Ledger
	phase  Phase
}

func NewConstruct(previous, target Block, rotation uint8, team model.Team, rules Rules) *Site {
	s := &Site{Rotation: rotation, Team: team}
	s.SetConstruct(previous, target, rules)
	return s
}

func NewDeconstruct(previous Block, rotation uint8, team model.Team, rules Rules) *Site {
	s := &Site{Rotation: rotation, Team: team, BuildCost: DefaultBuildCost, phase: PhaseDeconstructing}
	s.SetDeconstruct(previous, rules)
	return s
}

// SetConstruct points the site at target and resets its ledger. Progress is kept.
func (s *Site) SetConstruct(previous, target Block, rules Rules) {
	s.phase = PhaseBuilding
	s.Previous = previous
	s.Target = target
	if target == nil {
		s.ledger.Clear()
		s.BuildCost = DefaultBuildCost
		return
	}
	s.ledger.Reset(len(target.Requirements()))
	s.BuildCost = target.BuildCost() * rules.BuildCostMultiplier
}

// SetDeconstruct starts taking previous apart from full progress. Only a block
// with a real build cost becomes the refund target.
func (s *Site) SetDeconstruct(previous Block, rules Rules) {
	if previous == nil {
		return
	}
	s.phase = PhaseDeconstructing
	s.Previous = previous
	s.Progress = 1
	if previous.BuildCost() >= 0.01 {
		s.Target = previous
		s.BuildCost = previous.BuildCost() * rules.BuildCostMultiplier
	} else {
		s.BuildCost = DefaultBuildCost
	}
	s.ledger.Reset(len(previous.Requirements()))
}

func (s *Site) Phase() Phase { return s.phase }

// RestorePhase is used when loading a site whose direction was persisted separately.
func (s *Site) RestorePhase(p Phase) { s.phase = p }

// Accumulators returns copies of the outstanding and total arrays (nil when unset).
func (s *Site) Accumulators() (acc, total []float32) {
	return s.ledger.Pairs()
}

// Displayed is the block the site represents.
func (s *Site) Displayed() Block {
	if s.Target != nil {
		return s.Target
	}
	return s.Previous
}

func (s *Site) Solid() bool {
	return isSolid(s.Target) || s.Previous == nil || isSolid(s.Previous)
}

func isSolid(b Block) bool {
	if b == nil {
		return false
	}
	sb, ok := b.(solidBlock)
	return ok && sb.Solid()
}

// Effort converts one tick of builder speed into site progress.
func Effort(delta, buildSpeed, speedMultiplier, buildCost float32) float32 {
	if buildCost <= 0 {
		buildCost = DefaultBuildCost
	}
	return delta * buildSpeed * speedMultiplier / buildCost
}

// Construct applies amount of builder effort toward the target block, drawing
// requirements from core. A nil core means resources are not tracked.
func (s *Site) Construct(b Builder, core Core, amount float32, config json.RawMessage, rules Rules) Result {
	if s.phase == PhaseFinalizing {
		return Result{Progress: s.Progress}
	}
	if s.Target == nil {
		s.phase = PhaseFinalizing
		return Result{Progress: s.Progress, Finish: &Finish{Kind: FinishKill, Team: s.Team}}
	}
	if s.phase != PhaseBuilding {
		s.phase = PhaseBuilding
		s.ledger.Clear()
	}
	if b.Player {
		s.LastBuilder = b.ID
	}
	s.LastConfig = config

	reqs := s.Target.Requirements()
	if s.ledger.Stale(len(reqs)) {
		s.SetConstruct(s.Previous, s.Target, rules)
	}

	var applied float32
	if amount > 0 {
		tracked := core != nil && !rules.infinite(s.Team)
		maxProgress := amount
		if tracked {
			maxProgress = s.checkRequired(core, amount, false, rules)
		}
		for i, req := range reqs {
			r := rules.Scaled(req.Count)
			s.ledger.Accrue(i, r*maxProgress, r, accrualSlack)
		}
		if tracked {
			maxProgress = s.checkRequired(core, maxProgress, true, rules)
		}
		s.Progress = model.Clamp01(s.Progress + maxProgress)
		applied = maxProgress
	}

	res := Result{Progress: s.Progress, Applied: applied}
	if s.Progress >= 1 || rules.InfiniteResources {
		if s.LastBuilder == "" {
			s.LastBuilder = b.ID
		}
		s.phase = PhaseFinalizing
		res.Finish = &Finish{
			Kind:     FinishConstruct,
			Block:    s.Target,
			Builder:  s.LastBuilder,
			Rotation: s.Rotation,
			Team:     b.Team,
			Config:   config,
		}
	}
	return res
}

// checkRequired returns how much of amount the inventory can back right now.
// Any requirement with nothing in stock forces zero. Otherwise the scarcest
// outstanding requirement scales the result. Only the consuming pass mutates
// the ledger and the inventory.
func (s *Site) checkRequired(inv Inventory, amount float32, consume bool, rules Rules) float32 {
	maxProgress := amount
	for i, req := range s.Target.Requirements() {
		have := inv.Get(req.Item)
		required := s.ledger.Whole(i)
		if have == 0 && rules.Scaled(req.Count) != 0 {
			maxProgress = 0
		} else if required > 0 {
			use := min(required, have)
			fraction := float32(use) / float32(required)
			maxProgress = min(maxProgress, maxProgress*fraction)
			if consume {
				s.ledger.Settle(i, use)
				inv.Remove(req.Item, use)
			}
		}
	}
	return maxProgress
}

// Deconstruct drains progress by amount and refunds whole items to core.
func (s *Site) Deconstruct(b Builder, core Core, amount float32, rules Rules) Result {
	if s.phase == PhaseFinalizing {
		return Result{Progress: s.Progress}
	}
	if amount < 0 {
		amount = 0
	}
	if s.phase != PhaseDeconstructing {
		s.phase = PhaseDeconstructing
		s.ledger.Clear()
	}
	if b.Player {
		s.LastBuilder = b.ID
	}

	clamped := min(amount, s.Progress)
	if s.Target != nil {
		reqs := s.Target.Requirements()
		if s.ledger.Stale(len(reqs)) {
			s.ledger.Reset(len(reqs))
		}
		refund := rules.DeconstructRefundMultiplier
		for i, req := range reqs {
			r := rules.Scaled(req.Count)
			s.ledger.Accrue(i, clamped*refund*r, refund*r, accrualSlack)
			whole := s.ledger.Whole(i)
			if clamped <= 0 || whole <= 0 {
				continue
			}
			if core != nil && core.Unlocked(req.Item) {
				if accepting := min(whole, core.Capacity(req.Item)-core.Get(req.Item)); accepting > 0 {
					core.Add(req.Item, accepting)
				}
			}
			// Anything the core could not take is dropped.
			s.ledger.Settle(i, whole)
		}
	}

	s.Progress = model.Clamp01(s.Progress - amount)
	res := Result{Progress: s.Progress, Applied: clamped}

	var threshold float32
	if s.Previous != nil {
		threshold = s.Previous.DeconstructThreshold()
	}
	if s.Progress <= threshold || rules.InfiniteResources {
		if s.LastBuilder == "" {
			s.LastBuilder = b.ID
		}
		target := s.Target
		if target == nil {
			target = s.Previous
		}
		s.phase = PhaseFinalizing
		res.Finish = &Finish{
			Kind:     FinishDeconstruct,
			Block:    target,
			Builder:  s.LastBuilder,
			Rotation: s.Rotation,
			Team:     s.Team,
		}
	}
	return res
}
