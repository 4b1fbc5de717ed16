// Package completion finalizes construction sites: it swaps a finished site
// for its target block (or clears a fully deconstructed one) and reports the
// result to observers.
package completion

import (
	"encoding/json"

	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/construct"
	"factoryforge.io/internal/sim/model"
)

// ConstructFinished is the argument of the construct-finish call.
type ConstructFinished struct {
	Pos      model.Pos       `json:"pos"`
	Block    int16           `json:"block"`
	Builder  string          `json:"builder,omitempty"`
	Rotation uint8           `json:"rotation"`
	Team     model.Team      `json:"team"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// DeconstructFinished is the argument of the deconstruct-finish call.
type DeconstructFinished struct {
	Pos     model.Pos `json:"pos"`
	Block   int16     `json:"block"`
	Builder string    `json:"builder,omitempty"`
}

// Placement describes the building that replaces a finished site.
type Placement struct {
	Block        *catalogs.Block
	Team         model.Team
	Rotation     uint8
	Health       float32
	Config       json.RawMessage
	Overwrote    []construct.Prior
	LastAccessed string
}

// Cell is the grid location a site occupies.
type Cell interface {
	// Site returns the occupying construction site, or nil if the occupant is something else.
	Site() *construct.Site
	Team() model.Team
	Size() int
	HealthFraction() float32
	Replace(p Placement)
	Remove()
}

// Grid resolves cells by anchor position. Missing cells return nil.
type Grid interface {
	Cell(pos model.Pos) Cell
}

type Agent struct {
	ID     string
	Name   string
	Player bool
}

// Registry resolves builder ids against the live agent set.
type Registry interface {
	Agent(id string) (Agent, bool)
}

type BuildEnd struct {
	Pos      model.Pos       `json:"pos"`
	Block    int16           `json:"block"`
	Builder  string          `json:"builder,omitempty"`
	Team     model.Team      `json:"team"`
	Breaking bool            `json:"breaking"`
	Config   json.RawMessage `json:"config,omitempty"`
}

const (
	EffectPlaceBlock = "PLACE_BLOCK"
	EffectBreakBlock = "BREAK_BLOCK"

	CuePlace = "PLACE"
	CueBreak = "BREAK"
)

type Effect struct {
	Kind string    `json:"kind"`
	Pos  model.Pos `json:"pos"`
	Size int       `json:"size"`
}

type Cue struct {
	Kind  string    `json:"kind"`
	Pos   model.Pos `json:"pos"`
	Pitch float32   `json:"pitch"`
}

type Observer interface {
	BuildEnded(e BuildEnd)
	Effect(e Effect)
	Cue(c Cue)
}

type Protocol struct {
	Grid     Grid
	Blocks   *catalogs.BlockCatalog
	Agents   Registry
	Observer Observer
	Throttle *Throttle
}

// ConstructFinish replaces the site at m.Pos with the finished block. It returns
// false without side effects if the cell is gone or no longer holds a site.
func (p *Protocol) ConstructFinish(m ConstructFinished) bool {
	cell := p.Grid.Cell(m.Pos)
	if cell == nil {
		return false
	}
	site := cell.Site()
	if site == nil {
		return false
	}
	block := p.Blocks.ByID(m.Block)
	if block == nil {
		return false
	}

	pl := Placement{
		Block:    block,
		Team:     m.Team,
		Rotation: m.Rotation,
		Health:   block.Health() * cell.HealthFraction(),
	}
	if len(m.Config) > 0 {
		pl.Config = m.Config
	}
	if block.Overwrites() && len(site.Prior) > 0 {
		pl.Overwrote = append([]construct.Prior(nil), site.Prior...)
	}
	if a, ok := p.lookup(m.Builder); ok && a.Player {
		pl.LastAccessed = a.Name
	}
	cell.Replace(pl)

	if p.Observer != nil {
		p.Observer.BuildEnded(BuildEnd{Pos: m.Pos, Block: m.Block, Builder: m.Builder, Team: m.Team, Config: pl.Config})
		p.Observer.Effect(Effect{Kind: EffectPlaceBlock, Pos: m.Pos, Size: block.Size()})
		if p.Throttle != nil && p.Throttle.ShouldPlay() {
			p.Observer.Cue(Cue{Kind: CuePlace, Pos: m.Pos, Pitch: p.Throttle.Pitch(true)})
		}
	}
	return true
}

// DeconstructFinish clears the site at m.Pos. It returns false without side
// effects if the cell is gone or no longer holds a site.
func (p *Protocol) DeconstructFinish(m DeconstructFinished) bool {
	cell := p.Grid.Cell(m.Pos)
	if cell == nil || cell.Site() == nil {
		return false
	}
	team := cell.Team()
	size := cell.Size()
	if b := p.Blocks.ByID(m.Block); b != nil {
		size = b.Size()
	}

	if p.Observer != nil {
		p.Observer.Effect(Effect{Kind: EffectBreakBlock, Pos: m.Pos, Size: size})
		p.Observer.BuildEnded(BuildEnd{Pos: m.Pos, Block: m.Block, Builder: m.Builder, Team: team, Breaking: true})
	}
	cell.Remove()
	if p.Observer != nil && p.Throttle != nil && p.Throttle.ShouldPlay() {
		p.Observer.Cue(Cue{Kind: CueBreak, Pos: m.Pos, Pitch: p.Throttle.Pitch(false)})
	}
	return true
}

func (p *Protocol) lookup(id string) (Agent, bool) {
	if id == "" || p.Agents == nil {
		return Agent{}, false
	}
	return p.Agents.Agent(id)
}

// Payload converts a site's finish trigger into the call argument it should be
// replicated with. The second result is false for FinishKill, which carries no call.
func Payload(pos model.Pos, f *construct.Finish) (any, bool) {
	if f == nil {
		return nil, false
	}
	switch f.Kind {
	case construct.FinishConstruct:
		return ConstructFinished{
			Pos:      pos,
			Block:    blockID(f.Block),
			Builder:  f.Builder,
			Rotation: f.Rotation,
			Team:     f.Team,
			Config:   f.Config,
		}, true
	case construct.FinishDeconstruct:
		return DeconstructFinished{Pos: pos, Block: blockID(f.Block), Builder: f.Builder}, true
	default:
		return nil, false
	}
}

func blockID(b construct.Block) int16 {
	if b == nil {
		return catalogs.NoBlock
	}
	return b.ID()
}
