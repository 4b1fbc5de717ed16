package world

import (
	"encoding/json"
	"sort"

	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/completion"
	"factoryforge.io/internal/sim/construct"
	"factoryforge.io/internal/sim/model"
	"factoryforge.io/internal/sim/reactor"
)

// Tile is one occupant of the grid, either a finished building or a
// construction site. Multi-cell occupants are stored once, at their anchor,
// and cover [X, X+size) x [Y, Y+size).
type Tile struct {
	Pos      model.Pos
	Team     model.Team
	Rotation uint8
	Health   float32

	// Exactly one of Block and Site is set.
	Block  *catalogs.Block
	Site   *construct.Site
	Family construct.Family

	Config       json.RawMessage
	LastAccessed string
	Overwrote    []construct.Prior

	Reactor *ReactorState

	// warnedAt is the tick of the last reactor-construction warning for this site.
	warnedAt uint64
}

// ReactorState is the host side of an impact reactor: its input buffer and
// power supply around the warmup model.
type ReactorState struct {
	Model       reactor.Model
	Params      reactor.Params
	Items       map[string]int
	PowerStatus float32
}

// ReactorItemCapacity bounds each input item buffered in a reactor.
const ReactorItemCapacity = 10

func newReactorState(def *catalogs.ReactorDef) *ReactorState {
	return &ReactorState{Params: reactor.ParamsFrom(def), Items: map[string]int{}}
}

func (t *Tile) Size() int {
	if t.Site != nil {
		return t.Family.Size
	}
	return t.Block.Size()
}

func (t *Tile) MaxHealth() float32 {
	if t.Site != nil {
		return t.Family.Health
	}
	return t.Block.Health()
}

func (t *Tile) HealthFraction() float32 {
	max := t.MaxHealth()
	if max <= 0 {
		return 1
	}
	return model.Clamp01(t.Health / max)
}

// BlockID is the catalog id of the building, or NoBlock for a site.
func (t *Tile) BlockID() int16 {
	if t.Block == nil {
		return catalogs.NoBlock
	}
	return t.Block.ID()
}

// Name is the block name for buildings and the family name for sites.
func (t *Tile) Name() string {
	if t.Site != nil {
		return t.Family.Name
	}
	return t.Block.Name()
}

func (w *World) inBounds(p model.Pos, size int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X+size <= w.cfg.Width && p.Y+size <= w.cfg.Height
}

// tileAt returns the occupant covering cell p.
func (w *World) tileAt(p model.Pos) *Tile {
	anchor, ok := w.occupied[p]
	if !ok {
		return nil
	}
	return w.tiles[anchor]
}

// overlapping returns the distinct occupants intersecting a footprint, in anchor order.
func (w *World) overlapping(anchor model.Pos, size int) []*Tile {
	seen := map[model.Pos]bool{}
	var out []*Tile
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			a, ok := w.occupied[anchor.Add(dx, dy)]
			if !ok || seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, w.tiles[a])
		}
	}
	sortTiles(out)
	return out
}

func (w *World) putTile(t *Tile) {
	w.tiles[t.Pos] = t
	size := t.Size()
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			w.occupied[t.Pos.Add(dx, dy)] = t.Pos
		}
	}
}

func (w *World) removeTile(t *Tile) {
	size := t.Size()
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			c := t.Pos.Add(dx, dy)
			if w.occupied[c] == t.Pos {
				delete(w.occupied, c)
			}
		}
	}
	delete(w.tiles, t.Pos)
}

// center is the midpoint of a tile's footprint, in cells.
func (t *Tile) center() (float32, float32) {
	half := float32(t.Size()) / 2
	return float32(t.Pos.X) + half, float32(t.Pos.Y) + half
}

func sortTiles(ts []*Tile) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Pos.Less(ts[j].Pos) })
}

// gridView exposes tiles to the completion protocol.
type gridView struct{ w *World }

func (g gridView) Cell(pos model.Pos) completion.Cell {
	t := g.w.tiles[pos]
	if t == nil {
		return nil
	}
	return tileCell{w: g.w, t: t}
}

type tileCell struct {
	w *World
	t *Tile
}

func (c tileCell) Site() *construct.Site   { return c.t.Site }
func (c tileCell) Team() model.Team        { return c.t.Team }
func (c tileCell) Size() int               { return c.t.Size() }
func (c tileCell) HealthFraction() float32 { return c.t.HealthFraction() }
func (c tileCell) Remove()                 { c.w.removeTile(c.t) }

func (c tileCell) Replace(p completion.Placement) {
	c.w.removeTile(c.t)
	nt := &Tile{
		Pos:          c.t.Pos,
		Team:         p.Team,
		Rotation:     p.Rotation,
		Health:       p.Health,
		Block:        p.Block,
		Config:       p.Config,
		LastAccessed: p.LastAccessed,
		Overwrote:    p.Overwrote,
	}
	if def := p.Block.Reactor(); def != nil {
		nt.Reactor = newReactorState(def)
	}
	c.w.putTile(nt)
}

// agentRegistry resolves last-builder ids against live agents.
type agentRegistry struct{ w *World }

func (r agentRegistry) Agent(id string) (completion.Agent, bool) {
	a := r.w.agents[id]
	if a == nil {
		return completion.Agent{}, false
	}
	return completion.Agent{ID: a.ID, Name: a.Name, Player: a.Player}, true
}
