package world

import (
	"sort"

	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/model"
)

// Core is a team's shared item storage. Sites draw requirements from it and
// refund into it.
type Core struct {
	Team     model.Team
	Items    map[string]int
	capacity int
	items    *catalogs.ItemCatalog
}

func (c *Core) Get(item string) int { return c.Items[item] }

func (c *Core) Add(item string, n int) {
	if n <= 0 {
		return
	}
	c.Items[item] += n
}

func (c *Core) Remove(item string, n int) {
	if n <= 0 {
		return
	}
	c.Items[item] -= n
	if c.Items[item] <= 0 {
		delete(c.Items, item)
	}
}

func (c *Core) Capacity(string) int { return c.capacity }

// Unlocked reports whether refunds of item may be stored. Unknown items are locked.
func (c *Core) Unlocked(item string) bool {
	def, ok := c.items.Defs[item]
	return ok && !def.Locked
}

func sortedNonZero(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v != 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// coreFor returns the team core, creating it with starter items on first use.
func (w *World) coreFor(team model.Team) *Core {
	if c := w.cores[team]; c != nil {
		return c
	}
	c := &Core{Team: team, Items: map[string]int{}, capacity: w.cfg.CoreCapacity, items: &w.catalogs.Items}
	keys := make([]string, 0, len(w.cfg.StarterItems))
	for k := range w.cfg.StarterItems {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, item := range keys {
		if n := w.cfg.StarterItems[item]; n > 0 {
			c.Add(item, min(n, c.capacity))
		}
	}
	w.cores[team] = c
	return c
}

func (w *World) sortedTeams() []model.Team {
	out := make([]model.Team, 0, len(w.cores))
	for t := range w.cores {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
