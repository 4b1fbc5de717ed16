package catalogs

// Block is a resolved block definition with derived stats.
type Block struct {
	id        int16
	def       BlockDef
	buildCost float32
	health    float32
}

func newBlock(id int16, def BlockDef, items *ItemCatalog) *Block {
	b := &Block{id: id, def: def}

	// Base cost of 20 plus the weighted requirement list, then the block's own multiplier.
	cost := float32(20)
	for _, req := range def.Requirements {
		cost += float32(req.Count) * items.Defs[req.Item].UnitCost()
	}
	mult := def.BuildCostMultiplier
	if mult == 0 {
		mult = 1
	}
	b.buildCost = cost * mult
	if len(def.Requirements) == 0 && def.ID == "AIR" {
		b.buildCost = 0
	}

	b.health = def.Health
	if b.health <= 0 {
		b.health = float32(def.Size * def.Size * 40)
	}
	return b
}

func (b *Block) ID() int16                     { return b.id }
func (b *Block) Name() string                  { return b.def.ID }
func (b *Block) Size() int                     { return b.def.Size }
func (b *Block) Health() float32               { return b.health }
func (b *Block) Solid() bool                   { return b.def.Solid }
func (b *Block) Requirements() []ItemCount     { return b.def.Requirements }
func (b *Block) BuildCost() float32            { return b.buildCost }
func (b *Block) DeconstructThreshold() float32 { return b.def.DeconstructThreshold }
func (b *Block) Overwrites() bool              { return b.def.Overwrites }
func (b *Block) Reactor() *ReactorDef          { return b.def.Reactor }

// Buildable reports whether the block can be the target of a construction order.
func (b *Block) Buildable() bool { return b.id != AirID && len(b.def.Requirements) > 0 }
