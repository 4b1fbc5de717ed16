package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxBlockSize is the largest block footprint (cells per side) the game supports.
const MaxBlockSize = 16

// AirID is the palette id of empty ground.
const AirID int16 = 0

// NoBlock is the persisted id for "no block".
const NoBlock int16 = -1

//go:embed schemas/*.json
var schemaFS embed.FS

type Catalogs struct {
	Blocks BlockCatalog
	Items  ItemCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]int16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string

	byID []*Block
}

type BlockDef struct {
	ID                   string      `json:"id"`
	Size                 int         `json:"size,omitempty"`
	Health               float32     `json:"health,omitempty"`
	Solid                bool        `json:"solid,omitempty"`
	Requirements         []ItemCount `json:"requirements,omitempty"`
	BuildCostMultiplier  float32     `json:"build_cost_multiplier,omitempty"`
	DeconstructThreshold float32     `json:"deconstruct_threshold,omitempty"`
	Overwrites           bool        `json:"overwrites,omitempty"`
	Reactor              *ReactorDef `json:"reactor,omitempty"`
}

// ReactorDef parameterizes warmup-driven generators.
type ReactorDef struct {
	WarmupSpeed     float32     `json:"warmup_speed,omitempty"`
	ItemDuration    float32     `json:"item_duration"`
	ExplosionRadius int         `json:"explosion_radius"`
	ExplosionDamage float32     `json:"explosion_damage"`
	PowerProduction float32     `json:"power_production,omitempty"`
	PowerUse        float32     `json:"power_use,omitempty"`
	Consumes        []ItemCount `json:"consumes,omitempty"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]int16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID     string   `json:"id"`
	Cost   *float32 `json:"cost,omitempty"`
	Locked bool     `json:"locked,omitempty"`
}

// UnitCost is the per-unit build cost contribution of the item (default 1).
func (d ItemDef) UnitCost() float32 {
	if d.Cost == nil {
		return 1
	}
	return *d.Cost
}

func Load(configDir string) (*Catalogs, error) {
	items, err := os.ReadFile(filepath.Join(configDir, "items.json"))
	if err != nil {
		return nil, err
	}
	blocks, err := os.ReadFile(filepath.Join(configDir, "blocks.json"))
	if err != nil {
		return nil, err
	}
	return Parse(blocks, items)
}

// Parse builds catalogs from raw blocks.json and items.json contents.
func Parse(blocksRaw, itemsRaw []byte) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(itemsRaw, &c.Items); err != nil {
		return nil, err
	}
	if err := loadBlocks(blocksRaw, &c.Items, &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func validateAgainst(schemaName string, raw []byte) error {
	schemaRaw, err := schemaFS.ReadFile("schemas/" + schemaName)
	if err != nil {
		return err
	}
	url := "https://factoryforge.io/schemas/" + schemaName
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(schemaRaw)); err != nil {
		return fmt.Errorf("%s: %w", schemaName, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("%s: %w", schemaName, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

func loadItems(raw []byte, out *ItemCatalog) error {
	if err := validateAgainst("items.schema.json", raw); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]int16, len(ids))
	for i, id := range ids {
		out.Index[id] = int16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadBlocks(raw []byte, items *ItemCatalog, out *BlockCatalog) error {
	if err := validateAgainst("blocks.schema.json", raw); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %s", d.ID)
		}
		if d.Size == 0 {
			d.Size = 1
		}
		if d.Size > MaxBlockSize {
			return fmt.Errorf("blocks.json: %s: size %d exceeds max block size %d", d.ID, d.Size, MaxBlockSize)
		}
		for _, req := range d.Requirements {
			if _, ok := items.Defs[req.Item]; !ok {
				return fmt.Errorf("blocks.json: %s: unknown requirement item %s", d.ID, req.Item)
			}
		}
		if d.Reactor != nil {
			for _, c := range d.Reactor.Consumes {
				if _, ok := items.Defs[c.Item]; !ok {
					return fmt.Errorf("blocks.json: %s: unknown reactor item %s", d.ID, c.Item)
				}
			}
		}
		out.Defs[d.ID] = d
	}

	// Ensure AIR exists and is palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		if id != "AIR" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids = append([]string{"AIR"}, ids...)
	if len(ids) > math.MaxInt16 {
		return fmt.Errorf("blocks.json: too many blocks (%d)", len(ids))
	}

	out.Palette = ids
	out.Index = make(map[string]int16, len(ids))
	out.byID = make([]*Block, len(ids))
	for i, id := range ids {
		out.Index[id] = int16(i)
		out.byID[i] = newBlock(int16(i), out.Defs[id], items)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// ByID resolves a palette id. Unknown ids (including NoBlock) return nil.
func (c *BlockCatalog) ByID(id int16) *Block {
	if id < 0 || int(id) >= len(c.byID) {
		return nil
	}
	return c.byID[id]
}

func (c *BlockCatalog) ByName(name string) *Block {
	id, ok := c.Index[name]
	if !ok {
		return nil
	}
	return c.byID[id]
}

// All returns every block in palette order.
func (c *BlockCatalog) All() []*Block {
	out := make([]*Block, len(c.byID))
	copy(out, c.byID)
	return out
}
