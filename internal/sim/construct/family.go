package construct

import (
	"fmt"

	"factoryforge.io/internal/sim/catalogs"
)

// FamilyHealth is the hit points of every construction site regardless of size.
const FamilyHealth float32 = 20

// Family is the construction-site block used for targets of one footprint size.
type Family struct {
	Name   string
	Size   int
	Health float32
}

// FamilyTable holds one Family per supported footprint size.
type FamilyTable struct {
	bySize []Family
}

// NewFamilyTable registers families build1..buildN for every size up to max.
func NewFamilyTable(max int) *FamilyTable {
	if max > catalogs.MaxBlockSize {
		max = catalogs.MaxBlockSize
	}
	t := &FamilyTable{bySize: make([]Family, catalogs.MaxBlockSize)}
	for size := 1; size <= max; size++ {
		t.bySize[size-1] = Family{Name: fmt.Sprintf("build%d", size), Size: size, Health: FamilyHealth}
	}
	return t
}

// Get returns the family for size. Oversize or unregistered sizes are configuration errors.
func (t *FamilyTable) Get(size int) (Family, error) {
	if size > catalogs.MaxBlockSize {
		return Family{}, fmt.Errorf("construction site of size %d exceeds max block size %d", size, catalogs.MaxBlockSize)
	}
	if size < 1 || t.bySize[size-1].Size == 0 {
		return Family{}, fmt.Errorf("no construction site family registered for size %d", size)
	}
	return t.bySize[size-1], nil
}

// Check verifies every block in the catalog has a family.
func (t *FamilyTable) Check(blocks *catalogs.BlockCatalog) error {
	for _, b := range blocks.All() {
		if b.ID() == catalogs.AirID {
			continue
		}
		if _, err := t.Get(b.Size()); err != nil {
			return fmt.Errorf("block %s: %w", b.Name(), err)
		}
	}
	return nil
}
