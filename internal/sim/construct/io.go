package construct

import (
	"encoding/binary"
	"fmt"
	"io"

	"factoryforge.io/internal/sim/catalogs"
)

// Write encodes the site as: progress f32, previous id i16, target id i16,
// ledger length i8 (-1 when unset), then (acc, total) f32 pairs.
func (s *Site) Write(w io.Writer) error {
	acc, total := s.ledger.Pairs()
	if len(acc) > 127 {
		return fmt.Errorf("construct: %d requirement slots exceed encodable length", len(acc))
	}
	n := int8(-1)
	if s.ledger.Initialized() {
		n = int8(len(acc))
	}
	hdr := struct {
		Progress float32
		Previous int16
		Target   int16
		Len      int8
	}{s.Progress, blockID(s.Previous), blockID(s.Target), n}
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}
	for i := range acc {
		if err := binary.Write(w, binary.BigEndian, [2]float32{acc[i], total[i]}); err != nil {
			return err
		}
	}
	return nil
}

// Read decodes a site written by Write. Blocks are resolved through lookup and
// BuildCost is recomputed from the resolved target. A ledger that does not
// match the target is kept as-is and reinitialized on the next operation.
func (s *Site) Read(r io.Reader, lookup Lookup, rules Rules) error {
	var hdr struct {
		Progress float32
		Previous int16
		Target   int16
		Len      int8
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return fmt.Errorf("construct: read header: %w", err)
	}
	if hdr.Len < -1 {
		return fmt.Errorf("construct: bad ledger length %d", hdr.Len)
	}
	var acc, total []float32
	if hdr.Len >= 0 {
		acc = make([]float32, hdr.Len)
		total = make([]float32, hdr.Len)
		for i := 0; i < int(hdr.Len); i++ {
			var pair [2]float32
			if err := binary.Read(r, binary.BigEndian, &pair); err != nil {
				return fmt.Errorf("construct: read ledger slot %d: %w", i, err)
			}
			acc[i], total[i] = pair[0], pair[1]
		}
	}

	s.Progress = hdr.Progress
	s.Previous = resolve(lookup, hdr.Previous)
	s.Target = resolve(lookup, hdr.Target)
	if hdr.Len >= 0 {
		s.ledger.Load(acc, total)
	} else {
		s.ledger.Clear()
	}
	if s.Target != nil {
		s.BuildCost = s.Target.BuildCost() * rules.BuildCostMultiplier
	} else {
		s.BuildCost = DefaultBuildCost
	}
	return nil
}

func blockID(b Block) int16 {
	if b == nil {
		return catalogs.NoBlock
	}
	return b.ID()
}

func resolve(lookup Lookup, id int16) Block {
	if id == catalogs.NoBlock || lookup == nil {
		return nil
	}
	return lookup(id)
}
