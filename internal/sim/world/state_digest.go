package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/construct"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF32(h hashWriter, tmp *[8]byte, v float32) {
	digestWriteU64(h, tmp, uint64(math.Float32bits(v)))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func idOf(b construct.Block) int16 {
	if b == nil {
		return catalogs.NoBlock
	}
	return b.ID()
}

// stateDigest hashes everything that affects future simulation: the grid,
// site ledgers, reactor state, cores, agents and their plans.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, w.CallSeq())
	digestWriteU64(h, &tmp, w.nextAgentNum.Load())

	w.digestTiles(h, &tmp, true)
	w.digestCores(h, &tmp)
	w.digestAgents(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

// OccupantDigest hashes only what replicated calls carry, so an observer
// mirroring the call stream computes the same value as the authority.
func (w *World) OccupantDigest() string {
	h := sha256.New()
	var tmp [8]byte
	w.digestTiles(h, &tmp, false)
	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestTiles(h hashWriter, tmp *[8]byte, full bool) {
	anchors := w.sortedAnchors()
	digestWriteU64(h, tmp, uint64(len(anchors)))
	for _, pos := range anchors {
		t := w.tiles[pos]
		digestWriteI64(h, tmp, int64(pos.X))
		digestWriteI64(h, tmp, int64(pos.Y))
		digestWriteI64(h, tmp, int64(t.BlockID()))
		h.Write([]byte{byte(t.Team), t.Rotation})
		digestWriteF32(h, tmp, t.Health)
		digestWriteString(h, tmp, string(t.Config))
		digestWriteU64(h, tmp, uint64(len(t.Overwrote)))
		for _, p := range t.Overwrote {
			digestWriteI64(h, tmp, int64(p.Pos.X))
			digestWriteI64(h, tmp, int64(p.Pos.Y))
			digestWriteI64(h, tmp, int64(p.Block))
		}

		if s := t.Site; s != nil {
			h.Write([]byte{1})
			digestWriteI64(h, tmp, int64(t.Family.Size))
			digestWriteI64(h, tmp, int64(idOf(s.Target)))
			digestWriteI64(h, tmp, int64(idOf(s.Previous)))
			if full {
				h.Write([]byte{byte(s.Phase())})
				digestWriteF32(h, tmp, s.Progress)
				digestWriteString(h, tmp, s.LastBuilder)
				digestWriteString(h, tmp, string(s.LastConfig))
				acc, total := s.Accumulators()
				digestWriteI64(h, tmp, int64(len(acc)))
				for i := range acc {
					digestWriteF32(h, tmp, acc[i])
					digestWriteF32(h, tmp, total[i])
				}
				digestWriteU64(h, tmp, t.warnedAt)
			}
		} else {
			h.Write([]byte{0})
		}

		if full {
			digestWriteString(h, tmp, t.LastAccessed)
			if r := t.Reactor; r != nil {
				h.Write([]byte{1})
				digestWriteF32(h, tmp, r.Model.Warmup)
				digestWriteF32(h, tmp, r.Model.TotalProgress)
				digestWriteF32(h, tmp, r.PowerStatus)
				writeItemMap(h, tmp, r.Items)
			} else {
				h.Write([]byte{0})
			}
		}
	}
}

func (w *World) digestCores(h hashWriter, tmp *[8]byte) {
	teams := w.sortedTeams()
	digestWriteU64(h, tmp, uint64(len(teams)))
	for _, team := range teams {
		h.Write([]byte{byte(team)})
		writeItemMap(h, tmp, w.cores[team].Items)
	}
}

func (w *World) digestAgents(h hashWriter, tmp *[8]byte) {
	agents := w.sortedAgents()
	digestWriteU64(h, tmp, uint64(len(agents)))
	for _, a := range agents {
		digestWriteString(h, tmp, a.ID)
		digestWriteString(h, tmp, a.Name)
		h.Write([]byte{byte(a.Team), boolByte(a.Player)})
		digestWriteF32(h, tmp, a.BuildSpeed)
		digestWriteU64(h, tmp, uint64(a.MaxQueue))
		digestWriteU64(h, tmp, uint64(len(a.Plans)))
		for _, p := range a.Plans {
			digestWriteString(h, tmp, p.ID)
			h.Write([]byte{boolByte(p.Breaking), p.Rotation})
			digestWriteI64(h, tmp, int64(p.Pos.X))
			digestWriteI64(h, tmp, int64(p.Pos.Y))
			digestWriteI64(h, tmp, int64(idOf(planBlock(p))))
			digestWriteString(h, tmp, string(p.Config))
		}
	}
}

func planBlock(p *Plan) construct.Block {
	if p.Block == nil {
		return nil
	}
	return p.Block
}

func writeItemMap(h hashWriter, tmp *[8]byte, m map[string]int) {
	keys := sortedNonZero(m)
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		digestWriteString(h, tmp, k)
		digestWriteI64(h, tmp, int64(m[k]))
	}
}
