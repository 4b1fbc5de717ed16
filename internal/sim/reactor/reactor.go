// Package reactor implements the warmup model of impact-style generators:
// output follows a steep curve of a slowly smoothed warmup value, and a
// destroyed reactor explodes once it is warm enough.
package reactor

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"factoryforge.io/internal/sim/catalogs"
)

const (
	DefaultWarmupSpeed     float32 = 0.001
	DefaultItemDuration    float32 = 60
	DefaultExplosionRadius         = 23
	DefaultExplosionDamage float32 = 1900

	// CooldownRate is the fixed smoothing rate toward zero when inputs are not satisfied.
	CooldownRate float32 = 0.01
	// ExplodeWarmup is the lowest warmup at which destruction is catastrophic.
	ExplodeWarmup float32 = 0.3

	efficiencyGate float32 = 0.9999
	powerGate      float32 = 0.99
	snapEpsilon    float32 = 0.001
)

type Params struct {
	WarmupSpeed     float32
	ItemDuration    float32
	ExplosionRadius int
	ExplosionDamage float32
	PowerProduction float32
	PowerUse        float32
}

// ParamsFrom fills defaults for anything the catalog entry leaves unset.
func ParamsFrom(def *catalogs.ReactorDef) Params {
	p := Params{
		WarmupSpeed:     DefaultWarmupSpeed,
		ItemDuration:    DefaultItemDuration,
		ExplosionRadius: DefaultExplosionRadius,
		ExplosionDamage: DefaultExplosionDamage,
	}
	if def == nil {
		return p
	}
	if def.WarmupSpeed > 0 {
		p.WarmupSpeed = def.WarmupSpeed
	}
	if def.ItemDuration > 0 {
		p.ItemDuration = def.ItemDuration
	}
	p.ExplosionRadius = def.ExplosionRadius
	p.ExplosionDamage = def.ExplosionDamage
	p.PowerProduction = def.PowerProduction
	p.PowerUse = def.PowerUse
	return p
}

// Input is what the host building reports each tick.
type Input struct {
	// Efficiency is the aggregate satisfaction of item and liquid inputs in [0,1].
	Efficiency float32
	// PowerStatus is the fraction of requested power delivered in [0,1].
	PowerStatus float32
	TimeScale   float32
	Delta       float32
}

type Step struct {
	// Consume asks the host to use one batch of inputs.
	Consume bool
	// ImpactPower is set on the tick output first exceeds the reactor's own draw.
	ImpactPower bool
}

type Model struct {
	Warmup        float32
	TotalProgress float32

	sinceUse float32
	used     bool
}

// LerpDelta moves a toward b by alpha per unit of delta.
func LerpDelta(a, b, alpha, delta float32) float32 {
	if alpha >= 1 {
		return b
	}
	t := 1 - float32(math.Pow(float64(1-alpha), float64(delta)))
	return a + (b-a)*t
}

// ProductionEfficiency is warmup^5, derived on every read.
func (m *Model) ProductionEfficiency() float32 {
	return efficiencyOf(m.Warmup)
}

func efficiencyOf(w float32) float32 {
	return float32(math.Pow(float64(w), 5))
}

// PowerProduction is the gross output this tick.
func (m *Model) PowerProduction(p Params) float32 {
	return p.PowerProduction * m.ProductionEfficiency()
}

// NetPower is output beyond the reactor's own draw.
func (m *Model) NetPower(p Params) float32 {
	return max(m.PowerProduction(p)-p.PowerUse, 0)
}

// Heat is the value exposed to sensors.
func (m *Model) Heat() float32 { return m.Warmup }

// Update advances the model by one host tick.
func (m *Model) Update(p Params, in Input) Step {
	var st Step
	scale := in.TimeScale
	if scale <= 0 {
		scale = 1
	}
	// The use timer runs on world time, gated or not.
	m.sinceUse += in.Delta
	if in.Efficiency >= efficiencyGate && in.PowerStatus >= powerGate {
		prevOut := p.PowerProduction*efficiencyOf(m.Warmup) <= p.PowerUse

		m.Warmup = LerpDelta(m.Warmup, 1, p.WarmupSpeed*scale, in.Delta)
		if abs32(m.Warmup-1) < snapEpsilon {
			m.Warmup = 1
		}
		if prevOut && p.PowerProduction*efficiencyOf(m.Warmup) > p.PowerUse {
			st.ImpactPower = true
		}

		if !m.used || m.sinceUse >= p.ItemDuration/scale {
			m.used = true
			m.sinceUse = 0
			st.Consume = true
		}
	} else {
		m.Warmup = LerpDelta(m.Warmup, 0, CooldownRate, in.Delta)
	}
	m.TotalProgress += m.Warmup * in.Delta
	return st
}

type Shake struct {
	Intensity float32
	Duration  float32
}

type Explosion struct {
	Radius int
	Damage float32
	Shake  Shake
}

// OnDestroyed decides whether losing the reactor is catastrophic. Severity
// does not depend on warmup once the threshold is reached.
func (m *Model) OnDestroyed(p Params, explosionsEnabled bool) (Explosion, bool) {
	if m.Warmup < ExplodeWarmup || !explosionsEnabled {
		return Explosion{}, false
	}
	return Explosion{
		Radius: p.ExplosionRadius,
		Damage: p.ExplosionDamage * 4,
		Shake:  Shake{Intensity: 6, Duration: 16},
	}, true
}

// Falloff is the damage dealt at dist from the blast center. Targets outside
// radius take none; the edge still takes 40%.
func Falloff(damage, dist, radius float32) float32 {
	if radius <= 0 || dist > radius {
		return 0
	}
	t := 1 - dist/radius
	return damage * (t + (1-t)*0.4)
}

func (m *Model) Write(w io.Writer) error {
	var used uint8
	if m.used {
		used = 1
	}
	rec := struct {
		Warmup, TotalProgress, SinceUse float32
		Used                            uint8
	}{m.Warmup, m.TotalProgress, m.sinceUse, used}
	return binary.Write(w, binary.BigEndian, rec)
}

func (m *Model) Read(r io.Reader) error {
	var rec struct {
		Warmup, TotalProgress, SinceUse float32
		Used                            uint8
	}
	if err := binary.Read(r, binary.BigEndian, &rec); err != nil {
		return fmt.Errorf("reactor: %w", err)
	}
	m.Warmup = rec.Warmup
	m.TotalProgress = rec.TotalProgress
	m.sinceUse = rec.SinceUse
	m.used = rec.Used != 0
	return nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
