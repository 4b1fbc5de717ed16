package completion

import (
	"math/rand"
	"sync"
	"time"

	"factoryforge.io/internal/sim/model"
)

type ThrottleConfig struct {
	// MinGap is the minimum wall-clock spacing between two audible cues.
	MinGap time.Duration
	// BurstWindow keeps the pitch sequence climbing while completions keep arriving within it.
	BurstWindow time.Duration
	Steps       int
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{MinGap: 32 * time.Millisecond, BurstWindow: 480 * time.Millisecond, Steps: 30}
}

// Throttle rate-limits completion cues and derives their pitch. One instance
// is shared by every site a process finalizes.
type Throttle struct {
	mu  sync.Mutex
	cfg ThrottleConfig
	now func() time.Time
	rng *rand.Rand

	lastPlayed time.Time
	lastPitch  time.Time
	seq        int
}

// NewThrottle builds a throttle. A nil now uses time.Now.
func NewThrottle(cfg ThrottleConfig, now func() time.Time, seed int64) *Throttle {
	def := DefaultThrottleConfig()
	if cfg.MinGap <= 0 {
		cfg.MinGap = def.MinGap
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = def.BurstWindow
	}
	if cfg.Steps <= 0 {
		cfg.Steps = def.Steps
	}
	if now == nil {
		now = time.Now
	}
	return &Throttle{cfg: cfg, now: now, rng: rand.New(rand.NewSource(seed))}
}

// ShouldPlay reports whether a cue may sound now, and if so records it.
func (t *Throttle) ShouldPlay() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if now.Sub(t.lastPlayed) < t.cfg.MinGap {
		return false
	}
	t.lastPlayed = now
	return true
}

// Pitch ramps across the step sequence while completions stay inside the
// burst window: up toward 2.9 for placements, down toward 0.6 for removals.
// Outside a burst the pitch is random in [0.7, 1.3].
func (t *Throttle) Pitch(up bool) float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if now.Sub(t.lastPitch) < t.cfg.BurstWindow {
		t.lastPitch = now
		t.seq++
		if t.seq > t.cfg.Steps {
			t.seq = 0
		}
		span := float32(-0.4)
		if up {
			span = 1.9
		}
		return 1 + model.Clamp01(float32(t.seq)/float32(t.cfg.Steps))*span
	}
	t.seq = 0
	t.lastPitch = now
	return 0.7 + t.rng.Float32()*0.6
}

// Reset forgets all timing and sequence state.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastPlayed = time.Time{}
	t.lastPitch = time.Time{}
	t.seq = 0
}
