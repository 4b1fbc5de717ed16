package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" validate:"required"`

	TickRateHz         int `yaml:"tick_rate_hz" validate:"gte=1,lte=240"`
	Width              int `yaml:"width" validate:"gte=8,lte=4096"`
	Height             int `yaml:"height" validate:"gte=8,lte=4096"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" validate:"gte=0"`

	CoreCapacity int            `yaml:"core_capacity" validate:"gte=0"`
	StarterItems map[string]int `yaml:"starter_items" validate:"dive,gte=0"`

	Rules      Rules      `yaml:"rules"`
	Audio      Audio      `yaml:"audio"`
	RateLimits RateLimits `yaml:"rate_limits"`
}

type Rules struct {
	BuildCostMultiplier         float32 `yaml:"build_cost_multiplier" validate:"gt=0"`
	DeconstructRefundMultiplier float32 `yaml:"deconstruct_refund_multiplier" validate:"gte=0,lte=1"`
	BuildSpeedMultiplier        float32 `yaml:"build_speed_multiplier" validate:"gt=0"`
	InfiniteResources           bool    `yaml:"infinite_resources"`
	ReactorExplosions           bool    `yaml:"reactor_explosions"`

	Teams map[int]TeamRules `yaml:"teams" validate:"dive"`
}

type TeamRules struct {
	InfiniteResources bool `yaml:"infinite_resources"`
}

// Audio bounds how often completion cues sound and how their pitch climbs.
type Audio struct {
	MinGapMs      int `yaml:"min_gap_ms" validate:"gt=0"`
	BurstWindowMs int `yaml:"burst_window_ms" validate:"gt=0"`
	PitchSteps    int `yaml:"pitch_steps" validate:"gt=0"`
}

func (a Audio) MinGap() time.Duration      { return time.Duration(a.MinGapMs) * time.Millisecond }
func (a Audio) BurstWindow() time.Duration { return time.Duration(a.BurstWindowMs) * time.Millisecond }

type RateLimits struct {
	OrdersPerSecond float64 `yaml:"orders_per_second" validate:"gt=0"`
	OrderBurst      int     `yaml:"order_burst" validate:"gte=1"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         60,
		Width:              64,
		Height:             64,
		SnapshotEveryTicks: 3600,
		CoreCapacity:       4000,
		StarterItems:       map[string]int{},
		Rules: Rules{
			BuildCostMultiplier:         1,
			DeconstructRefundMultiplier: 0.5,
			BuildSpeedMultiplier:        1,
			ReactorExplosions:           true,
		},
		Audio:      Audio{MinGapMs: 32, BurstWindowMs: 480, PitchSteps: 30},
		RateLimits: RateLimits{OrdersPerSecond: 20, OrderBurst: 40},
	}
}

// Load reads a tuning file over Defaults and validates the result.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := Validate(&t); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var validate = validator.New()

func Validate(t *Tuning) error {
	if err := validate.Struct(t); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
			}
			return fmt.Errorf("validation failed:\n  %s", strings.Join(msgs, "\n  "))
		}
		return err
	}
	return nil
}
