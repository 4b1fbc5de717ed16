// Package sound renders completion cues into audio streams for observers.
package sound

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/wav"

	"factoryforge.io/internal/sim/completion"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)

	placeBaseHz = 660.0
	breakBaseHz = 330.0

	placeDuration = 90 * time.Millisecond
	breakDuration = 70 * time.Millisecond
	attack        = 4 * time.Millisecond
)

type Wave int

const (
	WaveSine Wave = iota
	WaveSquare
	WaveSaw
)

type oscillator struct {
	freq     float64
	phase    float64
	position int
	total    int
	wave     Wave
	rate     beep.SampleRate
}

// NewOscillator streams a fixed-length periodic wave in [-1, 1].
func NewOscillator(freq float64, d time.Duration, wave Wave, rate beep.SampleRate) beep.Streamer {
	return &oscillator{freq: freq, total: rate.N(d), wave: wave, rate: rate}
}

func (o *oscillator) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		if o.position >= o.total {
			return i, i > 0
		}
		var v float64
		switch o.wave {
		case WaveSquare:
			v = 1
			if o.phase >= 0.5 {
				v = -1
			}
		case WaveSaw:
			v = 2 * (o.phase - 0.5)
		default:
			v = math.Sin(2 * math.Pi * o.phase)
		}
		samples[i][0], samples[i][1] = v, v
		o.phase += o.freq / float64(o.rate)
		o.phase -= math.Floor(o.phase)
		o.position++
	}
	return len(samples), true
}

func (o *oscillator) Err() error { return nil }

// envelope fades the wrapped stream in over attack samples and linearly out
// over the rest.
type envelope struct {
	s        beep.Streamer
	position int
	attack   int
	total    int
}

func newEnvelope(s beep.Streamer, d, att time.Duration, rate beep.SampleRate) beep.Streamer {
	return &envelope{s: s, attack: rate.N(att), total: rate.N(d)}
}

func (e *envelope) Stream(samples [][2]float64) (int, bool) {
	n, ok := e.s.Stream(samples)
	for i := 0; i < n; i++ {
		vol := 1.0
		switch {
		case e.position < e.attack:
			vol = float64(e.position) / float64(e.attack)
		case e.total > e.attack:
			vol = float64(e.total-e.position) / float64(e.total-e.attack)
		}
		if vol < 0 {
			vol = 0
		}
		samples[i][0] *= vol
		samples[i][1] *= vol
		e.position++
	}
	return n, ok
}

func (e *envelope) Err() error { return e.s.Err() }

func volume(s beep.Streamer, v float64) beep.Streamer {
	if v <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(v)}
}

// Renderer turns cues into streams at a fixed sample rate.
type Renderer struct {
	Rate   beep.SampleRate
	Volume float64
}

func NewRenderer() *Renderer {
	return &Renderer{Rate: DefaultSampleRate, Volume: 0.5}
}

// Duration is the length of the stream Cue renders for kind.
func (r *Renderer) Duration(kind string) time.Duration {
	if kind == completion.CueBreak {
		return breakDuration
	}
	return placeDuration
}

// Cue renders one completion cue. Placements ring a sine with its octave,
// removals a short saw; pitch scales both.
func (r *Renderer) Cue(c completion.Cue) beep.Streamer {
	pitch := float64(c.Pitch)
	if pitch <= 0 {
		pitch = 1
	}
	d := r.Duration(c.Kind)
	var s beep.Streamer
	if c.Kind == completion.CueBreak {
		osc := NewOscillator(breakBaseHz*pitch, d, WaveSaw, r.Rate)
		s = volume(newEnvelope(osc, d, attack, r.Rate), 0.6)
	} else {
		fund := newEnvelope(NewOscillator(placeBaseHz*pitch, d, WaveSine, r.Rate), d, attack, r.Rate)
		over := newEnvelope(NewOscillator(2*placeBaseHz*pitch, d, WaveSine, r.Rate), d, attack, r.Rate)
		s = beep.Mix(volume(fund, 0.7), volume(over, 0.3))
	}
	return volume(s, r.Volume)
}

// Timeline collects cues at wall-clock offsets from its start.
type Timeline struct {
	start time.Time
	cues  []timed
}

type timed struct {
	at  time.Duration
	cue completion.Cue
}

func NewTimeline(start time.Time) *Timeline {
	return &Timeline{start: start}
}

// Add records a cue heard at time at. Cues before the start are placed at it.
func (t *Timeline) Add(at time.Time, c completion.Cue) {
	off := at.Sub(t.start)
	if off < 0 {
		off = 0
	}
	t.cues = append(t.cues, timed{at: off, cue: c})
}

func (t *Timeline) Len() int { return len(t.cues) }

// Stream mixes every cue at its offset. An empty timeline yields a single
// sample of silence so encoders still get a valid stream.
func (t *Timeline) Stream(r *Renderer) beep.Streamer {
	if len(t.cues) == 0 {
		return beep.Silence(1)
	}
	cues := append([]timed(nil), t.cues...)
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].at < cues[j].at })
	parts := make([]beep.Streamer, 0, len(cues))
	for _, c := range cues {
		parts = append(parts, beep.Seq(beep.Silence(r.Rate.N(c.at)), r.Cue(c.cue)))
	}
	return beep.Mix(parts...)
}

// Length is the number of samples Stream produces.
func (t *Timeline) Length(r *Renderer) int {
	n := 1
	for _, c := range t.cues {
		if end := r.Rate.N(c.at) + r.Rate.N(r.Duration(c.cue.Kind)); end > n {
			n = end
		}
	}
	return n
}

// EncodeWAV writes s as 16-bit stereo PCM.
func EncodeWAV(w io.WriteSeeker, s beep.Streamer, rate beep.SampleRate) error {
	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(w, s, format); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

// WriteWAVFile renders the timeline into path.
func WriteWAVFile(path string, t *Timeline, r *Renderer) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return EncodeWAV(f, t.Stream(r), r.Rate)
}
