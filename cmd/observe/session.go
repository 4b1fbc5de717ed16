package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"factoryforge.io/internal/fx/sound"
	"factoryforge.io/internal/observerproto"
	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/completion"
	"factoryforge.io/internal/sim/tuning"
	"factoryforge.io/internal/sim/world"
)

// session mirrors one observer stream into a local world and collects the
// cues its completions produce.
type session struct {
	log      *log.Logger
	mirror   *world.World
	timeline *sound.Timeline
	now      func() time.Time

	ticks    uint64
	calls    uint64
	diverged uint64
}

func newSession(b observerproto.BootstrapResponse, cats *catalogs.Catalogs, audio tuning.Audio, logger *log.Logger) (*session, error) {
	s := &session{log: logger, now: time.Now}
	s.timeline = sound.NewTimeline(s.now())

	throttle := completion.NewThrottle(completion.ThrottleConfig{
		MinGap:      audio.MinGap(),
		BurstWindow: audio.BurstWindow(),
		Steps:       audio.PitchSteps,
	}, s.now, time.Now().UnixNano())

	m, err := world.NewMirror(world.WorldConfig{
		ID:         b.WorldID,
		TickRateHz: b.WorldParams.TickRateHz,
		Width:      b.WorldParams.Width,
		Height:     b.WorldParams.Height,
	}, cats, world.MirrorOptions{
		Throttle: throttle,
		OnCue:    func(c completion.Cue) { s.timeline.Add(s.now(), c) },
	})
	if err != nil {
		return nil, err
	}
	if err := m.LoadBootstrap(b); err != nil {
		return nil, err
	}
	s.mirror = m
	return s, nil
}

// handle applies one stream message. A gap in the call sequence is returned
// as an error; the mirror is unusable until it bootstraps again.
func (s *session) handle(msg []byte) error {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	switch base.Type {
	case protocol.TypeCall:
		var c protocol.CallMsg
		if err := json.Unmarshal(msg, &c); err != nil {
			return fmt.Errorf("call: %w", err)
		}
		applied, err := s.mirror.ApplyCallMsg(c)
		if err != nil {
			return fmt.Errorf("call %d %s: %w", c.Seq, c.Name, err)
		}
		if applied {
			s.calls++
		}
	case observerproto.TypeTick:
		var m observerproto.TickMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return fmt.Errorf("tick: %w", err)
		}
		s.mirror.ObserveTick(m)
		s.ticks++
		if m.CallSeq == s.mirror.CallSeq() && m.OccupantDigest != s.mirror.OccupantDigest() {
			s.diverged++
			if s.log != nil {
				s.log.Printf("tick %d: occupant digest diverged (call_seq=%d)", m.Tick, m.CallSeq)
			}
		}
	}
	return nil
}
