package world

import (
	"context"
	"time"

	"factoryforge.io/internal/observerproto"
)

// pending collects everything that arrives between two ticks. Joins, leaves
// and orders only take effect when the tick fires, so a tick's input is
// exactly what the tick log records for it.
type pending struct {
	joins  []JoinRequest
	leaves []string
	orders []OrderEnvelope
}

func (p *pending) reset() {
	p.joins = p.joins[:0]
	p.leaves = p.leaves[:0]
	p.orders = p.orders[:0]
}

// Run drives the world at the configured tick rate until ctx is cancelled or
// Stop is called. Observer subscriptions, attaches and bootstrap requests are
// served between ticks.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(w.cfg.TickRateHz))
	defer ticker.Stop()

	var in pending
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.stepInternal(in.joins, in.leaves, in.orders)
			in.reset()
		case req := <-w.join:
			in.joins = append(in.joins, req)
		case id := <-w.leave:
			in.leaves = append(in.leaves, id)
		case env := <-w.inbox:
			in.orders = append(in.orders, env)
		case req := <-w.attach:
			w.handleAttach(req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case resp := <-w.bootstrapReq:
			resp <- w.Bootstrap()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce runs one tick with the given input, exactly as Run would, and
// returns the tick that was executed with its state digest. Replays and tests
// drive the world through it.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, orders []OrderEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.stepInternal(joins, leaves, orders)
	return tick, w.stateDigest(tick)
}

// RequestBootstrap asks the running loop for a consistent observer bootstrap.
func (w *World) RequestBootstrap(ctx context.Context) (observerproto.BootstrapResponse, error) {
	resp := make(chan observerproto.BootstrapResponse, 1)
	select {
	case w.bootstrapReq <- resp:
	case <-ctx.Done():
		return observerproto.BootstrapResponse{}, ctx.Err()
	}
	select {
	case b := <-resp:
		return b, nil
	case <-ctx.Done():
		return observerproto.BootstrapResponse{}, ctx.Err()
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
