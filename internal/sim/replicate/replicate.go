// Package replicate models replicated procedure calls: named messages with a
// JSON payload that every participant, including the sender, applies exactly
// once and in order.
package replicate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrGap         = errors.New("replicate: sequence gap")
	ErrUnknownCall = errors.New("replicate: unknown call")
)

type Call struct {
	Seq  uint64          `json:"seq"`
	Tick uint64          `json:"tick"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type Handler func(args json.RawMessage) error

// Table maps call names to handlers.
type Table struct {
	handlers map[string]Handler
}

func NewTable() *Table {
	return &Table{handlers: map[string]Handler{}}
}

// Register binds name to h. Registering a name twice is a programming error.
func (t *Table) Register(name string, h Handler) {
	if _, dup := t.handlers[name]; dup {
		panic("replicate: duplicate handler " + name)
	}
	t.handlers[name] = h
}

// Handle registers a handler whose payload is decoded into T.
func Handle[T any](t *Table, name string, fn func(T) error) {
	t.Register(name, func(raw json.RawMessage) error {
		var v T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("%s: decode args: %w", name, err)
			}
		}
		return fn(v)
	})
}

func (t *Table) Names() []string {
	out := make([]string, 0, len(t.handlers))
	for n := range t.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Replica applies a call stream. Redelivered calls are ignored.
type Replica struct {
	table   *Table
	applied uint64
}

func NewReplica(t *Table) *Replica {
	return &Replica{table: t}
}

// Applied is the sequence number of the last applied call.
func (r *Replica) Applied() uint64 { return r.applied }

// Resume sets the watermark, e.g. after loading a snapshot taken at seq.
func (r *Replica) Resume(seq uint64) { r.applied = seq }

// Apply runs the handler for c. It reports false for a duplicate delivery.
func (r *Replica) Apply(c Call) (bool, error) {
	if c.Seq <= r.applied {
		return false, nil
	}
	if c.Seq != r.applied+1 {
		return false, fmt.Errorf("%w: have %d, got %d", ErrGap, r.applied, c.Seq)
	}
	h, ok := r.table.handlers[c.Name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCall, c.Name)
	}
	if err := h(c.Args); err != nil {
		return false, err
	}
	r.applied = c.Seq
	return true, nil
}

type Subscriber func(Call)

type subscription struct {
	id int
	fn Subscriber
}

// Dispatcher is the authoritative end of a call stream: it numbers calls,
// applies them locally first and then hands them to subscribers in
// subscription order. It is not safe for concurrent use.
type Dispatcher struct {
	replica *Replica
	subs    []subscription
	nextSub int
}

func NewDispatcher(t *Table) *Dispatcher {
	return &Dispatcher{replica: NewReplica(t)}
}

func (d *Dispatcher) Seq() uint64 { return d.replica.Applied() }

func (d *Dispatcher) Resume(seq uint64) { d.replica.Resume(seq) }

// Invoke encodes args, applies the call locally and fans it out.
func (d *Dispatcher) Invoke(tick uint64, name string, args any) (Call, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Call{}, fmt.Errorf("%s: encode args: %w", name, err)
	}
	c := Call{Seq: d.replica.Applied() + 1, Tick: tick, Name: name, Args: raw}
	if _, err := d.replica.Apply(c); err != nil {
		return Call{}, err
	}
	for _, s := range d.subs {
		s.fn(c)
	}
	return c, nil
}

// Subscribe registers fn for every future call. The returned func cancels it.
func (d *Dispatcher) Subscribe(fn Subscriber) func() {
	d.nextSub++
	id := d.nextSub
	d.subs = append(d.subs, subscription{id: id, fn: fn})
	return func() {
		for i, s := range d.subs {
			if s.id == id {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				return
			}
		}
	}
}
