package replicate

import (
	"encoding/json"
	"errors"
	"testing"
)

type moveArgs struct {
	X int `json:"x"`
}

func TestDispatcher_AppliesLocallyThenFansOut(t *testing.T) {
	var order []string
	sum := 0
	tbl := NewTable()
	Handle(tbl, "move", func(a moveArgs) error {
		order = append(order, "local")
		sum += a.X
		return nil
	})

	d := NewDispatcher(tbl)
	var got []Call
	cancel := d.Subscribe(func(c Call) {
		order = append(order, "sub")
		got = append(got, c)
	})

	c, err := d.Invoke(7, "move", moveArgs{X: 3})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if c.Seq != 1 || c.Tick != 7 || sum != 3 {
		t.Fatalf("call=%+v sum=%d", c, sum)
	}
	if len(order) != 2 || order[0] != "local" || order[1] != "sub" {
		t.Fatalf("order: %v", order)
	}

	cancel()
	if _, err := d.Invoke(8, "move", moveArgs{X: 1}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(got) != 1 || d.Seq() != 2 {
		t.Fatalf("cancelled subscriber still called: %d calls, seq=%d", len(got), d.Seq())
	}
}

func TestReplica_DedupeAndGap(t *testing.T) {
	n := 0
	tbl := NewTable()
	Handle(tbl, "inc", func(struct{}) error { n++; return nil })
	r := NewReplica(tbl)

	if ok, err := r.Apply(Call{Seq: 1, Name: "inc"}); !ok || err != nil {
		t.Fatalf("apply 1: %v %v", ok, err)
	}
	if ok, err := r.Apply(Call{Seq: 1, Name: "inc"}); ok || err != nil {
		t.Fatalf("redelivery must be ignored: %v %v", ok, err)
	}
	if _, err := r.Apply(Call{Seq: 3, Name: "inc"}); !errors.Is(err, ErrGap) {
		t.Fatalf("expected gap error, got %v", err)
	}
	if _, err := r.Apply(Call{Seq: 2, Name: "nope"}); !errors.Is(err, ErrUnknownCall) {
		t.Fatalf("expected unknown call, got %v", err)
	}
	if r.Applied() != 1 || n != 1 {
		t.Fatalf("applied=%d n=%d", r.Applied(), n)
	}
}

func TestReplica_HandlerErrorDoesNotAdvance(t *testing.T) {
	tbl := NewTable()
	Handle(tbl, "move", func(a moveArgs) error { return nil })
	r := NewReplica(tbl)
	if _, err := r.Apply(Call{Seq: 1, Name: "move", Args: []byte(`{"x":"nan"}`)}); err == nil {
		t.Fatalf("expected decode error")
	}
	if r.Applied() != 0 {
		t.Fatalf("failed call advanced watermark")
	}
}

func TestTable_DuplicateRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	tbl := NewTable()
	tbl.Register("a", func(json.RawMessage) error { return nil })
	tbl.Register("a", func(json.RawMessage) error { return nil })
}
