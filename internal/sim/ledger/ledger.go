// Package ledger tracks fractional per-resource progress for a construction site.
package ledger

// Ledger holds two parallel arrays indexed by requirement slot: Acc is the
// outstanding (not yet settled) amount, Total is the amount accrued so far.
// A zero Ledger is unset.
type Ledger struct {
	acc   []float32
	total []float32
	set   bool
}

func New(n int) *Ledger {
	l := &Ledger{}
	l.Reset(n)
	return l
}

// Reset sizes both arrays to n slots and zeroes them.
func (l *Ledger) Reset(n int) {
	if n < 0 {
		n = 0
	}
	l.acc = make([]float32, n)
	l.total = make([]float32, n)
	l.set = true
}

// Clear returns the ledger to the unset state.
func (l *Ledger) Clear() {
	l.acc, l.total, l.set = nil, nil, false
}

func (l *Ledger) Initialized() bool { return l.set }

func (l *Ledger) Len() int { return len(l.acc) }

// Stale reports whether the ledger does not match a requirement list of length n.
func (l *Ledger) Stale(n int) bool {
	return !l.set || len(l.acc) != n || len(l.total) != n
}

func (l *Ledger) Acc(i int) float32   { return l.acc[i] }
func (l *Ledger) Total(i int) float32 { return l.total[i] }

// Accrue advances slot i by delta. The outstanding amount grows by at most the
// remaining headroom below ceiling (plus slack) and the running total is capped
// at ceiling.
func (l *Ledger) Accrue(i int, delta, ceiling, slack float32) {
	headroom := ceiling - l.total[i] + slack
	if headroom < 0 {
		headroom = 0
	}
	l.acc[i] += min(delta, headroom)
	l.total[i] = min(l.total[i]+delta, ceiling)
}

// WholeSlack absorbs float32 drift when many small accruals should add up to
// a whole unit: 4.9999 counts as 5.
const WholeSlack float32 = 0.001

// Whole is the integer part of the outstanding amount of slot i, within
// WholeSlack of the next unit.
func (l *Ledger) Whole(i int) int {
	if l.acc[i] <= 0 {
		return 0
	}
	return int(l.acc[i] + WholeSlack)
}

// Settle removes n whole units from the outstanding amount of slot i.
func (l *Ledger) Settle(i int, n int) {
	l.acc[i] -= float32(n)
	if l.acc[i] < 0 {
		l.acc[i] = 0
	}
}

// Pairs returns copies of both arrays, or nils when unset.
func (l *Ledger) Pairs() (acc, total []float32) {
	if !l.set {
		return nil, nil
	}
	acc = append([]float32(nil), l.acc...)
	total = append([]float32(nil), l.total...)
	return acc, total
}

// Load replaces the ledger contents. Mismatched lengths leave it unset.
func (l *Ledger) Load(acc, total []float32) {
	if len(acc) != len(total) {
		l.Clear()
		return
	}
	l.acc = append([]float32(nil), acc...)
	l.total = append([]float32(nil), total...)
	l.set = true
}
