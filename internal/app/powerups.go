package app

import "ifrs17-training-service/internal/domain"

// Per-kind initial counts, refill amounts, and hard caps.
var (
	initialPowerUps = map[domain.PowerUpKind]int{
		domain.PowerUpHint:      5,
		domain.PowerUpEliminate: 3,
		domain.PowerUpSkip:      2,
	}
	powerUpRefill = map[domain.PowerUpKind]int{
		domain.PowerUpHint:      2,
		domain.PowerUpEliminate: 1,
		domain.PowerUpSkip:      1,
	}
	powerUpMax = map[domain.PowerUpKind]int{
		domain.PowerUpHint:      5,
		domain.PowerUpEliminate: 3,
		domain.PowerUpSkip:      2,
	}
)

// Ledger tracks remaining power-up uses. Operations return a new ledger; the
// zero counts are never undershot and the caps never overshot.
type Ledger map[domain.PowerUpKind]int

// NewLedger returns a ledger with the initial per-kind counts.
func NewLedger() Ledger {
	l := make(Ledger, len(initialPowerUps))
	for kind, n := range initialPowerUps {
		l[kind] = n
	}
	return l
}

// CanUse reports whether at least one use of kind remains.
func (l Ledger) CanUse(kind domain.PowerUpKind) bool {
	return l[kind] > 0
}

// Consume returns a ledger with one use of kind spent. Consuming an exhausted
// kind is a no-op.
func (l Ledger) Consume(kind domain.PowerUpKind) Ledger {
	if !l.CanUse(kind) {
		return l
	}
	next := l.clone()
	next[kind]--
	return next
}

// Refill returns a ledger topped up by the per-kind refill amount, capped at
// the per-kind maximum. Called once when a module attempt starts.
func (l Ledger) Refill() Ledger {
	next := l.clone()
	for kind, add := range powerUpRefill {
		next[kind] += add
		if max := powerUpMax[kind]; next[kind] > max {
			next[kind] = max
		}
	}
	return next
}

func (l Ledger) clone() Ledger {
	next := make(Ledger, len(l))
	for kind, n := range l {
		next[kind] = n
	}
	return next
}

// toCounts exports the ledger for snapshots.
func (l Ledger) toCounts() map[domain.PowerUpKind]int {
	return map[domain.PowerUpKind]int(l.clone())
}

// ledgerFromCounts rebuilds a ledger from a persisted snapshot, defaulting
// missing kinds to their initial counts and clamping to the caps.
func ledgerFromCounts(counts map[domain.PowerUpKind]int) Ledger {
	l := NewLedger()
	for kind := range initialPowerUps {
		n, ok := counts[kind]
		if !ok {
			continue
		}
		if n < 0 {
			n = 0
		}
		if max := powerUpMax[kind]; n > max {
			n = max
		}
		l[kind] = n
	}
	return l
}
