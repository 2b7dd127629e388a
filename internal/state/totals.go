// Package state owns the process-wide mutable client state: the session
// snapshot, the cart, the product cache, derived totals, and the small
// pieces of UI coordination state (current route, blocked flag, locked
// route, page-local counters).
//
// Ownership is single-writer by convention: SessionService writes the
// session, CartService writes the cart and product cache, the navigation
// guard writes route/lock state, and the push channel adjusts counters.
// Reads are unrestricted. A mutex guards every access because goroutines
// (push reader, broadcast watcher) touch the store concurrently.
package state

import (
	"math"

	"github.com/storefront-dev/go-shop-client/internal/domain"
)

// ComputeTotals derives cart totals from its three inputs and nothing
// else. Deterministic and repeatable: totals are never hand-patched, only
// recomputed when an input changes.
//
// Per line: the unit price is the product price less the product's own
// discount; a line whose product is missing from the cache contributes
// zero (defensive default — the line is kept, never dropped here).
// Deleted lines are skipped. The account discount rate then applies to
// the raw sum.
func ComputeTotals(items []domain.CartItem, products map[string]domain.ProductSnapshot, discount float64) domain.CartTotals {
	var raw int64
	for _, it := range items {
		if it.Flags.Deleted {
			continue
		}
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		unit := p.Price - roundRate(p.Price, p.Discount)
		raw += unit * int64(it.Quantity)
	}
	return domain.CartTotals{
		Raw:        raw,
		Discounted: raw - roundRate(raw, discount),
	}
}

// roundRate returns amount*rate rounded to the nearest minor unit.
func roundRate(amount int64, rate float64) int64 {
	if rate <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * rate))
}
