// Package market provides the per-product order books and the matching
// engine that clears them. Orders are submitted by agent goroutines and
// owned by the engine once submitted; the issuer keeps only a read/wait
// handle.
package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/commodity-sim/internal/catalog"
)

// Side is the direction of an order.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// Party is the market-facing surface of an agent. The engine mutates the
// counterparty through it during settlement, possibly concurrently with
// the owning goroutine, so implementations must be safe for concurrent
// use.
type Party interface {
	DisplayName() string
	AddStock(productID, qty int)
	RemoveStock(productID, qty int) int
	Credit(amount float64)
	Debit(amount float64)
}

// WaitResult reports how a bounded wait on an order ended. Callers are
// free to ignore it; the resolver currently proceeds regardless.
type WaitResult uint8

const (
	// WaitFilled: the order's remaining quantity reached zero.
	WaitFilled WaitResult = iota
	// WaitPartial: the wait ended with some, but not all, quantity filled.
	WaitPartial
	// WaitTimedOut: the wait ended with nothing filled.
	WaitTimedOut
)

func (r WaitResult) String() string {
	switch r {
	case WaitFilled:
		return "filled"
	case WaitPartial:
		return "partially-filled"
	case WaitTimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("waitresult(%d)", r)
	}
}

// Order is a resting buy or sell intent for one product. The limit price
// is fixed at creation; the remaining quantity only ever decreases. An
// order leaves its book exactly when remaining reaches zero and is never
// resurrected.
type Order struct {
	ID      uuid.UUID
	Side    Side
	Issuer  Party
	Product *catalog.Product
	Price   float64 // unit limit price
	Round   int     // round current when submitted

	mu        sync.Mutex
	initial   int
	remaining int
	done      chan struct{}
}

// NewOrder creates an unsubmitted order handle.
func NewOrder(side Side, issuer Party, product *catalog.Product, qty int, price float64) *Order {
	return &Order{
		ID:        uuid.New(),
		Side:      side,
		Issuer:    issuer,
		Product:   product,
		Price:     price,
		initial:   qty,
		remaining: qty,
		done:      make(chan struct{}),
	}
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remaining
}

// FilledQty returns how much of the order has traded so far.
func (o *Order) FilledQty() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initial - o.remaining
}

// Done is closed when the order is completely filled.
func (o *Order) Done() <-chan struct{} {
	return o.done
}

// fill consumes qty from the remaining quantity and reports whether the
// order is now complete. Engine use only; qty must not exceed remaining.
func (o *Order) fill(qty int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.remaining -= qty
	if o.remaining == 0 {
		close(o.done)
		return true
	}
	return false
}

// AwaitFill blocks until the order fills, the timeout elapses, or stop is
// closed — whichever comes first. Unmatched orders are normal operation:
// a timeout here is not an error, and the remainder keeps resting in the
// book.
func (o *Order) AwaitFill(timeout time.Duration, stop <-chan struct{}) WaitResult {
	select {
	case <-o.done:
		return WaitFilled
	case <-time.After(timeout):
	case <-stop:
	}
	switch filled := o.FilledQty(); {
	case filled == o.initial:
		return WaitFilled
	case filled > 0:
		return WaitPartial
	default:
		return WaitTimedOut
	}
}
