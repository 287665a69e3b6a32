// Package sim provides the trading agents, the round barrier that keeps
// them in lockstep with the matching engine, and the acquisition
// resolver that turns activity intents into orders and stock mutations.
package sim

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/commodity-sim/internal/catalog"
)

// Role determines how an agent participates in the economy.
type Role uint8

const (
	// RoleProducer builds raw materials from nothing.
	RoleProducer Role = iota
	RoleManufacturer
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "producer"
	case RoleManufacturer:
		return "manufacturer"
	case RoleConsumer:
		return "consumer"
	default:
		return fmt.Sprintf("role(%d)", r)
	}
}

// RoleFromName parses a feed role name.
func RoleFromName(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "producer", "supplier":
		return RoleProducer, nil
	case "manufacturer":
		return RoleManufacturer, nil
	case "consumer":
		return RoleConsumer, nil
	default:
		return 0, fmt.Errorf("unknown role %q", name)
	}
}

// Verb is what an activity does.
type Verb uint8

const (
	VerbBuy Verb = iota
	VerbSell
	VerbBuild
	VerbConsume
)

func (v Verb) String() string {
	switch v {
	case VerbBuy:
		return "buy"
	case VerbSell:
		return "sell"
	case VerbBuild:
		return "build"
	case VerbConsume:
		return "consume"
	default:
		return fmt.Sprintf("verb(%d)", v)
	}
}

// VerbFromName parses a feed activity type.
func VerbFromName(name string) (Verb, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "buy":
		return VerbBuy, nil
	case "sell":
		return VerbSell, nil
	case "build":
		return VerbBuild, nil
	case "consume":
		return VerbConsume, nil
	default:
		return 0, fmt.Errorf("unknown activity type %q", name)
	}
}

// Activity is one configured intent: a verb, a target product, and a
// quantity range. One concrete quantity is drawn uniformly from
// [Min, Max) each time the activity executes.
type Activity struct {
	Verb    Verb
	Product *catalog.Product
	Min     int
	Max     int
}

// Agent is one trader. Stock and balance are owned by the agent's own
// goroutine during activity execution, but the engine goroutine credits
// and debits the counterparty of every trade directly, so both fields
// sit behind the agent's mutex.
type Agent struct {
	ID         uuid.UUID
	Name       string
	Role       Role
	Tolerance  float64 // fractional margin on reference prices
	Activities []Activity

	mu      sync.Mutex
	stock   map[int]int // product id → unit count
	balance float64
}

// NewAgent creates an agent with empty stock and an unbounded balance.
func NewAgent(name string, role Role, tolerance float64) *Agent {
	return &Agent{
		ID:        uuid.New(),
		Name:      name,
		Role:      role,
		Tolerance: tolerance,
		stock:     make(map[int]int),
		balance:   math.Inf(1),
	}
}

// DisplayName is how the agent appears in trade logs.
func (a *Agent) DisplayName() string {
	return fmt.Sprintf("%s %s", a.Role, a.Name)
}

// AddStock adds qty units of a product.
func (a *Agent) AddStock(productID, qty int) {
	if qty <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stock[productID] += qty
}

// RemoveStock removes up to qty units of a product and returns how many
// were actually removed. Removing from an insufficient stock is not an
// error; it clamps.
func (a *Agent) RemoveStock(productID, qty int) int {
	if qty <= 0 {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	have := a.stock[productID]
	if qty > have {
		qty = have
	}
	if qty == have {
		delete(a.stock, productID)
	} else {
		a.stock[productID] = have - qty
	}
	return qty
}

// StockOf returns the held quantity of a product.
func (a *Agent) StockOf(productID int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stock[productID]
}

// Stock returns a snapshot of all held products.
func (a *Agent) Stock() map[int]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int]int, len(a.stock))
	for id, qty := range a.stock {
		out[id] = qty
	}
	return out
}

// Credit adds to the agent's balance.
func (a *Agent) Credit(amount float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance += amount
}

// Debit subtracts from the agent's balance. Balances may go negative;
// currency integrity is out of scope.
func (a *Agent) Debit(amount float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance -= amount
}

// Balance returns the current balance.
func (a *Agent) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// SetBalance replaces the balance; used by the loader for scenarios with
// a constrained starting budget.
func (a *Agent) SetBalance(amount float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = amount
}
