package sim

import (
	"time"

	"github.com/talgya/commodity-sim/internal/catalog"
	"github.com/talgya/commodity-sim/internal/market"
	"github.com/talgya/commodity-sim/internal/simlog"
)

// DefaultWaitTimeout bounds every wait on a single order fill. Waiting
// longer would deadlock agents whose orders never find a counterpart.
const DefaultWaitTimeout = 100 * time.Millisecond

// Trader is the acquisition resolver: one per agent, holding the agent
// and its collaborators explicitly. It implements the four activity
// verbs; every verb tolerates under-fulfillment and treats unmatched
// orders as normal.
type Trader struct {
	Agent       *Agent
	Engine      *market.Engine
	Catalog     *catalog.Catalog
	Sink        *simlog.Log   // may be nil
	WaitTimeout time.Duration // DefaultWaitTimeout when zero
	Stop        <-chan struct{}
	OnDepart    func(*Agent) // non-shutdown departure observer, may be nil
}

func (t *Trader) timeout() time.Duration {
	if t.WaitTimeout > 0 {
		return t.WaitTimeout
	}
	return DefaultWaitTimeout
}

func (t *Trader) logf(level simlog.Level, format string, args ...any) {
	if t.Sink != nil {
		t.Sink.Addf(level, format, args...)
	}
}

// Buy submits a buy order at the agent's willingness-to-pay limit —
// the reference price marked up by the price tolerance — and returns the
// order handle without blocking.
func (t *Trader) Buy(p *catalog.Product, qty int) *market.Order {
	price := p.ReferencePrice * (1 + t.Agent.Tolerance)
	return t.submitBuy(p, qty, price)
}

func (t *Trader) submitBuy(p *catalog.Product, qty int, price float64) *market.Order {
	o := market.NewOrder(market.SideBuy, t.Agent, p, qty, price)
	t.Engine.Submit(o)
	return o
}

// Consume removes up to qty units of a product from stock, first buying
// any deficit and waiting (bounded) for that one order. Consuming fewer
// units than asked is tolerated silently.
func (t *Trader) Consume(p *catalog.Product, qty int) {
	if qty <= 0 {
		return
	}
	if have := t.Agent.StockOf(p.ID); have < qty {
		o := t.Buy(p, qty-have)
		// The wait result is received but deliberately not acted on:
		// consumption proceeds from whatever stock is present.
		_ = o.AwaitFill(t.timeout(), t.Stop)
	}
	removed := t.Agent.RemoveStock(p.ID, qty)
	t.logf(simlog.LevelInfo, "%s consumed %d of %d units of %s",
		t.Agent.DisplayName(), removed, qty, p.Name)
}

// Build manufactures qty units of a product. A producer-role agent
// builds unconditionally from infinite raw materials. Anyone else
// expands the recipe, buys every component shortfall at a price
// proportional to the component's share of the product's reference
// price, waits each issued order out sequentially, and then builds as
// many units as the stock on hand actually supports. Building zero
// units is a silent no-op.
func (t *Trader) Build(p *catalog.Product, qty int) {
	if qty <= 0 {
		return
	}
	if t.Agent.Role == RoleProducer {
		t.Agent.AddStock(p.ID, qty)
		t.logf(simlog.LevelInfo, "%s produced %d units of %s",
			t.Agent.DisplayName(), qty, p.Name)
		return
	}
	if len(p.Recipe) == 0 {
		// Only producers create recipe-less products from nothing.
		t.logf(simlog.LevelDebug, "%s cannot build %s: no recipe",
			t.Agent.DisplayName(), p.Name)
		return
	}

	// Merge duplicate recipe entries, preserving recipe order.
	merged := make([]catalog.Component, 0, len(p.Recipe))
	index := make(map[int]int, len(p.Recipe))
	for _, c := range p.Recipe {
		if at, ok := index[c.Product.ID]; ok {
			merged[at].Quantity += c.Quantity
			continue
		}
		index[c.Product.ID] = len(merged)
		merged = append(merged, c)
	}

	// Cover every component shortfall with a buy order.
	var pending []*market.Order
	for _, c := range merged {
		need := c.Quantity * qty
		have := t.Agent.StockOf(c.Product.ID)
		if have >= need {
			continue
		}
		price := p.ComponentUnitPrice(c)
		pending = append(pending, t.submitBuy(c.Product, need-have, price))
	}

	// Bounded waits, one order at a time. Fill status is received but
	// not re-checked before building; stock decides what gets built.
	for _, o := range pending {
		_ = o.AwaitFill(t.timeout(), t.Stop)
	}

	buildable := qty
	for _, c := range merged {
		if can := t.Agent.StockOf(c.Product.ID) / c.Quantity; can < buildable {
			buildable = can
		}
	}
	if buildable <= 0 {
		t.logf(simlog.LevelDebug, "%s could not build any %s", t.Agent.DisplayName(), p.Name)
		return
	}

	for _, c := range merged {
		t.Agent.RemoveStock(c.Product.ID, c.Quantity*buildable)
	}
	t.Agent.AddStock(p.ID, buildable)
	t.logf(simlog.LevelInfo, "%s built %d of %d units of %s",
		t.Agent.DisplayName(), buildable, qty, p.Name)
}

// Sell offers min(qty, stock) units at the agent's willingness-to-accept
// limit — the reference price marked down by the tolerance — topping a
// shortfall up with Build first. Selling zero units is a silent no-op.
// Stock leaves the agent at settlement time, not at submission.
func (t *Trader) Sell(p *catalog.Product, qty int) *market.Order {
	if qty <= 0 {
		return nil
	}
	have := t.Agent.StockOf(p.ID)
	if have < qty {
		t.Build(p, qty-have)
		have = t.Agent.StockOf(p.ID)
	}
	sellQty := qty
	if have < sellQty {
		sellQty = have
	}
	if sellQty <= 0 {
		return nil
	}
	price := p.ReferencePrice * (1 - t.Agent.Tolerance)
	o := market.NewOrder(market.SideSell, t.Agent, p, sellQty, price)
	t.Engine.Submit(o)
	return o
}
