package market

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/commodity-sim/internal/catalog"
	"github.com/talgya/commodity-sim/internal/history"
	"github.com/talgya/commodity-sim/internal/simlog"
)

// DefaultPoll is how long the engine waits for new orders before either
// matching or declaring the round quiescent.
const DefaultPoll = 100 * time.Millisecond

// RoundSync receives the engine's activity signals. MarketBusy fires on
// every submitted order; MarketQuiescent fires when a full poll interval
// passes with no new orders.
type RoundSync interface {
	MarketBusy()
	MarketQuiescent()
}

// Trade is one settled match between a buy and a sell order. Settlement
// is two-price: the buyer pays Qty×BuyPrice, the seller receives
// Qty×SellPrice, and the spread between them is not conserved. That is a
// deliberate property of the market, not an accounting bug.
type Trade struct {
	ID        uuid.UUID
	Buyer     Party
	Seller    Party
	Product   *catalog.Product
	Qty       int
	BuyPrice  float64
	SellPrice float64
	Round     int
}

// Engine owns every product's order book and clears crossing orders on
// its own goroutine. Submit is safe to call from any goroutine.
//
// Configure the optional collaborators before calling Run, the same way
// the simulation wires its other systems at setup:
//
//	eng := market.NewEngine(cat)
//	eng.Sink = sink
//	eng.Ledger = ledger
//	eng.Sync = barrier
type Engine struct {
	Poll    time.Duration     // poll interval; DefaultPoll when zero
	Sink    *simlog.Log       // round-grouped trade log, may be nil
	Ledger  *history.Ledger   // trade counters, may be nil
	Sync    RoundSync         // round barrier hookup, may be nil
	OnTrade func(Trade)       // test/observer hook, may be nil

	catalog *catalog.Catalog

	mu    sync.Mutex
	books map[int]*book
	dirty bool
	round int

	kick chan struct{}
}

// NewEngine creates an engine for the given catalog.
func NewEngine(cat *catalog.Catalog) *Engine {
	return &Engine{
		catalog: cat,
		books:   make(map[int]*book),
		kick:    make(chan struct{}, 1),
	}
}

// SetRound tells the engine which round newly submitted orders and
// settled trades belong to. Called by the orchestrator between rounds.
func (e *Engine) SetRound(round int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round = round
}

// Submit adds an order to its product's book and marks the book dirty.
// The order is owned by the engine from here on.
func (e *Engine) Submit(o *Order) {
	e.mu.Lock()
	o.Round = e.round
	b, ok := e.books[o.Product.ID]
	if !ok {
		b = newBook()
		e.books[o.Product.ID] = b
	}
	b.side(o.Side).add(o)
	e.dirty = true
	round := e.round
	// The busy signal is raised under the book lock so it can never
	// interleave with the poll loop's idle check: an order either lands
	// before the check (and suppresses quiescence) or after the signal
	// (and clears it again).
	if e.Sync != nil {
		e.Sync.MarketBusy()
	}
	e.mu.Unlock()

	if e.Ledger != nil {
		qty := o.Remaining()
		if o.Side == SideBuy {
			e.recordHistory(round, o.Product.ID, qty, 0, 0, 0)
		} else {
			e.recordHistory(round, o.Product.ID, 0, qty, 0, 0)
		}
	}

	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run is the engine goroutine. It waits up to one poll interval for new
// orders; when some arrived it matches every product, and when none did
// it signals quiescence. Returns when stop is closed.
func (e *Engine) Run(stop <-chan struct{}) {
	poll := e.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	slog.Info("matching engine started", "poll", poll)
	for {
		select {
		case <-stop:
			slog.Info("matching engine stopped")
			return
		case <-e.kick:
			e.MatchNow()
		case <-time.After(poll):
			if e.quiesceIfIdle() {
				e.MatchNow()
			}
		}
	}
}

// quiesceIfIdle checks the dirty flag and, when no orders arrived since
// the last pass, signals quiescence before releasing the book lock.
// Holding e.mu across both keeps the check and the signal one atomic
// step against Submit, so a submission can never slip between them and
// leave a resting order behind an already-advancing round. Reports
// whether a matching pass is due instead.
func (e *Engine) quiesceIfIdle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dirty {
		return true
	}
	if e.Sync != nil {
		e.Sync.MarketQuiescent()
	}
	return false
}

// MatchNow runs one matching pass over every product immediately. Run
// calls this on the engine goroutine; tests may call it directly for a
// deterministic pass.
func (e *Engine) MatchNow() {
	e.mu.Lock()
	e.dirty = false
	var trades []Trade
	for pid, b := range e.books {
		product, ok := e.catalog.ByID(pid)
		if !ok {
			continue
		}
		trades = append(trades, e.matchProduct(product, b)...)
	}
	e.mu.Unlock()

	for _, t := range trades {
		e.publish(t)
	}
}

// matchProduct clears one product's book: while both sides rest orders
// and the best buy price covers the best sell price, trade the minimum
// of the two remaining quantities. Called with e.mu held.
func (e *Engine) matchProduct(product *catalog.Product, b *book) []Trade {
	var trades []Trade
	for b.crossed() {
		buy := b.buys.best()
		sell := b.sells.best()
		qty := min(buy.Remaining(), sell.Remaining())

		// Two-price settlement: each side trades at its own limit.
		buy.Issuer.Debit(float64(qty) * buy.Price)
		buy.Issuer.AddStock(product.ID, qty)
		sell.Issuer.Credit(float64(qty) * sell.Price)
		if removed := sell.Issuer.RemoveStock(product.ID, qty); removed < qty {
			// The seller's stock was consumed between submission and
			// settlement; the trade still delivers in full.
			slog.Warn("seller short at settlement",
				"seller", sell.Issuer.DisplayName(), "product", product.Name,
				"delivered", qty, "removed", removed)
		}

		if buy.fill(qty) {
			b.buys.dropBest()
		}
		if sell.fill(qty) {
			b.sells.dropBest()
		}

		trades = append(trades, Trade{
			ID:        uuid.New(),
			Buyer:     buy.Issuer,
			Seller:    sell.Issuer,
			Product:   product,
			Qty:       qty,
			BuyPrice:  buy.Price,
			SellPrice: sell.Price,
			Round:     e.round,
		})
	}
	return trades
}

// publish reports a settled trade to the collaborators. Runs outside the
// book lock.
func (e *Engine) publish(t Trade) {
	if e.Sink != nil {
		e.Sink.Addf(simlog.LevelInfo, "%s bought %d units of %s for %.2f from %s (seller received %.2f)",
			t.Buyer.DisplayName(), t.Qty, t.Product.Name, float64(t.Qty)*t.BuyPrice,
			t.Seller.DisplayName(), float64(t.Qty)*t.SellPrice)
	}
	e.recordHistory(t.Round, t.Product.ID, 0, 0, t.Qty, t.Qty)
	if e.OnTrade != nil {
		e.OnTrade(t)
	}
}

func (e *Engine) recordHistory(round, productID, desiredBuy, desiredSell, bought, sold int) {
	if e.Ledger == nil {
		return
	}
	if err := e.Ledger.Append(round, productID, desiredBuy, desiredSell, bought, sold); err != nil {
		slog.Warn("history append failed", "product", productID, "round", round, "error", err)
	}
}

// Depth returns how many orders rest on one side of a product's book.
func (e *Engine) Depth(productID int, side Side) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[productID]
	if !ok {
		return 0
	}
	return b.side(side).size()
}
