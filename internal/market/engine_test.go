package market

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/talgya/commodity-sim/internal/catalog"
)

// stubParty is a minimal Party for engine tests.
type stubParty struct {
	name string

	mu      sync.Mutex
	stock   map[int]int
	balance float64
}

func newStubParty(name string) *stubParty {
	return &stubParty{name: name, stock: make(map[int]int)}
}

func (p *stubParty) DisplayName() string { return p.name }

func (p *stubParty) AddStock(productID, qty int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stock[productID] += qty
}

func (p *stubParty) RemoveStock(productID, qty int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if have := p.stock[productID]; qty > have {
		qty = have
	}
	p.stock[productID] -= qty
	return qty
}

func (p *stubParty) Credit(amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance += amount
}

func (p *stubParty) Debit(amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance -= amount
}

func (p *stubParty) stockOf(productID int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stock[productID]
}

func (p *stubParty) bal() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(`[{"id": 1, "name": "wood", "referencePrice": 10}]`))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func wood(t *testing.T, cat *catalog.Catalog) *catalog.Product {
	t.Helper()
	p, ok := cat.ByID(1)
	if !ok {
		t.Fatal("wood missing from catalog")
	}
	return p
}

// Full-cross scenario: buy 5 @ 12 against sell 5 @ 10 settles at two
// prices — buyer pays 60, seller receives 50 — and both orders leave
// their books.
func TestFullCrossTwoPriceSettlement(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)

	buyer := newStubParty("buyer")
	seller := newStubParty("seller")
	seller.AddStock(p.ID, 5)

	buy := NewOrder(SideBuy, buyer, p, 5, 12)
	sell := NewOrder(SideSell, seller, p, 5, 10)
	eng.Submit(buy)
	eng.Submit(sell)
	eng.MatchNow()

	if got := buyer.stockOf(p.ID); got != 5 {
		t.Errorf("buyer stock = %d, want 5", got)
	}
	if got := seller.stockOf(p.ID); got != 0 {
		t.Errorf("seller stock = %d, want 0", got)
	}
	if got := buyer.bal(); got != -60 {
		t.Errorf("buyer balance = %v, want -60", got)
	}
	if got := seller.bal(); got != 50 {
		t.Errorf("seller balance = %v, want 50", got)
	}
	if buy.Remaining() != 0 || sell.Remaining() != 0 {
		t.Errorf("remaining = %d/%d, want 0/0", buy.Remaining(), sell.Remaining())
	}
	if eng.Depth(p.ID, SideBuy) != 0 || eng.Depth(p.ID, SideSell) != 0 {
		t.Error("filled orders left resting in the book")
	}
}

// No trade may execute when the best buy price is below the best sell
// price.
func TestNoTradeBelowAsk(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)

	buyer := newStubParty("buyer")
	seller := newStubParty("seller")
	seller.AddStock(p.ID, 5)

	eng.Submit(NewOrder(SideBuy, buyer, p, 5, 9))
	eng.Submit(NewOrder(SideSell, seller, p, 5, 10))
	eng.MatchNow()

	if got := buyer.stockOf(p.ID); got != 0 {
		t.Errorf("buyer stock = %d, want 0", got)
	}
	if eng.Depth(p.ID, SideBuy) != 1 || eng.Depth(p.ID, SideSell) != 1 {
		t.Error("uncrossed orders should keep resting")
	}
}

// A partial fill leaves the remainder resting for future rounds; the
// order is never removed until remaining reaches zero.
func TestPartialFillRests(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)

	buyer := newStubParty("buyer")
	seller := newStubParty("seller")
	seller.AddStock(p.ID, 3)

	buy := NewOrder(SideBuy, buyer, p, 10, 12)
	eng.Submit(buy)
	eng.Submit(NewOrder(SideSell, seller, p, 3, 10))
	eng.MatchNow()

	if got := buy.Remaining(); got != 7 {
		t.Fatalf("buy remaining = %d, want 7", got)
	}
	if got := buy.FilledQty(); got != 3 {
		t.Fatalf("buy filled = %d, want 3", got)
	}
	if eng.Depth(p.ID, SideBuy) != 1 {
		t.Error("partially filled buy should keep resting")
	}
	if eng.Depth(p.ID, SideSell) != 0 {
		t.Error("filled sell should be removed")
	}

	// A later counterpart completes the remainder.
	seller.AddStock(p.ID, 7)
	eng.Submit(NewOrder(SideSell, seller, p, 7, 11))
	eng.MatchNow()

	if got := buy.Remaining(); got != 0 {
		t.Errorf("buy remaining after second match = %d, want 0", got)
	}
	select {
	case <-buy.Done():
	default:
		t.Error("completion signal not released on full fill")
	}
}

// Trades execute strictly in price priority: the best-priced sell
// matches first regardless of submission order.
func TestPricePriority(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)

	var trades []Trade
	eng.OnTrade = func(tr Trade) { trades = append(trades, tr) }

	buyer := newStubParty("buyer")
	expensive := newStubParty("expensive")
	cheap := newStubParty("cheap")
	expensive.AddStock(p.ID, 5)
	cheap.AddStock(p.ID, 5)

	eng.Submit(NewOrder(SideSell, expensive, p, 5, 11))
	eng.Submit(NewOrder(SideSell, cheap, p, 5, 9))
	eng.Submit(NewOrder(SideBuy, buyer, p, 5, 12))
	eng.MatchNow()

	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if trades[0].Seller != cheap {
		t.Errorf("traded with %s, want the cheapest seller", trades[0].Seller.DisplayName())
	}
	if trades[0].SellPrice != 9 || trades[0].BuyPrice != 12 {
		t.Errorf("trade prices = %v/%v, want 12/9", trades[0].BuyPrice, trades[0].SellPrice)
	}
	for _, tr := range trades {
		if tr.BuyPrice < tr.SellPrice {
			t.Errorf("price-priority violated: buy %v < sell %v", tr.BuyPrice, tr.SellPrice)
		}
	}
}

// Equal-priced orders match in submission order.
func TestEqualPriceFIFO(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)

	var trades []Trade
	eng.OnTrade = func(tr Trade) { trades = append(trades, tr) }

	buyer := newStubParty("buyer")
	first := newStubParty("first")
	second := newStubParty("second")
	first.AddStock(p.ID, 5)
	second.AddStock(p.ID, 5)

	eng.Submit(NewOrder(SideSell, first, p, 5, 10))
	eng.Submit(NewOrder(SideSell, second, p, 5, 10))
	eng.Submit(NewOrder(SideBuy, buyer, p, 3, 10))
	eng.MatchNow()

	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if trades[0].Seller != first {
		t.Error("equal-priced sells must match oldest first")
	}
}

// Stock conservation: across any sequence of trades, every unit the
// buyers gained left a seller.
func TestStockConservation(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)

	parties := make([]*stubParty, 6)
	total := 0
	for i := range parties {
		parties[i] = newStubParty(fmt.Sprintf("p%d", i))
	}
	for i, party := range parties[:3] {
		qty := 4 + i*3
		party.AddStock(p.ID, qty)
		total += qty
		eng.Submit(NewOrder(SideSell, party, p, qty, float64(8+i)))
	}
	for i, party := range parties[3:] {
		eng.Submit(NewOrder(SideBuy, party, p, 5, float64(9+i)))
	}
	eng.MatchNow()

	after := 0
	for _, party := range parties {
		after += party.stockOf(p.ID)
	}
	if after != total {
		t.Errorf("total stock after matching = %d, want %d", after, total)
	}
}

func TestAwaitFill(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)

	buyer := newStubParty("buyer")
	seller := newStubParty("seller")
	seller.AddStock(p.ID, 20)

	// Nothing filled: the wait times out.
	lonely := NewOrder(SideBuy, buyer, p, 5, 1)
	eng.Submit(lonely)
	eng.MatchNow()
	if got := lonely.AwaitFill(10*time.Millisecond, nil); got != WaitTimedOut {
		t.Errorf("lonely order wait = %v, want %v", got, WaitTimedOut)
	}

	// Partially filled, then timed out.
	partial := NewOrder(SideBuy, buyer, p, 10, 10)
	eng.Submit(partial)
	eng.Submit(NewOrder(SideSell, seller, p, 4, 10))
	eng.MatchNow()
	if got := partial.AwaitFill(10*time.Millisecond, nil); got != WaitPartial {
		t.Errorf("partial order wait = %v, want %v", got, WaitPartial)
	}

	// Fully filled while waiting.
	full := NewOrder(SideBuy, buyer, p, 5, 10)
	eng.Submit(full)
	go func() {
		time.Sleep(5 * time.Millisecond)
		eng.Submit(NewOrder(SideSell, seller, p, 5, 10))
		eng.MatchNow()
	}()
	if got := full.AwaitFill(time.Second, nil); got != WaitFilled {
		t.Errorf("filled order wait = %v, want %v", got, WaitFilled)
	}

	// A closed stop channel converts the wait into a prompt return.
	stopped := NewOrder(SideBuy, buyer, p, 5, 1)
	eng.Submit(stopped)
	stop := make(chan struct{})
	close(stop)
	start := time.Now()
	if got := stopped.AwaitFill(time.Minute, stop); got != WaitTimedOut {
		t.Errorf("stopped wait = %v, want %v", got, WaitTimedOut)
	}
	if time.Since(start) > time.Second {
		t.Error("stopped wait did not return promptly")
	}
}

// fakeSync records engine activity signals.
type fakeSync struct {
	mu    sync.Mutex
	busy  int
	quiet int
}

func (f *fakeSync) MarketBusy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy++
}

func (f *fakeSync) MarketQuiescent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quiet++
}

func (f *fakeSync) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy, f.quiet
}

// The engine loop signals quiescence once a full poll interval passes
// with no new orders, and matches when orders do arrive.
func TestRunQuiescence(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)
	eng.Poll = 5 * time.Millisecond

	fs := &fakeSync{}
	eng.Sync = fs

	stop := make(chan struct{})
	go eng.Run(stop)
	defer close(stop)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, quiet := fs.counts(); quiet > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("engine never signaled quiescence")
		}
		time.Sleep(time.Millisecond)
	}

	buyer := newStubParty("buyer")
	seller := newStubParty("seller")
	seller.AddStock(p.ID, 5)
	buy := NewOrder(SideBuy, buyer, p, 5, 12)
	eng.Submit(buy)
	eng.Submit(NewOrder(SideSell, seller, p, 5, 10))

	if busy, _ := fs.counts(); busy < 2 {
		t.Errorf("MarketBusy fired %d times, want one per submit", busy)
	}
	if got := buy.AwaitFill(2*time.Second, nil); got != WaitFilled {
		t.Errorf("background matching wait = %v, want %v", got, WaitFilled)
	}
}

// A seller whose stock was consumed between submission and settlement
// still delivers in full; the shortfall is clamped at the seller and
// surfaced as a warning so the imbalance stays observable.
func TestSettlementWarnsOnShortSeller(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	buyer := newStubParty("buyer")
	seller := newStubParty("seller")
	seller.AddStock(p.ID, 3) // resting sell will promise 5

	eng.Submit(NewOrder(SideSell, seller, p, 5, 10))
	eng.Submit(NewOrder(SideBuy, buyer, p, 5, 12))
	eng.MatchNow()

	if got := buyer.stockOf(p.ID); got != 5 {
		t.Errorf("buyer stock = %d, want the full promised 5", got)
	}
	if got := seller.stockOf(p.ID); got != 0 {
		t.Errorf("seller stock = %d, want 0", got)
	}
	if !strings.Contains(buf.String(), "seller short at settlement") {
		t.Error("short delivery was not warned about")
	}
}

// gatedSync parks inside MarketQuiescent until released, exposing the
// window between the engine's idle check and the signal's completion.
type gatedSync struct {
	entered chan struct{}
	release chan struct{}

	mu   sync.Mutex
	busy int
}

func newGatedSync() *gatedSync {
	return &gatedSync{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (g *gatedSync) MarketBusy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.busy++
}

func (g *gatedSync) MarketQuiescent() {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
}

func (g *gatedSync) busyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

// An order submission can never interleave with an in-flight quiescence
// signal: the idle check and the signal run as one step against Submit,
// so the busy signal for a new order is ordered strictly after any
// quiescent signal already underway. Without that ordering a round
// could advance past an order that never got matched.
func TestSubmitOrderedWithQuiescence(t *testing.T) {
	cat := testCatalog(t)
	p := wood(t, cat)
	eng := NewEngine(cat)
	eng.Poll = 2 * time.Millisecond

	gs := newGatedSync()
	eng.Sync = gs

	stop := make(chan struct{})
	defer close(stop)
	go eng.Run(stop)

	// Park the engine inside its quiescence signal.
	select {
	case <-gs.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("engine never reached the quiescence signal")
	}

	// A submit racing the parked signal must block until it completes.
	buyer := newStubParty("buyer")
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		eng.Submit(NewOrder(SideBuy, buyer, p, 5, 12))
	}()

	select {
	case <-submitted:
		t.Fatal("submission completed while the quiescence signal was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	if got := gs.busyCount(); got != 0 {
		t.Fatalf("busy signaled %d times during an in-flight quiescent signal", got)
	}

	close(gs.release)
	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never completed after the signal returned")
	}
	if got := gs.busyCount(); got != 1 {
		t.Errorf("busy signaled %d times after submission, want 1", got)
	}
}
