// Package history records per-round, per-product trade counters used by
// the price-adjustment heuristics. The core appends; reports and price
// hints read back. The ledger lives in an in-memory SQLite database and
// is discarded with the process.
package history

import (
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/commodity-sim/internal/catalog"
)

// Record is the accumulated counters for one product in one round.
type Record struct {
	Round       int `db:"round"`
	ProductID   int `db:"product_id"`
	DesiredBuy  int `db:"desired_buy"`
	DesiredSell int `db:"desired_sell"`
	Bought      int `db:"bought"`
	Sold        int `db:"sold"`
}

// Ledger is the append/read history collaborator.
type Ledger struct {
	mu   sync.Mutex
	conn *sqlx.DB
}

// Open creates a fresh in-memory ledger.
func Open() (*Ledger, error) {
	conn, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open history ledger: %w", err)
	}
	// The :memory: database vanishes if the pool opens a second
	// connection; pin it to one.
	conn.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS product_rounds (
		round        INTEGER NOT NULL,
		product_id   INTEGER NOT NULL,
		desired_buy  INTEGER NOT NULL DEFAULT 0,
		desired_sell INTEGER NOT NULL DEFAULT 0,
		bought       INTEGER NOT NULL DEFAULT 0,
		sold         INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (round, product_id)
	);`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate history ledger: %w", err)
	}
	return &Ledger{conn: conn}, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

const upsert = `
INSERT INTO product_rounds (round, product_id, desired_buy, desired_sell, bought, sold)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (round, product_id) DO UPDATE SET
	desired_buy  = desired_buy  + excluded.desired_buy,
	desired_sell = desired_sell + excluded.desired_sell,
	bought       = bought       + excluded.bought,
	sold         = sold         + excluded.sold`

// Append accumulates counters onto a (round, product) record.
func (l *Ledger) Append(round, productID, desiredBuy, desiredSell, bought, sold int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.conn.Exec(upsert, round, productID, desiredBuy, desiredSell, bought, sold); err != nil {
		return fmt.Errorf("append history record: %w", err)
	}
	return nil
}

// RecordFor returns the counters for a (round, product). A round with no
// activity yields a zero record, not an error.
func (l *Ledger) RecordFor(round, productID int) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var rec Record
	err := l.conn.Get(&rec,
		`SELECT round, product_id, desired_buy, desired_sell, bought, sold
		 FROM product_rounds WHERE round = ? AND product_id = ?`, round, productID)
	if err != nil {
		// No rows means no activity; report zeros.
		return Record{Round: round, ProductID: productID}, nil
	}
	return rec, nil
}

// Bought returns the quantity bought for a product in a round.
func (l *Ledger) Bought(round, productID int) int {
	rec, _ := l.RecordFor(round, productID)
	return rec.Bought
}

// Sold returns the quantity sold for a product in a round.
func (l *Ledger) Sold(round, productID int) int {
	rec, _ := l.RecordFor(round, productID)
	return rec.Sold
}

// DesiredBuy returns the quantity agents wanted to buy in a round.
func (l *Ledger) DesiredBuy(round, productID int) int {
	rec, _ := l.RecordFor(round, productID)
	return rec.DesiredBuy
}

// DesiredSell returns the quantity agents wanted to sell in a round.
func (l *Ledger) DesiredSell(round, productID int) int {
	rec, _ := l.RecordFor(round, productID)
	return rec.DesiredSell
}

// PriceHint derives a demand-pressure price for a product from one
// round's counters: the reference price scaled by desired-buy over
// desired-sell volume. A round with no recorded sell interest would
// divide by zero; the catalog reference price is returned instead.
func (l *Ledger) PriceHint(p *catalog.Product, round int) float64 {
	rec, err := l.RecordFor(round, p.ID)
	if err != nil || rec.DesiredSell == 0 || rec.DesiredBuy == 0 {
		return p.ReferencePrice
	}
	return p.ReferencePrice * float64(rec.DesiredBuy) / float64(rec.DesiredSell)
}
