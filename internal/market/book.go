package market

import (
	"github.com/igrmk/treemap/v2"
)

// bookSide holds one side of a product's book: a price-sorted tree of
// levels, each level a FIFO queue of orders at that price. The tree's
// comparator puts the best price first — highest for buys, lowest for
// sells. Equal-priced orders match in submission order.
type bookSide struct {
	levels *treemap.TreeMap[float64, []*Order]
}

func newBookSide(bestFirst func(a, b float64) bool) *bookSide {
	return &bookSide{levels: treemap.NewWithKeyCompare[float64, []*Order](bestFirst)}
}

func (s *bookSide) add(o *Order) {
	queue, _ := s.levels.Get(o.Price)
	s.levels.Set(o.Price, append(queue, o))
}

func (s *bookSide) empty() bool {
	return s.levels.Len() == 0
}

// best returns the head order of the best price level. The book never
// holds empty levels, so a non-empty side always has a best order.
func (s *bookSide) best() *Order {
	it := s.levels.Iterator()
	return it.Value()[0]
}

// dropBest removes the head order of the best price level, pruning the
// level when it empties.
func (s *bookSide) dropBest() {
	it := s.levels.Iterator()
	price, queue := it.Key(), it.Value()
	if len(queue) <= 1 {
		s.levels.Del(price)
		return
	}
	s.levels.Set(price, queue[1:])
}

func (s *bookSide) size() int {
	n := 0
	for it := s.levels.Iterator(); it.Valid(); it.Next() {
		n += len(it.Value())
	}
	return n
}

// book is the two-sided order book for a single product.
type book struct {
	buys  *bookSide
	sells *bookSide
}

func newBook() *book {
	return &book{
		buys:  newBookSide(func(a, b float64) bool { return a > b }),
		sells: newBookSide(func(a, b float64) bool { return a < b }),
	}
}

func (b *book) side(s Side) *bookSide {
	if s == SideBuy {
		return b.buys
	}
	return b.sells
}

// crossed reports whether the best buy and sell prices overlap.
func (b *book) crossed() bool {
	return !b.buys.empty() && !b.sells.empty() &&
		b.buys.best().Price >= b.sells.best().Price
}
