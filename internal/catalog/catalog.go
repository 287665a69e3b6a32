// Package catalog provides the immutable product table shared by every
// agent and the matching engine. The catalog is loaded once before any
// goroutine starts and never mutated afterwards.
package catalog

import (
	"fmt"
	"strings"
)

// Component is one entry of a product recipe: build one unit of the
// parent product from Quantity units of Product.
type Component struct {
	Product  *Product
	Quantity int
}

// Product is a catalog entry. Identity is the numeric ID. A product with
// an empty recipe is a raw material. Recipe graphs must be acyclic — the
// loader does not check this and the resolver will not terminate on a
// cyclic recipe.
type Product struct {
	ID             int
	Name           string
	ReferencePrice float64
	Recipe         []Component
}

// Raw reports whether the product has no recipe.
func (p *Product) Raw() bool { return len(p.Recipe) == 0 }

// recipeValue is the reference value of one unit's worth of components.
func (p *Product) recipeValue() float64 {
	total := 0.0
	for _, c := range p.Recipe {
		total += c.Product.ReferencePrice * float64(c.Quantity)
	}
	return total
}

// ComponentUnitPrice prices one unit of a recipe component in proportion
// to its share of the finished product's reference price. A component
// contributing half the recipe's reference value is bid at half the
// product's reference price, spread across its per-unit quantity. When
// every component has a zero reference price the share is undefined and
// the component's own reference price is used instead.
func (p *Product) ComponentUnitPrice(c Component) float64 {
	total := p.recipeValue()
	if total <= 0 || c.Quantity <= 0 {
		return c.Product.ReferencePrice
	}
	share := c.Product.ReferencePrice * float64(c.Quantity) / total
	return p.ReferencePrice * share / float64(c.Quantity)
}

// Catalog is a read-only lookup table of products.
type Catalog struct {
	products []*Product
	byID     map[int]*Product
	byName   map[string]*Product
}

// Products returns the catalog entries in feed order. Callers must not
// modify the returned slice.
func (c *Catalog) Products() []*Product { return c.products }

// ByID looks a product up by its numeric identity.
func (c *Catalog) ByID(id int) (*Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// ByName looks a product up by its case-insensitive name.
func (c *Catalog) ByName(name string) (*Product, bool) {
	p, ok := c.byName[strings.ToLower(name)]
	return p, ok
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }

// build assembles the lookup table and resolves recipe references.
// Every failure here is fatal: unresolvable references must never be
// discovered mid-trade.
func build(feed []productFeed) (*Catalog, error) {
	cat := &Catalog{
		byID:   make(map[int]*Product, len(feed)),
		byName: make(map[string]*Product, len(feed)),
	}

	for _, f := range feed {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			return nil, fmt.Errorf("product %d: empty name", f.ID)
		}
		if f.ReferencePrice < 0 {
			return nil, fmt.Errorf("product %q: negative reference price %v", name, f.ReferencePrice)
		}
		if _, dup := cat.byID[f.ID]; dup {
			return nil, fmt.Errorf("product %q: duplicate id %d", name, f.ID)
		}
		if _, dup := cat.byName[name]; dup {
			return nil, fmt.Errorf("duplicate product name %q", name)
		}
		p := &Product{
			ID:             f.ID,
			Name:           name,
			ReferencePrice: f.ReferencePrice,
		}
		cat.products = append(cat.products, p)
		cat.byID[p.ID] = p
		cat.byName[p.Name] = p
	}

	// Resolve components in a second pass so recipes may reference
	// products declared later in the feed.
	for i, f := range feed {
		p := cat.products[i]
		for _, cf := range f.Components {
			comp, ok := cat.byID[cf.ID]
			if !ok {
				return nil, fmt.Errorf("product %q: recipe references unknown product id %d", p.Name, cf.ID)
			}
			if cf.Quantity <= 0 {
				return nil, fmt.Errorf("product %q: component %q has non-positive quantity %d", p.Name, comp.Name, cf.Quantity)
			}
			if comp.ID == p.ID {
				return nil, fmt.Errorf("product %q: recipe references itself", p.Name)
			}
			p.Recipe = append(p.Recipe, Component{Product: comp, Quantity: cf.Quantity})
		}
	}

	return cat, nil
}
