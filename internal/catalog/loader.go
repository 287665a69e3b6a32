package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// productFeed mirrors one catalog feed entry:
//
//	{"id": 2, "name": "chair", "referencePrice": 50,
//	 "components": [{"id": 1, "quantity": 4}]}
type productFeed struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	ReferencePrice float64         `json:"referencePrice"`
	Components     []componentFeed `json:"components"`
}

type componentFeed struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

// Load reads a catalog feed file and builds the lookup table.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw feed JSON.
func Parse(data []byte) (*Catalog, error) {
	var feed []productFeed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(feed) == 0 {
		return nil, fmt.Errorf("parse catalog: no products in feed")
	}
	return build(feed)
}
