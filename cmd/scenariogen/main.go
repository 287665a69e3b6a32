// Command scenariogen emits catalog.json and agents.json scenario files
// for marketsim. Reference prices follow a smooth noise landscape so
// neighbouring product tiers price coherently, and recipes only ever
// reference lower product ids, which keeps the catalog acyclic by
// construction.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	opensimplex "github.com/ojrac/opensimplex-go"
)

type productOut struct {
	ID             int            `json:"id"`
	Name           string         `json:"name"`
	ReferencePrice float64        `json:"referencePrice"`
	Components     []componentOut `json:"components,omitempty"`
}

type componentOut struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

type agentOut struct {
	Name           string        `json:"name"`
	Role           string        `json:"role"`
	PriceTolerance float64       `json:"priceTolerance"`
	Activities     []activityOut `json:"activities"`
}

type activityOut struct {
	Type    string `json:"type"`
	Product string `json:"product"`
	Min     int    `json:"min"`
	Max     int    `json:"max"`
}

var rawNames = []string{
	"wood", "iron", "clay", "fabric", "grain", "stone", "leather", "copper",
}

var goodNames = []string{
	"chair", "table", "stove", "cart", "barrel", "plough", "loom", "bread",
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	slog.SetDefault(logger)

	seed := flag.Int64("seed", 42, "generation seed")
	raws := flag.Int("raws", 4, "number of raw materials")
	goods := flag.Int("goods", 4, "number of manufactured goods")
	agents := flag.Int("agents", 9, "number of agents")
	outDir := flag.String("out", "data", "output directory")
	flag.Parse()

	if *raws > len(rawNames) || *goods > len(goodNames) {
		slog.Error("not enough names for requested scenario size",
			"raws_max", len(rawNames), "goods_max", len(goodNames))
		os.Exit(1)
	}

	noise := opensimplex.NewNormalized(*seed)
	rng := rand.New(rand.NewSource(*seed))

	// Raw materials occupy ids 1..raws on a gentle price landscape.
	var products []productOut
	for i := 0; i < *raws; i++ {
		price := 5 + 20*noise.Eval2(float64(i)*0.7, 0)
		products = append(products, productOut{
			ID:             i + 1,
			Name:           rawNames[i],
			ReferencePrice: round2(price),
		})
	}

	// Manufactured goods reference only already-declared ids.
	for i := 0; i < *goods; i++ {
		id := *raws + i + 1
		nComponents := 1 + rng.Intn(2)
		seen := make(map[int]bool)
		var comps []componentOut
		value := 0.0
		for c := 0; c < nComponents; c++ {
			compID := 1 + rng.Intn(id-1)
			if seen[compID] {
				continue
			}
			seen[compID] = true
			qty := 1 + rng.Intn(5)
			comps = append(comps, componentOut{ID: compID, Quantity: qty})
			value += products[compID-1].ReferencePrice * float64(qty)
		}
		// Margin over component value drifts with the landscape.
		margin := 1.2 + noise.Eval2(float64(id)*0.7, 1)
		products = append(products, productOut{
			ID:             id,
			Name:           goodNames[i],
			ReferencePrice: round2(value * margin),
			Components:     comps,
		})
	}

	nRaws, nGoods := *raws, *goods
	var out []agentOut
	for i := 0; i < *agents; i++ {
		tolerance := round2(0.05 + 0.25*noise.Eval2(float64(i)*0.9, 2))
		switch i % 3 {
		case 0: // producer selling one raw material
			raw := products[i/3%nRaws]
			out = append(out, agentOut{
				Name:           fmt.Sprintf("%s-works-%d", raw.Name, i+1),
				Role:           "producer",
				PriceTolerance: tolerance,
				Activities: []activityOut{
					{Type: "sell", Product: raw.Name, Min: 5, Max: 15},
				},
			})
		case 1: // manufacturer building and selling one good
			good := products[nRaws+i/3%nGoods]
			out = append(out, agentOut{
				Name:           fmt.Sprintf("%s-factory-%d", good.Name, i+1),
				Role:           "manufacturer",
				PriceTolerance: tolerance,
				Activities: []activityOut{
					{Type: "build", Product: good.Name, Min: 2, Max: 6},
					{Type: "sell", Product: good.Name, Min: 1, Max: 4},
				},
			})
		default: // consumer buying and consuming one good
			good := products[nRaws+i/3%nGoods]
			out = append(out, agentOut{
				Name:           fmt.Sprintf("household-%d", i+1),
				Role:           "consumer",
				PriceTolerance: tolerance,
				Activities: []activityOut{
					{Type: "buy", Product: good.Name, Min: 1, Max: 4},
					{Type: "consume", Product: good.Name, Min: 1, Max: 3},
				},
			})
		}
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		slog.Error("failed to create output directory", "dir", *outDir, "error", err)
		os.Exit(1)
	}
	if err := writeJSON(filepath.Join(*outDir, "catalog.json"), products); err != nil {
		slog.Error("failed to write catalog", "error", err)
		os.Exit(1)
	}
	if err := writeJSON(filepath.Join(*outDir, "agents.json"), out); err != nil {
		slog.Error("failed to write agents", "error", err)
		os.Exit(1)
	}
	slog.Info("scenario written", "dir", *outDir,
		"products", len(products), "agents", len(out))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
