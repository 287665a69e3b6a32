package sim

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/talgya/commodity-sim/internal/catalog"
)

// agentFeed mirrors one agent feed entry:
//
//	{"name": "woody", "role": "producer", "priceTolerance": 0.1,
//	 "activities": [{"type": "sell", "product": "wood", "min": 5, "max": 10}]}
//
// balance is optional; agents default to an unbounded balance.
type agentFeed struct {
	Name           string         `json:"name"`
	Role           string         `json:"role"`
	PriceTolerance float64        `json:"priceTolerance"`
	Balance        *float64       `json:"balance"`
	Activities     []activityFeed `json:"activities"`
}

type activityFeed struct {
	Type    string `json:"type"`
	Product string `json:"product"`
	Min     int    `json:"min"`
	Max     int    `json:"max"`
}

// LoadAgents reads an agent feed file and resolves it against the
// catalog. Every failure is fatal: unresolvable products or malformed
// activities must never surface mid-round.
func LoadAgents(path string, cat *catalog.Catalog) ([]*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents: %w", err)
	}
	return ParseAgents(data, cat)
}

// ParseAgents builds agents from raw feed JSON.
func ParseAgents(data []byte, cat *catalog.Catalog) ([]*Agent, error) {
	var feed []agentFeed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("parse agents: %w", err)
	}
	if len(feed) == 0 {
		return nil, fmt.Errorf("parse agents: no agents in feed")
	}

	agents := make([]*Agent, 0, len(feed))
	for _, f := range feed {
		if f.Name == "" {
			return nil, fmt.Errorf("agent without a name")
		}
		role, err := RoleFromName(f.Role)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", f.Name, err)
		}
		if f.PriceTolerance < 0 || f.PriceTolerance >= 1 {
			return nil, fmt.Errorf("agent %q: price tolerance %v outside [0,1)", f.Name, f.PriceTolerance)
		}

		a := NewAgent(f.Name, role, f.PriceTolerance)
		if f.Balance != nil {
			a.SetBalance(*f.Balance)
		}
		for i, af := range f.Activities {
			verb, err := VerbFromName(af.Type)
			if err != nil {
				return nil, fmt.Errorf("agent %q activity %d: %w", f.Name, i, err)
			}
			product, ok := cat.ByName(af.Product)
			if !ok {
				return nil, fmt.Errorf("agent %q activity %d: unknown product %q", f.Name, i, af.Product)
			}
			if af.Min < 0 || af.Max < af.Min {
				return nil, fmt.Errorf("agent %q activity %d: bad quantity range [%d,%d)", f.Name, i, af.Min, af.Max)
			}
			a.Activities = append(a.Activities, Activity{
				Verb:    verb,
				Product: product,
				Min:     af.Min,
				Max:     af.Max,
			})
		}
		agents = append(agents, a)
	}
	return agents, nil
}
