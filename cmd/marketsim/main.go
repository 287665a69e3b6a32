// Command marketsim runs a multi-agent commodity economy simulation:
// producers, manufacturers and consumers trading catalog products in
// synchronized rounds against a central matching engine.
package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/talgya/commodity-sim/internal/catalog"
	"github.com/talgya/commodity-sim/internal/history"
	"github.com/talgya/commodity-sim/internal/sim"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	catalogPath := flag.String("catalog", "data/catalog.json", "catalog feed file")
	agentsPath := flag.String("agents", "data/agents.json", "agent feed file")
	rounds := flag.Int("rounds", envInt("MARKETSIM_ROUNDS", 200), "number of rounds to run")
	poll := flag.Duration("poll", 100*time.Millisecond, "engine poll interval")
	timeout := flag.Duration("timeout", 100*time.Millisecond, "per-order wait timeout")
	seed := flag.Int64("seed", 42, "quantity draw seed")
	flag.Parse()

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		slog.Error("failed to load catalog", "path", *catalogPath, "error", err)
		os.Exit(1)
	}
	slog.Info("catalog loaded", "path", *catalogPath, "products", cat.Len())

	agents, err := sim.LoadAgents(*agentsPath, cat)
	if err != nil {
		slog.Error("failed to load agents", "path", *agentsPath, "error", err)
		os.Exit(1)
	}
	slog.Info("agents loaded", "path", *agentsPath, "agents", len(agents))

	ledger, err := history.Open()
	if err != nil {
		slog.Error("failed to open history ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	s := sim.NewSimulation(cat, agents, ledger, sim.Config{
		Rounds:      *rounds,
		Poll:        *poll,
		WaitTimeout: *timeout,
		Seed:        *seed,
	})
	s.Run()

	for _, a := range agents {
		slog.Info("final state", "agent", a.DisplayName(), "stock", stockNames(cat, a.Stock()))
	}
}

// envInt lets the environment override a flag default.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func stockNames(cat *catalog.Catalog, stock map[int]int) map[string]int {
	out := make(map[string]int, len(stock))
	for id, qty := range stock {
		if p, ok := cat.ByID(id); ok {
			out[p.Name] = qty
		}
	}
	return out
}
