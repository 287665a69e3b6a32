package sim

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/talgya/commodity-sim/internal/catalog"
	"github.com/talgya/commodity-sim/internal/history"
	"github.com/talgya/commodity-sim/internal/market"
	"github.com/talgya/commodity-sim/internal/simlog"
)

// Config holds the externally configured run parameters.
type Config struct {
	Rounds      int
	Poll        time.Duration // engine poll interval
	WaitTimeout time.Duration // per-order bounded wait
	Seed        int64
	Out         io.Writer // round report destination; os.Stdout when nil

	// Quit is handed to every agent goroutine. Closing it while the
	// simulation is still running makes the agents depart; the round
	// driver keeps going with whoever remains. May be nil.
	Quit <-chan struct{}
}

// Simulation wires the catalog, agents, engine, barrier and the log and
// history collaborators together. One explicit object passed by
// reference everywhere; nothing global.
type Simulation struct {
	Catalog *catalog.Catalog
	Agents  []*Agent
	Engine  *market.Engine
	Barrier *Barrier
	Sink    *simlog.Log
	Ledger  *history.Ledger // may be nil

	cfg Config

	mu       sync.Mutex
	departed []string
}

// NewSimulation assembles a simulation from loaded inputs.
func NewSimulation(cat *catalog.Catalog, agents []*Agent, ledger *history.Ledger, cfg Config) *Simulation {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	sink := simlog.New()
	barrier := NewBarrier(len(agents))

	engine := market.NewEngine(cat)
	engine.Poll = cfg.Poll
	engine.Sink = sink
	engine.Ledger = ledger
	engine.Sync = barrier

	return &Simulation{
		Catalog: cat,
		Agents:  agents,
		Engine:  engine,
		Barrier: barrier,
		Sink:    sink,
		Ledger:  ledger,
		cfg:     cfg,
	}
}

// Run drives the configured number of rounds and shuts everything down.
// It blocks until the last round's report has been printed.
func (s *Simulation) Run() {
	stop := s.Barrier.Finished()
	go s.Engine.Run(stop)

	for i, a := range s.Agents {
		trader := &Trader{
			Agent:       a,
			Engine:      s.Engine,
			Catalog:     s.Catalog,
			Sink:        s.Sink,
			WaitTimeout: s.cfg.WaitTimeout,
			Stop:        stop,
			OnDepart:    s.noteDeparture,
		}
		rng := rand.New(rand.NewSource(s.cfg.Seed + int64(i)))
		go RunAgent(trader, s.Barrier, rng, s.cfg.Quit)
	}

	s.Barrier.WaitAllLoaded()
	slog.Info("all agents loaded", "agents", len(s.Agents))

	for round := 1; round <= s.cfg.Rounds; round++ {
		s.Sink.SetRound(round)
		s.Engine.SetRound(round)
		slog.Info("round started", "round", round)

		s.Barrier.StartRound(round)
		s.Barrier.AdvanceWhenReady()
		if s.Barrier.IsFinished() {
			break
		}
		s.report(round)
	}

	s.Barrier.Finish()
	slog.Info("simulation finished", "rounds", s.cfg.Rounds,
		"departed", len(s.Departed()))
}

// noteDeparture records a non-shutdown agent departure so the round
// driver and the round report see it, not just the agent's own log line.
func (s *Simulation) noteDeparture(a *Agent) {
	s.mu.Lock()
	s.departed = append(s.departed, a.Name)
	s.mu.Unlock()
	s.Sink.Addf(simlog.LevelWarn, "%s departed; %d agents remain",
		a.DisplayName(), s.Barrier.Registered())
}

// Departed returns the names of agents that left mid-run.
func (s *Simulation) Departed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.departed))
	copy(out, s.departed)
	return out
}

// report prints the round's log followed by a per-product summary table
// and the agent balances.
func (s *Simulation) report(round int) {
	out := s.cfg.Out
	s.Sink.PrintRound(out, round)

	if s.Ledger != nil {
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Product", "Reference", "Desired Buy", "Bought", "Desired Sell", "Sold", "Price Hint"})
		for _, p := range s.Catalog.Products() {
			rec, err := s.Ledger.RecordFor(round, p.ID)
			if err != nil {
				continue
			}
			table.Append([]string{
				p.Name,
				humanize.Commaf(p.ReferencePrice),
				humanize.Comma(int64(rec.DesiredBuy)),
				humanize.Comma(int64(rec.Bought)),
				humanize.Comma(int64(rec.DesiredSell)),
				humanize.Comma(int64(rec.Sold)),
				humanize.Commaf(s.Ledger.PriceHint(p, round)),
			})
		}
		table.Render()
	}

	for _, a := range s.Agents {
		fmt.Fprintf(out, "\t%s: balance %s\n", a.DisplayName(), balanceString(a.Balance()))
	}
}

func balanceString(balance float64) string {
	if math.IsInf(balance, 1) {
		return "unbounded"
	}
	return humanize.Commaf(balance)
}
