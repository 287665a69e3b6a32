package sim

import (
	"log/slog"
	"math/rand"
)

// Execute runs one activity: draw a quantity uniformly from [Min, Max)
// and dispatch to the matching verb.
func (t *Trader) Execute(act Activity, rng *rand.Rand) {
	qty := act.Min
	if act.Max > act.Min {
		qty += rng.Intn(act.Max - act.Min)
	}
	switch act.Verb {
	case VerbBuy:
		t.Buy(act.Product, qty)
	case VerbSell:
		t.Sell(act.Product, qty)
	case VerbBuild:
		t.Build(act.Product, qty)
	case VerbConsume:
		t.Consume(act.Product, qty)
	}
}

// RunAgent is the per-agent goroutine body: register once, then run the
// agent's activity list every round in configured order until the simulation
// finishes. Activity order defines priority; no re-ordering happens
// here.
//
// quit may be nil. Closing it while the simulation is still running is
// an agent-departure event: the agent is deregistered from the barrier
// and the departure is logged. Closing it after Finish is ordinary
// shutdown and is swallowed.
func RunAgent(t *Trader, b *Barrier, rng *rand.Rand, quit <-chan struct{}) {
	b.AgentLoaded()

	for round := 1; ; round++ {
		if !b.WaitRoundStart(round) {
			return // graceful shutdown
		}
		for _, act := range t.Agent.Activities {
			if departed(quit) {
				if !b.IsFinished() {
					slog.Warn("agent departed mid-round",
						"agent", t.Agent.Name, "round", round)
					b.Depart()
					if t.OnDepart != nil {
						t.OnDepart(t.Agent)
					}
				}
				return
			}
			t.Execute(act, rng)
		}
		b.AgentDone()
	}
}

func departed(quit <-chan struct{}) bool {
	if quit == nil {
		return false
	}
	select {
	case <-quit:
		return true
	default:
		return false
	}
}
