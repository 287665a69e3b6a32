package sim

import "sync"

// Barrier keeps the agent goroutines and the matching engine in lockstep
// rounds. It replaces per-round latch objects with a single monotonic
// round counter under one condition variable, so a goroutine can never
// observe a stale round signal: waiters compare against the counter, and
// the counter only moves forward.
//
// A round advances when every registered agent has called AgentDone and
// the engine has reported quiescence more recently than any order
// submission. Finish converts every blocked wait into a prompt return.
type Barrier struct {
	mu   sync.Mutex
	cond *sync.Cond

	agents   int // currently registered agents
	loaded   int // agents past one-time registration
	round    int // current round, 0 before the first StartRound
	done     int // agents finished in the current round
	quiet    bool
	finished bool

	stop chan struct{} // closed by Finish
}

// NewBarrier creates a barrier expecting the given number of agents.
func NewBarrier(agents int) *Barrier {
	b := &Barrier{
		agents: agents,
		stop:   make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// AgentLoaded marks one agent's one-time registration as complete.
func (b *Barrier) AgentLoaded() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaded++
	b.cond.Broadcast()
}

// WaitAllLoaded blocks until every agent has registered. This gate opens
// once and never closes.
func (b *Barrier) WaitAllLoaded() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.loaded < b.agents && !b.finished {
		b.cond.Wait()
	}
}

// StartRound releases every agent waiting for round n and re-arms the
// per-round state. The re-arm happens under the same lock the waiters
// use, so no straggler from round n-1 can observe a half-reset round.
func (b *Barrier) StartRound(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.round = n
	b.done = 0
	b.quiet = false
	b.cond.Broadcast()
}

// WaitRoundStart blocks until round n (or a later one) starts. Returns
// false when the simulation finished instead.
func (b *Barrier) WaitRoundStart(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.round < n && !b.finished {
		b.cond.Wait()
	}
	return !b.finished
}

// AgentDone is called once per agent when its round activities complete.
func (b *Barrier) AgentDone() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done++
	b.cond.Broadcast()
}

// Depart removes an agent from the active set; the round no longer waits
// for it. Used when an agent leaves under non-shutdown conditions.
func (b *Barrier) Depart() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents--
	b.cond.Broadcast()
}

// MarketBusy clears the quiescence signal; new orders arrived since the
// engine last went idle.
func (b *Barrier) MarketBusy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quiet = false
}

// MarketQuiescent records that the engine saw no new orders for a full
// poll interval.
func (b *Barrier) MarketQuiescent() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quiet = true
	b.cond.Broadcast()
}

// AdvanceWhenReady blocks the orchestrator until every registered agent
// finished the round and the market is quiescent, or until Finish.
func (b *Barrier) AdvanceWhenReady() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !(b.done >= b.agents && b.quiet) && !b.finished {
		b.cond.Wait()
	}
}

// Finish flips the global finished flag. Every blocked wait returns
// promptly, and waits observed after this point are graceful shutdown,
// not errors.
func (b *Barrier) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return
	}
	b.finished = true
	close(b.stop)
	b.cond.Broadcast()
}

// Finished returns a channel closed when the simulation finishes; order
// waits select on it so shutdown interrupts them promptly.
func (b *Barrier) Finished() <-chan struct{} {
	return b.stop
}

// IsFinished reports whether Finish has been called.
func (b *Barrier) IsFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

// Registered returns the current number of active agents.
func (b *Barrier) Registered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agents
}
