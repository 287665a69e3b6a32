// Package simlog is the round-grouped event sink. The core only appends
// to it; the orchestrator reads a round back once the round has closed
// and renders it to the console.
package simlog

import (
	"fmt"
	"io"
	"sync"
)

// Level tags an appended message with a severity.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// Entry is one appended message.
type Entry struct {
	Level   Level
	Message string
}

// Log collects entries grouped by the round that was current when they
// were appended. Safe for concurrent append from agent goroutines and
// the engine goroutine.
type Log struct {
	mu     sync.Mutex
	round  int
	rounds map[int][]Entry
}

// New creates an empty log positioned at round 0 (pre-game).
func New() *Log {
	return &Log{rounds: make(map[int][]Entry)}
}

// SetRound moves the sink to a new round. Called by the orchestrator
// only, between rounds.
func (l *Log) SetRound(round int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.round = round
}

// Round returns the round messages are currently grouped under.
func (l *Log) Round() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.round
}

// Add appends a message to the current round.
func (l *Log) Add(level Level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rounds[l.round] = append(l.rounds[l.round], Entry{Level: level, Message: message})
}

// Addf appends a formatted message to the current round.
func (l *Log) Addf(level Level, format string, args ...any) {
	l.Add(level, fmt.Sprintf(format, args...))
}

// MessagesFor returns a copy of the entries recorded for a round.
func (l *Log) MessagesFor(round int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.rounds[round]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// PrintRound writes a round's messages to w, one indented line each.
func (l *Log) PrintRound(w io.Writer, round int) {
	fmt.Fprintf(w, "Round %d:\n", round)
	for _, e := range l.MessagesFor(round) {
		fmt.Fprintf(w, "\t[%s] %s\n", e.Level, e.Message)
	}
}
