// Package stats counts processed transactions by command and outcome.
package stats

import (
	"context"
	"sort"
	"sync"

	"github.com/efreitasn/stockserver/internal/domain"
)

// Counter is one (command, outcome) tally.
type Counter struct {
	Command string `json:"command"`
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

type counterKey struct {
	command domain.Command
	outcome domain.Outcome
}

// MemoryRecorder keeps counters in process memory.
type MemoryRecorder struct {
	mu     sync.Mutex
	counts map[counterKey]int64
	total  int64
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		counts: make(map[counterKey]int64),
	}
}

// Record implements service.Recorder.
func (m *MemoryRecorder) Record(_ context.Context, ev domain.TradeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[counterKey{ev.Command, ev.Outcome}]++
	m.total++
	return nil
}

// Total returns the number of recorded events.
func (m *MemoryRecorder) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Snapshot returns all counters sorted by command then outcome.
func (m *MemoryRecorder) Snapshot() []Counter {
	m.mu.Lock()
	result := make([]Counter, 0, len(m.counts))
	for k, n := range m.counts {
		result = append(result, Counter{Command: string(k.command), Outcome: string(k.outcome), Count: n})
	}
	m.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Command != result[j].Command {
			return result[i].Command < result[j].Command
		}
		return result[i].Outcome < result[j].Outcome
	})
	return result
}
