// Copyright 2025 CascadeDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exchange

import (
	"sync/atomic"

	pbquery "github.com/cascadedb/cascade/pkg/pb/query"
	"go.uber.org/zap"
)

// ExecutionSummary accumulates the statistics one remote peer reported
// for one plan operator. Fields are atomics because the response writer
// on the coordinator reads them while the consumer goroutine is still
// folding responses in.
type ExecutionSummary struct {
	TimeProcessedNs atomic.Uint64
	NumProducedRows atomic.Uint64
	NumIterations   atomic.Uint64
	Concurrency     atomic.Uint64
}

// summaryTable keeps one executor-id -> summary map per source slot.
//
// The inited flag of a slot is kind of a lock for the shape of its map:
// the map is fully populated before the flag is stored true, and after
// that only the values of existing entries change. A reader that
// observes inited may therefore range over the map without holding
// anything; it only gets per-field consistency, not a point-in-time
// snapshot.
type summaryTable struct {
	inited []atomic.Bool
	slots  []map[string]*ExecutionSummary
	logger *zap.Logger
}

func newSummaryTable(sourceCount int, logger *zap.Logger) *summaryTable {
	return &summaryTable{
		inited: make([]atomic.Bool, sourceCount),
		slots:  make([]map[string]*ExecutionSummary, sourceCount),
		logger: logger,
	}
}

func (t *summaryTable) initSlot(summaries []*pbquery.ExecutionSummary, slot int) {
	m := make(map[string]*ExecutionSummary, len(summaries))
	for _, summary := range summaries {
		if summary.GetExecutorId() == "" {
			continue
		}
		s := &ExecutionSummary{}
		s.TimeProcessedNs.Store(summary.TimeProcessedNs)
		s.NumProducedRows.Store(summary.NumProducedRows)
		s.NumIterations.Store(summary.NumIterations)
		s.Concurrency.Store(summary.Concurrency)
		m[summary.ExecutorId] = s
	}
	t.slots[slot] = m
	// the map must be complete before the flag becomes visible
	t.inited[slot].Store(true)
}

// fold merges the summaries of one response into the given slot.
// Streaming responses are overlapping snapshots from a single peer, so
// every field is max-merged. Non-streaming responses contribute
// disjoint work, so the counters are summed and only the time keeps the
// high-water mark.
func (t *summaryTable) fold(summaries []*pbquery.ExecutionSummary, slot int, streaming bool) {
	if len(summaries) == 0 {
		return
	}
	if slot < 0 || slot >= len(t.slots) {
		t.logger.Warn("summary slot out of range, skip",
			zap.Int("slot", slot),
			zap.Int("source-count", len(t.slots)))
		return
	}
	if !t.inited[slot].Load() {
		t.initSlot(summaries, slot)
		return
	}

	m := t.slots[slot]
	for _, summary := range summaries {
		if summary.GetExecutorId() == "" {
			continue
		}
		current, ok := m[summary.ExecutorId]
		if !ok {
			t.logger.Warn("executor not found in execution summaries, this should not happen",
				zap.String("executor", summary.ExecutorId))
			continue
		}
		storeMax(&current.TimeProcessedNs, summary.TimeProcessedNs)
		if streaming {
			storeMax(&current.NumProducedRows, summary.NumProducedRows)
			storeMax(&current.NumIterations, summary.NumIterations)
			storeMax(&current.Concurrency, summary.Concurrency)
		} else {
			current.NumProducedRows.Add(summary.NumProducedRows)
			current.NumIterations.Add(summary.NumIterations)
			current.Concurrency.Add(summary.Concurrency)
		}
	}
}

// get returns the map of a slot, or false while nothing has been
// published for it yet.
func (t *summaryTable) get(slot int) (map[string]*ExecutionSummary, bool) {
	if slot < 0 || slot >= len(t.slots) {
		return nil, false
	}
	if !t.inited[slot].Load() {
		return nil, false
	}
	return t.slots[slot], true
}

func storeMax(v *atomic.Uint64, val uint64) {
	for {
		old := v.Load()
		if old >= val || v.CompareAndSwap(old, val) {
			return
		}
	}
}
