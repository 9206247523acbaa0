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
	"context"
	"testing"

	"github.com/cascadedb/cascade/pkg/common/cerr"
	"github.com/cascadedb/cascade/pkg/container/batch"
	"github.com/cascadedb/cascade/pkg/container/types"
	"github.com/cascadedb/cascade/pkg/container/vector"
	pbquery "github.com/cascadedb/cascade/pkg/pb/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptStep struct {
	result *FetchResult
	err    error
}

// scriptReader replays a fixed sequence of fetch outcomes, then EOF.
type scriptReader struct {
	streaming   bool
	sourceCount int
	steps       []scriptStep
	pos         int

	cancelCount int
	closeCount  int
	closeErr    error
	threads     int
	resets      int
}

func (r *scriptReader) Name() string     { return "script" }
func (r *scriptReader) SourceCount() int { return r.sourceCount }
func (r *scriptReader) Streaming() bool  { return r.streaming }
func (r *scriptReader) OutputSchema() []Attribute {
	return []Attribute{{Name: "a", Type: types.New(types.T_int64)}}
}

func (r *scriptReader) FetchNext(ctx context.Context) (*FetchResult, error) {
	if r.pos >= len(r.steps) {
		return &FetchResult{EOF: true}, nil
	}
	step := r.steps[r.pos]
	r.pos++
	return step.result, step.err
}

func (r *scriptReader) Cancel()      { r.cancelCount++ }
func (r *scriptReader) Close() error { r.closeCount++; return r.closeErr }

func (r *scriptReader) CollectNewThreadCount(cnt *int) { *cnt += r.threads }
func (r *scriptReader) ResetNewThreadCountCompute()    { r.resets++ }

func makeInt64Batch(vals ...int64) *batch.Batch {
	bat := batch.New([]string{"a"})
	vec := vector.NewVec(types.New(types.T_int64))
	vec.AppendInt64(vals...)
	bat.SetVector(0, vec)
	bat.SetRowCount(len(vals))
	return bat
}

func dataUnit(slot int, bats ...*batch.Batch) *FetchResult {
	var rows uint64
	for _, bat := range bats {
		rows += uint64(bat.RowCount())
	}
	return &FetchResult{
		Batches: bats,
		Slot:    slot,
		Detail:  DecodeDetail{Rows: rows, Bytes: 100},
	}
}

func statsUnit(slot int, summaries ...*pbquery.ExecutionSummary) *FetchResult {
	return &FetchResult{
		Resp:   &pbquery.QueryResponse{ExecutionSummaries: summaries},
		Slot:   slot,
		Detail: DecodeDetail{Rows: 0, Bytes: 10},
	}
}

func summary(executor string, rows uint64) *pbquery.ExecutionSummary {
	return &pbquery.ExecutionSummary{
		ExecutorId:      executor,
		TimeProcessedNs: rows * 7,
		NumProducedRows: rows,
		NumIterations:   1,
		Concurrency:     1,
	}
}

func TestNextDrainsQueueInOrder(t *testing.T) {
	reader := &scriptReader{
		sourceCount: 1,
		steps: []scriptStep{
			{result: dataUnit(0, makeInt64Batch(1, 2), makeInt64Batch(3))},
		},
	}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	ctx := context.Background()
	bat, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, bat.GetVector(0).Int64s())

	bat, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, bat.GetVector(0).Int64s())

	bat, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, bat)
}

// a zero-row unit before real data must be invisible to the consumer
func TestEmptyUnitIsRetried(t *testing.T) {
	reader := &scriptReader{
		sourceCount: 1,
		steps: []scriptStep{
			{result: statsUnit(0, summary("execA", 5))},
			{result: dataUnit(0, makeInt64Batch(1, 2, 3, 4, 5, 6, 7))},
		},
	}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	bat, err := s.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bat)
	assert.Equal(t, 7, bat.RowCount())
	assert.Equal(t, uint64(7), s.TotalRows())

	// the stats of the heartbeat unit still landed
	m, ok := s.ExecutionSummaries(0)
	require.True(t, ok)
	assert.Equal(t, uint64(5), m["execA"].NumProducedRows.Load())
}

func TestTotalRowsAccounting(t *testing.T) {
	reader := &scriptReader{
		sourceCount: 2,
		streaming:   true,
		steps: []scriptStep{
			{result: dataUnit(0, makeInt64Batch(1, 2, 3))},
			{result: statsUnit(1, summary("execA", 1))},
			{result: dataUnit(1, makeInt64Batch(4, 5))},
		},
	}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	ctx := context.Background()
	var got int
	for {
		bat, err := s.Next(ctx)
		require.NoError(t, err)
		if bat == nil {
			break
		}
		got += bat.RowCount()
	}
	assert.Equal(t, 5, got)
	assert.Equal(t, uint64(5), s.TotalRows())

	profiles := s.ConnectionProfiles()
	require.Len(t, profiles, 2)
	assert.Equal(t, uint64(1), profiles[0].Packets)
	assert.Equal(t, uint64(100), profiles[0].Bytes)
	// slot 1 saw the stats heartbeat and the data unit
	assert.Equal(t, uint64(2), profiles[1].Packets)
	assert.Equal(t, uint64(110), profiles[1].Bytes)
}

// scenario: single batch source, one data unit with stats, then EOF
func TestBatchSourceEndToEnd(t *testing.T) {
	unit := dataUnit(0, makeInt64Batch(1, 2, 3))
	unit.Resp = &pbquery.QueryResponse{
		ExecutionSummaries: []*pbquery.ExecutionSummary{summary("execA", 10)},
	}
	reader := &scriptReader{sourceCount: 1, steps: []scriptStep{{result: unit}}}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	ctx := context.Background()
	bat, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, bat.RowCount())

	bat, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, bat)

	m, ok := s.ExecutionSummaries(0)
	require.True(t, ok)
	assert.Equal(t, uint64(10), m["execA"].NumProducedRows.Load())
	assert.False(t, s.IsStreaming())
	assert.Equal(t, 1, s.SourceCount())
}

// scenario: duplicate streaming snapshots must not double-count
func TestStreamingDuplicateSnapshot(t *testing.T) {
	reader := &scriptReader{
		sourceCount: 2,
		streaming:   true,
		steps: []scriptStep{
			{result: statsUnit(0, summary("execA", 5))},
			{result: statsUnit(0, summary("execA", 5))},
			{result: dataUnit(0, makeInt64Batch(9))},
		},
	}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	bat, err := s.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bat)

	m, ok := s.ExecutionSummaries(0)
	require.True(t, ok)
	assert.Equal(t, uint64(5), m["execA"].NumProducedRows.Load())
}

// scenario: a remote application error aborts the stream
func TestRemoteErrorAbortsStream(t *testing.T) {
	failed := &FetchResult{
		Resp: &pbquery.QueryResponse{
			Error: &pbquery.QueryError{Code: 1, Message: "division by zero"},
		},
		Detail: DecodeDetail{Rows: 0},
	}
	reader := &scriptReader{
		sourceCount: 1,
		steps: []scriptStep{
			{result: dataUnit(0, makeInt64Batch(1, 2))},
			{result: failed},
		},
	}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	ctx := context.Background()
	bat, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, bat.RowCount())

	_, err = s.Next(ctx)
	require.Error(t, err)
	assert.True(t, cerr.IsCerrCode(err, cerr.ErrRemoteRun))
	assert.Equal(t, uint64(2), s.TotalRows())
}

func TestTransportErrorAbortsStream(t *testing.T) {
	reader := &scriptReader{
		sourceCount: 1,
		steps: []scriptStep{
			{err: cerr.NewBackendClosed(context.Background())},
		},
	}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	_, err := s.Next(context.Background())
	assert.True(t, cerr.IsCerrCode(err, cerr.ErrBackendClosed))
}

func TestOutOfRangeSlotDoesNotCrash(t *testing.T) {
	unit := dataUnit(5, makeInt64Batch(1))
	unit.Resp = &pbquery.QueryResponse{
		ExecutionSummaries: []*pbquery.ExecutionSummary{summary("execA", 1)},
	}
	reader := &scriptReader{sourceCount: 2, streaming: true, steps: []scriptStep{{result: unit}}}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	bat, err := s.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bat)
	assert.Equal(t, uint64(1), s.TotalRows())

	// nothing was published for the bogus slot
	_, ok := s.ExecutionSummaries(5)
	assert.False(t, ok)
	for _, p := range s.ConnectionProfiles() {
		assert.Equal(t, uint64(0), p.Packets)
	}
}

func TestCancelForwardsOnlyKill(t *testing.T) {
	reader := &scriptReader{sourceCount: 1}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	s.Cancel(false)
	assert.Equal(t, 0, reader.cancelCount)
	s.Cancel(true)
	assert.Equal(t, 1, reader.cancelCount)
}

func TestCloseIsIdempotentAndSwallowsErrors(t *testing.T) {
	reader := &scriptReader{
		sourceCount: 1,
		closeErr:    cerr.NewInternal(context.Background(), "boom"),
	}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)

	s.Close()
	s.Close()
	assert.Equal(t, 1, reader.closeCount)
}

func TestHeaderCarriesSchema(t *testing.T) {
	reader := &scriptReader{sourceCount: 1}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	header := s.Header()
	require.Equal(t, 1, header.VectorCount())
	assert.Equal(t, "a", header.Attrs[0])
	assert.Equal(t, types.T_int64, header.GetVector(0).GetType().Oid)
	assert.Equal(t, 0, header.RowCount())
	assert.Equal(t, "RemoteBatchStream(script)", s.Name())
}

func TestThreadCountPassThrough(t *testing.T) {
	reader := &scriptReader{sourceCount: 1, threads: 3}
	s := NewRemoteBatchStream(reader, "r1", "e1", 0)
	defer s.Close()

	// reset before collect is a no-op
	s.ResetNewThreadCountCompute()
	assert.Equal(t, 0, reader.resets)

	cnt := 1
	s.CollectNewThreadCount(&cnt)
	assert.Equal(t, 4, cnt)

	s.ResetNewThreadCountCompute()
	assert.Equal(t, 1, reader.resets)
}
