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
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadedb/cascade/pkg/common/cerr"
	"github.com/cascadedb/cascade/pkg/container/batch"
	"github.com/cascadedb/cascade/pkg/container/types"
	pbquery "github.com/cascadedb/cascade/pkg/pb/query"
)

func scanSchema() []Attribute {
	return []Attribute{{Name: "a", Type: types.New(types.T_int64)}}
}

// fakeScan answers every target with one batch holding the rows of
// perTarget[target], plus a summary claiming that many produced rows.
func fakeScan(t *testing.T, perTarget map[string][]int64) ScanCall {
	return func(ctx context.Context, target string) (*pbquery.ScanResponse, error) {
		rows := perTarget[target]
		payload, err := EncodeBatchSet([]*batch.Batch{makeInt64Batch(rows...)}, false)
		require.NoError(t, err)
		return &pbquery.ScanResponse{
			Payload: payload,
			Response: &pbquery.QueryResponse{
				ExecutionSummaries: []*pbquery.ExecutionSummary{
					pbSummary("scan-exec", 100, uint64(len(rows)), 1, 1),
				},
			},
		}, nil
	}
}

func TestScanReaderFanOut(t *testing.T) {
	perTarget := map[string][]int64{
		"node-a": {1, 2},
		"node-b": {3},
		"node-c": {4, 5, 6},
	}
	r, err := NewScanReader(scanSchema(), []string{"node-a", "node-b", "node-c"}, 2, fakeScan(t, perTarget))
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	assert.Equal(t, 1, r.SourceCount())
	assert.False(t, r.Streaming())

	var got []int64
	for {
		result, err := r.FetchNext(context.Background())
		require.NoError(t, err)
		if result.EOF {
			break
		}
		assert.Equal(t, 0, result.Slot)
		for _, bat := range result.Batches {
			got = append(got, bat.Vecs[0].Int64s()...)
		}
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, got)

	var threads int
	r.CollectNewThreadCount(&threads)
	assert.Equal(t, 3, threads)
	r.ResetNewThreadCountCompute()
	threads = 0
	r.CollectNewThreadCount(&threads)
	assert.Equal(t, 0, threads)
}

func TestScanReaderThroughStream(t *testing.T) {
	perTarget := map[string][]int64{
		"node-a": {1, 2, 3},
		"node-b": {4, 5},
	}
	r, err := NewScanReader(scanSchema(), []string{"node-a", "node-b"}, 0, fakeScan(t, perTarget))
	require.NoError(t, err)

	s := NewRemoteBatchStream(r, "req-scan", "exec-scan", 0)
	defer s.Close()

	var rows int
	for {
		bat, err := s.Next(context.Background())
		require.NoError(t, err)
		if bat == nil {
			break
		}
		rows += bat.RowCount()
	}
	assert.Equal(t, 5, rows)

	// both scan responses folded additively into slot 0
	summaries, ok := s.ExecutionSummaries(0)
	require.True(t, ok)
	require.Contains(t, summaries, "scan-exec")
	assert.Equal(t, uint64(5), summaries["scan-exec"].NumProducedRows.Load())
	assert.Equal(t, uint64(2), summaries["scan-exec"].NumIterations.Load())
}

func TestScanReaderCallError(t *testing.T) {
	call := func(ctx context.Context, target string) (*pbquery.ScanResponse, error) {
		if target == "bad" {
			return nil, cerr.NewBackendCannotConnect(ctx, target)
		}
		return &pbquery.ScanResponse{}, nil
	}
	r, err := NewScanReader(scanSchema(), []string{"bad"}, 1, call)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	_, err = r.FetchNext(context.Background())
	require.Error(t, err)
	assert.True(t, cerr.IsCerrCode(err, cerr.ErrBackendCannotConnect))
}

func TestScanReaderNeedsTargets(t *testing.T) {
	_, err := NewScanReader(scanSchema(), nil, 0, nil)
	require.Error(t, err)
	assert.True(t, cerr.IsCerrCode(err, cerr.ErrInvalidInput))
}

func TestScanReaderCancel(t *testing.T) {
	block := make(chan struct{})
	call := func(ctx context.Context, target string) (*pbquery.ScanResponse, error) {
		select {
		case <-ctx.Done():
			return nil, cerr.NewQueryInterrupted(ctx)
		case <-block:
			return &pbquery.ScanResponse{}, nil
		}
	}
	r, err := NewScanReader(scanSchema(), []string{"node-a"}, 1, call)
	require.NoError(t, err)
	defer func() {
		close(block)
		require.NoError(t, r.Close())
	}()

	fetchErr := make(chan error, 1)
	go func() {
		_, err := r.FetchNext(context.Background())
		fetchErr <- err
	}()
	r.Cancel()

	err = <-fetchErr
	require.Error(t, err)
	assert.True(t, cerr.IsCerrCode(err, cerr.ErrQueryInterrupted))
}
