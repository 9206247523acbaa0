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
	"fmt"

	"github.com/cascadedb/cascade/pkg/common/cerr"
	"github.com/cascadedb/cascade/pkg/container/batch"
	"github.com/cascadedb/cascade/pkg/container/vector"
	"github.com/cascadedb/cascade/pkg/logutil"
	"go.uber.org/zap"
)

// RemoteBatchStream turns the protocol units of a RemoteReader into a
// plain pull stream of batches for the local pipeline, and reconciles
// the execution statistics the remote peers attach to their responses.
//
// Next is driven by exactly one consumer goroutine. The only other
// goroutine allowed to touch the stream concurrently is a statistics
// reader going through ExecutionSummaries, which is safe by the
// summaryTable publish protocol. Cancel may be called from any
// goroutine.
type RemoteBatchStream struct {
	reader    RemoteReader
	sourceNum int
	streaming bool
	profiles  []ConnectionProfile

	header *batch.Batch
	queue  []*batch.Batch

	name      string
	summaries *summaryTable
	logger    *zap.Logger

	totalRows uint64
	// partition this stream consumes when the upstream shuffle is
	// fine-grained; purely informational here, the reader pre-filters.
	partition int

	closed    bool
	collected bool
}

// NewRemoteBatchStream takes ownership of reader. reqID and executorID
// identify the consuming plan node in the logs; partition is the
// fine-grained shuffle partition this stream reads, 0 when unused.
func NewRemoteBatchStream(reader RemoteReader, reqID, executorID string, partition int) *RemoteBatchStream {
	name := fmt.Sprintf("RemoteBatchStream(%s)", reader.Name())
	s := &RemoteBatchStream{
		reader:    reader,
		sourceNum: reader.SourceCount(),
		streaming: reader.Streaming(),
		name:      name,
		partition: partition,
		logger: logutil.Adjust(nil).With(
			zap.String("name", name),
			zap.String("request", reqID),
			zap.String("executor", executorID)),
	}
	s.profiles = make([]ConnectionProfile, s.sourceNum)
	s.summaries = newSummaryTable(s.sourceNum, s.logger)

	schema := reader.OutputSchema()
	s.header = batch.New(make([]string, len(schema)))
	for i, attr := range schema {
		s.header.Attrs[i] = attr.Name
		s.header.SetVector(int32(i), vector.NewVec(attr.Type))
	}
	return s
}

// Header returns an empty batch carrying the output schema.
func (s *RemoteBatchStream) Header() *batch.Batch {
	return s.header
}

func (s *RemoteBatchStream) Name() string {
	return s.name
}

// Next returns the next batch, or (nil, nil) once the remote sources
// are exhausted. Errors are terminal: the stream must not be pulled
// again after one.
func (s *RemoteBatchStream) Next(ctx context.Context) (*batch.Batch, error) {
	if len(s.queue) == 0 {
		ok, err := s.fetchRemoteResult(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}
	bat := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return bat, nil
}

// fetchRemoteResult pulls units from the reader until one with rows,
// EOF or an error shows up. Statistics-only units are folded in and
// retried here so the consumer never sees a spurious empty result.
func (s *RemoteBatchStream) fetchRemoteResult(ctx context.Context) (bool, error) {
	for {
		result, err := s.reader.FetchNext(ctx)
		if err != nil {
			s.logger.Warn("remote reader meets error", zap.Error(err))
			return false, err
		}
		if result.EOF {
			return false, nil
		}
		if resp := result.Resp; resp != nil && resp.Error != nil {
			s.logger.Warn("remote reader meets error",
				zap.String("error", resp.Error.Message))
			return false, cerr.NewRemoteRun(ctx, resp.Error.Message)
		}

		// only streaming responses select their own slot
		slot := 0
		if s.streaming {
			slot = result.Slot
		}
		if result.Resp != nil {
			s.summaries.fold(result.Resp.ExecutionSummaries, slot, s.streaming)
		}

		if slot >= 0 && slot < s.sourceNum {
			s.profiles[slot].Packets++
			s.profiles[slot].Bytes += result.Detail.Bytes
		} else {
			s.logger.Warn("call index out of range, drop profile accounting",
				zap.Int("slot", slot),
				zap.Int("source-count", s.sourceNum))
		}

		s.totalRows += result.Detail.Rows
		s.logger.Debug("recv rows from remote",
			zap.Uint64("rows", result.Detail.Rows),
			zap.String("request", result.ReqInfo),
			zap.Uint64("total", s.totalRows))
		if result.Detail.Rows == 0 {
			// heartbeat or statistics-only unit, fetch again
			continue
		}
		s.queue = append(s.queue, result.Batches...)
		return true, nil
	}
}

// Cancel aborts the underlying reader when kill is set. A graceful
// cancel is a no-op here: the stream then drains naturally to EOF.
func (s *RemoteBatchStream) Cancel(kill bool) {
	if kill {
		s.reader.Cancel()
	}
}

// Close releases the reader. It never fails: teardown runs on paths
// that may already be handling another error, so problems are only
// logged. Calling Close more than once is allowed.
func (s *RemoteBatchStream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.logger.Debug("finish read rows from remote", zap.Uint64("rows", s.totalRows))
	if err := s.reader.Close(); err != nil {
		s.logger.Error("close remote reader failed", zap.Error(err))
	}
}

// ExecutionSummaries returns the statistics map of one source slot, or
// false while no response has been folded for it yet. The returned map
// is shared: its shape is frozen but the entry values keep advancing
// while the stream is still running.
func (s *RemoteBatchStream) ExecutionSummaries(slot int) (map[string]*ExecutionSummary, bool) {
	return s.summaries.get(slot)
}

func (s *RemoteBatchStream) SourceCount() int {
	return s.sourceNum
}

func (s *RemoteBatchStream) IsStreaming() bool {
	return s.streaming
}

func (s *RemoteBatchStream) Partition() int {
	return s.partition
}

// TotalRows is the number of rows decoded so far, including rows of
// units that were retried away before reaching the consumer.
func (s *RemoteBatchStream) TotalRows() uint64 {
	return s.totalRows
}

// ConnectionProfiles returns a copy of the per-slot traffic counters.
func (s *RemoteBatchStream) ConnectionProfiles() []ConnectionProfile {
	profiles := make([]ConnectionProfile, len(s.profiles))
	copy(profiles, s.profiles)
	return profiles
}

func (s *RemoteBatchStream) CollectNewThreadCount(cnt *int) {
	s.collected = true
	s.reader.CollectNewThreadCount(cnt)
}

func (s *RemoteBatchStream) ResetNewThreadCountCompute() {
	if s.collected {
		s.collected = false
		s.reader.ResetNewThreadCountCompute()
	}
}
