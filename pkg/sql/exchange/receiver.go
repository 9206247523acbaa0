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
	"github.com/cascadedb/cascade/pkg/logutil"
	pbquery "github.com/cascadedb/cascade/pkg/pb/query"
	"go.uber.org/zap"
)

// ExchangeReceiver is the streaming RemoteReader: many senders push
// packets concurrently, each tagged with the call index of the peer it
// came from. The exchange service routes packets into the receiver's
// channel; FetchNext drains it.
//
// When the upstream shuffle is fine-grained, the service routes only
// the packets of this receiver's partition here, so FetchNext always
// surfaces pre-filtered data.
type ExchangeReceiver struct {
	queryID    []byte
	operatorID int32
	partition  int32

	schema      []Attribute
	sourceCount int

	ch     chan *pbquery.ExchangePacket
	ctx    context.Context
	cancel context.CancelFunc

	// consumer-side state, touched only by FetchNext
	finished    []bool
	finishedCnt int

	onClose func(*ExchangeReceiver)
	logger  *zap.Logger
}

func NewExchangeReceiver(
	schema []Attribute,
	sourceCount int,
	queryID []byte,
	operatorID int32,
	partition int32,
	bufferSize int) *ExchangeReceiver {
	ctx, cancel := context.WithCancel(context.Background())
	return &ExchangeReceiver{
		queryID:     queryID,
		operatorID:  operatorID,
		partition:   partition,
		schema:      schema,
		sourceCount: sourceCount,
		ch:          make(chan *pbquery.ExchangePacket, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
		finished:    make([]bool, sourceCount),
		logger: logutil.Adjust(nil).With(
			zap.String("name", "ExchangeReceiver"),
			zap.Int32("operator", operatorID),
			zap.Int32("partition", partition)),
	}
}

func (r *ExchangeReceiver) Name() string {
	return "ExchangeReceiver"
}

func (r *ExchangeReceiver) SourceCount() int {
	return r.sourceCount
}

func (r *ExchangeReceiver) OutputSchema() []Attribute {
	return r.schema
}

func (r *ExchangeReceiver) Streaming() bool {
	return true
}

// Deliver hands one routed packet to the receiver. It blocks when the
// channel buffer is full, which backpressures the service's session
// loop, and fails once the receiver has been canceled.
func (r *ExchangeReceiver) Deliver(pkt *pbquery.ExchangePacket) error {
	select {
	case r.ch <- pkt:
		return nil
	case <-r.ctx.Done():
		return cerr.NewStreamClosed(r.ctx)
	}
}

func (r *ExchangeReceiver) FetchNext(ctx context.Context) (*FetchResult, error) {
	for {
		if r.finishedCnt >= r.sourceCount {
			return &FetchResult{EOF: true}, nil
		}

		select {
		case <-ctx.Done():
			return nil, cerr.NewQueryInterrupted(ctx)
		case <-r.ctx.Done():
			return nil, cerr.NewQueryInterrupted(ctx)
		case pkt, ok := <-r.ch:
			if !ok {
				return &FetchResult{EOF: true}, nil
			}
			if pkt.Partition != r.partition {
				r.logger.Warn("packet for foreign partition, drop",
					zap.Int32("got", pkt.Partition))
				continue
			}

			slot := int(pkt.CallIndex)
			if pkt.Last && slot >= 0 && slot < r.sourceCount && !r.finished[slot] {
				r.finished[slot] = true
				r.finishedCnt++
			}

			batches, rows, err := DecodeBatchSet(pkt.Payload)
			if err != nil {
				return nil, err
			}
			return &FetchResult{
				Batches: batches,
				Resp:    pkt.Response,
				Slot:    slot,
				ReqInfo: fmt.Sprintf("exchange source %d", slot),
				Detail:  DecodeDetail{Rows: rows, Bytes: uint64(len(pkt.Payload))},
			}, nil
		}
	}
}

// Cancel aborts delivery and pending fetches. Safe to call from any
// goroutine, and more than once.
func (r *ExchangeReceiver) Cancel() {
	r.cancel()
}

func (r *ExchangeReceiver) Close() error {
	r.cancel()
	if r.onClose != nil {
		r.onClose(r)
	}
	return nil
}

func (r *ExchangeReceiver) canceled() bool {
	select {
	case <-r.ctx.Done():
		return true
	default:
		return false
	}
}

// The receiver itself starts no goroutines; packets arrive on the
// service's session loops. Nothing to report.
func (r *ExchangeReceiver) CollectNewThreadCount(*int) {}

func (r *ExchangeReceiver) ResetNewThreadCountCompute() {}
