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
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/cascadedb/cascade/pkg/common/cerr"
	"github.com/cascadedb/cascade/pkg/logutil"
	pbquery "github.com/cascadedb/cascade/pkg/pb/query"
	"go.uber.org/zap"
)

// ScanCall performs one remote scan request against a target peer.
// The production implementation is (*ScanClient).Caller.
type ScanCall func(ctx context.Context, target string) (*pbquery.ScanResponse, error)

// ScanReader is the non-streaming RemoteReader: one logical source
// whose result is the union of the scan responses of several storage
// peers. All statistics fold into slot 0 and SourceCount is 1 no
// matter how many peers feed it. Partitioning is not meaningful for
// scans and is ignored.
type ScanReader struct {
	schema  []Attribute
	targets []string
	call    ScanCall

	pool      *ants.Pool
	respC     chan *scanResult
	startOnce sync.Once
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	newThreads int32
}

type scanResult struct {
	target string
	resp   *pbquery.ScanResponse
	err    error
}

// NewScanReader fans the scan out to targets with at most concurrency
// in-flight calls.
func NewScanReader(schema []Attribute, targets []string, concurrency int, call ScanCall) (*ScanReader, error) {
	if len(targets) == 0 {
		return nil, cerr.NewInvalidInput(context.Background(), "scan reader needs at least one target")
	}
	if concurrency <= 0 {
		concurrency = len(targets)
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, cerr.NewInternal(context.Background(), "create scan pool: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ScanReader{
		schema:  schema,
		targets: targets,
		call:    call,
		pool:    pool,
		respC:   make(chan *scanResult, len(targets)),
		ctx:     ctx,
		cancel:  cancel,
		logger: logutil.Adjust(nil).With(
			zap.String("name", "ScanReader"),
			zap.Int("targets", len(targets))),
	}, nil
}

func (r *ScanReader) Name() string {
	return "ScanReader"
}

func (r *ScanReader) SourceCount() int {
	return 1
}

func (r *ScanReader) OutputSchema() []Attribute {
	return r.schema
}

func (r *ScanReader) Streaming() bool {
	return false
}

func (r *ScanReader) start() {
	r.startOnce.Do(func() {
		r.wg.Add(len(r.targets))
		for _, target := range r.targets {
			target := target
			err := r.pool.Submit(func() {
				defer r.wg.Done()
				atomic.AddInt32(&r.newThreads, 1)
				resp, err := r.call(r.ctx, target)
				// respC is sized for one result per target, the send
				// never blocks
				r.respC <- &scanResult{target: target, resp: resp, err: err}
			})
			if err != nil {
				r.wg.Done()
				r.respC <- &scanResult{
					target: target,
					err:    cerr.NewInternal(r.ctx, "submit scan task: %s", err),
				}
			}
		}
		go func() {
			r.wg.Wait()
			close(r.respC)
		}()
	})
}

func (r *ScanReader) FetchNext(ctx context.Context) (*FetchResult, error) {
	r.start()

	select {
	case <-ctx.Done():
		return nil, cerr.NewQueryInterrupted(ctx)
	case <-r.ctx.Done():
		return nil, cerr.NewQueryInterrupted(ctx)
	case result, ok := <-r.respC:
		if !ok {
			return &FetchResult{EOF: true}, nil
		}
		if result.err != nil {
			return nil, result.err
		}

		batches, rows, err := DecodeBatchSet(result.resp.Payload)
		if err != nil {
			return nil, err
		}
		return &FetchResult{
			Batches: batches,
			Resp:    result.resp.GetResponse(),
			Slot:    0,
			ReqInfo: fmt.Sprintf("scan %s", result.target),
			Detail:  DecodeDetail{Rows: rows, Bytes: uint64(len(result.resp.Payload))},
		}, nil
	}
}

func (r *ScanReader) Cancel() {
	r.cancel()
}

func (r *ScanReader) Close() error {
	r.cancel()
	r.pool.Release()
	return nil
}

func (r *ScanReader) CollectNewThreadCount(cnt *int) {
	*cnt += int(atomic.LoadInt32(&r.newThreads))
}

func (r *ScanReader) ResetNewThreadCountCompute() {
	atomic.StoreInt32(&r.newThreads, 0)
}
