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

	"github.com/cascadedb/cascade/pkg/container/batch"
	"github.com/cascadedb/cascade/pkg/container/types"
	pbquery "github.com/cascadedb/cascade/pkg/pb/query"
)

// Attribute is one column of a reader's output schema.
type Attribute struct {
	Name string
	Type types.Type
}

// DecodeDetail records what one fetch call decoded from the wire.
type DecodeDetail struct {
	Rows  uint64
	Bytes uint64
}

// ConnectionProfile counts the traffic received from one source slot.
// It is written only by the consumer goroutine of the stream.
type ConnectionProfile struct {
	Packets uint64
	Bytes   uint64
}

// FetchResult is one protocol unit produced by a RemoteReader.
type FetchResult struct {
	// Batches decoded from this unit. May be empty even when the unit
	// is not EOF, e.g. for a statistics-only packet.
	Batches []*batch.Batch
	// Resp carries execution statistics and/or an error reported by the
	// remote peer. Nil when the unit is pure data.
	Resp *pbquery.QueryResponse
	// Slot is the call index selecting the source slot. Only meaningful
	// for streaming readers.
	Slot int
	// ReqInfo identifies the request, for logging only.
	ReqInfo string
	Detail  DecodeDetail
	// EOF reports that no more units will ever arrive. All other fields
	// are ignored when EOF is set.
	EOF bool
}

// RemoteReader supplies decoded protocol units arriving from one or
// more remote peers. Implementations own the transport and the decode;
// they may run their own goroutines internally.
//
// FetchNext blocks until a unit, EOF or an error is available. After
// Cancel, the next FetchNext returns an error or EOF promptly.
type RemoteReader interface {
	Name() string
	SourceCount() int
	OutputSchema() []Attribute
	// Streaming reports whether units carry a call index selecting
	// their source slot. Non-streaming readers fold everything into
	// slot 0.
	Streaming() bool
	FetchNext(ctx context.Context) (*FetchResult, error)
	Cancel()
	Close() error

	// Thread accounting pass-through for the engine's worker pool
	// sizing. Opaque to the stream.
	CollectNewThreadCount(cnt *int)
	ResetNewThreadCountCompute()
}
