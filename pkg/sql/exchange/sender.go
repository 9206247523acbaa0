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
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/fagongzi/goetty/v2"
	"github.com/google/uuid"

	"github.com/cascadedb/cascade/pkg/common/cerr"
	"github.com/cascadedb/cascade/pkg/logutil"
	pbquery "github.com/cascadedb/cascade/pkg/pb/query"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout = time.Second * 10
	defaultFlushTimeout   = time.Second * 10
)

// ExchangeSender pushes the packets of one sender-side pipeline to the
// exchange service of a peer node.
type ExchangeSender struct {
	remote string
	conn   goetty.IOSession
	logger *zap.Logger

	mu struct {
		sync.Mutex
		closed bool
	}
}

func NewExchangeSender(remote string) (*ExchangeSender, error) {
	logger := logutil.Adjust(nil).With(
		zap.String("name", "ExchangeSender"),
		zap.String("remote", remote))
	c := newMessageCodec()
	conn := goetty.NewIOSession(
		goetty.WithCodec(c, c),
		goetty.WithLogger(logger))

	ok, err := conn.Connect(remote, defaultConnectTimeout)
	if err != nil || !ok {
		if err != nil {
			logger.Error("connect to remote failed", zap.Error(err))
		}
		return nil, cerr.NewBackendCannotConnect(context.Background(), remote)
	}

	return &ExchangeSender{
		remote: remote,
		conn:   conn,
		logger: logger,
	}, nil
}

// Send writes one packet and flushes it. Packets of one sender are
// delivered in send order.
func (s *ExchangeSender) Send(pkt *pbquery.ExchangePacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.closed {
		return cerr.NewBackendClosed(context.Background())
	}

	if err := s.conn.Write(pkt, goetty.WriteOptions{}); err != nil {
		return err
	}
	return s.conn.Flush(defaultFlushTimeout)
}

func (s *ExchangeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.closed {
		return nil
	}
	s.mu.closed = true
	return s.conn.Close()
}

// ScanClient issues synchronous scan calls against storage peers. Each
// call runs on its own connection, which keeps the client trivially
// safe for the concurrent fan-out the ScanReader drives.
type ScanClient struct {
	logger *zap.Logger
}

func NewScanClient() *ScanClient {
	return &ScanClient{
		logger: logutil.Adjust(nil).With(zap.String("name", "ScanClient")),
	}
}

// Call sends req to target and waits for the matching response. A
// request id is assigned when req carries none.
func (c *ScanClient) Call(ctx context.Context, target string, req *pbquery.ScanRequest) (*pbquery.ScanResponse, error) {
	if len(req.RequestId) == 0 {
		id := uuid.New()
		req.RequestId = id[:]
	}

	mc := newMessageCodec()
	conn := goetty.NewIOSession(
		goetty.WithCodec(mc, mc),
		goetty.WithLogger(c.logger))
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Error("close scan connection failed", zap.Error(err))
		}
	}()

	ok, err := conn.Connect(target, defaultConnectTimeout)
	if err != nil || !ok {
		return nil, cerr.NewBackendCannotConnect(ctx, target)
	}
	if err := conn.Write(req, goetty.WriteOptions{}); err != nil {
		return nil, err
	}
	if err := conn.Flush(defaultFlushTimeout); err != nil {
		return nil, err
	}

	msg, err := conn.Read(goetty.ReadOptions{})
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*pbquery.ScanResponse)
	if !ok {
		return nil, cerr.NewProtocol(ctx, "unexpected scan reply %T", msg)
	}
	if !bytes.Equal(resp.RequestId, req.RequestId) {
		return nil, cerr.NewProtocol(ctx, "scan reply for foreign request")
	}
	return resp, nil
}

// Caller binds req to a ScanCall usable by a ScanReader. Every target
// gets its own copy of the request with a fresh request id.
func (c *ScanClient) Caller(req *pbquery.ScanRequest) ScanCall {
	return func(ctx context.Context, target string) (*pbquery.ScanResponse, error) {
		id := uuid.New()
		r := &pbquery.ScanRequest{
			RequestId: id[:],
			QueryId:   req.QueryId,
			TableId:   req.TableId,
		}
		return c.Call(ctx, target, r)
	}
}
