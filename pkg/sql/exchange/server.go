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
	"time"

	"github.com/fagongzi/goetty/v2"
	"github.com/fagongzi/util/hack"

	"github.com/cascadedb/cascade/pkg/common/cerr"
	"github.com/cascadedb/cascade/pkg/common/stopper"
	"github.com/cascadedb/cascade/pkg/logutil"
	pbquery "github.com/cascadedb/cascade/pkg/pb/query"
	"go.uber.org/zap"
)

// ScanHandler serves the storage side of a scan call.
type ScanHandler func(ctx context.Context, req *pbquery.ScanRequest) (*pbquery.ScanResponse, error)

// ExchangeService is the receiving end of the exchange wire on one
// node. It routes incoming packets to the registered receiver of their
// (query, operator, partition) and answers scan requests through the
// configured handler.
type ExchangeService struct {
	address     string
	app         goetty.NetApplication
	stopper     *stopper.Stopper
	scanHandler ScanHandler
	logger      *zap.Logger

	mu struct {
		sync.RWMutex
		receivers map[string]*ExchangeReceiver
	}
}

// ServiceOption configures an ExchangeService.
type ServiceOption func(*ExchangeService)

// WithScanHandler installs the storage-side scan handler.
func WithScanHandler(h ScanHandler) ServiceOption {
	return func(s *ExchangeService) {
		s.scanHandler = h
	}
}

func NewExchangeService(address string, options ...ServiceOption) (*ExchangeService, error) {
	s := &ExchangeService{
		address: address,
		stopper: stopper.NewStopper(fmt.Sprintf("exchange-service-%s", address)),
		logger: logutil.Adjust(nil).With(
			zap.String("name", "ExchangeService"),
			zap.String("address", address)),
	}
	s.mu.receivers = make(map[string]*ExchangeReceiver)

	for _, opt := range options {
		opt(s)
	}

	c := newMessageCodec()
	app, err := goetty.NewApplication(
		address,
		s.onMessage,
		goetty.WithAppLogger(s.logger),
		goetty.WithAppSessionOptions(
			goetty.WithCodec(c, c),
			goetty.WithLogger(s.logger)))
	if err != nil {
		return nil, err
	}
	s.app = app
	return s, nil
}

func (s *ExchangeService) Start() error {
	if err := s.stopper.RunTask(s.cleanCanceledReceivers); err != nil {
		return err
	}
	return s.app.Start()
}

func (s *ExchangeService) Close() error {
	s.stopper.Stop()
	return s.app.Stop()
}

// Register adds a receiver to the routing table. The receiver is
// removed again when it closes.
func (s *ExchangeService) Register(r *ExchangeReceiver) error {
	key := receiverKey(r.queryID, r.operatorID, r.partition)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mu.receivers[key]; ok {
		return cerr.NewInvalidState(context.Background(),
			"receiver already registered for %x/%d/%d", r.queryID, r.operatorID, r.partition)
	}
	s.mu.receivers[key] = r
	r.onClose = s.unregister
	return nil
}

func (s *ExchangeService) unregister(r *ExchangeReceiver) {
	key := receiverKey(r.queryID, r.operatorID, r.partition)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mu.receivers, key)
}

func (s *ExchangeService) lookup(key string) (*ExchangeReceiver, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.mu.receivers[key]
	return r, ok
}

func (s *ExchangeService) onMessage(rs goetty.IOSession, value interface{}, sequence uint64) error {
	switch msg := value.(type) {
	case *pbquery.ExchangePacket:
		return s.handlePacket(msg)
	case *pbquery.ScanRequest:
		return s.handleScan(rs, msg)
	default:
		s.logger.Error("unknown message received", zap.Any("message", value))
		return cerr.NewProtocol(context.Background(), "unknown message %T", value)
	}
}

func (s *ExchangeService) handlePacket(pkt *pbquery.ExchangePacket) error {
	key := receiverKey(pkt.QueryId, pkt.OperatorId, pkt.Partition)
	r, ok := s.lookup(key)
	if !ok {
		// the query may already be torn down, nothing to abort
		s.logger.Warn("no receiver for packet, drop",
			zap.Int32("operator", pkt.OperatorId),
			zap.Int32("partition", pkt.Partition))
		return nil
	}
	if err := r.Deliver(pkt); err != nil {
		s.logger.Warn("deliver to canceled receiver, drop", zap.Error(err))
	}
	return nil
}

func (s *ExchangeService) handleScan(rs goetty.IOSession, req *pbquery.ScanRequest) error {
	var resp *pbquery.ScanResponse
	if s.scanHandler == nil {
		resp = &pbquery.ScanResponse{
			RequestId: req.RequestId,
			Response: &pbquery.QueryResponse{
				Error: &pbquery.QueryError{
					Code:    int32(cerr.ErrInvalidState),
					Message: "node does not serve scans",
				},
			},
		}
	} else {
		var err error
		resp, err = s.scanHandler(context.Background(), req)
		if err != nil {
			resp = &pbquery.ScanResponse{
				RequestId: req.RequestId,
				Response: &pbquery.QueryResponse{
					Error: &pbquery.QueryError{
						Code:    int32(cerr.ErrRemoteRun),
						Message: err.Error(),
					},
				},
			}
		} else {
			resp.RequestId = req.RequestId
		}
	}

	if err := rs.Write(resp, goetty.WriteOptions{}); err != nil {
		return err
	}
	return rs.Flush(defaultFlushTimeout)
}

// cleanCanceledReceivers drops receivers whose consumer went away
// without closing, so the routing table cannot leak across queries.
func (s *ExchangeService) cleanCanceledReceivers(ctx context.Context) {
	ticker := time.NewTicker(time.Second * 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			for key, r := range s.mu.receivers {
				if r.canceled() {
					delete(s.mu.receivers, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

func receiverKey(queryID []byte, operatorID, partition int32) string {
	key := make([]byte, 0, len(queryID)+8)
	key = append(key, queryID...)
	key = append(key,
		byte(operatorID>>24), byte(operatorID>>16), byte(operatorID>>8), byte(operatorID),
		byte(partition>>24), byte(partition>>16), byte(partition>>8), byte(partition))
	return hack.SliceToString(key)
}
