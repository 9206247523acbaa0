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

// Package query holds the exchange wire messages. The definitions are
// hand-maintained and kept in sync with proto/query.proto; they are
// marshaled through github.com/gogo/protobuf/proto.
package query

import (
	proto "github.com/gogo/protobuf/proto"
)

// ExecutionSummary is the runtime statistics one remote peer reports
// for one plan operator.
type ExecutionSummary struct {
	ExecutorId      string `protobuf:"bytes,1,opt,name=executor_id,json=executorId,proto3" json:"executor_id,omitempty"`
	TimeProcessedNs uint64 `protobuf:"varint,2,opt,name=time_processed_ns,json=timeProcessedNs,proto3" json:"time_processed_ns,omitempty"`
	NumProducedRows uint64 `protobuf:"varint,3,opt,name=num_produced_rows,json=numProducedRows,proto3" json:"num_produced_rows,omitempty"`
	NumIterations   uint64 `protobuf:"varint,4,opt,name=num_iterations,json=numIterations,proto3" json:"num_iterations,omitempty"`
	Concurrency     uint64 `protobuf:"varint,5,opt,name=concurrency,proto3" json:"concurrency,omitempty"`
}

func (m *ExecutionSummary) Reset()         { *m = ExecutionSummary{} }
func (m *ExecutionSummary) String() string { return proto.CompactTextString(m) }
func (*ExecutionSummary) ProtoMessage()    {}

func (m *ExecutionSummary) GetExecutorId() string {
	if m != nil {
		return m.ExecutorId
	}
	return ""
}

type QueryError struct {
	Code    int32  `protobuf:"varint,1,opt,name=code,proto3" json:"code,omitempty"`
	Message string `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

func (m *QueryError) Reset()         { *m = QueryError{} }
func (m *QueryError) String() string { return proto.CompactTextString(m) }
func (*QueryError) ProtoMessage()    {}

func (m *QueryError) GetMessage() string {
	if m != nil {
		return m.Message
	}
	return ""
}

// QueryResponse is attached to a packet when the peer has either
// statistics or an error to report.
type QueryResponse struct {
	Error              *QueryError         `protobuf:"bytes,1,opt,name=error,proto3" json:"error,omitempty"`
	ExecutionSummaries []*ExecutionSummary `protobuf:"bytes,2,rep,name=execution_summaries,json=executionSummaries,proto3" json:"execution_summaries,omitempty"`
}

func (m *QueryResponse) Reset()         { *m = QueryResponse{} }
func (m *QueryResponse) String() string { return proto.CompactTextString(m) }
func (*QueryResponse) ProtoMessage()    {}

func (m *QueryResponse) GetError() *QueryError {
	if m != nil {
		return m.Error
	}
	return nil
}

func (m *QueryResponse) GetExecutionSummaries() []*ExecutionSummary {
	if m != nil {
		return m.ExecutionSummaries
	}
	return nil
}

type Column struct {
	Name      string    `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Type      int32     `protobuf:"varint,2,opt,name=type,proto3" json:"type,omitempty"`
	I64Values []int64   `protobuf:"varint,3,rep,packed,name=i64_values,json=i64Values,proto3" json:"i64_values,omitempty"`
	F64Values []float64 `protobuf:"fixed64,4,rep,packed,name=f64_values,json=f64Values,proto3" json:"f64_values,omitempty"`
	StrValues [][]byte  `protobuf:"bytes,5,rep,name=str_values,json=strValues,proto3" json:"str_values,omitempty"`
}

func (m *Column) Reset()         { *m = Column{} }
func (m *Column) String() string { return proto.CompactTextString(m) }
func (*Column) ProtoMessage()    {}

type Batch struct {
	RowCount int64     `protobuf:"varint,1,opt,name=row_count,json=rowCount,proto3" json:"row_count,omitempty"`
	Columns  []*Column `protobuf:"bytes,2,rep,name=columns,proto3" json:"columns,omitempty"`
}

func (m *Batch) Reset()         { *m = Batch{} }
func (m *Batch) String() string { return proto.CompactTextString(m) }
func (*Batch) ProtoMessage()    {}

type BatchSet struct {
	Batches []*Batch `protobuf:"bytes,1,rep,name=batches,proto3" json:"batches,omitempty"`
}

func (m *BatchSet) Reset()         { *m = BatchSet{} }
func (m *BatchSet) String() string { return proto.CompactTextString(m) }
func (*BatchSet) ProtoMessage()    {}

// ExchangePacket is one unit pushed from an exchange sender to a
// receiver. Payload is an lz4 block frame holding a BatchSet.
type ExchangePacket struct {
	QueryId    []byte         `protobuf:"bytes,1,opt,name=query_id,json=queryId,proto3" json:"query_id,omitempty"`
	OperatorId int32          `protobuf:"varint,2,opt,name=operator_id,json=operatorId,proto3" json:"operator_id,omitempty"`
	CallIndex  int32          `protobuf:"varint,3,opt,name=call_index,json=callIndex,proto3" json:"call_index,omitempty"`
	Partition  int32          `protobuf:"varint,4,opt,name=partition,proto3" json:"partition,omitempty"`
	Last       bool           `protobuf:"varint,5,opt,name=last,proto3" json:"last,omitempty"`
	Payload    []byte         `protobuf:"bytes,6,opt,name=payload,proto3" json:"payload,omitempty"`
	Response   *QueryResponse `protobuf:"bytes,7,opt,name=response,proto3" json:"response,omitempty"`
}

func (m *ExchangePacket) Reset()         { *m = ExchangePacket{} }
func (m *ExchangePacket) String() string { return proto.CompactTextString(m) }
func (*ExchangePacket) ProtoMessage()    {}

func (m *ExchangePacket) GetResponse() *QueryResponse {
	if m != nil {
		return m.Response
	}
	return nil
}

type ScanRequest struct {
	RequestId []byte `protobuf:"bytes,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	QueryId   []byte `protobuf:"bytes,2,opt,name=query_id,json=queryId,proto3" json:"query_id,omitempty"`
	TableId   int64  `protobuf:"varint,3,opt,name=table_id,json=tableId,proto3" json:"table_id,omitempty"`
}

func (m *ScanRequest) Reset()         { *m = ScanRequest{} }
func (m *ScanRequest) String() string { return proto.CompactTextString(m) }
func (*ScanRequest) ProtoMessage()    {}

type ScanResponse struct {
	RequestId []byte         `protobuf:"bytes,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	Payload   []byte         `protobuf:"bytes,2,opt,name=payload,proto3" json:"payload,omitempty"`
	Response  *QueryResponse `protobuf:"bytes,3,opt,name=response,proto3" json:"response,omitempty"`
}

func (m *ScanResponse) Reset()         { *m = ScanResponse{} }
func (m *ScanResponse) String() string { return proto.CompactTextString(m) }
func (*ScanResponse) ProtoMessage()    {}

func (m *ScanResponse) GetResponse() *QueryResponse {
	if m != nil {
		return m.Response
	}
	return nil
}

func init() {
	proto.RegisterType((*ExecutionSummary)(nil), "cascade.pb.query.ExecutionSummary")
	proto.RegisterType((*QueryError)(nil), "cascade.pb.query.QueryError")
	proto.RegisterType((*QueryResponse)(nil), "cascade.pb.query.QueryResponse")
	proto.RegisterType((*Column)(nil), "cascade.pb.query.Column")
	proto.RegisterType((*Batch)(nil), "cascade.pb.query.Batch")
	proto.RegisterType((*BatchSet)(nil), "cascade.pb.query.BatchSet")
	proto.RegisterType((*ExchangePacket)(nil), "cascade.pb.query.ExchangePacket")
	proto.RegisterType((*ScanRequest)(nil), "cascade.pb.query.ScanRequest")
	proto.RegisterType((*ScanResponse)(nil), "cascade.pb.query.ScanResponse")
}
