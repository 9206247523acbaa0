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
	"encoding/binary"

	"github.com/fagongzi/goetty/v2/buf"
	"github.com/fagongzi/goetty/v2/codec"
	"github.com/fagongzi/goetty/v2/codec/length"
	proto "github.com/gogo/protobuf/proto"
	"github.com/pierrec/lz4"

	"github.com/cascadedb/cascade/pkg/common/cerr"
	"github.com/cascadedb/cascade/pkg/container/batch"
	"github.com/cascadedb/cascade/pkg/container/types"
	"github.com/cascadedb/cascade/pkg/container/vector"
	pbquery "github.com/cascadedb/cascade/pkg/pb/query"
)

// payload framing: 1 byte flag, then for lz4 payloads 4 bytes of
// original size, then the body.
const (
	payloadRaw byte = 0
	payloadLZ4 byte = 1
)

// EncodeBatchSet serializes batches into a payload suitable for an
// ExchangePacket or ScanResponse.
func EncodeBatchSet(bats []*batch.Batch, compress bool) ([]byte, error) {
	set := &pbquery.BatchSet{Batches: make([]*pbquery.Batch, 0, len(bats))}
	for _, bat := range bats {
		pb, err := encodeBatch(bat)
		if err != nil {
			return nil, err
		}
		set.Batches = append(set.Batches, pb)
	}
	data, err := proto.Marshal(set)
	if err != nil {
		return nil, cerr.NewInternal(context.Background(), "marshal batch set: %s", err)
	}

	if !compress {
		return append([]byte{payloadRaw}, data...), nil
	}

	dst := make([]byte, 5+lz4.CompressBlockBound(len(data)))
	dst[0] = payloadLZ4
	binary.BigEndian.PutUint32(dst[1:5], uint32(len(data)))
	ht := make([]int, 64<<10)
	n, err := lz4.CompressBlock(data, dst[5:], ht)
	if err != nil {
		return nil, cerr.NewInternal(context.Background(), "lz4 compress: %s", err)
	}
	if n == 0 {
		// incompressible, ship it raw
		return append([]byte{payloadRaw}, data...), nil
	}
	return dst[:5+n], nil
}

// DecodeBatchSet is the inverse of EncodeBatchSet. It also reports the
// total row count of the decoded batches. A nil or empty payload
// decodes to no batches.
func DecodeBatchSet(payload []byte) ([]*batch.Batch, uint64, error) {
	if len(payload) == 0 {
		return nil, 0, nil
	}

	var data []byte
	switch payload[0] {
	case payloadRaw:
		data = payload[1:]
	case payloadLZ4:
		if len(payload) < 5 {
			return nil, 0, cerr.NewProtocol(context.Background(), "lz4 payload truncated")
		}
		origSize := binary.BigEndian.Uint32(payload[1:5])
		data = make([]byte, origSize)
		if _, err := lz4.UncompressBlock(payload[5:], data); err != nil {
			return nil, 0, cerr.NewProtocol(context.Background(), "lz4 decompress: %s", err)
		}
	default:
		return nil, 0, cerr.NewProtocol(context.Background(), "unknown payload flag %d", payload[0])
	}

	set := &pbquery.BatchSet{}
	if err := proto.Unmarshal(data, set); err != nil {
		return nil, 0, cerr.NewProtocol(context.Background(), "unmarshal batch set: %s", err)
	}

	bats := make([]*batch.Batch, 0, len(set.Batches))
	var rows uint64
	for _, pb := range set.Batches {
		bat, err := decodeBatch(pb)
		if err != nil {
			return nil, 0, err
		}
		rows += uint64(bat.RowCount())
		bats = append(bats, bat)
	}
	return bats, rows, nil
}

func encodeBatch(bat *batch.Batch) (*pbquery.Batch, error) {
	pb := &pbquery.Batch{
		RowCount: int64(bat.RowCount()),
		Columns:  make([]*pbquery.Column, bat.VectorCount()),
	}
	for i, vec := range bat.Vecs {
		col := &pbquery.Column{Type: int32(vec.GetType().Oid)}
		if i < len(bat.Attrs) {
			col.Name = bat.Attrs[i]
		}
		switch vec.GetType().Oid {
		case types.T_int64:
			col.I64Values = vec.Int64s()
		case types.T_float64:
			col.F64Values = vec.Float64s()
		case types.T_varchar:
			col.StrValues = vec.Bytes()
		default:
			return nil, cerr.NewInternal(context.Background(),
				"can not encode column type %s", vec.GetType())
		}
		pb.Columns[i] = col
	}
	return pb, nil
}

func decodeBatch(pb *pbquery.Batch) (*batch.Batch, error) {
	bat := batch.NewWithSize(len(pb.Columns))
	bat.Attrs = make([]string, len(pb.Columns))
	for i, col := range pb.Columns {
		oid := types.T(col.Type)
		if !oid.Valid() {
			return nil, cerr.NewProtocol(context.Background(), "unknown column type %d", col.Type)
		}
		bat.Attrs[i] = col.Name
		vec := vectorFromColumn(oid, col)
		if vec.Length() != int(pb.RowCount) {
			return nil, cerr.NewProtocol(context.Background(),
				"column %s has %d rows, batch has %d", col.Name, vec.Length(), pb.RowCount)
		}
		bat.SetVector(int32(i), vec)
	}
	bat.SetRowCount(int(pb.RowCount))
	return bat, nil
}

func vectorFromColumn(oid types.T, col *pbquery.Column) *vector.Vector {
	v := vector.NewVec(types.New(oid))
	switch oid {
	case types.T_int64:
		v.AppendInt64(col.I64Values...)
	case types.T_float64:
		v.AppendFloat64(col.F64Values...)
	case types.T_varchar:
		v.AppendBytes(col.StrValues...)
	}
	return v
}

// wire message kinds
const (
	kindExchangePacket byte = 0
	kindScanRequest    byte = 1
	kindScanResponse   byte = 2
)

type messageCodec struct {
	encoder codec.Encoder
	decoder codec.Decoder
}

// newMessageCodec creates the length-framed codec both ends of the
// exchange wire use.
func newMessageCodec() *messageCodec {
	bc := &wireCodec{}
	_, decoder := length.New(bc, bc)
	return &messageCodec{encoder: bc, decoder: decoder}
}

func (c *messageCodec) Decode(in *buf.ByteBuf) (bool, interface{}, error) {
	return c.decoder.Decode(in)
}

func (c *messageCodec) Encode(data interface{}, out *buf.ByteBuf) error {
	return c.encoder.Encode(data, out)
}

type wireCodec struct{}

func (c *wireCodec) Encode(data interface{}, out *buf.ByteBuf) error {
	msg, ok := data.(proto.Message)
	if !ok {
		return cerr.NewInternal(context.Background(), "can not encode %T", data)
	}
	var kind byte
	switch data.(type) {
	case *pbquery.ExchangePacket:
		kind = kindExchangePacket
	case *pbquery.ScanRequest:
		kind = kindScanRequest
	case *pbquery.ScanResponse:
		kind = kindScanResponse
	default:
		return cerr.NewInternal(context.Background(), "can not encode %T", data)
	}

	body, err := proto.Marshal(msg)
	if err != nil {
		return cerr.NewInternal(context.Background(), "marshal %T: %s", data, err)
	}
	buf.MustWriteInt(out, 1+len(body))
	buf.MustWriteByte(out, kind)
	if _, err := out.Write(body); err != nil {
		return err
	}
	return nil
}

func (c *wireCodec) Decode(in *buf.ByteBuf) (bool, interface{}, error) {
	data := in.GetMarkedRemindData()
	if len(data) < 1 {
		return false, nil, cerr.NewProtocol(context.Background(), "empty frame")
	}
	kind := data[0]
	body := data[1:]

	var msg proto.Message
	switch kind {
	case kindExchangePacket:
		msg = &pbquery.ExchangePacket{}
	case kindScanRequest:
		msg = &pbquery.ScanRequest{}
	case kindScanResponse:
		msg = &pbquery.ScanResponse{}
	default:
		return false, nil, cerr.NewProtocol(context.Background(), "unknown message kind %d", kind)
	}
	if err := proto.Unmarshal(body, msg); err != nil {
		return false, nil, cerr.NewProtocol(context.Background(), "unmarshal frame: %s", err)
	}
	in.MarkedBytesReaded()
	return true, msg, nil
}
