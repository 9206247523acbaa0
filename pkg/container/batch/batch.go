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

package batch

import (
	"bytes"
	"fmt"

	"github.com/cascadedb/cascade/pkg/container/vector"
)

// Batch is an ordered, fixed-schema collection of column vectors. All
// vectors have the same length, which is the row count. A batch is not
// modified once it has been produced by a decode or an operator.
type Batch struct {
	// Attrs are the column names, Vecs the columns, index-aligned.
	Attrs []string
	Vecs  []*vector.Vector

	rowCount int
}

func New(attrs []string) *Batch {
	return &Batch{
		Attrs: attrs,
		Vecs:  make([]*vector.Vector, len(attrs)),
	}
}

func NewWithSize(n int) *Batch {
	return &Batch{
		Vecs: make([]*vector.Vector, n),
	}
}

func (bat *Batch) RowCount() int {
	return bat.rowCount
}

func (bat *Batch) SetRowCount(rowCount int) {
	bat.rowCount = rowCount
}

func (bat *Batch) AddRowCount(rowCount int) {
	bat.rowCount += rowCount
}

func (bat *Batch) VectorCount() int {
	return len(bat.Vecs)
}

func (bat *Batch) SetAttributes(attrs []string) {
	bat.Attrs = attrs
}

func (bat *Batch) SetVector(pos int32, vec *vector.Vector) {
	bat.Vecs[pos] = vec
}

func (bat *Batch) GetVector(pos int32) *vector.Vector {
	return bat.Vecs[pos]
}

func (bat *Batch) IsEmpty() bool {
	return bat.rowCount == 0
}

// Size is the in-memory byte size of the batch, counted per column.
func (bat *Batch) Size() int {
	var size int

	for _, vec := range bat.Vecs {
		if vec == nil {
			continue
		}
		switch {
		case vec.Int64s() != nil:
			size += 8 * len(vec.Int64s())
		case vec.Float64s() != nil:
			size += 8 * len(vec.Float64s())
		default:
			for _, s := range vec.Bytes() {
				size += len(s)
			}
		}
	}
	return size
}

func (bat *Batch) String() string {
	var buf bytes.Buffer

	for i, vec := range bat.Vecs {
		name := ""
		if i < len(bat.Attrs) {
			name = bat.Attrs[i]
		}
		fmt.Fprintf(&buf, "%d(%s) : %s\n", i, name, vec.String())
	}
	return buf.String()
}

func (bat *Batch) Clean() {
	for _, vec := range bat.Vecs {
		if vec != nil {
			vec.Free()
		}
	}
	bat.Attrs = nil
	bat.Vecs = nil
	bat.rowCount = 0
}
