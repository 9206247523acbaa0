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

package vector

import (
	"bytes"
	"fmt"

	"github.com/fagongzi/util/hack"

	"github.com/cascadedb/cascade/pkg/container/types"
)

// Vector holds one column of a batch. The storage slice in use is
// selected by the type oid, the others stay nil.
type Vector struct {
	typ types.Type

	int64s   []int64
	float64s []float64
	strs     [][]byte
}

func NewVec(typ types.Type) *Vector {
	return &Vector{typ: typ}
}

func (v *Vector) GetType() types.Type {
	return v.typ
}

func (v *Vector) Length() int {
	switch v.typ.Oid {
	case types.T_int64:
		return len(v.int64s)
	case types.T_float64:
		return len(v.float64s)
	case types.T_varchar:
		return len(v.strs)
	}
	return 0
}

func (v *Vector) AppendInt64(vals ...int64) {
	v.int64s = append(v.int64s, vals...)
}

func (v *Vector) AppendFloat64(vals ...float64) {
	v.float64s = append(v.float64s, vals...)
}

func (v *Vector) AppendBytes(vals ...[]byte) {
	v.strs = append(v.strs, vals...)
}

func (v *Vector) AppendString(vals ...string) {
	for _, val := range vals {
		v.strs = append(v.strs, hack.StringToSlice(val))
	}
}

func (v *Vector) Int64s() []int64 {
	return v.int64s
}

func (v *Vector) Float64s() []float64 {
	return v.float64s
}

func (v *Vector) Bytes() [][]byte {
	return v.strs
}

func (v *Vector) GetStringAt(i int) string {
	return hack.SliceToString(v.strs[i])
}

func (v *Vector) String() string {
	var buf bytes.Buffer

	buf.WriteString(v.typ.String())
	switch v.typ.Oid {
	case types.T_int64:
		fmt.Fprintf(&buf, "%v", v.int64s)
	case types.T_float64:
		fmt.Fprintf(&buf, "%v", v.float64s)
	case types.T_varchar:
		buf.WriteByte('[')
		for i, s := range v.strs {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.Write(s)
		}
		buf.WriteByte(']')
	}
	return buf.String()
}

// Free drops the column storage. Kept as an explicit call so batch
// teardown mirrors the engine's ownership rules.
func (v *Vector) Free() {
	v.int64s = nil
	v.float64s = nil
	v.strs = nil
}
