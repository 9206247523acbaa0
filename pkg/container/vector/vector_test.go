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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cascadedb/cascade/pkg/container/types"
)

func TestVectorAppendAndLength(t *testing.T) {
	v := NewVec(types.New(types.T_int64))
	assert.Equal(t, 0, v.Length())
	v.AppendInt64(1, 2)
	v.AppendInt64(3)
	assert.Equal(t, 3, v.Length())
	assert.Equal(t, []int64{1, 2, 3}, v.Int64s())
	assert.Equal(t, types.T_int64, v.GetType().Oid)
}

func TestVectorStrings(t *testing.T) {
	v := NewVec(types.New(types.T_varchar))
	v.AppendString("foo")
	v.AppendBytes([]byte("bar"))
	assert.Equal(t, 2, v.Length())
	assert.Equal(t, "foo", v.GetStringAt(0))
	assert.Equal(t, "bar", v.GetStringAt(1))
}

func TestVectorFree(t *testing.T) {
	v := NewVec(types.New(types.T_float64))
	v.AppendFloat64(1.5)
	assert.Equal(t, 1, v.Length())
	v.Free()
	assert.Equal(t, 0, v.Length())
	assert.Nil(t, v.Float64s())
}
