// Copyright 2024 Matrix Origin
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

package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/multijoin/pkg/container/types"
)

func TestChunk(t *testing.T) {
	c := New[int64](4)
	require.Equal(t, types.T_int64, c.Type())
	require.Equal(t, 4, c.Capacity())
	require.Equal(t, 0, c.Size())

	c.Append(10)
	c.Append(20)
	require.Equal(t, []int64{10, 20}, c.Values())
	require.Equal(t, int64(20), c.Get(1))

	c.Raw()[2] = 30
	c.SetSize(3)
	require.Equal(t, int64(30), c.Get(2))
	require.Panics(t, func() { c.Get(3) })
	require.Panics(t, func() { c.SetSize(5) })

	c.Reset()
	require.Equal(t, 0, c.Size())
}

func TestChunkTypes(t *testing.T) {
	require.Equal(t, types.T_int8, New[int8](1).Type())
	require.Equal(t, types.T_char16, New[uint16](1).Type())
	require.Equal(t, types.T_float32, New[float32](1).Type())
	require.Equal(t, types.T_ref, New[any](1).Type())
	require.Equal(t, types.T_ref, Wrap([]string{"a"}).Type())
}

func TestAs(t *testing.T) {
	var u Untyped = Wrap([]int32{1, 2, 3})
	require.Equal(t, []int32{1, 2, 3}, As[int32](u).Values())
	require.Panics(t, func() { As[int64](u) })
}

func TestPool(t *testing.T) {
	p := NewPool[any](8)
	c := p.Get()
	require.Equal(t, 8, c.Capacity())
	c.Append("x")
	p.Put(c)
	c2 := p.Get()
	require.Equal(t, 0, c2.Size())
	p.Put(New[any](3))
	require.Equal(t, 8, p.Capacity())
}
