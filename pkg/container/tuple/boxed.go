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

package tuple

import (
	"github.com/matrixorigin/multijoin/pkg/container/chunk"
	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

// boxed keys any number of columns of any type by their packed encoding.
type boxed struct {
	srcs  []column.Source
	nulls []any
	pools chunkPools[any]
}

// NewBoxedReader is the generic fallback for key shapes without a fixed
// arity reader.
func NewBoxedReader(srcs ...column.Source) Reader[string] {
	b := &boxed{
		srcs:  srcs,
		nulls: make([]any, len(srcs)),
	}
	for i, src := range srcs {
		b.nulls[i] = nullOf(src)
	}
	return b
}

func (b *boxed) Types() []types.T {
	res := make([]types.T, len(b.srcs))
	for i, src := range b.srcs {
		res[i] = src.Type()
	}
	return res
}

func (b *boxed) NewContext(capacity int) *Context {
	ctx := newContext(b.srcs, capacity)
	for i := range b.srcs {
		b.pools.acquire(ctx, i, capacity)
	}
	return ctx
}

func (b *boxed) Fill(ctx *Context, rows []int64, prev bool, dst []string) {
	for i, src := range b.srcs {
		c := chunk.As[any](ctx.scratch[i])
		if prev {
			src.FillPrevAnyChunk(ctx.fills[i], c, rows)
		} else {
			src.FillAnyChunk(ctx.fills[i], c, rows)
		}
	}
	p := &ctx.packer
	for r := range rows {
		p.Reset()
		for i := range b.srcs {
			p.EncodeValue(chunk.As[any](ctx.scratch[i]).Get(r))
		}
		dst[r] = p.String()
	}
	for i := range b.srcs {
		clear(chunk.As[any](ctx.scratch[i]).Values())
	}
}

func (b *boxed) Hash(k string) uint64 {
	return StringHash(k)
}

func (b *boxed) IsNull(k string) bool {
	vals, err := Unpack(k)
	if err != nil {
		return false
	}
	for i, v := range vals {
		if i < len(b.nulls) && v == b.nulls[i] {
			return true
		}
	}
	return false
}

func (b *boxed) FromValues(values ...any) (string, error) {
	if err := checkArity(values, len(b.srcs)); err != nil {
		return "", err
	}
	var p Packer
	for i, src := range b.srcs {
		if src.Type() == types.T_ref {
			p.EncodeValue(values[i])
			continue
		}
		pv, ok := PhysicalValueOf(src, values[i])
		if !ok {
			return "", mismatch(i, src.Type(), values[i])
		}
		p.EncodeValue(pv)
	}
	return p.String(), nil
}

func (b *boxed) ToValues(k string) []any {
	vals, err := Unpack(k)
	if err != nil {
		return nil
	}
	return vals
}
