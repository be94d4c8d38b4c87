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
	"sync"

	"github.com/matrixorigin/multijoin/pkg/container/chunk"
)

// chunkPools recycles the scratch chunks of a reader, one pool per
// capacity. Readers are shared by the partitions of a parallel fill, so
// the pools are too.
type chunkPools[T any] struct {
	mu    sync.Mutex
	byCap map[int]*chunk.Pool[T]
}

func (p *chunkPools[T]) pool(capacity int) *chunk.Pool[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byCap == nil {
		p.byCap = make(map[int]*chunk.Pool[T])
	}
	cp, ok := p.byCap[capacity]
	if !ok {
		cp = chunk.NewPool[T](capacity)
		p.byCap[capacity] = cp
	}
	return cp
}

// acquire puts a pooled chunk at scratch position i of ctx, Close hands
// it back.
func (p *chunkPools[T]) acquire(ctx *Context, i int, capacity int) {
	cp := p.pool(capacity)
	c := cp.Get()
	ctx.scratch[i] = c
	ctx.release = append(ctx.release, func() { cp.Put(c) })
}
