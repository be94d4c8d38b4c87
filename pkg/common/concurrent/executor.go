// Copyright 2021 Matrix Origin
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

package concurrent

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
)

type ThreadPoolExecutor struct {
	nthreads int
}

func NewThreadPoolExecutor(nthreads int) ThreadPoolExecutor {
	if nthreads <= 0 {
		nthreads = runtime.NumCPU()
	}
	return ThreadPoolExecutor{nthreads: nthreads}
}

func (e ThreadPoolExecutor) Threads() int {
	return e.nthreads
}

// Execute splits [0, nitems) into at most nthreads contiguous partitions and
// runs fn on each. A panic in fn is returned as an internal error.
func (e ThreadPoolExecutor) Execute(
	ctx context.Context,
	nitems int,
	fn func(ctx context.Context, thread_id int, start, end int) error) (err error) {
	return e.ExecuteAligned(ctx, nitems, 1, fn)
}

// ExecuteAligned is Execute with partition boundaries on multiples of align,
// so every partition but the last holds whole chunks.
func (e ThreadPoolExecutor) ExecuteAligned(
	ctx context.Context,
	nitems int,
	align int,
	fn func(ctx context.Context, thread_id int, start, end int) error) (err error) {

	if align <= 0 {
		align = 1
	}
	g, ctx := errgroup.WithContext(ctx)

	units := (nitems + align - 1) / align
	q := units / e.nthreads
	r := units % e.nthreads

	start := 0
	for i := 0; i < e.nthreads; i++ {
		size := q
		if i < r {
			size++
		}
		if size == 0 {
			break
		}

		end := min(start+size*align, nitems)
		thread_id := i
		curStart := start
		curEnd := end
		g.Go(func() (err2 error) {
			defer func() {
				if r := recover(); r != nil {
					err2 = moerr.ConvertPanicError(ctx, r)
				}
			}()
			return fn(ctx, thread_id, curStart, curEnd)
		})
		start = end
	}

	return g.Wait()
}
