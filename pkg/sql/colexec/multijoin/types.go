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

package multijoin

import (
	"context"

	"go.uber.org/zap"

	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

var (
	// rows read from a key column per batch
	defaultChunkSize = 2048
	// row sets at least this large compute keys in parallel
	defaultParallelThreshold = 1 << 16
)

// HashState assigns every distinct composite key of N input tables a
// stable slot and records, per table, the row key holding that key.
//
// All mutations happen inside a tick. A tick either commits as a whole
// and yields the coalesced slot delta, or aborts and leaves the state as
// it was at the end of the previous tick.
type HashState interface {
	BeginTick() error
	CommitTick(ctx context.Context) (*Delta, error)
	AbortTick(ctx context.Context) error

	// BuildFromTable adds the rows of added to table, reading their
	// current key values.
	BuildFromTable(ctx context.Context, table int, added *rowset.RowSet) error
	// RemoveFromTable removes the rows of removed from table, reading
	// their previous key values.
	RemoveFromTable(ctx context.Context, table int, removed *rowset.RowSet) error
	// ModifyFromTable handles rows whose values changed. When keyChanged
	// is set a row moves from its old slot to the slot of its new key.
	ModifyFromTable(ctx context.Context, table int, modified *rowset.RowSet, keyChanged bool) error
	// ShiftTable renames row keys of table, slots are untouched.
	ShiftTable(ctx context.Context, table int, sd *rowset.ShiftData) error

	// Lookup returns the slot of the key made of values, one per key
	// column, given in their logical or physical form.
	Lookup(values ...any) (int32, bool)

	SlotCount() int
	SlotHighWater() int32
	RowKeyForSlot(table int, slot int32) int64

	// The Prev accessors read the state as of the start of the last tick.
	// Within a tick they hide its writes, after commit they keep showing
	// the previous tick until the next one begins.
	LookupPrev(values ...any) (int32, bool)
	PrevSlotCount() int
	PrevRowKeyForSlot(table int, slot int32) int64

	KeyForSlot(slot int32) []any
	TableCount() int
	EnsureTableCapacity(n int)

	Capacity() int
	MaximumLoadFactor() float64
	TargetLoadFactor() float64
	InitialCapacity() int
	KeyTypes() []types.T
	Stats() Stats
}

// Stats is a point in time summary of a HashState.
type Stats struct {
	Capacity   int
	LiveCells  int
	Tombstones int
	LoadFactor float64
	SlotCount  int
	HighWater  int32
	FreeSlots  int
	Rehashes   int
	Ticks      uint64
}

type options struct {
	rejectNullKeys    bool
	checkInvariants   bool
	chunkSize         int
	parallelThreshold int
	parallelism       int
	logger            *zap.Logger
}

// Option configures a HashState built by Dispatch.
type Option func(*options)

// WithRejectNullKeys fails a tick adding a key whose fields hold a null
// sentinel.
func WithRejectNullKeys() Option {
	return func(o *options) {
		o.rejectNullKeys = true
	}
}

// WithInvariantChecks verifies the whole state after every commit.
func WithInvariantChecks() Option {
	return func(o *options) {
		o.checkInvariants = true
	}
}

func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithParallelism computes keys of row sets holding at least threshold
// rows on threads goroutines.
func WithParallelism(threshold, threads int) Option {
	return func(o *options) {
		o.parallelThreshold = threshold
		o.parallelism = threads
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.chunkSize <= 0 {
		o.chunkSize = defaultChunkSize
	}
	if o.parallelThreshold <= 0 {
		o.parallelThreshold = defaultParallelThreshold
	}
	return o
}
