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
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/config"
	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	"github.com/matrixorigin/multijoin/pkg/logutil"
	v2 "github.com/matrixorigin/multijoin/pkg/util/metric/v2"
	"github.com/matrixorigin/multijoin/pkg/vm/table"
	"github.com/matrixorigin/multijoin/pkg/vm/updategraph"
)

const opName = "multi_join"

// Input is one joined table and the columns forming its key.
type Input struct {
	Table      *table.Table
	KeyColumns []string
}

// ResultUpdate is what a tick did to the join result. The result has one
// row per slot and uses the slot as its row key.
type ResultUpdate struct {
	Step     uint64
	Added    *rowset.RowSet
	Removed  *rowset.RowSet
	Modified *rowset.RowSet
	// ModifiedTables[t] holds the modified result rows whose row of input
	// t changed.
	ModifiedTables []*rowset.RowSet
	Delta          *Delta
}

func (ru *ResultUpdate) IsEmpty() bool {
	return ru.Added.IsEmpty() && ru.Removed.IsEmpty() && ru.Modified.IsEmpty()
}

// Subscriber receives every committed result update in tick order.
type Subscriber func(*ResultUpdate)

// MultiJoin maintains the join of its inputs on their key columns and
// keeps it current as the update graph ticks.
type MultiJoin struct {
	sync.Mutex
	id          uuid.UUID
	inputs      []Input
	state       HashState
	boxed       bool
	subscribers []Subscriber
	poisoned    error
	logger      *zap.Logger
}

var _ updategraph.Listener = (*MultiJoin)(nil)

// NewMultiJoin dispatches a hash state for the key columns of inputs and
// builds it from their current rows in a first tick. The inputs must not
// hold pending changes.
func NewMultiJoin(ctx context.Context, param *config.MultiJoinParameters, inputs []Input, opts ...Option) (*MultiJoin, error) {
	if len(inputs) == 0 {
		return nil, moerr.NewInvalidInput(ctx, "multi join without inputs")
	}
	if param == nil {
		param = config.Default()
	}
	original := make([][]column.Source, len(inputs))
	for i, in := range inputs {
		if in.Table.HasPending() {
			return nil, moerr.NewInvalidState(ctx, "table %s has pending changes", in.Table.Name())
		}
		original[i] = make([]column.Source, len(in.KeyColumns))
		for k, name := range in.KeyColumns {
			src := in.Table.Column(name)
			if src == nil {
				return nil, moerr.NewInvalidInput(ctx, "table %s has no column %s", in.Table.Name(), name)
			}
			original[i][k] = src
		}
	}

	j := &MultiJoin{
		id:     uuid.New(),
		inputs: inputs,
	}
	j.logger = logutil.GetGlobalLogger().With(zap.String("multijoin", j.id.String()))

	all := []Option{
		WithChunkSize(param.ChunkSize),
		WithParallelism(param.ParallelThreshold, param.Parallelism),
		WithLogger(j.logger),
	}
	if param.RejectNullKeys {
		all = append(all, WithRejectNullKeys())
	}
	all = append(all, opts...)

	state, err := Dispatch(nil, original, param.InitialCapacity, param.MaximumLoadFactor, param.TargetLoadFactor, all...)
	if moerr.IsMoErrCode(err, moerr.ErrUnsupportedKeyTypeCombination) && param.BoxedFallback() {
		j.logger.Info("multijoin falls back to boxed keys", zap.Error(err))
		state, err = DispatchBoxed(nil, original, param.InitialCapacity, param.MaximumLoadFactor, param.TargetLoadFactor, all...)
		j.boxed = true
	}
	if err != nil {
		return nil, err
	}
	j.state = state

	if err = state.BeginTick(); err != nil {
		return nil, err
	}
	for i, in := range inputs {
		if err = state.BuildFromTable(ctx, i, in.Table.RowSet()); err != nil {
			_ = state.AbortTick(ctx)
			return nil, err
		}
	}
	if _, err = state.CommitTick(ctx); err != nil {
		return nil, err
	}
	v2.MultiJoinLiveSlotsGauge.WithLabelValues(j.id.String()).Set(float64(state.SlotCount()))
	j.logger.Info("multijoin created",
		zap.Int("inputs", len(inputs)),
		zap.Stringers("keyTypes", state.KeyTypes()),
		zap.Bool("boxed", j.boxed),
		zap.Int("slots", state.SlotCount()))
	return j, nil
}

func (j *MultiJoin) String(buf *bytes.Buffer) {
	buf.WriteString(opName)
	buf.WriteString(": ")
	for i, in := range j.inputs {
		if i > 0 {
			buf.WriteString(" join ")
		}
		fmt.Fprintf(buf, "%s%v", in.Table.Name(), in.KeyColumns)
	}
}

func (j *MultiJoin) Name() string {
	return opName + "-" + j.id.String()
}

func (j *MultiJoin) ID() uuid.UUID {
	return j.id
}

// State exposes the hash state to result builders.
func (j *MultiJoin) State() HashState {
	return j.state
}

// Boxed reports whether the join fell back to packed keys.
func (j *MultiJoin) Boxed() bool {
	return j.boxed
}

func (j *MultiJoin) Subscribe(s Subscriber) {
	j.Lock()
	defer j.Unlock()
	j.subscribers = append(j.subscribers, s)
}

// OnUpdate applies one tick of input updates. Per input, in input order:
// removes against the previous values, then the shift, then modifies and
// finally adds. Any error aborts the tick and poisons the join: the hash
// state rolls back to the previous tick while the graph still commits the
// inputs, so the join can no longer follow them.
func (j *MultiJoin) OnUpdate(ctx context.Context, step uint64, updates updategraph.Updates) (err error) {
	j.Lock()
	defer j.Unlock()
	if j.poisoned != nil {
		return moerr.NewStatePoisoned(ctx, j.poisoned.Error())
	}

	start := time.Now()
	defer func() {
		v2.MultiJoinTickDurationHistogram.Observe(time.Since(start).Seconds())
	}()
	if err = j.state.BeginTick(); err != nil {
		return err
	}
	if err = j.apply(ctx, updates); err != nil {
		if aerr := j.state.AbortTick(ctx); aerr != nil {
			j.logger.Error("multijoin abort failed", zap.Uint64("step", step), zap.Error(aerr))
		}
		j.logger.Warn("multijoin tick aborted", zap.Uint64("step", step), zap.Error(err))
		j.poison(err)
		return err
	}
	d, err := j.state.CommitTick(ctx)
	if err != nil {
		j.poison(err)
		return err
	}
	v2.MultiJoinLiveSlotsGauge.WithLabelValues(j.id.String()).Set(float64(j.state.SlotCount()))

	ru := j.resultUpdate(step, d)
	if !ru.IsEmpty() {
		for _, s := range j.subscribers {
			s(ru)
		}
	}
	return nil
}

func (j *MultiJoin) poison(err error) {
	j.poisoned = err
	v2.MultiJoinLiveSlotsGauge.DeleteLabelValues(j.id.String())
}

func (j *MultiJoin) apply(ctx context.Context, updates updategraph.Updates) error {
	for i, in := range j.inputs {
		u := updates.Get(in.Table.Name())
		if u.IsEmpty() {
			continue
		}
		if err := j.state.RemoveFromTable(ctx, i, u.Removed); err != nil {
			return err
		}
		if err := j.state.ShiftTable(ctx, i, u.Shifted); err != nil {
			return err
		}
		if err := j.state.ModifyFromTable(ctx, i, u.Modified, u.ModifiedAny(in.KeyColumns)); err != nil {
			return err
		}
		if err := j.state.BuildFromTable(ctx, i, u.Added); err != nil {
			return err
		}
	}
	return nil
}

func (j *MultiJoin) resultUpdate(step uint64, d *Delta) *ResultUpdate {
	ru := &ResultUpdate{
		Step:           step,
		Added:          d.Slots(AddedSlot),
		Removed:        d.Slots(SlotEmptied),
		Modified:       rowset.New(),
		ModifiedTables: make([]*rowset.RowSet, len(j.inputs)),
		Delta:          d,
	}
	for i := range ru.ModifiedTables {
		ru.ModifiedTables[i] = rowset.New()
	}
	for _, e := range d.Events {
		if e.Table < 0 {
			continue
		}
		s := int64(e.Slot)
		if ru.Added.Contains(s) || ru.Removed.Contains(s) {
			continue
		}
		ru.Modified.Insert(s)
		ru.ModifiedTables[e.Table].Insert(s)
	}
	return ru
}

// Size is the number of result rows.
func (j *MultiJoin) Size() int {
	return j.state.SlotCount()
}

// RowKeyForSlot returns the row of input table joined at slot.
func (j *MultiJoin) RowKeyForSlot(table int, slot int32) int64 {
	return j.state.RowKeyForSlot(table, slot)
}

// PrevRowKeyForSlot is RowKeyForSlot before the last tick, subscribers use
// it to read the rows of removed results.
func (j *MultiJoin) PrevRowKeyForSlot(table int, slot int32) int64 {
	return j.state.PrevRowKeyForSlot(table, slot)
}

// KeyValues returns the key of the result row at slot.
func (j *MultiJoin) KeyValues(slot int32) []any {
	return j.state.KeyForSlot(slot)
}

// Lookup returns the result row of a key.
func (j *MultiJoin) Lookup(values ...any) (int32, bool) {
	return j.state.Lookup(values...)
}

// LookupPrev returns the result row a key had before the last tick.
func (j *MultiJoin) LookupPrev(values ...any) (int32, bool) {
	return j.state.LookupPrev(values...)
}

// Poisoned returns the error that made the join unusable, if any.
func (j *MultiJoin) Poisoned() error {
	j.Lock()
	defer j.Unlock()
	return j.poisoned
}

// Close drops the metrics of the join. The join must already be detached
// from its graph.
func (j *MultiJoin) Close() {
	j.Lock()
	defer j.Unlock()
	v2.MultiJoinLiveSlotsGauge.DeleteLabelValues(j.id.String())
}
