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

package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"slices"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	"github.com/matrixorigin/multijoin/pkg/container/tuple"
	"github.com/matrixorigin/multijoin/pkg/vm/table"
)

// SlotView is the read side of a join state.
type SlotView interface {
	SlotCount() int
	SlotHighWater() int32
	RowKeyForSlot(table int, slot int32) int64
	KeyForSlot(slot int32) []any
}

// JoinInput names a table and its key columns.
type JoinInput struct {
	Table      *table.Table
	KeyColumns []string
}

func packKey(values []any) string {
	var p tuple.Packer
	for _, v := range values {
		p.EncodeValue(v)
	}
	return p.String()
}

// Recompute joins the current rows of inputs from scratch. Each entry
// maps a packed key to the row of every input holding it, NullRowKey where
// an input has none.
func Recompute(inputs []JoinInput) (map[string][]int64, error) {
	groups := make(map[string][]int64)
	for t, in := range inputs {
		srcs := make([]interface{ GetAny(int64) any }, len(in.KeyColumns))
		for i, name := range in.KeyColumns {
			srcs[i] = in.Table.Column(name)
		}
		var err error
		in.Table.RowSet().ForEach(func(rk int64) bool {
			values := make([]any, len(srcs))
			for i, src := range srcs {
				values[i] = src.GetAny(rk)
			}
			k := packKey(values)
			rows, ok := groups[k]
			if !ok {
				rows = make([]int64, len(inputs))
				for i := range rows {
					rows[i] = rowset.NullRowKey
				}
				groups[k] = rows
			}
			if rows[t] != rowset.NullRowKey {
				err = moerr.NewDuplicateKey(context.TODO(), t, -1, rk)
				return false
			}
			rows[t] = rk
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// Verify compares a join state with a recomputation of its inputs.
func Verify(view SlotView, inputs []JoinInput) error {
	want, err := Recompute(inputs)
	if err != nil {
		return err
	}
	live := 0
	for s := int32(0); s < view.SlotHighWater(); s++ {
		key := view.KeyForSlot(s)
		if key == nil {
			continue
		}
		rows := make([]int64, len(inputs))
		empty := true
		for t := range inputs {
			rows[t] = view.RowKeyForSlot(t, s)
			if rows[t] != rowset.NullRowKey {
				empty = false
			}
		}
		if empty {
			return fmt.Errorf("live slot %d holds no row", s)
		}
		live++
		k := packKey(key)
		exp, ok := want[k]
		if !ok {
			return fmt.Errorf("slot %d key %v is not in the recomputed join", s, key)
		}
		if !slices.Equal(exp, rows) {
			return fmt.Errorf("slot %d key %v holds rows %v, recomputed %v", s, key, rows, exp)
		}
		delete(want, k)
	}
	if len(want) > 0 {
		return fmt.Errorf("%d recomputed keys have no slot", len(want))
	}
	if live != view.SlotCount() {
		return fmt.Errorf("%d live slots, slot count %d", live, view.SlotCount())
	}
	return nil
}

// Generator makes random cycles of changes on single int64 key tables.
type Generator struct {
	rnd      *rand.Rand
	keySpace int64
	next     map[string]int64
}

func NewGenerator(seed int64, keySpace int64) *Generator {
	return &Generator{
		rnd:      rand.New(rand.NewSource(seed)),
		keySpace: keySpace,
		next:     make(map[string]int64),
	}
}

func (g *Generator) Rand() *rand.Rand {
	return g.rnd
}

// freeKey picks a key no current row holds, false when the key space
// is exhausted.
func (g *Generator) freeKey(used map[int64]bool) (int64, bool) {
	if int64(len(used)) >= g.keySpace {
		return 0, false
	}
	for {
		k := g.rnd.Int63n(g.keySpace)
		if !used[k] {
			return k, true
		}
	}
}

// Cycle applies ops random changes to t: removes, an optional shift,
// modifies of key and value columns and adds. Keys stay unique per table.
func (g *Generator) Cycle(t *table.Table, keyCol, valCol string, ops int) error {
	key := t.Column(keyCol)
	used := make(map[int64]bool)
	rows := t.RowSet()
	rows.ForEach(func(rk int64) bool {
		used[key.GetAny(rk).(int64)] = true
		return true
	})

	// removes
	for _, rk := range rows.ToSlice() {
		if g.rnd.Intn(ops+1) != 0 {
			continue
		}
		delete(used, key.GetAny(rk).(int64))
		if err := t.Remove(rk); err != nil {
			return err
		}
	}

	// shift everything past a pivot up by a few row keys
	rows = t.RowSet()
	if !rows.IsEmpty() && g.rnd.Intn(3) == 0 {
		pivot := rows.ToSlice()[g.rnd.Intn(int(rows.Size()))]
		sd := rowset.NewShiftData()
		if err := sd.Add(pivot, rows.LastRowKey(), 1+g.rnd.Int63n(3)); err != nil {
			return err
		}
		if err := t.Shift(sd); err != nil {
			return err
		}
	}

	// modifies
	rows = t.RowSet()
	for _, rk := range rows.ToSlice() {
		if g.rnd.Intn(ops+1) != 0 {
			continue
		}
		values := map[string]any{valCol: g.rnd.Int63()}
		if g.rnd.Intn(2) == 0 {
			if k, ok := g.freeKey(used); ok {
				delete(used, key.GetAny(rk).(int64))
				used[k] = true
				values[keyCol] = k
			}
		}
		if err := t.Modify(rk, values); err != nil {
			return err
		}
	}

	// adds past the last row key
	next := g.next[t.Name()]
	if last := t.RowSet().LastRowKey(); last >= next {
		next = last + 1
	}
	for i := 0; i < ops; i++ {
		k, ok := g.freeKey(used)
		if !ok {
			break
		}
		used[k] = true
		next += 1 + g.rnd.Int63n(2)
		if err := t.Add(next, map[string]any{keyCol: k, valCol: g.rnd.Int63()}); err != nil {
			return err
		}
	}
	g.next[t.Name()] = next + 1
	return nil
}
