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

package table

import (
	"context"
	"sort"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

type arrayColumn[T any] struct {
	*column.ArraySource[T]
	conv func(any) (T, bool)
}

func (c *arrayColumn[T]) set(rowKey int64, v any) error {
	x, ok := c.conv(v)
	if !ok {
		return moerr.NewInvalidInput(context.TODO(), "value %v (%T) does not fit a %s column", v, v, c.Type())
	}
	c.Set(rowKey, x)
	return nil
}

func (c *arrayColumn[T]) fits(v any) bool {
	_, ok := c.conv(v)
	return ok
}

func (c *arrayColumn[T]) remove(rowKey int64) {
	c.Remove(rowKey)
}

func (c *arrayColumn[T]) shift(sd *rowset.ShiftData) {
	c.Shift(sd)
}

func (c *arrayColumn[T]) commitPrev() {
	c.CommitPrev()
}

func newArrayColumn[T any](conv func(any) (T, bool)) writable {
	return &arrayColumn[T]{ArraySource: column.NewArraySource[T](), conv: conv}
}

// null returns the null sentinel of a numeric column.
func null[T any]() (T, bool) {
	var zero T
	n, ok := types.NullOf(types.TypeOf(zero)).(T)
	return n, ok
}

func integer[T constraints.Integer](v any) (T, bool) {
	switch x := v.(type) {
	case nil:
		return null[T]()
	case T:
		return x, true
	case int:
		if int(T(x)) == x {
			return T(x), true
		}
	case int64:
		if int64(T(x)) == x {
			return T(x), true
		}
	}
	return 0, false
}

func float[T constraints.Float](v any) (T, bool) {
	switch x := v.(type) {
	case nil:
		return null[T]()
	case T:
		return x, true
	case float64:
		return T(x), true
	case int:
		return T(x), true
	case int64:
		return T(x), true
	}
	return 0, false
}

func boolean(v any) (types.Boolean, bool) {
	switch x := v.(type) {
	case types.Boolean:
		return x, true
	case bool:
		return types.BooleanOf(x), true
	case nil:
		return types.NullBoolean, true
	}
	return types.NullBoolean, false
}

func timestamp(v any) (types.Timestamp, bool) {
	switch x := v.(type) {
	case types.Timestamp:
		return x, true
	case time.Time:
		return types.TimestampOf(x), true
	case nil:
		return types.NullTimestamp, true
	}
	return types.NullTimestamp, false
}

func char(v any) (uint16, bool) {
	switch x := v.(type) {
	case uint16:
		return x, true
	case rune:
		return types.CharOf(x), true
	case string:
		if r := []rune(x); len(r) == 1 {
			return types.CharOf(r[0]), true
		}
	case nil:
		return types.NullChar16, true
	}
	return 0, false
}

func reference(v any) (any, bool) {
	return v, true
}

func newColumn(typeName string) (writable, error) {
	switch typeName {
	case "bool", "boolean":
		return newArrayColumn(boolean), nil
	case "timestamp", "instant":
		return newArrayColumn(timestamp), nil
	case "string", "ref", "object":
		return newArrayColumn(reference), nil
	case "char", "char16":
		return newArrayColumn(char), nil
	}
	typ, ok := types.ParseT(typeName)
	if !ok {
		return nil, moerr.NewInvalidInput(context.TODO(), "unknown column type %s", typeName)
	}
	switch typ {
	case types.T_int8:
		return newArrayColumn(integer[int8]), nil
	case types.T_int16:
		return newArrayColumn(integer[int16]), nil
	case types.T_int32:
		return newArrayColumn(integer[int32]), nil
	case types.T_int64:
		return newArrayColumn(integer[int64]), nil
	case types.T_float32:
		return newArrayColumn(float[float32]), nil
	case types.T_float64:
		return newArrayColumn(float[float64]), nil
	}
	return nil, moerr.NewInvalidInput(context.TODO(), "unsupported column type %s", typeName)
}

// New creates an empty table.
func New(name string, defs ...ColumnDef) (*Table, error) {
	t := &Table{
		name:    name,
		defs:    defs,
		cols:    make([]writable, len(defs)),
		byName:  make(map[string]int, len(defs)),
		rows:    rowset.New(),
		pending: newPending(),
	}
	for i, def := range defs {
		if _, ok := t.byName[def.Name]; ok {
			return nil, moerr.NewInvalidInput(context.TODO(), "table %s: duplicate column %s", name, def.Name)
		}
		col, err := newColumn(def.Type)
		if err != nil {
			return nil, err
		}
		t.cols[i] = col
		t.byName[def.Name] = i
	}
	return t, nil
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Columns() []ColumnDef {
	return t.defs
}

// Column returns the logical source of a column, nil if there is none.
func (t *Table) Column(name string) column.Source {
	i, ok := t.byName[name]
	if !ok {
		return nil
	}
	return t.cols[i]
}

// RowSet returns a copy of the current rows.
func (t *Table) RowSet() *rowset.RowSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows.Copy()
}

func (t *Table) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows.Size()
}

// HasPending reports whether the cycle changed anything yet.
func (t *Table) HasPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &t.pending
	return !p.added.IsEmpty() || !p.removed.IsEmpty() || !p.modified.IsEmpty() || !p.shifted.IsEmpty()
}

func (t *Table) invalid(msg string, args ...any) error {
	return moerr.NewInvalidState(context.TODO(), "table "+t.name+": "+msg, args...)
}

// Add inserts a row, values must hold every column.
func (t *Table) Add(rowKey int64, values map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rowKey < 0 {
		return moerr.NewInvalidArg(context.TODO(), "row key", rowKey)
	}
	if t.rows.Contains(rowKey) {
		return t.invalid("row %d exists", rowKey)
	}
	if len(values) != len(t.defs) {
		return t.invalid("add of row %d sets %d of %d columns", rowKey, len(values), len(t.defs))
	}
	if err := t.write(rowKey, values); err != nil {
		return err
	}
	t.rows.Insert(rowKey)
	p := &t.pending
	if p.shifted.IsEmpty() && p.removed.Remove(rowKey) {
		// removed and added back within the cycle
		p.modified.Insert(rowKey)
		for _, def := range t.defs {
			p.modifiedCols[def.Name] = struct{}{}
		}
		return nil
	}
	p.added.Insert(rowKey)
	return nil
}

// Modify changes some columns of an existing row.
func (t *Table) Modify(rowKey int64, values map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.rows.Contains(rowKey) {
		return t.invalid("modify of missing row %d", rowKey)
	}
	if err := t.write(rowKey, values); err != nil {
		return err
	}
	p := &t.pending
	if p.added.Contains(rowKey) {
		return nil
	}
	p.modified.Insert(rowKey)
	for name := range values {
		p.modifiedCols[name] = struct{}{}
	}
	return nil
}

// Remove deletes a row. Removes must precede the shift of a cycle.
func (t *Table) Remove(rowKey int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &t.pending
	if !p.shifted.IsEmpty() {
		return t.invalid("remove of row %d after shift", rowKey)
	}
	if !t.rows.Remove(rowKey) {
		return t.invalid("remove of missing row %d", rowKey)
	}
	for _, col := range t.cols {
		col.remove(rowKey)
	}
	if p.added.Remove(rowKey) {
		return nil
	}
	p.modified.Remove(rowKey)
	p.removed.Insert(rowKey)
	return nil
}

// Shift renames row keys. A cycle shifts at most once, before any add or
// modify, and a shift must not move a row onto another.
func (t *Table) Shift(sd *rowset.ShiftData) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &t.pending
	if sd.IsEmpty() {
		return nil
	}
	if !p.shifted.IsEmpty() {
		return t.invalid("second shift in one cycle")
	}
	if !p.added.IsEmpty() || !p.modified.IsEmpty() {
		return t.invalid("shift after add or modify")
	}
	rows := t.rows.Copy()
	sd.Apply(rows)
	if rows.Size() != t.rows.Size() {
		return t.invalid("shift %s collides with existing rows", sd)
	}
	for _, col := range t.cols {
		col.shift(sd)
	}
	t.rows = rows
	p.shifted = sd
	return nil
}

func (t *Table) write(rowKey int64, values map[string]any) error {
	for name, v := range values {
		i, ok := t.byName[name]
		if !ok {
			return t.invalid("no column %s", name)
		}
		if !t.cols[i].fits(v) {
			return moerr.NewInvalidInput(context.TODO(), "value %v (%T) does not fit column %s of type %s",
				v, v, name, t.defs[i].Type)
		}
	}
	for name, v := range values {
		if err := t.cols[t.byName[name]].set(rowKey, v); err != nil {
			return err
		}
	}
	return nil
}

// Flush ends the cycle and returns what it changed.
func (t *Table) Flush() *Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.pending
	t.pending = newPending()
	u := &Update{
		Added:    p.added,
		Removed:  p.removed,
		Modified: p.modified,
		Shifted:  p.shifted,
	}
	for name := range p.modifiedCols {
		u.ModifiedColumns = append(u.ModifiedColumns, name)
	}
	sort.Strings(u.ModifiedColumns)
	return u
}

// CommitPrev drops the previous view of every column, readers of the last
// cycle must be done.
func (t *Table) CommitPrev() {
	for _, col := range t.cols {
		col.commitPrev()
	}
}
