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

package testutil

import (
	"math/rand"

	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	"github.com/matrixorigin/multijoin/pkg/container/types"
	"github.com/matrixorigin/multijoin/pkg/vm/table"
)

// NewInt64Source returns a source holding values[i] at row key i.
func NewInt64Source(values ...int64) *column.ArraySource[int64] {
	return NewSource(values...)
}

func NewSource[T any](values ...T) *column.ArraySource[T] {
	src := column.NewArraySource[T]()
	for i, v := range values {
		src.Set(int64(i), v)
	}
	src.CommitPrev()
	return src
}

// NewRandomInt64Source returns n rows of keys drawn from [0, keySpace),
// or distinct keys when keySpace is not positive.
func NewRandomInt64Source(rnd *rand.Rand, n int, keySpace int64) *column.ArraySource[int64] {
	values := make([]int64, n)
	if keySpace <= 0 {
		for i, v := range rnd.Perm(n) {
			values[i] = int64(v)
		}
	} else {
		for i := range values {
			values[i] = rnd.Int63n(keySpace)
		}
	}
	return NewSource(values...)
}

// NewBoolSource maps 'T', 'F' and 'N' to true, false and null.
func NewBoolSource(flags string) *column.ArraySource[types.Boolean] {
	values := make([]types.Boolean, len(flags))
	for i, c := range flags {
		switch c {
		case 'T':
			values[i] = types.TrueBoolean
		case 'F':
			values[i] = types.FalseBoolean
		default:
			values[i] = types.NullBoolean
		}
	}
	return NewSource(values...)
}

// Flat returns the row set [0, n).
func Flat(n int) *rowset.RowSet {
	if n == 0 {
		return rowset.New()
	}
	return rowset.Range(0, int64(n-1))
}

// MustTable creates a table or panics.
func MustTable(name string, defs ...table.ColumnDef) *table.Table {
	t, err := table.New(name, defs...)
	if err != nil {
		panic(err)
	}
	return t
}

// Col is shorthand for a column definition.
func Col(name, typ string) table.ColumnDef {
	return table.ColumnDef{Name: name, Type: typ}
}

// MustAdd adds rows with consecutive row keys from first, one value per
// column in definition order.
func MustAdd(t *table.Table, first int64, rows ...[]any) {
	defs := t.Columns()
	for i, row := range rows {
		values := make(map[string]any, len(defs))
		for j, def := range defs {
			values[def.Name] = row[j]
		}
		if err := t.Add(first+int64(i), values); err != nil {
			panic(err)
		}
	}
}
