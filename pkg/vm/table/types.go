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
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
)

// ColumnDef names a column and its logical type, see types.ParseValue for
// the accepted type names.
type ColumnDef struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// Update is what one cycle did to a table. Removed row keys are in pre
// shift space, Added and Modified in post shift space.
type Update struct {
	Added           *rowset.RowSet
	Removed         *rowset.RowSet
	Modified        *rowset.RowSet
	Shifted         *rowset.ShiftData
	ModifiedColumns []string
}

// EmptyUpdate returns an update changing nothing.
func EmptyUpdate() *Update {
	return &Update{
		Added:    rowset.New(),
		Removed:  rowset.New(),
		Modified: rowset.New(),
		Shifted:  rowset.NewShiftData(),
	}
}

func (u *Update) IsEmpty() bool {
	return u.Added.IsEmpty() && u.Removed.IsEmpty() && u.Modified.IsEmpty() && u.Shifted.IsEmpty()
}

// ModifiedAny reports whether any of cols was modified.
func (u *Update) ModifiedAny(cols []string) bool {
	for _, c := range cols {
		if slices.Contains(u.ModifiedColumns, c) {
			return true
		}
	}
	return false
}

func (u *Update) String() string {
	return fmt.Sprintf("added=%s removed=%s modified=%s(%s) shifted=%s",
		u.Added, u.Removed, u.Modified, strings.Join(u.ModifiedColumns, ","), u.Shifted)
}

// writable is a column the table can write through.
type writable interface {
	column.Source
	fits(v any) bool
	set(rowKey int64, v any) error
	remove(rowKey int64)
	shift(sd *rowset.ShiftData)
	commitPrev()
}

type pending struct {
	added        *rowset.RowSet
	removed      *rowset.RowSet
	modified     *rowset.RowSet
	shifted      *rowset.ShiftData
	modifiedCols map[string]struct{}
}

func newPending() pending {
	return pending{
		added:        rowset.New(),
		removed:      rowset.New(),
		modified:     rowset.New(),
		shifted:      rowset.NewShiftData(),
		modifiedCols: make(map[string]struct{}),
	}
}

// Table is an in memory table refreshed in cycles. Mutations write through
// to the columns at once, the previous view of every column keeps the
// values of the last cycle until CommitPrev.
type Table struct {
	mu      sync.Mutex
	name    string
	defs    []ColumnDef
	cols    []writable
	byName  map[string]int
	rows    *rowset.RowSet
	pending pending
}
