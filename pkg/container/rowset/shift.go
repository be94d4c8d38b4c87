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

package rowset

import (
	"context"
	"fmt"
	"strings"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
)

// Shift moves every row key in [Begin, End] by Delta.
type Shift struct {
	Begin int64
	End   int64
	Delta int64
}

// ShiftData is an ordered list of non overlapping shifts, all ranges are
// expressed in pre-shift row key space.
type ShiftData struct {
	shifts []Shift
}

func NewShiftData() *ShiftData {
	return &ShiftData{}
}

// Add appends a shift. Ranges must be added in ascending order and must not
// overlap before or after shifting, zero deltas are dropped.
func (sd *ShiftData) Add(begin, end, delta int64) error {
	if begin < 0 || end < begin {
		return moerr.NewInvalidArg(context.TODO(), "shift range", fmt.Sprintf("[%d, %d]", begin, end))
	}
	if begin+delta < 0 {
		return moerr.NewInvalidArg(context.TODO(), "shift delta", delta)
	}
	if delta == 0 {
		return nil
	}
	if n := len(sd.shifts); n > 0 && sd.shifts[n-1].End >= begin {
		return moerr.NewInvalidInput(context.TODO(), "shift [%d, %d] overlaps or precedes [%d, %d]",
			begin, end, sd.shifts[n-1].Begin, sd.shifts[n-1].End)
	}
	if n := len(sd.shifts); n > 0 && sd.shifts[n-1].End+sd.shifts[n-1].Delta >= begin+delta {
		return moerr.NewInvalidInput(context.TODO(), "shift [%d, %d]%+d reorders row keys", begin, end, delta)
	}
	sd.shifts = append(sd.shifts, Shift{Begin: begin, End: end, Delta: delta})
	return nil
}

func (sd *ShiftData) Size() int {
	if sd == nil {
		return 0
	}
	return len(sd.shifts)
}

func (sd *ShiftData) IsEmpty() bool {
	return sd.Size() == 0
}

func (sd *ShiftData) Get(i int) Shift {
	return sd.shifts[i]
}

// ForEachMove visits every shift in an order that is safe for in place
// application: runs of negative deltas ascending, runs of positive deltas
// descending.
func (sd *ShiftData) ForEachMove(fn func(s Shift) error) error {
	n := sd.Size()
	for i := 0; i < n; {
		if sd.shifts[i].Delta < 0 {
			if err := fn(sd.shifts[i]); err != nil {
				return err
			}
			i++
			continue
		}
		j := i
		for j < n && sd.shifts[j].Delta > 0 {
			j++
		}
		for k := j - 1; k >= i; k-- {
			if err := fn(sd.shifts[k]); err != nil {
				return err
			}
		}
		i = j
	}
	return nil
}

// Apply rewrites rs in place.
func (sd *ShiftData) Apply(rs *RowSet) {
	_ = sd.ForEachMove(func(s Shift) error {
		moved := rs.Intersect(Range(s.Begin, s.End))
		if moved.IsEmpty() {
			return nil
		}
		rs.RemoveRange(s.Begin, s.End)
		moved.ForEach(func(k int64) bool {
			rs.Insert(k + s.Delta)
			return true
		})
		return nil
	})
}

// MapKey returns the post-shift row key of k.
func (sd *ShiftData) MapKey(k int64) int64 {
	for _, s := range sd.shifts {
		if k < s.Begin {
			break
		}
		if k <= s.End {
			return k + s.Delta
		}
	}
	return k
}

func (sd *ShiftData) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, s := range sd.shifts {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "[%d, %d]%+d", s.Begin, s.End, s.Delta)
	}
	sb.WriteByte('}')
	return sb.String()
}
