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

package replaytool

import (
	"context"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	"github.com/matrixorigin/multijoin/pkg/vm/table"
)

// Script describes tables, the joins over them and the ticks to replay.
type Script struct {
	Tables []TableDef `toml:"tables"`
	Joins  []JoinDef  `toml:"joins"`
	Ticks  []Tick     `toml:"ticks"`
}

type TableDef struct {
	Name    string            `toml:"name"`
	Columns []table.ColumnDef `toml:"columns"`
}

type JoinDef struct {
	Name   string     `toml:"name"`
	Inputs []InputDef `toml:"inputs"`
}

type InputDef struct {
	Table string   `toml:"table"`
	Keys  []string `toml:"keys"`
}

type Tick struct {
	Ops []Op `toml:"ops"`
}

const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpModify = "modify"
	OpShift  = "shift"
)

// Op is one change of a table. Add and modify write Values at Row, Nulls
// names columns set to null. Shift moves rows [Begin, End] by Delta.
type Op struct {
	Table  string         `toml:"table"`
	Op     string         `toml:"op"`
	Row    int64          `toml:"row"`
	Values map[string]any `toml:"values"`
	Nulls  []string       `toml:"nulls"`
	Begin  int64          `toml:"begin"`
	End    int64          `toml:"end"`
	Delta  int64          `toml:"delta"`
}

func LoadScript(path string) (*Script, error) {
	s := &Script{}
	if _, err := toml.DecodeFile(path, s); err != nil {
		return nil, moerr.NewInvalidInput(context.TODO(), "script %s: %v", path, err)
	}
	return s, s.Validate()
}

func ParseScript(data string) (*Script, error) {
	s := &Script{}
	if _, err := toml.Decode(data, s); err != nil {
		return nil, moerr.NewInvalidInput(context.TODO(), "script: %v", err)
	}
	return s, s.Validate()
}

// Validate checks names and ops refer to declared tables and columns.
func (s *Script) Validate() error {
	ctx := context.TODO()
	tables := make(map[string]TableDef, len(s.Tables))
	for _, t := range s.Tables {
		if _, ok := tables[t.Name]; ok {
			return moerr.NewInvalidInput(ctx, "table %s declared twice", t.Name)
		}
		tables[t.Name] = t
	}
	hasColumn := func(t TableDef, name string) bool {
		for _, c := range t.Columns {
			if c.Name == name {
				return true
			}
		}
		return false
	}
	for _, j := range s.Joins {
		if len(j.Inputs) == 0 {
			return moerr.NewInvalidInput(ctx, "join %s has no inputs", j.Name)
		}
		for _, in := range j.Inputs {
			t, ok := tables[in.Table]
			if !ok {
				return moerr.NewInvalidInput(ctx, "join %s reads unknown table %s", j.Name, in.Table)
			}
			for _, k := range in.Keys {
				if !hasColumn(t, k) {
					return moerr.NewInvalidInput(ctx, "join %s keys on unknown column %s.%s", j.Name, in.Table, k)
				}
			}
		}
	}
	for i, tick := range s.Ticks {
		for _, op := range tick.Ops {
			if _, ok := tables[op.Table]; !ok {
				return moerr.NewInvalidInput(ctx, "tick %d changes unknown table %s", i+1, op.Table)
			}
			switch op.Op {
			case OpAdd, OpRemove, OpModify, OpShift:
			default:
				return moerr.NewInvalidInput(ctx, "tick %d has unknown op %q", i+1, op.Op)
			}
		}
	}
	return nil
}

// apply performs op on t.
func (op *Op) apply(t *table.Table) error {
	values := make(map[string]any, len(op.Values)+len(op.Nulls))
	for k, v := range op.Values {
		values[k] = v
	}
	for _, k := range op.Nulls {
		values[k] = nil
	}
	switch op.Op {
	case OpAdd:
		return t.Add(op.Row, values)
	case OpModify:
		return t.Modify(op.Row, values)
	case OpRemove:
		return t.Remove(op.Row)
	case OpShift:
		sd := rowset.NewShiftData()
		if err := sd.Add(op.Begin, op.End, op.Delta); err != nil {
			return err
		}
		return t.Shift(sd)
	}
	return moerr.NewInvalidInput(context.TODO(), "unknown op %q", op.Op)
}
