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

// Package replaytool replays a scripted sequence of table changes through
// multi joins and prints what every tick did to each join.
package replaytool

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matrixorigin/multijoin/pkg/config"
	"github.com/matrixorigin/multijoin/pkg/logutil"
	"github.com/matrixorigin/multijoin/pkg/sql/colexec/multijoin"
	"github.com/matrixorigin/multijoin/pkg/vm/table"
	"github.com/matrixorigin/multijoin/pkg/vm/updategraph"
)

type namedJoin struct {
	name     string
	join     *multijoin.MultiJoin
	pending  []*multijoin.ResultUpdate
	poisoned error
}

// Replayer owns the graph, tables and joins of one script.
type Replayer struct {
	param     *config.MultiJoinParameters
	out       io.Writer
	keepGoing bool

	graph  *updategraph.Graph
	tables map[string]*table.Table
	joins  []*namedJoin
}

type Option func(*Replayer)

// WithKeepGoing reports aborted ticks and continues with the next one.
// Joins poisoned by an aborted tick are reported, detached from the graph
// and skipped from then on.
func WithKeepGoing() Option {
	return func(r *Replayer) {
		r.keepGoing = true
	}
}

func NewReplayer(ctx context.Context, param *config.MultiJoinParameters, s *Script, out io.Writer, opts ...Option) (*Replayer, error) {
	if param == nil {
		param = config.Default()
	}
	r := &Replayer{
		param:  param,
		out:    out,
		tables: make(map[string]*table.Table, len(s.Tables)),
	}
	for _, opt := range opts {
		opt(r)
	}
	graph, err := updategraph.New(param.ListenerPoolSize)
	if err != nil {
		return nil, err
	}
	r.graph = graph
	for _, def := range s.Tables {
		t, err := table.New(def.Name, def.Columns...)
		if err != nil {
			r.Close()
			return nil, err
		}
		if err = graph.AddTable(t); err != nil {
			r.Close()
			return nil, err
		}
		r.tables[def.Name] = t
	}
	for _, def := range s.Joins {
		inputs := make([]multijoin.Input, len(def.Inputs))
		for i, in := range def.Inputs {
			inputs[i] = multijoin.Input{Table: r.tables[in.Table], KeyColumns: in.Keys}
		}
		j, err := multijoin.NewMultiJoin(ctx, param, inputs)
		if err != nil {
			r.Close()
			return nil, err
		}
		nj := &namedJoin{name: def.Name, join: j}
		j.Subscribe(func(ru *multijoin.ResultUpdate) {
			nj.pending = append(nj.pending, ru)
		})
		graph.AddListener(j)
		r.joins = append(r.joins, nj)
	}
	return r, nil
}

// Replay runs every tick of s in order.
func (r *Replayer) Replay(ctx context.Context, s *Script) error {
	for i, tick := range s.Ticks {
		if err := r.runTick(ctx, tick); err != nil {
			fmt.Fprintf(r.out, "tick %d aborted: %v\n", i+1, err)
			logutil.Warn("replay tick aborted", zap.Int("tick", i+1), zap.Error(err))
			if !r.keepGoing {
				return err
			}
			r.detachPoisoned(i + 1)
		}
		r.print(i + 1)
	}
	r.summary()
	return nil
}

func (r *Replayer) runTick(ctx context.Context, tick Tick) error {
	for _, op := range tick.Ops {
		if err := op.apply(r.tables[op.Table]); err != nil {
			// a failed op writes nothing, the ops before it still tick
			return multierr.Append(err, r.graph.RunTick(ctx))
		}
	}
	return r.graph.RunTick(ctx)
}

func (r *Replayer) detachPoisoned(tick int) {
	for _, nj := range r.joins {
		if nj.poisoned != nil {
			continue
		}
		if err := nj.join.Poisoned(); err != nil {
			nj.poisoned = err
			r.graph.RemoveListener(nj.join)
			fmt.Fprintf(r.out, "tick %d join %s poisoned: %v\n", tick, nj.name, err)
		}
	}
}

func (r *Replayer) print(tick int) {
	for _, nj := range r.joins {
		for _, ru := range nj.pending {
			fmt.Fprintf(r.out, "tick %d join %s: %s\n", tick, nj.name, ru.Delta)
		}
		nj.pending = nj.pending[:0]
	}
}

func (r *Replayer) summary() {
	for _, nj := range r.joins {
		if nj.poisoned != nil {
			fmt.Fprintf(r.out, "join %s: poisoned: %v\n", nj.name, nj.poisoned)
			continue
		}
		st := nj.join.State().Stats()
		fmt.Fprintf(r.out, "join %s: %d slots, capacity %d, load %.3f, %d rehashes, boxed %v\n",
			nj.name, st.SlotCount, st.Capacity, st.LoadFactor, st.Rehashes, nj.join.Boxed())
	}
}

// Poisoned returns the names of the joins detached after an aborted tick.
func (r *Replayer) Poisoned() []string {
	var names []string
	for _, nj := range r.joins {
		if nj.poisoned != nil {
			names = append(names, nj.name)
		}
	}
	return names
}

// Join returns the join declared under name.
func (r *Replayer) Join(name string) *multijoin.MultiJoin {
	for _, nj := range r.joins {
		if nj.name == name {
			return nj.join
		}
	}
	return nil
}

func (r *Replayer) Table(name string) *table.Table {
	return r.tables[name]
}

func (r *Replayer) Close() {
	for _, nj := range r.joins {
		r.graph.RemoveListener(nj.join)
		nj.join.Close()
	}
	if err := r.graph.Close(); err != nil {
		logutil.Warn("replay graph close failed", zap.Error(err))
	}
}

// Run loads a script and replays it with the parameters attached to ctx.
func Run(ctx context.Context, path string, out io.Writer, opts ...Option) error {
	s, err := LoadScript(path)
	if err != nil {
		return err
	}
	r, err := NewReplayer(ctx, config.GetParameterUnit(ctx).SV, s, out, opts...)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Replay(ctx, s)
}
