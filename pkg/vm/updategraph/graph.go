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

// Package updategraph drives refreshing tables in ticks. Each tick flushes
// every table, hands the updates to every listener and only then releases
// the previous values the listeners may have read.
package updategraph

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/logutil"
	v2 "github.com/matrixorigin/multijoin/pkg/util/metric/v2"
	"github.com/matrixorigin/multijoin/pkg/vm/table"
)

const closeTimeout = 5 * time.Second

// Listener consumes the updates of one tick. OnUpdate of one listener is
// never called concurrently with itself.
type Listener interface {
	Name() string
	OnUpdate(ctx context.Context, step uint64, updates Updates) error
}

// Updates maps table names to the update of the tick.
type Updates map[string]*table.Update

// Get returns the update of a table, empty when the table did not change.
func (u Updates) Get(name string) *table.Update {
	if upd, ok := u[name]; ok {
		return upd
	}
	return table.EmptyUpdate()
}

type Graph struct {
	mu        sync.Mutex
	step      uint64
	tables    []*table.Table
	byName    map[string]*table.Table
	listeners []Listener
	pool      *ants.Pool
}

// New creates a graph delivering updates on at most poolSize goroutines.
func New(poolSize int) (*Graph, error) {
	if poolSize <= 0 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, moerr.ConvertGoError(context.TODO(), err)
	}
	return &Graph{
		byName: make(map[string]*table.Table),
		pool:   pool,
	}, nil
}

func (g *Graph) AddTable(t *table.Table) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byName[t.Name()]; ok {
		return moerr.NewInvalidInput(context.TODO(), "table %s already registered", t.Name())
	}
	g.tables = append(g.tables, t)
	g.byName[t.Name()] = t
	return nil
}

func (g *Graph) Table(name string) *table.Table {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byName[name]
}

func (g *Graph) AddListener(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

// RemoveListener detaches l, later ticks no longer deliver to it.
func (g *Graph) RemoveListener(l Listener) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, x := range g.listeners {
		if x == l {
			g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Step is the number of the last tick run.
func (g *Graph) Step() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.step
}

// RunTick flushes all tables and delivers their updates. Listener errors
// are merged into the returned error, previous values are released in
// any case.
func (g *Graph) RunTick(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.step++
	step := g.step
	v2.UpdateGraphTickCounter().Inc()

	updates := make(Updates, len(g.tables))
	for _, t := range g.tables {
		if u := t.Flush(); !u.IsEmpty() {
			updates[t.Name()] = u
		}
	}
	defer func() {
		for _, t := range g.tables {
			t.CommitPrev()
		}
	}()
	if len(updates) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs error
	)
	record := func(l Listener, err error) {
		v2.UpdateGraphListenerErrorCounter.Inc()
		logutil.Warn("update graph listener failed",
			zap.String("listener", l.Name()),
			zap.Uint64("step", step),
			zap.Error(err))
		emu.Lock()
		errs = multierr.Append(errs, err)
		emu.Unlock()
	}
	for _, l := range g.listeners {
		l := l
		wg.Add(1)
		err := g.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					record(l, moerr.ConvertPanicError(ctx, r))
				}
			}()
			if err := l.OnUpdate(ctx, step, updates); err != nil {
				record(l, err)
			}
		})
		if err != nil {
			wg.Done()
			record(l, moerr.ConvertGoError(ctx, err))
		}
	}
	wg.Wait()
	return errs
}

// Close releases the listener pool and waits for its workers to exit.
func (g *Graph) Close() error {
	if err := g.pool.ReleaseTimeout(closeTimeout); err != nil {
		return moerr.ConvertGoError(context.TODO(), err)
	}
	return nil
}
