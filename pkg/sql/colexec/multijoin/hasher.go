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
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/matrixorigin/multijoin/pkg/common/concurrent"
	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/hashtable"
	"github.com/matrixorigin/multijoin/pkg/container/rowset"
	"github.com/matrixorigin/multijoin/pkg/container/tuple"
	"github.com/matrixorigin/multijoin/pkg/container/types"
	"github.com/matrixorigin/multijoin/pkg/logutil"
	v2 "github.com/matrixorigin/multijoin/pkg/util/metric/v2"
)

var _ HashState = (*Hasher[int64])(nil)

// rowSlot is one entry of a per table reverse index.
type rowSlot struct {
	rowKey int64
	slot   int32
}

func rowSlotLess(a, b rowSlot) bool {
	return a.rowKey < b.rowKey
}

// Hasher is the HashState of keys of type K. One reader per input table
// turns rows into keys, all readers agree on K and on hashing.
type Hasher[K comparable] struct {
	mu sync.RWMutex

	readers  []tuple.Reader[K]
	original [][]column.Source
	opts     options
	executor concurrent.ThreadPoolExecutor
	logger   *zap.Logger

	initialCapacity int
	table           *hashtable.SlotTable[K]

	// slotCols[t][s] is the row of table t holding the key of slot s
	slotCols [][]int64
	// reverse[t] maps row keys of table t back to slots
	reverse []*btree.BTreeG[rowSlot]

	free      *roaring.Bitmap
	highWater int32
	live      int

	tick     uint64
	open     bool
	journal  []undo
	tracker  *tracker
	prev     *prevView[K]
	poisoned error
}

func newHasher[K comparable](
	readers []tuple.Reader[K],
	original [][]column.Source,
	initialCapacity int,
	maxLoad, targetLoad float64,
	opts options) *Hasher[K] {
	h := &Hasher[K]{
		readers:         readers,
		original:        original,
		opts:            opts,
		executor:        concurrent.NewThreadPoolExecutor(opts.parallelism),
		initialCapacity: initialCapacity,
		table:           hashtable.NewSlotTable[K](initialCapacity, maxLoad, targetLoad),
		slotCols:        make([][]int64, len(readers)),
		reverse:         make([]*btree.BTreeG[rowSlot], len(readers)),
		free:            roaring.New(),
		tracker:         newTracker(),
		prev:            newPrevView[K](),
	}
	h.logger = opts.logger
	if h.logger == nil {
		h.logger = logutil.GetGlobalLogger()
	}
	for i := range h.reverse {
		h.reverse[i] = btree.NewBTreeGOptions(rowSlotLess, btree.Options{NoLocks: true})
	}
	return h
}

func (h *Hasher[K]) internal(msg string, args ...any) *moerr.Error {
	return moerr.NewInternalError(context.TODO(), msg, args...)
}

func (h *Hasher[K]) checkTick(ctx context.Context, table int) error {
	if h.poisoned != nil {
		return moerr.NewStatePoisoned(ctx, h.poisoned.Error())
	}
	if !h.open {
		return moerr.NewTickNotOpen(ctx)
	}
	if table < 0 || table >= len(h.readers) {
		return moerr.NewInvalidArg(ctx, "table index", table)
	}
	return nil
}

// recoverTick turns a panic of a tick operation into an error, the tick
// stays open and must be aborted by the caller.
func recoverTick(ctx context.Context, err *error) {
	if r := recover(); r != nil {
		*err = moerr.ConvertPanicError(ctx, r)
	}
}

func (h *Hasher[K]) BeginTick() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.poisoned != nil {
		return moerr.NewStatePoisoned(context.TODO(), h.poisoned.Error())
	}
	if h.open {
		return moerr.NewTickAlreadyOpen(context.TODO(), h.tick)
	}
	h.tick++
	h.open = true
	h.prev.reset(h.live, h.highWater)
	return nil
}

func (h *Hasher[K]) AbortTick(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return moerr.NewTickNotOpen(ctx)
	}
	h.rollback()
	h.tracker.reset()
	h.prev.reset(h.live, h.highWater)
	h.open = false
	v2.MultiJoinTickAbortCounter.Inc()
	return nil
}

func (h *Hasher[K]) CommitTick(ctx context.Context) (d *Delta, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.poisoned != nil {
		return nil, moerr.NewStatePoisoned(ctx, h.poisoned.Error())
	}
	if !h.open {
		return nil, moerr.NewTickNotOpen(ctx)
	}
	defer func() {
		if r := recover(); r != nil {
			err = moerr.NewPostcommitAssertion(ctx, "%v", r)
		}
		if err != nil {
			d = nil
			h.poison(err)
		}
	}()

	emptied := roaring.New()
	candidates := roaring.Or(h.tracker.shrunk, h.tracker.created)
	it := candidates.Iterator()
	for it.HasNext() {
		s := int32(it.Next())
		if h.isEmptyLocked(s) {
			emptied.Add(uint32(s))
		}
	}
	d = h.tracker.delta(h.tick, emptied, h.rowKeyLocked, h.keyForSlotLocked)

	it = emptied.Iterator()
	for it.HasNext() {
		s := int32(it.Next())
		key := h.table.Key(s)
		if got := h.table.Delete(h.readers[0].Hash(key), key); got != s {
			return nil, moerr.NewPostcommitAssertion(ctx, "freeing slot %d found slot %d", s, got)
		}
		if !h.prev.created.Contains(uint32(s)) {
			h.prev.freed[key] = s
		}
		h.free.Add(uint32(s))
		h.live--
	}
	if lf := h.table.LoadFactor(); lf > h.table.MaximumLoadFactor() {
		return nil, moerr.NewPostcommitAssertion(ctx, "load factor %v exceeds %v", lf, h.table.MaximumLoadFactor())
	}
	if h.opts.checkInvariants {
		if err = h.verifyLocked(ctx); err != nil {
			return nil, err
		}
	}

	clear(h.journal)
	h.journal = h.journal[:0]
	h.tracker.reset()
	h.open = false
	v2.MultiJoinTickCommitCounter.Inc()
	recordDeltaMetrics(d)
	return d, nil
}

// poison marks the state unusable, it no longer reflects its inputs.
func (h *Hasher[K]) poison(err error) {
	h.poisoned = err
	h.open = false
	v2.MultiJoinTickPoisonCounter.Inc()
	h.logger.Error("multijoin state poisoned",
		zap.Uint64("tick", h.tick),
		zap.Error(err))
}

func (h *Hasher[K]) isEmptyLocked(slot int32) bool {
	for t := range h.slotCols {
		if h.slotCols[t][slot] != rowset.NullRowKey {
			return false
		}
	}
	return true
}

// allocSlot returns the lowest free slot, or a new one past the high water
// mark. Slots freed by the open tick are not free yet.
func (h *Hasher[K]) allocSlot(table int) int32 {
	var s int32
	fromFree := !h.free.IsEmpty()
	if fromFree {
		s = int32(h.free.Minimum())
		h.free.Remove(uint32(s))
	} else {
		s = h.highWater
		h.highWater++
		h.growSlotCols(int(h.highWater))
	}
	h.live++
	h.journal = append(h.journal, undo{kind: undoAlloc, slot: s, fromFree: fromFree})
	h.tracker.create(s, table)
	h.prev.created.Add(uint32(s))
	return s
}

func (h *Hasher[K]) growSlotCols(n int) {
	for t, col := range h.slotCols {
		if n <= len(col) {
			continue
		}
		grown := make([]int64, max(2*len(col), n, h.initialCapacity))
		copy(grown, col)
		for i := len(col); i < len(grown); i++ {
			grown[i] = rowset.NullRowKey
		}
		h.slotCols[t] = grown
	}
}

// setRowKey journals and tracks a write of the row key of (slot, table).
func (h *Hasher[K]) setRowKey(table int, slot int32, rowKey int64) *inputChange {
	old := h.slotCols[table][slot]
	h.journal = append(h.journal, undo{kind: undoSetRowKey, slot: slot, table: table, rowKey: old})
	c := h.tracker.touch(slot, table, old)
	h.prev.remember(slot, table, old)
	h.writeRowKey(table, slot, rowKey)
	if rowKey == rowset.NullRowKey {
		h.tracker.shrunk.Add(uint32(slot))
	}
	return c
}

func (h *Hasher[K]) writeRowKey(table int, slot int32, rowKey int64) {
	old := h.slotCols[table][slot]
	if old != rowset.NullRowKey {
		h.reverse[table].Delete(rowSlot{rowKey: old})
	}
	h.slotCols[table][slot] = rowKey
	if rowKey != rowset.NullRowKey {
		h.reverse[table].Set(rowSlot{rowKey: rowKey, slot: slot})
	}
}

// keyBatch holds the keys and hashes of an ordered list of rows.
type keyBatch[K comparable] struct {
	rows   []int64
	keys   []K
	hashes []uint64
}

// computeKeys reads the keys of rows of table one chunk at a time. Large
// inputs are split into chunk aligned partitions read in parallel, each
// with its own context.
func (h *Hasher[K]) computeKeys(ctx context.Context, table int, rows *rowset.RowSet, prev bool) (*keyBatch[K], error) {
	n := int(rows.Size())
	kb := &keyBatch[K]{
		keys:   make([]K, n),
		hashes: make([]uint64, n),
	}
	if n == 0 {
		return kb, nil
	}
	chunkSize := h.opts.chunkSize
	reader := h.readers[table]
	fill := func(rctx *tuple.Context, lo, hi int) {
		reader.Fill(rctx, kb.rows[lo:hi], prev, kb.keys[lo:hi])
		for i := lo; i < hi; i++ {
			kb.hashes[i] = reader.Hash(kb.keys[i])
		}
	}
	closeContext := func(rctx *tuple.Context, err *error) {
		if cerr := rctx.Close(); *err == nil {
			*err = cerr
		}
	}

	if n < h.opts.parallelThreshold || h.executor.Threads() < 2 {
		kb.rows = make([]int64, 0, n)
		var err error
		func() {
			defer recoverTick(ctx, &err)
			rctx := reader.NewContext(chunkSize)
			defer closeContext(rctx, &err)
			err = rows.ForEachChunk(chunkSize, func(chunk []int64) error {
				lo := len(kb.rows)
				kb.rows = append(kb.rows, chunk...)
				fill(rctx, lo, len(kb.rows))
				return nil
			})
		}()
		return kb, err
	}
	kb.rows = rows.ToSlice()
	err := h.executor.ExecuteAligned(ctx, n, chunkSize, func(_ context.Context, _ int, start, end int) (err error) {
		rctx := reader.NewContext(chunkSize)
		defer closeContext(rctx, &err)
		for lo := start; lo < end; lo += chunkSize {
			fill(rctx, lo, min(lo+chunkSize, end))
		}
		return nil
	})
	return kb, err
}

func (h *Hasher[K]) checkNull(ctx context.Context, table int, kb *keyBatch[K]) error {
	if !h.opts.rejectNullKeys {
		return nil
	}
	reader := h.readers[table]
	for i, k := range kb.keys {
		if reader.IsNull(k) {
			return moerr.NewNullKey(ctx, table, kb.rows[i])
		}
	}
	return nil
}

func (h *Hasher[K]) BuildFromTable(ctx context.Context, table int, added *rowset.RowSet) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err = h.checkTick(ctx, table); err != nil {
		return err
	}
	defer recoverTick(ctx, &err)
	kb, err := h.computeKeys(ctx, table, added, false)
	if err != nil {
		return err
	}
	if err = h.checkNull(ctx, table, kb); err != nil {
		return err
	}
	return h.build(ctx, table, kb)
}

func (h *Hasher[K]) build(ctx context.Context, table int, kb *keyBatch[K]) error {
	rehashes := h.table.Rehashes()
	defer h.noteRehash(rehashes)
	for i, rk := range kb.rows {
		if err := h.buildOne(ctx, table, rk, kb.keys[i], kb.hashes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hasher[K]) buildOne(ctx context.Context, table int, rowKey int64, key K, hash uint64) error {
	slot, pos := h.table.Probe(hash, key)
	if slot == hashtable.EmptySlot {
		if h.table.EnsureCapacity(1) {
			_, pos = h.table.Probe(hash, key)
		}
		slot = h.allocSlot(table)
		h.table.InstallAt(pos, hash, key, slot)
		h.journal = append(h.journal, undo{kind: undoInstall, slot: slot, hash: hash})
	} else if old := h.slotCols[table][slot]; old != rowset.NullRowKey {
		v2.MultiJoinDuplicateKeyCounter.Inc()
		return moerr.NewDuplicateKey(ctx, table, slot, rowKey)
	}
	c := h.setRowKey(table, slot, rowKey)
	c.added = true
	return nil
}

func (h *Hasher[K]) noteRehash(before int) {
	if n := h.table.Rehashes() - before; n > 0 {
		v2.MultiJoinRehashCounter.Add(float64(n))
		h.logger.Debug("multijoin hash table rehashed",
			zap.Uint64("tick", h.tick),
			zap.Int("capacity", h.table.Capacity()),
			zap.Int("live", h.table.Live()))
	}
}

func (h *Hasher[K]) RemoveFromTable(ctx context.Context, table int, removed *rowset.RowSet) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err = h.checkTick(ctx, table); err != nil {
		return err
	}
	defer recoverTick(ctx, &err)
	kb, err := h.computeKeys(ctx, table, removed, true)
	if err != nil {
		return err
	}
	for i, rk := range kb.rows {
		slot := h.table.Find(kb.hashes[i], kb.keys[i])
		if slot == hashtable.EmptySlot {
			return moerr.NewPrecommitAssertion(ctx, "removed row %d of table %d has no slot", rk, table)
		}
		if held := h.slotCols[table][slot]; held != rk {
			return moerr.NewPrecommitAssertion(ctx, "removed row %d of table %d but slot %d holds row %d",
				rk, table, slot, held)
		}
		h.setRowKey(table, slot, rowset.NullRowKey)
	}
	return nil
}

func (h *Hasher[K]) ModifyFromTable(ctx context.Context, table int, modified *rowset.RowSet, keyChanged bool) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err = h.checkTick(ctx, table); err != nil {
		return err
	}
	defer recoverTick(ctx, &err)
	if modified.IsEmpty() {
		return nil
	}

	rows := modified.ToSlice()
	slots := make([]int32, len(rows))
	for i, rk := range rows {
		rs, ok := h.reverse[table].Get(rowSlot{rowKey: rk})
		if !ok {
			return moerr.NewPrecommitAssertion(ctx, "modified row %d of table %d has no slot", rk, table)
		}
		slots[i] = rs.slot
	}

	if !keyChanged {
		for i := range rows {
			h.tracker.touch(slots[i], table, rows[i]).modified = true
		}
		return nil
	}

	kb, err := h.computeKeys(ctx, table, modified, false)
	if err != nil {
		return err
	}
	if err = h.checkNull(ctx, table, kb); err != nil {
		return err
	}
	// every row leaves its old slot before any row enters its new one, so
	// keys swapped between rows do not collide
	for i := range rows {
		h.setRowKey(table, slots[i], rowset.NullRowKey)
	}
	return h.build(ctx, table, kb)
}

func (h *Hasher[K]) ShiftTable(ctx context.Context, table int, sd *rowset.ShiftData) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err = h.checkTick(ctx, table); err != nil {
		return err
	}
	if sd.IsEmpty() {
		return nil
	}
	defer recoverTick(ctx, &err)
	h.journal = append(h.journal, undo{kind: undoShift, table: table, shift: sd})
	h.applyShift(table, sd)
	return nil
}

// applyShift moves the row keys of table along sd. Each range is lifted
// out of the reverse index before being reinserted at its new keys.
func (h *Hasher[K]) applyShift(table int, sd *rowset.ShiftData) {
	rev := h.reverse[table]
	var moved []rowSlot
	_ = sd.ForEachMove(func(s rowset.Shift) error {
		moved = moved[:0]
		rev.Ascend(rowSlot{rowKey: s.Begin}, func(item rowSlot) bool {
			if item.rowKey > s.End {
				return false
			}
			moved = append(moved, item)
			return true
		})
		for _, item := range moved {
			rev.Delete(item)
		}
		for _, item := range moved {
			nk := item.rowKey + s.Delta
			if h.open {
				h.tracker.touch(item.slot, table, item.rowKey)
				h.prev.remember(item.slot, table, item.rowKey)
			}
			h.slotCols[table][item.slot] = nk
			rev.Set(rowSlot{rowKey: nk, slot: item.slot})
		}
		return nil
	})
}

func (h *Hasher[K]) Lookup(values ...any) (int32, bool) {
	k, err := h.readers[0].FromValues(values...)
	if err != nil {
		return hashtable.EmptySlot, false
	}
	return h.LookupKey(k)
}

// LookupKey probes for a key of the physical key type.
func (h *Hasher[K]) LookupKey(k K) (int32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.table.Find(h.readers[0].Hash(k), k)
	return s, s != hashtable.EmptySlot
}

// SlotCount is the number of live slots.
func (h *Hasher[K]) SlotCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// SlotHighWater bounds every slot ever handed out.
func (h *Hasher[K]) SlotHighWater() int32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.highWater
}

func (h *Hasher[K]) RowKeyForSlot(table int, slot int32) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rowKeyLocked(table, slot)
}

func (h *Hasher[K]) rowKeyLocked(table int, slot int32) int64 {
	if slot < 0 || slot >= h.highWater {
		return rowset.NullRowKey
	}
	return h.slotCols[table][slot]
}

// KeyForSlot returns the key values of slot in the logical types of the
// key columns of the first table, nil for a free slot.
func (h *Hasher[K]) KeyForSlot(slot int32) []any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if slot < 0 || slot >= h.highWater || h.free.Contains(uint32(slot)) {
		return nil
	}
	return h.keyForSlotLocked(slot)
}

func (h *Hasher[K]) keyForSlotLocked(slot int32) []any {
	vals := h.readers[0].ToValues(h.table.Key(slot))
	for i, v := range vals {
		vals[i] = logicalValue(h.original[0][i], v)
	}
	return vals
}

func logicalValue(orig column.Source, v any) any {
	switch orig.(type) {
	case column.TypedSource[types.Boolean]:
		if b, ok := v.(int8); ok {
			return types.ByteAsBoolean(b)
		}
	case column.TypedSource[types.Timestamp]:
		if n, ok := v.(int64); ok {
			return types.EpochNanosToTimestamp(n)
		}
	}
	return v
}

func (h *Hasher[K]) TableCount() int {
	return len(h.readers)
}

// EnsureTableCapacity sizes the state for n live keys.
func (h *Hasher[K]) EnsureTableCapacity(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	before := h.table.Rehashes()
	h.table.EnsureCapacity(max(0, n-h.table.Live()))
	h.noteRehash(before)
	h.growSlotCols(n)
}

func (h *Hasher[K]) Capacity() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.table.Capacity()
}

func (h *Hasher[K]) MaximumLoadFactor() float64 {
	return h.table.MaximumLoadFactor()
}

func (h *Hasher[K]) TargetLoadFactor() float64 {
	return h.table.TargetLoadFactor()
}

func (h *Hasher[K]) InitialCapacity() int {
	return h.initialCapacity
}

func (h *Hasher[K]) KeyTypes() []types.T {
	return h.readers[0].Types()
}

func (h *Hasher[K]) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Capacity:   h.table.Capacity(),
		LiveCells:  h.table.Live(),
		Tombstones: h.table.Tombstones(),
		LoadFactor: h.table.LoadFactor(),
		SlotCount:  h.live,
		HighWater:  h.highWater,
		FreeSlots:  int(h.free.GetCardinality()),
		Rehashes:   h.table.Rehashes(),
		Ticks:      h.tick,
	}
}

// verifyLocked checks the whole state against itself: every live slot has
// a key cell and at least one row, reverse indexes mirror slot columns.
func (h *Hasher[K]) verifyLocked(ctx context.Context) error {
	start := time.Now()
	defer func() {
		h.logger.Debug("multijoin state verified",
			zap.Uint64("tick", h.tick),
			zap.Duration("cost", time.Since(start)))
	}()
	if h.table.Live() != h.live {
		return moerr.NewPostcommitAssertion(ctx, "%d key cells for %d live slots", h.table.Live(), h.live)
	}
	if h.live+int(h.free.GetCardinality()) != int(h.highWater) {
		return moerr.NewPostcommitAssertion(ctx, "%d live and %d free slots below high water %d",
			h.live, h.free.GetCardinality(), h.highWater)
	}
	var err error
	h.table.ForEach(func(hash uint64, slot int32) {
		if err != nil {
			return
		}
		if h.free.Contains(uint32(slot)) {
			err = moerr.NewPostcommitAssertion(ctx, "free slot %d has a key cell", slot)
			return
		}
		if h.isEmptyLocked(slot) {
			err = moerr.NewPostcommitAssertion(ctx, "live slot %d holds no row", slot)
			return
		}
		if h.readers[0].Hash(h.table.Key(slot)) != hash {
			err = moerr.NewPostcommitAssertion(ctx, "slot %d stored hash mismatch", slot)
		}
	})
	if err != nil {
		return err
	}
	for t := range h.slotCols {
		n := 0
		for s := int32(0); s < h.highWater; s++ {
			rk := h.slotCols[t][s]
			if rk == rowset.NullRowKey {
				continue
			}
			n++
			if got, ok := h.reverse[t].Get(rowSlot{rowKey: rk}); !ok || got.slot != s {
				return moerr.NewPostcommitAssertion(ctx, "reverse index of table %d misses row %d of slot %d", t, rk, s)
			}
		}
		if n != h.reverse[t].Len() {
			return moerr.NewPostcommitAssertion(ctx, "table %d has %d rows and %d reverse entries", t, n, h.reverse[t].Len())
		}
	}
	return nil
}
