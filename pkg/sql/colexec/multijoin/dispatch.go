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

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/column"
	"github.com/matrixorigin/multijoin/pkg/container/tuple"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

// Dispatch returns the HashState specialized for the physical types of the
// key columns. keySources[t] are the physical key columns of input table
// t, originalKeySources[t] the logical columns they were derived from;
// either may be nil, in which case it is derived from the other.
//
// One key column selects the specialization of its physical type, two or
// three primitive key columns a fixed arity tuple. Every other shape is
// ErrUnsupportedKeyTypeCombination, see DispatchBoxed.
func Dispatch(
	keySources, originalKeySources [][]column.Source,
	initialCapacity int,
	maxLoad, targetLoad float64,
	opts ...Option) (HashState, error) {
	ctx := context.TODO()
	keySources, originalKeySources, typs, err := prepareSources(ctx, keySources, originalKeySources)
	if err != nil {
		return nil, err
	}
	if err = checkLoadFactors(ctx, initialCapacity, maxLoad, targetLoad); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	mk := func(h HashState, ok bool) (HashState, error) {
		if !ok {
			return nil, unsupported(ctx, typs)
		}
		return h, nil
	}

	switch len(typs) {
	case 1:
		switch typs[0] {
		case types.T_int8:
			return mk(newSingle(keySources, originalKeySources, initialCapacity, maxLoad, targetLoad, o, tuple.NewIntReader[int8]))
		case types.T_int16:
			return mk(newSingle(keySources, originalKeySources, initialCapacity, maxLoad, targetLoad, o, tuple.NewIntReader[int16]))
		case types.T_int32:
			return mk(newSingle(keySources, originalKeySources, initialCapacity, maxLoad, targetLoad, o, tuple.NewIntReader[int32]))
		case types.T_int64:
			return mk(newSingle(keySources, originalKeySources, initialCapacity, maxLoad, targetLoad, o, tuple.NewIntReader[int64]))
		case types.T_char16:
			return mk(newSingle(keySources, originalKeySources, initialCapacity, maxLoad, targetLoad, o, tuple.NewIntReader[uint16]))
		case types.T_float32:
			return mk(newSingle(keySources, originalKeySources, initialCapacity, maxLoad, targetLoad, o, tuple.NewFloat32Reader))
		case types.T_float64:
			return mk(newSingle(keySources, originalKeySources, initialCapacity, maxLoad, targetLoad, o, tuple.NewFloat64Reader))
		case types.T_ref:
			readers := make([]tuple.Reader[any], len(keySources))
			for t, cols := range keySources {
				readers[t] = tuple.NewRefReader(cols[0])
			}
			return newHasher(readers, originalKeySources, initialCapacity, maxLoad, targetLoad, o), nil
		}
	case 2:
		readers := make([]tuple.Reader[[2]uint64], len(keySources))
		for t, cols := range keySources {
			if readers[t], err = tuple.NewTuple2Reader(cols[0], cols[1]); err != nil {
				return nil, err
			}
		}
		return newHasher(readers, originalKeySources, initialCapacity, maxLoad, targetLoad, o), nil
	case 3:
		readers := make([]tuple.Reader[[3]uint64], len(keySources))
		for t, cols := range keySources {
			if readers[t], err = tuple.NewTuple3Reader(cols[0], cols[1], cols[2]); err != nil {
				return nil, err
			}
		}
		return newHasher(readers, originalKeySources, initialCapacity, maxLoad, targetLoad, o), nil
	}
	return nil, unsupported(ctx, typs)
}

// DispatchBoxed returns a HashState keyed by the packed encoding of any
// number of key columns of any types. It is the fallback for shapes
// Dispatch does not specialize.
func DispatchBoxed(
	keySources, originalKeySources [][]column.Source,
	initialCapacity int,
	maxLoad, targetLoad float64,
	opts ...Option) (HashState, error) {
	ctx := context.TODO()
	keySources, originalKeySources, _, err := prepareSources(ctx, keySources, originalKeySources)
	if err != nil {
		return nil, err
	}
	if err = checkLoadFactors(ctx, initialCapacity, maxLoad, targetLoad); err != nil {
		return nil, err
	}
	readers := make([]tuple.Reader[string], len(keySources))
	for t, cols := range keySources {
		readers[t] = tuple.NewBoxedReader(cols...)
	}
	return newHasher(readers, originalKeySources, initialCapacity, maxLoad, targetLoad, newOptions(opts)), nil
}

func newSingle[T any, K comparable](
	keySources, originalKeySources [][]column.Source,
	initialCapacity int,
	maxLoad, targetLoad float64,
	o options,
	newReader func(column.TypedSource[T]) tuple.Reader[K]) (HashState, bool) {
	readers := make([]tuple.Reader[K], len(keySources))
	for t, cols := range keySources {
		src, ok := cols[0].(column.TypedSource[T])
		if !ok {
			return nil, false
		}
		readers[t] = newReader(src)
	}
	return newHasher(readers, originalKeySources, initialCapacity, maxLoad, targetLoad, o), true
}

// prepareSources fills in missing physical or logical sources and checks
// every table has key columns of the physical types of the first one.
func prepareSources(ctx context.Context, keySources, originalKeySources [][]column.Source) (
	[][]column.Source, [][]column.Source, []types.T, error) {
	switch {
	case keySources == nil && originalKeySources == nil:
		return nil, nil, nil, moerr.NewInvalidInput(ctx, "no key sources")
	case keySources == nil:
		keySources = make([][]column.Source, len(originalKeySources))
		for t, cols := range originalKeySources {
			keySources[t] = make([]column.Source, len(cols))
			for i, src := range cols {
				keySources[t][i] = column.Physical(src)
			}
		}
	case originalKeySources == nil:
		originalKeySources = keySources
	}
	if len(keySources) == 0 || len(keySources) != len(originalKeySources) {
		return nil, nil, nil, moerr.NewInvalidInput(ctx, "%d key source tables for %d original tables",
			len(keySources), len(originalKeySources))
	}
	if len(keySources[0]) == 0 {
		return nil, nil, nil, moerr.NewInvalidInput(ctx, "no key columns")
	}

	typs := make([]types.T, len(keySources[0]))
	for i, src := range keySources[0] {
		typs[i] = src.Type()
	}
	for t, cols := range keySources {
		if len(cols) != len(typs) || len(originalKeySources[t]) != len(typs) {
			return nil, nil, nil, moerr.NewInvalidInput(ctx, "table %d has %d key columns, expected %d",
				t, len(cols), len(typs))
		}
		for i, src := range cols {
			if src.Type() != typs[i] {
				return nil, nil, nil, moerr.NewKeyTypeMismatch(ctx, i, src.Type().String(), typs[i].String())
			}
		}
	}
	return keySources, originalKeySources, typs, nil
}

func checkLoadFactors(ctx context.Context, initialCapacity int, maxLoad, targetLoad float64) error {
	if initialCapacity <= 0 {
		return moerr.NewInvalidArg(ctx, "initial capacity", initialCapacity)
	}
	if maxLoad <= 0 || maxLoad >= 1 {
		return moerr.NewInvalidArg(ctx, "maximum load factor", maxLoad)
	}
	if targetLoad <= 0 || targetLoad >= maxLoad {
		return moerr.NewInvalidArg(ctx, "target load factor", targetLoad)
	}
	return nil
}

func unsupported(ctx context.Context, typs []types.T) error {
	names := make([]string, len(typs))
	for i, t := range typs {
		names[i] = t.String()
	}
	return moerr.NewUnsupportedKeyTypeCombination(ctx, names)
}
