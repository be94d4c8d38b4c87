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

package config

import (
	"context"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/logutil"
)

type ConfigurationKeyType int

const (
	ParameterUnitKey ConfigurationKeyType = 1
)

const (
	defaultInitialCapacity    = 16
	defaultMaximumLoadFactor  = 0.75
	defaultTargetLoadFactor   = 0.5
	defaultChunkSize          = 2048
	defaultParallelThreshold  = 1 << 16
	defaultListenerPoolSize   = 4
	defaultAllowBoxedFallback = true
)

// MultiJoinParameters of the join engine
type MultiJoinParameters struct {
	// initial hash table capacity, a power of two
	InitialCapacity int `toml:"initialCapacity"`

	// fill ratio above which the hash table grows
	MaximumLoadFactor float64 `toml:"maximumLoadFactor"`

	// fill ratio the hash table is sized for after growing
	TargetLoadFactor float64 `toml:"targetLoadFactor"`

	// rows read per batch from a key column
	ChunkSize int `toml:"chunkSize"`

	// row sets at least this large compute keys in parallel
	ParallelThreshold int `toml:"parallelThreshold"`

	// workers used above ParallelThreshold
	Parallelism int `toml:"parallelism"`

	// reject null keys instead of joining on the null sentinel
	RejectNullKeys bool `toml:"rejectNullKeys"`

	// use packed keys when no typed hasher fits the key columns
	AllowBoxedFallback *bool `toml:"allowBoxedFallback"`

	// goroutines delivering table updates to listeners
	ListenerPoolSize int `toml:"listenerPoolSize"`

	Log logutil.LogConfig `toml:"log"`
}

// SetDefaultValues fills every unset field.
func (mp *MultiJoinParameters) SetDefaultValues() {
	if mp.InitialCapacity == 0 {
		mp.InitialCapacity = defaultInitialCapacity
	}
	if mp.MaximumLoadFactor == 0 {
		mp.MaximumLoadFactor = defaultMaximumLoadFactor
	}
	if mp.TargetLoadFactor == 0 {
		mp.TargetLoadFactor = defaultTargetLoadFactor
	}
	if mp.ChunkSize == 0 {
		mp.ChunkSize = defaultChunkSize
	}
	if mp.ParallelThreshold == 0 {
		mp.ParallelThreshold = defaultParallelThreshold
	}
	if mp.Parallelism == 0 {
		mp.Parallelism = runtime.NumCPU()
	}
	if mp.AllowBoxedFallback == nil {
		v := defaultAllowBoxedFallback
		mp.AllowBoxedFallback = &v
	}
	if mp.ListenerPoolSize == 0 {
		mp.ListenerPoolSize = defaultListenerPoolSize
	}
	if mp.Log.Level == "" {
		mp.Log.Level = "info"
	}
	if mp.Log.Format == "" {
		mp.Log.Format = "console"
	}
}

// BoxedFallback reports whether the boxed key path may be used.
func (mp *MultiJoinParameters) BoxedFallback() bool {
	return mp.AllowBoxedFallback == nil || *mp.AllowBoxedFallback
}

func (mp *MultiJoinParameters) Validate() error {
	ctx := context.TODO()
	if mp.InitialCapacity <= 0 || mp.InitialCapacity&(mp.InitialCapacity-1) != 0 {
		return moerr.NewBadConfig(ctx, "initialCapacity %d is not a power of two", mp.InitialCapacity)
	}
	if mp.MaximumLoadFactor <= 0 || mp.MaximumLoadFactor >= 1 {
		return moerr.NewBadConfig(ctx, "maximumLoadFactor %v is not in (0, 1)", mp.MaximumLoadFactor)
	}
	if mp.TargetLoadFactor <= 0 || mp.TargetLoadFactor >= mp.MaximumLoadFactor {
		return moerr.NewBadConfig(ctx, "targetLoadFactor %v is not in (0, maximumLoadFactor)", mp.TargetLoadFactor)
	}
	if mp.ChunkSize <= 0 {
		return moerr.NewBadConfig(ctx, "chunkSize %d must be positive", mp.ChunkSize)
	}
	if mp.ParallelThreshold < 0 || mp.Parallelism < 0 || mp.ListenerPoolSize < 0 {
		return moerr.NewBadConfig(ctx, "negative concurrency setting")
	}
	return nil
}

// LoadFromFile decodes path over the defaults and validates the result.
func LoadFromFile(path string) (*MultiJoinParameters, error) {
	mp := &MultiJoinParameters{}
	if _, err := toml.DecodeFile(path, mp); err != nil {
		return nil, moerr.NewBadConfig(context.TODO(), "%s: %v", path, err)
	}
	mp.SetDefaultValues()
	if err := mp.Validate(); err != nil {
		return nil, err
	}
	return mp, nil
}

// Default returns validated default parameters.
func Default() *MultiJoinParameters {
	mp := &MultiJoinParameters{}
	mp.SetDefaultValues()
	return mp
}

type ParameterUnit struct {
	SV *MultiJoinParameters
}

func NewParameterUnit(sv *MultiJoinParameters) *ParameterUnit {
	return &ParameterUnit{
		SV: sv,
	}
}

// WithParameterUnit attaches pu to ctx.
func WithParameterUnit(ctx context.Context, pu *ParameterUnit) context.Context {
	return context.WithValue(ctx, ParameterUnitKey, pu)
}

// GetParameterUnit gets the configuration from the context.
func GetParameterUnit(ctx context.Context) *ParameterUnit {
	pu, _ := ctx.Value(ParameterUnitKey).(*ParameterUnit)
	if pu == nil {
		panic("parameter unit is invalid")
	}
	return pu
}
