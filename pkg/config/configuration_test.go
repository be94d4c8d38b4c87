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

package config

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
)

func TestDefaults(t *testing.T) {
	mp := Default()
	require.Equal(t, 16, mp.InitialCapacity)
	require.Equal(t, 0.75, mp.MaximumLoadFactor)
	require.Equal(t, 0.5, mp.TargetLoadFactor)
	require.Equal(t, 2048, mp.ChunkSize)
	require.Equal(t, 1<<16, mp.ParallelThreshold)
	require.Equal(t, runtime.NumCPU(), mp.Parallelism)
	require.Equal(t, 4, mp.ListenerPoolSize)
	require.True(t, mp.BoxedFallback())
	require.False(t, mp.RejectNullKeys)
	require.NoError(t, mp.Validate())
}

func TestValidate(t *testing.T) {
	cases := []func(mp *MultiJoinParameters){
		func(mp *MultiJoinParameters) { mp.InitialCapacity = 12 },
		func(mp *MultiJoinParameters) { mp.MaximumLoadFactor = 1 },
		func(mp *MultiJoinParameters) { mp.TargetLoadFactor = 0.8 },
		func(mp *MultiJoinParameters) { mp.ChunkSize = -1 },
		func(mp *MultiJoinParameters) { mp.Parallelism = -2 },
	}
	for i, c := range cases {
		mp := Default()
		c(mp)
		err := mp.Validate()
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig), "case %d", i)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "multijoin.toml")
	content := `
initialCapacity = 64
maximumLoadFactor = 0.8
rejectNullKeys = true
allowBoxedFallback = false

[log]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	mp, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 64, mp.InitialCapacity)
	require.Equal(t, 0.8, mp.MaximumLoadFactor)
	require.Equal(t, 0.5, mp.TargetLoadFactor)
	require.True(t, mp.RejectNullKeys)
	require.False(t, mp.BoxedFallback())
	require.Equal(t, "debug", mp.Log.Level)
	require.Equal(t, "json", mp.Log.Format)

	require.NoError(t, os.WriteFile(path, []byte("initialCapacity = 10\n"), 0o644))
	_, err = LoadFromFile(path)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))

	_, err = LoadFromFile(filepath.Join(dir, "missing.toml"))
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
}

func TestParameterUnit(t *testing.T) {
	pu := NewParameterUnit(Default())
	ctx := WithParameterUnit(context.Background(), pu)
	require.Same(t, pu, GetParameterUnit(ctx))
	require.Panics(t, func() { GetParameterUnit(context.Background()) })
}
