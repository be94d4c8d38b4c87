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

package v2

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMultiJoinMetrics(t *testing.T) {
	before := testutil.ToFloat64(MultiJoinTickCommitCounter)
	MultiJoinTickCommitCounter.Inc()
	require.Equal(t, before+1, testutil.ToFloat64(MultiJoinTickCommitCounter))

	mfs, err := GetPrometheusGatherer().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	require.True(t, names["mo_multijoin_tick_total"])
	require.True(t, names["mo_multijoin_tick_duration_seconds"])
	require.True(t, names["mo_multijoin_rehash_total"])
	require.True(t, names["mo_multijoin_duplicate_key_total"])
	require.True(t, names["mo_multijoin_slot_delta_total"])
}
