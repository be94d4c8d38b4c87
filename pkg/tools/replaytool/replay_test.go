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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/config"
)

const ordersScript = `
[[tables]]
name = "orders"
columns = [{name = "user", type = "int64"}, {name = "amount", type = "float64"}]

[[tables]]
name = "users"
columns = [{name = "id", type = "int64"}, {name = "name", type = "string"}]

[[joins]]
name = "j"
inputs = [{table = "orders", keys = ["user"]}, {table = "users", keys = ["id"]}]

[[ticks]]
ops = [
  {table = "users", op = "add", row = 0, values = {id = 1, name = "ann"}},
  {table = "orders", op = "add", row = 0, values = {user = 1, amount = 2.5}},
]

[[ticks]]
ops = [{table = "users", op = "modify", row = 0, values = {name = "bob"}}]

[[ticks]]
ops = [{table = "orders", op = "add", row = 1, values = {user = 1, amount = 4.0}}]

[[ticks]]
ops = [{table = "users", op = "modify", row = 0, values = {name = "cy"}}]
`

func TestReplay(t *testing.T) {
	ctx := context.Background()
	s, err := ParseScript(ordersScript)
	require.NoError(t, err)
	require.Len(t, s.Ticks, 4)

	var out bytes.Buffer
	r, err := NewReplayer(ctx, nil, s, &out, WithKeepGoing())
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Replay(ctx, s))

	text := out.String()
	require.Contains(t, text, "tick 1 join j: tick 2: ADDED_SLOT(0, [1]) SLOT_INPUT_ADDED(0, 1, 0)\n")
	require.Contains(t, text, "tick 2 join j: tick 3: SLOT_INPUT_MODIFIED(0, 1, 0->0)")
	require.Contains(t, text, "tick 3 aborted")
	// the join missed the duplicate order and stops following its inputs
	require.Contains(t, text, "tick 3 join j poisoned:")
	require.NotContains(t, text, "tick 4 aborted")
	require.NotContains(t, text, "tick 4 join j")
	require.Contains(t, text, "join j: poisoned:")
	require.NotContains(t, text, "join j: 1 slots")
	require.Equal(t, []string{"j"}, r.Poisoned())
	require.True(t, moerr.IsMoErrCode(r.Join("j").Poisoned(), moerr.ErrDuplicateKey))
	require.Equal(t, 1, r.Join("j").Size())
	require.Nil(t, r.Join("missing"))
	require.Equal(t, int64(2), r.Table("orders").Size())
}

func TestReplayKeepsHealthyJoins(t *testing.T) {
	ctx := context.Background()
	s, err := ParseScript(strings.Replace(ordersScript, "[[ticks]]", `[[joins]]
name = "names"
inputs = [{table = "users", keys = ["name"]}]

[[ticks]]`, 1))
	require.NoError(t, err)
	var out bytes.Buffer
	r, err := NewReplayer(ctx, nil, s, &out, WithKeepGoing())
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Replay(ctx, s))

	text := out.String()
	require.Equal(t, []string{"j"}, r.Poisoned())
	require.Contains(t, text, "tick 4 join names:")
	require.Contains(t, text, "join names: 1 slots")
	s1, ok := r.Join("names").Lookup("cy")
	require.True(t, ok)
	require.Equal(t, int64(0), r.Join("names").RowKeyForSlot(0, s1))
}

func TestReplayStopsOnAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.toml")
	require.NoError(t, os.WriteFile(path, []byte(ordersScript), 0o600))

	var out bytes.Buffer
	ctx := config.WithParameterUnit(context.Background(), config.NewParameterUnit(config.Default()))
	err := Run(ctx, path, &out)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrDuplicateKey))
	require.NotContains(t, out.String(), "join j: 1 slots")
}

func TestReplayBadOp(t *testing.T) {
	ctx := context.Background()
	s, err := ParseScript(`
[[tables]]
name = "t"
columns = [{name = "k", type = "int64"}]

[[ticks]]
ops = [
  {table = "t", op = "add", row = 0, values = {k = 1}},
  {table = "t", op = "remove", row = 5},
]
`)
	require.NoError(t, err)
	var out bytes.Buffer
	r, err := NewReplayer(ctx, nil, s, &out)
	require.NoError(t, err)
	defer r.Close()
	require.Error(t, r.Replay(ctx, s))
	// the add before the failed remove still ticked
	require.Equal(t, int64(1), r.Table("t").Size())
	require.False(t, r.Table("t").HasPending())
}

func TestValidate(t *testing.T) {
	cases := []string{
		"[[tables]]\nname = \"t\"\n[[tables]]\nname = \"t\"\n",
		"[[joins]]\nname = \"j\"\n",
		"[[joins]]\nname = \"j\"\ninputs = [{table = \"t\", keys = [\"k\"]}]\n",
		"[[tables]]\nname = \"t\"\ncolumns = [{name = \"k\", type = \"int64\"}]\n" +
			"[[joins]]\nname = \"j\"\ninputs = [{table = \"t\", keys = [\"x\"]}]\n",
		"[[ticks]]\nops = [{table = \"t\", op = \"add\"}]\n",
		"[[tables]]\nname = \"t\"\n[[ticks]]\nops = [{table = \"t\", op = \"drop\"}]\n",
		"not toml = = =",
	}
	for _, c := range cases {
		_, err := ParseScript(c)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput), c)
	}
	_, err := LoadScript(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
