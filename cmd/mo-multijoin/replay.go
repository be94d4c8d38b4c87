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

package main

import (
	"github.com/spf13/cobra"

	"github.com/matrixorigin/multijoin/pkg/config"
	"github.com/matrixorigin/multijoin/pkg/logutil"
	"github.com/matrixorigin/multijoin/pkg/tools/replaytool"
)

func replayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <script.toml>",
		Short: "Replay table changes through multi joins",
		Long:  "Create the tables and joins of a script, run its ticks and print every join delta",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			param := config.Default()
			if configFile != "" {
				var err error
				if param, err = config.LoadFromFile(configFile); err != nil {
					return err
				}
			}
			logutil.SetupLogger(&param.Log)

			var opts []replaytool.Option
			if keepGoing {
				opts = append(opts, replaytool.WithKeepGoing())
			}
			ctx := config.WithParameterUnit(cmd.Context(), config.NewParameterUnit(param))
			return replaytool.Run(ctx, args[0], cmd.OutOrStdout(), opts...)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "multijoin parameters toml file")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue after an aborted tick")
	return cmd
}
