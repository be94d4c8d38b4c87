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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set by -ldflags at build time
var (
	GoVersion    = ""
	BranchName   = ""
	CommitID     = ""
	BuildTime    = ""
	Version      = ""
	configFile   string
	keepGoing    bool
	printVersion = func() {
		fmt.Println("MatrixOne multijoin build info:")
		fmt.Printf("  %s: %s\n", "The golang version used to build this binary", GoVersion)
		fmt.Printf("  %s: %s\n", "Git branch name", BranchName)
		fmt.Printf("  %s: %s\n", "Last git commit ID", CommitID)
		fmt.Printf("  %s: %s\n", "Buildtime", BuildTime)
		fmt.Printf("  %s: %s\n", "Current Version", Version)
	}
)

func main() {
	root := &cobra.Command{
		Use:           "mo-multijoin",
		Short:         "Incremental multi join tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(replayCommand(), versionCommand())
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}
}
