// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli wires mwfctl's cobra commands over the store, execution
// backend, reconciler, and factory packages.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/config"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion records build-time version metadata for `mwfctl version`.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// NewRootCommand assembles the mwfctl command tree: create-run, run,
// reset-failed, status, and auth. Config is resolved once in
// PersistentPreRunE from --config (or the XDG default path) and handed
// down to each subcommand constructor.
func NewRootCommand() *cobra.Command {
	var configPath string
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "mwfctl",
		Short: "mwfctl orchestrates meta-workflow runs against a metadata store and execution backend",
		Long: `mwfctl compiles a MetaWorkflow's step DAG against a source entity into a
Run of per-shard ShardRecords, then reconciles that run's shards against an
execution backend until every shard reaches a terminal status.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return &ExitError{Code: ExitUserError, Message: "loading config", Cause: err}
			}
			*cfg = *loaded
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: $XDG_CONFIG_HOME/mwfctl/config.yaml)")

	// Non-interactive output (CI logs, redirected to a file) gets a plain
	// flag listing instead of cobra's default usage template, which
	// assumes a terminal width.
	defaultUsageFunc := cmd.UsageFunc()
	cmd.SetUsageFunc(func(c *cobra.Command) error {
		if isTTY() {
			return defaultUsageFunc(c)
		}
		fmt.Fprintf(c.OutOrStdout(), "Usage:\n  %s\n\nFlags:\n", c.UseLine())
		printFlagUsage(c.OutOrStdout(), c)
		return nil
	})

	cmd.AddCommand(
		newCreateRunCommand(cfg),
		newRunCommand(cfg),
		newResetFailedCommand(cfg),
		newStatusCommand(cfg),
		newAuthCommand(cfg),
		newVersionCommand(),
	)

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print mwfctl's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("mwfctl %s (commit %s, built %s)\n", version, commit, buildDate)
			return nil
		},
	}
}
