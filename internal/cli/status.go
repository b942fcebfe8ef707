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

package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/config"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/reconcile"
	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"
)

var (
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	styleRun    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	styleFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	stylePend   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	styleBold   = lipgloss.NewStyle().Bold(true)
)

// newStatusCommand implements `status <run_id>`: renders the run's final
// status and each shard's status, color-coded.
func newStatusCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run_id>",
		Short: "Show a run's final status and per-shard progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			doc, err := a.store.GetItem(cmd.Context(), runID)
			if err != nil {
				return &ExitError{Code: classify(err), Message: "fetching run", Cause: err}
			}
			run, err := reconcile.DecodeRun(doc)
			if err != nil {
				return &ExitError{Code: ExitUserError, Message: "decoding run document", Cause: err}
			}

			renderStatus(cmd, run)
			return nil
		},
	}
	return cmd
}

func renderStatus(cmd *cobra.Command, run *metaworkflow.Run) {
	out := cmd.OutOrStdout()
	colored := isTTY()

	fmt.Fprintf(out, "%s %s\n", boldLabel("run", colored), run.ID)
	fmt.Fprintf(out, "%s %s\n\n", boldLabel("status", colored), renderRunStatus(run.FinalStatus, colored))

	idWidth := shardIDColumnWidth(run.Shards)
	for _, shard := range run.Shards {
		fmt.Fprintf(out, "  %-*s %s\n", idWidth, shard.ID(), renderShardStatus(shard.Status, colored))
	}
}

// shardIDColumnWidth picks the id column width to line-wrap on narrow
// terminals: the longest shard id, capped so the status field still fits
// within the current terminal width.
func shardIDColumnWidth(shards []*metaworkflow.ShardRecord) int {
	longest := 0
	for _, shard := range shards {
		if n := len(shard.ID()); n > longest {
			longest = n
		}
	}
	if max := terminalWidth() - 12; max > 0 && longest > max {
		return max
	}
	if longest < 24 {
		return 24
	}
	return longest
}

func boldLabel(s string, colored bool) string {
	if !colored {
		return s
	}
	return styleBold.Render(s)
}

func renderRunStatus(s metaworkflow.Status, colored bool) string {
	if !colored {
		return string(s)
	}
	return colorForStatus(s).Render(string(s))
}

func renderShardStatus(s metaworkflow.Status, colored bool) string {
	if !colored {
		return string(s)
	}
	return colorForStatus(s).Render(string(s))
}

func colorForStatus(s metaworkflow.Status) lipgloss.Style {
	switch s {
	case metaworkflow.StatusCompleted:
		return styleOK
	case metaworkflow.StatusRunning:
		return styleRun
	case metaworkflow.StatusFailed, metaworkflow.StatusQualityMetricFailed:
		return styleFailed
	default:
		return stylePend
	}
}
