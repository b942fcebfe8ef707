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

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/config"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/reconcile"
	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
)

// newResetFailedCommand implements `reset-failed <run_id>`: reverts
// every failed shard back to pending so the next `run` picks it up for
// resubmission. Destructive enough (it discards the failed shard's
// recorded engine job and output) to confirm before acting, unless
// --yes is passed for scripting.
func newResetFailedCommand(cfg *config.Config) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "reset-failed <run_id>",
		Short: "Reset a run's failed shards back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]

			if !assumeYes && isInteractive() {
				confirmed := false
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Reset all failed shards of run %s to pending?", runID),
					Default: false,
				}
				if err := survey.AskOne(prompt, &confirmed); err != nil {
					return &ExitError{Code: ExitUserError, Message: "confirmation cancelled", Cause: err}
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

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

			n := run.ResetFailed()
			if n == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s has no failed shards\n", runID)
				return nil
			}
			run.RecomputeFinalStatus()

			updated := reconcile.EncodeRun(run, nil)
			if err := a.store.Patch(cmd.Context(), runID, updated); err != nil {
				return &ExitError{Code: classify(mwferrors.Wrap(err, "persisting reset")), Message: "persisting reset", Cause: err}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "reset %d failed shard(s) for run %s\n", n, runID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}
