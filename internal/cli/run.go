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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/config"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/reconcile"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/watcher"
)

// newRunCommand implements `run <run_id>`: one reconciliation pass
// against the run, or, with --watch, a long-lived scheduler plus a
// directory watcher that triggers an immediate pass whenever a matching
// run-request file is dropped into --watch-dir (an ambient convenience
// layered on top of the single-pass semantics, not a replacement for
// them).
func newRunCommand(cfg *config.Config) *cobra.Command {
	var watch bool
	var watchDir string

	cmd := &cobra.Command{
		Use:   "run <run_id>",
		Short: "Reconcile one run, or run continuously with --watch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			rc := a.newReconciler()

			if !watch {
				if err := rc.Reconcile(cmd.Context(), runID); err != nil {
					return &ExitError{Code: classify(err), Message: "reconcile failed", Cause: err}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reconciled run %s\n", runID)
				return nil
			}

			return runWatchLoop(cmd.Context(), a, rc, runID, watchDir)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "run continuously: a ticker-scheduled reconciliation loop plus an optional directory watch that re-triggers a pass immediately")
	cmd.Flags().StringVar(&watchDir, "watch-dir", "", "directory to watch for re-submission triggers (e.g. a dropped *.run.json marker); empty disables the file watch, ticker only")

	return cmd
}

// runWatchLoop drives the run continuously until SIGINT/SIGTERM: the
// Scheduler's ticker reconciles every run the store reports as active
// (including runID), while an optional watcher.Watcher fires an
// out-of-cadence pass the moment a matching file appears in watchDir.
func runWatchLoop(parent context.Context, a *app, rc *reconcile.Reconciler, runID, watchDir string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := reconcile.NewScheduler(rc, a.store, a.cfg.Reconcile.PollInterval, a.logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	var w *watcher.Watcher
	if watchDir != "" {
		matcher, err := watcher.NewPatternMatcher([]string{"*.run.json", "*.yaml", "*.yml"}, watcher.DefaultExcludePatterns())
		if err != nil {
			return &ExitError{Code: ExitUserError, Message: "invalid watch pattern", Cause: err}
		}
		w, err = watcher.New(watchDir, []string{"created", "modified"}, matcher, a.logger)
		if err != nil {
			return &ExitError{Code: ExitUserError, Message: "starting directory watcher", Cause: err}
		}
		w.Start(ctx)
		defer w.Stop()
	}

	a.logger.Info("watch mode started", "run_id", runID, "poll_interval", a.cfg.Reconcile.PollInterval, "watch_dir", watchDir)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("watch mode stopping")
			return nil
		case req, ok := <-requestsOrNil(w):
			if !ok {
				continue
			}
			a.logger.Info("re-triggering reconciliation from watch event", "path", req.Path)
			if err := rc.Reconcile(ctx, runID); err != nil {
				a.logger.Error("reconcile after watch event failed", "run_id", runID, "error", err)
			}
		}
	}
}

// requestsOrNil returns w's event channel, or a nil channel (which never
// fires) when file watching is disabled — letting the select above omit
// a nil check on every iteration.
func requestsOrNil(w *watcher.Watcher) <-chan watcher.RunRequest {
	if w == nil {
		return nil
	}
	return w.Requests()
}
