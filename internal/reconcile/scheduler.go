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

package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/store"
	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"
)

// runItemType is the store item_type a Run document is filed under.
const runItemType = "meta_workflow_run"

// Scheduler is the periodic wrapper around Reconciler.Reconcile: every
// tick it lists non-terminal runs and reconciles each in turn. The core
// itself is single-threaded and synchronous (§5) — one tick runs to
// completion, including every run it reconciles, before the next tick's
// work can begin.
type Scheduler struct {
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	reconciler *Reconciler
	store      store.Client
	interval   time.Duration
	logger     *slog.Logger
}

// NewScheduler constructs a Scheduler. interval defaults to 30s when zero.
func NewScheduler(reconciler *Reconciler, client store.Client, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		reconciler: reconciler,
		store:      client,
		interval:   interval,
		logger:     logger.With(slog.String("component", "reconcile.scheduler")),
	}
}

// Start begins the ticker loop in the background. Calling Start on an
// already-running Scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop halts the ticker loop and waits for the in-flight tick, if any, to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick reconciles every active run once. A single run's failure is logged
// and does not prevent the remaining runs from being reconciled this
// tick.
func (s *Scheduler) tick(ctx context.Context) {
	runIDs, err := s.activeRunIDs(ctx)
	if err != nil {
		s.logger.Error("listing active runs failed", slog.String("error", err.Error()))
		return
	}

	for _, id := range runIDs {
		if err := s.reconciler.Reconcile(ctx, id); err != nil {
			s.logger.Error("reconciliation cycle failed", slog.String("run_id", id), slog.String("error", err.Error()))
		}
	}
}

// activeRunIDs lists every run document whose final_status has not yet
// reached a terminal value. store.Client.Search matches filters by exact
// equality only, so a "not terminal" predicate is applied in Go over the
// full run collection rather than expressed as a server-side filter.
func (s *Scheduler) activeRunIDs(ctx context.Context) ([]string, error) {
	items, err := s.store.Search(ctx, runItemType, nil)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, item := range items {
		status := metaworkflow.Status(stringField(item, docFinalStatus))
		if isTerminal(status) {
			continue
		}
		if id := stringField(item, docUUID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
