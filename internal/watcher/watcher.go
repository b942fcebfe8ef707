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

package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// eventTypeMap maps fsnotify operations to the subset this watcher cares
// about. Chmod is intentionally unmapped and ignored.
var eventTypeMap = map[fsnotify.Op]string{
	fsnotify.Create: "created",
	fsnotify.Write:  "modified",
	fsnotify.Remove: "deleted",
	fsnotify.Rename: "renamed",
}

// RunRequest is a single dropped run-request file event: mwfctl --watch
// treats every matching created/modified file in the watched directory as
// one source_entity_id/meta_workflow_id pair to hand to the Run Factory.
type RunRequest struct {
	Path      string
	EventType string
}

// Watcher monitors a directory for dropped run-request files, filtering
// by a PatternMatcher before surfacing a RunRequest.
type Watcher struct {
	dir       string
	matcher   *PatternMatcher
	events    map[string]bool
	watcher   *fsnotify.Watcher
	eventChan chan RunRequest
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a watcher over dir. eventTypes restricts which event types
// are surfaced; an empty slice accepts all of them. Only created and
// modified events are ever surfaced: deletions and renames are not
// reported. matcher may be nil to accept every file in dir.
func New(dir string, eventTypes []string, matcher *PatternMatcher, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("resolving watch directory: %w", err)
	}

	eventMap := make(map[string]bool)
	if len(eventTypes) == 0 {
		eventMap["created"] = true
		eventMap["modified"] = true
		eventMap["deleted"] = true
		eventMap["renamed"] = true
	} else {
		for _, e := range eventTypes {
			eventMap[e] = true
		}
	}

	if matcher == nil {
		matcher, err = NewPatternMatcher(nil, nil)
		if err != nil {
			fsw.Close()
			return nil, err
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		dir:       absDir,
		matcher:   matcher,
		events:    eventMap,
		watcher:   fsw,
		eventChan: make(chan RunRequest, 100),
		logger:    logger.With(slog.String("component", "watcher"), slog.String("dir", absDir)),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	if err := fsw.Add(absDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", absDir, err)
	}

	return w, nil
}

// Start begins watching in the background.
func (w *Watcher) Start(ctx context.Context) {
	go w.eventLoop(ctx)
	w.logger.Info("watching for run requests")
}

// Stop halts the watcher and releases the underlying fsnotify handle.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

// Requests returns the channel of matched run-request events.
func (w *Watcher) Requests() <-chan RunRequest {
	return w.eventChan
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.eventChan)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("watcher stopped")
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.logger.Warn("fsnotify event channel closed")
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.logger.Warn("fsnotify error channel closed")
				return
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	eventType, ok := eventTypeMap[event.Op]
	if !ok {
		return
	}
	if !w.events[eventType] {
		return
	}
	if eventType == "deleted" || eventType == "renamed" {
		return
	}
	if !w.matcher.Match(event.Name) {
		w.logger.Debug("ignoring non-matching path", "path", event.Name)
		return
	}

	req := RunRequest{Path: event.Name, EventType: eventType}
	select {
	case w.eventChan <- req:
		w.logger.Debug("run request detected", "path", event.Name, "event", eventType)
	default:
		w.logger.Warn("run request channel full, dropping event", "path", event.Name)
	}
}
