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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_SurfacesMatchingCreatedFile(t *testing.T) {
	dir := t.TempDir()
	matcher, err := NewPatternMatcher([]string{"*.run.json"}, DefaultExcludePatterns())
	require.NoError(t, err)

	w, err := New(dir, nil, matcher, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	target := filepath.Join(dir, "case-1.run.json")
	require.NoError(t, os.WriteFile(target, []byte(`{}`), 0o644))

	select {
	case req := <-w.Requests():
		assert.Equal(t, target, req.Path)
		assert.Equal(t, "created", req.EventType)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run request event")
	}
}

func TestWatcher_IgnoresNonMatchingFile(t *testing.T) {
	dir := t.TempDir()
	matcher, err := NewPatternMatcher([]string{"*.run.json"}, nil)
	require.NoError(t, err)

	w, err := New(dir, nil, matcher, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	select {
	case req := <-w.Requests():
		t.Fatalf("expected no event for non-matching file, got %+v", req)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresExcludedSwapFile(t *testing.T) {
	dir := t.TempDir()
	matcher, err := NewPatternMatcher(nil, DefaultExcludePatterns())
	require.NoError(t, err)

	w, err := New(dir, nil, matcher, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "case-1.run.json.swp"), []byte(""), 0o644))

	select {
	case req := <-w.Requests():
		t.Fatalf("expected swap file to be excluded, got %+v", req)
	case <-time.After(300 * time.Millisecond):
	}
}
