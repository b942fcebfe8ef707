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

// Package watcher implements the CLI's --watch convenience: a directory
// of dropped run-request files (one JSON document per Run Factory call)
// is monitored, and each file matching the configured glob becomes a
// RunRequest event.
package watcher

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// PatternMatcher filters candidate run-request file paths by include/
// exclude glob patterns, supporting doublestar's recursive "**" syntax.
type PatternMatcher struct {
	includePatterns []string
	excludePatterns []string
}

// NewPatternMatcher validates include/exclude and returns a matcher. An
// empty includePatterns matches every path.
func NewPatternMatcher(includePatterns, excludePatterns []string) (*PatternMatcher, error) {
	for _, p := range includePatterns {
		if _, err := doublestar.Match(p, "test"); err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", p, err)
		}
	}
	for _, p := range excludePatterns {
		if _, err := doublestar.Match(p, "test"); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}
	return &PatternMatcher{includePatterns: includePatterns, excludePatterns: excludePatterns}, nil
}

// Match reports whether path should be treated as a run-request file.
func (pm *PatternMatcher) Match(path string) bool {
	included := len(pm.includePatterns) == 0
	if !included {
		for _, p := range pm.includePatterns {
			if pm.matchPattern(p, path) {
				included = true
				break
			}
		}
	}
	if !included {
		return false
	}

	for _, p := range pm.excludePatterns {
		if pm.matchPattern(p, path) {
			return false
		}
	}
	return true
}

func (pm *PatternMatcher) matchPattern(pattern, path string) bool {
	if matched, _ := doublestar.PathMatch(pattern, path); matched {
		return true
	}
	base := filepath.Base(path)
	matched, _ := doublestar.Match(pattern, base)
	return matched
}

// DefaultExcludePatterns filters out editor and filesystem noise that
// commonly co-occurs with dropped run-request files in a watched
// directory.
func DefaultExcludePatterns() []string {
	return []string{
		"*.swp", "*.swo", "*.swn", ".*.sw?",
		"*~", "#*#", ".#*",
		".DS_Store", "Thumbs.db",
		"*.tmp", "*.temp",
	}
}
