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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Store.EmbedChunkSize != 5 {
		t.Errorf("Store.EmbedChunkSize = %d, want 5", cfg.Store.EmbedChunkSize)
	}
	if cfg.Backend.SubmitRateLimit != 2 {
		t.Errorf("Backend.SubmitRateLimit = %v, want 2", cfg.Backend.SubmitRateLimit)
	}
	if cfg.Reconcile.PollInterval.Seconds() != 30 {
		t.Errorf("Reconcile.PollInterval = %v, want 30s", cfg.Reconcile.PollInterval)
	}
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default config, got %+v", cfg)
	}
}

func TestLoad_ParsesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
store:
  endpoint: https://data.example.org
backend:
  endpoint: https://exec.example.org
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Endpoint != "https://data.example.org" {
		t.Errorf("Store.Endpoint = %q", cfg.Store.Endpoint)
	}
	if cfg.Backend.Endpoint != "https://exec.example.org" {
		t.Errorf("Backend.Endpoint = %q", cfg.Backend.Endpoint)
	}
	// defaults still applied for anything the file didn't set
	if cfg.Store.EmbedChunkSize != 5 {
		t.Errorf("Store.EmbedChunkSize = %d, want 5", cfg.Store.EmbedChunkSize)
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	// no store endpoint and no sqlite_path: invalid
	contents := "backend:\n  endpoint: https://exec.example.org\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error, got nil")
	}
}
