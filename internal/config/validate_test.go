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

import "testing"

func validConfig() *Config {
	cfg := Default()
	cfg.Store.Endpoint = "https://data.example.org"
	cfg.Backend.Endpoint = "https://exec.example.org"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_SQLiteStoreWithoutEndpointOK(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Endpoint = ""
	cfg.Store.SQLitePath = "/tmp/store.db"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_BackendSTSAssumeRoleOK(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.AuthMode = "sts-assume-role"
	cfg.Backend.AWSRoleARN = "arn:aws:iam::123456789012:role/exec-backend"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no store endpoint or sqlite", func(c *Config) { c.Store.Endpoint = ""; c.Store.SQLitePath = "" }},
		{"bad store auth mode", func(c *Config) { c.Store.AuthMode = "basic" }},
		{"zero embed chunk size", func(c *Config) { c.Store.EmbedChunkSize = 0 }},
		{"no backend endpoint", func(c *Config) { c.Backend.Endpoint = "" }},
		{"bad backend auth mode", func(c *Config) { c.Backend.AuthMode = "digest" }},
		{"zero submit rate limit", func(c *Config) { c.Backend.SubmitRateLimit = 0 }},
		{"zero poll interval", func(c *Config) { c.Reconcile.PollInterval = 0 }},
		{"negative max submit", func(c *Config) { c.Reconcile.MaxSubmitPerCycle = -1 }},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("Validate() error = nil, want error")
			}
		})
	}
}
