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
	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
)

// Validate checks a loaded Config for internally inconsistent or missing
// required settings, returning a *mwferrors.ConfigError describing the first
// problem found.
func Validate(cfg *Config) error {
	if cfg.Store.Endpoint == "" && cfg.Store.SQLitePath == "" {
		return &mwferrors.ConfigError{
			Key:    "store",
			Reason: "either store.endpoint or store.sqlite_path must be set",
		}
	}
	if err := validateAuthMode("store", cfg.Store.AuthMode); err != nil {
		return err
	}
	if cfg.Store.EmbedChunkSize < 1 {
		return &mwferrors.ConfigError{
			Key:    "store.embed_chunk_size",
			Reason: "must be at least 1",
		}
	}

	if cfg.Backend.Endpoint == "" {
		return &mwferrors.ConfigError{
			Key:    "backend.endpoint",
			Reason: "execution backend endpoint is required",
		}
	}
	if err := validateBackendAuthMode(cfg.Backend.AuthMode); err != nil {
		return err
	}
	if cfg.Backend.SubmitRateLimit <= 0 {
		return &mwferrors.ConfigError{
			Key:    "backend.submit_rate_limit",
			Reason: "must be greater than zero",
		}
	}

	if cfg.Reconcile.PollInterval <= 0 {
		return &mwferrors.ConfigError{
			Key:    "reconcile.poll_interval",
			Reason: "must be greater than zero",
		}
	}
	if cfg.Reconcile.MaxSubmitPerCycle < 0 {
		return &mwferrors.ConfigError{
			Key:    "reconcile.max_submit_per_cycle",
			Reason: "must not be negative",
		}
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return &mwferrors.ConfigError{
			Key:    "log.level",
			Reason: "must be one of debug, info, warn, error",
		}
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return &mwferrors.ConfigError{
			Key:    "log.format",
			Reason: "must be one of text, json",
		}
	}

	return nil
}

func validateAuthMode(section, mode string) error {
	switch mode {
	case "bearer", "oauth2", "none":
		return nil
	default:
		return &mwferrors.ConfigError{
			Key:    section + ".auth_mode",
			Reason: "must be one of bearer, oauth2, none",
		}
	}
}

// validateBackendAuthMode additionally allows "sts-assume-role", used when
// the execution backend lives in a separate AWS account reached via an
// assumed IAM role rather than a static or OAuth2 credential.
func validateBackendAuthMode(mode string) error {
	switch mode {
	case "bearer", "oauth2", "none", "sts-assume-role":
		return nil
	default:
		return &mwferrors.ConfigError{
			Key:    "backend.auth_mode",
			Reason: "must be one of bearer, oauth2, none, sts-assume-role",
		}
	}
}
