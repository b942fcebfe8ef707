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
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// lookupCredential resolves a store/backend credential from the OS
// keychain, keyed by service and account (typically the endpoint URL or
// an explicit keyring_entry name from Config). An empty service means
// credentials aren't configured, returning "" rather than erroring — the
// none auth mode and local sqlite/dev setups rely on this.
//
// Hosts with no Secret Service / Credential Manager (containers, CI
// runners) fail keyring.Get with anything other than ErrNotFound; on
// that class of error lookupCredential falls back to the local encrypted
// file store so the CLI still works headless.
func lookupCredential(service, account string) (string, error) {
	if service == "" {
		return "", nil
	}

	secret, err := keyring.Get(service, account)
	switch {
	case err == nil:
		return secret, nil
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("no credential found in OS keychain for service %q account %q; store one with `mwfctl auth set`", service, account)
	}

	store, storeErr := newFileCredentialStore()
	if storeErr != nil {
		return "", fmt.Errorf("reading OS keychain: %w", err)
	}
	secret, fileErr := store.get(service, account)
	if fileErr != nil {
		return "", fmt.Errorf("reading OS keychain: %w (file store fallback: %v)", err, fileErr)
	}
	return secret, nil
}

// storeCredential saves a credential to the OS keychain under service and
// account, used by the `auth set` command. It falls back to the local
// encrypted file store on any keychain write failure, so `auth set` still
// succeeds on hosts without a Secret Service / Credential Manager.
func storeCredential(service, account, secret string) error {
	if service == "" {
		return fmt.Errorf("no keyring_service configured")
	}

	if err := keyring.Set(service, account, secret); err == nil {
		return nil
	}

	store, err := newFileCredentialStore()
	if err != nil {
		return fmt.Errorf("OS keychain unavailable and local fallback failed: %w", err)
	}
	return store.set(service, account, secret)
}
