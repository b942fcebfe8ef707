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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the file store's AES-256 key. Chosen
// to match the OWASP baseline recommendation for interactive logins.
const (
	argon2Time        = 1
	argon2MemoryKiB   = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	gcmNonceSize      = 12
)

// fileCredentialStore is the headless fallback for hosts with no OS
// keychain (containers, CI runners, servers without a Secret Service or
// Credential Manager). Secrets are stored AES-256-GCM encrypted at
// mwfctl/credentials.enc under the user config directory, under a key
// derived with Argon2id from MWFCTL_MASTER_KEY and a random salt stored
// in the file; with MWFCTL_MASTER_KEY unset the key is derived from an
// empty passphrase and the salt.
type fileCredentialStore struct {
	path string
	key  []byte
}

type encryptedCredentialFile struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

func newFileCredentialStore() (*fileCredentialStore, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}
	dir := filepath.Join(configDir, "mwfctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating credential directory: %w", err)
	}
	return &fileCredentialStore{path: filepath.Join(dir, "credentials.enc")}, nil
}

func (s *fileCredentialStore) get(service, account string) (string, error) {
	entries, _, err := s.load()
	if err != nil {
		return "", err
	}
	secret, ok := entries[entryKey(service, account)]
	if !ok {
		return "", fmt.Errorf("no credential found in local credential store for service %q account %q", service, account)
	}
	return secret, nil
}

func (s *fileCredentialStore) set(service, account, secret string) error {
	entries, salt, err := s.load()
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		entries = make(map[string]string)
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generating salt: %w", err)
		}
	}
	entries[entryKey(service, account)] = secret
	return s.save(entries, salt)
}

func (s *fileCredentialStore) load() (map[string]string, []byte, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil, err
	}

	var enc encryptedCredentialFile
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, nil, fmt.Errorf("decoding credential store: %w", err)
	}

	key := s.deriveKey(enc.Salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Data, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypting credential store: %w", err)
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, nil, fmt.Errorf("decoding credential entries: %w", err)
	}
	return entries, enc.Salt, nil
}

func (s *fileCredentialStore) save(entries map[string]string, salt []byte) error {
	key := s.deriveKey(salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("initializing cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("initializing GCM: %w", err)
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	plaintext, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding credential entries: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	enc := encryptedCredentialFile{Salt: salt, Nonce: nonce, Data: sealed}
	out, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("encoding credential store: %w", err)
	}
	return os.WriteFile(s.path, out, 0o600)
}

// deriveKey derives the file store's AES-256 key from MWFCTL_MASTER_KEY
// and salt via Argon2id. A missing env var still derives a (weaker, but
// workable for a local dev fallback) key from salt alone, so the store
// degrades gracefully rather than refusing to work headless.
func (s *fileCredentialStore) deriveKey(salt []byte) []byte {
	master := os.Getenv("MWFCTL_MASTER_KEY")
	return argon2.IDKey([]byte(master), salt, argon2Time, argon2MemoryKiB, argon2Parallelism, argon2KeyLen)
}

func entryKey(service, account string) string {
	return service + "\x00" + account
}
