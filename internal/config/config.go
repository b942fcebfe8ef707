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
	"errors"
	"os"
	"time"

	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete mwfctl configuration: the metadata store, the
// execution backend, the reconciler's poll cadence, and observability.
type Config struct {
	// Version indicates the config format version (1 = initial public release).
	Version int `yaml:"version,omitempty"`

	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Backend   BackendConfig   `yaml:"backend"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level,omitempty"`
	// Format is one of text, json. Default: text.
	Format string `yaml:"format,omitempty"`
}

// StoreConfig configures the metadata store client.
type StoreConfig struct {
	// Endpoint is the store's base URL, e.g. https://data.4dnucleome.org.
	Endpoint string `yaml:"endpoint"`
	// AuthMode is one of "bearer", "oauth2", "none". Default: bearer.
	AuthMode string `yaml:"auth_mode,omitempty"`
	// KeyringService names the OS keychain service holding the store credential,
	// looked up under the Endpoint as account name.
	KeyringService string `yaml:"keyring_service,omitempty"`
	// OAuth2 is used when AuthMode == "oauth2".
	OAuth2 OAuth2Config `yaml:"oauth2,omitempty"`
	// SQLitePath, if set, runs the store against a local sqlite file instead
	// of Endpoint — used for offline development and CLI status caching.
	SQLitePath string `yaml:"sqlite_path,omitempty"`
	// EmbedChunkSize is the number of item ids per /embed request. Default: 5.
	EmbedChunkSize int `yaml:"embed_chunk_size,omitempty"`
	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// BackendConfig configures the execution backend client.
type BackendConfig struct {
	// Endpoint is the execution backend's base URL.
	Endpoint string `yaml:"endpoint"`
	// AuthMode is one of "bearer", "oauth2", "sts-assume-role", "none".
	// Default: bearer.
	AuthMode string `yaml:"auth_mode,omitempty"`
	// KeyringService names the OS keychain service holding the backend credential.
	KeyringService string `yaml:"keyring_service,omitempty"`
	OAuth2         OAuth2Config `yaml:"oauth2,omitempty"`
	// SubmitRateLimit caps job submissions per second. Default: 2.
	SubmitRateLimit float64 `yaml:"submit_rate_limit,omitempty"`
	// SubmitBurst caps the submission burst size. Default: 5.
	SubmitBurst int `yaml:"submit_burst,omitempty"`
	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	// AWSRoleARN is the IAM role to assume when AuthMode == "sts-assume-role",
	// used when the execution backend lives in a separate AWS account (the
	// common case for an AWSEM/Tibanna-style backend running jobs against a
	// different account's compute and S3 buckets than the metadata store).
	AWSRoleARN string `yaml:"aws_role_arn,omitempty"`
	// AWSRegion is the region used to build the STS client. Default: us-east-1.
	AWSRegion string `yaml:"aws_region,omitempty"`
}

// OAuth2Config configures OAuth2 client-credentials authentication.
type OAuth2Config struct {
	ClientID     string   `yaml:"client_id,omitempty"`
	TokenURL     string   `yaml:"token_url,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
	KeyringEntry string   `yaml:"keyring_entry,omitempty"` // keychain account holding the client secret
}

// ReconcileConfig configures the reconciliation loop.
type ReconcileConfig struct {
	// PollInterval is how often the reconciler scans in-flight runs. Default: 30s.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	// MaxSubmitPerCycle caps how many shards a single cycle will submit. 0 = unlimited.
	MaxSubmitPerCycle int `yaml:"max_submit_per_cycle,omitempty"`
	// StatusConcurrency bounds concurrent backend status polls per cycle. Default: 8.
	StatusConcurrency int `yaml:"status_concurrency,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing and Prometheus metrics.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled,omitempty"`
	ServiceName    string  `yaml:"service_name,omitempty"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint,omitempty"`
	SampleFraction float64 `yaml:"sample_fraction,omitempty"`
	MetricsAddr    string  `yaml:"metrics_addr,omitempty"`
}

// Default returns a Config populated with the package defaults.
func Default() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.AuthMode == "" {
		c.Store.AuthMode = "bearer"
	}
	if c.Store.EmbedChunkSize == 0 {
		c.Store.EmbedChunkSize = 5
	}
	if c.Store.RequestTimeout == 0 {
		c.Store.RequestTimeout = 30 * time.Second
	}
	if c.Backend.AuthMode == "" {
		c.Backend.AuthMode = "bearer"
	}
	if c.Backend.SubmitRateLimit == 0 {
		c.Backend.SubmitRateLimit = 2
	}
	if c.Backend.SubmitBurst == 0 {
		c.Backend.SubmitBurst = 5
	}
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = 30 * time.Second
	}
	if c.Reconcile.PollInterval == 0 {
		c.Reconcile.PollInterval = 30 * time.Second
	}
	if c.Reconcile.StatusConcurrency == 0 {
		c.Reconcile.StatusConcurrency = 8
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "mwfctl"
	}
	if c.Tracing.SampleFraction == 0 {
		c.Tracing.SampleFraction = 1.0
	}
}

// Load reads and validates the config file at path. If path is empty, the
// default XDG config path is used. A missing file yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, mwferrors.Wrap(err, "config: resolve default path")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, mwferrors.Wrap(err, "config: read file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, mwferrors.Wrap(err, "config: parse yaml")
	}
	cfg.applyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
