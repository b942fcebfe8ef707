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

// Package cli wires mwfctl's cobra commands over the store, execution
// backend, reconciler, and factory packages.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/config"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/execbackend"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/factory"
	mwflog "github.com/dbmi-bgm/cgap-wfl-utils/internal/log"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/reconcile"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/store"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/tracing"
	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
)

// app bundles the collaborators every command needs, built once per
// invocation from the loaded Config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Client
	backend  execbackend.Backend
	provider *tracing.Provider
}

func newApp(cfg *config.Config) (*app, error) {
	logCfg := &mwflog.Config{
		Level:  cfg.Log.Level,
		Format: mwflog.Format(cfg.Log.Format),
	}
	logger := mwflog.New(logCfg)

	storeClient, err := buildStoreClient(cfg)
	if err != nil {
		return nil, mwferrors.Wrap(err, "building store client")
	}

	backend, err := buildBackend(cfg, logger)
	if err != nil {
		return nil, mwferrors.Wrap(err, "building execution backend client")
	}

	var provider *tracing.Provider
	if cfg.Tracing.Enabled {
		provider, err = tracing.NewProviderWithConfig(tracing.Config{
			Enabled:      cfg.Tracing.Enabled,
			ServiceName:  cfg.Tracing.ServiceName,
			OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
			Sampling:     tracing.SamplingConfig{Enabled: cfg.Tracing.SampleFraction > 0, Rate: cfg.Tracing.SampleFraction},
		})
		if err != nil {
			return nil, mwferrors.Wrap(err, "building tracing provider")
		}
	}

	return &app{cfg: cfg, logger: logger, store: storeClient, backend: backend, provider: provider}, nil
}

func buildStoreClient(cfg *config.Config) (store.Client, error) {
	if cfg.Store.SQLitePath != "" {
		return store.NewSQLiteClient(store.SQLiteConfig{
			Path:           cfg.Store.SQLitePath,
			WAL:            true,
			EmbedChunkSize: cfg.Store.EmbedChunkSize,
		})
	}

	tokens, err := storeTokenSource(cfg)
	if err != nil {
		return nil, err
	}

	return store.NewHTTPClient(store.HTTPClientConfig{
		Endpoint:       cfg.Store.Endpoint,
		Tokens:         tokens,
		RequestTimeout: cfg.Store.RequestTimeout,
		EmbedChunkSize: cfg.Store.EmbedChunkSize,
	})
}

func storeTokenSource(cfg *config.Config) (store.TokenSource, error) {
	switch cfg.Store.AuthMode {
	case "", "bearer":
		token, err := lookupCredential(cfg.Store.KeyringService, cfg.Store.Endpoint)
		if err != nil {
			return nil, err
		}
		return store.NewStaticTokenSource(token), nil
	case "oauth2":
		secret, err := lookupCredential(cfg.Store.KeyringService, cfg.Store.OAuth2.KeyringEntry)
		if err != nil {
			return nil, err
		}
		return store.NewClientCredentialsTokenSource(cfg.Store.OAuth2.ClientID, secret, cfg.Store.OAuth2.TokenURL, cfg.Store.OAuth2.Scopes), nil
	case "none":
		return store.NewStaticTokenSource(""), nil
	default:
		return nil, fmt.Errorf("store: unknown auth_mode %q", cfg.Store.AuthMode)
	}
}

func buildBackend(cfg *config.Config, logger *slog.Logger) (execbackend.Backend, error) {
	var token string
	switch cfg.Backend.AuthMode {
	case "", "bearer":
		var err error
		token, err = lookupCredential(cfg.Backend.KeyringService, cfg.Backend.Endpoint)
		if err != nil {
			return nil, err
		}
	case "sts-assume-role":
		creds, err := execbackend.NewAssumeRoleCredentials(context.Background(), cfg.Backend.AWSRegion, cfg.Backend.AWSRoleARN)
		if err != nil {
			return nil, err
		}
		token, _, err = creds.Token(context.Background())
		if err != nil {
			return nil, err
		}
	}

	return execbackend.NewHTTPBackend(execbackend.HTTPBackendConfig{
		Endpoint:         cfg.Backend.Endpoint,
		BearerToken:      token,
		RequestTimeout:   cfg.Backend.RequestTimeout,
		SubmitsPerSecond: cfg.Backend.SubmitRateLimit,
		SubmitBurst:      cfg.Backend.SubmitBurst,
	})
}

// newFactory builds a Run Factory over the app's store client.
func (a *app) newFactory() *factory.Factory {
	cfg := factory.Config{Store: a.store, Logger: a.logger}
	if a.provider != nil {
		cfg.Tracer = a.provider.Tracer("mwfctl/factory")
	}
	return factory.New(cfg)
}

// newReconciler builds a Reconciler over the app's store/backend clients.
func (a *app) newReconciler() *reconcile.Reconciler {
	rcCfg := reconcile.Config{
		Store:             a.store,
		Backend:           a.backend,
		Loader:            reconcile.StoreLoader{Store: a.store},
		Logger:            a.logger,
		MaxSubmitPerCycle: a.cfg.Reconcile.MaxSubmitPerCycle,
		StatusConcurrency: a.cfg.Reconcile.StatusConcurrency,
	}
	if a.provider != nil {
		rcCfg.Tracer = a.provider.Tracer("mwfctl/reconcile")
		collector, err := tracing.NewMetricsCollector(nil)
		if err == nil {
			rcCfg.Metrics = collector
		}
	}
	return reconcile.New(rcCfg)
}
