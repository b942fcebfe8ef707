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

package execbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/httpclient"
	"golang.org/x/time/rate"
)

// Compile-time interface assertion.
var _ Backend = (*HTTPBackend)(nil)

// HTTPBackend is the production Backend implementation, talking to the
// execution backend over HTTP. Submissions are rate-limited: a
// reconciliation pass can find many shards ready at once, and the
// backend is an external job queue that should see a bounded burst
// rather than one request per ready shard fired simultaneously.
type HTTPBackend struct {
	baseURL     string
	httpClient  *http.Client
	bearerToken string
	limiter     *rate.Limiter
}

// HTTPBackendConfig configures an HTTPBackend.
type HTTPBackendConfig struct {
	Endpoint       string
	BearerToken    string
	RequestTimeout time.Duration

	// SubmitsPerSecond bounds the sustained submission rate; SubmitBurst
	// bounds how many submissions may fire back-to-back before the
	// limiter starts spacing them out. Both default to a conservative
	// 2/sec, burst 5 when zero.
	SubmitsPerSecond float64
	SubmitBurst      int
}

// NewHTTPBackend constructs an HTTPBackend from cfg.
func NewHTTPBackend(cfg HTTPBackendConfig) (*HTTPBackend, error) {
	httpCfg := httpclient.DefaultConfig()
	if cfg.RequestTimeout > 0 {
		httpCfg.Timeout = cfg.RequestTimeout
	}
	httpCfg.UserAgent = "mwfctl-execbackend-client/1.0"

	hc, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, mwferrors.Wrap(err, "building execution backend http client")
	}

	perSec := cfg.SubmitsPerSecond
	if perSec <= 0 {
		perSec = 2
	}
	burst := cfg.SubmitBurst
	if burst <= 0 {
		burst = 5
	}

	return &HTTPBackend{
		baseURL:     strings.TrimRight(cfg.Endpoint, "/"),
		httpClient:  hc,
		bearerToken: cfg.BearerToken,
		limiter:     rate.NewLimiter(rate.Limit(perSec), burst),
	}, nil
}

// Submit implements Backend.
func (b *HTTPBackend) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return SubmitResult{}, mwferrors.Wrap(err, "waiting for submission rate limiter")
	}

	body := map[string]interface{}{
		"run_id":      req.RunID,
		"step_name":   req.StepName,
		"shard_coord": req.ShardCoord,
		"workflow_id": req.WorkflowID,
		"args":        json.RawMessage(req.Args),
		"retry":       req.Retry,
	}

	resp, err := b.do(ctx, http.MethodPost, "/jobs", body)
	if err != nil {
		return SubmitResult{}, err
	}

	var out struct {
		EngineJobID string `json:"engine_job_id"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{EngineJobID: out.EngineJobID}, nil
}

// Status implements Backend. It is not rate-limited: polling
// previously submitted jobs is bounded by the reconciler's own tick
// interval, not by submission pressure.
func (b *HTTPBackend) Status(ctx context.Context, engineJobID string) (StatusResult, error) {
	resp, err := b.do(ctx, http.MethodGet, "/jobs/"+engineJobID, nil)
	if err != nil {
		return StatusResult{}, err
	}

	var out struct {
		Status      JobStatus `json:"status"`
		Message     string    `json:"message"`
		OutputFiles []struct {
			WorkflowArgumentName string `json:"workflow_argument_name"`
			Type                 string `json:"type"`
			Value                struct {
				UUID string `json:"uuid"`
			} `json:"value"`
		} `json:"output_files"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return StatusResult{}, err
	}

	result := StatusResult{Status: out.Status, Message: out.Message}
	for _, f := range out.OutputFiles {
		if f.Type == outputProcessedFileType {
			result.OutputHandle = f.Value.UUID
			break
		}
	}
	return result, nil
}

// outputProcessedFileType is the only output_files entry type the core
// consumes from a backend status response.
const outputProcessedFileType = "Output processed file"

func (b *HTTPBackend) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, mwferrors.Wrap(err, "encoding execution backend request body")
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, mwferrors.Wrap(err, "building execution backend request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.bearerToken)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &mwferrors.ServiceError{Service: "backend", Message: method + " " + path + " failed", Cause: err}
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return &mwferrors.NotFoundError{Resource: "execution backend job", ID: resp.Request.URL.Path}
	}
	if resp.StatusCode >= 400 {
		return &mwferrors.ServiceError{Service: "backend", StatusCode: resp.StatusCode, Message: "execution backend returned an error status"}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
