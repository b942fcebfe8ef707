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

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/httpclient"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource mints the bearer token attached to every outbound request.
// In production this is an OAuth2 client-credentials source; in dev/test
// mode it can be a locally minted JWT (see NewDevTokenSource).
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// oauth2TokenSource adapts golang.org/x/oauth2's TokenSource.
type oauth2TokenSource struct {
	src oauth2.TokenSource
}

func (s oauth2TokenSource) Token(ctx context.Context) (string, error) {
	tok, err := s.src.Token()
	if err != nil {
		return "", mwferrors.Wrap(err, "minting oauth2 token")
	}
	return tok.AccessToken, nil
}

// NewClientCredentialsTokenSource builds a TokenSource backed by an OAuth2
// client-credentials flow against tokenURL.
func NewClientCredentialsTokenSource(clientID, clientSecret, tokenURL string, scopes []string) TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return oauth2TokenSource{src: cc.TokenSource(context.Background())}
}

// staticTokenSource always returns the same pre-minted token, used for
// dev/test mode bearer auth.
type staticTokenSource string

func (s staticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// NewStaticTokenSource wraps a fixed bearer token string.
func NewStaticTokenSource(token string) TokenSource {
	return staticTokenSource(token)
}

// HTTPClient is the production Client implementation, talking to the
// metadata store over HTTP.
type HTTPClient struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	embedChunkSize int
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	Endpoint       string
	Tokens         TokenSource
	RequestTimeout time.Duration
	EmbedChunkSize int
}

// NewHTTPClient constructs an HTTPClient from cfg, wiring the shared
// retry/logging transport factory.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	httpCfg := httpclient.DefaultConfig()
	if cfg.RequestTimeout > 0 {
		httpCfg.Timeout = cfg.RequestTimeout
	}
	httpCfg.UserAgent = "mwfctl-store-client/1.0"

	hc, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, mwferrors.Wrap(err, "building store http client")
	}

	return &HTTPClient{
		baseURL:        strings.TrimRight(cfg.Endpoint, "/"),
		httpClient:     hc,
		tokens:         cfg.Tokens,
		embedChunkSize: cfg.EmbedChunkSize,
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, mwferrors.Wrap(err, "encoding store request body")
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, mwferrors.Wrap(err, "building store request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, &mwferrors.ServiceError{Service: "store", Message: "failed to obtain auth token", Cause: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &mwferrors.ServiceError{Service: "store", Message: fmt.Sprintf("%s %s failed", method, path), Cause: err}
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return &mwferrors.NotFoundError{Resource: "store item", ID: resp.Request.URL.Path}
	}
	if resp.StatusCode >= 400 {
		return &mwferrors.ServiceError{Service: "store", StatusCode: resp.StatusCode, Message: "store returned an error status"}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetItem implements Client.
func (c *HTTPClient) GetItem(ctx context.Context, id string) (map[string]interface{}, error) {
	resp, err := c.do(ctx, http.MethodGet, "/"+id+"?frame=raw", nil)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Post implements Client.
func (c *HTTPClient) Post(ctx context.Context, collection string, body map[string]interface{}) (map[string]interface{}, error) {
	resp, err := c.do(ctx, http.MethodPost, "/"+collection, body)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Patch implements Client.
func (c *HTTPClient) Patch(ctx context.Context, id string, body map[string]interface{}) error {
	resp, err := c.do(ctx, http.MethodPatch, "/"+id, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// Embed implements Client, chunking ids at c.embedChunkSize (default 5)
// per request, grounded on the original chunk_ids helper.
func (c *HTTPClient) Embed(ctx context.Context, ids []string, fields []string) ([]map[string]interface{}, error) {
	var all []map[string]interface{}
	for _, chunk := range chunkIDs(ids, c.embedChunkSize) {
		resp, err := c.do(ctx, http.MethodPost, "/embed", map[string]interface{}{
			"ids":    chunk,
			"fields": fields,
		})
		if err != nil {
			return nil, err
		}
		var out []map[string]interface{}
		if err := decodeJSON(resp, &out); err != nil {
			return nil, err
		}
		all = append(all, out...)
	}
	return all, nil
}

// Search implements Client.
func (c *HTTPClient) Search(ctx context.Context, itemType string, filters map[string]string) ([]map[string]interface{}, error) {
	q := url.Values{}
	q.Set("type", itemType)
	for k, v := range filters {
		q.Set(k, v)
	}

	resp, err := c.do(ctx, http.MethodGet, "/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]interface{}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}
