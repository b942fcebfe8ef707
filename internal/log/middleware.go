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

package log

import (
	"log/slog"
	"time"
)

// BackendRequest represents an outbound call to the metadata store or execution backend for logging purposes.
type BackendRequest struct {
	// Operation is the name of the backend operation (e.g., "submit_shard", "get_item", "patch_item").
	Operation string

	// CorrelationID is the correlation ID for tracing the request.
	CorrelationID string

	// RequestID is the unique ID for this specific request.
	RequestID string

	// RemoteAddr is the remote address of the client.
	RemoteAddr string

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// BackendResponse represents the result of a store or backend call for logging purposes.
type BackendResponse struct {
	// Success indicates whether the request was successful.
	Success bool

	// Error is the error message if the request failed.
	Error string

	// DurationMs is the duration of the request in milliseconds.
	DurationMs int64

	// Metadata contains additional response metadata.
	Metadata map[string]interface{}
}

// LogBackendRequest logs an outbound store/backend call.
func LogBackendRequest(logger *slog.Logger, req *BackendRequest) {
	attrs := []any{
		"event", "backend_request",
		"operation", req.Operation,
		"remote", req.RemoteAddr,
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("backend request sent", attrs...)
}

// LogBackendResponse logs the result of a store/backend call.
func LogBackendResponse(logger *slog.Logger, req *BackendRequest, resp *BackendResponse) {
	attrs := []any{
		"event", "backend_response",
		"operation", req.Operation,
		"success", resp.Success,
		"duration_ms", resp.DurationMs,
		"remote", req.RemoteAddr,
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	for k, v := range resp.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "backend request completed"

	if !resp.Success {
		level = slog.LevelError
		message = "backend request failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// BackendCallMiddleware wraps a store/backend call with logging.
// It logs the request when it is issued and the response when it completes.
type BackendCallMiddleware struct {
	logger *slog.Logger
}

// NewBackendCallMiddleware creates a new backend call logging middleware.
func NewBackendCallMiddleware(logger *slog.Logger) *BackendCallMiddleware {
	return &BackendCallMiddleware{
		logger: logger,
	}
}

// Handler wraps a function that performs a store/backend call.
// It logs the request and response automatically.
func (m *BackendCallMiddleware) Handler(req *BackendRequest, handler func() error) error {
	start := time.Now()

	// Log incoming request
	LogBackendRequest(m.logger, req)

	// Execute handler
	err := handler()

	// Calculate duration
	duration := time.Since(start).Milliseconds()

	// Log response
	resp := &BackendResponse{
		Success:    err == nil,
		DurationMs: duration,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogBackendResponse(m.logger, req, resp)

	return err
}

// HandlerWithMetadata wraps a function that performs a store/backend call and returns metadata.
// It logs the request and response with the returned metadata.
func (m *BackendCallMiddleware) HandlerWithMetadata(req *BackendRequest, handler func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()

	// Log incoming request
	LogBackendRequest(m.logger, req)

	// Execute handler
	metadata, err := handler()

	// Calculate duration
	duration := time.Since(start).Milliseconds()

	// Log response
	resp := &BackendResponse{
		Success:    err == nil,
		DurationMs: duration,
		Metadata:   metadata,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogBackendResponse(m.logger, req, resp)

	return metadata, err
}
