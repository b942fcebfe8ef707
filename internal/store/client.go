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

// Package store implements the metadata store's narrow document contract
// (§6): GetItem, Post, Patch, Embed, Search.
package store

import "context"

// Client is the metadata store's narrow contract. Both the HTTP
// implementation (client_http.go) and the local sqlite implementation
// (sqlite.go) satisfy it.
type Client interface {
	// GetItem fetches the raw document view of a single item by id.
	GetItem(ctx context.Context, id string) (map[string]interface{}, error)

	// Post creates a new document in collection and returns its raw
	// view.
	Post(ctx context.Context, collection string, body map[string]interface{}) (map[string]interface{}, error)

	// Patch applies a partial update to item id.
	Patch(ctx context.Context, id string, body map[string]interface{}) error

	// Embed performs a batched field-projection read over ids, chunking
	// at embedChunkSize entries per request. fields names the
	// projection fields to return per item.
	Embed(ctx context.Context, ids []string, fields []string) ([]map[string]interface{}, error)

	// Search returns items of the given type matching filters.
	Search(ctx context.Context, itemType string, filters map[string]string) ([]map[string]interface{}, error)
}

// defaultEmbedChunkSize is the fallback chunk size for Embed requests,
// matching the original implementation's chunk_ids(..., chunksize=5).
const defaultEmbedChunkSize = 5

// chunkIDs splits ids into consecutive slices of at most size entries
// each, preserving order.
func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = defaultEmbedChunkSize
	}
	var chunks [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}
