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
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertion.
var _ Client = (*SQLiteClient)(nil)

// SQLiteClient is a local/offline Client implementation backed by
// modernc.org/sqlite, used for local development and as the CLI's
// status command cache when no production store endpoint is
// configured.
type SQLiteClient struct {
	db             *sql.DB
	embedChunkSize int
}

// SQLiteConfig configures a SQLiteClient.
type SQLiteConfig struct {
	// Path is the database file path. Use ":memory:" for an ephemeral
	// store (tests, one-shot CLI runs).
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool

	// EmbedChunkSize overrides the default Embed batching size.
	EmbedChunkSize int
}

// NewSQLiteClient opens (creating if necessary) a sqlite-backed Client.
func NewSQLiteClient(cfg SQLiteConfig) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, mwferrors.Wrap(err, "opening sqlite store")
	}

	// sqlite serializes writes; keep the pool to a single connection so
	// busy_timeout governs contention instead of driver-level races.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, mwferrors.Wrap(err, "connecting to sqlite store")
	}

	c := &SQLiteClient{db: db, embedChunkSize: cfg.EmbedChunkSize}
	if c.embedChunkSize <= 0 {
		c.embedChunkSize = defaultEmbedChunkSize
	}

	if err := c.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, mwferrors.Wrap(err, "configuring sqlite pragmas")
	}
	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, mwferrors.Wrap(err, "running sqlite store migrations")
	}

	return c, nil
}

func (c *SQLiteClient) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := c.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// migrate creates the single generic "items" table the Client contract
// is built on: every GetItem/Post/Patch/Embed/Search call reads or
// writes rows here, keyed by id and item_type, with the full document
// body carried as JSON. This mirrors a graph-typed metadata store
// closely enough for local development without requiring a full
// schema per item type.
func (c *SQLiteClient) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			item_type TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_type ON items(item_type)`,
	}
	for _, migration := range migrations {
		if _, err := c.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// GetItem implements Client.
func (c *SQLiteClient) GetItem(ctx context.Context, id string) (map[string]interface{}, error) {
	var body string
	err := c.db.QueryRowContext(ctx, `SELECT body FROM items WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, &mwferrors.NotFoundError{Resource: "store item", ID: id}
	}
	if err != nil {
		return nil, &mwferrors.ServiceError{Service: "store", Message: "get item failed", Cause: err}
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, mwferrors.Wrap(err, "decoding stored item")
	}
	return out, nil
}

// Post implements Client. If body has no "uuid" key, one derived from
// the collection and row count is assigned so repeated Posts without a
// caller-supplied id remain distinct.
func (c *SQLiteClient) Post(ctx context.Context, collection string, body map[string]interface{}) (map[string]interface{}, error) {
	id, _ := body["uuid"].(string)
	if id == "" {
		var n int
		if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE item_type = ?`, collection).Scan(&n); err != nil {
			return nil, &mwferrors.ServiceError{Service: "store", Message: "counting collection rows failed", Cause: err}
		}
		id = fmt.Sprintf("%s-%d", collection, n+1)
		body["uuid"] = id
	}
	body["@type"] = []interface{}{collection}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, mwferrors.Wrap(err, "encoding item body")
	}

	now := time.Now().Format(time.RFC3339)
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO items (id, item_type, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			item_type = excluded.item_type,
			body = excluded.body,
			updated_at = excluded.updated_at
	`, id, collection, string(encoded), now, now)
	if err != nil {
		return nil, &mwferrors.ServiceError{Service: "store", Message: "post item failed", Cause: err}
	}

	return body, nil
}

// Patch implements Client, shallow-merging patch fields into the
// existing stored document.
func (c *SQLiteClient) Patch(ctx context.Context, id string, patch map[string]interface{}) error {
	existing, err := c.GetItem(ctx, id)
	if err != nil {
		return err
	}
	for k, v := range patch {
		existing[k] = v
	}

	encoded, err := json.Marshal(existing)
	if err != nil {
		return mwferrors.Wrap(err, "encoding patched item")
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE items SET body = ?, updated_at = ? WHERE id = ?
	`, string(encoded), time.Now().Format(time.RFC3339), id)
	if err != nil {
		return &mwferrors.ServiceError{Service: "store", Message: "patch item failed", Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &mwferrors.NotFoundError{Resource: "store item", ID: id}
	}
	return nil
}

// Embed implements Client, chunking ids at embedChunkSize entries per
// lookup batch and projecting only the requested fields, matching the
// HTTP client's batching behavior so callers see the same semantics
// regardless of which Client implementation is wired in.
func (c *SQLiteClient) Embed(ctx context.Context, ids []string, fields []string) ([]map[string]interface{}, error) {
	var all []map[string]interface{}
	for _, chunk := range chunkIDs(ids, c.embedChunkSize) {
		for _, id := range chunk {
			item, err := c.GetItem(ctx, id)
			if err != nil {
				if _, ok := err.(*mwferrors.NotFoundError); ok {
					continue
				}
				return nil, err
			}
			all = append(all, projectFields(item, fields))
		}
	}
	return all, nil
}

// Search implements Client, filtering by item_type and a flat set of
// equality filters evaluated against the decoded JSON body.
func (c *SQLiteClient) Search(ctx context.Context, itemType string, filters map[string]string) ([]map[string]interface{}, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT body FROM items WHERE item_type = ? ORDER BY created_at ASC`, itemType)
	if err != nil {
		return nil, &mwferrors.ServiceError{Service: "store", Message: "search failed", Cause: err}
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, mwferrors.Wrap(err, "scanning search row")
		}
		var item map[string]interface{}
		if err := json.Unmarshal([]byte(body), &item); err != nil {
			return nil, mwferrors.Wrap(err, "decoding search row")
		}
		if matchesFilters(item, filters) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Close releases the underlying database connection.
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

func matchesFilters(item map[string]interface{}, filters map[string]string) bool {
	for k, v := range filters {
		got, ok := item[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != v {
			return false
		}
	}
	return true
}

func projectFields(item map[string]interface{}, fields []string) map[string]interface{} {
	if len(fields) == 0 {
		return item
	}
	out := make(map[string]interface{}, len(fields)+1)
	if id, ok := item["uuid"]; ok {
		out["uuid"] = id
	}
	for _, f := range fields {
		if v, ok := lookupPath(item, f); ok {
			out[f] = v
		}
	}
	return out
}

// lookupPath resolves a dotted field path ("sample.files") against a
// decoded JSON document.
func lookupPath(item map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = item
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
