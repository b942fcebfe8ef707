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
	"testing"

	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *SQLiteClient {
	t.Helper()
	c, err := NewSQLiteClient(SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteClient_PostThenGetItem(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.Post(ctx, "meta_workflow_run", map[string]interface{}{
		"title": "test run",
	})
	require.NoError(t, err)
	id, _ := created["uuid"].(string)
	require.NotEmpty(t, id)

	got, err := c.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "test run", got["title"])
}

func TestSQLiteClient_GetItem_NotFound(t *testing.T) {
	c := newTestClient(t)
	_, err := c.GetItem(context.Background(), "does-not-exist")
	require.Error(t, err)
	var nf *mwferrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSQLiteClient_Patch_MergesFields(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.Post(ctx, "meta_workflow_run", map[string]interface{}{
		"status": "pending",
		"title":  "run a",
	})
	require.NoError(t, err)
	id := created["uuid"].(string)

	require.NoError(t, c.Patch(ctx, id, map[string]interface{}{"status": "running"}))

	got, err := c.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "running", got["status"])
	assert.Equal(t, "run a", got["title"], "unpatched fields are preserved")
}

func TestSQLiteClient_Patch_NotFound(t *testing.T) {
	c := newTestClient(t)
	err := c.Patch(context.Background(), "missing", map[string]interface{}{"status": "running"})
	require.Error(t, err)
	var nf *mwferrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSQLiteClient_Embed_ChunksAndProjects(t *testing.T) {
	c := newTestClient(t)
	c.embedChunkSize = 2
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		created, err := c.Post(ctx, "file_processed", map[string]interface{}{
			"accession": i,
		})
		require.NoError(t, err)
		ids = append(ids, created["uuid"].(string))
	}

	out, err := c.Embed(ctx, ids, []string{"accession"})
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, item := range out {
		assert.EqualValues(t, i, item["accession"])
		assert.Equal(t, ids[i], item["uuid"])
	}
}

func TestSQLiteClient_Embed_SkipsMissingIDs(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.Post(ctx, "file_processed", map[string]interface{}{"accession": 1})
	require.NoError(t, err)
	id := created["uuid"].(string)

	out, err := c.Embed(ctx, []string{id, "missing-id"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestSQLiteClient_Search_FiltersByTypeAndFields(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Post(ctx, "sample_processing", map[string]interface{}{"project": "p1"})
	require.NoError(t, err)
	_, err = c.Post(ctx, "sample_processing", map[string]interface{}{"project": "p2"})
	require.NoError(t, err)
	_, err = c.Post(ctx, "meta_workflow_run", map[string]interface{}{"project": "p1"})
	require.NoError(t, err)

	out, err := c.Search(ctx, "sample_processing", map[string]string{"project": "p1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0]["project"])
}

func TestLookupPath_NestedField(t *testing.T) {
	item := map[string]interface{}{
		"family": map[string]interface{}{"size": 4},
	}
	v, ok := lookupPath(item, "family.size")
	require.True(t, ok)
	assert.EqualValues(t, 4, v)

	_, ok = lookupPath(item, "family.missing")
	assert.False(t, ok)
}
