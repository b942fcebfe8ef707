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

package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAdapter_BuildsInputObject(t *testing.T) {
	entity := map[string]interface{}{
		"uuid":    "entity-1",
		"project": "proj-1",
		"parameters": map[string]interface{}{
			"counts": []interface{}{1, 2, 3},
		},
		"files": map[string]interface{}{
			"cram": map[string]interface{}{
				"0": []interface{}{"u1"},
				"1": []interface{}{"u2", "u3"},
			},
		},
	}

	input, common, err := MapAdapter{}.Adapt(entity)
	require.NoError(t, err)
	assert.Equal(t, "entity-1", common.SourceEntityID)
	assert.Equal(t, []interface{}{1, 2, 3}, input.Parameters["counts"])
	assert.Equal(t, []string{"u1"}, input.Files["cram"][0])
	assert.Equal(t, []string{"u2", "u3"}, input.Files["cram"][1])
}

func TestSampleFilter_KeepsMatchingSamples(t *testing.T) {
	f, err := NewSampleFilter(`relationship != "father"`)
	require.NoError(t, err)

	keep, err := f.Keep(map[string]interface{}{"relationship": "father"})
	require.NoError(t, err)
	assert.False(t, keep)

	keep, err = f.Keep(map[string]interface{}{"relationship": "proband"})
	require.NoError(t, err)
	assert.True(t, keep)
}

func TestSampleFilter_EmptyAcceptsAll(t *testing.T) {
	f, err := NewSampleFilter("")
	require.NoError(t, err)
	keep, err := f.Keep(map[string]interface{}{"relationship": "father"})
	require.NoError(t, err)
	assert.True(t, keep)
}

func TestFilterSamplesAndPedigree_DropsFilteredOut(t *testing.T) {
	f, err := NewSampleFilter(`relationship != "father"`)
	require.NoError(t, err)

	samples := []map[string]interface{}{
		{"bam_sample_id": "proband-1"},
		{"bam_sample_id": "father-1"},
	}
	pedigree := []map[string]interface{}{
		{"sample_name": "proband-1", "relationship": "proband"},
		{"sample_name": "father-1", "relationship": "father"},
	}

	keptSamples, keptPedigree, err := FilterSamplesAndPedigree(f, samples, pedigree)
	require.NoError(t, err)
	require.Len(t, keptSamples, 1)
	require.Len(t, keptPedigree, 1)
	assert.Equal(t, "proband-1", keptSamples[0]["bam_sample_id"])
}
