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

package metaworkflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearABC(t *testing.T) *MetaWorkflow {
	t.Helper()
	raw := []RawStep{
		{Name: "A", Args: []RawArgument{{Name: "reads"}}},
		{Name: "B", Args: []RawArgument{{Name: "aligned", SourceStep: "A"}}},
		{Name: "C", Args: []RawArgument{{Name: "called", SourceStep: "B"}}},
	}
	mwf, err := ParseMetaWorkflow("mwf-1", "linear", raw, nil)
	require.NoError(t, err)
	return mwf
}

func TestParseSteps_DuplicateName(t *testing.T) {
	raw := []RawStep{{Name: "A"}, {Name: "A"}}
	_, err := ParseSteps(raw)
	require.Error(t, err)
	var dupErr *DuplicateStepError
	assert.ErrorAs(t, err, &dupErr)
}

func TestParseSteps_MissingName(t *testing.T) {
	raw := []RawStep{{Name: ""}}
	_, err := ParseSteps(raw)
	require.Error(t, err)
	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestParseSteps_ScatterAndGatherDerivation(t *testing.T) {
	raw := []RawStep{
		{Name: "A", Args: []RawArgument{{Name: "reads", Scatter: 1}}},
		{Name: "B", Args: []RawArgument{{Name: "aligned", SourceStep: "A", Gather: 1}}},
	}
	steps, err := ParseSteps(raw)
	require.NoError(t, err)

	a := steps[0]
	assert.Equal(t, 1, a.IsScatter)

	b := steps[1]
	assert.Equal(t, 0, b.IsScatter)
	assert.Equal(t, 1, b.GatherFrom["A"])
	_, hasDep := b.Dependencies["A"]
	assert.True(t, hasDep)
}

func TestParseSteps_IsScatter_FirstDeclaredArgWins(t *testing.T) {
	raw := []RawStep{
		{Name: "A", Args: []RawArgument{
			{Name: "samples", Scatter: 2},
			{Name: "aligned", SourceStep: "B", Scatter: 1},
		}},
	}
	steps, err := ParseSteps(raw)
	require.NoError(t, err)

	assert.Equal(t, 2, steps[0].IsScatter, "declaration order wins regardless of SourceStep")
}

func TestCompile_Totality(t *testing.T) {
	mwf := linearABC(t)
	ordered, err := Compile(mwf, []string{"C"})
	require.NoError(t, err)
	require.Len(t, ordered, 3)

	position := make(map[string]int, len(ordered))
	for i, s := range ordered {
		position[s.Name] = i
	}

	for _, s := range ordered {
		for dep := range s.Dependencies {
			assert.Less(t, position[dep], position[s.Name], "step %s must follow dependency %s", s.Name, dep)
		}
	}
}

func TestCompile_MissingDep(t *testing.T) {
	raw := []RawStep{
		{Name: "B", Args: []RawArgument{{Name: "aligned", SourceStep: "A"}}},
	}
	mwf, err := ParseMetaWorkflow("mwf-2", "broken", raw, nil)
	require.NoError(t, err)

	_, err = Compile(mwf, []string{"B"})
	require.Error(t, err)
	var missingErr *MissingDepError
	assert.ErrorAs(t, err, &missingErr)
}

func TestCompile_UnreachableStepsExcluded(t *testing.T) {
	raw := []RawStep{
		{Name: "A"},
		{Name: "B", Args: []RawArgument{{Name: "x", SourceStep: "A"}}},
		{Name: "Unrelated"},
	}
	mwf, err := ParseMetaWorkflow("mwf-3", "partial", raw, nil)
	require.NoError(t, err)

	ordered, err := Compile(mwf, []string{"B"})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	for _, s := range ordered {
		assert.NotEqual(t, "Unrelated", s.Name)
	}
}
