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

import "github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"

// MapAdapter adapts a source entity that already carries its
// parameters/files in the shape the compiler expects under top-level
// "parameters" and "files" keys — used for entities (e.g. a bare Cohort
// or a hand-authored test fixture) with no sample/pedigree structure to
// derive from.
type MapAdapter struct{}

// Adapt implements InputAdapter.
func (MapAdapter) Adapt(entity map[string]interface{}) (metaworkflow.InputObject, CommonFields, error) {
	input := metaworkflow.NewInputObject()

	if params, ok := entity["parameters"].(map[string]interface{}); ok {
		for k, v := range params {
			input.Parameters[k] = v
		}
	}

	if files, ok := entity["files"].(map[string]interface{}); ok {
		for name, raw := range files {
			bySample, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			converted := make(map[int][]string, len(bySample))
			for idxStr, v := range bySample {
				idx, ok := parseIndexKey(idxStr)
				if !ok {
					continue
				}
				converted[idx] = stringSlice(v)
			}
			input.Files[name] = converted
		}
	}

	common := CommonFields{
		SourceEntityID: stringField(entity, spUUID),
		Project:        stringField(entity, spProject),
		Institution:    stringField(entity, spInstitution),
	}
	return input, common, nil
}

func parseIndexKey(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
