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
	"fmt"

	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"
)

const (
	spSamplesPedigree = "samples_pedigree"
	spSamples         = "samples"
	spBamSampleID     = "bam_sample_id"
	spProcessedFiles  = "processed_files"
	spFileFormat      = "file_format"
	spRelationship    = "relationship"
	spSampleName      = "sample_name"
	spSex             = "sex"
	spParents         = "parents"
	spIndividual      = "individual"
	spUUID            = "uuid"
	spProject         = "project"
	spInstitution     = "institution"

	relationshipProband = "proband"
	relationshipMother  = "mother"
	relationshipFather  = "father"
)

// SampleProcessingAdapter translates a SampleProcessing entity into an
// InputObject, grounded on the original's InputPropertiesFromSampleProcessing:
// samples and their pedigree are sorted proband-first, then mother,
// then father, then the remainder, and per-sample processed files are
// grouped by format into the shard-dimension maps the compiler expects.
type SampleProcessingAdapter struct {
	// ExpectFamilyStructure requires samples_pedigree to be present and
	// enforces the proband/mother/father sort; when false (e.g. for a
	// Cohort without pedigree), samples and pedigree pass through
	// unsorted.
	ExpectFamilyStructure bool

	// FileFormats maps an InputDecl.Name to the processed_files format
	// string to pull for that name (e.g. "cram" -> "cram").
	FileFormats map[string]string
}

// Adapt implements InputAdapter.
func (a SampleProcessingAdapter) Adapt(entity map[string]interface{}) (metaworkflow.InputObject, CommonFields, error) {
	input := metaworkflow.NewInputObject()

	samples, pedigree, err := a.sortedSamplesAndPedigree(entity)
	if err != nil {
		return input, CommonFields{}, err
	}

	for name, format := range a.FileFormats {
		files := make(map[int][]string, len(samples))
		for idx, sample := range samples {
			matches, err := processedFilesForFormat(sample, format)
			if err != nil {
				return input, CommonFields{}, err
			}
			files[idx] = matches
		}
		input.Files[name] = files
	}

	sampleNames := make([]string, len(samples))
	for idx, sample := range samples {
		sampleNames[idx] = stringField(sample, spBamSampleID)
	}

	input.Parameters[spSamplesPedigree] = buildPedigreeParameter(pedigree)
	input.Parameters["sample_names"] = sampleNames
	input.Parameters["family_size"] = len(sampleNames)
	if len(sampleNames) > 0 {
		input.Parameters["sample_name_proband"] = sampleNames[0] // already sorted proband-first
	}

	common := CommonFields{
		SourceEntityID: stringField(entity, spUUID),
		Project:        stringField(entity, spProject),
		Institution:    stringField(entity, spInstitution),
	}

	return input, common, nil
}

// buildPedigreeParameter reshapes sorted pedigree entries into the
// parents/individual/sample_name/gender structure the original's
// `pedigree` property produces, for PARAMETER inputs declared by name
// "samples_pedigree".
func buildPedigreeParameter(pedigree []map[string]interface{}) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(pedigree))
	for _, p := range pedigree {
		parents, _ := p[spParents].([]interface{})
		result = append(result, map[string]interface{}{
			spParents:    parents,
			spIndividual: stringField(p, spIndividual),
			spSampleName: stringField(p, spSampleName),
			"gender":     stringField(p, spSex),
		})
	}
	return result
}

// SortedSamplesAndPedigree exposes the sort step directly, for callers
// (e.g. the run factory) that need the pedigree ordering itself rather
// than just the derived file maps.
func (a SampleProcessingAdapter) SortedSamplesAndPedigree(entity map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, error) {
	return a.sortedSamplesAndPedigree(entity)
}

func (a SampleProcessingAdapter) sortedSamplesAndPedigree(entity map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, error) {
	samples := sliceOfMaps(entity[spSamples])
	if len(samples) == 0 {
		return nil, nil, &AdaptError{Entity: "sample_processing", Reason: "no samples found"}
	}

	pedigree := sliceOfMaps(entity[spSamplesPedigree])
	if len(pedigree) == 0 && a.ExpectFamilyStructure {
		return nil, nil, &AdaptError{Entity: "sample_processing", Reason: "no samples_pedigree found"}
	}
	if a.ExpectFamilyStructure && len(samples) != len(pedigree) {
		return nil, nil, &AdaptError{Entity: "sample_processing", Reason: "samples and samples_pedigree length mismatch"}
	}

	if !a.ExpectFamilyStructure {
		return samples, pedigree, nil
	}

	bamSampleIDs := make(map[string]struct{}, len(samples))
	for _, s := range samples {
		if id := stringField(s, spBamSampleID); id != "" {
			bamSampleIDs[id] = struct{}{}
		}
	}

	var proband, mother, father string
	for _, p := range pedigree {
		name := stringField(p, spSampleName)
		if name == "" {
			return nil, nil, &AdaptError{Entity: "sample_processing", Reason: "no sample name given for sample in pedigree"}
		}
		if _, ok := bamSampleIDs[name]; !ok {
			return nil, nil, &AdaptError{Entity: "sample_processing", Reason: fmt.Sprintf("sample in pedigree not found on sample_processing: %s", name)}
		}
		if stringField(p, spSex) == "" {
			return nil, nil, &AdaptError{Entity: "sample_processing", Reason: fmt.Sprintf("no sex given for sample in pedigree: %s", name)}
		}
		switch stringField(p, spRelationship) {
		case relationshipProband:
			proband = name
		case relationshipMother:
			mother = name
		case relationshipFather:
			father = name
		}
	}
	if proband == "" {
		return nil, nil, &AdaptError{Entity: "sample_processing", Reason: "no proband found within the pedigree"}
	}

	sortedPedigree := sortBySampleName(pedigree, spSampleName, proband, mother, father)
	sortedSamples := sortBySampleName(samples, spBamSampleID, proband, mother, father)
	return sortedSamples, sortedPedigree, nil
}

// sortBySampleName reorders items proband-first, then mother, then
// father, then the remainder in original order.
func sortBySampleName(items []map[string]interface{}, nameKey, proband, mother, father string) []map[string]interface{} {
	var probandIdx, motherIdx, fatherIdx = -1, -1, -1
	var otherIdx []int

	for idx, item := range items {
		name := stringField(item, nameKey)
		switch {
		case name == proband:
			probandIdx = idx
		case mother != "" && name == mother:
			motherIdx = idx
		case father != "" && name == father:
			fatherIdx = idx
		default:
			otherIdx = append(otherIdx, idx)
		}
	}

	result := make([]map[string]interface{}, 0, len(items))
	if probandIdx >= 0 {
		result = append(result, items[probandIdx])
	}
	if motherIdx >= 0 {
		result = append(result, items[motherIdx])
	}
	if fatherIdx >= 0 {
		result = append(result, items[fatherIdx])
	}
	for _, idx := range otherIdx {
		result = append(result, items[idx])
	}
	return result
}

// processedFilesForFormat returns the UUIDs of a sample's
// processed_files entries matching format.
func processedFilesForFormat(sample map[string]interface{}, format string) ([]string, error) {
	var matches []string
	for _, pf := range sliceOfMaps(sample[spProcessedFiles]) {
		ff, _ := pf[spFileFormat].(map[string]interface{})
		if stringField(ff, spFileFormat) != format {
			continue
		}
		if id := stringField(pf, spUUID); id != "" {
			matches = append(matches, id)
		}
	}
	if len(matches) == 0 {
		return nil, &AdaptError{Entity: "sample", Reason: fmt.Sprintf("no file with format %s found on sample", format)}
	}
	return matches, nil
}

func sliceOfMaps(v interface{}) []map[string]interface{} {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
