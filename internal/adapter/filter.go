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
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// SampleFilter compiles an expr-lang predicate once and evaluates it
// per-sample, letting an operator restrict which samples of a
// SampleProcessing contribute shards (e.g. "relationship != 'father'")
// without a code change. A nil/zero-value SampleFilter accepts every
// sample.
type SampleFilter struct {
	program *vm.Program
}

// NewSampleFilter compiles expression, which must evaluate to a bool
// given a sample's properties bound as the expression environment.
func NewSampleFilter(expression string) (SampleFilter, error) {
	if expression == "" {
		return SampleFilter{}, nil
	}
	program, err := expr.Compile(expression, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return SampleFilter{}, &AdaptError{Entity: "sample_filter", Reason: err.Error()}
	}
	return SampleFilter{program: program}, nil
}

// Keep reports whether sample satisfies the filter.
func (f SampleFilter) Keep(sample map[string]interface{}) (bool, error) {
	if f.program == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, sample)
	if err != nil {
		return false, &AdaptError{Entity: "sample_filter", Reason: err.Error()}
	}
	keep, _ := out.(bool)
	return keep, nil
}

// FilterSamplesAndPedigree applies f to parallel samples/pedigree
// slices (as produced by SampleProcessingAdapter.SortedSamplesAndPedigree),
// keeping only the indices where the pedigree entry passes.
func FilterSamplesAndPedigree(f SampleFilter, samples, pedigree []map[string]interface{}) ([]map[string]interface{}, []map[string]interface{}, error) {
	if f.program == nil {
		return samples, pedigree, nil
	}

	var keptSamples, keptPedigree []map[string]interface{}
	for i, p := range pedigree {
		keep, err := f.Keep(p)
		if err != nil {
			return nil, nil, err
		}
		if keep {
			keptPedigree = append(keptPedigree, p)
			if i < len(samples) {
				keptSamples = append(keptSamples, samples[i])
			}
		}
	}
	return keptSamples, keptPedigree, nil
}
