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

import "golang.org/x/text/cases"

var foldCaser = cases.Fold()

// foldName normalizes an argument/input name for case-insensitive lookup.
// Meta-workflow argument names may carry non-ASCII sample identifiers
// copied from pedigree data, so this uses Unicode case folding rather than
// strings.ToLower.
func foldName(name string) string {
	return foldCaser.String(name)
}
