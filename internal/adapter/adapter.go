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

// Package adapter translates a source entity (a raw document from the
// metadata store) into the metaworkflow.InputObject the compiler and
// run builder consume, plus the handful of common fields (project,
// institution, title) a new Run is stamped with.
package adapter

import "github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"

// CommonFields carries the caller-entity properties a Run is stamped
// with at creation time, independent of the meta-workflow's own input
// declarations.
type CommonFields struct {
	SourceEntityID string
	Project        string
	Institution    string
	Title          string
}

// InputAdapter builds a compiler-ready InputObject and CommonFields
// from a source entity's raw document view.
type InputAdapter interface {
	Adapt(entity map[string]interface{}) (metaworkflow.InputObject, CommonFields, error)
}
