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

package cli

import (
	"errors"
	"fmt"
	"os"

	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
	"github.com/dbmi-bgm/cgap-wfl-utils/pkg/metaworkflow"
)

// Exit codes, per the CLI surface's documented contract: 0 success, 1
// user error (not-found/schema/cardinality), 2 backend I/O failure.
const (
	ExitSuccess    = 0
	ExitUserError  = 1
	ExitBackendIO  = 2
)

// ExitError carries the process exit code alongside the error message.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// classify maps a domain error to its exit code: typed schema/validation/
// not-found errors are user errors (1); a ServiceError reaching the store
// or execution backend is a backend I/O failure (2); anything else
// defaults to user error, since it is almost always a caller mistake this
// deep in the stack.
func classify(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var svcErr *mwferrors.ServiceError
	if errors.As(err, &svcErr) {
		return ExitBackendIO
	}

	var notFound *mwferrors.NotFoundError
	if errors.As(err, &notFound) {
		return ExitUserError
	}
	var validation *mwferrors.ValidationError
	if errors.As(err, &validation) {
		return ExitUserError
	}

	var schemaErr *metaworkflow.SchemaError
	if errors.As(err, &schemaErr) {
		return ExitUserError
	}
	var dupErr *metaworkflow.DuplicateStepError
	if errors.As(err, &dupErr) {
		return ExitUserError
	}
	var missingDep *metaworkflow.MissingDepError
	if errors.As(err, &missingDep) {
		return ExitUserError
	}
	var missingInput *metaworkflow.MissingInputError
	if errors.As(err, &missingInput) {
		return ExitUserError
	}
	var shapeErr *metaworkflow.ShapeUnsupportedError
	if errors.As(err, &shapeErr) {
		return ExitUserError
	}
	var dimErr *metaworkflow.DimUnsupportedError
	if errors.As(err, &dimErr) {
		return ExitUserError
	}
	var cardErr *metaworkflow.FileCardinalityError
	if errors.As(err, &cardErr) {
		return ExitUserError
	}
	var transErr *metaworkflow.IllegalTransitionError
	if errors.As(err, &transErr) {
		return ExitUserError
	}

	return ExitUserError
}

// HandleExitError prints err to stderr and terminates the process with
// the exit code its error chain classifies to.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
		os.Exit(exitErr.Code)
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(classify(err))
}
