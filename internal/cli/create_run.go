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
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/adapter"
	"github.com/dbmi-bgm/cgap-wfl-utils/internal/config"
	mwferrors "github.com/dbmi-bgm/cgap-wfl-utils/pkg/errors"
)

// newCreateRunCommand implements `create-run <sp_id> <mwf_id>` (§4.8):
// the Run Factory's entry point. With no positional args and an
// interactive terminal, it opens a huh wizard to collect them instead
// of failing outright.
func newCreateRunCommand(cfg *config.Config) *cobra.Command {
	var fileFormats []string
	var expectFamily bool
	var rawAdapter string

	cmd := &cobra.Command{
		Use:   "create-run [source_entity_id] [meta_workflow_id]",
		Short: "Bootstrap a new Run from a source entity and a meta-workflow",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceEntityID, metaWorkflowID := argOrEmpty(args, 0), argOrEmpty(args, 1)

			if sourceEntityID == "" || metaWorkflowID == "" {
				if !isInteractive() {
					return &ExitError{Code: ExitUserError, Message: "source_entity_id and meta_workflow_id are required in non-interactive mode"}
				}
				var err error
				sourceEntityID, metaWorkflowID, err = runCreateRunWizard(sourceEntityID, metaWorkflowID)
				if err != nil {
					return &ExitError{Code: ExitUserError, Message: "wizard cancelled", Cause: err}
				}
			}

			in, err := buildAdapter(rawAdapter, fileFormats, expectFamily)
			if err != nil {
				return &ExitError{Code: ExitUserError, Message: "invalid adapter configuration", Cause: err}
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			run, err := a.newFactory().CreateRun(cmd.Context(), sourceEntityID, metaWorkflowID, in)
			if err != nil {
				return &ExitError{Code: classify(err), Message: "create-run failed", Cause: err}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created run %s (%d shards, status %s)\n", run.ID, len(run.Shards), run.FinalStatus)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&fileFormats, "file-format", nil, "input_decl=processed_file_format pairs for the SampleProcessing adapter (e.g. crams=cram)")
	cmd.Flags().BoolVar(&expectFamily, "expect-family-structure", true, "require samples_pedigree and sort proband/mother/father first")
	cmd.Flags().StringVar(&rawAdapter, "adapter", "sample-processing", "input adapter: sample-processing or map")

	return cmd
}

func argOrEmpty(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func isInteractive() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func runCreateRunWizard(sourceEntityID, metaWorkflowID string) (string, string, error) {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Source entity id").
				Description("The SampleProcessing (or Cohort) item to run against").
				Value(&sourceEntityID).
				Validate(requireNonEmpty),
			huh.NewInput().
				Title("Meta-workflow id").
				Description("The MetaWorkflow item describing the DAG to compile").
				Value(&metaWorkflowID).
				Validate(requireNonEmpty),
		),
	)

	if err := form.Run(); err != nil {
		return "", "", err
	}
	return sourceEntityID, metaWorkflowID, nil
}

func requireNonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func buildAdapter(kind string, fileFormats []string, expectFamily bool) (adapter.InputAdapter, error) {
	switch kind {
	case "map":
		return adapter.MapAdapter{}, nil
	case "sample-processing":
		formats := make(map[string]string, len(fileFormats))
		for _, pair := range fileFormats {
			name, format, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, mwferrors.Wrap(fmt.Errorf("expected name=format, got %q", pair), "parsing --file-format")
			}
			formats[name] = format
		}
		return adapter.SampleProcessingAdapter{ExpectFamilyStructure: expectFamily, FileFormats: formats}, nil
	default:
		return nil, fmt.Errorf("unknown adapter %q", kind)
	}
}
