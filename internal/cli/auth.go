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

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/dbmi-bgm/cgap-wfl-utils/internal/config"
)

// newAuthCommand groups OS-keychain credential management for the store
// and execution backend clients, keeping the actual bearer tokens out of
// config.yaml.
func newAuthCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "auth",
		Short: "Manage store/backend credentials in the OS keychain",
	}
	root.AddCommand(newAuthSetCommand(cfg))
	return root
}

func newAuthSetCommand(cfg *config.Config) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a bearer token or OAuth2 client secret in the OS keychain",
		RunE: func(cmd *cobra.Command, args []string) error {
			var service, account string
			switch target {
			case "store":
				service, account = cfg.Store.KeyringService, cfg.Store.Endpoint
			case "backend":
				service, account = cfg.Backend.KeyringService, cfg.Backend.Endpoint
			default:
				return &ExitError{Code: ExitUserError, Message: fmt.Sprintf("unknown --target %q, expected store or backend", target)}
			}

			if !isInteractive() {
				return &ExitError{Code: ExitUserError, Message: "auth set requires an interactive terminal"}
			}

			var secret string
			prompt := &survey.Password{Message: fmt.Sprintf("Bearer token / client secret for %s (%s):", target, account)}
			if err := survey.AskOne(prompt, &secret); err != nil {
				return &ExitError{Code: ExitUserError, Message: "credential entry cancelled", Cause: err}
			}

			if err := storeCredential(service, account, secret); err != nil {
				return &ExitError{Code: ExitUserError, Message: "storing credential", Cause: err}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "stored credential for %s (%s)\n", target, account)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "store", "which client the credential is for: store or backend")
	return cmd
}
