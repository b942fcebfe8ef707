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
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// printFlagUsage writes one aligned line per flag registered on cmd,
// local and inherited persistent flags together, sorted by name. cobra's
// own usage template already does this, but commands that want plain,
// uncolored flag listings (e.g. when output isn't a TTY) use this
// directly instead of cmd.UsageString().
func printFlagUsage(w io.Writer, cmd *cobra.Command) {
	type flagLine struct {
		name, usage string
	}
	var lines []flagLine

	seen := make(map[string]struct{})
	visit := func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		if _, dup := seen[f.Name]; dup {
			return
		}
		seen[f.Name] = struct{}{}
		lines = append(lines, flagLine{name: f.Name, usage: f.Usage})
	}
	cmd.Flags().VisitAll(visit)
	cmd.PersistentFlags().VisitAll(visit)

	sort.Slice(lines, func(i, j int) bool { return lines[i].name < lines[j].name })

	for _, l := range lines {
		fmt.Fprintf(w, "  --%-20s %s\n", l.name, l.usage)
	}
}
