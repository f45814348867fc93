// Copyright 2026 The gVisor Authors.
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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/stackguard/pkg/stackguard"
)

// Platforms implements subcommands.Command for the "platforms" command.
type Platforms struct {
	output string
}

// PlatformDoc describes one platform's guard conventions.
type PlatformDoc struct {
	Name                string `json:"name"`
	Main                string `json:"main"`
	Thread              string `json:"thread"`
	MainStartSkipsGuard bool   `json:"main_start_skips_guard,omitempty"`
	Current             bool   `json:"current,omitempty"`
}

// Name implements subcommands.Command.Name.
func (*Platforms) Name() string {
	return "platforms"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Platforms) Synopsis() string {
	return "Print the stack guard conventions of every supported platform."
}

// Usage implements subcommands.Command.Usage.
func (*Platforms) Usage() string {
	return `platforms [options] - Print the stack guard conventions of every supported platform.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *Platforms) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.output, "o", "table", "Output format (table, json).")
}

// Execute implements subcommands.Command.Execute.
func (p *Platforms) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	checkOutput(p.output)
	docs := platformDocs(stackguard.DetectPlatform())
	var err error
	if p.output == "json" {
		err = outputJSON(os.Stdout, docs)
	} else {
		err = platformTable(os.Stdout, docs)
	}
	if err != nil {
		Fatalf("error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// platformDocs describes every supported platform, marking current.
func platformDocs(current stackguard.Platform) []PlatformDoc {
	var docs []PlatformDoc
	for _, p := range stackguard.Platforms() {
		docs = append(docs, PlatformDoc{
			Name:                p.Name,
			Main:                p.Main.String(),
			Thread:              p.Thread.String(),
			MainStartSkipsGuard: p.MainStartSkipsGuard,
			Current:             p.Name == current.Name,
		})
	}
	return docs
}

func platformTable(w io.Writer, docs []PlatformDoc) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", "PLATFORM", "MAIN THREAD", "OTHER THREADS", "NOTE"); err != nil {
		return err
	}
	for _, d := range docs {
		var note string
		if d.MainStartSkipsGuard {
			note = "main stack start is the guard page"
		}
		name := d.Name
		if d.Current {
			name += " *"
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, d.Main, d.Thread, note); err != nil {
			return err
		}
	}
	return tw.Flush()
}
