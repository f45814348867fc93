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
	"golang.org/x/sync/errgroup"
	"gvisor.dev/stackguard/guardctl/config"
	"gvisor.dev/stackguard/pkg/log"
	"gvisor.dev/stackguard/pkg/stackguard"
)

// Probe implements subcommands.Command for the "probe" command.
type Probe struct {
	threads   int
	stackSize int
	output    string
}

// ProbeReport is the result of the probe command.
type ProbeReport struct {
	Platform      string        `json:"platform"`
	Chain         bool          `json:"chain"`
	PageSize      uintptr       `json:"page_size"`
	SigStackSize  uintptr       `json:"sigstack_size"`
	MainGuard     string        `json:"main_guard"`
	MainAltStack  string        `json:"main_alt_stack"`
	NeedsAltStack bool          `json:"needs_alt_stack"`
	Installed     []string      `json:"installed"`
	Threads       []ThreadProbe `json:"threads"`
}

// ThreadProbe describes one probed thread.
type ThreadProbe struct {
	Name         string `json:"name"`
	TID          int32  `json:"tid"`
	Stack        string `json:"stack,omitempty"`
	Guard        string `json:"guard"`
	AltStack     string `json:"alt_stack"`
	Instrumented bool   `json:"instrumented"`
}

// Name implements subcommands.Command.Name.
func (*Probe) Name() string {
	return "probe"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Probe) Synopsis() string {
	return "Set up stack overflow detection and report what each thread gets."
}

// Usage implements subcommands.Command.Usage.
func (*Probe) Usage() string {
	return `probe [options] - Set up stack overflow detection in this process, start
threads and report their guards and alternate signal stacks.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *Probe) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.threads, "threads", -1, "number of threads to start. -1 uses the configured default.")
	f.IntVar(&p.stackSize, "stack-size", 64, "size in KiB of the stack region mapped for and described to each thread. 0 asks the host instead.")
	f.StringVar(&p.output, "o", "table", "Output format (table, json).")
}

// Execute implements subcommands.Command.Execute.
func (p *Probe) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	checkOutput(p.output)
	conf := args[0].(*config.Config)
	n := p.threads
	if n < 0 {
		n = conf.Threads
	}
	if p.stackSize < 0 {
		Fatalf("stack-size must not be negative: %d", p.stackSize)
	}

	report, err := probe(conf.StackGuard(), n, uintptr(p.stackSize)<<10)
	if err != nil {
		Fatalf("%v", err)
	}
	if p.output == "json" {
		err = outputJSON(os.Stdout, report)
	} else {
		err = probeTable(os.Stdout, report)
	}
	if err != nil {
		Fatalf("error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// probe initializes the stack guard with sgConf, runs n instrumented threads
// and reports on them. Threads whose stack is described explicitly get a
// freshly mapped region of stackSize bytes.
func probe(sgConf stackguard.Config, n int, stackSize uintptr) (*ProbeReport, error) {
	proc, err := stackguard.Init(sgConf)
	if err != nil {
		return nil, fmt.Errorf("initializing stack overflow detection: %w", err)
	}
	defer proc.Cleanup()

	host := sgConf.Host
	if host == nil {
		host = stackguard.NewHost()
	}
	report := &ProbeReport{
		Platform:      proc.Platform().Name,
		Chain:         proc.Chained(),
		PageSize:      proc.PageSize(),
		SigStackSize:  host.SigStackSize(),
		MainGuard:     proc.MainGuard().String(),
		MainAltStack:  proc.MainAltStack().String(),
		NeedsAltStack: proc.NeedsAltStack(),
		Threads:       make([]ThreadProbe, n),
	}
	for _, sig := range proc.Installed() {
		report.Installed = append(report.Installed, sig.String())
	}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			name := fmt.Sprintf("probe-%d", i)
			var opts []stackguard.ThreadOption
			var stack string
			if stackSize > 0 {
				info, release, err := mapStack(stackSize)
				if err != nil {
					return fmt.Errorf("mapping a stack for %s: %w", name, err)
				}
				defer release()
				opts = append(opts, stackguard.WithStack(info))
				stack = fmt.Sprintf("[%#x, %#x)", info.Addr, info.Addr+info.Size)
			}
			<-proc.Go(name, func(t *stackguard.Thread) {
				report.Threads[i] = ThreadProbe{
					Name:         t.Name(),
					TID:          t.TID(),
					Stack:        stack,
					Guard:        t.Guard().String(),
					AltStack:     t.AltStack().String(),
					Instrumented: t.Instrumented(),
				}
			}, opts...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debugf("Probed %d threads", n)
	return report, nil
}

func probeTable(w io.Writer, r *ProbeReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, kv := range [][2]string{
		{"Platform:", r.Platform},
		{"Chain mode:", fmt.Sprintf("%t", r.Chain)},
		{"Page size:", fmt.Sprintf("%#x", r.PageSize)},
		{"Signal stack size:", fmt.Sprintf("%#x", r.SigStackSize)},
		{"Main thread guard:", r.MainGuard},
		{"Main alternate stack:", r.MainAltStack},
		{"Needs alternate stacks:", fmt.Sprintf("%t", r.NeedsAltStack)},
		{"Handlers installed:", fmt.Sprintf("%v", r.Installed)},
	} {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", kv[0], kv[1]); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(r.Threads) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", "NAME", "TID", "STACK", "GUARD", "ALT STACK", "INSTRUMENTED"); err != nil {
		return err
	}
	for _, t := range r.Threads {
		if _, err := fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%t\n", t.Name, t.TID, t.Stack, t.Guard, t.AltStack, t.Instrumented); err != nil {
			return err
		}
	}
	return tw.Flush()
}
