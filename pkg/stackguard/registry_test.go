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

package stackguard

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/stackguard/pkg/abi/linux"
)

const goRuntimeHandler = 0x4711000

func newTestProcess(h *fakeHost, chain bool) *Process {
	p := &Process{
		host:     h,
		platform: PlatformFor("linux", LibCGNU),
		chain:    chain,
	}
	p.pageSize.Store(uint64(h.pageSize))
	return p
}

func TestInstallOnDefault(t *testing.T) {
	h := newFakeHost()
	p := newTestProcess(h, false)
	p.installHandlers()
	defer p.restoreHandlers()

	want := linux.SigAction{
		Handler:  fakeHandler,
		Flags:    linux.SA_SIGINFO | linux.SA_ONSTACK | linux.SA_RESTORER,
		Restorer: fakeRestorer,
	}
	for _, sig := range faultSignals {
		if diff := cmp.Diff(want, h.actions[sig]); diff != "" {
			t.Errorf("%v action mismatch (-want +got):\n%s", sig, diff)
		}
	}
	if !p.NeedsAltStack() {
		t.Errorf("NeedsAltStack() = false after installing on SIG_DFL")
	}
	if diff := cmp.Diff([]linux.Signal{linux.SIGSEGV, linux.SIGBUS}, p.Installed()); diff != "" {
		t.Errorf("Installed() mismatch (-want +got):\n%s", diff)
	}

	// Installing again changes nothing.
	calls := h.setActCalls
	p.installHandlers()
	if h.setActCalls != calls {
		t.Errorf("second installHandlers() made %d sigaction calls", h.setActCalls-calls)
	}
}

func TestInstallWithoutRestorer(t *testing.T) {
	h := newFakeHost()
	h.restorer = 0
	p := newTestProcess(h, false)
	p.installHandlers()
	defer p.restoreHandlers()

	want := linux.SigAction{Handler: fakeHandler, Flags: linux.SA_SIGINFO | linux.SA_ONSTACK}
	if diff := cmp.Diff(want, h.actions[linux.SIGSEGV]); diff != "" {
		t.Errorf("SIGSEGV action mismatch (-want +got):\n%s", diff)
	}
}

func TestPreexistingHandlers(t *testing.T) {
	h := newFakeHost()
	prev := linux.SigAction{Handler: goRuntimeHandler, Flags: linux.SA_SIGINFO | linux.SA_ONSTACK | linux.SA_RESTART}
	h.actions[linux.SIGSEGV] = prev
	h.actions[linux.SIGBUS] = prev
	p := newTestProcess(h, false)
	p.installHandlers()
	defer p.restoreHandlers()

	if h.setActCalls != 0 {
		t.Errorf("installHandlers() made %d sigaction calls over existing handlers", h.setActCalls)
	}
	if p.NeedsAltStack() {
		t.Errorf("NeedsAltStack() = true without installing anything")
	}
	if got := p.Installed(); len(got) != 0 {
		t.Errorf("Installed() = %v, want none", got)
	}

	// Threads get no alternate stack and nothing is mapped for them.
	if s := p.armAltStack(); !s.IsNull() {
		t.Errorf("armAltStack() = %v, want null", s)
	}
	if n := h.mapCallCount(); n != 0 {
		t.Errorf("mapped memory %d times", n)
	}
}

func TestInstallMixed(t *testing.T) {
	h := newFakeHost()
	h.actions[linux.SIGBUS] = linux.SigAction{Handler: goRuntimeHandler, Flags: linux.SA_SIGINFO}
	p := newTestProcess(h, false)
	p.installHandlers()
	defer p.restoreHandlers()

	if diff := cmp.Diff([]linux.Signal{linux.SIGSEGV}, p.Installed()); diff != "" {
		t.Errorf("Installed() mismatch (-want +got):\n%s", diff)
	}
	if !p.NeedsAltStack() {
		t.Errorf("NeedsAltStack() = false after installing SIGSEGV")
	}
	if got := h.actions[linux.SIGBUS].Handler; got != goRuntimeHandler {
		t.Errorf("SIGBUS handler = %#x, want it untouched", got)
	}
}

func TestInstallIgnoredSignal(t *testing.T) {
	h := newFakeHost()
	h.actions[linux.SIGSEGV] = linux.SigAction{Handler: linux.SIG_IGN}
	h.actions[linux.SIGBUS] = linux.SigAction{Handler: linux.SIG_IGN}
	p := newTestProcess(h, true)
	p.installHandlers()
	defer p.restoreHandlers()

	if got := p.Installed(); len(got) != 0 {
		t.Errorf("Installed() = %v, want none over SIG_IGN", got)
	}
}

func TestInstallNoEntryPoint(t *testing.T) {
	h := newFakeHost()
	h.handler = 0
	p := newTestProcess(h, false)
	p.installHandlers()
	defer p.restoreHandlers()

	if h.setActCalls != 0 || p.NeedsAltStack() {
		t.Errorf("installHandlers() without an entry point installed something: %d calls", h.setActCalls)
	}
}

func TestChainMode(t *testing.T) {
	h := newFakeHost()
	prev := linux.SigAction{
		Handler:  goRuntimeHandler,
		Flags:    linux.SA_SIGINFO | linux.SA_ONSTACK | linux.SA_RESTART | linux.SA_RESTORER,
		Restorer: 0x4712000,
		Mask:     ^linux.SignalSet(0),
	}
	h.actions[linux.SIGSEGV] = prev
	h.actions[linux.SIGBUS] = prev
	p := newTestProcess(h, true)
	p.installHandlers()

	chained := prev
	chained.Handler = fakeHandler
	for _, sig := range faultSignals {
		if diff := cmp.Diff(chained, h.actions[sig]); diff != "" {
			t.Errorf("%v action mismatch (-want +got):\n%s", sig, diff)
		}
		if got := forward[forwardIndex(int32(sig))].Load(); got != goRuntimeHandler {
			t.Errorf("%v forwards to %#x, want %#x", sig, got, goRuntimeHandler)
		}
	}
	if p.NeedsAltStack() {
		t.Errorf("NeedsAltStack() = true in chain mode")
	}

	p.restoreHandlers()
	for _, sig := range faultSignals {
		if diff := cmp.Diff(prev, h.actions[sig]); diff != "" {
			t.Errorf("%v action after restore mismatch (-want +got):\n%s", sig, diff)
		}
		if got := forward[forwardIndex(int32(sig))].Load(); got != 0 {
			t.Errorf("%v still forwards to %#x after restore", sig, got)
		}
	}
}

func TestRestoreHandlers(t *testing.T) {
	h := newFakeHost()
	p := newTestProcess(h, false)
	p.installHandlers()
	p.restoreHandlers()
	for _, sig := range faultSignals {
		if got := h.actions[sig]; !got.IsDefault() {
			t.Errorf("%v action after restore = %v, want SIG_DFL", sig, got)
		}
	}
	if got := p.Installed(); len(got) != 0 {
		t.Errorf("Installed() after restore = %v", got)
	}
}

func TestConcurrentInstall(t *testing.T) {
	h := newFakeHost()
	p := newTestProcess(h, false)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.installHandlers()
		}()
	}
	wg.Wait()
	defer p.restoreHandlers()

	if h.setActCalls != len(faultSignals) {
		t.Errorf("concurrent installHandlers() made %d sigaction calls, want %d", h.setActCalls, len(faultSignals))
	}
}
