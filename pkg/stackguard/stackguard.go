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

// Package stackguard turns stack overflows on instrumented threads into a
// deterministic, reported abort.
//
// Each instrumented thread records the address range of its stack guard,
// computed with the conventions of the platform it runs on, and gets an
// alternate signal stack so that a fault caused by running off its stack can
// still be handled. A SIGSEGV or SIGBUS handler installed by Init looks up
// the faulting thread's guard: a fault inside it is reported as
//
//	thread '<name>' has overflowed its stack
//	fatal error: stack overflow
//
// and the process aborts. Any other fault is left to the previous handler
// (chain mode) or to the default disposition.
//
// The Go runtime installs its own handlers for SIGSEGV and SIGBUS and gives
// every thread it creates an alternate signal stack, so by default Init
// installs nothing in a Go program and only threads without a signal stack
// get one. Config.Chain installs the handler in front of the runtime's, the
// way a runtime embedding guest code on its own stacks needs it.
//
// Instrumented threads are goroutines locked to their OS thread; see
// Process.EnterThread and Process.Go.
package stackguard

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"gvisor.dev/stackguard/pkg/atomicbitops"
	"gvisor.dev/stackguard/pkg/cleanup"
	"gvisor.dev/stackguard/pkg/hostarch"
	"gvisor.dev/stackguard/pkg/log"
)

// ErrActive is returned by Init if another Process has not been cleaned up.
var ErrActive = errors.New("a stack guard is already active in this process")

// Config configures Init.
type Config struct {
	// Host provides the operating system services. If nil, NewHost is used.
	Host Host

	// Platform is the name of the platform whose conventions apply, as
	// returned by Platforms. If empty, the platform is detected.
	Platform string

	// Chain installs the fault handler in front of existing handlers
	// instead of only where no handler is installed. Faults outside any
	// guard are forwarded to the replaced handler.
	Chain bool
}

// active is the Process between Init and Cleanup.
var active atomic.Pointer[Process]

// Process is the process-wide stack guard state created by Init.
type Process struct {
	host     Host
	platform Platform
	chain    bool

	// tid is the thread Init locked and ran on.
	tid int32

	pageSize     atomicbitops.Uint64
	needAltStack atomicbitops.Bool

	// mainGuard is immutable after Init.
	mainGuard hostarch.AddrRange

	mu sync.Mutex

	// +checklocks:mu
	handlersInstalled bool

	// +checklocks:mu
	registrations []registration

	// manual are the guard pages mapped by ManualMapping.
	//
	// +checklocks:mu
	manual []hostarch.AddrRange

	// +checklocks:mu
	mainSlot *threadSlot

	// +checklocks:mu
	mainAlt AltStack

	// +checklocks:mu
	cleaned bool
}

// Init sets up overflow detection for the process and for the calling
// thread, which stays locked to the calling goroutine until Cleanup.
//
// Init should run on the process's main thread, before any other
// instrumented thread is entered: the main thread's guard is registered for
// the main thread only.
//
// Invalid configuration is reported as an error. Failures of the operating
// system services panic, after undoing whatever Init had done.
//
// On platforms without overflow detection Init returns a Process that does
// nothing.
func Init(cfg Config) (*Process, error) {
	var plat Platform
	if cfg.Platform != "" {
		var err error
		if plat, err = LookupPlatform(cfg.Platform); err != nil {
			return nil, err
		}
	} else {
		plat = DetectPlatform()
	}
	h := cfg.Host
	if h == nil {
		h = NewHost()
		if !hostSupported {
			plat = Platform{Name: plat.Name}
		}
	}
	return initProcess(h, plat, cfg.Chain)
}

// initProcess implements Init for a resolved host and platform.
func initProcess(h Host, plat Platform, chain bool) (*Process, error) {
	p := &Process{
		host:     h,
		platform: plat,
		chain:    chain,
	}
	if !active.CompareAndSwap(nil, p) {
		return nil, ErrActive
	}
	if !plat.Supported() {
		log.Infof("stackguard: stack overflow detection is not supported on %s", plat.Name)
		return p, nil
	}

	runtime.LockOSThread()
	p.tid = h.Gettid()
	cu := cleanup.Make(func() {
		runtime.UnlockOSThread()
		active.CompareAndSwap(p, nil)
	})
	defer cu.Clean()

	ps := h.PageSize()
	if ps == 0 {
		panic("stackguard: the host reports a zero page size")
	}
	p.pageSize.Store(uint64(ps))

	cu.Add(p.revertManualGuards)
	p.mainGuard = plat.Main.resolve(p.geometry(h.MainStack, plat.MainStartSkipsGuard))

	pid := h.Getpid()
	slot, err := threads.claim(pid)
	if err != nil {
		return nil, fmt.Errorf("registering the main thread %d: %w", pid, err)
	}
	slot.setName("main")
	slot.setGuard(p.mainGuard)
	cu.Add(slot.release)

	cu.Add(p.restoreHandlers)
	p.installHandlers()

	alt := p.armAltStack()

	p.mu.Lock()
	p.mainSlot = slot
	p.mainAlt = alt
	p.mu.Unlock()
	cu.Release()

	if p.tid != pid {
		log.Infof("stackguard: Init runs on thread %d, not on the main thread %d", p.tid, pid)
	}
	log.Infof("stackguard: platform %s, page size %d, main thread guard %v, alternate stack %v, handlers installed for %v", plat.Name, ps, p.mainGuard, alt, p.Installed())
	return p, nil
}

// Cleanup undoes Init: it releases the alternate stack Init armed, restores
// the signal actions Init replaced, reverts manually mapped guard pages and
// unlocks the thread Init locked. It must be called from the goroutine that
// called Init. Further calls do nothing, whichever thread makes them.
//
// Alternate stacks of other threads are released by their own threads.
func (p *Process) Cleanup() {
	if !p.platform.Supported() {
		p.mu.Lock()
		p.cleaned = true
		p.mu.Unlock()
		active.CompareAndSwap(p, nil)
		return
	}

	p.mu.Lock()
	if p.cleaned {
		p.mu.Unlock()
		return
	}
	if tid := p.host.Gettid(); tid != p.tid {
		p.mu.Unlock()
		panic(fmt.Sprintf("stackguard: Cleanup called on thread %d, Init ran on thread %d", tid, p.tid))
	}
	p.cleaned = true
	alt, slot := p.mainAlt, p.mainSlot
	p.mainAlt, p.mainSlot = AltStack{}, nil
	p.mu.Unlock()

	alt.release(p.host)
	p.restoreHandlers()
	p.revertManualGuards()
	if slot != nil {
		slot.release()
	}
	runtime.UnlockOSThread()
	active.CompareAndSwap(p, nil)
	log.Infof("stackguard: cleaned up")
}

// geometry returns the geometry of a thread whose stack is described by
// stack.
func (p *Process) geometry(stack func() (StackInfo, error), skipGuardPage bool) *geometry {
	return &geometry{
		host:          p.host,
		pageSize:      p.PageSize(),
		stack:         stack,
		skipGuardPage: skipGuardPage,
		mapped:        p.recordManualGuard,
	}
}

func (p *Process) recordManualGuard(ar hostarch.AddrRange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manual = append(p.manual, ar)
}

// revertManualGuards makes the guard pages mapped by ManualMapping
// accessible again.
func (p *Process) revertManualGuards() {
	p.mu.Lock()
	guards := p.manual
	p.manual = nil
	p.mu.Unlock()
	for _, ar := range guards {
		if err := p.host.ProtectReadWrite(uintptr(ar.Start), ar.Length()); err != nil {
			log.Warningf("stackguard: reverting the guard page %v: %v", ar, err)
		}
	}
}

// isCleaned returns true once Cleanup has started.
func (p *Process) isCleaned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cleaned
}

// PageSize returns the page size established by Init, or zero if overflow
// detection is not supported.
func (p *Process) PageSize() uintptr {
	return uintptr(p.pageSize.Load())
}

// NeedsAltStack returns true if a handler that relies on per-thread
// alternate stacks has been installed.
func (p *Process) NeedsAltStack() bool {
	return p.needAltStack.Load()
}

// MainGuard returns the guard of the main thread. It is empty if the guard
// is unknown.
func (p *Process) MainGuard() hostarch.AddrRange {
	return p.mainGuard
}

// Platform returns the platform whose conventions p applies.
func (p *Process) Platform() Platform {
	return p.platform
}

// Chained returns true if p was configured for chain mode.
func (p *Process) Chained() bool {
	return p.chain
}

// MainAltStack returns the alternate stack armed by Init, which is null if
// the thread already had one or none was needed.
func (p *Process) MainAltStack() AltStack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mainAlt
}
