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
	"fmt"

	"gvisor.dev/stackguard/pkg/hostarch"
	"gvisor.dev/stackguard/pkg/log"
)

// Convention is a platform's convention for where a thread's stack guard
// lives relative to the lowest usable stack address reported for it.
//
// The set of conventions is closed; see the types below.
type Convention interface {
	fmt.Stringer

	// resolve returns the guard range of the thread described by g. It
	// returns the empty range if the guard cannot be determined, and panics
	// on failures that leave the process in an unknown state.
	resolve(g *geometry) hostarch.AddrRange
}

// geometry is what a Convention needs to resolve the guard of one thread.
type geometry struct {
	host     Host
	pageSize uintptr

	// stack describes the thread's stack.
	stack func() (StackInfo, error)

	// skipGuardPage is set if the reported stack start includes the guard
	// page, so the usable stack starts one page higher.
	skipGuardPage bool

	// mapped receives guard pages mapped by ManualMapping.
	mapped func(hostarch.AddrRange)
}

// stackStart returns the page aligned lowest usable address of the stack and
// the stack attributes it was derived from. ok is false if the stack cannot
// be described.
func (g *geometry) stackStart() (base hostarch.Addr, info StackInfo, ok bool) {
	info, err := g.stack()
	if err != nil {
		log.Debugf("stackguard: stack of thread %d unknown, no guard: %v", g.host.Gettid(), err)
		return 0, info, false
	}
	start, ok := hostarch.Addr(info.Addr), true
	if g.skipGuardPage {
		start, ok = start.AddLength(g.pageSize)
	}
	if !ok {
		return 0, info, false
	}
	base, ok = start.AlignUp(g.pageSize)
	return base, info, ok
}

// KernelAutoGuard is the convention for stacks the kernel grows on demand
// and separates from other mappings by a gap of its own: the page just below
// the stack start is treated as the guard. Nothing is mapped.
type KernelAutoGuard struct{}

// String implements fmt.Stringer.String.
func (KernelAutoGuard) String() string {
	return "kernel-auto-guard"
}

func (KernelAutoGuard) resolve(g *geometry) hostarch.AddrRange {
	base, _, ok := g.stackStart()
	if !ok {
		return hostarch.AddrRange{}
	}
	ar, ok := hostarch.PagesBelow(base, 1, g.pageSize)
	if !ok {
		return hostarch.AddrRange{}
	}
	return ar
}

// NoDetection is the convention for stacks whose guard cannot be located
// reliably. Faults on such stacks are never reported as overflows.
type NoDetection struct{}

// String implements fmt.Stringer.String.
func (NoDetection) String() string {
	return "no-detection"
}

func (NoDetection) resolve(*geometry) hostarch.AddrRange {
	return hostarch.AddrRange{}
}

// GuardPlacement is the position of an included guard relative to the
// reported stack start.
type GuardPlacement int

const (
	// GuardBelow places the guard in [start-guard, start).
	GuardBelow GuardPlacement = iota

	// GuardStraddle accepts faults in [start-guard, start+guard). Some
	// thread libraries report a start that may or may not already include
	// the guard, so both sides are treated as guard.
	GuardStraddle

	// GuardAbove places the guard in [start, start+guard).
	GuardAbove
)

// String implements fmt.Stringer.String.
func (p GuardPlacement) String() string {
	switch p {
	case GuardBelow:
		return "below"
	case GuardStraddle:
		return "straddle"
	case GuardAbove:
		return "above"
	default:
		return fmt.Sprintf("GuardPlacement(%d)", int(p))
	}
}

// IncludedGuard is the convention for thread stacks whose guard is part of
// the thread's stack allocation and whose size is reported by the thread
// attributes.
type IncludedGuard struct {
	Placement GuardPlacement

	// ZeroSizeFallback selects one page when the attributes report a zero
	// guard size. Without it a zero guard size is fatal.
	ZeroSizeFallback bool
}

// String implements fmt.Stringer.String.
func (c IncludedGuard) String() string {
	if c.ZeroSizeFallback {
		return fmt.Sprintf("included-guard(%v, page fallback)", c.Placement)
	}
	return fmt.Sprintf("included-guard(%v)", c.Placement)
}

func (c IncludedGuard) resolve(g *geometry) hostarch.AddrRange {
	base, info, ok := g.stackStart()
	if !ok {
		return hostarch.AddrRange{}
	}
	size := info.Guard
	if size == 0 {
		if !c.ZeroSizeFallback {
			panic(fmt.Sprintf("stackguard: thread %d reports a zero guard size", g.host.Gettid()))
		}
		size = g.pageSize
	}
	var (
		ar  hostarch.AddrRange
		ok1 = true
		ok2 = true
	)
	switch c.Placement {
	case GuardBelow:
		ar.Start, ok1 = base.SubLength(size)
		ar.End = base
	case GuardStraddle:
		ar.Start, ok1 = base.SubLength(size)
		ar.End, ok2 = base.AddLength(size)
	case GuardAbove:
		ar.Start = base
		ar.End, ok2 = base.AddLength(size)
	default:
		panic(fmt.Sprintf("stackguard: unknown guard placement %v", c.Placement))
	}
	if !ok1 || !ok2 {
		return hostarch.AddrRange{}
	}
	return ar
}

// ExcludedGuard is the convention for stacks whose guard pages are placed by
// the operating system itself, outside the reported stack unless Inside is
// set.
type ExcludedGuard struct {
	// Pages is the number of guard pages. Zero means one.
	Pages uintptr

	// Inside is set if the guard pages are the lowest pages of the reported
	// stack rather than the pages below it.
	Inside bool
}

// String implements fmt.Stringer.String.
func (c ExcludedGuard) String() string {
	where := "below"
	if c.Inside {
		where = "inside"
	}
	return fmt.Sprintf("excluded-guard(%d pages %s)", c.pages(), where)
}

func (c ExcludedGuard) pages() uintptr {
	if c.Pages == 0 {
		return 1
	}
	return c.Pages
}

func (c ExcludedGuard) resolve(g *geometry) hostarch.AddrRange {
	base, _, ok := g.stackStart()
	if !ok {
		return hostarch.AddrRange{}
	}
	var ar hostarch.AddrRange
	if c.Inside {
		ar, ok = hostarch.PageRange(base, c.pages(), g.pageSize)
	} else {
		ar, ok = hostarch.PagesBelow(base, c.pages(), g.pageSize)
	}
	if !ok {
		return hostarch.AddrRange{}
	}
	return ar
}

// ManualMapping is the convention for main thread stacks without a usable
// guard: one page at the stack start is mapped over with fixed placement and
// made inaccessible, and that page becomes the guard.
type ManualMapping struct{}

// String implements fmt.Stringer.String.
func (ManualMapping) String() string {
	return "manual-mapping"
}

func (ManualMapping) resolve(g *geometry) hostarch.AddrRange {
	base, _, ok := g.stackStart()
	if !ok {
		return hostarch.AddrRange{}
	}
	ar, ok := hostarch.PageRange(base, 1, g.pageSize)
	if !ok {
		return hostarch.AddrRange{}
	}
	addr, err := g.host.MapFixed(uintptr(base), g.pageSize)
	if err != nil {
		panic(fmt.Sprintf("stackguard: failed to allocate a guard page at %v: %v", base, err))
	}
	if addr != uintptr(base) {
		panic(fmt.Sprintf("stackguard: failed to allocate a guard page at %v: mapped at %#x", base, addr))
	}
	if err := g.host.ProtectNone(uintptr(base), g.pageSize); err != nil {
		panic(fmt.Sprintf("stackguard: failed to protect the guard page at %v: %v", base, err))
	}
	if g.mapped != nil {
		g.mapped(ar)
	}
	return ar
}
