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
	"gvisor.dev/stackguard/pkg/abi/linux"
	"gvisor.dev/stackguard/pkg/atomicbitops"
	"gvisor.dev/stackguard/pkg/hostarch"
)

const (
	overflowPrefix = "\nthread '"
	overflowSuffix = "' has overflowed its stack\nfatal error: stack overflow\n"
	unknownThread  = "<unknown>"
)

// faultActions are the side effects available to onFault.
type faultActions struct {
	// report writes the overflow diagnostic for the named thread. name is
	// nil if the thread has no name.
	report func(name []byte)

	// abort terminates the process. It does not return in production.
	abort func()

	// reset restores the default disposition of sig, so that the fault is
	// redelivered to it when the handler returns.
	reset func(sig int32)
}

// forward holds the handlers that were replaced in chain mode, indexed by
// forwardIndex. Zero means the fault is not forwarded.
var forward [2]atomicbitops.Uint64

// forwardIndex returns the index of sig in forward, or -1.
//
//go:nosplit
func forwardIndex(sig int32) int {
	switch linux.Signal(sig) {
	case linux.SIGSEGV:
		return 0
	case linux.SIGBUS:
		return 1
	default:
		return -1
	}
}

func setForward(sig linux.Signal, handler uintptr) {
	if i := forwardIndex(int32(sig)); i >= 0 {
		forward[i].Store(uint64(handler))
	}
}

// onFault decides what to do about signal sig raised for a fault at addr on
// thread tid.
//
// A fault inside the thread's guard is a stack overflow: it is reported and
// the process aborts. Any other fault is forwarded to the replaced handler
// if there is one, whose address is returned. Otherwise the signal's
// default disposition is restored and zero is returned, so returning from
// the handler re-executes the faulting instruction and the process dies the
// way it would have without a handler.
//
// This runs in signal handler context: no allocation, no locks and no
// stack growth.
//
//go:nosplit
func onFault(sig int32, addr uintptr, tid int32, act *faultActions) uintptr {
	if s := threads.lookup(tid); s != nil {
		if s.guard().Contains(hostarch.Addr(addr)) {
			act.report(s.threadName())
			act.abort()
			return 0
		}
	}
	if i := forwardIndex(sig); i >= 0 {
		if next := forward[i].Load(); next != 0 {
			return uintptr(next)
		}
	}
	act.reset(sig)
	return 0
}
