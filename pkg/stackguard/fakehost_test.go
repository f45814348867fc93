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
	"errors"
	"fmt"
	"sync"

	"gvisor.dev/stackguard/pkg/abi/linux"
	"gvisor.dev/stackguard/pkg/hostarch"
)

const (
	fakePageSize     = 0x1000
	fakeSigStackSize = 0x4000
	fakePID          = 5_000_001 // Above PID_MAX_LIMIT, never a real thread.
	fakeTID          = 5_000_002
	fakeHandler      = 0xabc000
	fakeRestorer     = 0xdef000
)

// fakeHost is an in-memory Host. Mappings, protections and signal state are
// recorded so tests can check what the stack guard did to the "OS".
type fakeHost struct {
	mu sync.Mutex

	pageSize     uintptr
	sigStackSize uintptr
	handler      uintptr
	restorer     uintptr

	// tid is the thread id reported to every caller unless tidFn is set.
	tid   int32
	tidFn func() int32

	nextMap uintptr
	maps    map[uintptr]uintptr // start -> length
	fixed   []hostarch.AddrRange
	noAcc   map[uintptr]bool // pages without access
	mapErr  error
	protErr error

	sigStacks map[int32]linux.SignalStack
	actions   map[linux.Signal]linux.SigAction

	mainStack    StackInfo
	mainErr      error
	threadStack  StackInfo
	threadErr    error
	onSetStack   func(ss linux.SignalStack)
	mapCalls     int
	setActCalls  int
	setStackLogs []linux.SignalStack
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		pageSize:     fakePageSize,
		sigStackSize: fakeSigStackSize,
		handler:      fakeHandler,
		restorer:     fakeRestorer,
		tid:          fakePID,
		nextMap:      0x7000_0000_0000,
		maps:         make(map[uintptr]uintptr),
		noAcc:        make(map[uintptr]bool),
		sigStacks:    make(map[int32]linux.SignalStack),
		actions:      make(map[linux.Signal]linux.SigAction),
		mainStack:    StackInfo{Addr: 0x7ffd_0000_0000, Size: 0x80_0000},
		threadErr:    ErrStackUnknown,
	}
}

func (h *fakeHost) PageSize() uintptr     { return h.pageSize }
func (h *fakeHost) SigStackSize() uintptr { return h.sigStackSize }

func (h *fakeHost) MapStack(length uintptr) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mapCalls++
	if h.mapErr != nil {
		return 0, h.mapErr
	}
	addr := h.nextMap
	h.nextMap += length + 0x10_0000
	h.maps[addr] = length
	return addr, nil
}

func (h *fakeHost) MapFixed(addr, length uintptr) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mapCalls++
	if h.mapErr != nil {
		return 0, h.mapErr
	}
	h.fixed = append(h.fixed, hostarch.AddrRange{Start: hostarch.Addr(addr), End: hostarch.Addr(addr + length)})
	return addr, nil
}

func (h *fakeHost) ProtectNone(addr, length uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.protErr != nil {
		return h.protErr
	}
	for a := addr; a < addr+length; a += h.pageSize {
		h.noAcc[a] = true
	}
	return nil
}

func (h *fakeHost) ProtectReadWrite(addr, length uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for a := addr; a < addr+length; a += h.pageSize {
		delete(h.noAcc, a)
	}
	return nil
}

func (h *fakeHost) Unmap(addr, length uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.maps[addr]; !ok || l != length {
		return fmt.Errorf("unmap [%#x, %#x) does not match a mapping", addr, addr+length)
	}
	delete(h.maps, addr)
	for a := addr; a < addr+length; a += h.pageSize {
		delete(h.noAcc, a)
	}
	return nil
}

func (h *fakeHost) SignalStack() (linux.SignalStack, error) {
	tid := h.Gettid()
	h.mu.Lock()
	defer h.mu.Unlock()
	ss, ok := h.sigStacks[tid]
	if !ok {
		return linux.SignalStack{Flags: linux.SS_DISABLE}, nil
	}
	return ss, nil
}

func (h *fakeHost) SetSignalStack(ss *linux.SignalStack) error {
	tid := h.Gettid()
	h.mu.Lock()
	h.sigStacks[tid] = *ss
	h.setStackLogs = append(h.setStackLogs, *ss)
	cb := h.onSetStack
	h.mu.Unlock()
	if cb != nil {
		cb(*ss)
	}
	return nil
}

func (h *fakeHost) Action(sig linux.Signal) (linux.SigAction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.actions[sig], nil
}

func (h *fakeHost) SetAction(sig linux.Signal, sa *linux.SigAction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setActCalls++
	h.actions[sig] = *sa
	return nil
}

func (h *fakeHost) ReplaceHandler(sig linux.Signal, handler uintptr) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sa := h.actions[sig]
	if sa.Handler == linux.SIG_DFL || sa.Handler == linux.SIG_IGN {
		return 0, errors.New("no previous handler")
	}
	prev := uintptr(sa.Handler)
	sa.Handler = uint64(handler)
	h.setActCalls++
	h.actions[sig] = sa
	return prev, nil
}

func (h *fakeHost) MainStack() (StackInfo, error) { return h.mainStack, h.mainErr }

func (h *fakeHost) ThreadStack() (StackInfo, error) { return h.threadStack, h.threadErr }

func (h *fakeHost) Gettid() int32 {
	if h.tidFn != nil {
		return h.tidFn()
	}
	return h.tid
}

func (h *fakeHost) Getpid() int32         { return fakePID }
func (h *fakeHost) HandlerAddr() uintptr  { return h.handler }
func (h *fakeHost) RestorerAddr() uintptr { return h.restorer }

// liveMappings returns the number of mappings not yet unmapped.
func (h *fakeHost) liveMappings() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.maps)
}

func (h *fakeHost) mapCallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mapCalls
}

// recorder is a faultActions that records what onFault did.
type recorder struct {
	reported []string
	aborted  int
	reset    []int32
}

func (r *recorder) actions() *faultActions {
	return &faultActions{
		report: func(name []byte) {
			if name == nil {
				r.reported = append(r.reported, unknownThread)
				return
			}
			r.reported = append(r.reported, string(name))
		},
		abort: func() { r.aborted++ },
		reset: func(sig int32) { r.reset = append(r.reset, sig) },
	}
}
