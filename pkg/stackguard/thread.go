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
	"runtime"

	"gvisor.dev/stackguard/pkg/hostarch"
)

// ThreadOption configures EnterThread.
type ThreadOption func(*threadOptions)

type threadOptions struct {
	stack *StackInfo
}

// WithStack describes the thread's stack explicitly instead of asking the
// host. Runtimes that run code on stacks they allocated themselves pass the
// bounds and guard size of those stacks here.
func WithStack(info StackInfo) ThreadOption {
	return func(o *threadOptions) {
		o.stack = &info
	}
}

// Thread is an instrumented OS thread. It is created by EnterThread on the
// thread itself and must be exited on the same thread.
type Thread struct {
	p    *Process
	name string
	tid  int32

	// main is set if the thread is the process's main thread, whose guard
	// state belongs to the Process.
	main bool

	slot  *threadSlot
	guard hostarch.AddrRange
	alt   AltStack

	exited bool
}

// EnterThread instruments the calling OS thread under the given name. The
// calling goroutine must be locked to its thread with runtime.LockOSThread
// until Exit.
//
// The thread's guard is recorded before its alternate stack, if any, is
// armed. A thread that cannot be instrumented (unsupported platform, unknown
// stack, full thread table) runs without overflow detection.
//
// On Linux the host can only describe the main thread's stack. Any other
// thread entered without WithStack has an empty guard and is not
// instrumented.
func (p *Process) EnterThread(name string, opts ...ThreadOption) *Thread {
	var o threadOptions
	for _, opt := range opts {
		opt(&o)
	}
	t := &Thread{
		p:    p,
		name: name,
		tid:  p.host.Gettid(),
	}
	if !p.platform.Supported() || p.isCleaned() {
		return t
	}

	if t.tid == p.host.Getpid() {
		t.main = true
		t.guard = p.mainGuard
		t.alt = p.armAltStack()
		return t
	}

	stack := p.host.ThreadStack
	if o.stack != nil {
		info := *o.stack
		stack = func() (StackInfo, error) { return info, nil }
	}
	t.guard = p.platform.Thread.resolve(p.geometry(stack, false))

	slot, err := threads.claim(t.tid)
	if err != nil {
		slotWarnings.Warningf("stackguard: thread %q (%d) runs without overflow detection: %v", name, t.tid, err)
		return t
	}
	slot.setName(name)
	slot.setGuard(t.guard)
	t.slot = slot
	t.alt = p.armAltStack()
	return t
}

// Exit undoes EnterThread: it releases the thread's alternate stack and
// guard state. It must be called on the thread that entered. Further calls
// do nothing.
func (t *Thread) Exit() {
	if t.exited {
		return
	}
	if tid := t.p.host.Gettid(); tid != t.tid {
		panic(fmt.Sprintf("stackguard: thread %q entered on thread %d but exited on thread %d", t.name, t.tid, tid))
	}
	t.exited = true
	t.alt.release(t.p.host)
	t.alt = AltStack{}
	if t.slot != nil {
		t.slot.release()
		t.slot = nil
	}
}

// Name returns the thread's name.
func (t *Thread) Name() string {
	return t.name
}

// TID returns the thread's id.
func (t *Thread) TID() int32 {
	return t.tid
}

// Guard returns the thread's guard. It is empty if the guard is unknown.
func (t *Thread) Guard() hostarch.AddrRange {
	return t.guard
}

// AltStack returns the alternate stack armed for the thread, which is null
// if the thread already had one or none was needed.
func (t *Thread) AltStack() AltStack {
	return t.alt
}

// Instrumented returns true if faults in the thread's guard are reported.
func (t *Thread) Instrumented() bool {
	return (t.main || t.slot != nil) && !t.guard.IsEmpty()
}

// Go runs fn on a new goroutine locked to its own instrumented OS thread. The
// returned channel is closed once fn has returned and the thread has exited.
//
// The goroutine never unlocks its thread, so the runtime terminates the
// thread when the goroutine exits instead of reusing it.
func (p *Process) Go(name string, fn func(t *Thread), opts ...ThreadOption) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		t := p.EnterThread(name, opts...)
		defer t.Exit()
		fn(t)
	}()
	return done
}
