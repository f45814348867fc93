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

//go:build linux
// +build linux

package stackguard

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
	"gvisor.dev/stackguard/pkg/abi/linux"
	"gvisor.dev/stackguard/pkg/hostarch"
	"gvisor.dev/stackguard/pkg/memutil"
)

func TestLinuxHostBasics(t *testing.T) {
	h := NewHost()
	if got, want := h.PageSize(), uintptr(unix.Getpagesize()); got != want {
		t.Errorf("PageSize() = %d, want %d", got, want)
	}
	if got := h.SigStackSize(); got < linux.SIGSTKSZ {
		t.Errorf("SigStackSize() = %d, want at least %d", got, linux.SIGSTKSZ)
	}
	if got, want := h.Getpid(), int32(unix.Getpid()); got != want {
		t.Errorf("Getpid() = %d, want %d", got, want)
	}
	switch runtime.GOARCH {
	case "amd64":
		if h.HandlerAddr() == 0 || h.RestorerAddr() == 0 {
			t.Errorf("no handler or restorer on amd64")
		}
	case "arm64":
		if h.HandlerAddr() == 0 || h.RestorerAddr() != 0 {
			t.Errorf("handler %#x, restorer %#x on arm64", h.HandlerAddr(), h.RestorerAddr())
		}
	}
}

func TestLinuxHostMainStack(t *testing.T) {
	h := NewHost()
	info, err := h.MainStack()
	if err != nil {
		t.Skipf("main stack unavailable: %v", err)
	}
	if info.Size == 0 || info.Addr%h.PageSize() != 0 || info.Size%h.PageSize() != 0 {
		t.Errorf("MainStack() = %+v, want a non-empty page aligned stack", info)
	}
}

func TestLinuxHostThreadStack(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	h := NewHost()
	if h.Gettid() == h.Getpid() {
		t.Skip("running on the main thread")
	}
	if _, err := h.ThreadStack(); err != ErrStackUnknown {
		t.Errorf("ThreadStack() = %v, want %v", err, ErrStackUnknown)
	}
}

// TestLinuxAltStackMapping allocates real alternate stacks and unmaps them
// with the same arithmetic release uses. The thread's signal stack is left
// alone: the Go runtime requires every thread to keep one.
func TestLinuxAltStackMapping(t *testing.T) {
	h := NewHost()
	for i := 0; i < 3; i++ {
		s := allocAltStack(h, h.PageSize())
		if s.Size() != h.SigStackSize() || s.Addr()%h.PageSize() != 0 {
			t.Fatalf("allocAltStack() = %v (size %#x)", s, s.Size())
		}
		usable := unsafe.Slice((*byte)(unsafe.Pointer(s.Addr())), s.Size())
		usable[0] = 1
		usable[len(usable)-1] = 1

		m := s.Mapping()
		if err := h.Unmap(uintptr(m.Start), m.Length()); err != nil {
			t.Fatalf("Unmap(%v): %v", m, err)
		}
		// msync fails with ENOMEM if any part of the range is unmapped.
		if _, _, e := unix.Syscall(unix.SYS_MSYNC, uintptr(m.Start), uintptr(m.Length()), unix.MS_ASYNC); e != unix.ENOMEM {
			t.Errorf("msync(%v) after unmapping = %v, want ENOMEM", m, e)
		}
	}
}

// TestLinuxInit runs Init against the real host. The Go runtime already
// handles SIGSEGV and SIGBUS, so nothing is installed and no alternate stack
// is allocated.
func TestLinuxInit(t *testing.T) {
	p, err := Init(Config{})
	if err != nil {
		t.Fatalf("Init(): %v", err)
	}
	defer p.Cleanup()

	if got, want := p.PageSize(), uintptr(unix.Getpagesize()); got != want {
		t.Errorf("PageSize() = %d, want %d", got, want)
	}
	if got := p.Installed(); len(got) != 0 {
		t.Errorf("Installed() = %v over the Go runtime's handlers", got)
	}
	if p.NeedsAltStack() || !p.MainAltStack().IsNull() {
		t.Errorf("alternate stack allocated under the Go runtime")
	}
	if p.Platform().Name == "linux/gnu" && p.MainGuard().IsEmpty() {
		if _, err := NewHost().MainStack(); err == nil {
			t.Errorf("MainGuard() is empty although the main stack is known")
		}
	}

	var stack [4096]byte
	base := uintptr(unsafe.Pointer(&stack[0]))
	var guardOK bool
	<-p.Go("worker", func(*Thread) {
		h := NewHost()
		if h.Gettid() == h.Getpid() {
			// The main thread keeps the main thread's guard.
			guardOK = true
			return
		}
		s := threads.lookup(h.Gettid())
		guardOK = s != nil && !s.guard().IsEmpty()
	}, WithStack(StackInfo{Addr: base, Size: uintptr(len(stack)), Guard: 4096}))
	if !guardOK {
		t.Errorf("thread started with WithStack has no guard")
	}
}

// TestLinuxEnterThreadWithoutStack checks that a spawned thread entered
// without a stack description gets no guard on Linux.
func TestLinuxEnterThreadWithoutStack(t *testing.T) {
	p, err := Init(Config{})
	if err != nil {
		t.Fatalf("Init(): %v", err)
	}
	defer p.Cleanup()
	if !p.Platform().Supported() {
		t.Skipf("platform %s is not supported", p.Platform())
	}

	var (
		onMain       bool
		guard        hostarch.AddrRange
		instrumented bool
	)
	<-p.Go("bare", func(th *Thread) {
		onMain = th.TID() == int32(unix.Getpid())
		guard, instrumented = th.Guard(), th.Instrumented()
	})
	if onMain {
		t.Skip("thread ran on the main thread")
	}
	if !guard.IsEmpty() || instrumented {
		t.Errorf("thread without a stack description: guard %v, instrumented %t, want an empty guard", guard, instrumented)
	}
}

// faultEnv selects the fault TestLinuxFaultChild takes: "guard" or "outside".
const faultEnv = "STACKGUARD_TEST_FAULT"

// TestLinuxFaultChild runs in a child process started by TestLinuxFault. It
// chains the handler in front of the Go runtime's, describes a one page
// stack with guard pages around it to a thread and writes to one of them.
func TestLinuxFaultChild(t *testing.T) {
	where := os.Getenv(faultEnv)
	if where == "" {
		t.Skip("only runs as a child of TestLinuxFault")
	}
	p, err := Init(Config{Chain: true})
	if err != nil {
		t.Fatalf("Init(): %v", err)
	}
	defer p.Cleanup()

	// Layout: [rw][guard][stack][none].
	ps := uintptr(unix.Getpagesize())
	base, err := memutil.MapAnon(4*ps, unix.PROT_READ|unix.PROT_WRITE, 0)
	if err != nil {
		t.Fatalf("MapAnon(): %v", err)
	}
	for _, page := range []uintptr{1, 3} {
		if err := memutil.Protect(base+page*ps, ps, unix.PROT_NONE); err != nil {
			t.Fatalf("Protect(page %d): %v", page, err)
		}
	}
	target := base + ps + 8
	if where == "outside" {
		target = base + 3*ps + 8
	}

	stack := WithStack(StackInfo{Addr: base + 2*ps, Size: ps, Guard: ps})
	var run func(th *Thread)
	run = func(th *Thread) {
		if th.main {
			// The main thread keeps the main guard; move to another one.
			<-p.Go(th.Name(), run, stack)
			return
		}
		*(*byte)(unsafe.Pointer(target)) = 1
	}
	<-p.Go("victim", run, stack)
	t.Fatalf("write to %#x did not fault", target)
}

// TestLinuxFault takes real faults in child processes: a fault in a guard is
// reported and aborts, any other fault reaches the Go runtime.
func TestLinuxFault(t *testing.T) {
	if NewHost().HandlerAddr() == 0 {
		t.Skipf("no fault handler on %s", runtime.GOARCH)
	}
	if !DetectPlatform().Supported() {
		t.Skipf("platform %s is not supported", DetectPlatform())
	}
	const report = "\nthread 'victim' has overflowed its stack\nfatal error: stack overflow\n"

	for _, tc := range []struct {
		where      string
		wantReport bool
	}{
		{where: "guard", wantReport: true},
		{where: "outside", wantReport: false},
	} {
		t.Run(tc.where, func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=^TestLinuxFaultChild$")
			cmd.Env = append(os.Environ(), faultEnv+"="+tc.where)
			var stderr bytes.Buffer
			cmd.Stdout = &stderr
			cmd.Stderr = &stderr
			err := cmd.Run()

			var ee *exec.ExitError
			if !errors.As(err, &ee) {
				t.Fatalf("child exited with %v, want a failure; output:\n%s", err, stderr.String())
			}
			ws := ee.Sys().(syscall.WaitStatus)
			out := stderr.String()
			if tc.wantReport {
				if !strings.Contains(out, report) {
					t.Errorf("child output does not contain %q:\n%s", report, out)
				}
				if !ws.Signaled() || ws.Signal() != unix.SIGABRT {
					t.Errorf("child status = %v, want killed by SIGABRT; output:\n%s", ee, out)
				}
				return
			}
			if strings.Contains(out, "has overflowed its stack") {
				t.Errorf("fault outside the guard reported as an overflow:\n%s", out)
			}
			if !strings.Contains(out, "unexpected fault address") {
				t.Errorf("fault outside the guard did not reach the Go runtime:\n%s", out)
			}
			if ws.Signaled() || ws.ExitStatus() != 2 {
				t.Errorf("child status = %v, want exit status 2; output:\n%s", ee, out)
			}
		})
	}
}
