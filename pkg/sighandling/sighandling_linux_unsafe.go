// Copyright 2018 The gVisor Authors.
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

// Package sighandling manipulates signal dispositions and signal stacks with
// raw system calls, bypassing the Go runtime's signal package.
package sighandling

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
	"gvisor.dev/stackguard/pkg/abi/linux"
)

// GetAction returns the action currently installed for sig.
func GetAction(sig linux.Signal) (linux.SigAction, error) {
	var sa linux.SigAction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), 0, uintptr(unsafe.Pointer(&sa)), linux.SignalSetSize, 0, 0); e != 0 {
		return sa, e
	}
	return sa, nil
}

// SetAction installs sa as the action for sig.
func SetAction(sig linux.Signal, sa *linux.SigAction) error {
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(sa)), 0, linux.SignalSetSize, 0, 0); e != 0 {
		return e
	}
	return nil
}

// ReplaceSignalHandler replaces the existing signal handler for the provided
// signal with the function pointer at `handler`. This bypasses the Go runtime
// signal handlers, and should only be used for low-level signal handlers where
// use of signal.Notify is not appropriate.
//
// The flags, mask and restorer of the existing action are kept. It stores the
// value of the previously set handler in previous.
func ReplaceSignalHandler(sig linux.Signal, handler uintptr, previous *uintptr) error {
	// Get the existing signal handler information, and save the current
	// handler. Once we replace it, we will use this pointer to fall back to
	// it when we receive other signals.
	sa, err := GetAction(sig)
	if err != nil {
		return err
	}

	// Fail if there isn't a previous handler.
	if sa.Handler == linux.SIG_DFL || sa.Handler == linux.SIG_IGN {
		return fmt.Errorf("previous handler for signal %v isn't set", sig)
	}

	*previous = uintptr(sa.Handler)

	// Install our own handler.
	sa.Handler = uint64(handler)
	return SetAction(sig, &sa)
}

// ResetToDefault restores the default disposition for sig.
//
// It is safe to call from a signal handler.
//
//go:nosplit
func ResetToDefault(sig linux.Signal) unix.Errno {
	var sa linux.SigAction
	_, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&sa)), 0, linux.SignalSetSize, 0, 0)
	return e
}

// GetSignalStack returns the calling thread's alternate signal stack.
func GetSignalStack() (linux.SignalStack, error) {
	var ss linux.SignalStack
	if _, _, e := unix.RawSyscall(unix.SYS_SIGALTSTACK, 0, uintptr(unsafe.Pointer(&ss)), 0); e != 0 {
		return ss, e
	}
	return ss, nil
}

// SetSignalStack sets the calling thread's alternate signal stack.
func SetSignalStack(ss *linux.SignalStack) error {
	if _, _, e := unix.RawSyscall(unix.SYS_SIGALTSTACK, uintptr(unsafe.Pointer(ss)), 0, 0); e != 0 {
		return e
	}
	return nil
}

// Gettid returns the calling thread's id.
//
//go:nosplit
func Gettid() int32 {
	tid, _, _ := unix.RawSyscall(unix.SYS_GETTID, 0, 0, 0)
	return int32(tid)
}

// Write writes n bytes at p to fd, ignoring errors.
//
// It is safe to call from a signal handler.
//
//go:nosplit
func Write(fd int, p unsafe.Pointer, n uintptr) {
	for n > 0 {
		w, _, e := unix.RawSyscall(unix.SYS_WRITE, uintptr(fd), uintptr(p), n)
		if e == unix.EINTR {
			continue
		}
		if e != 0 || w == 0 {
			return
		}
		p = unsafe.Add(p, w)
		n -= w
	}
}

// Abort sends SIGABRT with the default disposition to the calling thread,
// bypassing any handler the Go runtime installed for it. If that somehow
// returns, the process exits with the status a SIGABRT death would report.
//
// It is safe to call from a signal handler.
//
//go:nosplit
func Abort() {
	var sa linux.SigAction
	unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(linux.SIGABRT), uintptr(unsafe.Pointer(&sa)), 0, linux.SignalSetSize, 0, 0)
	set := linux.SignalSetOf(linux.SIGABRT)
	unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, linux.SIG_UNBLOCK, uintptr(unsafe.Pointer(&set)), 0, linux.SignalSetSize, 0, 0)
	pid, _, _ := unix.RawSyscall(unix.SYS_GETPID, 0, 0, 0)
	tid, _, _ := unix.RawSyscall(unix.SYS_GETTID, 0, 0, 0)
	unix.RawSyscall(unix.SYS_TGKILL, pid, tid, uintptr(linux.SIGABRT))
	unix.RawSyscall(unix.SYS_EXIT_GROUP, 128+uintptr(linux.SIGABRT), 0, 0)
}
