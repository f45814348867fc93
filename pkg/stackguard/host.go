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

	"gvisor.dev/stackguard/pkg/abi/linux"
)

// ErrStackUnknown is returned by Host.ThreadStack when the bounds of the
// calling thread's stack cannot be determined.
var ErrStackUnknown = errors.New("stack bounds of the calling thread are unknown")

// StackInfo describes a thread's stack as reported by its thread attributes.
type StackInfo struct {
	// Addr is the lowest usable address of the stack. It is not necessarily
	// page aligned.
	Addr uintptr

	// Size is the usable size of the stack in bytes.
	Size uintptr

	// Guard is the size of the guard region reported for the stack, or zero
	// if none is reported.
	Guard uintptr
}

// Host is the set of operating system services the stack guard uses. It is
// the boundary to the OS virtual memory, signal and thread attribute APIs.
//
// Every method except the signal handler entry points is called from
// ordinary thread context only.
type Host interface {
	// PageSize returns the system page size.
	PageSize() uintptr

	// SigStackSize returns the minimum size of a usable alternate signal
	// stack.
	SigStackSize() uintptr

	// MapStack maps length bytes of private anonymous read/write memory
	// suitable for use as a stack.
	MapStack(length uintptr) (uintptr, error)

	// MapFixed maps length bytes of private anonymous read/write memory
	// exactly at addr.
	MapFixed(addr, length uintptr) (uintptr, error)

	// ProtectNone removes all access to [addr, addr+length).
	ProtectNone(addr, length uintptr) error

	// ProtectReadWrite restores read/write access to [addr, addr+length).
	ProtectReadWrite(addr, length uintptr) error

	// Unmap unmaps [addr, addr+length).
	Unmap(addr, length uintptr) error

	// SignalStack returns the calling thread's alternate signal stack.
	SignalStack() (linux.SignalStack, error)

	// SetSignalStack sets the calling thread's alternate signal stack.
	SetSignalStack(ss *linux.SignalStack) error

	// Action returns the action installed for sig.
	Action(sig linux.Signal) (linux.SigAction, error)

	// SetAction installs sa for sig.
	SetAction(sig linux.Signal, sa *linux.SigAction) error

	// ReplaceHandler swaps the handler address of the action installed for
	// sig, keeping its flags, mask and restorer, and returns the previous
	// handler address.
	ReplaceHandler(sig linux.Signal, handler uintptr) (uintptr, error)

	// MainStack describes the stack the process started with.
	MainStack() (StackInfo, error)

	// ThreadStack describes the calling thread's stack. It returns
	// ErrStackUnknown if the thread attributes are not available.
	ThreadStack() (StackInfo, error)

	// Gettid returns the calling thread's id.
	Gettid() int32

	// Getpid returns the process id, which is also the main thread's id.
	Getpid() int32

	// HandlerAddr returns the address of the fault handler entry point, or
	// zero if there is none for this host.
	HandlerAddr() uintptr

	// RestorerAddr returns the address of the signal return trampoline to
	// install with SA_RESTORER, or zero if the kernel provides one.
	RestorerAddr() uintptr
}
