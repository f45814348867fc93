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
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"gvisor.dev/stackguard/pkg/abi/linux"
	"gvisor.dev/stackguard/pkg/memutil"
	"gvisor.dev/stackguard/pkg/sighandling"
)

// hostSupported is true if NewHost returns a working Host.
const hostSupported = true

// linuxHost implements Host with raw Linux system calls.
type linuxHost struct {
	pageSize uintptr
}

// NewHost returns the Host for the running operating system.
func NewHost() Host {
	return &linuxHost{pageSize: uintptr(unix.Getpagesize())}
}

// PageSize implements Host.PageSize.
func (h *linuxHost) PageSize() uintptr {
	return h.pageSize
}

// SigStackSize implements Host.SigStackSize.
//
// It honors AT_MINSIGSTKSZ, which reflects the signal frame size of the CPU
// features actually enabled (e.g. AVX-512 or SVE), and never returns less
// than SIGSTKSZ.
func (h *linuxHost) SigStackSize() uintptr {
	size := uintptr(linux.SIGSTKSZ)
	auxv, err := unix.Auxv()
	if err != nil {
		return size
	}
	for _, kv := range auxv {
		if kv[0] == linux.AT_MINSIGSTKSZ && kv[1] > size {
			size = kv[1]
		}
	}
	return size
}

// MapStack implements Host.MapStack.
func (h *linuxHost) MapStack(length uintptr) (uintptr, error) {
	return memutil.MapAnon(length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_STACK)
}

// MapFixed implements Host.MapFixed.
func (h *linuxHost) MapFixed(addr, length uintptr) (uintptr, error) {
	return memutil.MapFixed(addr, length, unix.PROT_READ|unix.PROT_WRITE)
}

// ProtectNone implements Host.ProtectNone.
func (h *linuxHost) ProtectNone(addr, length uintptr) error {
	return memutil.Protect(addr, length, unix.PROT_NONE)
}

// ProtectReadWrite implements Host.ProtectReadWrite.
func (h *linuxHost) ProtectReadWrite(addr, length uintptr) error {
	return memutil.Protect(addr, length, unix.PROT_READ|unix.PROT_WRITE)
}

// Unmap implements Host.Unmap.
func (h *linuxHost) Unmap(addr, length uintptr) error {
	return memutil.Unmap(addr, length)
}

// SignalStack implements Host.SignalStack.
func (h *linuxHost) SignalStack() (linux.SignalStack, error) {
	return sighandling.GetSignalStack()
}

// SetSignalStack implements Host.SetSignalStack.
func (h *linuxHost) SetSignalStack(ss *linux.SignalStack) error {
	return sighandling.SetSignalStack(ss)
}

// Action implements Host.Action.
func (h *linuxHost) Action(sig linux.Signal) (linux.SigAction, error) {
	return sighandling.GetAction(sig)
}

// SetAction implements Host.SetAction.
func (h *linuxHost) SetAction(sig linux.Signal, sa *linux.SigAction) error {
	return sighandling.SetAction(sig, sa)
}

// ReplaceHandler implements Host.ReplaceHandler.
func (h *linuxHost) ReplaceHandler(sig linux.Signal, handler uintptr) (uintptr, error) {
	var previous uintptr
	if err := sighandling.ReplaceSignalHandler(sig, handler, &previous); err != nil {
		return 0, err
	}
	return previous, nil
}

// MainStack implements Host.MainStack.
func (h *linuxHost) MainStack() (StackInfo, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_STACK, &rl); err != nil {
		return StackInfo{}, fmt.Errorf("getrlimit(RLIMIT_STACK): %w", err)
	}
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return StackInfo{}, err
	}
	defer f.Close()
	return mainStackFromMaps(f, rl.Cur, h.pageSize)
}

// ThreadStack implements Host.ThreadStack.
//
// Only the main thread's stack can be described without thread library
// support; other threads need WithStack.
func (h *linuxHost) ThreadStack() (StackInfo, error) {
	if h.Gettid() == h.Getpid() {
		return h.MainStack()
	}
	return StackInfo{}, ErrStackUnknown
}

// Gettid implements Host.Gettid.
func (h *linuxHost) Gettid() int32 {
	return sighandling.Gettid()
}

// Getpid implements Host.Getpid.
func (h *linuxHost) Getpid() int32 {
	return int32(unix.Getpid())
}

// HandlerAddr implements Host.HandlerAddr.
func (h *linuxHost) HandlerAddr() uintptr {
	return handlerAddr()
}

// RestorerAddr implements Host.RestorerAddr.
func (h *linuxHost) RestorerAddr() uintptr {
	return restorerAddr()
}
