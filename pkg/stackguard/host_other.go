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

//go:build !linux
// +build !linux

package stackguard

import (
	"errors"

	"gvisor.dev/stackguard/pkg/abi/linux"
	"gvisor.dev/stackguard/pkg/sighandling"
)

// hostSupported is true if NewHost returns a working Host.
const hostSupported = false

var errUnsupportedHost = errors.New("stack guard host services are not implemented on this operating system")

// unsupportedHost reports every operation as unsupported. Platforms resolved
// against it get no overflow detection.
type unsupportedHost struct{}

// NewHost returns the Host for the running operating system.
func NewHost() Host {
	return unsupportedHost{}
}

func (unsupportedHost) PageSize() uintptr     { return 4096 }
func (unsupportedHost) SigStackSize() uintptr { return linux.SIGSTKSZ }

func (unsupportedHost) MapStack(length uintptr) (uintptr, error) {
	return 0, errUnsupportedHost
}

func (unsupportedHost) MapFixed(addr, length uintptr) (uintptr, error) {
	return 0, errUnsupportedHost
}

func (unsupportedHost) ProtectNone(addr, length uintptr) error      { return errUnsupportedHost }
func (unsupportedHost) ProtectReadWrite(addr, length uintptr) error { return errUnsupportedHost }
func (unsupportedHost) Unmap(addr, length uintptr) error            { return errUnsupportedHost }

func (unsupportedHost) SignalStack() (linux.SignalStack, error) {
	return sighandling.GetSignalStack()
}

func (unsupportedHost) SetSignalStack(ss *linux.SignalStack) error {
	return sighandling.SetSignalStack(ss)
}

func (unsupportedHost) Action(sig linux.Signal) (linux.SigAction, error) {
	return sighandling.GetAction(sig)
}

func (unsupportedHost) SetAction(sig linux.Signal, sa *linux.SigAction) error {
	return sighandling.SetAction(sig, sa)
}

func (unsupportedHost) ReplaceHandler(sig linux.Signal, handler uintptr) (uintptr, error) {
	var previous uintptr
	err := sighandling.ReplaceSignalHandler(sig, handler, &previous)
	return previous, err
}

func (unsupportedHost) MainStack() (StackInfo, error)   { return StackInfo{}, errUnsupportedHost }
func (unsupportedHost) ThreadStack() (StackInfo, error) { return StackInfo{}, ErrStackUnknown }
func (unsupportedHost) Gettid() int32                   { return 0 }
func (unsupportedHost) Getpid() int32                   { return 0 }
func (unsupportedHost) HandlerAddr() uintptr            { return 0 }
func (unsupportedHost) RestorerAddr() uintptr           { return 0 }
