// Copyright 2021 The gVisor Authors.
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

// Package sighandling manipulates signal dispositions and signal stacks with
// raw system calls, bypassing the Go runtime's signal package.
package sighandling

import (
	"errors"

	"gvisor.dev/stackguard/pkg/abi/linux"
)

// ErrNotSupported is returned by every operation on hosts other than Linux.
var ErrNotSupported = errors.New("raw signal handling is only supported on Linux")

// GetAction returns the action currently installed for sig.
func GetAction(sig linux.Signal) (linux.SigAction, error) {
	return linux.SigAction{}, ErrNotSupported
}

// SetAction installs sa as the action for sig.
func SetAction(sig linux.Signal, sa *linux.SigAction) error {
	return ErrNotSupported
}

// ReplaceSignalHandler replaces the existing signal handler for the provided
// signal with the function pointer at `handler`.
func ReplaceSignalHandler(sig linux.Signal, handler uintptr, previous *uintptr) error {
	return ErrNotSupported
}

// GetSignalStack returns the calling thread's alternate signal stack.
func GetSignalStack() (linux.SignalStack, error) {
	return linux.SignalStack{}, ErrNotSupported
}

// SetSignalStack sets the calling thread's alternate signal stack.
func SetSignalStack(ss *linux.SignalStack) error {
	return ErrNotSupported
}
