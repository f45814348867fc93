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

//go:build linux && amd64
// +build linux,amd64

package stackguard

// signalHandler is implemented in handler_linux_amd64.s.
func signalHandler()

// sigreturn is implemented in handler_linux_amd64.s. The kernel requires a
// restorer on amd64 when rt_sigaction is called directly.
func sigreturn()

// addrOfSignalHandler returns the start address of signalHandler.
func addrOfSignalHandler() uintptr

// addrOfSigreturn returns the start address of sigreturn.
func addrOfSigreturn() uintptr

func handlerAddr() uintptr {
	return addrOfSignalHandler()
}

func restorerAddr() uintptr {
	return addrOfSigreturn()
}
