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

//go:build linux && arm64
// +build linux,arm64

package stackguard

// signalHandler is implemented in handler_linux_arm64.s.
func signalHandler()

// addrOfSignalHandler returns the start address of signalHandler.
func addrOfSignalHandler() uintptr

func handlerAddr() uintptr {
	return addrOfSignalHandler()
}

// restorerAddr returns zero: the kernel returns through the vDSO on arm64.
func restorerAddr() uintptr {
	return 0
}
