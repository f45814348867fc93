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
	"unsafe"

	"gvisor.dev/stackguard/pkg/abi/linux"
	"gvisor.dev/stackguard/pkg/sighandling"
)

// hostFaultActions are the actions taken by the installed handler.
var hostFaultActions = faultActions{
	report: reportOverflow,
	abort:  sighandling.Abort,
	reset:  resetToDefault,
}

// handleFault is called by signalHandler with the signal number and the
// siginfo_t of a SIGSEGV or SIGBUS. It returns the handler to forward the
// signal to, or zero to return from the signal.
//
//go:nosplit
func handleFault(sig int32, info uintptr) uintptr {
	addr := (*linux.SignalInfo)(unsafe.Pointer(info)).Addr()
	return onFault(sig, uintptr(addr), sighandling.Gettid(), &hostFaultActions)
}

// reportOverflow writes the overflow diagnostic to standard error.
//
//go:nosplit
func reportOverflow(name []byte) {
	writeString(overflowPrefix)
	if len(name) == 0 {
		writeString(unknownThread)
	} else {
		sighandling.Write(2, unsafe.Pointer(&name[0]), uintptr(len(name)))
	}
	writeString(overflowSuffix)
}

//go:nosplit
func writeString(s string) {
	sighandling.Write(2, unsafe.Pointer(unsafe.StringData(s)), uintptr(len(s)))
}

//go:nosplit
func resetToDefault(sig int32) {
	sighandling.ResetToDefault(linux.Signal(sig))
}
