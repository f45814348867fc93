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

//go:build freebsd
// +build freebsd

package stackguard

import (
	"golang.org/x/sys/unix"

	"gvisor.dev/stackguard/pkg/log"
)

// hostGuardPages returns the number of guard pages the kernel places at the
// bottom of the main thread's stack.
func hostGuardPages() uintptr {
	n, err := unix.SysctlUint32("security.bsd.stack_guard_page")
	if err != nil {
		log.Warningf("stackguard: reading security.bsd.stack_guard_page: %v, assuming one page", err)
		return 1
	}
	return uintptr(n)
}
