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

//go:build !linux || !(amd64 || arm64)
// +build !linux !amd64,!arm64

package stackguard

// handlerAddr returns zero: there is no fault handler entry point for this
// host, so no handler is ever installed.
func handlerAddr() uintptr {
	return 0
}

func restorerAddr() uintptr {
	return 0
}
