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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// mainStackFromMaps computes the main thread's stack from the contents of
// /proc/[pid]/maps.
//
// The stack mapping is the one labelled [stack]. It grows down until it hits
// the previous mapping or the stack rlimit, whichever comes first, so the
// usable stack is the rlimit-sized region below its top, clipped to the end
// of the previous mapping and rounded down to whole pages.
func mainStackFromMaps(r io.Reader, rlimit uint64, pageSize uintptr) (StackInfo, error) {
	var prevEnd uint64
	s := bufio.NewScanner(r)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			continue
		}
		start, end, err := parseMapsRange(fields[0])
		if err != nil {
			return StackInfo{}, err
		}
		if len(fields) < 6 || fields[5] != "[stack]" {
			prevEnd = end
			continue
		}
		if prevEnd > start {
			return StackInfo{}, fmt.Errorf("stack mapping %s overlaps the previous mapping ending at %#x", fields[0], prevEnd)
		}
		size := end - prevEnd
		if rlimit < size {
			size = rlimit
		}
		size &^= uint64(pageSize - 1)
		if size == 0 {
			return StackInfo{}, fmt.Errorf("stack mapping %s has no usable pages", fields[0])
		}
		return StackInfo{Addr: uintptr(end - size), Size: uintptr(size)}, nil
	}
	if err := s.Err(); err != nil {
		return StackInfo{}, err
	}
	return StackInfo{}, fmt.Errorf("no [stack] mapping found")
}

func parseMapsRange(field string) (uint64, uint64, error) {
	startStr, endStr, ok := strings.Cut(field, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed address range %q", field)
	}
	start, err := strconv.ParseUint(startStr, 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed address range %q: %w", field, err)
	}
	end, err := strconv.ParseUint(endStr, 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed address range %q: %w", field, err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("malformed address range %q", field)
	}
	return start, end, nil
}
