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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testMaps = `55d0c8a00000-55d0c8a02000 r--p 00000000 fd:01 1310785                    /usr/bin/cat
55d0c9b4e000-55d0c9b6f000 rw-p 00000000 00:00 0                          [heap]
7f5c1c000000-7f5c1c021000 rw-p 00000000 00:00 0
7ffc2a100000-7ffc2a200000 rw-p 00000000 00:00 0
7ffc2a7d0000-7ffc2a7f2000 rw-p 00000000 00:00 0                          [stack]
7ffc2a7fc000-7ffc2a800000 r--p 00000000 00:00 0                          [vvar]
ffffffffff600000-ffffffffff601000 --xp 00000000 00:00 0                  [vsyscall]
`

func TestMainStackFromMaps(t *testing.T) {
	for _, tc := range []struct {
		name   string
		rlimit uint64
		want   StackInfo
	}{
		{
			name:   "rlimit",
			rlimit: 8 << 20,
			want:   StackInfo{Addr: 0x7ffc29ff2000, Size: 8 << 20},
		},
		{
			name:   "clipped by previous mapping",
			rlimit: ^uint64(0),
			want:   StackInfo{Addr: 0x7ffc2a200000, Size: 0x5f2000},
		},
		{
			name:   "unaligned rlimit",
			rlimit: 8<<20 + 123,
			want:   StackInfo{Addr: 0x7ffc29ff2000, Size: 8 << 20},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := mainStackFromMaps(strings.NewReader(testMaps), tc.rlimit, 0x1000)
			if err != nil {
				t.Fatalf("mainStackFromMaps(): %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mainStackFromMaps() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMainStackFromMapsErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		maps string
	}{
		{"no stack", "00400000-00401000 r-xp 00000000 00:00 0 /bin/true\n"},
		{"malformed", "00400000:00401000 r-xp 00000000 00:00 0 [stack]\n"},
		{"reversed", "00402000-00401000 r-xp 00000000 00:00 0 [stack]\n"},
		{"empty", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got, err := mainStackFromMaps(strings.NewReader(tc.maps), 8<<20, 0x1000); err == nil {
				t.Errorf("mainStackFromMaps() = %+v, want error", got)
			}
		})
	}
}
