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
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
)

// ErrUnknownPlatform is returned when a platform is requested by a name that
// LookupPlatform does not know.
var ErrUnknownPlatform = errors.New("unknown platform")

// LibC identifies the C library whose thread conventions apply.
type LibC int

const (
	// LibCUnknown is used where the C library does not matter or cannot be
	// determined. On Linux it selects the GNU conventions.
	LibCUnknown LibC = iota

	// LibCGNU is the GNU C library.
	LibCGNU

	// LibCMusl is the musl C library.
	LibCMusl
)

// String implements fmt.Stringer.String.
func (l LibC) String() string {
	switch l {
	case LibCUnknown:
		return "unknown"
	case LibCGNU:
		return "gnu"
	case LibCMusl:
		return "musl"
	default:
		return fmt.Sprintf("LibC(%d)", int(l))
	}
}

// Platform pairs the guard convention of the main thread with the convention
// of spawned threads.
type Platform struct {
	// Name identifies the platform, e.g. "linux/gnu".
	Name string

	// Main is the convention for the main thread. It is nil if overflow
	// detection is not supported on this platform.
	Main Convention

	// Thread is the convention for threads other than the main thread.
	Thread Convention

	// MainStartSkipsGuard is set if the stack start reported for the main
	// thread is the guard page rather than the first usable page.
	MainStartSkipsGuard bool
}

// Supported returns true if overflow detection is available on p.
func (p Platform) Supported() bool {
	return p.Main != nil && p.Thread != nil
}

// String implements fmt.Stringer.String.
func (p Platform) String() string {
	return p.Name
}

// PlatformFor returns the platform of the given operating system (in
// runtime.GOOS spelling) and C library.
func PlatformFor(goos string, libc LibC) Platform {
	switch goos {
	case "linux":
		if libc == LibCMusl {
			return Platform{
				Name:   "linux/musl",
				Main:   NoDetection{},
				Thread: IncludedGuard{Placement: GuardBelow, ZeroSizeFallback: true},
			}
		}
		return Platform{
			Name:   "linux/gnu",
			Main:   KernelAutoGuard{},
			Thread: IncludedGuard{Placement: GuardStraddle},
		}
	case "freebsd":
		return Platform{
			Name:   "freebsd",
			Main:   ExcludedGuard{Pages: 1, Inside: true},
			Thread: IncludedGuard{Placement: GuardBelow},
		}
	case "netbsd":
		return Platform{
			Name:   "netbsd",
			Main:   ExcludedGuard{Pages: 1},
			Thread: IncludedGuard{Placement: GuardBelow},
		}
	case "openbsd":
		return Platform{
			Name:                "openbsd",
			Main:                ExcludedGuard{Pages: 1},
			Thread:              ExcludedGuard{Pages: 1},
			MainStartSkipsGuard: true,
		}
	case "darwin", "solaris", "illumos":
		return Platform{
			Name:   goos,
			Main:   ManualMapping{},
			Thread: ExcludedGuard{Pages: 1},
		}
	default:
		return Platform{Name: goos}
	}
}

// platformKeys are the (GOOS, libc) pairs with distinct supported platforms.
var platformKeys = []struct {
	goos string
	libc LibC
}{
	{"linux", LibCGNU},
	{"linux", LibCMusl},
	{"freebsd", LibCUnknown},
	{"netbsd", LibCUnknown},
	{"openbsd", LibCUnknown},
	{"darwin", LibCUnknown},
	{"solaris", LibCUnknown},
	{"illumos", LibCUnknown},
}

// Platforms returns every supported platform, sorted by name.
func Platforms() []Platform {
	ps := make([]Platform, 0, len(platformKeys))
	for _, k := range platformKeys {
		ps = append(ps, PlatformFor(k.goos, k.libc))
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps
}

// LookupPlatform returns the supported platform with the given name.
func LookupPlatform(name string) (Platform, error) {
	for _, p := range Platforms() {
		if p.Name == name {
			return p, nil
		}
	}
	return Platform{}, fmt.Errorf("%w %q", ErrUnknownPlatform, name)
}

// DetectPlatform returns the platform of the running process.
func DetectPlatform() Platform {
	p := PlatformFor(runtime.GOOS, detectLibC())
	if runtime.GOOS == "freebsd" {
		if n := hostGuardPages(); n > 0 {
			p.Main = ExcludedGuard{Pages: n, Inside: true}
		} else {
			p.Main = NoDetection{}
		}
	}
	return p
}

// detectLibC reports musl if its dynamic loader is installed. Any other
// system is assumed to follow the GNU conventions.
func detectLibC() LibC {
	if matches, _ := filepath.Glob("/lib/ld-musl-*"); len(matches) > 0 {
		return LibCMusl
	}
	return LibCGNU
}
