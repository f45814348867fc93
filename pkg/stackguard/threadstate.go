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
	"time"

	"gvisor.dev/stackguard/pkg/atomicbitops"
	"gvisor.dev/stackguard/pkg/hostarch"
	"gvisor.dev/stackguard/pkg/log"
)

const (
	// maxThreads is the number of threads that can be instrumented at the
	// same time.
	maxThreads = 1024

	// maxThreadName is the number of bytes of a thread name kept for the
	// overflow report. Longer names are truncated.
	maxThreadName = 64
)

var (
	errThreadTableFull  = errors.New("thread table is full")
	errThreadRegistered = errors.New("thread is already registered")
	errInvalidThread    = errors.New("invalid thread id")
)

// slotWarnings reports threads that run without detection.
var slotWarnings = log.BasicRateLimitedLogger(time.Second)

// threadSlot is the guard state of one thread.
//
// A slot is claimed by its thread with a compare-and-swap on tid and is
// written only by that thread afterwards. The fault handler reads it on the
// same thread, so the only cross-thread access is the tid scan.
type threadSlot struct {
	tid   atomicbitops.Uint32
	start atomicbitops.Uint64
	end   atomicbitops.Uint64

	nameLen atomicbitops.Uint32
	name    [maxThreadName]byte
}

// threadTable maps thread ids to guard state without allocating or locking,
// so it can be searched from a signal handler.
type threadTable struct {
	slots [maxThreads]threadSlot
}

// threads is the process-wide thread table.
var threads threadTable

// claim reserves a slot for tid.
func (t *threadTable) claim(tid int32) (*threadSlot, error) {
	if tid <= 0 {
		return nil, errInvalidThread
	}
	if t.lookup(tid) != nil {
		return nil, errThreadRegistered
	}
	for i := range t.slots {
		s := &t.slots[i]
		if s.tid.CompareAndSwap(0, uint32(tid)) {
			return s, nil
		}
	}
	return nil, errThreadTableFull
}

// lookup returns the slot of tid, or nil if tid has none.
//
//go:nosplit
func (t *threadTable) lookup(tid int32) *threadSlot {
	if tid <= 0 {
		return nil
	}
	for i := 0; i < len(t.slots); i++ {
		s := &t.slots[i]
		if s.tid.Load() == uint32(tid) {
			return s
		}
	}
	return nil
}

// inUse returns the number of claimed slots.
func (t *threadTable) inUse() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].tid.Load() != 0 {
			n++
		}
	}
	return n
}

// setGuard records ar as the guard of the slot's thread.
func (s *threadSlot) setGuard(ar hostarch.AddrRange) {
	s.start.Store(uint64(ar.Start))
	s.end.Store(uint64(ar.End))
}

// guard returns the guard of the slot's thread.
//
//go:nosplit
func (s *threadSlot) guard() hostarch.AddrRange {
	return hostarch.AddrRange{
		Start: hostarch.Addr(s.start.Load()),
		End:   hostarch.Addr(s.end.Load()),
	}
}

// setName records the thread's name, truncated to maxThreadName bytes.
func (s *threadSlot) setName(name string) {
	n := copy(s.name[:], name)
	s.nameLen.Store(uint32(n))
}

// threadName returns the recorded name, or nil if there is none.
//
//go:nosplit
func (s *threadSlot) threadName() []byte {
	n := s.nameLen.Load()
	if n == 0 || n > maxThreadName {
		return nil
	}
	return s.name[:n]
}

// release clears the slot and makes it available to other threads.
func (s *threadSlot) release() {
	s.setGuard(hostarch.AddrRange{})
	s.nameLen.Store(0)
	s.tid.Store(0)
}
