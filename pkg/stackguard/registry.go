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
	"fmt"

	"gvisor.dev/stackguard/pkg/abi/linux"
	"gvisor.dev/stackguard/pkg/log"
)

// faultSignals are the signals a stack overflow can raise.
var faultSignals = [...]linux.Signal{linux.SIGSEGV, linux.SIGBUS}

// registration records a handler installed by a Process.
type registration struct {
	sig      linux.Signal
	previous linux.SigAction
	chained  bool
}

// installHandlers installs the fault handler for every fault signal that
// has none, or for every fault signal in chain mode. It only acts the first
// time it is called for p.
func (p *Process) installHandlers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handlersInstalled {
		return
	}
	p.handlersInstalled = true

	handler := p.host.HandlerAddr()
	if handler == 0 {
		log.Infof("stackguard: no fault handler available for this host, overflows will not be reported")
		return
	}
	for _, sig := range faultSignals {
		prev, err := p.host.Action(sig)
		if err != nil {
			log.Warningf("stackguard: reading the %v action: %v, leaving it alone", sig, err)
			continue
		}
		switch {
		case prev.IsDefault():
			sa := linux.SigAction{
				Handler: uint64(handler),
				Flags:   linux.SA_SIGINFO | linux.SA_ONSTACK,
			}
			if r := p.host.RestorerAddr(); r != 0 {
				sa.Flags |= linux.SA_RESTORER
				sa.Restorer = uint64(r)
			}
			if err := p.host.SetAction(sig, &sa); err != nil {
				panic(fmt.Sprintf("stackguard: failed to install the %v handler: %v", sig, err))
			}
			p.registrations = append(p.registrations, registration{sig: sig, previous: prev})
			p.needAltStack.Store(true)
			log.Debugf("stackguard: installed %v handler", sig)
		case p.chain && prev.Handler != linux.SIG_IGN:
			// The forward must be in place before the handler is.
			setForward(sig, uintptr(prev.Handler))
			old, err := p.host.ReplaceHandler(sig, handler)
			if err != nil {
				setForward(sig, 0)
				panic(fmt.Sprintf("stackguard: failed to chain the %v handler: %v", sig, err))
			}
			setForward(sig, old)
			p.registrations = append(p.registrations, registration{sig: sig, previous: prev, chained: true})
			log.Debugf("stackguard: chained %v handler in front of %#x", sig, old)
		default:
			log.Debugf("stackguard: %v already handled by %v, not installing", sig, prev)
		}
	}
}

// restoreHandlers reinstalls the actions replaced by installHandlers, in
// reverse order of installation.
func (p *Process) restoreHandlers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.registrations) - 1; i >= 0; i-- {
		r := p.registrations[i]
		if err := p.host.SetAction(r.sig, &r.previous); err != nil {
			log.Warningf("stackguard: restoring the %v action: %v", r.sig, err)
		}
		if r.chained {
			setForward(r.sig, 0)
		}
	}
	p.registrations = nil
}

// Installed returns the signals whose handler p installed or chained.
func (p *Process) Installed() []linux.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	sigs := make([]linux.Signal, 0, len(p.registrations))
	for _, r := range p.registrations {
		sigs = append(sigs, r.sig)
	}
	return sigs
}
