// Package policyregistry holds the single active policy a running proxy
// dispatches every transaction to, and lets an operator hot-swap it
// without restarting the process.
//
// Grounded on pkg/registry/registry.go's RWMutex-guarded map-of-providers
// pattern, collapsed to a single atomic.Pointer since spec.md §9's "Global
// state" design note calls for exactly one active policy at a time rather
// than a name-keyed lookup table.
package policyregistry

import (
	"fmt"
	"sync/atomic"

	"github.com/luthien-gate/policyproxy/pkg/policy"
)

// Registry holds the currently active policy. The zero value is not
// ready for use; call New.
type Registry struct {
	active atomic.Pointer[policy.Policy]
}

// New returns a Registry with initial installed as the active policy.
func New(initial policy.Policy) *Registry {
	r := &Registry{}
	r.Set(initial)
	return r
}

// Active returns the currently active policy. Safe to call concurrently
// with Set from any number of goroutines; a transaction that starts
// mid-swap runs entirely under whichever policy Active returned at its
// start, per spec.md §9 ("a swap never affects an in-flight
// transaction").
func (r *Registry) Active() policy.Policy {
	p := r.active.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Set installs p as the active policy, effective for every transaction
// started after this call returns.
func (r *Registry) Set(p policy.Policy) {
	if p == nil {
		panic("policyregistry: Set called with a nil policy")
	}
	r.active.Store(&p)
}

// MustActive returns the active policy or panics if none is installed,
// for call sites that have already verified Registry was constructed via
// New (and so can never observe a nil policy).
func (r *Registry) MustActive() policy.Policy {
	p := r.Active()
	if p == nil {
		panic(fmt.Errorf("policyregistry: no active policy installed"))
	}
	return p
}
