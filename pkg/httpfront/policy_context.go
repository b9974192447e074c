package httpfront

import (
	"context"

	"github.com/luthien-gate/policyproxy/pkg/observability"
	"github.com/luthien-gate/policyproxy/pkg/policy"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

// policyContextFor builds the policy.Context OnRequest/OnResponse hooks
// see, routing emitted PolicyEvents to the fanout if one is configured.
func policyContextFor(tx *proxytypes.Transaction, fanout *observability.Fanout) *policy.Context {
	emit := func(evt proxytypes.PolicyEvent) {
		if fanout != nil {
			fanout.EmitPolicyEvent(context.Background(), evt)
		}
	}
	return policy.NewContext(tx, emit)
}
