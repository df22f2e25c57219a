// Package sigverify checks that an identity produced a signature over a
// login challenge. Classical identities are verified locally by recovering
// the signer address; post-quantum identities are verified by the oracle.
//
// Every verifier here fails closed: malformed input, recovery errors and
// oracle failures all yield false. Failures are logged at Warn with the
// address only.
package sigverify

import (
	"context"

	"github.com/dmitrijs2005/safelog/internal/logging"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
)

// Verifier reports whether signature over message was produced by address.
type Verifier interface {
	Verify(ctx context.Context, address, message, signature string) bool
}

// Dispatcher routes verification by the stored identity kind.
type Dispatcher struct {
	classical   Verifier
	postQuantum Verifier
	log         logging.Logger
}

func NewDispatcher(classical, postQuantum Verifier, log logging.Logger) *Dispatcher {
	return &Dispatcher{classical: classical, postQuantum: postQuantum, log: log}
}

// Verify dispatches on id.Kind. Unknown kinds are rejected.
func (d *Dispatcher) Verify(ctx context.Context, id identity.Identity, message, signature string) bool {
	switch id.Kind {
	case identity.Classical:
		return d.classical.Verify(ctx, id.Address, message, signature)
	case identity.PostQuantum:
		return d.postQuantum.Verify(ctx, id.Address, message, signature)
	default:
		d.log.Warn(ctx, "unknown identity kind", "address", id.Address, "kind", string(id.Kind))
		return false
	}
}
