// Package services contains server-side business logic. Every service runs
// its reads and writes inside one dbx.TxRunner transaction per operation,
// using repositories bound to that transaction by the RepositoryManager.
package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/safelog/internal/clock"
	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/logging"
	"github.com/dmitrijs2005/safelog/internal/server/notify"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/repomanager"
)

// Deps are the collaborators shared by all services.
type Deps struct {
	Runner   dbx.TxRunner
	Repos    repomanager.RepositoryManager
	Clock    clock.Clock
	Log      logging.Logger
	Notifier notify.Dispatcher
}

func (d Deps) withModule(name string) Deps {
	d.Log = d.Log.With("module", name)
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	return d
}

// Limits bound client-supplied ciphertext.
type Limits struct {
	// MaxPayload applies to every encrypted_data, encrypted_key and message
	// body.
	MaxPayload int
	// MaxFile caps the summed chunk sizes of one file secret.
	MaxFile int64
}

func (l Limits) checkPayload(field, v string) error {
	if l.MaxPayload > 0 && len(v) > l.MaxPayload {
		return fmt.Errorf("%w: %s exceeds %d bytes", common.ErrPayloadTooLarge, field, l.MaxPayload)
	}
	return nil
}

// notifyAll sends n to each address after the transaction committed.
func notifyAll(ctx context.Context, d notify.Dispatcher, n notify.Notification, addresses ...string) {
	for _, a := range addresses {
		d.Notify(ctx, a, n)
	}
}
