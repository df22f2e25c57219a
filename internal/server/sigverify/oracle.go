package sigverify

import (
	"context"

	"github.com/dmitrijs2005/safelog/internal/logging"
)

// OracleClient is the verification half of the PQC oracle.
type OracleClient interface {
	Verify(ctx context.Context, message, signature, publicKey string) (bool, error)
}

// Oracle verifies post-quantum signatures; the address is the public key.
type Oracle struct {
	client OracleClient
	log    logging.Logger
}

func NewOracle(client OracleClient, log logging.Logger) *Oracle {
	return &Oracle{client: client, log: log}
}

func (o *Oracle) Verify(ctx context.Context, address, message, signature string) bool {
	if signature == "" {
		o.log.Warn(ctx, "empty pqc signature", "address", shorten(address))
		return false
	}
	ok, err := o.client.Verify(ctx, message, signature, address)
	if err != nil {
		o.log.Warn(ctx, "pqc oracle verification failed", "address", shorten(address), "error", err)
		return false
	}
	if !ok {
		o.log.Warn(ctx, "pqc signature rejected", "address", shorten(address))
	}
	return ok
}

// shorten keeps multi-kilobyte public keys out of log lines.
func shorten(address string) string {
	if len(address) <= 24 {
		return address
	}
	return address[:16] + "..." + address[len(address)-8:]
}
