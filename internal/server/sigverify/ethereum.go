package sigverify

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dmitrijs2005/safelog/internal/logging"
)

// Ethereum verifies personal_sign (EIP-191) signatures.
type Ethereum struct {
	log logging.Logger
}

func NewEthereum(log logging.Logger) *Ethereum {
	return &Ethereum{log: log}
}

func (e *Ethereum) Verify(ctx context.Context, address, message, signature string) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(signature, "0x"), "0X"))
	if err != nil || len(sig) != crypto.SignatureLength {
		e.log.Warn(ctx, "malformed signature", "address", address)
		return false
	}

	// Wallets emit V as 27/28, SigToPub expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		e.log.Warn(ctx, "signature recovery failed", "address", address, "error", err)
		return false
	}

	recovered := crypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, address) {
		e.log.Warn(ctx, "signature does not match address", "address", address)
		return false
	}
	return true
}
