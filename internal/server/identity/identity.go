// Package identity classifies principal addresses. A classical identity is
// an Ethereum-style account address verified by signature recovery; a
// post-quantum identity is a hex-encoded public key verified by the oracle.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/safelog/internal/common"
)

// Kind tags how an identity's signatures are verified.
type Kind string

const (
	Classical   Kind = "classical"
	PostQuantum Kind = "post_quantum"
)

// ClassicalMaxLen is the longest classical address ("0x" + 40 hex digits).
const ClassicalMaxLen = 42

// Identity is a normalized address together with its kind.
type Identity struct {
	Kind    Kind
	Address string
}

func (i Identity) String() string { return i.Address }

// Normalize lowercases and trims an address. Every stored or compared
// address goes through it.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Parse normalizes raw and decides its kind once. Addresses of up to 42
// characters must be 0x-prefixed 20-byte hex; longer ones must be hex
// public keys (an optional 0x prefix is tolerated).
func Parse(raw string) (Identity, error) {
	addr := Normalize(raw)
	if addr == "" {
		return Identity{}, fmt.Errorf("%w: empty address", common.ErrValidation)
	}

	if len(addr) <= ClassicalMaxLen {
		if len(addr) != ClassicalMaxLen || !strings.HasPrefix(addr, "0x") || !isHex(addr[2:]) {
			return Identity{}, fmt.Errorf("%w: malformed address", common.ErrValidation)
		}
		return Identity{Kind: Classical, Address: addr}, nil
	}

	if !isHex(strings.TrimPrefix(addr, "0x")) {
		return Identity{}, fmt.Errorf("%w: malformed public key", common.ErrValidation)
	}
	return Identity{Kind: PostQuantum, Address: addr}, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == Classical || k == PostQuantum
}

func isHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
