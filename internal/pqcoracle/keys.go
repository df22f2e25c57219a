// Package pqcoracle is the ML-DSA-44 signing and verification service used
// by the vault for post-quantum identities and PQC-signed session tokens.
package pqcoracle

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"

	"github.com/dmitrijs2005/safelog/internal/filex"
)

// Signer holds the oracle's own key pair.
type Signer struct {
	pub  *mldsa44.PublicKey
	priv *mldsa44.PrivateKey
}

// NewSigner derives the key pair deterministically from seed.
func NewSigner(seed [mldsa44.SeedSize]byte) *Signer {
	pub, priv := mldsa44.NewKeyFromSeed(&seed)
	return &Signer{pub: pub, priv: priv}
}

// LoadSeed reads a hex seed from path. A missing file is created with a
// fresh random seed so restarts keep the same key. An empty path yields an
// ephemeral random seed.
func LoadSeed(path string) ([mldsa44.SeedSize]byte, error) {
	var seed [mldsa44.SeedSize]byte
	if path == "" {
		_, err := rand.Read(seed[:])
		return seed, err
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return seed, fmt.Errorf("seed file %s: %w", path, err)
		}
		if len(b) != mldsa44.SeedSize {
			return seed, fmt.Errorf("seed file %s: want %d bytes, got %d", path, mldsa44.SeedSize, len(b))
		}
		copy(seed[:], b)
		return seed, nil
	case errors.Is(err, os.ErrNotExist):
		if _, err := rand.Read(seed[:]); err != nil {
			return seed, err
		}
		if err := filex.WriteFileAtomic(path, []byte(hex.EncodeToString(seed[:])), 0o600); err != nil {
			return seed, fmt.Errorf("write seed file: %w", err)
		}
		return seed, nil
	default:
		return seed, err
	}
}

// PublicKeyHex is the hex encoding of the oracle public key.
func (s *Signer) PublicKeyHex() string {
	b, _ := s.pub.MarshalBinary()
	return hex.EncodeToString(b)
}

// Sign returns the hex ML-DSA-44 signature of message.
func (s *Signer) Sign(message []byte) (string, error) {
	sig := make([]byte, mldsa44.SignatureSize)
	if err := mldsa44.SignTo(s.priv, message, nil, true, sig); err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// Verify checks a hex signature against a hex public key. Malformed input
// is an error, a well-formed but wrong signature is false.
func Verify(message []byte, signatureHex, publicKeyHex string) (bool, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return false, fmt.Errorf("signature: %w", err)
	}
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return false, fmt.Errorf("public key: %w", err)
	}
	if len(pkBytes) != mldsa44.PublicKeySize {
		return false, fmt.Errorf("public key: want %d bytes, got %d", mldsa44.PublicKeySize, len(pkBytes))
	}

	var pk mldsa44.PublicKey
	if err := pk.UnmarshalBinary(pkBytes); err != nil {
		return false, fmt.Errorf("public key: %w", err)
	}
	return mldsa44.Verify(&pk, message, nil, sig), nil
}
