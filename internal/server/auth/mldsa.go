package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethodMLDSA44 delegates signing and verification to the oracle.
// The signature segment holds the raw ML-DSA-44 signature bytes.
var SigningMethodMLDSA44 = &signingMethodOracle{alg: "ML-DSA-44"}

func init() {
	jwt.RegisterSigningMethod(SigningMethodMLDSA44.Alg(), func() jwt.SigningMethod {
		return SigningMethodMLDSA44
	})
}

var errBadOracleKey = errors.New("key must be *oracleKey")

type oracleKey struct {
	ctx       context.Context
	oracle    Oracle
	publicKey string
}

type signingMethodOracle struct {
	alg string
}

func (m *signingMethodOracle) Alg() string { return m.alg }

func (m *signingMethodOracle) Sign(signingString string, key any) ([]byte, error) {
	k, ok := key.(*oracleKey)
	if !ok {
		return nil, errBadOracleKey
	}
	sigHex, err := k.oracle.Sign(k.ctx, signingString)
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, fmt.Errorf("oracle signature: %w", err)
	}
	return sig, nil
}

func (m *signingMethodOracle) Verify(signingString string, sig []byte, key any) error {
	k, ok := key.(*oracleKey)
	if !ok {
		return errBadOracleKey
	}
	valid, err := k.oracle.Verify(k.ctx, signingString, hex.EncodeToString(sig), k.publicKey)
	if err != nil {
		return err
	}
	if !valid {
		return jwt.ErrSignatureInvalid
	}
	return nil
}
