// Package wallet holds the user's secp256k1 key and produces EIP-191
// personal_sign signatures the safelog server accepts.
package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
)

var ErrInvalidKey = errors.New("invalid private key")

type Wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

// FromHex parses a hex private key with or without the 0x prefix.
func FromHex(s string) (*Wallet, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return New(key), nil
}

// FromFile reads a hex private key from path.
func FromFile(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromHex(string(data))
}

// Generate creates a wallet with a fresh random key.
func Generate() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return New(key), nil
}

func New(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		key:     key,
		address: strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()),
	}
}

// Address is the lowercase 0x-prefixed account address.
func (w *Wallet) Address() string {
	return w.address
}

// PublicKeyHex is the uncompressed public key, used as the encryption key
// announced at login.
func (w *Wallet) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(crypto.FromECDSAPub(&w.key.PublicKey))
}

// SignBytes signs message with the personal_sign prefix and returns the raw
// 65-byte signature with V in 27/28 form.
func (w *Wallet) SignBytes(message string) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Sign is SignBytes encoded as 0x-prefixed hex.
func (w *Wallet) Sign(message string) (string, error) {
	sig, err := w.SignBytes(message)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// Decrypt opens a hex ECIES ciphertext addressed to this wallet's key.
func (w *Wallet) Decrypt(sealedHex string) ([]byte, error) {
	ct, err := hex.DecodeString(strings.TrimPrefix(sealedHex, "0x"))
	if err != nil {
		return nil, err
	}
	return ecies.ImportECDSA(w.key).Decrypt(ct, nil, nil)
}
