// Package cryptox implements the client-side envelope encryption used for
// vault secrets. The server only ever stores the hex output of Seal.
//
// Each secret gets a random data key. The data key encrypts the payload
// and is itself sealed under the owner's vault key, which is derived from
// a wallet signature over VaultKeyMessage.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"golang.org/x/crypto/argon2"

	"github.com/dmitrijs2005/safelog/internal/common"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// VaultKeyMessage is signed by the wallet to derive the vault key.
const VaultKeyMessage = "Unlock " + common.AppName + " vault"

var (
	ErrMalformed        = errors.New("malformed ciphertext")
	ErrInvalidPublicKey = errors.New("invalid encryption public key")
)

// DeriveMasterKey stretches secret material into a 32-byte key with
// Argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// DeriveVaultKey turns the wallet's signature over VaultKeyMessage into the
// owner's vault key. The address salts the derivation.
func DeriveVaultKey(signature []byte, address string) []byte {
	return DeriveMasterKey(signature, []byte(strings.ToLower(address)))
}

// NewDataKey returns a fresh random per-secret key.
func NewDataKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with AES-GCM and returns hex(nonce || ciphertext).
func Seal(plaintext, key []byte) (string, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	out := aesgcm.Seal(nonce, nonce, plaintext, nil)
	return hex.EncodeToString(out), nil
}

// Open reverses Seal.
func Open(sealed string, key []byte) ([]byte, error) {
	raw, err := hex.DecodeString(sealed)
	if err != nil {
		return nil, ErrMalformed
	}
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aesgcm.NonceSize() {
		return nil, ErrMalformed
	}
	nonce, ciphertext := raw[:aesgcm.NonceSize()], raw[aesgcm.NonceSize():]
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// Envelope is a sealed payload plus its data key sealed for one reader.
type Envelope struct {
	EncryptedData string
	EncryptedKey  string
}

// SealSecret encrypts plaintext under a new data key wrapped with vaultKey.
func SealSecret(plaintext, vaultKey []byte) (*Envelope, error) {
	dataKey := NewDataKey()
	defer common.WipeByteArray(dataKey)

	data, err := Seal(plaintext, dataKey)
	if err != nil {
		return nil, err
	}
	key, err := Seal(dataKey, vaultKey)
	if err != nil {
		return nil, err
	}
	return &Envelope{EncryptedData: data, EncryptedKey: key}, nil
}

// OpenSecret unwraps the data key with vaultKey and decrypts the payload.
func OpenSecret(env Envelope, vaultKey []byte) ([]byte, error) {
	dataKey, err := Open(env.EncryptedKey, vaultKey)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(dataKey)
	return Open(env.EncryptedData, dataKey)
}

// SealForPublicKey encrypts a data key to another user's secp256k1
// encryption key (ECIES). Only the holder of the matching private key can
// recover it. The result is hex encoded.
func SealForPublicKey(dataKey []byte, publicKeyHex string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(publicKeyHex), "0x"))
	if err != nil {
		return "", ErrInvalidPublicKey
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return "", ErrInvalidPublicKey
	}
	ct, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), dataKey, nil, nil)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ct), nil
}
