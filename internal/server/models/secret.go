package models

import "time"

// SecretType classifies what the opaque payload holds.
type SecretType string

const (
	SecretTypeStandard       SecretType = "standard"
	SecretTypeSignedDocument SecretType = "signed_document"
	SecretTypeFile           SecretType = "file"
)

// Valid reports whether t is a known secret type.
func (t SecretType) Valid() bool {
	switch t {
	case SecretTypeStandard, SecretTypeSignedDocument, SecretTypeFile:
		return true
	}
	return false
}

// Secret is an opaque ciphertext owned by one address. The server never
// sees the plaintext or the key.
type Secret struct {
	ID            int64
	OwnerAddress  string
	Name          string
	Type          SecretType
	EncryptedData string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccessGrant carries the secret key encrypted for one grantee. A nil
// ExpiresAt never expires.
type AccessGrant struct {
	ID             int64
	SecretID       int64
	GranteeAddress string
	EncryptedKey   string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
}

// Expired reports whether the grant is inert at now.
func (g *AccessGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// SecretWithKey pairs a secret with the caller's own encrypted key.
type SecretWithKey struct {
	Secret
	EncryptedKey string
	ExpiresAt    *time.Time
}

// SharedGrant is a grant on someone else's secret, with enough secret
// metadata for listing.
type SharedGrant struct {
	AccessGrant
	SecretName   string
	SecretType   SecretType
	OwnerAddress string
}

// Chunk is one encrypted slice of a file secret. The bytes live in blob
// storage under StorageKey.
type Chunk struct {
	SecretID   int64
	Index      int
	IV         string
	StorageKey string
	Size       int64
	CreatedAt  time.Time
}
