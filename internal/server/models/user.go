// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/dmitrijs2005/safelog/internal/server/identity"
)

// User is a principal keyed by its normalized address. Kind is fixed at
// first login and never re-derived from the address afterwards.
type User struct {
	Address             string
	Kind                identity.Kind
	Username            string
	EncryptionPublicKey string
	CreatedAt           time.Time
}

// Nonce is the single live login challenge for an address.
type Nonce struct {
	Address   string
	Value     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the nonce can no longer be used at now.
func (n *Nonce) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}
