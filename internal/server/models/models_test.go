package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNonce_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &Nonce{ExpiresAt: now.Add(5 * time.Minute)}

	assert.False(t, n.Expired(now))
	assert.False(t, n.Expired(now.Add(5*time.Minute-time.Nanosecond)))
	assert.True(t, n.Expired(now.Add(5*time.Minute)))
}

func TestAccessGrant_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(time.Minute)

	assert.False(t, (&AccessGrant{}).Expired(now.Add(100*365*24*time.Hour)), "nil expiry never expires")
	assert.False(t, (&AccessGrant{ExpiresAt: &exp}).Expired(now))
	assert.True(t, (&AccessGrant{ExpiresAt: &exp}).Expired(exp))
}

func TestSecretType_Valid(t *testing.T) {
	for _, st := range []SecretType{SecretTypeStandard, SecretTypeSignedDocument, SecretTypeFile} {
		assert.True(t, st.Valid(), st)
	}
	assert.False(t, SecretType("note").Valid())
	assert.False(t, SecretType("").Valid())
}
