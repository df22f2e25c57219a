package models

import "time"

type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowCompleted WorkflowStatus = "completed"
)

// Workflow gates release of a secret on every signer approving it.
type Workflow struct {
	ID           int64
	Name         string
	OwnerAddress string
	SecretID     int64
	Status       WorkflowStatus
	CreatedAt    time.Time
	Signers      []Signer
	Recipients   []Recipient
}

type Signer struct {
	WorkflowID   int64
	UserAddress  string
	HasSigned    bool
	Signature    string
	SignedAt     *time.Time
	EncryptedKey string
}

// Recipient receives an access grant on completion. EncryptedKey may stay
// nil until a signer supplies it.
type Recipient struct {
	WorkflowID   int64
	UserAddress  string
	EncryptedKey *string
}
