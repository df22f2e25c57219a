package client

import "time"

type NonceChallenge struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

type LoginRequest struct {
	Address             string `json:"address"`
	Nonce               string `json:"nonce"`
	Signature           string `json:"signature"`
	EncryptionPublicKey string `json:"encryption_public_key,omitempty"`
	Username            string `json:"username,omitempty"`
}

type User struct {
	Address             string    `json:"address"`
	Kind                string    `json:"kind"`
	Username            string    `json:"username"`
	EncryptionPublicKey string    `json:"encryption_public_key"`
	CreatedAt           time.Time `json:"created_at"`
}

type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
	User        User   `json:"user"`
}

type Secret struct {
	ID            int64      `json:"id"`
	OwnerAddress  string     `json:"owner_address"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	EncryptedData string     `json:"encrypted_data"`
	EncryptedKey  string     `json:"encrypted_key,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type SecretInput struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	EncryptedData string `json:"encrypted_data"`
	EncryptedKey  string `json:"encrypted_key"`
}

type ShareInput struct {
	SecretID       int64  `json:"secret_id"`
	GranteeAddress string `json:"grantee_address"`
	EncryptedKey   string `json:"encrypted_key"`
	// ExpiresIn is a TTL in seconds; nil never expires.
	ExpiresIn *int64 `json:"expires_in,omitempty"`
}

type Grant struct {
	ID             int64      `json:"id"`
	SecretID       int64      `json:"secret_id"`
	GranteeAddress string     `json:"grantee_address"`
	EncryptedKey   string     `json:"encrypted_key"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	SecretName     string     `json:"secret_name,omitempty"`
	SecretType     string     `json:"secret_type,omitempty"`
	OwnerAddress   string     `json:"owner_address,omitempty"`
}

type Signer struct {
	UserAddress  string     `json:"user_address"`
	HasSigned    bool       `json:"has_signed"`
	Signature    string     `json:"signature,omitempty"`
	SignedAt     *time.Time `json:"signed_at,omitempty"`
	EncryptedKey string     `json:"encrypted_key,omitempty"`
}

type Recipient struct {
	UserAddress  string  `json:"user_address"`
	EncryptedKey *string `json:"encrypted_key,omitempty"`
}

type Workflow struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	OwnerAddress string      `json:"owner_address"`
	SecretID     int64       `json:"secret_id"`
	Status       string      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	Signers      []Signer    `json:"signers"`
	Recipients   []Recipient `json:"recipients"`
}

// Pending reports whether addr still has to sign wf.
func (wf *Workflow) Pending(addr string) bool {
	if wf.Status != "pending" {
		return false
	}
	for _, s := range wf.Signers {
		if s.UserAddress == addr {
			return !s.HasSigned
		}
	}
	return false
}
