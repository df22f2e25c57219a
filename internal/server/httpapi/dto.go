package httpapi

import (
	"time"

	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/models"
	"github.com/dmitrijs2005/safelog/internal/server/services"
)

type userResponse struct {
	Address             string        `json:"address"`
	Kind                identity.Kind `json:"kind"`
	Username            string        `json:"username"`
	EncryptionPublicKey string        `json:"encryption_public_key"`
	CreatedAt           time.Time     `json:"created_at"`
}

func toUser(u *models.User) userResponse {
	return userResponse{
		Address:             u.Address,
		Kind:                u.Kind,
		Username:            u.Username,
		EncryptionPublicKey: u.EncryptionPublicKey,
		CreatedAt:           u.CreatedAt,
	}
}

type secretResponse struct {
	ID            int64             `json:"id"`
	OwnerAddress  string            `json:"owner_address"`
	Name          string            `json:"name"`
	Type          models.SecretType `json:"type"`
	EncryptedData string            `json:"encrypted_data"`
	EncryptedKey  string            `json:"encrypted_key,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func toSecret(s *models.Secret) secretResponse {
	return secretResponse{
		ID:            s.ID,
		OwnerAddress:  s.OwnerAddress,
		Name:          s.Name,
		Type:          s.Type,
		EncryptedData: s.EncryptedData,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func toSecretWithKey(s *models.SecretWithKey) secretResponse {
	out := toSecret(&s.Secret)
	out.EncryptedKey = s.EncryptedKey
	out.ExpiresAt = s.ExpiresAt
	return out
}

type grantResponse struct {
	ID             int64             `json:"id"`
	SecretID       int64             `json:"secret_id"`
	GranteeAddress string            `json:"grantee_address"`
	EncryptedKey   string            `json:"encrypted_key"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      *time.Time        `json:"expires_at"`
	SecretName     string            `json:"secret_name,omitempty"`
	SecretType     models.SecretType `json:"secret_type,omitempty"`
	OwnerAddress   string            `json:"owner_address,omitempty"`
}

func toGrant(g *models.AccessGrant) grantResponse {
	return grantResponse{
		ID:             g.ID,
		SecretID:       g.SecretID,
		GranteeAddress: g.GranteeAddress,
		EncryptedKey:   g.EncryptedKey,
		CreatedAt:      g.CreatedAt,
		ExpiresAt:      g.ExpiresAt,
	}
}

type chunkResponse struct {
	SecretID      int64     `json:"secret_id"`
	Index         int       `json:"chunk_index"`
	IV            string    `json:"iv"`
	Size          int64     `json:"size"`
	EncryptedData string    `json:"encrypted_data,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toChunk(c *models.Chunk, data string) chunkResponse {
	return chunkResponse{
		SecretID:      c.SecretID,
		Index:         c.Index,
		IV:            c.IV,
		Size:          c.Size,
		EncryptedData: data,
		CreatedAt:     c.CreatedAt,
	}
}

type signerResponse struct {
	UserAddress  string     `json:"user_address"`
	HasSigned    bool       `json:"has_signed"`
	Signature    string     `json:"signature,omitempty"`
	SignedAt     *time.Time `json:"signed_at,omitempty"`
	EncryptedKey string     `json:"encrypted_key,omitempty"`
}

type recipientResponse struct {
	UserAddress  string  `json:"user_address"`
	EncryptedKey *string `json:"encrypted_key,omitempty"`
}

type workflowResponse struct {
	ID           int64                 `json:"id"`
	Name         string                `json:"name"`
	OwnerAddress string                `json:"owner_address"`
	SecretID     int64                 `json:"secret_id"`
	Status       models.WorkflowStatus `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	Signers      []signerResponse      `json:"signers"`
	Recipients   []recipientResponse   `json:"recipients"`
}

func toWorkflow(wf *models.Workflow) workflowResponse {
	out := workflowResponse{
		ID:           wf.ID,
		Name:         wf.Name,
		OwnerAddress: wf.OwnerAddress,
		SecretID:     wf.SecretID,
		Status:       wf.Status,
		CreatedAt:    wf.CreatedAt,
		Signers:      make([]signerResponse, 0, len(wf.Signers)),
		Recipients:   make([]recipientResponse, 0, len(wf.Recipients)),
	}
	for _, sg := range wf.Signers {
		out.Signers = append(out.Signers, signerResponse{
			UserAddress:  sg.UserAddress,
			HasSigned:    sg.HasSigned,
			Signature:    sg.Signature,
			SignedAt:     sg.SignedAt,
			EncryptedKey: sg.EncryptedKey,
		})
	}
	for _, rc := range wf.Recipients {
		out.Recipients = append(out.Recipients, recipientResponse{UserAddress: rc.UserAddress, EncryptedKey: rc.EncryptedKey})
	}
	return out
}

type messageResponse struct {
	ID               int64     `json:"id"`
	SenderAddress    string    `json:"sender_address"`
	RecipientAddress string    `json:"recipient_address"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
	IsRead           bool      `json:"is_read"`
}

func toMessage(m *models.Message) messageResponse {
	return messageResponse{
		ID:               m.ID,
		SenderAddress:    m.SenderAddress,
		RecipientAddress: m.RecipientAddress,
		Content:          m.Content,
		CreatedAt:        m.CreatedAt,
		IsRead:           m.IsRead,
	}
}

type conversationResponse struct {
	PartnerAddress  string    `json:"partner_address"`
	PartnerUsername string    `json:"partner_username"`
	LastMessage     string    `json:"last_message"`
	LastMessageAt   time.Time `json:"last_message_at"`
	UnreadCount     int       `json:"unread_count"`
}

type secretRequest struct {
	Name          string            `json:"name"`
	Type          models.SecretType `json:"type"`
	EncryptedData string            `json:"encrypted_data"`
	EncryptedKey  string            `json:"encrypted_key"`
}

func (r secretRequest) input() services.SecretInput {
	return services.SecretInput{Name: r.Name, Type: r.Type, EncryptedData: r.EncryptedData, EncryptedKey: r.EncryptedKey}
}

// partyRequest names a signer or recipient together with the secret key
// encrypted for them.
type partyRequest struct {
	Address      string `json:"address"`
	EncryptedKey string `json:"encrypted_key"`
}

func partyKeys(parties []partyRequest) ([]string, map[string]string) {
	addrs := make([]string, 0, len(parties))
	keys := make(map[string]string, len(parties))
	for _, p := range parties {
		addrs = append(addrs, p.Address)
		if p.EncryptedKey != "" {
			keys[p.Address] = p.EncryptedKey
		}
	}
	return addrs, keys
}
