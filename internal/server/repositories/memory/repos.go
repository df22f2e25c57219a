package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, u *models.User) error {
	if _, ok := r.s.st.users[u.Address]; ok {
		return fmt.Errorf("%w: user exists", common.ErrConflict)
	}
	r.s.st.users[u.Address] = *u
	return nil
}

func (r *userRepo) Get(_ context.Context, address string) (*models.User, error) {
	u, ok := r.s.st.users[address]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *userRepo) Exists(_ context.Context, address string) (bool, error) {
	_, ok := r.s.st.users[address]
	return ok, nil
}

func (r *userRepo) UpdateEncryptionKey(_ context.Context, address, key string) error {
	u, ok := r.s.st.users[address]
	if !ok {
		return common.ErrorNotFound
	}
	u.EncryptionPublicKey = key
	r.s.st.users[address] = u
	return nil
}

func (r *userRepo) UpdateUsername(_ context.Context, address, username string) error {
	u, ok := r.s.st.users[address]
	if !ok {
		return common.ErrorNotFound
	}
	u.Username = username
	r.s.st.users[address] = u
	return nil
}

func (r *userRepo) Search(_ context.Context, query string, limit, offset int) ([]models.User, error) {
	q := strings.ToLower(query)
	var all []models.User
	for _, u := range r.s.st.users {
		if q == "" || strings.Contains(u.Address, q) || strings.Contains(strings.ToLower(u.Username), q) {
			all = append(all, u)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].Address < all[j].Address
	})
	return page(all, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type nonceRepo struct{ s *Store }

func (r *nonceRepo) Upsert(_ context.Context, n *models.Nonce) error {
	r.s.st.nonces[n.Address] = *n
	return nil
}

func (r *nonceRepo) GetForUpdate(_ context.Context, address string) (*models.Nonce, error) {
	n, ok := r.s.st.nonces[address]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &n, nil
}

func (r *nonceRepo) Delete(_ context.Context, address string) error {
	delete(r.s.st.nonces, address)
	return nil
}

func (r *nonceRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for addr, nonce := range r.s.st.nonces {
		if nonce.Expired(now) {
			delete(r.s.st.nonces, addr)
			n++
		}
	}
	return n, nil
}

type secretRepo struct{ s *Store }

func (r *secretRepo) Create(_ context.Context, sec *models.Secret) error {
	r.s.st.nextSecret++
	sec.ID = r.s.st.nextSecret
	r.s.st.secrets[sec.ID] = *sec
	return nil
}

func (r *secretRepo) Get(_ context.Context, id int64) (*models.Secret, error) {
	sec, ok := r.s.st.secrets[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &sec, nil
}

func (r *secretRepo) Update(_ context.Context, id int64, name, encryptedData string, now time.Time) error {
	sec, ok := r.s.st.secrets[id]
	if !ok {
		return common.ErrorNotFound
	}
	sec.Name, sec.EncryptedData, sec.UpdatedAt = name, encryptedData, now
	r.s.st.secrets[id] = sec
	return nil
}

// Delete mirrors the ON DELETE CASCADE foreign keys of the SQL schema.
func (r *secretRepo) Delete(_ context.Context, id int64) error {
	st := r.s.st
	if _, ok := st.secrets[id]; !ok {
		return common.ErrorNotFound
	}
	delete(st.secrets, id)
	for gid, g := range st.grants {
		if g.SecretID == id {
			delete(st.grants, gid)
		}
	}
	for k := range st.chunks {
		if k.secretID == id {
			delete(st.chunks, k)
		}
	}
	for wid, w := range st.workflows {
		if w.SecretID != id {
			continue
		}
		delete(st.workflows, wid)
		for k := range st.signers {
			if k.id == wid {
				delete(st.signers, k)
			}
		}
		for k := range st.recipients {
			if k.id == wid {
				delete(st.recipients, k)
			}
		}
	}
	return nil
}

func (r *secretRepo) ListOwned(_ context.Context, owner string) ([]models.SecretWithKey, error) {
	var out []models.SecretWithKey
	for _, g := range r.s.st.grants {
		if g.GranteeAddress != owner {
			continue
		}
		sec, ok := r.s.st.secrets[g.SecretID]
		if !ok || sec.OwnerAddress != owner {
			continue
		}
		out = append(out, models.SecretWithKey{Secret: sec, EncryptedKey: g.EncryptedKey, ExpiresAt: g.ExpiresAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type grantRepo struct{ s *Store }

func (r *grantRepo) findPair(secretID int64, grantee string) (models.AccessGrant, bool) {
	for _, g := range r.s.st.grants {
		if g.SecretID == secretID && g.GranteeAddress == grantee {
			return g, true
		}
	}
	return models.AccessGrant{}, false
}

func (r *grantRepo) insert(g *models.AccessGrant) {
	r.s.st.nextGrant++
	g.ID = r.s.st.nextGrant
	r.s.st.grants[g.ID] = *g
}

func (r *grantRepo) Create(_ context.Context, g *models.AccessGrant) error {
	if _, ok := r.findPair(g.SecretID, g.GranteeAddress); ok {
		return fmt.Errorf("%w: grant exists", common.ErrConflict)
	}
	r.insert(g)
	return nil
}

func (r *grantRepo) CreateIfAbsent(_ context.Context, g *models.AccessGrant) (bool, error) {
	if _, ok := r.findPair(g.SecretID, g.GranteeAddress); ok {
		return false, nil
	}
	r.insert(g)
	return true, nil
}

func (r *grantRepo) Get(_ context.Context, id int64) (*models.AccessGrant, error) {
	g, ok := r.s.st.grants[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &g, nil
}

func (r *grantRepo) Find(_ context.Context, secretID int64, grantee string) (*models.AccessGrant, error) {
	g, ok := r.findPair(secretID, grantee)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &g, nil
}

func (r *grantRepo) Delete(_ context.Context, id int64) error {
	delete(r.s.st.grants, id)
	return nil
}

func (r *grantRepo) DeleteFor(_ context.Context, secretID int64, grantee string) error {
	if g, ok := r.findPair(secretID, grantee); ok {
		delete(r.s.st.grants, g.ID)
	}
	return nil
}

func (r *grantRepo) DeleteBySecret(_ context.Context, secretID int64) error {
	for id, g := range r.s.st.grants {
		if g.SecretID == secretID {
			delete(r.s.st.grants, id)
		}
	}
	return nil
}

func (r *grantRepo) ListBySecret(_ context.Context, secretID int64) ([]models.AccessGrant, error) {
	var out []models.AccessGrant
	for _, g := range r.s.st.grants {
		if g.SecretID == secretID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *grantRepo) ListSharedWith(_ context.Context, grantee string) ([]models.SharedGrant, error) {
	var out []models.SharedGrant
	for _, g := range r.s.st.grants {
		if g.GranteeAddress != grantee {
			continue
		}
		sec, ok := r.s.st.secrets[g.SecretID]
		if !ok || sec.OwnerAddress == grantee {
			continue
		}
		out = append(out, models.SharedGrant{
			AccessGrant: g, SecretName: sec.Name, SecretType: sec.Type, OwnerAddress: sec.OwnerAddress,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type chunkRepo struct{ s *Store }

func (r *chunkRepo) Upsert(_ context.Context, c *models.Chunk) error {
	r.s.st.chunks[chunkKey{c.SecretID, c.Index}] = *c
	return nil
}

func (r *chunkRepo) Get(_ context.Context, secretID int64, index int) (*models.Chunk, error) {
	c, ok := r.s.st.chunks[chunkKey{secretID, index}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}

func (r *chunkRepo) List(_ context.Context, secretID int64) ([]models.Chunk, error) {
	var out []models.Chunk
	for k, c := range r.s.st.chunks {
		if k.secretID == secretID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *chunkRepo) TotalSize(_ context.Context, secretID int64, excludeIndex int) (int64, error) {
	var total int64
	for k, c := range r.s.st.chunks {
		if k.secretID == secretID && k.index != excludeIndex {
			total += c.Size
		}
	}
	return total, nil
}

func (r *chunkRepo) DeleteBySecret(_ context.Context, secretID int64) error {
	for k := range r.s.st.chunks {
		if k.secretID == secretID {
			delete(r.s.st.chunks, k)
		}
	}
	return nil
}

type multisigRepo struct{ s *Store }

func (r *multisigRepo) CreateWorkflow(_ context.Context, w *models.Workflow) error {
	r.s.st.nextWorkflow++
	w.ID = r.s.st.nextWorkflow
	row := *w
	row.Signers, row.Recipients = nil, nil
	r.s.st.workflows[w.ID] = row
	return nil
}

func (r *multisigRepo) AddSigner(_ context.Context, sg *models.Signer) error {
	k := pairKey{sg.WorkflowID, sg.UserAddress}
	if _, ok := r.s.st.signers[k]; ok {
		return fmt.Errorf("%w: duplicate signer", common.ErrValidation)
	}
	row := *sg
	row.HasSigned, row.Signature, row.SignedAt = false, "", nil
	r.s.st.signers[k] = row
	return nil
}

func (r *multisigRepo) AddRecipient(_ context.Context, rc *models.Recipient) error {
	k := pairKey{rc.WorkflowID, rc.UserAddress}
	if _, ok := r.s.st.recipients[k]; ok {
		return fmt.Errorf("%w: duplicate recipient", common.ErrValidation)
	}
	r.s.st.recipients[k] = *rc
	return nil
}

func (r *multisigRepo) GetWorkflow(_ context.Context, id int64) (*models.Workflow, error) {
	w, ok := r.s.st.workflows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &w, nil
}

// LockWorkflow needs no extra locking: the store mutex is already held.
func (r *multisigRepo) LockWorkflow(ctx context.Context, id int64) (*models.Workflow, error) {
	return r.GetWorkflow(ctx, id)
}

func (r *multisigRepo) ListSigners(_ context.Context, workflowID int64) ([]models.Signer, error) {
	var out []models.Signer
	for k, sg := range r.s.st.signers {
		if k.id == workflowID {
			out = append(out, sg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserAddress < out[j].UserAddress })
	return out, nil
}

func (r *multisigRepo) ListRecipients(_ context.Context, workflowID int64) ([]models.Recipient, error) {
	var out []models.Recipient
	for k, rc := range r.s.st.recipients {
		if k.id == workflowID {
			out = append(out, rc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserAddress < out[j].UserAddress })
	return out, nil
}

func (r *multisigRepo) MarkSigned(_ context.Context, workflowID int64, signer, signature string, at time.Time) error {
	k := pairKey{workflowID, signer}
	sg, ok := r.s.st.signers[k]
	if !ok || sg.HasSigned {
		return common.ErrorNotFound
	}
	sg.HasSigned, sg.Signature, sg.SignedAt = true, signature, &at
	r.s.st.signers[k] = sg
	return nil
}

func (r *multisigRepo) SetRecipientKey(_ context.Context, workflowID int64, recipient, key string) (bool, error) {
	k := pairKey{workflowID, recipient}
	rc, ok := r.s.st.recipients[k]
	if !ok {
		return false, nil
	}
	rc.EncryptedKey = &key
	r.s.st.recipients[k] = rc
	return true, nil
}

func (r *multisigRepo) Complete(_ context.Context, workflowID int64) (bool, error) {
	w, ok := r.s.st.workflows[workflowID]
	if !ok || w.Status != models.WorkflowPending {
		return false, nil
	}
	w.Status = models.WorkflowCompleted
	r.s.st.workflows[workflowID] = w
	return true, nil
}

func (r *multisigRepo) ListVisible(_ context.Context, address string) ([]models.Workflow, error) {
	var out []models.Workflow
	for id, w := range r.s.st.workflows {
		_, signer := r.s.st.signers[pairKey{id, address}]
		_, recipient := r.s.st.recipients[pairKey{id, address}]
		if w.OwnerAddress == address || signer || (recipient && w.Status == models.WorkflowCompleted) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(_ context.Context, m *models.Message) error {
	r.s.st.nextMessage++
	m.ID = r.s.st.nextMessage
	m.IsRead = false
	r.s.st.messages = append(r.s.st.messages, *m)
	return nil
}

func (r *messageRepo) Conversations(_ context.Context, address string) ([]models.Conversation, error) {
	byPartner := map[string]*models.Conversation{}
	for _, m := range r.s.st.messages {
		var partner string
		switch address {
		case m.SenderAddress:
			partner = m.RecipientAddress
		case m.RecipientAddress:
			partner = m.SenderAddress
		default:
			continue
		}
		c, ok := byPartner[partner]
		if !ok {
			c = &models.Conversation{PartnerAddress: partner}
			if u, ok := r.s.st.users[partner]; ok {
				c.PartnerUsername = u.Username
			}
			byPartner[partner] = c
		}
		// messages are appended in id order, so the last one seen wins
		if !m.CreatedAt.Before(c.LastMessageAt) {
			c.LastMessage, c.LastMessageAt = m.Content, m.CreatedAt
		}
		if m.RecipientAddress == address && !m.IsRead {
			c.UnreadCount++
		}
	}
	out := make([]models.Conversation, 0, len(byPartner))
	for _, c := range byPartner {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (r *messageRepo) History(_ context.Context, a, b string) ([]models.Message, error) {
	var out []models.Message
	for _, m := range r.s.st.messages {
		if (m.SenderAddress == a && m.RecipientAddress == b) || (m.SenderAddress == b && m.RecipientAddress == a) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *messageRepo) MarkRead(_ context.Context, reader, partner string) (int64, error) {
	var n int64
	for i := range r.s.st.messages {
		m := &r.s.st.messages[i]
		if m.RecipientAddress == reader && m.SenderAddress == partner && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}
