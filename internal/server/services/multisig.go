package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/access"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/models"
	"github.com/dmitrijs2005/safelog/internal/server/notify"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/multisig"
)

// WorkflowInput creates a secret whose release to Recipients needs every
// Signer to sign. Key maps are keyed by address.
type WorkflowInput struct {
	Name          string
	Secret        SecretInput
	Signers       []string
	Recipients    []string
	SignerKeys    map[string]string
	RecipientKeys map[string]string
}

// MultisigService drives the N-of-N release state machine:
// pending -> completed, exactly once, on the last signature.
type MultisigService struct {
	Deps
	limits Limits
}

func NewMultisigService(d Deps, limits Limits) *MultisigService {
	return &MultisigService{Deps: d.withModule("multisig"), limits: limits}
}

func normalizeSet(field string, raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		a = identity.Normalize(a)
		if a == "" {
			return nil, fmt.Errorf("%w: empty %s address", common.ErrValidation, field)
		}
		if seen[a] {
			return nil, fmt.Errorf("%w: duplicate %s %s", common.ErrValidation, field, a)
		}
		seen[a] = true
		out = append(out, a)
	}
	return out, nil
}

func normalizeKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[identity.Normalize(k)] = v
	}
	return out
}

func (s *MultisigService) validate(in *WorkflowInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: workflow name is required", common.ErrValidation)
	}
	if err := s.limits.validateSecret(&in.Secret); err != nil {
		return err
	}

	var err error
	if in.Signers, err = normalizeSet("signer", in.Signers); err != nil {
		return err
	}
	if len(in.Signers) == 0 {
		return fmt.Errorf("%w: at least one signer is required", common.ErrValidation)
	}
	if in.Recipients, err = normalizeSet("recipient", in.Recipients); err != nil {
		return err
	}

	in.SignerKeys = normalizeKeys(in.SignerKeys)
	in.RecipientKeys = normalizeKeys(in.RecipientKeys)
	for _, m := range []map[string]string{in.SignerKeys, in.RecipientKeys} {
		for _, v := range m {
			if err := s.limits.checkPayload("encrypted_key", v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Create stores the secret, the owner grant, the workflow and its fixed
// signer and recipient sets in one transaction.
func (s *MultisigService) Create(ctx context.Context, caller string, in WorkflowInput) (*models.Workflow, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	owner := identity.Normalize(caller)

	var wf *models.Workflow
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.Repos.Users(tx)
		repo := s.Repos.Multisig(tx)

		for _, a := range append(append([]string{}, in.Signers...), in.Recipients...) {
			ok, err := users.Exists(ctx, a)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("user %s: %w", a, common.ErrorNotFound)
			}
		}

		sec, err := createOwned(ctx, access.ReposFor(s.Repos, tx), owner, in.Secret, s.Deps)
		if err != nil {
			return err
		}

		wf = &models.Workflow{
			Name:         in.Name,
			OwnerAddress: owner,
			SecretID:     sec.ID,
			Status:       models.WorkflowPending,
			CreatedAt:    s.Clock.Now(),
		}
		if err := repo.CreateWorkflow(ctx, wf); err != nil {
			return err
		}

		for _, a := range in.Signers {
			sg := models.Signer{WorkflowID: wf.ID, UserAddress: a, EncryptedKey: in.SignerKeys[a]}
			if err := repo.AddSigner(ctx, &sg); err != nil {
				return err
			}
			wf.Signers = append(wf.Signers, sg)
		}
		for _, a := range in.Recipients {
			rc := models.Recipient{WorkflowID: wf.ID, UserAddress: a}
			if k, ok := in.RecipientKeys[a]; ok && k != "" {
				rc.EncryptedKey = &k
			}
			if err := repo.AddRecipient(ctx, &rc); err != nil {
				return err
			}
			wf.Recipients = append(wf.Recipients, rc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info(ctx, "workflow created", "workflow_id", wf.ID, "owner", owner, "signers", len(wf.Signers))
	notifyAll(ctx, s.Notifier, notify.Notification{
		Type:  notify.TypeWorkflowCreated,
		Title: "Signature requested",
		Body:  wf.Name,
		Data:  map[string]any{"workflow_id": wf.ID},
	}, in.Signers...)
	return wf, nil
}

// Sign records caller's signature. recipientKeys, when given, fill in the
// recipients' encrypted keys. The signature that makes the set complete
// flips the workflow to completed and grants every recipient access.
func (s *MultisigService) Sign(ctx context.Context, caller string, workflowID int64, signature string, recipientKeys map[string]string) (*models.Workflow, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: signature is required", common.ErrValidation)
	}
	recipientKeys = normalizeKeys(recipientKeys)
	for _, v := range recipientKeys {
		if err := s.limits.checkPayload("encrypted_key", v); err != nil {
			return nil, err
		}
	}
	signer := identity.Normalize(caller)

	var (
		wf        *models.Workflow
		completed bool
	)
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.Repos.Multisig(tx)
		now := s.Clock.Now()

		locked, err := repo.LockWorkflow(ctx, workflowID)
		if err != nil {
			return fmt.Errorf("workflow: %w", err)
		}

		signers, err := repo.ListSigners(ctx, workflowID)
		if err != nil {
			return err
		}
		me := findSigner(signers, signer)
		if me == nil {
			return fmt.Errorf("%w: not a signer of this workflow", common.ErrForbidden)
		}
		if me.HasSigned {
			return common.ErrAlreadySigned
		}

		if err := repo.MarkSigned(ctx, workflowID, signer, signature, now); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAlreadySigned
			}
			return err
		}

		for addr, key := range recipientKeys {
			if key == "" {
				continue
			}
			if _, err := repo.SetRecipientKey(ctx, workflowID, addr, key); err != nil {
				return err
			}
		}

		if locked.Status == models.WorkflowPending {
			completed, err = s.completeIfAllSigned(ctx, repo, tx, locked)
			if err != nil {
				return err
			}
		}

		wf, err = loadWorkflow(ctx, repo, workflowID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info(ctx, "workflow signed", "workflow_id", workflowID, "signer", signer, "completed", completed)
	s.announce(ctx, wf, signer, completed)
	return wf, nil
}

// completeIfAllSigned seals the workflow once every signer has signed and
// materializes one grant per recipient. It runs under the workflow lock.
func (s *MultisigService) completeIfAllSigned(ctx context.Context, repo multisig.Repository, tx dbx.DBTX, wf *models.Workflow) (bool, error) {
	signers, err := repo.ListSigners(ctx, wf.ID)
	if err != nil {
		return false, err
	}
	for _, sg := range signers {
		if !sg.HasSigned {
			return false, nil
		}
	}

	recipients, err := repo.ListRecipients(ctx, wf.ID)
	if err != nil {
		return false, err
	}
	for _, rc := range recipients {
		if rc.EncryptedKey == nil || *rc.EncryptedKey == "" {
			return false, fmt.Errorf("%w: missing encrypted key for recipient %s", common.ErrValidation, rc.UserAddress)
		}
	}

	ok, err := repo.Complete(ctx, wf.ID)
	if err != nil || !ok {
		return false, err
	}

	grants := s.Repos.Grants(tx)
	now := s.Clock.Now()
	for _, rc := range recipients {
		// An expired grant for the pair is inert; replace it with the release grant.
		existing, err := grants.Find(ctx, wf.SecretID, rc.UserAddress)
		switch {
		case err == nil && existing.Expired(now):
			if err := grants.Delete(ctx, existing.ID); err != nil {
				return false, err
			}
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return false, err
		}
		if _, err := grants.CreateIfAbsent(ctx, &models.AccessGrant{
			SecretID:       wf.SecretID,
			GranteeAddress: rc.UserAddress,
			EncryptedKey:   *rc.EncryptedKey,
			CreatedAt:      now,
		}); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *MultisigService) announce(ctx context.Context, wf *models.Workflow, signer string, completed bool) {
	data := map[string]any{"workflow_id": wf.ID}

	audience := []string{wf.OwnerAddress}
	for _, sg := range wf.Signers {
		if sg.UserAddress != signer && sg.UserAddress != wf.OwnerAddress {
			audience = append(audience, sg.UserAddress)
		}
	}
	notifyAll(ctx, s.Notifier, notify.Notification{
		Type: notify.TypeWorkflowSigned, Title: "Workflow signed", Body: wf.Name, Data: data,
	}, audience...)

	if !completed {
		return
	}
	var recipients []string
	for _, rc := range wf.Recipients {
		recipients = append(recipients, rc.UserAddress)
	}
	notifyAll(ctx, s.Notifier, notify.Notification{
		Type: notify.TypeWorkflowCompleted, Title: "Secret released", Body: wf.Name, Data: data,
	}, recipients...)
}

// Get returns a workflow the caller may see. Owner and signers see it at
// any status; recipients only once completed. Anyone else gets
// common.ErrorNotFound so pending workflows stay invisible.
func (s *MultisigService) Get(ctx context.Context, caller string, id int64) (*models.Workflow, error) {
	caller = identity.Normalize(caller)

	var wf *models.Workflow
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		wf, err = loadWorkflow(ctx, s.Repos.Multisig(tx), id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	if !visible(wf, caller) {
		return nil, fmt.Errorf("workflow: %w", common.ErrorNotFound)
	}
	return redact(wf, caller), nil
}

// List returns every workflow visible to caller.
func (s *MultisigService) List(ctx context.Context, caller string) ([]models.Workflow, error) {
	caller = identity.Normalize(caller)

	var out []models.Workflow
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.Repos.Multisig(tx)
		list, err := repo.ListVisible(ctx, caller)
		if err != nil {
			return err
		}
		for _, w := range list {
			full, err := loadWorkflow(ctx, repo, w.ID)
			if err != nil {
				return err
			}
			out = append(out, *redact(full, caller))
		}
		return nil
	})
	return out, err
}

func loadWorkflow(ctx context.Context, repo multisig.Repository, id int64) (*models.Workflow, error) {
	wf, err := repo.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.Signers, err = repo.ListSigners(ctx, id); err != nil {
		return nil, err
	}
	if wf.Recipients, err = repo.ListRecipients(ctx, id); err != nil {
		return nil, err
	}
	return wf, nil
}

func findSigner(signers []models.Signer, address string) *models.Signer {
	for i := range signers {
		if signers[i].UserAddress == address {
			return &signers[i]
		}
	}
	return nil
}

func visible(wf *models.Workflow, caller string) bool {
	if wf.OwnerAddress == caller || findSigner(wf.Signers, caller) != nil {
		return true
	}
	if wf.Status != models.WorkflowCompleted {
		return false
	}
	for _, rc := range wf.Recipients {
		if rc.UserAddress == caller {
			return true
		}
	}
	return false
}

// redact hides other parties' key material from non-owners.
func redact(wf *models.Workflow, caller string) *models.Workflow {
	if wf.OwnerAddress == caller {
		return wf
	}
	out := *wf
	out.Signers = make([]models.Signer, len(wf.Signers))
	for i, sg := range wf.Signers {
		if sg.UserAddress != caller {
			sg.EncryptedKey = ""
		}
		out.Signers[i] = sg
	}
	out.Recipients = make([]models.Recipient, len(wf.Recipients))
	for i, rc := range wf.Recipients {
		if rc.UserAddress != caller {
			rc.EncryptedKey = nil
		}
		out.Recipients[i] = rc
	}
	return &out
}
