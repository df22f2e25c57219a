package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/models"
	"github.com/dmitrijs2005/safelog/internal/server/notify"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// MessageService relays end-to-end encrypted direct messages.
type MessageService struct {
	Deps
	limits Limits
}

func NewMessageService(d Deps, limits Limits) *MessageService {
	return &MessageService{Deps: d.withModule("messages"), limits: limits}
}

// Send stores content from caller to recipient and notifies both sides.
func (s *MessageService) Send(ctx context.Context, caller, recipient, content string) (*models.Message, error) {
	sender := identity.Normalize(caller)
	recipient = identity.Normalize(recipient)
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty message", common.ErrValidation)
	}
	if err := s.limits.checkPayload("content", content); err != nil {
		return nil, err
	}

	m := &models.Message{
		SenderAddress:    sender,
		RecipientAddress: recipient,
		Content:          content,
	}
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := s.Repos.Users(tx).Exists(ctx, recipient)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("recipient: %w", common.ErrorNotFound)
		}
		m.CreatedAt = s.Clock.Now()
		return s.Repos.Messages(tx).Create(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	n := notify.Notification{
		Type:  notify.TypeNewMessage,
		Title: "New message",
		Body:  sender,
		Data: map[string]any{
			"id":                m.ID,
			"sender_address":    m.SenderAddress,
			"recipient_address": m.RecipientAddress,
			"content":           m.Content,
			"created_at":        m.CreatedAt,
		},
	}
	addrs := []string{recipient}
	if sender != recipient {
		addrs = append(addrs, sender)
	}
	notifyAll(ctx, s.Notifier, n, addrs...)
	return m, nil
}

func (s *MessageService) Conversations(ctx context.Context, caller string) ([]models.Conversation, error) {
	var out []models.Conversation
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = s.Repos.Messages(tx).Conversations(ctx, identity.Normalize(caller))
		return err
	})
	return out, err
}

// History returns up to limit messages with partner, skipping the offset
// newest ones, oldest first.
func (s *MessageService) History(ctx context.Context, caller, partner string, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	var all []models.Message
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		all, err = s.Repos.Messages(tx).History(ctx, identity.Normalize(caller), identity.Normalize(partner))
		return err
	})
	if err != nil {
		return nil, err
	}

	end := len(all) - offset
	if end <= 0 {
		return []models.Message{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return all[start:end], nil
}

// MarkRead marks everything partner sent to caller as read.
func (s *MessageService) MarkRead(ctx context.Context, caller, partner string) (int64, error) {
	var n int64
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = s.Repos.Messages(tx).MarkRead(ctx, identity.Normalize(caller), identity.Normalize(partner))
		return err
	})
	return n, err
}
