package messages

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (sender_address, recipient_address, content, created_at, is_read)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, m.SenderAddress, m.RecipientAddress, m.Content, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Conversations(ctx context.Context, address string) ([]models.Conversation, error) {
	query := `
		WITH mine AS (
			SELECT id,
			       CASE WHEN sender_address = $1 THEN recipient_address ELSE sender_address END AS partner,
			       content, created_at,
			       (recipient_address = $1 AND NOT is_read) AS unread
			FROM messages
			WHERE sender_address = $1 OR recipient_address = $1
		), last AS (
			SELECT DISTINCT ON (partner) partner, content, created_at,
			       COUNT(*) FILTER (WHERE unread) OVER (PARTITION BY partner) AS unread_count
			FROM mine
			ORDER BY partner, created_at DESC, id DESC
		)
		SELECT l.partner, COALESCE(u.username, ''), l.content, l.created_at, l.unread_count
		FROM last l
		LEFT JOIN users u ON u.address = l.partner
		ORDER BY l.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("failed to select conversations: %w", err)
	}
	defer rows.Close()

	var result []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.PartnerAddress, &c.PartnerUsername, &c.LastMessage, &c.LastMessageAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) History(ctx context.Context, a, b string) ([]models.Message, error) {
	query := `
		SELECT id, sender_address, recipient_address, content, created_at, is_read
		FROM messages
		WHERE (sender_address = $1 AND recipient_address = $2)
		   OR (sender_address = $2 AND recipient_address = $1)
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderAddress, &m.RecipientAddress, &m.Content, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) MarkRead(ctx context.Context, reader, partner string) (int64, error) {
	query := `
		UPDATE messages SET is_read = TRUE
		WHERE recipient_address = $1 AND sender_address = $2 AND NOT is_read
	`
	res, err := r.db.ExecContext(ctx, query, reader, partner)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
