package sqldb

import (
	"context"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
)

type chatsRepo struct {
	c conn
}

func (r *chatsRepo) CreateChat(ctx context.Context, ch domain.Chat) error {
	return r.c.atomic(ctx, func(c conn) error {
		_, err := c.exec(ctx,
			`INSERT INTO chats (id, user_id, title, created_at, updated_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
			ch.ID, ch.UserID, ch.Title, ch.CreatedAt.UTC(), ch.UpdatedAt.UTC(), ch.ExpiresAt.UTC(),
		)
		if err != nil {
			return err
		}
		return insertMessages(ctx, c, ch.ID, ch.Messages)
	})
}

func insertMessages(ctx context.Context, c conn, chatID string, msgs []domain.Message) error {
	for _, m := range msgs {
		_, err := c.exec(ctx,
			`INSERT INTO chat_messages (id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			m.ID, chatID, string(m.Role), m.Content, m.CreatedAt.UTC(),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *chatsRepo) GetChat(ctx context.Context, userID, chatID string) (domain.Chat, error) {
	ch := domain.Chat{Messages: []domain.Message{}}
	err := r.c.queryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at, expires_at FROM chats WHERE id = ? AND user_id = ?`,
		chatID, userID,
	).Scan(&ch.ID, &ch.UserID, &ch.Title, &ch.CreatedAt, &ch.UpdatedAt, &ch.ExpiresAt)
	if err != nil {
		return domain.Chat{}, r.c.mapErr(err)
	}
	ch.CreatedAt, ch.UpdatedAt, ch.ExpiresAt = ch.CreatedAt.UTC(), ch.UpdatedAt.UTC(), ch.ExpiresAt.UTC()

	rows, err := r.c.query(ctx,
		`SELECT id, role, content, created_at FROM chat_messages WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m    domain.Message
			role string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.CreatedAt); err != nil {
			return domain.Chat{}, err
		}
		m.Role = domain.MessageRole(role)
		m.CreatedAt = m.CreatedAt.UTC()
		ch.Messages = append(ch.Messages, m)
	}
	return ch, rows.Err()
}

func (r *chatsRepo) ListChats(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	rows, err := r.c.query(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM chat_messages m WHERE m.chat_id = c.id)
		FROM chats c
		WHERE c.user_id = ?
		ORDER BY c.updated_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ChatSummary{}
	for rows.Next() {
		var s domain.ChatSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount); err != nil {
			return nil, err
		}
		s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *chatsRepo) AppendMessages(
	ctx context.Context,
	userID, chatID string,
	msgs []domain.Message,
	updatedAt, expiresAt time.Time,
) error {
	return r.c.atomic(ctx, func(c conn) error {
		if err := expectOne(c.exec(ctx,
			`UPDATE chats SET updated_at = ?, expires_at = ? WHERE id = ? AND user_id = ?`,
			updatedAt.UTC(), expiresAt.UTC(), chatID, userID,
		)); err != nil {
			return err
		}
		return insertMessages(ctx, c, chatID, msgs)
	})
}

// Messages go with the chat through ON DELETE CASCADE.
func (r *chatsRepo) DeleteChat(ctx context.Context, userID, chatID string) error {
	return expectOne(r.c.exec(ctx, `DELETE FROM chats WHERE id = ? AND user_id = ?`, chatID, userID))
}

func (r *chatsRepo) DeleteExpiredChats(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.c.exec(ctx, `DELETE FROM chats WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ store.Chats = (*chatsRepo)(nil)
