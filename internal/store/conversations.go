package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/concierge-router/internal/model"
)

const conversationColumns = `id, session_id, external_user_id, channel, customer_name, customer_email,
	customer_phone, status, mode, assigned_operator, last_message_at, unread_count, total_messages,
	automated_messages, human_messages, created_at, updated_at`

type conversationRow struct {
	ID                string         `db:"id"`
	SessionID         string         `db:"session_id"`
	ExternalUserID    sql.NullString `db:"external_user_id"`
	Channel           string         `db:"channel"`
	CustomerName      string         `db:"customer_name"`
	CustomerEmail     string         `db:"customer_email"`
	CustomerPhone     string         `db:"customer_phone"`
	Status            string         `db:"status"`
	Mode              string         `db:"mode"`
	AssignedOperator  sql.NullString `db:"assigned_operator"`
	LastMessageAt     sql.NullInt64  `db:"last_message_at"`
	UnreadCount       int            `db:"unread_count"`
	TotalMessages     int            `db:"total_messages"`
	AutomatedMessages int            `db:"automated_messages"`
	HumanMessages     int            `db:"human_messages"`
	CreatedAt         int64          `db:"created_at"`
	UpdatedAt         int64          `db:"updated_at"`
}

func (r *conversationRow) toModel() *model.Conversation {
	c := &model.Conversation{
		ID:                r.ID,
		SessionID:         r.SessionID,
		Channel:           model.Channel(r.Channel),
		CustomerName:      r.CustomerName,
		CustomerEmail:     r.CustomerEmail,
		CustomerPhone:     r.CustomerPhone,
		Status:            model.Status(r.Status),
		Mode:              model.Mode(r.Mode),
		UnreadCount:       r.UnreadCount,
		TotalMessages:     r.TotalMessages,
		AutomatedMessages: r.AutomatedMessages,
		HumanMessages:     r.HumanMessages,
		CreatedAt:         fromMicro(r.CreatedAt),
		UpdatedAt:         fromMicro(r.UpdatedAt),
	}
	if r.ExternalUserID.Valid {
		c.ExternalUserID = &r.ExternalUserID.String
	}
	if r.AssignedOperator.Valid {
		c.AssignedOperator = &r.AssignedOperator.String
	}
	if r.LastMessageAt.Valid {
		t := fromMicro(r.LastMessageAt.Int64)
		c.LastMessageAt = &t
	}
	return c
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// CreateConversation inserts c, filling in its id and timestamps.
func (s *SQLStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	now := s.now()
	if c.ID == "" {
		c.ID = newID()
	}
	c.CreatedAt = fromMicro(unixMicro(now))
	c.UpdatedAt = c.CreatedAt

	query := s.db.Rebind(`INSERT INTO conversations
		(id, session_id, external_user_id, channel, customer_name, customer_email, customer_phone,
		 status, mode, assigned_operator, unread_count, total_messages, automated_messages,
		 human_messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.SessionID, nullString(c.ExternalUserID), string(c.Channel), c.CustomerName,
		c.CustomerEmail, c.CustomerPhone, string(c.Status), string(c.Mode), nullString(c.AssignedOperator),
		unixMicro(now), unixMicro(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) getConversation(ctx context.Context, where string, args ...any) (*model.Conversation, error) {
	var row conversationRow
	query := s.db.Rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE ` + where)
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return row.toModel(), nil
}

// ConversationByID loads a conversation by primary key.
func (s *SQLStore) ConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	return s.getConversation(ctx, `id = ?`, id)
}

// ConversationBySession loads a conversation by its widget session token.
func (s *SQLStore) ConversationBySession(ctx context.Context, sessionID string) (*model.Conversation, error) {
	return s.getConversation(ctx, `session_id = ?`, sessionID)
}

// LatestPlatformConversation returns the newest non-archived conversation of an external user.
func (s *SQLStore) LatestPlatformConversation(ctx context.Context, externalUserID string) (*model.Conversation, error) {
	return s.getConversation(ctx,
		`external_user_id = ? AND channel = ? AND status <> ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		externalUserID, string(model.ChannelPlatform), string(model.StatusArchived),
	)
}

// UpdateConversation applies an operator patch. A mode or status change also
// clears the unread counter; reassignment alone leaves it.
func (s *SQLStore) UpdateConversation(ctx context.Context, id string, patch model.ConversationPatch) (*model.Conversation, error) {
	sets := []string{"updated_at = ?"}
	args := []any{unixMicro(s.now())}

	if patch.Mode != nil || patch.Status != nil {
		sets = append(sets, "unread_count = 0")
	}

	if patch.Mode != nil {
		sets = append(sets, "mode = ?")
		args = append(args, string(*patch.Mode))
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.AssignedOperator != nil {
		sets = append(sets, "assigned_operator = ?")
		args = append(args, nullString(patch.AssignedOperator))
	}
	args = append(args, id)

	query := s.db.Rebind(`UPDATE conversations SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? RETURNING ` + conversationColumns)

	var row conversationRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return row.toModel(), nil
}

// MarkRead clears the unread counter and flags all customer messages as read.
func (s *SQLStore) MarkRead(ctx context.Context, id string) (*model.Conversation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row conversationRow
	err = tx.GetContext(ctx, &row, tx.Rebind(`UPDATE conversations SET unread_count = 0
		WHERE id = ? RETURNING `+conversationColumns), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to reset unread count: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET is_read = ?
		WHERE conversation_id = ? AND is_read = ?`), true, id, false); err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return row.toModel(), nil
}

// DeleteConversation removes a conversation and all of its messages.
func (s *SQLStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE conversation_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrNotFound
	}

	return tx.Commit()
}

// ListConversations returns one page of conversations matching f and the total match count.
func (s *SQLStore) ListConversations(ctx context.Context, f model.ConversationFilter) ([]model.Conversation, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, string(f.Channel))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		where = append(where, `LOWER(customer_name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(search))+"%")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM conversations`+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	pageArgs := append(append([]any{}, args...), limit, f.Offset)

	var rows []conversationRow
	query := s.db.Rebind(`SELECT ` + conversationColumns + ` FROM conversations` + clause +
		` ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &rows, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	convs := make([]model.Conversation, 0, len(rows))
	for i := range rows {
		convs = append(convs, *rows[i].toModel())
	}
	return convs, total, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
