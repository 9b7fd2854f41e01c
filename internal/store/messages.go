package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/capitalize-ai/concierge-router/internal/model"
)

const messageColumns = `id, conversation_id, role, sender_type, content, is_read, external_message_id, created_at`

type messageRow struct {
	ID                string         `db:"id"`
	ConversationID    string         `db:"conversation_id"`
	Role              string         `db:"role"`
	SenderType        string         `db:"sender_type"`
	Content           string         `db:"content"`
	IsRead            bool           `db:"is_read"`
	ExternalMessageID sql.NullString `db:"external_message_id"`
	CreatedAt         int64          `db:"created_at"`
}

func (r *messageRow) toModel() model.Message {
	m := model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           model.Role(r.Role),
		SenderType:     model.SenderType(r.SenderType),
		Content:        r.Content,
		IsRead:         r.IsRead,
		CreatedAt:      fromMicro(r.CreatedAt),
	}
	if r.ExternalMessageID.Valid {
		m.ExternalMessageID = &r.ExternalMessageID.String
	}
	return m
}

// Delta is a counter adjustment applied together with a message insert.
type Delta struct {
	Total     int
	Unread    int
	Automated int
	Human     int

	// Reopen flips a closed conversation back to active. Archived stays archived.
	Reopen bool
}

// DeltaFor returns the counter adjustment for a message from sender.
func DeltaFor(sender model.SenderType) Delta {
	switch sender {
	case model.SenderAutomated:
		return Delta{Total: 1, Automated: 1}
	case model.SenderHuman:
		return Delta{Total: 1, Human: 1}
	default:
		return Delta{Total: 1, Unread: 1, Reopen: true}
	}
}

// AppendMessage inserts msg and applies d to its conversation in one transaction.
// Counters are updated in place, so concurrent appends never lose an increment.
// It returns the conversation as it stands after the update, or model.ErrDuplicate
// when msg carries an external id that was already recorded.
func (s *SQLStore) AppendMessage(ctx context.Context, msg *model.Message, d Delta) (*model.Conversation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	ts := unixMicro(now)

	var row conversationRow
	err = tx.GetContext(ctx, &row, tx.Rebind(`UPDATE conversations SET
			total_messages = total_messages + ?,
			unread_count = unread_count + ?,
			automated_messages = automated_messages + ?,
			human_messages = human_messages + ?,
			last_message_at = CASE WHEN last_message_at IS NULL OR last_message_at < ? THEN ? ELSE last_message_at END,
			status = CASE WHEN ? AND status = ? THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ?
		RETURNING `+conversationColumns),
		d.Total, d.Unread, d.Automated, d.Human, ts, ts,
		d.Reopen, string(model.StatusClosed), string(model.StatusActive),
		ts, msg.ConversationID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update counters: %w", err)
	}

	if msg.ID == "" {
		msg.ID = newID()
	}
	msg.CreatedAt = fromMicro(ts)

	res, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, external_message_id) DO NOTHING`),
		msg.ID, msg.ConversationID, string(msg.Role), string(msg.SenderType), msg.Content, msg.IsRead,
		nullString(msg.ExternalMessageID), ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, model.ErrDuplicate
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return row.toModel(), nil
}

// Messages returns the full history of a conversation, oldest first.
func (s *SQLStore) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var rows []messageRow
	query := s.db.Rebind(`SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, conversationID); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return toMessages(rows), nil
}

// RecentMessages returns the last n messages of a conversation, oldest first.
func (s *SQLStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]model.Message, error) {
	var rows []messageRow
	query := s.db.Rebind(`SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, conversationID, n); err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return toMessages(rows), nil
}

func toMessages(rows []messageRow) []model.Message {
	msgs := make([]model.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].toModel())
	}
	return msgs
}
