package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/concierge-router/internal/model"
)

const quickResponseColumns = `id, title, content, category, shortcut, is_active, sort_order, created_at, updated_at`

type quickResponseRow struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	Content   string `db:"content"`
	Category  string `db:"category"`
	Shortcut  string `db:"shortcut"`
	IsActive  bool   `db:"is_active"`
	SortOrder int    `db:"sort_order"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r *quickResponseRow) toModel() model.QuickResponse {
	return model.QuickResponse{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Category:  r.Category,
		Shortcut:  r.Shortcut,
		IsActive:  r.IsActive,
		SortOrder: r.SortOrder,
		CreatedAt: fromMicro(r.CreatedAt),
		UpdatedAt: fromMicro(r.UpdatedAt),
	}
}

// ListQuickResponses returns canned replies ordered for display.
func (s *SQLStore) ListQuickResponses(ctx context.Context, activeOnly bool) ([]model.QuickResponse, error) {
	query := `SELECT ` + quickResponseColumns + ` FROM quick_responses`
	var args []any
	if activeOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY sort_order ASC, title ASC`

	var rows []quickResponseRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list quick responses: %w", err)
	}

	out := make([]model.QuickResponse, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// QuickResponse loads one canned reply.
func (s *SQLStore) QuickResponse(ctx context.Context, id string) (*model.QuickResponse, error) {
	var row quickResponseRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+quickResponseColumns+` FROM quick_responses WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load quick response: %w", err)
	}
	qr := row.toModel()
	return &qr, nil
}

// CreateQuickResponse inserts a canned reply. Title and content are required.
func (s *SQLStore) CreateQuickResponse(ctx context.Context, in model.QuickResponseInput) (*model.QuickResponse, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, model.Invalid("title", "is required")
	}
	if in.Content == nil || strings.TrimSpace(*in.Content) == "" {
		return nil, model.Invalid("content", "is required")
	}

	ts := unixMicro(s.now())
	row := quickResponseRow{
		ID:        newID(),
		Title:     *in.Title,
		Content:   *in.Content,
		IsActive:  true,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if in.Category != nil {
		row.Category = *in.Category
	}
	if in.Shortcut != nil {
		row.Shortcut = *in.Shortcut
	}
	if in.IsActive != nil {
		row.IsActive = *in.IsActive
	}
	if in.SortOrder != nil {
		row.SortOrder = *in.SortOrder
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO quick_responses (`+quickResponseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		row.ID, row.Title, row.Content, row.Category, row.Shortcut, row.IsActive, row.SortOrder,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert quick response: %w", err)
	}
	qr := row.toModel()
	return &qr, nil
}

// UpdateQuickResponse applies the non-nil fields of in.
func (s *SQLStore) UpdateQuickResponse(ctx context.Context, id string, in model.QuickResponseInput) (*model.QuickResponse, error) {
	sets := []string{"updated_at = ?"}
	args := []any{unixMicro(s.now())}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, model.Invalid("title", "must not be empty")
		}
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return nil, model.Invalid("content", "must not be empty")
		}
		sets = append(sets, "content = ?")
		args = append(args, *in.Content)
	}
	if in.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *in.Category)
	}
	if in.Shortcut != nil {
		sets = append(sets, "shortcut = ?")
		args = append(args, *in.Shortcut)
	}
	if in.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *in.IsActive)
	}
	if in.SortOrder != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *in.SortOrder)
	}
	args = append(args, id)

	var row quickResponseRow
	query := s.db.Rebind(`UPDATE quick_responses SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? RETURNING ` + quickResponseColumns)
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update quick response: %w", err)
	}
	qr := row.toModel()
	return &qr, nil
}

// DeleteQuickResponse removes a canned reply.
func (s *SQLStore) DeleteQuickResponse(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "quick_responses", id)
}

type trainingPairRow struct {
	ID        string `db:"id"`
	Question  string `db:"question"`
	Answer    string `db:"answer"`
	IsActive  bool   `db:"is_active"`
	CreatedAt int64  `db:"created_at"`
}

// ListTrainingPairs returns curated Q&A, oldest first.
func (s *SQLStore) ListTrainingPairs(ctx context.Context, activeOnly bool) ([]model.TrainingPair, error) {
	query := `SELECT id, question, answer, is_active, created_at FROM training_pairs`
	var args []any
	if activeOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var rows []trainingPairRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list training pairs: %w", err)
	}

	out := make([]model.TrainingPair, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.TrainingPair{
			ID:        r.ID,
			Question:  r.Question,
			Answer:    r.Answer,
			IsActive:  r.IsActive,
			CreatedAt: fromMicro(r.CreatedAt),
		})
	}
	return out, nil
}

// CreateTrainingPair stores an active Q&A pair.
func (s *SQLStore) CreateTrainingPair(ctx context.Context, question, answer string) (*model.TrainingPair, error) {
	tp := model.TrainingPair{
		ID:       newID(),
		Question: question,
		Answer:   answer,
		IsActive: true,
	}
	ts := unixMicro(s.now())
	tp.CreatedAt = fromMicro(ts)

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO training_pairs
		(id, question, answer, is_active, created_at) VALUES (?, ?, ?, ?, ?)`),
		tp.ID, tp.Question, tp.Answer, tp.IsActive, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert training pair: %w", err)
	}
	return &tp, nil
}

// DeleteTrainingPair removes a Q&A pair.
func (s *SQLStore) DeleteTrainingPair(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "training_pairs", id)
}

func (s *SQLStore) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM `+table+` WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

type platformSettingsRow struct {
	ChannelAccessToken string `db:"channel_access_token"`
	ChannelSecret      string `db:"channel_secret"`
	IsActive           bool   `db:"is_active"`
	AutoReply          bool   `db:"auto_reply"`
	WebhookURL         string `db:"webhook_url"`
	UpdatedAt          int64  `db:"updated_at"`
}

const platformSettingsColumns = `channel_access_token, channel_secret, is_active, auto_reply, webhook_url, updated_at`

func (r *platformSettingsRow) toModel() *model.PlatformSettings {
	ps := &model.PlatformSettings{
		ChannelAccessToken: r.ChannelAccessToken,
		ChannelSecret:      r.ChannelSecret,
		IsActive:           r.IsActive,
		AutoReply:          r.AutoReply,
		WebhookURL:         r.WebhookURL,
	}
	if r.UpdatedAt > 0 {
		ps.UpdatedAt = fromMicro(r.UpdatedAt)
	}
	return ps
}

// PlatformSettings reads the singleton settings row.
func (s *SQLStore) PlatformSettings(ctx context.Context) (*model.PlatformSettings, error) {
	var row platformSettingsRow
	err := s.db.GetContext(ctx, &row, `SELECT `+platformSettingsColumns+` FROM platform_settings WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &model.PlatformSettings{AutoReply: true}, nil
		}
		return nil, fmt.Errorf("failed to load platform settings: %w", err)
	}
	return row.toModel(), nil
}

// UpdatePlatformSettings applies the non-nil fields of patch and returns the stored row.
func (s *SQLStore) UpdatePlatformSettings(ctx context.Context, patch model.PlatformSettingsPatch) (*model.PlatformSettings, error) {
	sets := []string{"updated_at = ?"}
	args := []any{unixMicro(s.now())}

	if patch.ChannelAccessToken != nil {
		sets = append(sets, "channel_access_token = ?")
		args = append(args, *patch.ChannelAccessToken)
	}
	if patch.ChannelSecret != nil {
		sets = append(sets, "channel_secret = ?")
		args = append(args, *patch.ChannelSecret)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	if patch.AutoReply != nil {
		sets = append(sets, "auto_reply = ?")
		args = append(args, *patch.AutoReply)
	}
	if patch.WebhookURL != nil {
		sets = append(sets, "webhook_url = ?")
		args = append(args, *patch.WebhookURL)
	}

	var row platformSettingsRow
	query := s.db.Rebind(`UPDATE platform_settings SET ` + strings.Join(sets, ", ") +
		` WHERE id = 1 RETURNING ` + platformSettingsColumns)
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update platform settings: %w", err)
	}
	return row.toModel(), nil
}
