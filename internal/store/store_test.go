package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/concierge-router/internal/model"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func createConversation(t *testing.T, s *SQLStore, channel model.Channel, name string) *model.Conversation {
	t.Helper()
	c := &model.Conversation{
		SessionID:    newID(),
		Channel:      channel,
		CustomerName: name,
		Status:       model.StatusActive,
		Mode:         model.ModeAutomated,
	}
	require.NoError(t, s.CreateConversation(context.Background(), c))
	return c
}

func customerMessage(conversationID, text string) *model.Message {
	return &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleUser,
		SenderType:     model.SenderCustomer,
		Content:        text,
	}
}

func TestConversationLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := createConversation(t, s, model.ChannelWeb, "Ada")

	byID, err := s.ConversationByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.SessionID, byID.SessionID)
	assert.Equal(t, model.ModeAutomated, byID.Mode)
	assert.Nil(t, byID.LastMessageAt)

	bySession, err := s.ConversationBySession(ctx, c.SessionID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, bySession.ID)

	_, err = s.ConversationByID(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLatestPlatformConversationSkipsArchived(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	uid := "42"
	older := &model.Conversation{SessionID: newID(), ExternalUserID: &uid, Channel: model.ChannelPlatform,
		Status: model.StatusActive, Mode: model.ModeAutomated}
	require.NoError(t, s.CreateConversation(ctx, older))

	got, err := s.LatestPlatformConversation(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	archived := model.StatusArchived
	_, err = s.UpdateConversation(ctx, older.ID, model.ConversationPatch{Status: &archived})
	require.NoError(t, err)

	_, err = s.LatestPlatformConversation(ctx, uid)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAppendMessageCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createConversation(t, s, model.ChannelWeb, "")

	conv, err := s.AppendMessage(ctx, customerMessage(c.ID, "hi"), DeltaFor(model.SenderCustomer))
	require.NoError(t, err)
	assert.Equal(t, 1, conv.TotalMessages)
	assert.Equal(t, 1, conv.UnreadCount)
	require.NotNil(t, conv.LastMessageAt)

	reply := &model.Message{ConversationID: c.ID, Role: model.RoleAssistant,
		SenderType: model.SenderAutomated, Content: "hello", IsRead: true}
	conv, err = s.AppendMessage(ctx, reply, DeltaFor(model.SenderAutomated))
	require.NoError(t, err)
	assert.Equal(t, 2, conv.TotalMessages)
	assert.Equal(t, 1, conv.AutomatedMessages)
	assert.Equal(t, 0, conv.HumanMessages)
	assert.Equal(t, 1, conv.UnreadCount)

	msgs, err := s.Messages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.False(t, msgs[0].IsRead)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.True(t, msgs[1].IsRead)
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendMessage(context.Background(), customerMessage("nope", "hi"), DeltaFor(model.SenderCustomer))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAppendMessageConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createConversation(t, s, model.ChannelWeb, "")

	const customers, replies = 20, 10
	var wg sync.WaitGroup
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, customerMessage(c.ID, "ping"), DeltaFor(model.SenderCustomer))
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < replies; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := model.SenderAutomated
			if i%2 == 0 {
				sender = model.SenderHuman
			}
			msg := &model.Message{ConversationID: c.ID, Role: model.RoleAssistant, SenderType: sender,
				Content: "pong", IsRead: true}
			_, err := s.AppendMessage(ctx, msg, DeltaFor(sender))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	conv, err := s.ConversationByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, customers+replies, conv.TotalMessages)
	assert.Equal(t, replies, conv.AutomatedMessages+conv.HumanMessages)
	assert.Equal(t, customers, conv.UnreadCount)

	msgs, err := s.Messages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, customers+replies)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "history out of order at %d", i)
	}
}

func TestAppendMessageReopen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		status model.Status
		want   model.Status
	}{
		{"closed reopens", model.StatusClosed, model.StatusActive},
		{"archived stays archived", model.StatusArchived, model.StatusArchived},
		{"active stays active", model.StatusActive, model.StatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := createConversation(t, s, model.ChannelWeb, "")
			status := tt.status
			_, err := s.UpdateConversation(ctx, c.ID, model.ConversationPatch{Status: &status})
			require.NoError(t, err)

			conv, err := s.AppendMessage(ctx, customerMessage(c.ID, "back"), DeltaFor(model.SenderCustomer))
			require.NoError(t, err)
			assert.Equal(t, tt.want, conv.Status)
		})
	}
}

func TestAppendMessageDuplicateExternalID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createConversation(t, s, model.ChannelPlatform, "")

	key := "update:7"
	first := customerMessage(c.ID, "hi")
	first.ExternalMessageID = &key
	_, err := s.AppendMessage(ctx, first, DeltaFor(model.SenderCustomer))
	require.NoError(t, err)

	again := customerMessage(c.ID, "hi")
	again.ExternalMessageID = &key
	_, err = s.AppendMessage(ctx, again, DeltaFor(model.SenderCustomer))
	require.True(t, errors.Is(err, model.ErrDuplicate))

	conv, err := s.ConversationByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.TotalMessages, "duplicate must not move counters")

	// Messages without an external id never collide.
	_, err = s.AppendMessage(ctx, customerMessage(c.ID, "hi"), DeltaFor(model.SenderCustomer))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, customerMessage(c.ID, "hi"), DeltaFor(model.SenderCustomer))
	require.NoError(t, err)
}

func TestRecentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createConversation(t, s, model.ChannelWeb, "")

	for _, text := range []string{"1", "2", "3", "4", "5"} {
		_, err := s.AppendMessage(ctx, customerMessage(c.ID, text), DeltaFor(model.SenderCustomer))
		require.NoError(t, err)
	}

	recent, err := s.RecentMessages(ctx, c.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "3", recent[0].Content)
	assert.Equal(t, "5", recent[2].Content)
}

func TestMarkReadAndUpdateResetUnread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createConversation(t, s, model.ChannelWeb, "")

	for i := 0; i < 3; i++ {
		_, err := s.AppendMessage(ctx, customerMessage(c.ID, "hi"), DeltaFor(model.SenderCustomer))
		require.NoError(t, err)
	}

	conv, err := s.MarkRead(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)

	msgs, err := s.Messages(ctx, c.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.True(t, m.IsRead)
	}

	_, err = s.AppendMessage(ctx, customerMessage(c.ID, "again"), DeltaFor(model.SenderCustomer))
	require.NoError(t, err)

	operator := "op-2"
	conv, err = s.UpdateConversation(ctx, c.ID, model.ConversationPatch{AssignedOperator: &operator})
	require.NoError(t, err)
	require.NotNil(t, conv.AssignedOperator)
	assert.Equal(t, "op-2", *conv.AssignedOperator)
	assert.Equal(t, 1, conv.UnreadCount, "reassignment keeps unread messages")

	human := model.ModeHuman
	conv, err = s.UpdateConversation(ctx, c.ID, model.ConversationPatch{Mode: &human})
	require.NoError(t, err)
	assert.Equal(t, model.ModeHuman, conv.Mode)
	assert.Equal(t, 0, conv.UnreadCount)
	assert.Equal(t, 4, conv.TotalMessages)

	_, err = s.MarkRead(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteConversationCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createConversation(t, s, model.ChannelWeb, "")

	_, err := s.AppendMessage(ctx, customerMessage(c.ID, "hi"), DeltaFor(model.SenderCustomer))
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, c.ID))

	_, err = s.ConversationByID(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	msgs, err := s.Messages(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, s.DeleteConversation(ctx, c.ID), model.ErrNotFound)
}

func TestListConversationsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ada := createConversation(t, s, model.ChannelWeb, "Ada Lovelace")
	grace := createConversation(t, s, model.ChannelPlatform, "Grace Hopper")
	adaline := createConversation(t, s, model.ChannelPlatform, "ADAline 100%")

	closed := model.StatusClosed
	_, err := s.UpdateConversation(ctx, grace.ID, model.ConversationPatch{Status: &closed})
	require.NoError(t, err)

	// Newest activity first.
	_, err = s.AppendMessage(ctx, customerMessage(ada.ID, "hi"), DeltaFor(model.SenderCustomer))
	require.NoError(t, err)

	all, total, err := s.ListConversations(ctx, model.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, ada.ID, all[0].ID)

	byName, total, err := s.ListConversations(ctx, model.ConversationFilter{Search: "ada"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, byName, 2)

	literal, total, err := s.ListConversations(ctx, model.ConversationFilter{Search: "100%"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, literal, 1)
	assert.Equal(t, adaline.ID, literal[0].ID)

	platform, total, err := s.ListConversations(ctx, model.ConversationFilter{Channel: model.ChannelPlatform,
		Status: model.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, platform, 1)
	assert.Equal(t, adaline.ID, platform[0].ID)

	page, total, err := s.ListConversations(ctx, model.ConversationFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}

func TestQuickResponseCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	title, content := "Greeting", "Welcome to the hotel!"
	order := 2
	qr, err := s.CreateQuickResponse(ctx, model.QuickResponseInput{Title: &title, Content: &content, SortOrder: &order})
	require.NoError(t, err)
	assert.True(t, qr.IsActive)

	otherTitle, otherContent := "Checkout", "Checkout is at noon."
	first := 1
	_, err = s.CreateQuickResponse(ctx, model.QuickResponseInput{Title: &otherTitle, Content: &otherContent, SortOrder: &first})
	require.NoError(t, err)

	list, err := s.ListQuickResponses(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Checkout", list[0].Title)

	inactive := false
	newContent := "Welcome!"
	updated, err := s.UpdateQuickResponse(ctx, qr.ID, model.QuickResponseInput{Content: &newContent, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Welcome!", updated.Content)
	assert.Equal(t, "Greeting", updated.Title)
	assert.False(t, updated.IsActive)

	active, err := s.ListQuickResponses(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, s.DeleteQuickResponse(ctx, qr.ID))
	_, err = s.QuickResponse(ctx, qr.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.DeleteQuickResponse(ctx, qr.ID), model.ErrNotFound)

	_, err = s.UpdateQuickResponse(ctx, "missing", model.QuickResponseInput{Content: &newContent})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.CreateQuickResponse(ctx, model.QuickResponseInput{Title: &title})
	assert.True(t, model.IsValidation(err))
}

func TestTrainingPairs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tp, err := s.CreateTrainingPair(ctx, "Is breakfast included?", "Yes, from 7 to 10.")
	require.NoError(t, err)

	pairs, err := s.ListTrainingPairs(ctx, true)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, tp.ID, pairs[0].ID)

	require.NoError(t, s.DeleteTrainingPair(ctx, tp.ID))
	assert.ErrorIs(t, s.DeleteTrainingPair(ctx, tp.ID), model.ErrNotFound)
}

func TestPlatformSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ps, err := s.PlatformSettings(ctx)
	require.NoError(t, err)
	assert.False(t, ps.IsActive)
	assert.True(t, ps.AutoReply)
	assert.Empty(t, ps.ChannelSecret)

	token, secret := "123:abc", "s3cret"
	active := true
	ps, err = s.UpdatePlatformSettings(ctx, model.PlatformSettingsPatch{
		ChannelAccessToken: &token,
		ChannelSecret:      &secret,
		IsActive:           &active,
	})
	require.NoError(t, err)
	assert.Equal(t, token, ps.ChannelAccessToken)
	assert.True(t, ps.IsActive)
	assert.True(t, ps.AutoReply)
	assert.False(t, ps.UpdatedAt.IsZero())

	reloaded, err := s.PlatformSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, secret, reloaded.ChannelSecret)
}
