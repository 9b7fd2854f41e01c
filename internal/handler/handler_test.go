package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/concierge-router/internal/bus"
	"github.com/capitalize-ai/concierge-router/internal/middleware"
	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/internal/platform"
	"github.com/capitalize-ai/concierge-router/internal/service"
	"github.com/capitalize-ai/concierge-router/internal/store"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

const (
	testJWTSecret     = "test-secret"
	testChannelSecret = "s3cret"
)

type stubResponder struct{ reply string }

func (s stubResponder) Reply(context.Context, []model.Message) (string, error) {
	return s.reply, nil
}

type push struct {
	userID string
	text   string
}

type stubMessenger struct {
	mu     sync.Mutex
	pushes []push
}

func (m *stubMessenger) PushText(_ context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, push{userID: userID, text: text})
	return nil
}

func (m *stubMessenger) DisplayName(context.Context, string) (string, error) {
	return "Guest Name", nil
}

func (m *stubMessenger) BotInfo(context.Context) (*model.BotInfo, error) {
	return &model.BotInfo{ID: 1, Username: "concierge_bot"}, nil
}

func (m *stubMessenger) Pushes() []push {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]push(nil), m.pushes...)
}

type testServer struct {
	srv       *httptest.Server
	store     *store.SQLStore
	hub       *bus.Hub
	adapter   *platform.Adapter
	messenger *stubMessenger
	token     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx := context.Background()
	st, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))

	log := logger.Nop()
	hub := bus.NewHub(log)
	msgr := &stubMessenger{}
	cache := platform.NewClientCache(st, func(context.Context, string) (platform.Messenger, error) {
		return msgr, nil
	})
	outbound := platform.NewOutbound(cache)
	router := service.NewRouter(st, stubResponder{reply: "Hi there!"}, outbound, outbound, service.Options{}, log, hub)
	adapter := platform.NewAdapter(router, cache, outbound, time.Second, log)

	routes := Routes{
		Chat:              NewChatHandler(router, log),
		Conversations:     NewConversationHandler(router, log),
		Messages:          NewMessageHandler(router, log),
		QuickResponses:    NewQuickResponseHandler(service.NewQuickResponseService(st), log),
		Training:          NewTrainingHandler(service.NewTrainingService(st), log),
		Platform:          NewPlatformHandler(service.NewPlatformSettingsService(st, cache, log), log),
		Webhook:           NewWebhookHandler(adapter, log),
		Realtime:          NewRealtimeHandler(hub, st, testJWTSecret, []string{"*"}, log),
		Health:            NewHealthHandler(st, nil),
		JWTSecret:         testJWTSecret,
		AllowedOrigins:    []string{"*"},
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		Logger:            log,
	}
	srv := httptest.NewServer(routes.Handler())

	t.Cleanup(func() {
		srv.Close()
		adapter.Wait()
		st.Close()
	})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{middleware.ScopeAdmin},
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	return &testServer{srv: srv, store: st, hub: hub, adapter: adapter, messenger: msgr, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, admin bool, out any) int {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) webhook(t *testing.T, body []byte, signature string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/webhook/platform", bytes.NewReader(body))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set(platform.SignatureHeader, signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func (ts *testServer) activatePlatform(t *testing.T) {
	t.Helper()
	code := ts.do(t, http.MethodPatch, "/admin/platform/settings", map[string]any{
		"channelAccessToken": "123:abc",
		"channelSecret":      testChannelSecret,
		"isActive":           true,
	}, true, nil)
	require.Equal(t, http.StatusOK, code)
}

func updateBatch(firstUpdateID int, chatID int64, texts ...string) []byte {
	events := make([]string, 0, len(texts))
	for i, text := range texts {
		events = append(events, fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":1700000000,`+
			`"from":{"id":%d,"is_bot":false,"first_name":"Ada"},"chat":{"id":%d,"type":"private"},"text":%q}}`,
			firstUpdateID+i, firstUpdateID+i, chatID, chatID, text))
	}
	return []byte(`{"events":[` + strings.Join(events, ",") + `]}`)
}

func TestWebChatScenario(t *testing.T) {
	ts := newTestServer(t)

	var start model.StartChatResponse
	code := ts.do(t, http.MethodPost, "/chat/start", map[string]any{}, false, &start)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, start.IsNew)
	assert.Equal(t, model.ModeAutomated, start.Conversation.Mode)
	assert.Equal(t, model.StatusActive, start.Conversation.Status)
	assert.Empty(t, start.Messages)
	sessionID := start.Conversation.SessionID

	var sent model.SendChatMessageResponse
	code = ts.do(t, http.MethodPost, "/chat/message", map[string]string{
		"sessionId": sessionID,
		"content":   "Hello",
	}, false, &sent)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Hello", sent.SavedMessage.Content)
	require.NotNil(t, sent.AIMessage)
	assert.Equal(t, "Hi there!", sent.AIMessage.Content)

	var detail model.ConversationDetail
	code = ts.do(t, http.MethodGet, "/admin/chat/conversations/"+start.Conversation.ID, nil, true, &detail)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, detail.Conversation.TotalMessages)
	assert.Equal(t, 1, detail.Conversation.AutomatedMessages)
	assert.Equal(t, 0, detail.Conversation.HumanMessages)
	assert.Equal(t, 0, detail.Conversation.UnreadCount)
	assert.Len(t, detail.Messages, 2)

	var resumed model.StartChatResponse
	code = ts.do(t, http.MethodPost, "/chat/start", map[string]string{"sessionId": sessionID}, false, &resumed)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, resumed.IsNew)
	assert.Equal(t, start.Conversation.ID, resumed.Conversation.ID)
	assert.Len(t, resumed.Messages, 2)
}

func TestPlatformHumanTakeover(t *testing.T) {
	ts := newTestServer(t)
	ts.activatePlatform(t)

	body := updateBatch(1, 555, "I need towels")
	require.Equal(t, http.StatusOK, ts.webhook(t, body, platform.Sign(testChannelSecret, body)))
	ts.adapter.Wait()

	var list model.ListConversationsResponse
	code := ts.do(t, http.MethodGet, "/admin/chat/conversations?channel=platform", nil, true, &list)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, list.Total)
	conv := list.Conversations[0]
	assert.Equal(t, "Guest Name", conv.CustomerName)
	assert.Equal(t, 1, conv.AutomatedMessages)
	assert.Equal(t, []push{{userID: "555", text: "Hi there!"}}, ts.messenger.Pushes())

	var updated model.Conversation
	code = ts.do(t, http.MethodPatch, "/admin/chat/conversations/"+conv.ID, map[string]string{"mode": "human"}, true, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.ModeHuman, updated.Mode)

	body = updateBatch(2, 555, "still waiting")
	require.Equal(t, http.StatusOK, ts.webhook(t, body, platform.Sign(testChannelSecret, body)))
	ts.adapter.Wait()

	var reply model.HumanReplyResult
	code = ts.do(t, http.MethodPost, "/admin/chat/conversations/"+conv.ID+"/messages",
		map[string]string{"content": "An operator will assist you"}, true, &reply)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, reply.Delivered)
	assert.Equal(t, model.SenderHuman, reply.Message.SenderType)

	pushes := ts.messenger.Pushes()
	require.Len(t, pushes, 2)
	assert.Equal(t, push{userID: "555", text: "An operator will assist you"}, pushes[1])

	var detail model.ConversationDetail
	ts.do(t, http.MethodGet, "/admin/chat/conversations/"+conv.ID, nil, true, &detail)
	assert.Equal(t, 1, detail.Conversation.HumanMessages)
	assert.Equal(t, 1, detail.Conversation.AutomatedMessages)
	assert.Equal(t, 4, detail.Conversation.TotalMessages)
}

func TestWebhookRejection(t *testing.T) {
	ts := newTestServer(t)
	ts.activatePlatform(t)

	body := updateBatch(1, 777, "hello")
	assert.Equal(t, http.StatusUnauthorized, ts.webhook(t, body, platform.Sign("wrong", body)))
	assert.Equal(t, http.StatusUnauthorized, ts.webhook(t, body, ""))

	malformed := []byte(`{"events": nope}`)
	assert.Equal(t, http.StatusBadRequest, ts.webhook(t, malformed, platform.Sign(testChannelSecret, malformed)))
	ts.adapter.Wait()

	var list model.ListConversationsResponse
	ts.do(t, http.MethodGet, "/admin/chat/conversations", nil, true, &list)
	assert.Zero(t, list.Total)
	assert.Empty(t, ts.messenger.Pushes())
}

func TestWebhookRedelivery(t *testing.T) {
	ts := newTestServer(t)
	ts.activatePlatform(t)

	body := updateBatch(1, 888, "hello")
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, ts.webhook(t, body, platform.Sign(testChannelSecret, body)))
		ts.adapter.Wait()
	}

	var list model.ListConversationsResponse
	ts.do(t, http.MethodGet, "/admin/chat/conversations", nil, true, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, 2, list.Conversations[0].TotalMessages)
	assert.Len(t, ts.messenger.Pushes(), 1)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	var start model.StartChatResponse
	ts.do(t, http.MethodPost, "/chat/start", nil, false, &start)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		admin  bool
		want   int
	}{
		{"missing content", http.MethodPost, "/chat/message", map[string]string{"sessionId": start.Conversation.SessionID}, false, http.StatusBadRequest},
		{"unknown session", http.MethodPost, "/chat/message", map[string]string{"sessionId": "nope", "content": "hi"}, false, http.StatusNotFound},
		{"admin without token", http.MethodGet, "/admin/chat/conversations", nil, false, http.StatusUnauthorized},
		{"unknown conversation", http.MethodGet, "/admin/chat/conversations/nope", nil, true, http.StatusNotFound},
		{"invalid mode", http.MethodPatch, "/admin/chat/conversations/" + start.Conversation.ID, map[string]string{"mode": "robot"}, true, http.StatusBadRequest},
		{"empty patch", http.MethodPatch, "/admin/chat/conversations/" + start.Conversation.ID, map[string]string{}, true, http.StatusBadRequest},
		{"invalid status filter", http.MethodGet, "/admin/chat/conversations?status=pending", nil, true, http.StatusBadRequest},
		{"invalid limit", http.MethodGet, "/admin/chat/conversations?limit=ten", nil, true, http.StatusBadRequest},
		{"empty reply", http.MethodPost, "/admin/chat/conversations/" + start.Conversation.ID + "/messages", map[string]string{"content": ""}, true, http.StatusBadRequest},
		{"unknown quick response", http.MethodDelete, "/admin/chat/quick-responses/nope", nil, true, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ts.do(t, tt.method, tt.path, tt.body, tt.admin, nil))
		})
	}
}

func TestQuickResponsesAPI(t *testing.T) {
	ts := newTestServer(t)

	var created model.QuickResponse
	code := ts.do(t, http.MethodPost, "/admin/chat/quick-responses",
		map[string]any{"title": "Pool hours", "content": "The pool is open 7am to 10pm.", "category": "amenities"}, true, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, created.IsActive)

	var updated model.QuickResponse
	code = ts.do(t, http.MethodPatch, "/admin/chat/quick-responses/"+created.ID,
		map[string]any{"sortOrder": 3}, true, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, updated.SortOrder)

	var list struct {
		QuickResponses []model.QuickResponse `json:"quickResponses"`
	}
	ts.do(t, http.MethodGet, "/admin/chat/quick-responses", nil, true, &list)
	require.Len(t, list.QuickResponses, 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/admin/chat/quick-responses",
		map[string]any{"title": "no content"}, true, nil))
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/admin/chat/quick-responses/"+created.ID, nil, true, nil))
}

func TestPlatformSettingsAPI(t *testing.T) {
	ts := newTestServer(t)
	ts.activatePlatform(t)

	var settings model.PlatformSettings
	ts.do(t, http.MethodGet, "/admin/platform/settings", nil, true, &settings)
	assert.True(t, settings.IsActive)
	assert.Equal(t, "****cret", settings.ChannelSecret)

	var result model.PlatformTestResult
	code := ts.do(t, http.MethodPost, "/admin/platform/test", nil, true, &result)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, result.Success)
	assert.Equal(t, "concierge_bot", result.BotInfo.Username)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var ready map[string]string
	code := ts.do(t, http.MethodGet, "/ready", nil, false, &ready)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disabled", ready["journal"])
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil, false, nil))
}

func TestRealtimeCustomerReceivesOperatorReply(t *testing.T) {
	ts := newTestServer(t)

	var start model.StartChatResponse
	ts.do(t, http.MethodPost, "/chat/start", nil, false, &start)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?session_id=" + start.Conversation.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, rooms := ts.hub.Stats()
		return rooms == 1
	}, time.Second, 10*time.Millisecond)

	code := ts.do(t, http.MethodPost, "/admin/chat/conversations/"+start.Conversation.ID+"/messages",
		map[string]string{"content": "Welcome to the hotel"}, true, nil)
	require.Equal(t, http.StatusCreated, code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, model.EventNewMessage, env.Event)

	var ev model.NewMessageEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, "Welcome to the hotel", ev.Message.Content)
}

func TestRealtimeRejectsAnonymous(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?session_id=unknown", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	uid := "777"
	platformConv := &model.Conversation{
		SessionID:      "platform-session",
		ExternalUserID: &uid,
		Channel:        model.ChannelPlatform,
		Status:         model.StatusActive,
		Mode:           model.ModeAutomated,
	}
	require.NoError(t, ts.store.CreateConversation(context.Background(), platformConv))

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?session_id=platform-session", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
