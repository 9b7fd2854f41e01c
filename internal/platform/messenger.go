package platform

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/capitalize-ai/concierge-router/internal/model"
)

// Messenger is the outbound capability of the messaging platform.
type Messenger interface {
	PushText(ctx context.Context, externalUserID, text string) error
	DisplayName(ctx context.Context, externalUserID string) (string, error)
	BotInfo(ctx context.Context) (*model.BotInfo, error)
}

// Factory builds a Messenger from a bot token.
type Factory func(ctx context.Context, token string) (Messenger, error)

// TelegramMessenger talks to a Bot API compatible endpoint.
type TelegramMessenger struct {
	bot *tgbotapi.BotAPI
}

// TelegramFactory returns a Factory for the given endpoint, e.g. tgbotapi.APIEndpoint.
func TelegramFactory(endpoint string, client *http.Client) Factory {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, token string) (Messenger, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create bot client: %w", err)
		}
		return &TelegramMessenger{bot: bot}, nil
	}
}

func chatID(externalUserID string) (int64, error) {
	id, err := strconv.ParseInt(externalUserID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", externalUserID, err)
	}
	return id, nil
}

// PushText sends a plain text message to a chat.
func (m *TelegramMessenger) PushText(ctx context.Context, externalUserID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := chatID(externalUserID)
	if err != nil {
		return err
	}
	if _, err := m.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
		return fmt.Errorf("failed to push message: %w", err)
	}
	return nil
}

// DisplayName looks up the chat's profile name.
func (m *TelegramMessenger) DisplayName(ctx context.Context, externalUserID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := chatID(externalUserID)
	if err != nil {
		return "", err
	}
	chat, err := m.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}})
	if err != nil {
		return "", fmt.Errorf("failed to fetch profile: %w", err)
	}
	if name := fullName(chat.FirstName, chat.LastName); name != "" {
		return name, nil
	}
	if chat.Title != "" {
		return chat.Title, nil
	}
	return chat.UserName, nil
}

// BotInfo answers "who am I" for the configured token.
func (m *TelegramMessenger) BotInfo(ctx context.Context) (*model.BotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	me, err := m.bot.GetMe()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bot info: %w", err)
	}
	return &model.BotInfo{
		ID:          me.ID,
		Username:    me.UserName,
		DisplayName: fullName(me.FirstName, me.LastName),
	}, nil
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
