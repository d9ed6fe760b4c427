package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/gemini"
	"github.com/aussiebroadwan/mediscan/pkg/idx"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

var ErrChatNotFound = errors.New("chat not found")

// CannedReply is sent when no language model is configured.
const CannedReply = "I understand your question about medical concerns. Let me help you with that. [This is a simulated response]"

// Responder produces the assistant's next message for a transcript.
type Responder interface {
	Respond(ctx context.Context, history []domain.Message) (string, error)
}

type CannedResponder struct{}

func (CannedResponder) Respond(context.Context, []domain.Message) (string, error) {
	return CannedReply, nil
}

// Generator is the part of the Gemini client used for text replies.
type Generator interface {
	Generate(ctx context.Context, parts ...gemini.Part) (string, error)
}

const assistantPreamble = "You are MediScan, a careful medical information assistant. " +
	"Answer clearly, avoid diagnoses, and suggest seeing a professional when symptoms are serious.\n\n"

// GeminiResponder flattens the transcript into a single prompt.
type GeminiResponder struct {
	Model Generator
}

func (g GeminiResponder) Respond(ctx context.Context, history []domain.Message) (string, error) {
	var b strings.Builder
	b.WriteString(assistantPreamble)
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("assistant:")

	reply, err := g.Model.Generate(ctx, gemini.Text(b.String()))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

type ChatService struct {
	Store     store.Store
	Responder Responder
	Retention time.Duration
	Now       func() time.Time
}

func (s *ChatService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ChatService) retention() time.Duration {
	if s.Retention <= 0 {
		return domain.DefaultChatRetention
	}
	return s.Retention
}

func (s *ChatService) ListChats(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	chats, err := s.Store.Chats().ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []domain.ChatSummary{}
	}
	return chats, nil
}

// CreateChat opens a chat seeded with the assistant greeting.
func (s *ChatService) CreateChat(ctx context.Context, userID, title string) (domain.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultChatTitle
	}

	now := s.now()
	c := domain.Chat{
		ID:     idx.NewAt(now).String(),
		UserID: userID,
		Title:  title,
		Messages: []domain.Message{{
			ID:        idx.NewAt(now).String(),
			Role:      domain.MessageAssistant,
			Content:   domain.ChatGreeting,
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.retention()),
	}
	if err := s.Store.Chats().CreateChat(ctx, c); err != nil {
		return domain.Chat{}, err
	}
	return c, nil
}

func (s *ChatService) GetChat(ctx context.Context, userID, chatID string) (domain.Chat, error) {
	c, err := s.Store.Chats().GetChat(ctx, userID, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Chat{}, ErrChatNotFound
	}
	return c, err
}

// SendMessage appends the user's message and the assistant's reply, and
// pushes the chat's expiry out by the retention period.
func (s *ChatService) SendMessage(ctx context.Context, userID, chatID, content string) (domain.Chat, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Chat{}, domain.ErrEmptyMessage
	}

	c, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return domain.Chat{}, err
	}

	sent := domain.Message{
		ID:        idx.NewAt(s.now()).String(),
		Role:      domain.MessageUser,
		Content:   content,
		CreatedAt: s.now(),
	}

	reply, err := s.Responder.Respond(ctx, append(c.Messages, sent))
	if err != nil {
		slogx.FromContext(ctx).Error("assistant reply failed", slog.String("chat_id", chatID), slog.Any("error", err))
		return domain.Chat{}, fmt.Errorf("generate reply: %w", err)
	}

	now := s.now()
	answer := domain.Message{
		ID:        idx.NewAt(now).String(),
		Role:      domain.MessageAssistant,
		Content:   reply,
		CreatedAt: now,
	}

	expires := now.Add(s.retention())
	err = s.Store.Chats().AppendMessages(ctx, userID, chatID, []domain.Message{sent, answer}, now, expires)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return domain.Chat{}, err
	}

	c.Messages = append(c.Messages, sent, answer)
	c.UpdatedAt = now
	c.ExpiresAt = expires
	return c, nil
}

func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID string) error {
	err := s.Store.Chats().DeleteChat(ctx, userID, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChatNotFound
	}
	return err
}
