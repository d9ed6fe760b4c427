package mediscansdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

func (s *Session) ListChats(ctx context.Context) ([]ChatSummary, error) {
	return call[[]ChatSummary](ctx, s, request{method: http.MethodGet, path: "/api/chats"}, http.StatusOK)
}

// CreateChat starts a conversation. An empty title gets the server default.
func (s *Session) CreateChat(ctx context.Context, title string) (*Chat, error) {
	c, err := call[Chat](ctx, s, request{method: http.MethodPost, path: "/api/chats", body: CreateChatRequest{Title: title}}, http.StatusCreated)
	return &c, err
}

func (s *Session) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	c, err := call[Chat](ctx, s, request{method: http.MethodGet, path: "/api/chats/" + url.PathEscape(chatID)}, http.StatusOK)
	return &c, err
}

// SendMessage posts a user message and returns the chat with the reply.
func (s *Session) SendMessage(ctx context.Context, chatID, content string) (*Chat, error) {
	c, err := call[Chat](ctx, s, request{
		method: http.MethodPost,
		path:   "/api/chats/" + url.PathEscape(chatID) + "/messages",
		body:   SendMessageRequest{Content: content},
	}, http.StatusOK)
	return &c, err
}

func (s *Session) DeleteChat(ctx context.Context, chatID string) error {
	_, err := call[any](ctx, s, request{method: http.MethodDelete, path: "/api/chats/" + url.PathEscape(chatID)}, http.StatusOK)
	return err
}

// Analyze sends a data URL image and returns the model's JSON verbatim.
func (s *Session) Analyze(ctx context.Context, dataURL string) (json.RawMessage, error) {
	return call[json.RawMessage](ctx, s, request{method: http.MethodPost, path: "/api/analyze", body: AnalyzeRequest{Image: dataURL}}, http.StatusOK)
}
