package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/mediscansdk"
)

type ChatsHandler struct {
	ChatService *service.ChatService
}

// HandleList returns the caller's chats, most recently active first.
//
//	@Summary		List chats
//	@Tags			Chats
//	@Produce		json
//	@Success		200	{object}	mediscansdk.ChatListResponse
//	@Security		BearerAuth
//	@Router			/api/chats [get].
func (h *ChatsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	chats, err := h.ChatService.ListChats(r.Context(), httpx.UserIDFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Chats retrieved successfully", chats)
}

// HandleCreate starts a chat seeded with the assistant greeting.
//
//	@Summary		Create chat
//	@Tags			Chats
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mediscansdk.CreateChatRequest	false	"Optional title"
//	@Success		201		{object}	mediscansdk.ChatResponse
//	@Security		BearerAuth
//	@Router			/api/chats [post].
func (h *ChatsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in mediscansdk.CreateChatRequest
	if err := httpx.DecodeJSON(r, &in, false); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		fail(w, r, err)
		return
	}

	chat, err := h.ChatService.CreateChat(r.Context(), httpx.UserIDFrom(r.Context()), in.Title)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusCreated, "Chat created successfully", chat)
}

// HandleGet returns one chat with its messages.
//
//	@Summary		Get chat
//	@Tags			Chats
//	@Produce		json
//	@Param			chatId	path		string	true	"Chat ID"
//	@Success		200		{object}	mediscansdk.ChatResponse
//	@Failure		404		{object}	mediscansdk.ErrorResponse	"Chat not found"
//	@Security		BearerAuth
//	@Router			/api/chats/{chatId} [get].
func (h *ChatsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	chat, err := h.ChatService.GetChat(r.Context(), httpx.UserIDFrom(r.Context()), r.PathValue("chatId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Chat retrieved successfully", chat)
}

// HandleSend appends a user message and the assistant's reply.
//
//	@Summary		Send message
//	@Tags			Chats
//	@Accept			json
//	@Produce		json
//	@Param			chatId	path		string							true	"Chat ID"
//	@Param			request	body		mediscansdk.SendMessageRequest	true	"Message"
//	@Success		200		{object}	mediscansdk.ChatResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Message content is required"
//	@Failure		404		{object}	mediscansdk.ErrorResponse	"Chat not found"
//	@Security		BearerAuth
//	@Router			/api/chats/{chatId}/messages [post].
func (h *ChatsHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var in mediscansdk.SendMessageRequest
	if err := httpx.DecodeJSON(r, &in, false); err != nil {
		fail(w, r, err)
		return
	}

	chat, err := h.ChatService.SendMessage(r.Context(), httpx.UserIDFrom(r.Context()), r.PathValue("chatId"), in.Content)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Message sent successfully", chat)
}

// HandleDelete removes a chat.
//
//	@Summary		Delete chat
//	@Tags			Chats
//	@Produce		json
//	@Param			chatId	path		string	true	"Chat ID"
//	@Success		200		{object}	mediscansdk.ErrorResponse	"Chat deleted"
//	@Failure		404		{object}	mediscansdk.ErrorResponse	"Chat not found"
//	@Security		BearerAuth
//	@Router			/api/chats/{chatId} [delete].
func (h *ChatsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.ChatService.DeleteChat(r.Context(), httpx.UserIDFrom(r.Context()), r.PathValue("chatId")); err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Chat deleted successfully", nil)
}
