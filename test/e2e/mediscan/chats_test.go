package mediscan_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChats(t *testing.T) {
	baseURL := setupContainer(t, nil)
	ctx := t.Context()
	sess := registerUser(t, baseURL, "ada@example.com")
	other := registerUser(t, baseURL, "eve@example.com")

	chat, err := sess.CreateChat(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "New Chat", chat.Title)
	require.Len(t, chat.Messages, 1)
	require.Equal(t, "assistant", chat.Messages[0].Role)

	chat, err = sess.SendMessage(ctx, chat.ID, "I have a headache")
	require.NoError(t, err)
	require.Len(t, chat.Messages, 3)
	require.Equal(t, "user", chat.Messages[1].Role)
	require.NotEmpty(t, chat.Messages[2].Content)

	_, err = sess.SendMessage(ctx, chat.ID, "   ")
	requireStatus(t, err, http.StatusBadRequest)

	list, err := sess.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 3, list[0].MessageCount)

	_, err = other.GetChat(ctx, chat.ID)
	requireStatus(t, err, http.StatusNotFound, "chats are private")

	require.NoError(t, sess.DeleteChat(ctx, chat.ID))
	_, err = sess.GetChat(ctx, chat.ID)
	requireStatus(t, err, http.StatusNotFound)
}
