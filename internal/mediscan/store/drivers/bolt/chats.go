package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"go.etcd.io/bbolt"
)

type chatsRepo struct {
	c conn
}

// loadChat returns the chat only if userID owns it.
func loadChat(tx *bbolt.Tx, userID, chatID string) (domain.Chat, error) {
	var ch domain.Chat
	if err := getJSON(tx.Bucket(bucketChats), []byte(chatID), &ch); err != nil {
		return domain.Chat{}, err
	}
	if ch.UserID != userID {
		return domain.Chat{}, store.ErrNotFound
	}
	return ch, nil
}

func (r *chatsRepo) CreateChat(_ context.Context, ch domain.Chat) error {
	if ch.Messages == nil {
		ch.Messages = []domain.Message{}
	}
	return r.c.update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketUsers).Get([]byte(ch.UserID)) == nil {
			return store.ErrNotFound
		}
		chats := tx.Bucket(bucketChats)
		if chats.Get([]byte(ch.ID)) != nil {
			return store.ErrAlreadyExists
		}
		if err := putJSON(chats, []byte(ch.ID), ch); err != nil {
			return err
		}
		return tx.Bucket(bucketChatsByUser).Put(compositeKey(ch.UserID, ch.ID), nil)
	})
}

func (r *chatsRepo) GetChat(_ context.Context, userID, chatID string) (domain.Chat, error) {
	var ch domain.Chat
	err := r.c.view(func(tx *bbolt.Tx) error {
		var err error
		ch, err = loadChat(tx, userID, chatID)
		return err
	})
	return ch, err
}

func (r *chatsRepo) ListChats(_ context.Context, userID string) ([]domain.ChatSummary, error) {
	out := []domain.ChatSummary{}
	err := r.c.view(func(tx *bbolt.Tx) error {
		chats := tx.Bucket(bucketChats)
		prefix := compositeKey(userID)
		cur := tx.Bucket(bucketChatsByUser).Cursor()
		for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
			chatID := bytes.TrimSuffix(k[len(prefix):], []byte{0})
			var ch domain.Chat
			if err := getJSON(chats, chatID, &ch); err != nil {
				return err
			}
			out = append(out, ch.Summary())
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r *chatsRepo) AppendMessages(
	_ context.Context,
	userID, chatID string,
	msgs []domain.Message,
	updatedAt, expiresAt time.Time,
) error {
	return r.c.update(func(tx *bbolt.Tx) error {
		ch, err := loadChat(tx, userID, chatID)
		if err != nil {
			return err
		}
		ch.Messages = append(ch.Messages, msgs...)
		ch.UpdatedAt = updatedAt.UTC()
		ch.ExpiresAt = expiresAt.UTC()
		return putJSON(tx.Bucket(bucketChats), []byte(chatID), ch)
	})
}

func deleteChat(tx *bbolt.Tx, ch domain.Chat) error {
	if err := tx.Bucket(bucketChats).Delete([]byte(ch.ID)); err != nil {
		return err
	}
	return tx.Bucket(bucketChatsByUser).Delete(compositeKey(ch.UserID, ch.ID))
}

func (r *chatsRepo) DeleteChat(_ context.Context, userID, chatID string) error {
	return r.c.update(func(tx *bbolt.Tx) error {
		ch, err := loadChat(tx, userID, chatID)
		if err != nil {
			return err
		}
		return deleteChat(tx, ch)
	})
}

func (r *chatsRepo) DeleteExpiredChats(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.c.update(func(tx *bbolt.Tx) error {
		var expired []domain.Chat
		err := tx.Bucket(bucketChats).ForEach(func(_, v []byte) error {
			var ch domain.Chat
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			if !ch.ExpiresAt.After(now) {
				expired = append(expired, ch)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Deleting while iterating with ForEach is not allowed.
		for _, ch := range expired {
			if err := deleteChat(tx, ch); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}
