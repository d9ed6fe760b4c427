// Package storetest is a conformance suite every store driver must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns a migrated, empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("lockout", func(t *testing.T) { testLockout(t, newStore(t)) })
	t.Run("lockout concurrent", func(t *testing.T) { testLockoutConcurrent(t, newStore(t)) })
	t.Run("user update concurrent", func(t *testing.T) { testUserUpdateConcurrent(t, newStore(t)) })
	t.Run("token version", func(t *testing.T) { testTokenVersion(t, newStore(t)) })
	t.Run("list users", func(t *testing.T) { testListUsers(t, newStore(t)) })
	t.Run("tx", func(t *testing.T) { testTx(t, newStore(t)) })
	t.Run("chats", func(t *testing.T) { testChats(t, newStore(t)) })
	t.Run("chat expiry", func(t *testing.T) { testChatExpiry(t, newStore(t)) })
	t.Run("health", func(t *testing.T) { testHealth(t, newStore(t)) })
}

// NewUser returns a valid local user with a unique id and email.
func NewUser(email string) domain.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.User{
		ID:         idx.New().String(),
		Email:      email,
		Username:   domain.UsernameFromEmail(email),
		Credential: domain.LocalCredential{Hash: "$argon2id$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"},
		Role:       domain.RoleUser,
		Active:     true,
		Details:    domain.NewDetails("Test", "User"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	users := s.Users()

	u := NewUser("alice@example.com")
	u.Details.Address.City = "Sydney"
	require.NoError(t, users.CreateUser(ctx, u))

	got, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
	require.Equal(t, u.Credential, got.Credential)
	require.Equal(t, "Sydney", got.Details.Address.City)
	require.True(t, got.Active)
	require.WithinDuration(t, u.CreatedAt, got.CreatedAt, time.Second)

	got, err = users.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = users.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	dup := NewUser("alice@example.com")
	require.ErrorIs(t, users.CreateUser(ctx, dup), store.ErrAlreadyExists)

	ext := NewUser("bob@example.com")
	ext.Credential = domain.ExternalCredential{ProviderID: "user_bob"}
	require.NoError(t, users.CreateUser(ctx, ext))

	got, err = users.GetUserByExternalID(ctx, "user_bob")
	require.NoError(t, err)
	require.Equal(t, ext.ID, got.ID)
	_, ok := got.PasswordHash()
	require.False(t, ok)

	ext2 := NewUser("carol@example.com")
	ext2.Credential = domain.ExternalCredential{ProviderID: "user_bob"}
	require.ErrorIs(t, users.CreateUser(ctx, ext2), store.ErrAlreadyExists)

	// Profile update and email uniqueness.
	got, err = users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	got.Details.Phone = "+61 400 000 000"
	got.Email = "alice2@example.com"
	require.NoError(t, users.UpdateUser(ctx, got))

	got, err = users.GetUserByEmail(ctx, "alice2@example.com")
	require.NoError(t, err)
	require.Equal(t, "+61 400 000 000", got.Details.Phone)

	got.Email = "bob@example.com"
	require.ErrorIs(t, users.UpdateUser(ctx, got), store.ErrAlreadyExists)

	missing := NewUser("nobody@example.com")
	require.ErrorIs(t, users.UpdateUser(ctx, missing), store.ErrNotFound)

	// Role and status.
	has, err := users.HasAdmin(ctx)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, users.SetRole(ctx, u.ID, domain.RoleAdmin))
	has, err = users.HasAdmin(ctx)
	require.NoError(t, err)
	require.True(t, has)
	require.ErrorIs(t, users.SetRole(ctx, "missing", domain.RoleAdmin), store.ErrNotFound)

	require.NoError(t, users.SetActive(ctx, u.ID, false))
	got, err = users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Equal(t, domain.RoleAdmin, got.Role)
}

func testLockout(t *testing.T, s store.Store) {
	ctx := context.Background()
	users := s.Users()

	u := NewUser("lock@example.com")
	require.NoError(t, users.CreateUser(ctx, u))

	now := time.Now().UTC().Truncate(time.Second)
	policy := domain.LockoutPolicy{MaxAttempts: 2, Duration: time.Hour}
	fail := func(l domain.Lockout) domain.Lockout { return l.RegisterFailure(now, policy) }

	l, err := users.ModifyLockout(ctx, u.ID, fail)
	require.NoError(t, err)
	require.Equal(t, 1, l.Attempts)

	l, err = users.ModifyLockout(ctx, u.ID, fail)
	require.NoError(t, err)
	require.True(t, l.Locked(now))

	got, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Lockout.Attempts)
	require.NotNil(t, got.Lockout.LockedUntil)
	require.WithinDuration(t, now.Add(time.Hour), *got.Lockout.LockedUntil, time.Second)

	at := now.Add(2 * time.Hour)
	require.NoError(t, users.RecordLogin(ctx, u.ID, at))

	got, err = users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, got.Lockout.Attempts)
	require.Nil(t, got.Lockout.LockedUntil)
	require.NotNil(t, got.LastLogin)
	require.WithinDuration(t, at, *got.LastLogin, time.Second)

	_, err = users.ModifyLockout(ctx, "missing", fail)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testLockoutConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser("race@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Users().ModifyLockout(ctx, u.ID, func(l domain.Lockout) domain.Lockout {
				l.Attempts++
				return l
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, n, got.Lockout.Attempts)
}

func testUserUpdateConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser("profile-race@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.WithTx(ctx, func(tx store.Tx) error {
				cur, err := tx.Users().GetUserForUpdate(ctx, u.ID)
				if err != nil {
					return err
				}
				cur.Details.Health.Allergies = append(cur.Details.Health.Allergies, fmt.Sprintf("allergen-%d", i))
				return tx.Users().UpdateUser(ctx, cur)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Details.Health.Allergies, n)

	_, err = s.Users().GetUserForUpdate(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testTokenVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser("tv@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	v, err := s.Users().BumpTokenVersion(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = s.Users().BumpTokenVersion(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, v)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.TokenVersion)

	_, err = s.Users().BumpTokenVersion(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testListUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	for i := range 5 {
		u := NewUser(fmt.Sprintf("user%d@example.com", i))
		u.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		u.UpdatedAt = u.CreatedAt
		require.NoError(t, s.Users().CreateUser(ctx, u))
	}

	page, total, err := s.Users().ListUsers(ctx, 2, 0)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, page, 2)
	require.Equal(t, "user4@example.com", page[0].Email)
	require.Equal(t, "user3@example.com", page[1].Email)

	page, _, err = s.Users().ListUsers(ctx, 10, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "user0@example.com", page[0].Email)
}

func testTx(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	u := NewUser("tx@example.com")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Users().GetUserByID(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		if _, err := tx.Users().BumpTokenVersion(ctx, u.ID); err != nil {
			return err
		}
		require.ErrorIs(t, tx.WithTx(ctx, func(store.Tx) error { return nil }), store.ErrTxDone)
		return tx.Users().SetActive(ctx, u.ID, false)
	})
	require.NoError(t, err)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.EqualValues(t, 1, got.TokenVersion)
}

func newChat(userID, title string, at time.Time) domain.Chat {
	return domain.Chat{
		ID:     idx.NewAt(at).String(),
		UserID: userID,
		Title:  title,
		Messages: []domain.Message{{
			ID:        idx.NewAt(at).String(),
			Role:      domain.MessageAssistant,
			Content:   domain.ChatGreeting,
			CreatedAt: at,
		}},
		CreatedAt: at,
		UpdatedAt: at,
		ExpiresAt: at.Add(domain.DefaultChatRetention),
	}
}

func testChats(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice, bob := NewUser("alice@example.com"), NewUser("bob@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, alice))
	require.NoError(t, s.Users().CreateUser(ctx, bob))

	now := time.Now().UTC().Truncate(time.Millisecond)
	first := newChat(alice.ID, "First", now.Add(-time.Hour))
	second := newChat(alice.ID, "Second", now)
	require.NoError(t, s.Chats().CreateChat(ctx, first))
	require.NoError(t, s.Chats().CreateChat(ctx, second))

	list, err := s.Chats().ListChats(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Second", list[0].Title)
	require.Equal(t, 1, list[0].MessageCount)

	list, err = s.Chats().ListChats(ctx, bob.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	// Other users cannot see or touch the chat.
	_, err = s.Chats().GetChat(ctx, bob.ID, first.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Chats().DeleteChat(ctx, bob.ID, first.ID), store.ErrNotFound)

	later := now.Add(time.Minute)
	msgs := []domain.Message{
		{ID: idx.NewAt(later).String(), Role: domain.MessageUser, Content: "hi", CreatedAt: later},
		{ID: idx.NewAt(later).String(), Role: domain.MessageAssistant, Content: "hello", CreatedAt: later},
	}
	require.NoError(t, s.Chats().AppendMessages(ctx, alice.ID, first.ID, msgs, later, later.Add(domain.DefaultChatRetention)))
	require.ErrorIs(t,
		s.Chats().AppendMessages(ctx, bob.ID, first.ID, msgs[:1], later, later),
		store.ErrNotFound)

	got, err := s.Chats().GetChat(ctx, alice.ID, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	require.Equal(t, domain.ChatGreeting, got.Messages[0].Content)
	require.Equal(t, "hi", got.Messages[1].Content)
	require.Equal(t, "hello", got.Messages[2].Content)
	require.WithinDuration(t, later, got.UpdatedAt, time.Second)

	list, err = s.Chats().ListChats(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "First", list[0].Title)

	require.NoError(t, s.Chats().DeleteChat(ctx, alice.ID, first.ID))
	_, err = s.Chats().GetChat(ctx, alice.ID, first.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testChatExpiry(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser("expiry@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	now := time.Now().UTC().Truncate(time.Second)
	old := newChat(u.ID, "Old", now.Add(-31*24*time.Hour))
	fresh := newChat(u.ID, "Fresh", now)
	require.NoError(t, s.Chats().CreateChat(ctx, old))
	require.NoError(t, s.Chats().CreateChat(ctx, fresh))

	n, err := s.Chats().DeleteExpiredChats(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	list, err := s.Chats().ListChats(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Fresh", list[0].Title)

	n, err = s.Chats().DeleteExpiredChats(ctx, now)
	require.NoError(t, err)
	require.Zero(t, n)
}

func testHealth(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, other := NewUser("health@example.com"), NewUser("other@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))
	require.NoError(t, s.Users().CreateUser(ctx, other))

	now := time.Now().UTC().Truncate(time.Millisecond)
	data, err := json.Marshal(map[string]any{"name": "Peanuts", "severity": "Severe"})
	require.NoError(t, err)

	e := domain.Entry{
		ID:        idx.New().String(),
		UserID:    u.ID,
		Kind:      domain.KindAllergies,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Health().AddEntry(ctx, e))

	second := e
	second.ID = idx.New().String()
	second.CreatedAt = now.Add(time.Second)
	second.Data = json.RawMessage(`{"name":"Dust","severity":"Mild"}`)
	require.NoError(t, s.Health().AddEntry(ctx, second))

	list, err := s.Health().ListEntries(ctx, u.ID, domain.KindAllergies)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, e.ID, list[0].ID)
	require.JSONEq(t, string(data), string(list[0].Data))

	list, err = s.Health().ListEntries(ctx, u.ID, domain.KindMedications)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = s.Health().GetEntry(ctx, other.ID, domain.KindAllergies, e.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Health().GetEntry(ctx, u.ID, domain.KindConditions, e.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	e.Data = json.RawMessage(`{"name":"Peanuts","severity":"Moderate"}`)
	e.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, s.Health().UpdateEntry(ctx, e))

	got, err := s.Health().GetEntry(ctx, u.ID, domain.KindAllergies, e.ID)
	require.NoError(t, err)
	require.JSONEq(t, string(e.Data), string(got.Data))
	require.WithinDuration(t, e.UpdatedAt, got.UpdatedAt, time.Second)

	stranger := e
	stranger.UserID = other.ID
	require.ErrorIs(t, s.Health().UpdateEntry(ctx, stranger), store.ErrNotFound)

	require.NoError(t, s.Health().DeleteEntry(ctx, u.ID, domain.KindAllergies, e.ID))
	require.ErrorIs(t, s.Health().DeleteEntry(ctx, u.ID, domain.KindAllergies, e.ID), store.ErrNotFound)
}
