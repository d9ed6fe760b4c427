package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func patchOf(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

// Concurrent writers to different fields must both land.
func TestUpdateProfileConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	reg := e.register(t, "ada@example.com")
	svc := &ProfileService{Store: e.store}

	patches := []string{
		`{"firstName": "Augusta"}`,
		`{"phone": "0400 000 000"}`,
		`{"location": "London"}`,
		`{"health": {"bloodType": "O+"}}`,
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(patches))
	for _, p := range patches {
		patch := patchOf(t, p)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateProfile(ctx, reg.User.ID, patch)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.GetProfile(ctx, reg.User.ID)
	require.NoError(t, err)
	require.Equal(t, "Augusta", got.Details.FirstName)
	require.Equal(t, "0400 000 000", got.Details.Phone)
	require.Equal(t, "London", got.Details.Address.City)
	require.Equal(t, "O+", got.Details.Health.BloodType)
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("applies allow-listed fields", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")
		svc := &ProfileService{Store: e.store}

		u, err := svc.UpdateProfile(ctx, reg.User.ID, patchOf(t, `{
			"firstName": " Augusta ",
			"phone": "0400 000 000",
			"location": "London",
			"address": {"country": "UK"},
			"health": {"bloodType": "O+", "height": 165, "allergies": ["pollen"]},
			"emergencyContact": {"name": "Charles", "relationship": "friend"}
		}`))
		require.NoError(t, err)

		require.Equal(t, "Augusta", u.Details.FirstName)
		require.Equal(t, "Lovelace", u.Details.LastName)
		require.Equal(t, "0400 000 000", u.Details.Phone)
		require.Equal(t, "London", u.Details.Address.City)
		require.Equal(t, "UK", u.Details.Address.Country)
		require.Equal(t, "O+", u.Details.Health.BloodType)
		require.InDelta(t, 165, u.Details.Health.Height, 0.001)
		require.Equal(t, []string{"pollen"}, u.Details.Health.Allergies)
		require.Equal(t, "Charles", u.Details.EmergencyContact.Name)

		// Stored, not just returned.
		got, err := svc.GetProfile(ctx, reg.User.ID)
		require.NoError(t, err)
		require.Equal(t, "London", got.Details.Address.City)
	})

	t.Run("unknown key leaves record unchanged", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")
		svc := &ProfileService{Store: e.store}

		_, err := svc.UpdateProfile(ctx, reg.User.ID, patchOf(t, `{"firstName": "X", "role": "admin"}`))
		var fe *FieldNotAllowedError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, "role", fe.Field)
		require.Equal(t, "Field not allowed: role", err.Error())

		got, err := svc.GetProfile(ctx, reg.User.ID)
		require.NoError(t, err)
		require.Equal(t, "Ada", got.Details.FirstName)
	})

	t.Run("unknown nested key", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")
		svc := &ProfileService{Store: e.store}

		_, err := svc.UpdateProfile(ctx, reg.User.ID, patchOf(t, `{"health": {"passwordHash": "x"}}`))
		var fe *FieldNotAllowedError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, "health.passwordHash", fe.Field)
	})

	t.Run("empty update", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")
		svc := &ProfileService{Store: e.store}

		_, err := svc.UpdateProfile(ctx, reg.User.ID, map[string]json.RawMessage{})
		require.ErrorIs(t, err, ErrUpdateRequired)
	})

	t.Run("email must be unique", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")
		e.register(t, "charles@example.com")
		svc := &ProfileService{Store: e.store}

		_, err := svc.UpdateProfile(ctx, reg.User.ID, patchOf(t, `{"email": "Charles@example.com"}`))
		require.ErrorIs(t, err, ErrEmailInUse)

		u, err := svc.UpdateProfile(ctx, reg.User.ID, patchOf(t, `{"email": "countess@example.com"}`))
		require.NoError(t, err)
		require.Equal(t, "countess@example.com", u.Email)

		_, err = e.account.Login(ctx, "countess@example.com", "correct-horse")
		require.NoError(t, err)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")
		svc := &ProfileService{Store: e.store}

		_, err := svc.UpdateProfile(ctx, reg.User.ID, patchOf(t, `{"lastName": ""}`))
		var inv *InvalidInputError
		require.ErrorAs(t, err, &inv)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc := &ProfileService{Store: newStore(t)}
		_, err := svc.UpdateProfile(ctx, "missing", patchOf(t, `{"phone": "1"}`))
		require.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUpdatePreferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	reg := e.register(t, "ada@example.com")
	svc := &ProfileService{Store: e.store}

	u, err := svc.UpdatePreferences(ctx, reg.User.ID, patchOf(t, `{"theme": "dark", "notifications": {"sms": true}}`))
	require.NoError(t, err)
	require.Equal(t, "dark", u.Details.Settings.Theme)
	require.Equal(t, "en", u.Details.Settings.Language)
	require.True(t, u.Details.Settings.Notifications.SMS)
	require.True(t, u.Details.Settings.Notifications.Email)

	_, err = svc.UpdatePreferences(ctx, reg.User.ID, patchOf(t, `{"firstName": "X"}`))
	var fe *FieldNotAllowedError
	require.ErrorAs(t, err, &fe)
}
