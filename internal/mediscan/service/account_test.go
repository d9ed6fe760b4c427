package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/storetest"
	"github.com/aussiebroadwan/mediscan/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates account and session", func(t *testing.T) {
		e := newEnv(t)
		res := e.register(t, " Ada@Example.com ")

		require.Equal(t, "ada@example.com", res.User.Email)
		require.Equal(t, "ada", res.User.Username)
		require.Equal(t, domain.RoleUser, res.User.Role)
		require.True(t, res.User.Active)
		require.NotEmpty(t, res.Session.AccessToken)
		require.NotEmpty(t, res.Session.RefreshToken)

		v := e.tokens.VerifyAccessToken(res.Session.AccessToken)
		require.True(t, v.Valid())
		require.Equal(t, res.User.ID, v.UserID())

		hash, ok := res.User.PasswordHash()
		require.True(t, ok)
		require.NotContains(t, hash, "correct-horse")
	})

	t.Run("duplicate email", func(t *testing.T) {
		e := newEnv(t)
		e.register(t, "ada@example.com")

		_, err := e.account.Register(ctx, RegisterInput{Email: "ADA@example.com", Password: "another-pass", FirstName: "A", LastName: "B"})
		require.ErrorIs(t, err, ErrUserExists)

		_, total, err := e.store.Users().ListUsers(ctx, 10, 0)
		require.NoError(t, err)
		require.Equal(t, 1, total)
	})

	tests := []struct {
		name string
		in   RegisterInput
		msg  string
	}{
		{"bad email", RegisterInput{Email: "nope", Password: "longenough", FirstName: "A", LastName: "B"}, "Please provide a valid email"},
		{"short password", RegisterInput{Email: "a@b.co", Password: "short", FirstName: "A", LastName: "B"}, "Password must be at least 8 characters"},
		{"missing names", RegisterInput{Email: "a@b.co", Password: "longenough", FirstName: " "}, "First name and last name are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, err := e.account.Register(ctx, tt.in)

			var inv *InvalidInputError
			require.ErrorAs(t, err, &inv)
			require.Equal(t, tt.msg, inv.Message)
		})
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success resets lockout and stamps last login", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")

		_, err := e.account.Login(ctx, "ada@example.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		res, err := e.account.Login(ctx, "ADA@example.com", "correct-horse")
		require.NoError(t, err)
		require.Equal(t, reg.User.ID, res.User.ID)

		stored, err := e.store.Users().GetUserByID(ctx, reg.User.ID)
		require.NoError(t, err)
		require.Zero(t, stored.Lockout.Attempts)
		require.Nil(t, stored.Lockout.LockedUntil)
		require.NotNil(t, stored.LastLogin)
		require.WithinDuration(t, e.clock.Now(), *stored.LastLogin, time.Second)
	})

	t.Run("failures are indistinguishable", func(t *testing.T) {
		e := newEnv(t)
		e.register(t, "ada@example.com")

		ext := storetest.NewUser("ext@example.com")
		ext.Credential = domain.ExternalCredential{ProviderID: "sub-1"}
		require.NoError(t, e.store.Users().CreateUser(ctx, ext))

		for _, tc := range [][2]string{
			{"nobody@example.com", "correct-horse"},
			{"ada@example.com", "wrong-password"},
			{"ext@example.com", "anything"},
		} {
			_, err := e.account.Login(ctx, tc[0], tc[1])
			require.ErrorIs(t, err, ErrInvalidCredentials, tc[0])
		}
	})

	t.Run("locks after five failures", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")

		for range 5 {
			_, err := e.account.Login(ctx, "ada@example.com", "wrong-password")
			require.ErrorIs(t, err, ErrInvalidCredentials)
		}

		stored, err := e.store.Users().GetUserByID(ctx, reg.User.ID)
		require.NoError(t, err)
		require.Equal(t, 5, stored.Lockout.Attempts)
		require.NotNil(t, stored.Lockout.LockedUntil)
		require.WithinDuration(t, e.clock.Now().Add(time.Hour), *stored.Lockout.LockedUntil, time.Second)

		// The right password does not help while locked.
		_, err = e.account.Login(ctx, "ada@example.com", "correct-horse")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		e.clock.Advance(time.Hour + time.Minute)
		_, err = e.account.Login(ctx, "ada@example.com", "correct-horse")
		require.NoError(t, err)
	})

	t.Run("expired lock restarts the count", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")

		for range 5 {
			_, _ = e.account.Login(ctx, "ada@example.com", "wrong-password")
		}
		e.clock.Advance(2 * time.Hour)

		_, err := e.account.Login(ctx, "ada@example.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		stored, err := e.store.Users().GetUserByID(ctx, reg.User.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.Lockout.Attempts)
		require.False(t, stored.Lockout.Locked(e.clock.Now()))
	})

	t.Run("concurrent failures are all counted", func(t *testing.T) {
		e := newEnv(t)
		e.account.Lockout = domain.LockoutPolicy{MaxAttempts: 100, Duration: time.Hour}
		reg := e.register(t, "ada@example.com")

		var wg sync.WaitGroup
		for range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = e.account.Login(ctx, "ada@example.com", "wrong-password")
			}()
		}
		wg.Wait()

		stored, err := e.store.Users().GetUserByID(ctx, reg.User.ID)
		require.NoError(t, err)
		require.Equal(t, 6, stored.Lockout.Attempts)
	})

	t.Run("disabled account after correct password", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")
		require.NoError(t, e.store.Users().SetActive(ctx, reg.User.ID, false))

		_, err := e.account.Login(ctx, "ada@example.com", "correct-horse")
		require.ErrorIs(t, err, ErrAccountDisabled)

		_, err = e.account.Login(ctx, "ada@example.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestRefreshAndLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.account.Refresh(ctx, "")
		require.ErrorIs(t, err, ErrRefreshRequired)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")
		_, err := e.account.Refresh(ctx, reg.Session.AccessToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})

	t.Run("rotates tokens", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")

		e.clock.Advance(time.Minute)
		res, err := e.account.Refresh(ctx, reg.Session.RefreshToken)
		require.NoError(t, err)
		require.Equal(t, reg.User.ID, res.User.ID)
		require.NotEqual(t, reg.Session.RefreshToken, res.Session.RefreshToken)

		// Rotation keeps the token version, so the old token still works
		// until the user logs out.
		_, err = e.account.Refresh(ctx, reg.Session.RefreshToken)
		require.NoError(t, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		e := newEnv(t)
		tok, _, err := e.tokens.IssueRefreshToken("01JNOSUCHUSER0000000000000", 0)
		require.NoError(t, err)

		_, err = e.account.Refresh(ctx, tok)
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("logout revokes refresh tokens", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")

		e.account.Logout(ctx, reg.Session.RefreshToken)

		_, err := e.account.Refresh(ctx, reg.Session.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)

		// A fresh login gets a token at the new version.
		res, err := e.account.Login(ctx, "ada@example.com", "correct-horse")
		require.NoError(t, err)
		_, err = e.account.Refresh(ctx, res.Session.RefreshToken)
		require.NoError(t, err)
	})

	t.Run("logout tolerates garbage", func(t *testing.T) {
		e := newEnv(t)
		e.account.Logout(ctx, "")
		e.account.Logout(ctx, "not-a-token")
	})

	t.Run("expired refresh token", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "ada@example.com")
		e.clock.Advance(8 * 24 * time.Hour)

		_, err := e.account.Refresh(ctx, reg.Session.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})
}

type fakeExternal struct {
	claims jwtx.ExternalClaims
	err    error
}

func (f fakeExternal) Verify(context.Context, string) (jwtx.ExternalClaims, error) {
	return f.claims, f.err
}

func externalClaims(sub, email string) jwtx.ExternalClaims {
	return jwtx.ExternalClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
		Email:            email,
		GivenName:        "Grace",
		FamilyName:       "Hopper",
	}
}

func TestExternalLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.account.ExternalLogin(ctx, "token")
		require.ErrorIs(t, err, ErrExternalDisabled)
	})

	t.Run("creates then reuses the account", func(t *testing.T) {
		e := newEnv(t)
		e.account.External = fakeExternal{claims: externalClaims("sub-1", "Grace@Example.com")}

		first, err := e.account.ExternalLogin(ctx, "token")
		require.NoError(t, err)
		require.Equal(t, "grace@example.com", first.User.Email)
		require.Equal(t, "external", first.User.Provider())
		require.Equal(t, "Grace", first.User.Details.FirstName)

		second, err := e.account.ExternalLogin(ctx, "token")
		require.NoError(t, err)
		require.Equal(t, first.User.ID, second.User.ID)

		// External accounts cannot sign in with a password.
		_, err = e.account.Login(ctx, "grace@example.com", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("email owned by local account", func(t *testing.T) {
		e := newEnv(t)
		e.register(t, "ada@example.com")
		e.account.External = fakeExternal{claims: externalClaims("sub-2", "ada@example.com")}

		_, err := e.account.ExternalLogin(ctx, "token")
		require.ErrorIs(t, err, ErrEmailInUse)
	})

	t.Run("rejected token", func(t *testing.T) {
		e := newEnv(t)
		e.account.External = fakeExternal{err: errors.New("bad signature")}

		_, err := e.account.ExternalLogin(ctx, "token")
		require.ErrorIs(t, err, ErrInvalidExternal)
	})

	t.Run("unverified email", func(t *testing.T) {
		e := newEnv(t)
		c := externalClaims("sub-3", "x@example.com")
		unverified := false
		c.EmailVerified = &unverified
		e.account.External = fakeExternal{claims: c}

		_, err := e.account.ExternalLogin(ctx, "token")
		require.ErrorIs(t, err, ErrInvalidExternal)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	reg := e.register(t, "ada@example.com")

	u, err := e.account.Authenticate(ctx, reg.User.ID)
	require.NoError(t, err)
	require.Equal(t, reg.User.ID, u.ID)

	_, err = e.account.AuthenticateRefresh(ctx, reg.User.ID, 1)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	_, err = e.account.Authenticate(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, e.store.Users().SetActive(ctx, reg.User.ID, false))
	_, err = e.account.Authenticate(ctx, reg.User.ID)
	require.ErrorIs(t, err, ErrAccountDisabled)
}
