package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/mediscansdk"
	"github.com/stretchr/testify/require"
)

func requireAPIError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	var apiErr *mediscansdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, msg, apiErr.Message)
}

func TestEnvelope(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", strings.NewReader(`{"email":"nobody@example.com","password":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, float64(401), body["statusCode"])
	require.Equal(t, "Invalid credentials", body["message"])
	require.Equal(t, false, body["success"])
	require.Nil(t, body["data"])
	require.Equal(t, []any{}, body["errors"])
	require.Equal(t, map[string]any{}, body["error"])
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t)

	c := ts.client()
	s, err := c.Register(ctx, mediscansdk.RegisterRequest{Email: "Ada@Example.com", Password: testPassword, FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", s.User().Email)
	require.NotEmpty(t, s.AccessToken())

	_, err = ts.client().Register(ctx, mediscansdk.RegisterRequest{Email: "ada@example.com", Password: testPassword, FirstName: "A", LastName: "L"})
	requireAPIError(t, err, http.StatusConflict, "User already exists")

	p, err := s.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ada", p.FirstName)

	t.Run("profile update is allow-listed", func(t *testing.T) {
		_, err := s.UpdateProfile(ctx, map[string]any{"firstName": "Augusta", "role": "admin"})
		requireAPIError(t, err, http.StatusBadRequest, "Field not allowed: role")

		_, err = s.UpdateProfile(ctx, map[string]any{})
		requireAPIError(t, err, http.StatusBadRequest, "Update data is required")

		p, err := s.UpdateProfile(ctx, map[string]any{"firstName": "Augusta", "location": "London"})
		require.NoError(t, err)
		require.Equal(t, "Augusta", p.FirstName)
		require.Equal(t, "London", p.Address.City)
		require.Equal(t, "user", p.Role)
	})

	t.Run("refresh rotates with the cookie", func(t *testing.T) {
		next, err := c.Refresh(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, next.AccessToken())

		_, err = ts.client().Refresh(ctx)
		requireAPIError(t, err, http.StatusUnauthorized, "Refresh token required")
	})

	t.Run("logout revokes refresh tokens", func(t *testing.T) {
		other := ts.client()
		_, err := other.Login(ctx, "ada@example.com", testPassword)
		require.NoError(t, err)

		require.NoError(t, c.Logout(ctx))

		// The second device still holds a cookie of the old version.
		_, err = other.Refresh(ctx)
		requireAPIError(t, err, http.StatusUnauthorized, "Invalid refresh token")

		// Logging out without a cookie still succeeds.
		require.NoError(t, ts.client().Logout(ctx))
	})
}

func TestProtect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t)

	t.Run("missing bearer", func(t *testing.T) {
		_, err := ts.client().NewSession("").Profile(ctx)
		requireAPIError(t, err, http.StatusUnauthorized, "Access token required")
	})

	t.Run("expired access without cookie", func(t *testing.T) {
		s := ts.register(t, "nocookie@example.com")
		stale := ts.client().NewSession(s.AccessToken())
		ts.clock.Advance(20 * time.Minute)

		_, err := stale.Profile(ctx)
		requireAPIError(t, err, http.StatusUnauthorized, "Please login again")
	})

	t.Run("expired access renews from cookie", func(t *testing.T) {
		s := ts.register(t, "renew@example.com")
		before := s.AccessToken()
		ts.clock.Advance(20 * time.Minute)

		p, err := s.Profile(ctx)
		require.NoError(t, err)
		require.Equal(t, "renew@example.com", p.Email)
		require.NotEqual(t, before, s.AccessToken())

		// The renewed token works on its own.
		_, err = ts.client().NewSession(s.AccessToken()).Profile(ctx)
		require.NoError(t, err)
	})

	t.Run("renewed header is exposed to browsers", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:5173")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		require.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
		require.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "Authorization")
	})
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t)

	user := ts.register(t, "ada@example.com")
	other := ts.register(t, "eve@example.com")
	admin := ts.admin(t)
	uid := user.User().ID

	_, err := user.ListUsers(ctx, 0, 0)
	requireAPIError(t, err, http.StatusForbidden, "Not authorized as admin")

	_, err = other.GetUser(ctx, uid)
	requireAPIError(t, err, http.StatusForbidden, "Not authorized to access these records")

	own, err := user.GetUser(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, uid, own.ID)

	page, err := admin.ListUsers(ctx, 2, 0)
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Users, 2)

	_, err = admin.SetRole(ctx, uid, "root")
	requireAPIError(t, err, http.StatusBadRequest, "Invalid role")

	_, err = admin.GetUser(ctx, "missing")
	requireAPIError(t, err, http.StatusNotFound, "User not found")

	p, err := admin.SetStatus(ctx, uid, false)
	require.NoError(t, err)
	require.False(t, p.IsActive)

	_, err = user.Profile(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, "Account is disabled")

	_, err = ts.client().Login(ctx, "ada@example.com", testPassword)
	requireAPIError(t, err, http.StatusUnauthorized, "Account is disabled")

	t.Run("bootstrap only once", func(t *testing.T) {
		_, err := ts.client().Bootstrap(ctx, "bootstrap-secret", mediscansdk.BootstrapRequest{Email: "again@example.com", Password: testPassword})
		requireAPIError(t, err, http.StatusConflict, "System already bootstrapped")

		_, err = ts.client().Bootstrap(ctx, "wrong", mediscansdk.BootstrapRequest{Email: "again@example.com", Password: testPassword})
		requireAPIError(t, err, http.StatusUnauthorized, "Invalid bootstrap token")
	})
}

func TestBootstrapDisabled(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(r *Router) { r.BootstrapService.Token = "" })

	_, err := ts.client().Bootstrap(context.Background(), "", mediscansdk.BootstrapRequest{Email: "root@example.com", Password: testPassword})
	requireAPIError(t, err, http.StatusNotFound, "Not found")
}

func TestChatRoutes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t)

	s := ts.register(t, "ada@example.com")
	intruder := ts.register(t, "eve@example.com")

	chat, err := s.CreateChat(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "New Chat", chat.Title)
	require.Len(t, chat.Messages, 1)

	_, err = s.SendMessage(ctx, chat.ID, "  ")
	requireAPIError(t, err, http.StatusBadRequest, "Message content is required")

	chat, err = s.SendMessage(ctx, chat.ID, "I have a headache")
	require.NoError(t, err)
	require.Len(t, chat.Messages, 3)
	require.Equal(t, "assistant", chat.Messages[2].Role)

	_, err = intruder.GetChat(ctx, chat.ID)
	requireAPIError(t, err, http.StatusNotFound, "Chat not found")

	list, err := s.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 3, list[0].MessageCount)

	require.NoError(t, s.DeleteChat(ctx, chat.ID))
	list, err = s.ListChats(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestHealthRecordRoutes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t)

	s := ts.register(t, "ada@example.com")
	intruder := ts.register(t, "eve@example.com")
	uid := s.User().ID

	med := map[string]any{"name": "Metformin", "dosage": "500mg", "frequency": "twice daily", "startDate": "2025-01-10"}

	_, err := intruder.AddRecord(ctx, uid, mediscansdk.KindMedications, med)
	requireAPIError(t, err, http.StatusForbidden, "Not authorized to access these records")

	_, err = s.AddRecord(ctx, uid, "scans", med)
	requireAPIError(t, err, http.StatusBadRequest, "Invalid record type")

	_, err = s.AddRecord(ctx, uid, mediscansdk.KindMedications, nil)
	requireAPIError(t, err, http.StatusBadRequest, "Record type and data are required")

	list, err := s.ListRecords(ctx, uid, mediscansdk.KindMedications)
	require.NoError(t, err)
	require.Empty(t, list)

	entry, err := s.AddRecord(ctx, uid, mediscansdk.KindMedications, med)
	require.NoError(t, err)
	require.Equal(t, mediscansdk.KindMedications, entry.Type)

	updated, err := s.UpdateRecord(ctx, uid, mediscansdk.KindMedications, entry.ID, map[string]any{"dosage": "850mg"})
	require.NoError(t, err)
	require.Contains(t, string(updated.Data), "850mg")

	_, err = s.UpdateRecord(ctx, uid, mediscansdk.KindAllergies, entry.ID, map[string]any{"name": "x"})
	requireAPIError(t, err, http.StatusNotFound, "Health record or allergy not found")

	refilled, err := s.RefillMedication(ctx, uid, entry.ID, 3, "2025-04-01")
	require.NoError(t, err)
	require.Contains(t, string(refilled.Data), `"remaining":3`)

	list, err = s.ListRecords(ctx, uid, mediscansdk.KindMedications)
	require.NoError(t, err)
	require.Len(t, list, 1)

	vitals, err := s.ListRecords(ctx, uid, "vitals")
	require.NoError(t, err)
	require.Empty(t, vitals)

	require.NoError(t, s.DeleteRecord(ctx, uid, mediscansdk.KindMedications, entry.ID))

	t.Run("admins see every user's records", func(t *testing.T) {
		admin := ts.admin(t)
		_, err := admin.ListRecords(ctx, uid, mediscansdk.KindMedications)
		require.NoError(t, err)
	})
}

func TestAnalyzeRoute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	image := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG"))

	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t)
		s := ts.register(t, "ada@example.com")

		_, err := s.Analyze(ctx, "")
		requireAPIError(t, err, http.StatusBadRequest, "Image is required")
		_, err = s.Analyze(ctx, "not-a-data-url")
		requireAPIError(t, err, http.StatusBadRequest, "Invalid image format")
		_, err = s.Analyze(ctx, image)
		requireAPIError(t, err, http.StatusServiceUnavailable, "Image analysis is not configured")
	})

	t.Run("configured", func(t *testing.T) {
		ts := newTestServer(t, func(r *Router) {
			r.AnalyzeService.Model = fakeModel{reply: "```json\n{\"product_identification\":{\"medicine_name\":\"Panadol\"}}\n```"}
		})
		s := ts.register(t, "ada@example.com")

		out, err := s.Analyze(ctx, image)
		require.NoError(t, err)
		require.JSONEq(t, `{"product_identification":{"medicine_name":"Panadol"}}`, string(out))
	})

	t.Run("unreadable model output", func(t *testing.T) {
		ts := newTestServer(t, func(r *Router) {
			r.AnalyzeService.Model = fakeModel{reply: "I cannot help with that."}
		})
		s := ts.register(t, "ada@example.com")

		_, err := s.Analyze(ctx, image)
		requireAPIError(t, err, http.StatusInternalServerError, "Failed to parse analysis results")
	})
}

func TestAvatarRoute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t)
		s := ts.register(t, "ada@example.com")
		_, err := s.UploadAvatar(ctx, "me.png", "image/png", strings.NewReader("png"))
		requireAPIError(t, err, http.StatusServiceUnavailable, "Avatar uploads are not configured")
	})

	t.Run("upload", func(t *testing.T) {
		objects := &memObjects{}
		ts := newTestServer(t, func(r *Router) { r.AvatarService.Objects = objects })
		s := ts.register(t, "ada@example.com")

		_, err := s.UploadAvatar(ctx, "cv.pdf", "application/pdf", strings.NewReader("%PDF"))
		requireAPIError(t, err, http.StatusBadRequest, "Only image files are allowed")

		_, err = s.UploadAvatar(ctx, "big.png", "image/png", bytes.NewReader(make([]byte, service.MaxAvatarSize+10)))
		requireAPIError(t, err, http.StatusBadRequest, "File too large, maximum size is 5MB")

		avatar, err := s.UploadAvatar(ctx, "me.png", "image/png", strings.NewReader("png"))
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(avatar.Key, "avatars/"+s.User().ID+"/"))

		p, err := s.Profile(ctx)
		require.NoError(t, err)
		require.Equal(t, avatar.URL, p.Avatar.URL)
	})
}

func TestPreferencesRoute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t)
	s := ts.register(t, "ada@example.com")

	p, err := s.UpdatePreferences(ctx, map[string]any{"theme": "dark", "notifications": map[string]any{"sms": true}})
	require.NoError(t, err)
	require.Equal(t, "dark", p.Settings.Theme)
	require.True(t, p.Settings.Notifications.SMS)

	_, err = s.UpdatePreferences(ctx, map[string]any{"avatar": "x"})
	requireAPIError(t, err, http.StatusBadRequest, "Field not allowed: avatar")
}

func TestLoginRateLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t, func(r *Router) {
		r.cfg.Limits.Login = httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	})

	c := ts.client()
	for range 2 {
		_, err := c.Login(ctx, "ada@example.com", "wrong-password")
		requireAPIError(t, err, http.StatusUnauthorized, "Invalid credentials")
	}
	_, err := c.Login(ctx, "ada@example.com", "wrong-password")
	requireAPIError(t, err, http.StatusTooManyRequests, "Too many requests, please try again later")

	// A different email has its own bucket.
	_, err = c.Login(ctx, "eve@example.com", "wrong-password")
	requireAPIError(t, err, http.StatusUnauthorized, "Invalid credentials")
}

// The lockout must be what a client sees first under the shipped limits.
func TestLockoutWithDefaultLimits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t, func(r *Router) {
		r.cfg.Limits.Strict = httpx.StrictLimit
		r.cfg.Limits.Login = httpx.LoginLimit
	})
	ts.register(t, "ada@example.com")

	c := ts.client()
	for range domain.DefaultLockoutPolicy.MaxAttempts {
		_, err := c.Login(ctx, "ada@example.com", "wrong-password")
		requireAPIError(t, err, http.StatusUnauthorized, "Invalid credentials")
	}

	_, err := c.Login(ctx, "ada@example.com", testPassword)
	requireAPIError(t, err, http.StatusUnauthorized, "Invalid credentials")

	// Once the lock expires the correct password works again.
	ts.clock.Advance(domain.DefaultLockoutPolicy.Duration + time.Second)
	_, err = c.Login(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)
}

func TestProbes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t)
	c := ts.client()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", h.Status)
	require.Equal(t, "Server is running", h.Message)

	ready, err := c.Ready(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Checks.Database)

	require.NoError(t, ts.store.Close())
	ready, err = c.Ready(ctx)
	require.True(t, mediscansdk.IsStatus(err, http.StatusServiceUnavailable))
	require.Equal(t, "degraded", ready.Status)
}
