package mediscansdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
)

// Profile fetches the caller's own profile.
func (s *Session) Profile(ctx context.Context) (*Profile, error) {
	p, err := call[Profile](ctx, s, request{method: http.MethodGet, path: "/api/auth/profile"}, http.StatusOK)
	return &p, err
}

// UpdateProfile applies a partial update. Keys follow the profile JSON names.
func (s *Session) UpdateProfile(ctx context.Context, patch map[string]any) (*Profile, error) {
	p, err := call[Profile](ctx, s, request{method: http.MethodPut, path: "/api/auth/profile", body: patch}, http.StatusOK)
	return &p, err
}

// UpdatePreferences applies a partial settings update.
func (s *Session) UpdatePreferences(ctx context.Context, patch map[string]any) (*Profile, error) {
	p, err := call[Profile](ctx, s, request{method: http.MethodPut, path: "/api/users/profile/preferences", body: patch}, http.StatusOK)
	return &p, err
}

// UploadAvatar sends an image as the multipart field "avatar".
func (s *Session) UploadAvatar(ctx context.Context, filename, contentType string, r io.Reader) (*Avatar, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="avatar"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	data, err := call[AvatarData](ctx, s, request{
		method:  http.MethodPut,
		path:    "/api/users/profile/avatar",
		raw:     &buf,
		headers: map[string]string{"Content-Type": mw.FormDataContentType()},
	}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &data.Avatar, nil
}

// ListUsers pages through all accounts. Admin only.
func (s *Session) ListUsers(ctx context.Context, limit, offset int) (*UserPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	page, err := call[UserPage](ctx, s, request{method: http.MethodGet, path: path}, http.StatusOK)
	return &page, err
}

// GetUser fetches a profile by id. Allowed for the owner and admins.
func (s *Session) GetUser(ctx context.Context, userID string) (*Profile, error) {
	p, err := call[Profile](ctx, s, request{method: http.MethodGet, path: "/api/users/" + url.PathEscape(userID)}, http.StatusOK)
	return &p, err
}

// SetRole changes a user's role. Admin only.
func (s *Session) SetRole(ctx context.Context, userID, role string) (*Profile, error) {
	p, err := call[Profile](ctx, s, request{
		method: http.MethodPatch,
		path:   "/api/users/" + url.PathEscape(userID) + "/role",
		body:   SetRoleRequest{Role: role},
	}, http.StatusOK)
	return &p, err
}

// SetStatus activates or deactivates a user. Admin only.
func (s *Session) SetStatus(ctx context.Context, userID string, active bool) (*Profile, error) {
	p, err := call[Profile](ctx, s, request{
		method: http.MethodPatch,
		path:   "/api/users/" + url.PathEscape(userID) + "/status",
		body:   SetStatusRequest{IsActive: &active},
	}, http.StatusOK)
	return &p, err
}
