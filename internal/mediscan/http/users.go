package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/mediscansdk"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

// multipartSlack covers the form boundaries and part headers around the file.
const multipartSlack = 64 << 10

type UsersHandler struct {
	UserService    *service.UserService
	ProfileService *service.ProfileService
	AvatarService  *service.AvatarService
}

// HandleUploadAvatar replaces the caller's avatar.
//
//	@Summary		Upload avatar
//	@Description	Multipart upload in the "avatar" field. Images only, at most 5 MiB.
//	@Tags			Users
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			avatar	formData	file	true	"Image file"
//	@Success		200		{object}	mediscansdk.AvatarResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"No file, not an image, or too large"
//	@Failure		503		{object}	mediscansdk.ErrorResponse	"Object storage not configured"
//	@Security		BearerAuth
//	@Router			/api/users/profile/avatar [put].
func (h *UsersHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.AvatarService.Enabled() {
		fail(w, r, service.ErrAvatarsDisabled)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAvatarSize+multipartSlack)
	if err := r.ParseMultipartForm(service.MaxAvatarSize); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			fail(w, r, service.ErrAvatarTooBig)
		case errors.Is(err, http.ErrNotMultipart):
			fail(w, r, service.ErrNoFile)
		default:
			fail(w, r, httpx.BadRequest("Invalid multipart form").WithCause(err))
		}
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slogx.FromContext(ctx).Warn("failed to remove multipart temp files", "error", err)
		}
	}()

	file, hdr, err := r.FormFile("avatar")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			err = service.ErrNoFile
		}
		fail(w, r, err)
		return
	}
	defer file.Close()

	avatar, err := h.AvatarService.Upload(ctx, httpx.UserIDFrom(ctx), hdr.Header.Get("Content-Type"), file, hdr.Size)
	if err != nil {
		fail(w, r, err)
		return
	}

	httpx.Respond(w, http.StatusOK, "Avatar updated successfully", struct {
		Avatar domain.Avatar `json:"avatar"`
	}{avatar})
}

// HandleUpdatePreferences applies a partial settings update.
//
//	@Summary		Update preferences
//	@Description	Accepts language, theme, timezone and notifications {email, push, sms}.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object	true	"Partial settings"
//	@Success		200		{object}	mediscansdk.ProfileResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Empty update or field not allowed"
//	@Security		BearerAuth
//	@Router			/api/users/profile/preferences [put].
func (h *UsersHandler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	patch, err := decodePatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	u, err := h.ProfileService.UpdatePreferences(r.Context(), httpx.UserIDFrom(r.Context()), patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Preferences updated successfully", u.Profile())
}

// HandleList pages through all users.
//
//	@Summary		List users
//	@Tags			Users
//	@Produce		json
//	@Param			limit	query		int	false	"Page size (max 100)"	default(20)
//	@Param			offset	query		int	false	"Items to skip"			default(0)
//	@Success		200		{object}	mediscansdk.UserPageResponse
//	@Failure		403		{object}	mediscansdk.ErrorResponse	"Not an admin"
//	@Security		BearerAuth
//	@Router			/api/users [get].
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		fail(w, r, err)
		return
	}

	page, err := h.UserService.ListUsers(r.Context(), limit, offset)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Users retrieved successfully", page)
}

// HandleGet fetches one profile.
//
//	@Summary		Get user
//	@Tags			Users
//	@Produce		json
//	@Param			userId	path		string	true	"User ID"
//	@Success		200		{object}	mediscansdk.ProfileResponse
//	@Failure		403		{object}	mediscansdk.ErrorResponse	"Neither the owner nor an admin"
//	@Failure		404		{object}	mediscansdk.ErrorResponse	"User not found"
//	@Security		BearerAuth
//	@Router			/api/users/{userId} [get].
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.UserService.GetUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "User fetched successfully", u.Profile())
}

// HandleSetRole changes a user's role.
//
//	@Summary		Set user role
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			userId	path		string						true	"User ID"
//	@Param			request	body		mediscansdk.SetRoleRequest	true	"user or admin"
//	@Success		200		{object}	mediscansdk.ProfileResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Invalid role"
//	@Failure		404		{object}	mediscansdk.ErrorResponse	"User not found"
//	@Security		BearerAuth
//	@Router			/api/users/{userId}/role [patch].
func (h *UsersHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	var in mediscansdk.SetRoleRequest
	if err := httpx.DecodeJSON(r, &in, true); err != nil {
		fail(w, r, err)
		return
	}

	u, err := h.UserService.SetRole(r.Context(), r.PathValue("userId"), domain.Role(in.Role))
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "User role updated successfully", u.Profile())
}

// HandleSetStatus activates or deactivates a user.
//
//	@Summary		Set user status
//	@Description	Deactivating revokes the user's refresh tokens.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			userId	path		string							true	"User ID"
//	@Param			request	body		mediscansdk.SetStatusRequest	true	"Desired state"
//	@Success		200		{object}	mediscansdk.ProfileResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"isActive missing"
//	@Failure		404		{object}	mediscansdk.ErrorResponse	"User not found"
//	@Security		BearerAuth
//	@Router			/api/users/{userId}/status [patch].
func (h *UsersHandler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var in mediscansdk.SetStatusRequest
	if err := httpx.DecodeJSON(r, &in, true); err != nil {
		fail(w, r, err)
		return
	}
	if in.IsActive == nil {
		fail(w, r, httpx.BadRequest("isActive is required"))
		return
	}

	u, err := h.UserService.SetActive(r.Context(), r.PathValue("userId"), *in.IsActive)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "User status updated successfully", u.Profile())
}

// queryInt reads an optional integer query parameter. Absent gives zero.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httpx.BadRequest(name + " must be an integer").WithCause(err)
	}
	return n, nil
}
