package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/mediscansdk"
)

type AuthHandler struct {
	AccountService *service.AccountService
	ProfileService *service.ProfileService
	Cookie         httpx.RefreshCookie
}

type authData struct {
	User        domain.Profile `json:"user"`
	AccessToken string         `json:"accessToken"`
}

// grant sets the refresh cookie and answers with the profile and access token.
func (h *AuthHandler) grant(w http.ResponseWriter, code int, msg string, res service.AuthResult) {
	h.Cookie.Set(w, res.Session.RefreshToken)
	httpx.NoCache(w)
	httpx.Respond(w, code, msg, authData{User: res.User.Profile(), AccessToken: res.Session.AccessToken})
}

// HandleRegister creates a local account.
//
//	@Summary		Register
//	@Description	Creates an account and signs it in. The refresh token is set as an HttpOnly cookie.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mediscansdk.RegisterRequest	true	"Account details"
//	@Success		201		{object}	mediscansdk.AuthResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Invalid input"
//	@Failure		409		{object}	mediscansdk.ErrorResponse	"User already exists"
//	@Failure		429		{object}	mediscansdk.ErrorResponse
//	@Router			/api/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := httpx.DecodeJSON(r, &in, false); err != nil {
		fail(w, r, err)
		return
	}

	res, err := h.AccountService.Register(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.grant(w, http.StatusCreated, "User registered successfully", res)
}

// HandleLogin authenticates with email and password.
//
//	@Summary		Login
//	@Description	Unknown emails, wrong passwords and locked accounts all answer "Invalid credentials".
//	@Description	Five failures lock the account for an hour.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mediscansdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	mediscansdk.AuthResponse
//	@Failure		401		{object}	mediscansdk.ErrorResponse	"Invalid credentials or disabled account"
//	@Failure		429		{object}	mediscansdk.ErrorResponse
//	@Router			/api/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in mediscansdk.LoginRequest
	if err := httpx.DecodeJSON(r, &in, false); err != nil {
		fail(w, r, err)
		return
	}

	res, err := h.AccountService.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.grant(w, http.StatusOK, "Login successful", res)
}

// HandleExternal exchanges an identity provider token for a session.
//
//	@Summary		External login
//	@Description	Verifies an ID token from the configured identity provider and signs the user in, creating the account on first use.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mediscansdk.ExternalLoginRequest	true	"Provider token"
//	@Success		200		{object}	mediscansdk.AuthResponse
//	@Failure		401		{object}	mediscansdk.ErrorResponse	"Invalid identity token"
//	@Failure		409		{object}	mediscansdk.ErrorResponse	"Email already in use"
//	@Failure		503		{object}	mediscansdk.ErrorResponse	"External login not configured"
//	@Router			/api/auth/external [post].
func (h *AuthHandler) HandleExternal(w http.ResponseWriter, r *http.Request) {
	var in mediscansdk.ExternalLoginRequest
	if err := httpx.DecodeJSON(r, &in, false); err != nil {
		fail(w, r, err)
		return
	}

	res, err := h.AccountService.ExternalLogin(r.Context(), in.Token)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.grant(w, http.StatusOK, "Login successful", res)
}

// HandleRefresh rotates the refresh cookie.
//
//	@Summary		Refresh tokens
//	@Description	Reads the refreshToken cookie and issues a new access token and cookie.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	mediscansdk.AuthResponse
//	@Failure		401	{object}	mediscansdk.ErrorResponse	"Missing, invalid or revoked refresh token"
//	@Router			/api/auth/refresh-token [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	tok, _ := h.Cookie.Read(r)

	res, err := h.AccountService.Refresh(r.Context(), tok)
	if err != nil {
		// The caller is not looking at a user resource, so a vanished
		// account is an authentication failure.
		if errors.Is(err, service.ErrUserNotFound) {
			err = httpx.Unauthorized("User not found").WithCause(err)
		}
		fail(w, r, err)
		return
	}
	h.grant(w, http.StatusOK, "Token refreshed successfully", res)
}

// HandleLogout clears the refresh cookie and revokes outstanding refresh tokens.
//
//	@Summary		Logout
//	@Description	Always succeeds. A valid refresh cookie also revokes every refresh token of its user.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	mediscansdk.ErrorResponse	"Logged out"
//	@Router			/api/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if tok, ok := h.Cookie.Read(r); ok {
		h.AccountService.Logout(r.Context(), tok)
	}
	h.Cookie.Clear(w)
	httpx.Respond(w, http.StatusOK, "Logged out successfully", nil)
}

// HandleGetProfile returns the caller's profile.
//
//	@Summary		Get own profile
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	mediscansdk.ProfileResponse
//	@Failure		401	{object}	mediscansdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/api/auth/profile [get].
func (h *AuthHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.ProfileService.GetProfile(r.Context(), httpx.UserIDFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Profile fetched successfully", u.Profile())
}

// HandleUpdateProfile applies a partial profile update.
//
//	@Summary		Update own profile
//	@Description	Accepts firstName, lastName, email, phone, location, address, health and emergencyContact.
//	@Description	Any other key is rejected and nothing is written.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object	true	"Partial profile"
//	@Success		200		{object}	mediscansdk.ProfileResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Empty update or field not allowed"
//	@Failure		409		{object}	mediscansdk.ErrorResponse	"Email already in use"
//	@Security		BearerAuth
//	@Router			/api/auth/profile [put].
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	patch, err := decodePatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	u, err := h.ProfileService.UpdateProfile(r.Context(), httpx.UserIDFrom(r.Context()), patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Profile updated successfully", u.Profile())
}

// decodePatch reads a JSON object keyed by field name. An absent body is an
// empty patch, which the services reject themselves.
func decodePatch(r *http.Request) (map[string]json.RawMessage, error) {
	var patch map[string]json.RawMessage
	if err := httpx.DecodeJSON(r, &patch, false); err != nil {
		if errors.Is(err, httpx.ErrEmptyBody) {
			return nil, service.ErrUpdateRequired
		}
		return nil, err
	}
	return patch, nil
}
