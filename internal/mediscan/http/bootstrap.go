package http

import (
	"net/http"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

const BootstrapTokenHeader = "X-Bootstrap-Token"

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the one-time admin bootstrap
//
//	@Summary		Bootstrap first admin
//	@Description	Creates the first admin account. Requires the X-Bootstrap-Token header to match BOOTSTRAP_TOKEN.
//	@Description	Answers 404 when no token is configured and 409 once any admin exists.
//	@Tags			System
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string							true	"Bootstrap token"
//	@Param			request				body		mediscansdk.BootstrapRequest	true	"Admin account"
//	@Success		201					{object}	mediscansdk.ProfileResponse
//	@Failure		401					{object}	mediscansdk.ErrorResponse	"Invalid bootstrap token"
//	@Failure		404					{object}	mediscansdk.ErrorResponse	"Bootstrap disabled"
//	@Failure		409					{object}	mediscansdk.ErrorResponse	"Already bootstrapped"
//	@Router			/api/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.BootstrapService.Enabled() {
		fail(w, r, service.ErrBootstrapDisabled)
		return
	}

	var in service.BootstrapInput
	if err := httpx.DecodeJSON(r, &in, true); err != nil {
		fail(w, r, err)
		return
	}

	u, err := h.BootstrapService.Bootstrap(r.Context(), r.Header.Get(BootstrapTokenHeader), in)
	if err != nil {
		fail(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("bootstrap admin created", "user_id", u.ID)
	httpx.Respond(w, http.StatusCreated, "Admin account created successfully", u.Profile())
}
