package http

import (
	"net/http"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/mediscansdk"
)

type AnalyzeHandler struct {
	AnalyzeService *service.AnalyzeService
}

// ServeHTTP handles medicine image analysis
//
//	@Summary		Analyze medicine image
//	@Description	Sends a photo of a medicine package to the vision model and returns the extracted details as JSON.
//	@Tags			Analysis
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mediscansdk.AnalyzeRequest	true	"Image as a data URL"
//	@Success		200		{object}	mediscansdk.AnalyzeResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Image is required or invalid"
//	@Failure		500		{object}	mediscansdk.ErrorResponse	"Failed to parse analysis results"
//	@Failure		503		{object}	mediscansdk.ErrorResponse	"Image analysis is not configured"
//	@Security		BearerAuth
//	@Router			/api/analyze [post].
func (h *AnalyzeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var in mediscansdk.AnalyzeRequest
	if err := httpx.DecodeJSON(r, &in, false); err != nil {
		fail(w, r, err)
		return
	}

	out, err := h.AnalyzeService.Analyze(r.Context(), in.Image)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Analysis successful", out)
}
