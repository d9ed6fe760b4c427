package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
)

// HealthHandler serves the health record collections of {userId}.
type HealthHandler struct {
	HealthService *service.HealthService
}

// HandleAdd stores a new entry.
//
//	@Summary		Add health record
//	@Description	type is one of vitalSigns, medications, appointments, conditions, allergies.
//	@Tags			Health records
//	@Accept			json
//	@Produce		json
//	@Param			userId	path		string						true	"User ID"
//	@Param			request	body		mediscansdk.AddRecordRequest	true	"Entry"
//	@Success		201		{object}	mediscansdk.EntryResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Missing, unknown or invalid record"
//	@Failure		403		{object}	mediscansdk.ErrorResponse	"Not authorized to access these records"
//	@Security		BearerAuth
//	@Router			/api/health/records/{userId} [post].
func (h *HealthHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var in service.AddRecordInput
	if err := httpx.DecodeJSON(r, &in, false); err != nil {
		if errors.Is(err, httpx.ErrEmptyBody) {
			err = service.ErrRecordRequired
		}
		fail(w, r, err)
		return
	}

	e, err := h.HealthService.AddRecord(r.Context(), r.PathValue("userId"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusCreated, "Health record added successfully", e)
}

// HandleList returns every entry of one kind.
//
//	@Summary		List health records
//	@Description	kind is vitals (or vitalSigns), medications, appointments, conditions or allergies.
//	@Tags			Health records
//	@Produce		json
//	@Param			kind	path		string	true	"Record kind"
//	@Param			userId	path		string	true	"User ID"
//	@Success		200		{object}	mediscansdk.EntryListResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Invalid record type"
//	@Security		BearerAuth
//	@Router			/api/health/{kind}/{userId} [get].
func (h *HealthHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(r.PathValue("kind"))
	if err != nil {
		fail(w, r, err)
		return
	}

	entries, err := h.HealthService.ListRecords(r.Context(), r.PathValue("userId"), kind)
	if err != nil {
		fail(w, r, err)
		return
	}
	if len(entries) == 0 {
		httpx.Respond(w, http.StatusOK, "No "+kind.Plural()+" found for this user", []domain.Entry{})
		return
	}
	httpx.Respond(w, http.StatusOK, kind.Title()+" retrieved successfully", entries)
}

// HandleUpdate merges a partial record into an entry.
//
//	@Summary		Update health record
//	@Tags			Health records
//	@Accept			json
//	@Produce		json
//	@Param			kind	path		string	true	"Record kind"
//	@Param			userId	path		string	true	"User ID"
//	@Param			entryId	path		string	true	"Entry ID"
//	@Param			request	body		object	true	"Partial record"
//	@Success		200		{object}	mediscansdk.EntryResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Invalid record"
//	@Failure		404		{object}	mediscansdk.ErrorResponse	"Entry not found"
//	@Security		BearerAuth
//	@Router			/api/health/{kind}/{userId}/{entryId} [put].
func (h *HealthHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(r.PathValue("kind"))
	if err != nil {
		fail(w, r, err)
		return
	}

	var patch json.RawMessage
	if err := httpx.DecodeJSON(r, &patch, false); err != nil {
		if errors.Is(err, httpx.ErrEmptyBody) {
			err = service.ErrUpdateRequired
		}
		fail(w, r, err)
		return
	}

	e, err := h.HealthService.UpdateRecord(r.Context(), r.PathValue("userId"), kind, r.PathValue("entryId"), patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Health record updated successfully", e)
}

// HandleDelete removes an entry.
//
//	@Summary		Delete health record
//	@Tags			Health records
//	@Produce		json
//	@Param			kind	path		string	true	"Record kind"
//	@Param			userId	path		string	true	"User ID"
//	@Param			entryId	path		string	true	"Entry ID"
//	@Success		200		{object}	mediscansdk.ErrorResponse	"Deleted"
//	@Failure		404		{object}	mediscansdk.ErrorResponse	"Entry not found"
//	@Security		BearerAuth
//	@Router			/api/health/{kind}/{userId}/{entryId} [delete].
func (h *HealthHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(r.PathValue("kind"))
	if err != nil {
		fail(w, r, err)
		return
	}

	if err := h.HealthService.DeleteRecord(r.Context(), r.PathValue("userId"), kind, r.PathValue("entryId")); err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Health record deleted successfully", nil)
}

// HandleRefill records a medication refill.
//
//	@Summary		Refill medication
//	@Tags			Health records
//	@Accept			json
//	@Produce		json
//	@Param			userId	path		string						true	"User ID"
//	@Param			entryId	path		string						true	"Medication entry ID"
//	@Param			request	body		mediscansdk.RefillRequest	true	"Refill"
//	@Success		200		{object}	mediscansdk.EntryResponse
//	@Failure		400		{object}	mediscansdk.ErrorResponse	"Remaining refills and next refill date are required"
//	@Failure		404		{object}	mediscansdk.ErrorResponse	"Medication not found"
//	@Security		BearerAuth
//	@Router			/api/health/medications/{userId}/{entryId}/refill [patch].
func (h *HealthHandler) HandleRefill(w http.ResponseWriter, r *http.Request) {
	var in service.RefillInput
	if err := httpx.DecodeJSON(r, &in, false); err != nil {
		if errors.Is(err, httpx.ErrEmptyBody) {
			err = service.ErrRefillRequired
		}
		fail(w, r, err)
		return
	}

	e, err := h.HealthService.RefillMedication(r.Context(), r.PathValue("userId"), r.PathValue("entryId"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	httpx.Respond(w, http.StatusOK, "Medication refilled successfully", e)
}
