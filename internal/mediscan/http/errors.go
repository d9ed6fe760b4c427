package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
)

// apiError maps service errors onto client-facing HTTP errors. Anything it
// does not recognise becomes a 500 with the cause kept for the log.
func apiError(err error) error {
	var (
		httpErr    *httpx.Error
		fieldErr   *service.FieldNotAllowedError
		inputErr   *service.InvalidInputError
		validErr   *domain.ValidationError
		missingErr *service.EntryNotFoundError
	)

	switch {
	case errors.As(err, &httpErr):
		return httpErr

	// accounts
	case errors.Is(err, service.ErrInvalidCredentials):
		return httpx.Unauthorized("Invalid credentials").WithCause(err)
	case errors.Is(err, service.ErrAccountDisabled):
		return httpx.Unauthorized("Account is disabled").WithCause(err)
	case errors.Is(err, service.ErrUserExists):
		return httpx.Conflict("User already exists").WithCause(err)
	case errors.Is(err, service.ErrEmailInUse):
		return httpx.Conflict("Email already in use").WithCause(err)
	case errors.Is(err, service.ErrUserNotFound):
		return httpx.NotFound("User not found").WithCause(err)
	case errors.Is(err, service.ErrRefreshRequired):
		return httpx.Unauthorized("Refresh token required").WithCause(err)
	case errors.Is(err, service.ErrInvalidRefresh):
		return httpx.Unauthorized("Invalid refresh token").WithCause(err)
	case errors.Is(err, service.ErrUpdateRequired):
		return httpx.BadRequest("Update data is required").WithCause(err)
	case errors.Is(err, service.ErrExternalDisabled):
		return httpx.Unavailable("External login is not configured").WithCause(err)
	case errors.Is(err, service.ErrInvalidExternal):
		return httpx.Unauthorized("Invalid identity token").WithCause(err)
	case errors.As(err, &fieldErr):
		return httpx.BadRequest(fieldErr.Error())
	case errors.As(err, &inputErr):
		return httpx.BadRequest(inputErr.Message).WithErrors(inputErr.Problems...)

	// chats
	case errors.Is(err, service.ErrChatNotFound):
		return httpx.NotFound("Chat not found").WithCause(err)
	case errors.Is(err, domain.ErrEmptyMessage):
		return httpx.BadRequest("Message content is required").WithCause(err)

	// health records
	case errors.Is(err, service.ErrRecordRequired):
		return httpx.BadRequest("Record type and data are required").WithCause(err)
	case errors.Is(err, domain.ErrInvalidKind):
		return httpx.BadRequest("Invalid record type").WithCause(err)
	case errors.Is(err, service.ErrRefillRequired):
		return httpx.BadRequest("Remaining refills and next refill date are required").WithCause(err)
	case errors.As(err, &validErr):
		return httpx.BadRequest("Validation failed").WithErrors(validErr.Problems...)
	case errors.As(err, &missingErr):
		return httpx.NotFound(missingErr.Error())

	// analysis
	case errors.Is(err, service.ErrImageRequired):
		return httpx.BadRequest("Image is required").WithCause(err)
	case errors.Is(err, service.ErrInvalidImage):
		return httpx.BadRequest("Invalid image format").WithCause(err)
	case errors.Is(err, service.ErrAnalysisDisabled):
		return httpx.Unavailable("Image analysis is not configured").WithCause(err)
	case errors.Is(err, service.ErrAnalysisUnreadable):
		return httpx.NewError(http.StatusInternalServerError, "Failed to parse analysis results").WithCause(err)

	// avatars
	case errors.Is(err, service.ErrNoFile):
		return httpx.BadRequest("No file uploaded").WithCause(err)
	case errors.Is(err, service.ErrNotAnImage):
		return httpx.BadRequest("Only image files are allowed").WithCause(err)
	case errors.Is(err, service.ErrAvatarTooBig):
		return httpx.BadRequest("File too large, maximum size is 5MB").WithCause(err)
	case errors.Is(err, service.ErrAvatarsDisabled):
		return httpx.Unavailable("Avatar uploads are not configured").WithCause(err)

	// bootstrap
	case errors.Is(err, service.ErrBootstrapDisabled):
		return httpx.NotFound("Not found").WithCause(err)
	case errors.Is(err, service.ErrBootstrapUnauthorized):
		return httpx.Unauthorized("Invalid bootstrap token").WithCause(err)
	case errors.Is(err, service.ErrBootstrapAlready):
		return httpx.Conflict("System already bootstrapped").WithCause(err)
	}

	return httpx.Internal(err)
}

// fail is the single exit for handler errors.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, apiError(err))
}
