package mediscansdk

import (
	"context"
	"net/http"
	"net/url"
)

func recordPath(kind, userID string, rest ...string) string {
	p := "/api/health/" + kind + "/" + url.PathEscape(userID)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// AddRecord stores a health entry of the given kind for userID.
func (s *Session) AddRecord(ctx context.Context, userID, kind string, data any) (*Entry, error) {
	e, err := call[Entry](ctx, s, request{
		method: http.MethodPost,
		path:   "/api/health/records/" + url.PathEscape(userID),
		body:   AddRecordRequest{Type: kind, Data: data},
	}, http.StatusCreated)
	return &e, err
}

// ListRecords returns all entries of one kind. An empty result is not an error.
func (s *Session) ListRecords(ctx context.Context, userID, kind string) ([]Entry, error) {
	return call[[]Entry](ctx, s, request{method: http.MethodGet, path: recordPath(kind, userID)}, http.StatusOK)
}

// UpdateRecord merges patch into an entry.
func (s *Session) UpdateRecord(ctx context.Context, userID, kind, entryID string, patch map[string]any) (*Entry, error) {
	e, err := call[Entry](ctx, s, request{method: http.MethodPut, path: recordPath(kind, userID, entryID), body: patch}, http.StatusOK)
	return &e, err
}

func (s *Session) DeleteRecord(ctx context.Context, userID, kind, entryID string) error {
	_, err := call[any](ctx, s, request{method: http.MethodDelete, path: recordPath(kind, userID, entryID)}, http.StatusOK)
	return err
}

// RefillMedication records a refill. nextRefillDate is YYYY-MM-DD.
func (s *Session) RefillMedication(ctx context.Context, userID, entryID string, remaining int, nextRefillDate string) (*Entry, error) {
	e, err := call[Entry](ctx, s, request{
		method: http.MethodPatch,
		path:   recordPath(KindMedications, userID, entryID, "refill"),
		body:   RefillRequest{Remaining: &remaining, NextRefillDate: nextRefillDate},
	}, http.StatusOK)
	return &e, err
}
