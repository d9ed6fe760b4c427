package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/idx"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

var (
	ErrRecordRequired = errors.New("record type and data are required")
	ErrRefillRequired = errors.New("remaining refills and next refill date are required")
)

// EntryNotFoundError names the kind that was looked up.
type EntryNotFoundError struct {
	Kind domain.Kind
}

func (e *EntryNotFoundError) Error() string {
	return "Health record or " + e.Kind.Singular() + " not found"
}

type HealthService struct {
	Store store.Store
	Now   func() time.Time
}

type AddRecordInput struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type RefillInput struct {
	Remaining      *int         `json:"remaining"`
	NextRefillDate *domain.Date `json:"nextRefillDate"`
}

func (s *HealthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// AddRecord validates and stores a new entry for userID.
func (s *HealthService) AddRecord(ctx context.Context, userID string, in AddRecordInput) (domain.Entry, error) {
	if in.Type == "" || isNull(in.Data) {
		return domain.Entry{}, ErrRecordRequired
	}
	kind, err := domain.ParseKind(in.Type)
	if err != nil {
		return domain.Entry{}, err
	}

	rec, err := domain.DecodeRecord(kind, in.Data)
	if err != nil {
		return domain.Entry{}, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return domain.Entry{}, err
	}

	now := s.now()
	e := domain.Entry{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		Kind:      kind,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Health().AddEntry(ctx, e); err != nil {
		return domain.Entry{}, fmt.Errorf("add %s: %w", kind, err)
	}

	slogx.FromContext(ctx).Info("health record added", slog.String("kind", string(kind)), slog.String("entry_id", e.ID))
	return e, nil
}

func (s *HealthService) ListRecords(ctx context.Context, userID string, kind domain.Kind) ([]domain.Entry, error) {
	return s.Store.Health().ListEntries(ctx, userID, kind)
}

// UpdateRecord merges patch over the stored entry and revalidates it.
func (s *HealthService) UpdateRecord(ctx context.Context, userID string, kind domain.Kind, id string, patch json.RawMessage) (domain.Entry, error) {
	if isNull(patch) {
		return domain.Entry{}, ErrUpdateRequired
	}
	return s.modify(ctx, userID, kind, id, func(stored json.RawMessage) (domain.Record, error) {
		return domain.PatchRecord(kind, stored, patch)
	})
}

func (s *HealthService) DeleteRecord(ctx context.Context, userID string, kind domain.Kind, id string) error {
	err := s.Store.Health().DeleteEntry(ctx, userID, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return &EntryNotFoundError{Kind: kind}
	}
	return err
}

// RefillMedication records a refill and stamps the last refill date.
func (s *HealthService) RefillMedication(ctx context.Context, userID, id string, in RefillInput) (domain.Entry, error) {
	if in.Remaining == nil || in.NextRefillDate == nil {
		return domain.Entry{}, ErrRefillRequired
	}
	if *in.Remaining < 0 {
		return domain.Entry{}, invalid("remaining refills must not be negative")
	}

	now := s.now()
	return s.modify(ctx, userID, domain.KindMedications, id, func(stored json.RawMessage) (domain.Record, error) {
		var m domain.Medication
		if err := json.Unmarshal(stored, &m); err != nil {
			return nil, fmt.Errorf("decode stored medication: %w", err)
		}
		m.Refill(*in.Remaining, *in.NextRefillDate, now)
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// modify runs a read-modify-write of one entry inside a transaction.
func (s *HealthService) modify(ctx context.Context, userID string, kind domain.Kind, id string, fn func(json.RawMessage) (domain.Record, error)) (domain.Entry, error) {
	var out domain.Entry
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		e, err := tx.Health().GetEntry(ctx, userID, kind, id)
		if errors.Is(err, store.ErrNotFound) {
			return &EntryNotFoundError{Kind: kind}
		}
		if err != nil {
			return err
		}

		rec, err := fn(e.Data)
		if err != nil {
			return err
		}
		if e.Data, err = json.Marshal(rec); err != nil {
			return err
		}
		e.UpdatedAt = s.now()

		if err := tx.Health().UpdateEntry(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}
