package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
)

// fieldSetter applies one top-level key of a partial update to u.
type fieldSetter func(u *domain.User, raw json.RawMessage) error

var profileFields = map[string]fieldSetter{
	"firstName": func(u *domain.User, raw json.RawMessage) error {
		return setName(&u.Details.FirstName, "firstName", raw)
	},
	"lastName": func(u *domain.User, raw json.RawMessage) error {
		return setName(&u.Details.LastName, "lastName", raw)
	},
	"email": func(u *domain.User, raw json.RawMessage) error {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return invalid("email must be a string")
		}
		email, err := domain.ParseEmail(s)
		if err != nil {
			return invalid("Please provide a valid email")
		}
		u.Email = email
		return nil
	},
	"phone": func(u *domain.User, raw json.RawMessage) error {
		return setString(&u.Details.Phone, "phone", raw)
	},
	"location": func(u *domain.User, raw json.RawMessage) error {
		return setString(&u.Details.Address.City, "location", raw)
	},
	"address": func(u *domain.User, raw json.RawMessage) error {
		return mergeObject(&u.Details.Address, "address", raw)
	},
	"health": func(u *domain.User, raw json.RawMessage) error {
		return mergeObject(&u.Details.Health, "health", raw)
	},
	"emergencyContact": func(u *domain.User, raw json.RawMessage) error {
		return mergeObject(&u.Details.EmergencyContact, "emergencyContact", raw)
	},
}

var preferenceFields = map[string]fieldSetter{
	"language": func(u *domain.User, raw json.RawMessage) error {
		return setString(&u.Details.Settings.Language, "language", raw)
	},
	"theme": func(u *domain.User, raw json.RawMessage) error {
		return setString(&u.Details.Settings.Theme, "theme", raw)
	},
	"timezone": func(u *domain.User, raw json.RawMessage) error {
		return setString(&u.Details.Settings.Timezone, "timezone", raw)
	},
	"notifications": func(u *domain.User, raw json.RawMessage) error {
		return mergeObject(&u.Details.Settings.Notifications, "notifications", raw)
	},
}

type ProfileService struct {
	Store store.Store
}

func (s *ProfileService) GetProfile(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// UpdateProfile applies a partial update restricted to the profile
// allow-list. Nothing is written unless every key is accepted.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, patch map[string]json.RawMessage) (domain.User, error) {
	return s.apply(ctx, userID, patch, profileFields)
}

// UpdatePreferences is UpdateProfile over the settings allow-list.
func (s *ProfileService) UpdatePreferences(ctx context.Context, userID string, patch map[string]json.RawMessage) (domain.User, error) {
	return s.apply(ctx, userID, patch, preferenceFields)
}

func (s *ProfileService) apply(ctx context.Context, userID string, patch map[string]json.RawMessage, fields map[string]fieldSetter) (domain.User, error) {
	if len(patch) == 0 {
		return domain.User{}, ErrUpdateRequired
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		if _, ok := fields[k]; !ok {
			return domain.User{}, &FieldNotAllowedError{Field: k}
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var updated domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetUserForUpdate(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		previous := u.Email
		for _, k := range keys {
			if err := fields[k](&u, patch[k]); err != nil {
				return err
			}
		}

		if u.Email != previous {
			if _, err := tx.Users().GetUserByEmail(ctx, u.Email); err == nil {
				return ErrEmailInUse
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		if err := tx.Users().UpdateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailInUse
			}
			return err
		}

		updated, err = tx.Users().GetUserByID(ctx, userID)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return updated, nil
}

func setName(dst *string, field string, raw json.RawMessage) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return invalid(field + " must be a non-empty string")
	}
	*dst = strings.TrimSpace(s)
	return nil
}

func setString(dst *string, field string, raw json.RawMessage) error {
	if isNull(raw) {
		*dst = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return invalid(field + " must be a string")
	}
	*dst = strings.TrimSpace(s)
	return nil
}

// mergeObject decodes raw over the current value of dst so absent keys keep
// their stored values. Nested keys outside dst's fields are rejected.
func mergeObject(dst any, field string, raw json.RawMessage) error {
	if isNull(raw) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			return &FieldNotAllowedError{Field: field + "." + strings.Trim(name, `"`)}
		}
		return invalid(fmt.Sprintf("%s is malformed", field))
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
