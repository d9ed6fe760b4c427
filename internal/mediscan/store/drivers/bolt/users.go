package bolt

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"go.etcd.io/bbolt"
)

type userDoc struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	Username       string         `json:"username"`
	PasswordHash   string         `json:"passwordHash,omitempty"`
	ExternalID     string         `json:"externalId,omitempty"`
	Role           domain.Role    `json:"role"`
	Active         bool           `json:"active"`
	FailedAttempts int            `json:"failedAttempts"`
	LockedUntil    *time.Time     `json:"lockedUntil,omitempty"`
	LastLogin      *time.Time     `json:"lastLogin,omitempty"`
	TokenVersion   int64          `json:"tokenVersion"`
	Profile        domain.Details `json:"profile"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func toDoc(u domain.User) userDoc {
	hash, ext := domain.CredentialColumns(u.Credential)
	return userDoc{
		ID:             u.ID,
		Email:          u.Email,
		Username:       u.Username,
		PasswordHash:   hash,
		ExternalID:     ext,
		Role:           u.Role,
		Active:         u.Active,
		FailedAttempts: u.Lockout.Attempts,
		LockedUntil:    u.Lockout.LockedUntil,
		LastLogin:      u.LastLogin,
		TokenVersion:   u.TokenVersion,
		Profile:        u.Details,
		CreatedAt:      u.CreatedAt.UTC(),
		UpdatedAt:      u.UpdatedAt.UTC(),
	}
}

func (d userDoc) user() (domain.User, error) {
	cred, err := domain.CredentialFromColumns(d.PasswordHash, d.ExternalID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           d.ID,
		Email:        d.Email,
		Username:     d.Username,
		Credential:   cred,
		Role:         d.Role,
		Lockout:      domain.Lockout{Attempts: d.FailedAttempts, LockedUntil: d.LockedUntil},
		LastLogin:    d.LastLogin,
		Active:       d.Active,
		TokenVersion: d.TokenVersion,
		Details:      d.Profile,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

type usersRepo struct {
	c conn
}

func loadUser(tx *bbolt.Tx, id string) (userDoc, error) {
	var d userDoc
	err := getJSON(tx.Bucket(bucketUsers), []byte(id), &d)
	return d, err
}

func (r *usersRepo) GetUserByID(_ context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.c.view(func(tx *bbolt.Tx) error {
		d, err := loadUser(tx, id)
		if err != nil {
			return err
		}
		u, err = d.user()
		return err
	})
	return u, err
}

// GetUserForUpdate needs no row lock: a bolt write transaction already
// excludes every other writer.
func (r *usersRepo) GetUserForUpdate(ctx context.Context, id string) (domain.User, error) {
	return r.GetUserByID(ctx, id)
}

func (r *usersRepo) getByIndex(index []byte, key string) (domain.User, error) {
	var u domain.User
	err := r.c.view(func(tx *bbolt.Tx) error {
		id := tx.Bucket(index).Get([]byte(key))
		if id == nil {
			return store.ErrNotFound
		}
		d, err := loadUser(tx, string(id))
		if err != nil {
			return err
		}
		u, err = d.user()
		return err
	})
	return u, err
}

func (r *usersRepo) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	return r.getByIndex(bucketUsersByEmail, email)
}

func (r *usersRepo) GetUserByExternalID(_ context.Context, providerID string) (domain.User, error) {
	return r.getByIndex(bucketUsersByExternal, providerID)
}

func (r *usersRepo) ListUsers(_ context.Context, limit, offset int) ([]domain.User, int, error) {
	var docs []userDoc
	err := r.c.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, v []byte) error {
			var d userDoc
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			docs = append(docs, d)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID > docs[j].ID
	})

	total := len(docs)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)

	users := make([]domain.User, 0, end-offset)
	for _, d := range docs[offset:end] {
		u, err := d.user()
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, nil
}

func (r *usersRepo) CreateUser(_ context.Context, u domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	d := toDoc(u)

	return r.c.update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		byEmail := tx.Bucket(bucketUsersByEmail)
		byExt := tx.Bucket(bucketUsersByExternal)

		if users.Get([]byte(d.ID)) != nil || byEmail.Get([]byte(d.Email)) != nil {
			return store.ErrAlreadyExists
		}
		if d.ExternalID != "" && byExt.Get([]byte(d.ExternalID)) != nil {
			return store.ErrAlreadyExists
		}

		if err := putJSON(users, []byte(d.ID), d); err != nil {
			return err
		}
		if err := byEmail.Put([]byte(d.Email), []byte(d.ID)); err != nil {
			return err
		}
		if d.ExternalID != "" {
			return byExt.Put([]byte(d.ExternalID), []byte(d.ID))
		}
		return nil
	})
}

// modify loads the user doc, applies fn and writes it back.
func (r *usersRepo) modify(id string, fn func(tx *bbolt.Tx, d *userDoc) error) error {
	return r.c.update(func(tx *bbolt.Tx) error {
		d, err := loadUser(tx, id)
		if err != nil {
			return err
		}
		if err := fn(tx, &d); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketUsers), []byte(id), d)
	})
}

func (r *usersRepo) UpdateUser(_ context.Context, u domain.User) error {
	return r.modify(u.ID, func(tx *bbolt.Tx, d *userDoc) error {
		if u.Email != d.Email {
			byEmail := tx.Bucket(bucketUsersByEmail)
			if byEmail.Get([]byte(u.Email)) != nil {
				return store.ErrAlreadyExists
			}
			if err := byEmail.Delete([]byte(d.Email)); err != nil {
				return err
			}
			if err := byEmail.Put([]byte(u.Email), []byte(d.ID)); err != nil {
				return err
			}
		}
		d.Email = u.Email
		d.Username = u.Username
		d.Profile = u.Details
		d.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *usersRepo) SetRole(_ context.Context, id string, role domain.Role) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}
	return r.modify(id, func(_ *bbolt.Tx, d *userDoc) error {
		d.Role = role
		d.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *usersRepo) SetActive(_ context.Context, id string, active bool) error {
	return r.modify(id, func(_ *bbolt.Tx, d *userDoc) error {
		d.Active = active
		d.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *usersRepo) ModifyLockout(
	_ context.Context,
	id string,
	fn func(domain.Lockout) domain.Lockout,
) (domain.Lockout, error) {
	var out domain.Lockout
	err := r.modify(id, func(_ *bbolt.Tx, d *userDoc) error {
		out = fn(domain.Lockout{Attempts: d.FailedAttempts, LockedUntil: d.LockedUntil})
		d.FailedAttempts = out.Attempts
		d.LockedUntil = out.LockedUntil
		return nil
	})
	return out, err
}

func (r *usersRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	return r.modify(id, func(_ *bbolt.Tx, d *userDoc) error {
		at := at.UTC()
		d.FailedAttempts = 0
		d.LockedUntil = nil
		d.LastLogin = &at
		return nil
	})
}

func (r *usersRepo) BumpTokenVersion(_ context.Context, id string) (int64, error) {
	var v int64
	err := r.modify(id, func(_ *bbolt.Tx, d *userDoc) error {
		d.TokenVersion++
		v = d.TokenVersion
		return nil
	})
	return v, err
}

func (r *usersRepo) HasAdmin(_ context.Context) (bool, error) {
	found := false
	err := r.c.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, v []byte) error {
			var d userDoc
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if d.Role == domain.RoleAdmin {
				found = true
			}
			return nil
		})
	})
	return found, err
}
