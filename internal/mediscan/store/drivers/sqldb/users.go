package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
)

type usersRepo struct {
	c conn
}

const userColumns = `id, email, username, password_hash, external_id, role, active,
	failed_attempts, locked_until, last_login, token_version, profile, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u           domain.User
		hash, ext   sql.NullString
		role        string
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
		profile     []byte
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &hash, &ext, &role, &u.Active,
		&u.Lockout.Attempts, &lockedUntil, &lastLogin, &u.TokenVersion, &profile,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Credential, err = domain.CredentialFromColumns(hash.String, ext.String)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Role = domain.Role(role)
	u.Lockout.LockedUntil = timePtr(lockedUntil)
	u.LastLogin = timePtr(lastLogin)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()

	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &u.Details); err != nil {
			return domain.User{}, fmt.Errorf("user %s: decode profile: %w", u.ID, err)
		}
	}
	return u, nil
}

func (r *usersRepo) getBy(ctx context.Context, column, value string) (domain.User, error) {
	u, err := scanUser(r.c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
	return u, r.c.mapErr(err)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *usersRepo) GetUserForUpdate(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`+r.c.d.ForUpdate, id))
	return u, r.c.mapErr(err)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *usersRepo) GetUserByExternalID(ctx context.Context, providerID string) (domain.User, error) {
	return r.getBy(ctx, "external_id", providerID)
}

func (r *usersRepo) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, int, error) {
	var total int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, r.c.mapErr(err)
	}

	rows, err := r.c.query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	profile, err := json.Marshal(u.Details)
	if err != nil {
		return err
	}
	hash, ext := domain.CredentialColumns(u.Credential)

	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	_, err = r.c.exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, nullString(hash), nullString(ext), string(u.Role), u.Active,
		u.Lockout.Attempts, nullTime(u.Lockout.LockedUntil), nullTime(u.LastLogin), u.TokenVersion,
		string(profile), u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	return err
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	profile, err := json.Marshal(u.Details)
	if err != nil {
		return err
	}
	return expectOne(r.c.exec(ctx,
		`UPDATE users SET email = ?, username = ?, profile = ?, updated_at = ? WHERE id = ?`,
		u.Email, u.Username, string(profile), time.Now().UTC(), u.ID,
	))
}

func (r *usersRepo) SetRole(ctx context.Context, id string, role domain.Role) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}
	return expectOne(r.c.exec(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), id,
	))
}

func (r *usersRepo) SetActive(ctx context.Context, id string, active bool) error {
	return expectOne(r.c.exec(ctx,
		`UPDATE users SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	))
}

func (r *usersRepo) ModifyLockout(
	ctx context.Context,
	id string,
	fn func(domain.Lockout) domain.Lockout,
) (domain.Lockout, error) {
	var out domain.Lockout
	err := r.c.atomic(ctx, func(c conn) error {
		var (
			cur         domain.Lockout
			lockedUntil sql.NullTime
		)
		err := c.queryRow(ctx,
			`SELECT failed_attempts, locked_until FROM users WHERE id = ?`+c.d.ForUpdate, id,
		).Scan(&cur.Attempts, &lockedUntil)
		if err != nil {
			return c.mapErr(err)
		}
		cur.LockedUntil = timePtr(lockedUntil)

		out = fn(cur)
		_, err = c.exec(ctx,
			`UPDATE users SET failed_attempts = ?, locked_until = ? WHERE id = ?`,
			out.Attempts, nullTime(out.LockedUntil), id,
		)
		return err
	})
	return out, err
}

func (r *usersRepo) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return expectOne(r.c.exec(ctx,
		`UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login = ? WHERE id = ?`,
		at.UTC(), id,
	))
}

func (r *usersRepo) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	var v int64
	err := r.c.atomic(ctx, func(c conn) error {
		if err := expectOne(c.exec(ctx,
			`UPDATE users SET token_version = token_version + 1 WHERE id = ?`, id,
		)); err != nil {
			return err
		}
		return c.mapErr(c.queryRow(ctx, `SELECT token_version FROM users WHERE id = ?`, id).Scan(&v))
	})
	return v, err
}

func (r *usersRepo) HasAdmin(ctx context.Context) (bool, error) {
	var n int
	err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, string(domain.RoleAdmin)).Scan(&n)
	return n > 0, r.c.mapErr(err)
}
