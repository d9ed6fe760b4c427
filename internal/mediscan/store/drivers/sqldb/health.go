package sqldb

import (
	"context"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
)

type healthRepo struct {
	c conn
}

const entryColumns = `id, user_id, kind, data, created_at, updated_at`

func scanEntry(row scanner) (domain.Entry, error) {
	var (
		e    domain.Entry
		kind string
		data []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &kind, &data, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return domain.Entry{}, err
	}
	e.Kind = domain.Kind(kind)
	e.Data = append([]byte(nil), data...)
	e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()
	return e, nil
}

func (r *healthRepo) AddEntry(ctx context.Context, e domain.Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	_, err := r.c.exec(ctx, `INSERT INTO health_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, string(e.Kind), string(e.Data), e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	return err
}

func (r *healthRepo) GetEntry(ctx context.Context, userID string, kind domain.Kind, id string) (domain.Entry, error) {
	e, err := scanEntry(r.c.queryRow(ctx,
		`SELECT `+entryColumns+` FROM health_entries WHERE id = ? AND user_id = ? AND kind = ?`+r.c.d.ForUpdate,
		id, userID, string(kind),
	))
	return e, r.c.mapErr(err)
}

func (r *healthRepo) ListEntries(ctx context.Context, userID string, kind domain.Kind) ([]domain.Entry, error) {
	rows, err := r.c.query(ctx,
		`SELECT `+entryColumns+` FROM health_entries WHERE user_id = ? AND kind = ? ORDER BY created_at, id`,
		userID, string(kind),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *healthRepo) UpdateEntry(ctx context.Context, e domain.Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	return expectOne(r.c.exec(ctx,
		`UPDATE health_entries SET data = ?, updated_at = ? WHERE id = ? AND user_id = ? AND kind = ?`,
		string(e.Data), e.UpdatedAt.UTC(), e.ID, e.UserID, string(e.Kind),
	))
}

func (r *healthRepo) DeleteEntry(ctx context.Context, userID string, kind domain.Kind, id string) error {
	return expectOne(r.c.exec(ctx,
		`DELETE FROM health_entries WHERE id = ? AND user_id = ? AND kind = ?`,
		id, userID, string(kind),
	))
}
