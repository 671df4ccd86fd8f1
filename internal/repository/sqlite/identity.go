package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kaamsetu/kaamsetu/pkg/models"
)

func (r *SQLiteRepo) UpsertIdentity(ctx context.Context, i *models.Identity) error {
	if i == nil {
		return fmt.Errorf("identity is nil")
	}
	if i.Phone == "" {
		return fmt.Errorf("identity phone is empty")
	}

	var onboarded int
	if i.Onboarded {
		onboarded = 1
	}
	var avail any
	if i.AvailableFrom != nil {
		avail = *i.AvailableFrom
	}

	_, err := r.conn.Exec(ctx, `INSERT INTO identities (phone, role, name, city, skill, language, id_number, available_from, onboarded, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			role=excluded.role, name=excluded.name, city=excluded.city, skill=excluded.skill,
			language=excluded.language, id_number=excluded.id_number,
			available_from=excluded.available_from, onboarded=excluded.onboarded,
			updated=excluded.updated`,
		i.Phone, string(i.Role), i.Name, i.City, i.Skill, i.Language, i.IDNumber, avail, onboarded, now(), now())
	return err
}

func (r *SQLiteRepo) GetIdentity(ctx context.Context, phone string) (*models.Identity, error) {
	row := r.conn.QueryRow(ctx, `SELECT phone, role, name, city, skill, language, id_number, available_from, onboarded, created, updated FROM identities WHERE phone = ?`, phone)
	i, err := scanIdentity(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return i, nil
}

func (r *SQLiteRepo) SetAvailableFrom(ctx context.Context, phone string, availableFrom *int64) error {
	var avail any
	if availableFrom != nil {
		avail = *availableFrom
	}
	_, err := r.conn.Exec(ctx, `UPDATE identities SET available_from = ?, updated = ? WHERE phone = ?`, avail, now(), phone)
	return err
}

func (r *SQLiteRepo) FindAvailableWorkers(ctx context.Context, skill, city string, nowMilli int64) ([]models.Identity, error) {
	q := `SELECT phone, role, name, city, skill, language, id_number, available_from, onboarded, created, updated
		FROM identities
		WHERE role = 'worker' AND onboarded = 1
		AND instr(lower(skill), lower(?)) > 0
		AND (available_from IS NULL OR available_from <= ?)`
	args := []any{skill, nowMilli}
	if city != "" {
		q += ` AND instr(lower(city), lower(?)) > 0`
		args = append(args, city)
	}
	q += ` ORDER BY phone`

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find workers: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		i, err := scanIdentity(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) ListIdentities(ctx context.Context, role models.Role, limit, offset int) ([]models.Identity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.QueryRows(ctx, `SELECT phone, role, name, city, skill, language, id_number, available_from, onboarded, created, updated FROM identities WHERE role = ? ORDER BY created DESC LIMIT ? OFFSET ?`, string(role), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		i, err := scanIdentity(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}

	return out, rows.Err()
}

func scanIdentity(scan func(dest ...any) error) (*models.Identity, error) {
	var i models.Identity
	var role string
	var avail sql.NullInt64
	var onboarded int
	if err := scan(&i.Phone, &role, &i.Name, &i.City, &i.Skill, &i.Language, &i.IDNumber, &avail, &onboarded, &i.Created, &i.Updated); err != nil {
		return nil, err
	}
	i.Role = models.Role(role)
	if avail.Valid {
		v := avail.Int64
		i.AvailableFrom = &v
	}
	i.Onboarded = onboarded != 0

	return &i, nil
}
