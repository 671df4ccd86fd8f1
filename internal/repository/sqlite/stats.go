package sqlite

import (
	"context"
	"fmt"

	"github.com/kaamsetu/kaamsetu/pkg/models"
)

// GetStats aggregates ledger counts for the admin API. Read-only; no core
// logic depends on this direction.
func (r *SQLiteRepo) GetStats(ctx context.Context) (*models.Stats, error) {
	s := &models.Stats{
		JobsByStatus: map[models.JobStatus]int64{},
		AppsByStatus: map[models.ApplicationStatus]int64{},
	}

	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM identities WHERE role = 'worker'`).Scan(&s.Workers); err != nil {
		return nil, fmt.Errorf("count workers: %w", err)
	}
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM identities WHERE role = 'contractor'`).Scan(&s.Contractors); err != nil {
		return nil, fmt.Errorf("count contractors: %w", err)
	}

	rows, err := r.conn.QueryRows(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		s.JobsByStatus[models.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = r.conn.QueryRows(ctx, `SELECT status, COUNT(1) FROM applications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count applications: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		s.AppsByStatus[models.ApplicationStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM applications WHERE attendance = 'present'`).Scan(&s.AttendanceMarked); err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}

	return s, nil
}
