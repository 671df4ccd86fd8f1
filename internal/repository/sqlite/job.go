package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kaamsetu/kaamsetu/pkg/models"
	"github.com/kaamsetu/kaamsetu/pkg/repository"
)

const jobColumns = `id, contractor_phone, title, skill, wage, city, location, workers_needed, remaining, start_date, end_date, insurance, status, created`

func (r *SQLiteRepo) CreateJob(ctx context.Context, j *models.Job) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}
	if j.ID == "" {
		return fmt.Errorf("job id is empty")
	}

	var insurance int
	if j.Insurance {
		insurance = 1
	}
	if j.Status == "" {
		j.Status = models.JobOpen
	}
	j.Created = now()

	_, err := r.conn.Exec(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ContractorPhone, j.Title, j.Skill, j.Wage, j.City, j.Location,
		j.WorkersNeeded, j.Remaining, j.StartDate, j.EndDate, insurance, string(j.Status), j.Created)
	return err
}

func (r *SQLiteRepo) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return j, nil
}

// ResolveJobRef finds the unique live (open or filled) job whose ID starts
// with ref. An ambiguous prefix is reported as not found rather than resolved
// to an arbitrary match.
func (r *SQLiteRepo) ResolveJobRef(ctx context.Context, ref string) (*models.Job, error) {
	ref = sanitizeRef(ref)
	if ref == "" {
		return nil, repository.ErrJobNotFound
	}

	rows, err := r.conn.QueryRows(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status IN ('open','filled') AND id LIKE ? LIMIT 2`, ref+"%")
	if err != nil {
		return nil, fmt.Errorf("resolve job ref: %w", err)
	}
	defer rows.Close()

	var matches []*models.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		matches = append(matches, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, repository.ErrJobNotFound
	}

	return matches[0], nil
}

// AcceptJob runs the capacity-consuming acceptance as one transaction.
// Status and remaining capacity are re-read inside the transaction, so
// concurrent acceptances cannot oversell the job.
func (r *SQLiteRepo) AcceptJob(ctx context.Context, ref, workerPhone, otpCode string, otpExpiresAt int64) (*models.Job, error) {
	ref = sanitizeRef(ref)
	if ref == "" {
		return nil, repository.ErrJobNotFound
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin accept tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// resolve the prefix inside the transaction; ambiguity is not found
	rows, err := tx.QueryContext(ctx, `SELECT id FROM jobs WHERE status = 'open' AND id LIKE ? LIMIT 2`, ref+"%")
	if err != nil {
		return nil, fmt.Errorf("resolve ref: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(ids) != 1 {
		return nil, repository.ErrJobNotFound
	}
	jobID := ids[0]

	// re-read status and capacity
	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrJobNotFound
		}

		return nil, err
	}
	if j.Status != models.JobOpen || j.Remaining <= 0 {
		return nil, repository.ErrJobFilled
	}

	// idempotency guard against duplicate replies
	var dup int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM applications WHERE job_id = ? AND worker_phone = ?`, jobID, workerPhone).Scan(&dup); err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, repository.ErrAlreadyApplied
	}

	ts := now()
	if _, err := tx.ExecContext(ctx, `INSERT INTO applications (job_id, worker_phone, status, otp_code, otp_expires_at, attendance, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, workerPhone, string(models.AppWorkerAccepted), otpCode, otpExpiresAt, string(models.AttendanceNotMarked), ts, ts); err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}

	j.Remaining--
	if j.Remaining == 0 {
		j.Status = models.JobFilled
	}
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET remaining = ?, status = ? WHERE id = ?`, j.Remaining, string(j.Status), jobID); err != nil {
		return nil, fmt.Errorf("update job capacity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit accept tx: %w", err)
	}

	return j, nil
}

func (r *SQLiteRepo) ListJobs(ctx context.Context, status models.JobStatus, limit, offset int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}

	return out, rows.Err()
}

func scanJob(scan func(dest ...any) error) (*models.Job, error) {
	var j models.Job
	var insurance int
	var status string
	if err := scan(&j.ID, &j.ContractorPhone, &j.Title, &j.Skill, &j.Wage, &j.City, &j.Location,
		&j.WorkersNeeded, &j.Remaining, &j.StartDate, &j.EndDate, &insurance, &status, &j.Created); err != nil {
		return nil, err
	}
	j.Insurance = insurance != 0
	j.Status = models.JobStatus(status)

	return &j, nil
}

// sanitizeRef keeps only characters that can appear in a job ID, so a typed
// prefix can be used safely in a LIKE pattern.
func sanitizeRef(ref string) string {
	ref = strings.TrimSpace(strings.ToLower(ref))
	var b strings.Builder
	for _, c := range ref {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
