package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kaamsetu/kaamsetu/pkg/models"
	"github.com/kaamsetu/kaamsetu/pkg/repository"
)

const appColumns = `job_id, worker_phone, status, otp_code, otp_expires_at, attendance, attendance_at, cancelled_by, created, updated`

func (r *SQLiteRepo) GetApplication(ctx context.Context, jobID, workerPhone string) (*models.Application, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+appColumns+` FROM applications WHERE job_id = ? AND worker_phone = ?`, jobID, workerPhone)
	a, err := scanApplication(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return a, nil
}

// VerifyOTP confirms attendance for the application holding the submitted
// code. The lookup is scoped to jobs owned by contractorPhone so one
// contractor cannot consume codes issued for another's job. Wrong, expired
// and already-consumed codes are indistinguishable to the caller.
func (r *SQLiteRepo) VerifyOTP(ctx context.Context, contractorPhone, code string, nowMilli int64) (*repository.VerifiedAttendance, error) {
	if code == "" {
		return nil, repository.ErrCodeInvalid
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin verify tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT a.job_id, a.worker_phone
		FROM applications a
		JOIN jobs j ON j.id = a.job_id
		WHERE a.otp_code = ? AND a.status = ? AND a.otp_expires_at >= ? AND j.contractor_phone = ?`,
		code, string(models.AppWorkerAccepted), nowMilli, contractorPhone)

	var jobID, workerPhone string
	if err := row.Scan(&jobID, &workerPhone); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrCodeInvalid
		}

		return nil, err
	}

	// confirm: clear the code (single-use), mark present
	if _, err := tx.ExecContext(ctx, `UPDATE applications SET status = ?, otp_code = '', otp_expires_at = NULL, attendance = ?, attendance_at = ?, updated = ? WHERE job_id = ? AND worker_phone = ?`,
		string(models.AppContractorConfirmed), string(models.AttendancePresent), nowMilli, now(), jobID, workerPhone); err != nil {
		return nil, fmt.Errorf("confirm application: %w", err)
	}

	jobRow := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(jobRow.Scan)
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}

	// hold the worker busy for the job's duration
	if _, err := tx.ExecContext(ctx, `UPDATE identities SET available_from = ?, updated = ? WHERE phone = ?`, j.EndDate, now(), workerPhone); err != nil {
		return nil, fmt.Errorf("update worker availability: %w", err)
	}

	var confirmed int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM applications WHERE job_id = ? AND status = ?`, jobID, string(models.AppContractorConfirmed)).Scan(&confirmed); err != nil {
		return nil, err
	}
	if confirmed >= j.WorkersNeeded && j.Status == models.JobOpen {
		j.Status = models.JobFilled
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, string(models.JobFilled), jobID); err != nil {
			return nil, fmt.Errorf("mark job filled: %w", err)
		}
	}

	workerRow := tx.QueryRowContext(ctx, `SELECT phone, role, name, city, skill, language, id_number, available_from, onboarded, created, updated FROM identities WHERE phone = ?`, workerPhone)
	worker, err := scanIdentity(workerRow.Scan)
	if err != nil {
		return nil, fmt.Errorf("read worker identity: %w", err)
	}

	appRow := tx.QueryRowContext(ctx, `SELECT `+appColumns+` FROM applications WHERE job_id = ? AND worker_phone = ?`, jobID, workerPhone)
	app, err := scanApplication(appRow.Scan)
	if err != nil {
		return nil, fmt.Errorf("read application: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit verify tx: %w", err)
	}

	return &repository.VerifiedAttendance{Application: app, Job: j, Worker: worker}, nil
}

// CancelApplication cancels an application that has not been confirmed yet,
// clearing any pending OTP. The attendance record is immutable once verified.
func (r *SQLiteRepo) CancelApplication(ctx context.Context, jobID, workerPhone string, cancelledBy models.Role) (*models.Application, error) {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+appColumns+` FROM applications WHERE job_id = ? AND worker_phone = ?`, jobID, workerPhone)
	a, err := scanApplication(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrAppNotFound
		}

		return nil, err
	}

	switch a.Status {
	case models.AppPending, models.AppWorkerAccepted:
		// cancellable
	default:
		return nil, repository.ErrNotCancellable
	}

	if _, err := tx.ExecContext(ctx, `UPDATE applications SET status = ?, otp_code = '', otp_expires_at = NULL, cancelled_by = ?, updated = ? WHERE job_id = ? AND worker_phone = ?`,
		string(models.AppCancelled), string(cancelledBy), now(), jobID, workerPhone); err != nil {
		return nil, fmt.Errorf("cancel application: %w", err)
	}

	// the cancelled acceptance releases one unit of capacity
	if a.Status == models.AppWorkerAccepted {
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET remaining = remaining + 1, status = CASE WHEN status = 'filled' THEN 'open' ELSE status END WHERE id = ?`, jobID); err != nil {
			return nil, fmt.Errorf("release job capacity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}

	a.Status = models.AppCancelled
	a.OTPCode = ""
	a.OTPExpiresAt = nil
	a.CancelledBy = string(cancelledBy)

	return a, nil
}

func (r *SQLiteRepo) ListApplications(ctx context.Context, status models.ApplicationStatus, limit, offset int) ([]models.Application, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + appColumns + ` FROM applications`
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

	var out []models.Application
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}

	return out, rows.Err()
}

func scanApplication(scan func(dest ...any) error) (*models.Application, error) {
	var a models.Application
	var status, attendance string
	var otpExpires, attendanceAt sql.NullInt64
	if err := scan(&a.JobID, &a.WorkerPhone, &status, &a.OTPCode, &otpExpires, &attendance, &attendanceAt, &a.CancelledBy, &a.Created, &a.Updated); err != nil {
		return nil, err
	}
	a.Status = models.ApplicationStatus(status)
	a.Attendance = models.AttendanceStatus(attendance)
	if otpExpires.Valid {
		v := otpExpires.Int64
		a.OTPExpiresAt = &v
	}
	if attendanceAt.Valid {
		v := attendanceAt.Int64
		a.AttendanceAt = &v
	}

	return &a, nil
}
