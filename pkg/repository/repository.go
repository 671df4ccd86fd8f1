package repository

import (
	"context"
	"errors"

	"github.com/kaamsetu/kaamsetu/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

// Conflict and not-found errors surfaced by the transactional operations.
// Anything else returned by these methods is a transient infrastructure
// failure and may be retried by the caller.
var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobFilled      = errors.New("job already filled")
	ErrAlreadyApplied = errors.New("already applied")
	ErrCodeInvalid    = errors.New("invalid or expired code")
	ErrAppNotFound    = errors.New("application not found")
	ErrNotCancellable = errors.New("application can no longer be cancelled")
)

type IdentityRepo interface {
	UpsertIdentity(ctx context.Context, i *models.Identity) error
	GetIdentity(ctx context.Context, phone string) (*models.Identity, error)
	SetAvailableFrom(ctx context.Context, phone string, availableFrom *int64) error
	// FindAvailableWorkers scans for onboarded workers whose skill contains
	// skill (case-insensitive). An empty city drops the location filter.
	FindAvailableWorkers(ctx context.Context, skill, city string, now int64) ([]models.Identity, error)
	ListIdentities(ctx context.Context, role models.Role, limit, offset int) ([]models.Identity, error)
}

type ConversationRepo interface {
	GetState(ctx context.Context, phone string) (*models.ConversationState, error)
	SaveState(ctx context.Context, s *models.ConversationState) error
	DeleteState(ctx context.Context, phone string) error
}

type JobRepo interface {
	CreateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	// ResolveJobRef finds the unique open job whose ID starts with ref.
	// Zero or more than one match yields ErrJobNotFound.
	ResolveJobRef(ctx context.Context, ref string) (*models.Job, error)
	// AcceptJob atomically consumes one unit of the job's capacity for the
	// worker and records a worker_accepted application carrying the OTP.
	// The job's status and remaining capacity are re-read inside the
	// transaction. Returns the job as it stands after the acceptance.
	AcceptJob(ctx context.Context, ref, workerPhone, otpCode string, otpExpiresAt int64) (*models.Job, error)
	ListJobs(ctx context.Context, status models.JobStatus, limit, offset int) ([]models.Job, error)
}

// VerifiedAttendance is the full record revealed to the contractor once an
// OTP check succeeds.
type VerifiedAttendance struct {
	Application *models.Application
	Job         *models.Job
	Worker      *models.Identity
}

type ApplicationRepo interface {
	GetApplication(ctx context.Context, jobID, workerPhone string) (*models.Application, error)
	// VerifyOTP finds the worker_accepted application holding the submitted
	// code, scoped to jobs owned by contractorPhone, and confirms it in one
	// transaction: the code is cleared, attendance is marked present and the
	// worker is held busy until the job's end date. ErrCodeInvalid covers
	// wrong, expired and already-consumed codes alike.
	VerifyOTP(ctx context.Context, contractorPhone, code string, now int64) (*VerifiedAttendance, error)
	// CancelApplication cancels a not-yet-confirmed application, clearing any
	// pending OTP and recording which party cancelled.
	CancelApplication(ctx context.Context, jobID, workerPhone string, cancelledBy models.Role) (*models.Application, error)
	ListApplications(ctx context.Context, status models.ApplicationStatus, limit, offset int) ([]models.Application, error)
}

type SchemaRepo interface {
	CreateSchema(ctx context.Context, version, schemaJSON string) (int64, error)
	GetSchemaByVersion(ctx context.Context, version string) (*models.IntentSchema, error)
	ListSchemas(ctx context.Context) ([]models.IntentSchema, error)
}

type StatsRepo interface {
	GetStats(ctx context.Context) (*models.Stats, error)
}
