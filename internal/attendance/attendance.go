package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaamsetu/kaamsetu/internal/notify"
	"github.com/kaamsetu/kaamsetu/pkg/models"
	"github.com/kaamsetu/kaamsetu/pkg/repository"
)

const (
	// wrong, expired and consumed codes share one message so a probing
	// contractor learns nothing about which case occurred
	MsgCodeInvalid      = "That code is invalid or expired. Ask the worker to check it and try again."
	MsgNothingToCancel  = "I could not find an application to cancel for that job."
	MsgNotCancellable   = "This booking is already confirmed and can no longer be cancelled."
	msgVerifiedFmt      = "Attendance confirmed. Worker: %s, ID number: %s, phone %s. Marked present for '%s'."
	msgWorkerConfirmFmt = "Your attendance for '%s' is confirmed. You are booked until the job ends."
	msgCancelledByFmt   = "The application for job '%s' (ref %s) was cancelled by the %s."
	msgCancelOKFmt      = "Your application for job '%s' (ref %s) is cancelled."
)

// Service bridges the on-site verbal OTP exchange into the application
// ledger, and handles pre-confirmation cancellation.
type Service struct {
	apps   repository.ApplicationRepo
	jobs   repository.JobRepo
	queue  notify.Queue
	logger *slog.Logger
}

func NewService(ar repository.ApplicationRepo, jr repository.JobRepo, queue notify.Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{apps: ar, jobs: jr, queue: queue, logger: logger}
}

// Verify consumes a submitted code on behalf of a contractor. On success the
// reply reveals the worker's verified identity - deliberately deferred until
// physical presence is confirmed.
func (s *Service) Verify(ctx context.Context, contractorPhone, code string) (string, error) {
	now := time.Now().UTC().UnixMilli()
	res, err := s.apps.VerifyOTP(ctx, contractorPhone, code, now)
	switch {
	case errors.Is(err, repository.ErrCodeInvalid):
		return MsgCodeInvalid, nil
	case err != nil:
		return "", fmt.Errorf("verify otp: %w", err)
	}

	if _, qerr := s.queue.Enqueue(ctx, res.Worker.Phone,
		fmt.Sprintf(msgWorkerConfirmFmt, res.Job.Title)); qerr != nil {
		s.logger.Warn("enqueue worker confirmation failed", "job", res.Job.ID, "err", qerr)
	}

	name := res.Worker.Name
	if name == "" {
		name = "(name not given)"
	}
	idNumber := res.Worker.IDNumber
	if idNumber == "" {
		idNumber = "(not verified)"
	}

	return fmt.Sprintf(msgVerifiedFmt, name, idNumber, res.Worker.Phone, res.Job.Title), nil
}

// Cancel cancels an application before confirmation. Workers cancel their own
// application by job ref; contractors additionally name the worker's phone.
// The other party is notified.
func (s *Service) Cancel(ctx context.Context, caller *models.Identity, ref, workerPhone string) (string, error) {
	if caller == nil {
		return "", fmt.Errorf("caller identity is nil")
	}

	job, err := s.jobs.ResolveJobRef(ctx, ref)
	if errors.Is(err, repository.ErrJobNotFound) {
		return MsgNothingToCancel, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve job: %w", err)
	}

	by := caller.Role
	var other string
	switch caller.Role {
	case models.RoleWorker:
		workerPhone = caller.Phone
		other = job.ContractorPhone
	case models.RoleContractor:
		if job.ContractorPhone != caller.Phone {
			return MsgNothingToCancel, nil
		}
		if workerPhone == "" {
			return MsgNothingToCancel, nil
		}
		other = workerPhone
	default:
		return MsgNothingToCancel, nil
	}

	_, err = s.apps.CancelApplication(ctx, job.ID, workerPhone, by)
	switch {
	case errors.Is(err, repository.ErrAppNotFound):
		return MsgNothingToCancel, nil
	case errors.Is(err, repository.ErrNotCancellable):
		// the attendance record is immutable once verified
		return MsgNotCancellable, nil
	case err != nil:
		return "", fmt.Errorf("cancel application: %w", err)
	}

	if _, qerr := s.queue.Enqueue(ctx, other,
		fmt.Sprintf(msgCancelledByFmt, job.Title, job.Ref(), string(by))); qerr != nil {
		s.logger.Warn("enqueue cancellation notice failed", "job", job.ID, "err", qerr)
	}

	return fmt.Sprintf(msgCancelOKFmt, job.Title, job.Ref()), nil
}
