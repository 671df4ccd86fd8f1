package acceptance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/kaamsetu/kaamsetu/internal/notify"
	"github.com/kaamsetu/kaamsetu/pkg/models"
	"github.com/kaamsetu/kaamsetu/pkg/repository"
)

// User-facing denial messages for the acceptance conflict taxonomy.
const (
	MsgJobNotFound    = "Sorry, I could not find that job. Check the job ref and try again."
	MsgJobFilled      = "Sorry, that job has already been filled."
	MsgAlreadyApplied = "You have already applied for this job."
	msgAcceptedFmt    = "You're in for '%s'! Your attendance code is %s. Tell it to the contractor at the site - do not share it with anyone else. Meeting point: %s. Wage: %s."
	msgContractorFmt  = "Worker %s accepted your job '%s' (ref %s). %d position(s) remaining."
	msgJobFilledFmt   = "All positions for your job '%s' (ref %s) are now filled."
)

// Service converts a worker's affirmative reply into a capacity-respecting
// assignment. OTP issuance is bundled: the application is created already
// holding its attendance code.
type Service struct {
	jobs   repository.JobRepo
	queue  notify.Queue
	otpTTL time.Duration
	logger *slog.Logger
}

func NewService(jr repository.JobRepo, queue notify.Queue, otpTTL time.Duration, logger *slog.Logger) *Service {
	if otpTTL <= 0 {
		// generous: the worker may travel overnight before the job starts
		otpTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jr, queue: queue, otpTTL: otpTTL, logger: logger}
}

// Accept runs the acceptance transaction for the job referenced by ref and
// returns the reply for the worker. Conflict outcomes come back as plain
// denial messages with a nil error; a non-nil error is transient and the
// worker's reply can be retried.
func (s *Service) Accept(ctx context.Context, workerPhone, ref string) (string, error) {
	code, err := GenerateOTP()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	expiry := time.Now().UTC().Add(s.otpTTL).UnixMilli()

	job, err := s.jobs.AcceptJob(ctx, ref, workerPhone, code, expiry)
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		return MsgJobNotFound, nil
	case errors.Is(err, repository.ErrJobFilled):
		return MsgJobFilled, nil
	case errors.Is(err, repository.ErrAlreadyApplied):
		return MsgAlreadyApplied, nil
	case err != nil:
		return "", fmt.Errorf("accept job: %w", err)
	}

	// side effects outside the transaction, best-effort, queued not blocking
	if _, qerr := s.queue.Enqueue(ctx, job.ContractorPhone,
		fmt.Sprintf(msgContractorFmt, workerPhone, job.Title, job.Ref(), job.Remaining)); qerr != nil {
		s.logger.Warn("enqueue contractor acceptance notice failed", "job", job.ID, "err", qerr)
	}
	if job.Status == models.JobFilled {
		if _, qerr := s.queue.Enqueue(ctx, job.ContractorPhone,
			fmt.Sprintf(msgJobFilledFmt, job.Title, job.Ref())); qerr != nil {
			s.logger.Warn("enqueue filled notice failed", "job", job.ID, "err", qerr)
		}
	}

	// the code goes to the worker only, never to the contractor
	return fmt.Sprintf(msgAcceptedFmt, job.Title, code, job.Location, job.Wage), nil
}

// GenerateOTP returns a uniformly random 6-digit code. The range starts at
// 100000 to avoid leading-zero ambiguity in a chat message.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
