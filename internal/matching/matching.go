package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaamsetu/kaamsetu/pkg/models"
	"github.com/kaamsetu/kaamsetu/pkg/repository"
)

// Engine computes the candidate worker set for a newly posted job. This is a
// broadcast-and-first-come model: no ranking, all candidates get notified.
type Engine struct {
	identities repository.IdentityRepo
	logger     *slog.Logger
}

func NewEngine(ir repository.IdentityRepo, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{identities: ir, logger: logger}
}

// FindCandidates runs the two-pass filter: skill and city first, skill alone
// as a fallback when the city match comes up empty. City-name spelling is
// inconsistent in practice, so recall beats precision here. Only currently
// available workers qualify in either pass.
func (e *Engine) FindCandidates(ctx context.Context, job *models.Job) ([]models.Identity, error) {
	if job == nil {
		return nil, fmt.Errorf("job is nil")
	}

	now := time.Now().UTC().UnixMilli()
	candidates, err := e.identities.FindAvailableWorkers(ctx, job.Skill, job.City, now)
	if err != nil {
		return nil, fmt.Errorf("primary pass: %w", err)
	}
	if len(candidates) > 0 {
		return candidates, nil
	}

	candidates, err = e.identities.FindAvailableWorkers(ctx, job.Skill, "", now)
	if err != nil {
		return nil, fmt.Errorf("fallback pass: %w", err)
	}
	if len(candidates) > 0 {
		e.logger.Info("matching fell back to skill-only pass",
			slog.String("job", job.ID), slog.String("city", job.City), slog.Int("candidates", len(candidates)))
	}

	return candidates, nil
}
