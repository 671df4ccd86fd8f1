package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaamsetu/kaamsetu/pkg/models"
	"github.com/kaamsetu/kaamsetu/pkg/repository"
)

// Step is a closed enumeration of conversation positions. Dispatch is an
// exhaustive switch; an unrecognized value force-resets the flow.
type Step string

const (
	// worker onboarding
	StepAwaitName     Step = "awaiting_name"
	StepAwaitSkill    Step = "awaiting_skill"
	StepAwaitLocation Step = "awaiting_location"
	StepAwaitIDImage  Step = "awaiting_id_image"

	// contractor job posting
	StepAwaitTitle         Step = "awaiting_title"
	StepAwaitSkillRequired Step = "awaiting_skill_required"
	StepAwaitWage          Step = "awaiting_wage"
	StepAwaitJobLocation   Step = "awaiting_job_location"
	StepAwaitWorkersNeeded Step = "awaiting_workers_needed"
)

// IDReader extracts a name and national-ID number from an ID-card image.
// The result is a guess from an external OCR service and is re-validated
// before being persisted.
type IDReader interface {
	ReadIDCard(ctx context.Context, image []byte) (name, idNumber string, err error)
}

// Machine drives the two multi-step collection flows. All cross-step state
// lives in the conversation ledger, so a restart mid-flow loses nothing
// beyond the in-flight reply.
type Machine struct {
	conversations repository.ConversationRepo
	identities    repository.IdentityRepo
	jobs          repository.JobRepo
	idReader      IDReader
	onJobPosted   func(ctx context.Context, j *models.Job)
	logger        *slog.Logger
}

// NewMachine creates a flow machine. idReader may be nil, in which case the
// ID-image step only accepts the skip tokens. onJobPosted is invoked after a
// posting flow completes and its job is persisted; it may be nil.
func NewMachine(cr repository.ConversationRepo, ir repository.IdentityRepo, jr repository.JobRepo, idReader IDReader, onJobPosted func(ctx context.Context, j *models.Job), logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		conversations: cr,
		identities:    ir,
		jobs:          jr,
		idReader:      idReader,
		onJobPosted:   onJobPosted,
		logger:        logger,
	}
}

// MsgFlowCancelled confirms an abandoned flow. "cancel" and "stop" are
// reserved words in any step; they are never stored as answers.
const MsgFlowCancelled = "Okay, I have cancelled that. Say 'hi' to register or 'post job' to hire."

// Advance interprets reply as the answer to the state's current step. On a
// validation failure the same step is re-prompted and the state is left
// unchanged; on success the answer is recorded and the machine moves on.
// A bare cancel token abandons the flow and deletes the state.
// Repository errors are returned as-is with the state untouched, so the same
// reply can be retried.
func (m *Machine) Advance(ctx context.Context, state *models.ConversationState, reply string, image []byte) (string, error) {
	if state == nil {
		return "", fmt.Errorf("conversation state is nil")
	}

	if len(image) == 0 && isCancelToken(reply) {
		if err := m.conversations.DeleteState(ctx, state.Phone); err != nil {
			return "", fmt.Errorf("abandon flow: %w", err)
		}
		return MsgFlowCancelled, nil
	}

	switch Step(state.Step) {
	case StepAwaitName, StepAwaitSkill, StepAwaitLocation, StepAwaitIDImage:
		return m.advanceOnboarding(ctx, state, reply, image)
	case StepAwaitTitle, StepAwaitSkillRequired, StepAwaitWage, StepAwaitJobLocation, StepAwaitWorkersNeeded:
		return m.advancePosting(ctx, state, reply)
	default:
		// state corruption fallback, not a normal path
		m.logger.Error("unrecognized conversation step, resetting flow",
			slog.String("phone", state.Phone), slog.String("step", state.Step))
		if err := m.conversations.DeleteState(ctx, state.Phone); err != nil {
			return "", fmt.Errorf("reset corrupt state: %w", err)
		}
		return MsgFlowReset, nil
	}
}

func (m *Machine) saveStep(ctx context.Context, state *models.ConversationState, next Step) error {
	state.Step = string(next)
	return m.conversations.SaveState(ctx, state)
}

// firstCitySegment extracts the city from a free-text location: the first
// comma-separated segment.
func firstCitySegment(location string) string {
	city, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(city)
}

func isCancelToken(reply string) bool {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "cancel", "stop":
		return true
	}
	return false
}

func validText(s string, min int) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < min {
		return "", false
	}
	return s, true
}
