package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaamsetu/kaamsetu/pkg/models"
)

// Prompts and replies for the contractor job posting flow.
const (
	MsgAskTitle         = "Let's post a job. What is the job title?"
	MsgAskSkillRequired = "What kind of worker do you need? (e.g. mason, painter)"
	MsgAskWage          = "What wage are you offering? (e.g. 700/day)"
	MsgAskJobLocation   = "Where is the job? City and meeting point, e.g. 'Mumbai, Dadar station'."
	MsgAskWorkers       = "How many workers do you need? (1-100)"
	MsgBadTitle         = "Please send a short job title, e.g. 'House painting'."
	MsgBadSkillRequired = "Please tell me the kind of worker you need."
	MsgBadWage          = "Please tell me the wage, e.g. 700/day."
	MsgBadJobLocation   = "Please send the city and meeting point."
	MsgBadWorkers       = "Please send a number between 1 and 100."
	msgJobPostedFmt     = "Your job '%s' is posted (ref %s). We are notifying %s workers near %s now."
)

const maxWorkersNeeded = 100

// StartJobPosting opens a job posting flow for the contractor's phone and
// returns the first prompt.
func (m *Machine) StartJobPosting(ctx context.Context, phone string) (string, error) {
	state := &models.ConversationState{
		Phone:   phone,
		Step:    string(StepAwaitTitle),
		Role:    models.RoleContractor,
		Context: map[string]string{},
	}
	if err := m.conversations.SaveState(ctx, state); err != nil {
		return "", fmt.Errorf("start job posting: %w", err)
	}
	return MsgAskTitle, nil
}

func (m *Machine) advancePosting(ctx context.Context, state *models.ConversationState, reply string) (string, error) {
	switch Step(state.Step) {
	case StepAwaitTitle:
		title, ok := validText(reply, 3)
		if !ok {
			return MsgBadTitle, nil
		}
		state.Context["title"] = title
		if err := m.saveStep(ctx, state, StepAwaitSkillRequired); err != nil {
			return "", err
		}
		return MsgAskSkillRequired, nil

	case StepAwaitSkillRequired:
		skill, ok := validText(reply, 2)
		if !ok {
			return MsgBadSkillRequired, nil
		}
		state.Context["skill"] = skill
		if err := m.saveStep(ctx, state, StepAwaitWage); err != nil {
			return "", err
		}
		return MsgAskWage, nil

	case StepAwaitWage:
		wage, ok := validText(reply, 1)
		if !ok {
			return MsgBadWage, nil
		}
		state.Context["wage"] = wage
		if err := m.saveStep(ctx, state, StepAwaitJobLocation); err != nil {
			return "", err
		}
		return MsgAskJobLocation, nil

	case StepAwaitJobLocation:
		location, ok := validText(reply, 2)
		if !ok {
			return MsgBadJobLocation, nil
		}
		state.Context["location"] = location
		if err := m.saveStep(ctx, state, StepAwaitWorkersNeeded); err != nil {
			return "", err
		}
		return MsgAskWorkers, nil

	case StepAwaitWorkersNeeded:
		n, err := strconv.Atoi(strings.TrimSpace(reply))
		if err != nil || n < 1 || n > maxWorkersNeeded {
			return MsgBadWorkers, nil
		}
		return m.finishPosting(ctx, state, n)

	default:
		return "", fmt.Errorf("advancePosting called with step %q", state.Step)
	}
}

func (m *Machine) finishPosting(ctx context.Context, state *models.ConversationState, workersNeeded int) (string, error) {
	// contractors register implicitly the first time they post
	contractor, err := m.identities.GetIdentity(ctx, state.Phone)
	if err != nil {
		return "", fmt.Errorf("load contractor: %w", err)
	}
	if contractor == nil {
		contractor = &models.Identity{
			Phone:     state.Phone,
			Role:      models.RoleContractor,
			Onboarded: true,
		}
		if err := m.identities.UpsertIdentity(ctx, contractor); err != nil {
			return "", fmt.Errorf("register contractor: %w", err)
		}
	}

	now := time.Now().UTC()
	location := state.Context["location"]
	job := &models.Job{
		ID:              uuid.NewString(),
		ContractorPhone: state.Phone,
		Title:           state.Context["title"],
		Skill:           state.Context["skill"],
		Wage:            state.Context["wage"],
		City:            firstCitySegment(location),
		Location:        location,
		WorkersNeeded:   workersNeeded,
		Remaining:       workersNeeded,
		StartDate:       now.UnixMilli(),
		EndDate:         now.Add(24 * time.Hour).UnixMilli(),
		Status:          models.JobOpen,
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("persist job: %w", err)
	}
	if err := m.conversations.DeleteState(ctx, state.Phone); err != nil {
		return "", fmt.Errorf("clear posting state: %w", err)
	}

	if m.onJobPosted != nil {
		m.onJobPosted(ctx, job)
	}

	return fmt.Sprintf(msgJobPostedFmt, job.Title, job.Ref(), job.Skill, job.City), nil
}
