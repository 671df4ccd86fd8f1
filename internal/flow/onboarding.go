package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/kaamsetu/kaamsetu/pkg/models"
)

// Prompts and replies for the worker onboarding flow.
const (
	MsgAskName      = "Welcome to KaamSetu! What is your name?"
	MsgAskSkill     = "What kind of work do you do? (e.g. mason, painter, electrician)"
	MsgAskLocation  = "Which city or area do you live in?"
	MsgAskIDImage   = "Please send a photo of your ID card for verification, or reply 'skip' to do this later."
	MsgBadName      = "Please tell me your name (at least 2 letters)."
	MsgBadSkill     = "Please tell me the kind of work you do, e.g. mason or painter."
	MsgBadLocation  = "Please tell me your city or area."
	MsgBadIDImage   = "I did not get that. Send a photo of your ID card, or reply 'skip'."
	MsgOCRFailed    = "I could not read that image. Try another photo, or reply 'skip'."
	MsgFlowReset    = "Sorry, something went wrong with our conversation. Please say 'hi' to start again."
	msgOnboardedFmt = "Thank you %s! You are registered for %s work in %s. We will message you when matching jobs are posted."
)

// StartOnboarding opens a worker onboarding flow for the phone and returns
// the first prompt. The caller is responsible for ensuring no other flow is
// active for this phone.
func (m *Machine) StartOnboarding(ctx context.Context, phone string) (string, error) {
	state := &models.ConversationState{
		Phone:   phone,
		Step:    string(StepAwaitName),
		Role:    models.RoleWorker,
		Context: map[string]string{},
	}
	if err := m.conversations.SaveState(ctx, state); err != nil {
		return "", fmt.Errorf("start onboarding: %w", err)
	}
	return MsgAskName, nil
}

func (m *Machine) advanceOnboarding(ctx context.Context, state *models.ConversationState, reply string, image []byte) (string, error) {
	switch Step(state.Step) {
	case StepAwaitName:
		name, ok := validText(reply, 2)
		if !ok {
			return MsgBadName, nil
		}
		state.Context["name"] = name
		if err := m.saveStep(ctx, state, StepAwaitSkill); err != nil {
			return "", err
		}
		return MsgAskSkill, nil

	case StepAwaitSkill:
		skill, ok := validText(reply, 2)
		if !ok {
			return MsgBadSkill, nil
		}
		state.Context["skill"] = skill
		if err := m.saveStep(ctx, state, StepAwaitLocation); err != nil {
			return "", err
		}
		return MsgAskLocation, nil

	case StepAwaitLocation:
		location, ok := validText(reply, 2)
		if !ok {
			return MsgBadLocation, nil
		}
		state.Context["location"] = location
		if err := m.saveStep(ctx, state, StepAwaitIDImage); err != nil {
			return "", err
		}
		return MsgAskIDImage, nil

	case StepAwaitIDImage:
		return m.finishOnboarding(ctx, state, reply, image)

	default:
		return "", fmt.Errorf("advanceOnboarding called with step %q", state.Step)
	}
}

func (m *Machine) finishOnboarding(ctx context.Context, state *models.ConversationState, reply string, image []byte) (string, error) {
	switch {
	case len(image) > 0:
		if m.idReader == nil {
			return MsgOCRFailed, nil
		}
		name, idNumber, err := m.idReader.ReadIDCard(ctx, image)
		if err != nil {
			// external OCR is an unreliable collaborator; re-prompt, state unchanged
			m.logger.Warn("id card ocr failed", "phone", state.Phone, "err", err)
			return MsgOCRFailed, nil
		}
		if idNumber != "" {
			state.Context["id_number"] = idNumber
		}
		// OCR name backfills only an absent name
		if state.Context["name"] == "" && name != "" {
			state.Context["name"] = name
		}

	case isSkipToken(reply):
		// verification bypassed

	default:
		return MsgBadIDImage, nil
	}

	identity := &models.Identity{
		Phone:     state.Phone,
		Role:      models.RoleWorker,
		Name:      state.Context["name"],
		Skill:     state.Context["skill"],
		City:      firstCitySegment(state.Context["location"]),
		IDNumber:  state.Context["id_number"],
		Onboarded: true,
	}
	// re-onboarding must not release a job hold or lose a verified ID
	existing, err := m.identities.GetIdentity(ctx, state.Phone)
	if err != nil {
		return "", fmt.Errorf("load identity: %w", err)
	}
	if existing != nil {
		identity.AvailableFrom = existing.AvailableFrom
		identity.Language = existing.Language
		if identity.IDNumber == "" {
			identity.IDNumber = existing.IDNumber
		}
	}
	if err := m.identities.UpsertIdentity(ctx, identity); err != nil {
		return "", fmt.Errorf("persist identity: %w", err)
	}
	if err := m.conversations.DeleteState(ctx, state.Phone); err != nil {
		return "", fmt.Errorf("clear onboarding state: %w", err)
	}

	return fmt.Sprintf(msgOnboardedFmt, identity.Name, identity.Skill, identity.City), nil
}

func isSkipToken(reply string) bool {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "skip", "no":
		return true
	}
	return false
}
