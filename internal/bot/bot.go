package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kaamsetu/kaamsetu/internal/acceptance"
	"github.com/kaamsetu/kaamsetu/internal/attendance"
	"github.com/kaamsetu/kaamsetu/internal/flow"
	"github.com/kaamsetu/kaamsetu/internal/intent"
	"github.com/kaamsetu/kaamsetu/internal/matching"
	"github.com/kaamsetu/kaamsetu/internal/notify"
	"github.com/kaamsetu/kaamsetu/pkg/models"
	"github.com/kaamsetu/kaamsetu/pkg/repository"
)

const (
	MsgApology       = "Sorry, something went wrong on our side. Please send that again in a moment."
	MsgHelp          = "I can help you find work or workers. Say 'hi' to register as a worker, 'post job' to hire, 'YES <job ref>' to accept a job, or send the 6-digit attendance code a worker tells you on site."
	MsgNeedRef       = "Please reply with the job ref too, e.g. 'YES ab12cd34'."
	MsgRegisterFirst = "Please register first - say 'hi' to begin."

	msgNoWorkersFmt = "No matching workers were found for your job '%s' (ref %s) yet. We will keep it open."
	msgJobNoticeFmt = "New job: %s (%s) in %s. Wage: %s. Reply 'YES %s' to accept."
	msgStatusFmt    = "You are registered as a %s. Name: %s, skill: %s, city: %s."
)

var (
	otpRe = regexp.MustCompile(`^\d{6}$`)
	refRe = regexp.MustCompile(`^[a-z0-9-]{4,36}$`)
)

// IntentDetector is the narrow contract to the external language model. It is
// optional; with a nil detector the bot routes purely on keywords.
type IntentDetector interface {
	Detect(ctx context.Context, text string) (*intent.Intent, error)
}

// Bot is the single entry point for inbound chat messages. Precedence:
// active conversation flow, deterministic commands, LLM intent, help text.
type Bot struct {
	flows         *flow.Machine
	match         *matching.Engine
	accept        *acceptance.Service
	attend        *attendance.Service
	identities    repository.IdentityRepo
	conversations repository.ConversationRepo
	queue         notify.Queue
	intents       IntentDetector
	logger        *slog.Logger
}

func New(
	ir repository.IdentityRepo,
	cr repository.ConversationRepo,
	jr repository.JobRepo,
	match *matching.Engine,
	accept *acceptance.Service,
	attend *attendance.Service,
	queue notify.Queue,
	intents IntentDetector,
	idReader flow.IDReader,
	logger *slog.Logger,
) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		match:         match,
		accept:        accept,
		attend:        attend,
		identities:    ir,
		conversations: cr,
		queue:         queue,
		intents:       intents,
		logger:        logger,
	}
	b.flows = flow.NewMachine(cr, ir, jr, idReader, b.notifyMatches, logger)
	return b
}

// Handle processes one inbound message and returns the reply text. A non-nil
// error is transient: no conversation state was consumed and the same message
// can be retried; the caller answers with MsgApology.
func (b *Bot) Handle(ctx context.Context, from, text string, image []byte) (string, error) {
	state, err := b.conversations.GetState(ctx, from)
	if err != nil {
		return "", fmt.Errorf("load conversation state: %w", err)
	}

	// an active flow claims every inbound message from this phone
	if state != nil {
		return b.flows.Advance(ctx, state, text, image)
	}

	identity, err := b.identities.GetIdentity(ctx, from)
	if err != nil {
		return "", fmt.Errorf("load identity: %w", err)
	}

	if reply, handled, err := b.routeKeyword(ctx, from, identity, text); handled || err != nil {
		return reply, err
	}

	if b.intents != nil {
		if reply, handled, err := b.routeIntent(ctx, from, identity, text); handled || err != nil {
			return reply, err
		}
	}

	return MsgHelp, nil
}

func (b *Bot) routeKeyword(ctx context.Context, from string, identity *models.Identity, text string) (string, bool, error) {
	norm := strings.ToLower(strings.TrimSpace(text))
	fields := strings.Fields(norm)
	if len(fields) == 0 {
		return "", false, nil
	}

	// a bare 6-digit number from a contractor is an attendance code
	if otpRe.MatchString(norm) && identity != nil && identity.Role == models.RoleContractor {
		reply, err := b.attend.Verify(ctx, from, norm)
		return reply, true, err
	}

	switch fields[0] {
	case "yes", "accept", "ok":
		if identity == nil || identity.Role != models.RoleWorker || !identity.Onboarded {
			return MsgRegisterFirst, true, nil
		}
		if len(fields) < 2 || !refRe.MatchString(fields[1]) {
			return MsgNeedRef, true, nil
		}
		reply, err := b.accept.Accept(ctx, from, fields[1])
		return reply, true, err

	case "cancel":
		if identity == nil {
			return MsgRegisterFirst, true, nil
		}
		if len(fields) < 2 || !refRe.MatchString(fields[1]) {
			return MsgNeedRef, true, nil
		}
		workerPhone := ""
		if len(fields) >= 3 {
			workerPhone = fields[2]
		}
		reply, err := b.attend.Cancel(ctx, identity, fields[1], workerPhone)
		return reply, true, err

	case "status":
		if identity == nil {
			return MsgRegisterFirst, true, nil
		}
		return fmt.Sprintf(msgStatusFmt, identity.Role, identity.Name, identity.Skill, identity.City), true, nil
	}

	if containsAny(norm, "post", "hire") {
		reply, err := b.flows.StartJobPosting(ctx, from)
		return reply, true, err
	}
	if containsAny(norm, "hi", "hello", "hey", "namaste", "job", "work", "kaam", "start", "register") {
		if identity != nil && identity.Role == models.RoleContractor {
			reply, err := b.flows.StartJobPosting(ctx, from)
			return reply, true, err
		}
		if identity != nil && identity.Onboarded {
			return MsgHelp, true, nil
		}
		reply, err := b.flows.StartOnboarding(ctx, from)
		return reply, true, err
	}

	return "", false, nil
}

// routeIntent lets the language model classify messages the keyword pass did
// not recognize. The model is unreliable: slot values go through the same
// validation the deterministic commands use.
func (b *Bot) routeIntent(ctx context.Context, from string, identity *models.Identity, text string) (string, bool, error) {
	it, err := b.intents.Detect(ctx, text)
	if err != nil {
		// intent routing is best-effort; fall through to help text
		b.logger.Warn("intent detection failed", "err", err)
		return "", false, nil
	}

	switch it.Name {
	case intent.IntentOnboardWorker:
		if identity != nil && identity.Onboarded && identity.Role == models.RoleWorker {
			return MsgHelp, true, nil
		}
		reply, err := b.flows.StartOnboarding(ctx, from)
		return reply, true, err

	case intent.IntentPostJob:
		reply, err := b.flows.StartJobPosting(ctx, from)
		return reply, true, err

	case intent.IntentAcceptJob:
		if identity == nil || identity.Role != models.RoleWorker || !identity.Onboarded {
			return MsgRegisterFirst, true, nil
		}
		ref := strings.ToLower(strings.TrimSpace(it.Slots["job_ref"]))
		if !refRe.MatchString(ref) {
			return MsgNeedRef, true, nil
		}
		reply, err := b.accept.Accept(ctx, from, ref)
		return reply, true, err

	case intent.IntentVerifyOTP:
		if identity == nil || identity.Role != models.RoleContractor {
			return "", false, nil
		}
		code := strings.TrimSpace(it.Slots["otp"])
		if !otpRe.MatchString(code) {
			return "", false, nil
		}
		reply, err := b.attend.Verify(ctx, from, code)
		return reply, true, err

	case intent.IntentCancel:
		if identity == nil {
			return MsgRegisterFirst, true, nil
		}
		ref := strings.ToLower(strings.TrimSpace(it.Slots["job_ref"]))
		if !refRe.MatchString(ref) {
			return MsgNeedRef, true, nil
		}
		reply, err := b.attend.Cancel(ctx, identity, ref, "")
		return reply, true, err

	case intent.IntentStatus:
		if identity == nil {
			return MsgRegisterFirst, true, nil
		}
		return fmt.Sprintf(msgStatusFmt, identity.Role, identity.Name, identity.Skill, identity.City), true, nil
	}

	return "", false, nil
}

// notifyMatches runs after a posting flow completes: it computes candidates
// and enqueues one notice per worker. Delivery itself is the dispatcher's
// problem; nothing here blocks on the transport.
func (b *Bot) notifyMatches(ctx context.Context, job *models.Job) {
	candidates, err := b.match.FindCandidates(ctx, job)
	if err != nil {
		b.logger.Error("matching failed", "job", job.ID, "err", err)
		return
	}

	if len(candidates) == 0 {
		if _, qerr := b.queue.Enqueue(ctx, job.ContractorPhone,
			fmt.Sprintf(msgNoWorkersFmt, job.Title, job.Ref())); qerr != nil {
			b.logger.Error("enqueue no-workers notice failed", "job", job.ID, "err", qerr)
		}
		return
	}

	body := fmt.Sprintf(msgJobNoticeFmt, job.Title, job.Skill, job.City, job.Wage, job.Ref())
	for _, w := range candidates {
		if _, qerr := b.queue.Enqueue(ctx, w.Phone, body); qerr != nil {
			b.logger.Error("enqueue job notice failed", "job", job.ID, "worker", w.Phone, "err", qerr)
		}
	}
}

func containsAny(norm string, words ...string) bool {
	fields := strings.Fields(norm)
	for _, w := range words {
		for _, f := range fields {
			if f == w {
				return true
			}
		}
	}
	return false
}
