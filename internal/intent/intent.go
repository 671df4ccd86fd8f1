package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/kaamsetu/kaamsetu/internal/config"
	"github.com/kaamsetu/kaamsetu/pkg/ollama"
	"github.com/kaamsetu/kaamsetu/pkg/repository"
)

// Recognized intent names. Anything else the model produces is mapped to
// IntentUnknown before it reaches the bot.
const (
	IntentOnboardWorker = "onboard_worker"
	IntentPostJob       = "post_job"
	IntentAcceptJob     = "accept_job"
	IntentVerifyOTP     = "verify_otp"
	IntentCancel        = "cancel"
	IntentStatus        = "status"
	IntentUnknown       = "unknown"
)

// Intent is the structured output of the language-model router. The model is
// an unreliable collaborator: every slot value is re-validated by the
// consumer before it touches a ledger.
type Intent struct {
	Name       string            `json:"intent"`
	Slots      map[string]string `json:"slots,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`

	// Raw captures the original model output for auditing/logging.
	Raw string `json:"-"`
}

const defaultTemplate = `You are the intent router for a WhatsApp labour marketplace.
Classify the user message into exactly one intent and extract slot values.
Intents: onboard_worker, post_job, accept_job, verify_otp, cancel, status, unknown.
Slots: job_ref (short job id prefix), otp (6 digit code).
Reply with a single JSON object only, like:
{"intent":"accept_job","slots":{"job_ref":"ab12cd34"},"confidence":0.9}

Message: {{.Text}}`

const idCardTemplate = `Extract the person's full name and ID number from this identity card image.
Reply with a single JSON object only: {"name":"...","id_number":"..."}`

// Engine wraps an Ollama client and provides intent routing and ID-card OCR.
type Engine struct {
	client *ollama.Client
	cfg    config.EngineConfig
	loader *Loader
	logger *slog.Logger
}

// NewEngine creates an intent engine. The schema repository is required: all
// model output is validated against the stored intent schema before use.
func NewEngine(ctx context.Context, client *ollama.Client, cfg config.EngineConfig, sr repository.SchemaRepo, logger *slog.Logger) (*Engine, error) {
	if cfg.Template.Version == "" {
		cfg.Template.Version = "v1"
	}
	if cfg.Template.Template == "" {
		cfg.Template.Template = defaultTemplate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}

	if sr == nil {
		return nil, fmt.Errorf("schema repo is required")
	}

	loader, err := NewLoader(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}

	return &Engine{client: client, cfg: cfg, loader: loader, logger: logger}, nil
}

// Detect classifies a free-text message. A response that fails schema
// validation or falls below the confidence threshold degrades to
// IntentUnknown rather than erroring, so the caller can fall back to
// deterministic routing.
func (e *Engine) Detect(ctx context.Context, text string) (*Intent, error) {
	prompt, err := ollama.RenderTemplate(e.cfg.Template.Template, map[string]any{"Text": text})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	ctxReq, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out, err := e.client.Generate(ctxReq, e.cfg.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	it, perr := e.ParseIntent(ctx, out)
	if perr != nil {
		e.logger.Warn("intent parse failed, degrading to unknown", "err", perr, "raw", out)
		return &Intent{Name: IntentUnknown, Raw: out}, nil
	}

	return it, nil
}

// ParseIntent extracts, decodes and schema-validates a model response.
func (e *Engine) ParseIntent(ctx context.Context, out string) (*Intent, error) {
	j := extractJSON(out)
	if j == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	schemaVersion := e.cfg.Template.Version
	if e.cfg.Template.SchemaVersion != nil {
		schemaVersion = *e.cfg.Template.SchemaVersion
	}
	if rs, ok := e.loader.GetSchema(schemaVersion); ok {
		keyErrs, err := rs.ValidateBytes(ctx, []byte(j))
		if err != nil {
			return nil, fmt.Errorf("validate response: %w", err)
		}
		if len(keyErrs) > 0 {
			return nil, fmt.Errorf("response failed schema %s: %v", schemaVersion, keyErrs)
		}
	}

	var it Intent
	if err := json.Unmarshal([]byte(j), &it); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	it.Raw = out

	if !knownIntent(it.Name) {
		it.Name = IntentUnknown
	}
	if it.Confidence != nil && *it.Confidence < e.cfg.MinConfidence {
		it.Name = IntentUnknown
	}

	return &it, nil
}

// ReadIDCard runs OCR over an ID-card image and returns the extracted name
// and ID number. Either field may come back empty.
func (e *Engine) ReadIDCard(ctx context.Context, image []byte) (string, string, error) {
	ctxReq, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out, err := e.client.Generate(ctxReq, e.cfg.Model, idCardTemplate, api.ImageData(image))
	if err != nil {
		return "", "", fmt.Errorf("generate: %w", err)
	}

	j := extractJSON(out)
	if j == "" {
		return "", "", fmt.Errorf("no JSON object found in OCR response")
	}

	var card struct {
		Name     string `json:"name"`
		IDNumber string `json:"id_number"`
	}
	if err := json.Unmarshal([]byte(j), &card); err != nil {
		return "", "", fmt.Errorf("decode OCR response: %w", err)
	}

	return strings.TrimSpace(card.Name), strings.TrimSpace(card.IDNumber), nil
}

func knownIntent(name string) bool {
	switch name {
	case IntentOnboardWorker, IntentPostJob, IntentAcceptJob, IntentVerifyOTP, IntentCancel, IntentStatus, IntentUnknown:
		return true
	}
	return false
}

// extractJSON returns the first top-level JSON object in s, tolerating
// models that wrap their answer in prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
