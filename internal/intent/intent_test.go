package intent_test

import (
	"context"
	"testing"

	dbfs "github.com/kaamsetu/kaamsetu/db"
	"github.com/kaamsetu/kaamsetu/internal/config"
	"github.com/kaamsetu/kaamsetu/internal/intent"
	"github.com/kaamsetu/kaamsetu/pkg/models"
)

// fakeSchemaRepo serves the embedded seed schema without a database.
type fakeSchemaRepo struct {
	schemas map[string]string
}

func newFakeSchemaRepo(t *testing.T) *fakeSchemaRepo {
	t.Helper()
	b, err := dbfs.SeedFiles.ReadFile("seed/intent_v1.json")
	if err != nil {
		t.Fatalf("read seed schema: %v", err)
	}
	return &fakeSchemaRepo{schemas: map[string]string{"v1": string(b)}}
}

func (f *fakeSchemaRepo) CreateSchema(ctx context.Context, version, schemaJSON string) (int64, error) {
	f.schemas[version] = schemaJSON
	return int64(len(f.schemas)), nil
}

func (f *fakeSchemaRepo) GetSchemaByVersion(ctx context.Context, version string) (*models.IntentSchema, error) {
	s, ok := f.schemas[version]
	if !ok {
		return nil, nil
	}
	return &models.IntentSchema{Version: version, SchemaJSON: s}, nil
}

func (f *fakeSchemaRepo) ListSchemas(ctx context.Context) ([]models.IntentSchema, error) {
	out := make([]models.IntentSchema, 0, len(f.schemas))
	for v, s := range f.schemas {
		out = append(out, models.IntentSchema{Version: v, SchemaJSON: s})
	}
	return out, nil
}

func newEngine(t *testing.T) *intent.Engine {
	t.Helper()
	cfg := config.EngineConfig{Model: "test-model", MinConfidence: 0.5}
	e, err := intent.NewEngine(context.Background(), nil, cfg, newFakeSchemaRepo(t), nil)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	return e
}

func TestParseIntentPlainJSON(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	it, err := e.ParseIntent(ctx, `{"intent":"accept_job","slots":{"job_ref":"ab12cd34"},"confidence":0.9}`)
	if err != nil {
		t.Fatalf("ParseIntent error: %v", err)
	}
	if it.Name != intent.IntentAcceptJob {
		t.Fatalf("wrong intent: %q", it.Name)
	}
	if it.Slots["job_ref"] != "ab12cd34" {
		t.Fatalf("wrong slots: %#v", it.Slots)
	}
	if it.Confidence == nil || *it.Confidence != 0.9 {
		t.Fatalf("wrong confidence: %v", it.Confidence)
	}
}

func TestParseIntentWrappedInProse(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	out := "Sure! Here is the classification:\n```json\n{\"intent\":\"verify_otp\",\"slots\":{\"otp\":\"424242\"},\"confidence\":0.8}\n```\nHope that helps."
	it, err := e.ParseIntent(ctx, out)
	if err != nil {
		t.Fatalf("ParseIntent error: %v", err)
	}
	if it.Name != intent.IntentVerifyOTP || it.Slots["otp"] != "424242" {
		t.Fatalf("wrong parse of wrapped response: %#v", it)
	}
	if it.Raw != out {
		t.Fatalf("raw response not preserved")
	}
}

func TestParseIntentNestedAndEscaped(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// braces inside string values must not confuse the extractor
	it, err := e.ParseIntent(ctx, `{"intent":"status","slots":{"note":"use {curly} and \"quoted\" text"},"confidence":0.9}`)
	if err != nil {
		t.Fatalf("ParseIntent error: %v", err)
	}
	if it.Name != intent.IntentStatus {
		t.Fatalf("wrong intent: %q", it.Name)
	}
}

func TestParseIntentRejectsMalformed(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	cases := []string{
		"no json here at all",
		`{"slots":{"job_ref":"ab12"}}`,                               // missing required intent
		`{"intent":"accept_job","confidence":1.5}`,                   // confidence out of range
		`{"intent":"accept_job","slots":{"job_ref":42}}`,             // non-string slot
	}
	for _, c := range cases {
		if _, err := e.ParseIntent(ctx, c); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestParseIntentDegradesToUnknown(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// a hallucinated intent name that still passes the schema enum cannot
	// exist; an unknown-but-valid name is the "unknown" member itself, and
	// low confidence demotes an otherwise good answer
	it, err := e.ParseIntent(ctx, `{"intent":"accept_job","slots":{"job_ref":"ab12cd34"},"confidence":0.2}`)
	if err != nil {
		t.Fatalf("ParseIntent error: %v", err)
	}
	if it.Name != intent.IntentUnknown {
		t.Fatalf("low confidence should demote to unknown, got %q", it.Name)
	}

	it, err = e.ParseIntent(ctx, `{"intent":"unknown","confidence":0.95}`)
	if err != nil {
		t.Fatalf("ParseIntent error: %v", err)
	}
	if it.Name != intent.IntentUnknown {
		t.Fatalf("expected unknown, got %q", it.Name)
	}
}

func TestLoaderReload(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSchemaRepo(t)
	l, err := intent.NewLoader(ctx, repo)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}

	if _, ok := l.GetSchema("v1"); !ok {
		t.Fatalf("expected v1 schema to be loaded")
	}
	if _, ok := l.GetSchema("v2"); ok {
		t.Fatalf("unexpected v2 schema")
	}

	if _, err := repo.CreateSchema(ctx, "v2", `{"type":"object"}`); err != nil {
		t.Fatalf("CreateSchema error: %v", err)
	}
	if err := l.Reload(ctx); err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	if _, ok := l.GetSchema("v2"); !ok {
		t.Fatalf("expected v2 schema after reload")
	}
}
