package attendance_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	dbfs "github.com/kaamsetu/kaamsetu/db"
	"github.com/kaamsetu/kaamsetu/internal/attendance"
	dbpkg "github.com/kaamsetu/kaamsetu/internal/db"
	sqlite "github.com/kaamsetu/kaamsetu/internal/repository/sqlite"
	"github.com/kaamsetu/kaamsetu/pkg/models"
)

type queuedMessage struct {
	recipient string
	body      string
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []queuedMessage
}

func (q *fakeQueue) Enqueue(ctx context.Context, recipient, body string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, queuedMessage{recipient: recipient, body: body})
	return int64(len(q.sent)), nil
}

func (q *fakeQueue) messages() []queuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queuedMessage(nil), q.sent...)
}

type fixture struct {
	svc   *attendance.Service
	repo  *sqlite.SQLiteRepo
	queue *fakeQueue
	job   *models.Job
	code  string
}

// setupAccepted builds the canonical state one step before verification: an
// onboarded worker holding a fresh code for a one-slot job.
func setupAccepted(t *testing.T) (*fixture, func()) {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	d, err := dbpkg.New(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		d.Close()
		t.Fatalf("failed to migrate: %v", err)
	}
	repo := sqlite.New(d, nil)
	queue := &fakeQueue{}
	svc := attendance.NewService(repo, repo, queue, nil)

	worker := &models.Identity{Phone: "91001", Role: models.RoleWorker, Name: "Ramesh", City: "mumbai", Skill: "mason", IDNumber: "XXXX-1234", Onboarded: true}
	if err := repo.UpsertIdentity(ctx, worker); err != nil {
		t.Fatalf("UpsertIdentity error: %v", err)
	}

	now := time.Now().UTC().UnixMilli()
	job := &models.Job{
		ID:              "abcd0000-0000-0000-0000-000000000001",
		ContractorPhone: "92001",
		Title:           "Mason work",
		Skill:           "mason",
		Wage:            "700/day",
		City:            "mumbai",
		Location:        "mumbai, andheri east",
		WorkersNeeded:   1,
		Remaining:       1,
		StartDate:       now,
		EndDate:         now + int64(24*time.Hour/time.Millisecond),
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	const code = "313131"
	if _, err := repo.AcceptJob(ctx, "abcd0000", worker.Phone, code, now+3_600_000); err != nil {
		t.Fatalf("AcceptJob error: %v", err)
	}

	return &fixture{svc: svc, repo: repo, queue: queue, job: job, code: code}, func() { d.Close() }
}

func TestVerify(t *testing.T) {
	f, cleanup := setupAccepted(t)
	defer cleanup()
	ctx := context.Background()

	// wrong digits first
	reply, err := f.svc.Verify(ctx, "92001", "999999")
	if err != nil || reply != attendance.MsgCodeInvalid {
		t.Fatalf("expected invalid-code message, got %q / %v", reply, err)
	}

	reply, err = f.svc.Verify(ctx, "92001", f.code)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	// the verified reply reveals the worker's identity to the contractor
	for _, want := range []string{"Ramesh", "XXXX-1234", "91001"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("reply missing %q: %q", want, reply)
		}
	}

	// the worker gets a confirmation notice
	msgs := f.queue.messages()
	if len(msgs) != 1 || msgs[0].recipient != "91001" {
		t.Fatalf("expected one worker notice, got %#v", msgs)
	}

	// a replay of the consumed code is rejected
	reply, err = f.svc.Verify(ctx, "92001", f.code)
	if err != nil || reply != attendance.MsgCodeInvalid {
		t.Fatalf("expected replay rejection, got %q / %v", reply, err)
	}
}

func TestVerifyForeignContractor(t *testing.T) {
	f, cleanup := setupAccepted(t)
	defer cleanup()
	ctx := context.Background()

	reply, err := f.svc.Verify(ctx, "92999", f.code)
	if err != nil || reply != attendance.MsgCodeInvalid {
		t.Fatalf("expected rejection for foreign contractor, got %q / %v", reply, err)
	}

	// the code survives for the real contractor
	reply, err = f.svc.Verify(ctx, "92001", f.code)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if reply == attendance.MsgCodeInvalid {
		t.Fatalf("code was consumed by the failed attempt")
	}
}

func TestCancelByWorker(t *testing.T) {
	f, cleanup := setupAccepted(t)
	defer cleanup()
	ctx := context.Background()

	worker, _ := f.repo.GetIdentity(ctx, "91001")
	reply, err := f.svc.Cancel(ctx, worker, "abcd0000", "")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !strings.Contains(reply, "cancelled") {
		t.Fatalf("unexpected cancel reply: %q", reply)
	}

	// the contractor hears about it
	msgs := f.queue.messages()
	if len(msgs) != 1 || msgs[0].recipient != "92001" {
		t.Fatalf("expected contractor notice, got %#v", msgs)
	}
	if !strings.Contains(msgs[0].body, "worker") {
		t.Fatalf("notice does not name the cancelling party: %q", msgs[0].body)
	}

	// the slot reopened
	job, _ := f.repo.GetJob(ctx, f.job.ID)
	if job.Remaining != 1 || job.Status != models.JobOpen {
		t.Fatalf("capacity not released: %#v", job)
	}

	// the stale code is dead
	reply, err = f.svc.Verify(ctx, "92001", f.code)
	if err != nil || reply != attendance.MsgCodeInvalid {
		t.Fatalf("expected dead code after cancel, got %q / %v", reply, err)
	}
}

func TestCancelByContractor(t *testing.T) {
	f, cleanup := setupAccepted(t)
	defer cleanup()
	ctx := context.Background()

	contractor := &models.Identity{Phone: "92001", Role: models.RoleContractor}

	// naming no worker cancels nothing
	reply, err := f.svc.Cancel(ctx, contractor, "abcd0000", "")
	if err != nil || reply != attendance.MsgNothingToCancel {
		t.Fatalf("expected nothing-to-cancel, got %q / %v", reply, err)
	}

	// a contractor who does not own the job cannot cancel its applications
	stranger := &models.Identity{Phone: "92999", Role: models.RoleContractor}
	reply, err = f.svc.Cancel(ctx, stranger, "abcd0000", "91001")
	if err != nil || reply != attendance.MsgNothingToCancel {
		t.Fatalf("expected rejection for foreign contractor, got %q / %v", reply, err)
	}

	reply, err = f.svc.Cancel(ctx, contractor, "abcd0000", "91001")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !strings.Contains(reply, "cancelled") {
		t.Fatalf("unexpected cancel reply: %q", reply)
	}

	// the worker hears about it
	msgs := f.queue.messages()
	if len(msgs) != 1 || msgs[0].recipient != "91001" {
		t.Fatalf("expected worker notice, got %#v", msgs)
	}
}

func TestCancelAfterConfirmation(t *testing.T) {
	f, cleanup := setupAccepted(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := f.svc.Verify(ctx, "92001", f.code); err != nil {
		t.Fatalf("Verify error: %v", err)
	}

	worker, _ := f.repo.GetIdentity(ctx, "91001")
	reply, err := f.svc.Cancel(ctx, worker, "abcd0000", "")
	if err != nil || reply != attendance.MsgNotCancellable {
		t.Fatalf("expected not-cancellable, got %q / %v", reply, err)
	}
}
