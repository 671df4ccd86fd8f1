package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kaamsetu/kaamsetu/api"
	dbfs "github.com/kaamsetu/kaamsetu/db"
	"github.com/kaamsetu/kaamsetu/internal/config"
	dbpkg "github.com/kaamsetu/kaamsetu/internal/db"
	sqlite "github.com/kaamsetu/kaamsetu/internal/repository/sqlite"
	"github.com/kaamsetu/kaamsetu/pkg/models"
)

func setupServer(t *testing.T) (*httptest.Server, *sqlite.SQLiteRepo) {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	d, err := dbpkg.New(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	repo := sqlite.New(d, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := &config.Config{
		Addr:              ":0",
		JWTSecret:         testSecret,
		AdminUser:         "admin",
		AdminPasswordHash: string(hash),
		TokenDuration:     time.Hour,
	}

	router := api.SetupRoutes(cfg, "test", "now", repo, &fakeBot{reply: "ok"})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, repo
}

func TestRoutesOpenEndpoints(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/v1/webhook/message", "application/json",
		strings.NewReader(`{"from":"9100000001","text":"hi"}`))
	if err != nil {
		t.Fatalf("POST /v1/webhook/message: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from webhook, got %d", resp.StatusCode)
	}
	var reply struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode webhook reply: %v", err)
	}
	if reply.Reply != "ok" {
		t.Fatalf("unexpected webhook reply: %q", reply.Reply)
	}
}

func TestRoutesAdminRequiresAuth(t *testing.T) {
	srv, repo := setupServer(t)
	ctx := context.Background()

	if err := repo.UpsertIdentity(ctx, &models.Identity{
		Phone: "9100000001", Role: models.RoleWorker, Name: "R", Skill: "mason", Onboarded: true,
	}); err != nil {
		t.Fatalf("UpsertIdentity error: %v", err)
	}

	// no token
	resp, err := http.Get(srv.URL + "/v1/admin/stats")
	if err != nil {
		t.Fatalf("GET /v1/admin/stats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	// sign in for a token
	resp, err = http.Post(srv.URL+"/v1/auth/signin", "application/json",
		strings.NewReader(`{"user":"admin","password":"hunter2"}`))
	if err != nil {
		t.Fatalf("POST /v1/auth/signin: %v", err)
	}
	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		t.Fatalf("decode signin response: %v", err)
	}
	resp.Body.Close()
	if auth.Token == "" {
		t.Fatalf("signin returned no token")
	}

	// authorized stats call
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/admin/stats with token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	var stats models.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Workers != 1 {
		t.Fatalf("expected 1 worker in stats, got %d", stats.Workers)
	}

	// listing endpoint with the same token
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/admin/workers?limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/admin/workers: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from workers listing, got %d", resp.StatusCode)
	}
	var listing struct {
		Items []models.Identity `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Items) != 1 || listing.Items[0].Phone != "9100000001" {
		t.Fatalf("unexpected listing: %#v", listing.Items)
	}
}
