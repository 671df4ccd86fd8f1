package api

import (
	"github.com/gorilla/mux"

	"github.com/kaamsetu/kaamsetu/internal/bot"
	"github.com/kaamsetu/kaamsetu/internal/config"
	"github.com/kaamsetu/kaamsetu/internal/repository/sqlite"
)

func SetupRoutes(cfg *config.Config, version, buildTime string, repo *sqlite.SQLiteRepo, b MessageHandler) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(cfg.AdminUser, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.TokenDuration)
	adminHandler := NewAdminHandler(repo, repo, repo, repo)
	webhookHandler := NewWebhookHandler(b, bot.MsgApology)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")
	r.HandleFunc("/v1/webhook/message", webhookHandler.Message).Methods("POST")

	// Admin read API, protected
	adminV1 := r.PathPrefix("/v1/admin").Subrouter()
	adminV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))
	adminV1.HandleFunc("/stats", adminHandler.Stats).Methods("GET")
	adminV1.HandleFunc("/workers", adminHandler.ListWorkers).Methods("GET")
	adminV1.HandleFunc("/contractors", adminHandler.ListContractors).Methods("GET")
	adminV1.HandleFunc("/jobs", adminHandler.ListJobs).Methods("GET")
	adminV1.HandleFunc("/applications", adminHandler.ListApplications).Methods("GET")

	return r
}
