package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kaamsetu/kaamsetu/pkg/models"
	"github.com/kaamsetu/kaamsetu/pkg/repository"
)

// AdminHandler serves read-only aggregate and listing endpoints over the
// ledgers. No core logic depends on this direction.
type AdminHandler struct {
	stats      repository.StatsRepo
	identities repository.IdentityRepo
	jobs       repository.JobRepo
	apps       repository.ApplicationRepo
}

func NewAdminHandler(sr repository.StatsRepo, ir repository.IdentityRepo, jr repository.JobRepo, ar repository.ApplicationRepo) *AdminHandler {
	return &AdminHandler{stats: sr, identities: ir, jobs: jr, apps: ar}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.stats.GetStats(r.Context())
	if err != nil {
		logger.Error("stats query failed", "err", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s)
}

func (h *AdminHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	h.listIdentities(w, r, models.RoleWorker)
}

func (h *AdminHandler) ListContractors(w http.ResponseWriter, r *http.Request) {
	h.listIdentities(w, r, models.RoleContractor)
}

func (h *AdminHandler) listIdentities(w http.ResponseWriter, r *http.Request, role models.Role) {
	limit, offset := pagination(r)
	rows, err := h.identities.ListIdentities(r.Context(), role, limit, offset)
	if err != nil {
		logger.Error("list identities failed", "err", err)
		http.Error(w, "failed to load identities", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"items": rows, "limit": limit, "offset": offset})
}

func (h *AdminHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	status := models.JobStatus(r.URL.Query().Get("status"))
	rows, err := h.jobs.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		logger.Error("list jobs failed", "err", err)
		http.Error(w, "failed to load jobs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"items": rows, "limit": limit, "offset": offset})
}

func (h *AdminHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	status := models.ApplicationStatus(r.URL.Query().Get("status"))
	rows, err := h.apps.ListApplications(r.Context(), status, limit, offset)
	if err != nil {
		logger.Error("list applications failed", "err", err)
		http.Error(w, "failed to load applications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"items": rows, "limit": limit, "offset": offset})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response failed", "err", err)
	}
}
