package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues admin tokens. There is a single admin principal whose
// credentials come from config; the dashboard consuming this API is external.
type AuthHandler struct {
	adminUser         string
	adminPasswordHash string
	jwtSecret         string
	tokenDuration     time.Duration
}

func NewAuthHandler(adminUser, adminPasswordHash, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{
		adminUser:         adminUser,
		adminPasswordHash: adminPasswordHash,
		jwtSecret:         jwtSecret,
		tokenDuration:     tokenDuration,
	}
}

type signinRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.User == "" || req.Password == "" {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}

	if req.User != h.adminUser || h.adminPasswordHash == "" {
		http.Error(w, "Credentials not found", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(h.adminPasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "Credentials not found", http.StatusUnauthorized)
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.User,
		"exp": time.Now().Add(h.tokenDuration).Unix(),
	})
	tokenStr, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		http.Error(w, "Error signing token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(authResponse{Token: tokenStr})
}
