package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kaamsetu/kaamsetu/api"
)

func newAuthHandler(t *testing.T, password string) *api.AuthHandler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return api.NewAuthHandler("admin", string(hash), testSecret, time.Hour)
}

func postSignin(h *api.AuthHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Signin(rec, req)
	return rec
}

func TestSignin(t *testing.T) {
	h := newAuthHandler(t, "hunter2")

	// malformed JSON
	if rec := postSignin(h, "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rec.Code)
	}

	// missing fields
	if rec := postSignin(h, `{"user":"admin"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rec.Code)
	}

	// unknown user
	if rec := postSignin(h, `{"user":"root","password":"hunter2"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", rec.Code)
	}

	// wrong password
	if rec := postSignin(h, `{"user":"admin","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	// valid credentials return a signed token carrying the subject
	rec := postSignin(h, `{"user":"admin","password":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	token, err := jwt.Parse(body.Token, func(token *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("issued token does not verify: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["sub"] != "admin" {
		t.Fatalf("unexpected claims: %#v", token.Claims)
	}
}
