package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-at-least-32-chars-long")

func TestGenerateAndValidateToken(t *testing.T) {
	a := NewAuthenticator(testSecret)

	token, err := a.GenerateToken("a@b.c", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Email != "a@b.c" {
		t.Errorf("Email = %s", claims.Email)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	a := NewAuthenticator(testSecret)

	expired, _ := a.GenerateToken("a@b.c", -time.Minute)
	foreign, _ := NewAuthenticator([]byte("another-secret-key-at-least-32-chars")).GenerateToken("a@b.c", time.Hour)
	noEmail, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)
	wrongAlg, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Email: "a@b.c"}).SignedString(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", foreign},
		{"no email", noEmail},
		{"wrong algorithm", wrongAlg},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.ValidateToken(tt.token); err == nil {
				t.Error("ValidateToken() error = nil, want rejection")
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	a := NewAuthenticator(testSecret)
	token, _ := a.GenerateToken("a@b.c", time.Hour)

	var gotEmail string
	handler := a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		gotEmail, _ = EmailFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotEmail = ""
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotEmail != "a@b.c" {
				t.Errorf("email in context = %q", gotEmail)
			}
		})
	}
}
