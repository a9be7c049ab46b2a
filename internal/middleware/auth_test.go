package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/modelcontextprotocol/go-sdk/auth"
)

var testSecret = []byte("wp-jwt-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func protected(t *testing.T, secret []byte) (http.Handler, *Customer) {
	t.Helper()
	var got Customer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RequireCustomer(secret, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CustomerFrom(r.Context())
		if !ok {
			t.Error("customer missing from context")
		}
		got = c
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &got
}

func TestRequireCustomer(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name      string
		header    string
		wantCode  int
		wantID    string
		wantEmail string
	}{
		{
			name: "wordpress token",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"exp":  future,
				"data": map[string]any{"user": map[string]any{"id": "17", "email": "asha@example.com"}},
			}),
			wantCode:  http.StatusNoContent,
			wantID:    "17",
			wantEmail: "asha@example.com",
		},
		{
			name: "numeric user_id",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"user_id": 99,
			}),
			wantCode: http.StatusNoContent,
			wantID:   "99",
		},
		{
			name: "subject only",
			header: "bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"sub": "cust-5",
			}),
			wantCode: http.StatusNoContent,
			wantID:   "cust-5",
		},
		{
			name:     "missing header",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong scheme",
			header:   "Basic dXNlcjpwYXNz",
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "expired",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"exp": past, "sub": "1",
			}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "wrong secret",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{
				"sub": "1",
			}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "other algorithm",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{
				"sub": "1",
			}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "no user id",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"exp": future,
			}),
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, got := protected(t, testSecret)
			req := httptest.NewRequest("POST", "/checkout", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("Status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusNoContent {
				if w.Header().Get("WWW-Authenticate") == "" {
					t.Error("WWW-Authenticate header missing")
				}
				return
			}
			if got.ID != tt.wantID {
				t.Errorf("Customer ID = %q, want %q", got.ID, tt.wantID)
			}
			if got.Email != tt.wantEmail {
				t.Errorf("Customer email = %q, want %q", got.Email, tt.wantEmail)
			}
		})
	}
}

func TestRequireCustomerDisabledWithoutSecret(t *testing.T) {
	called := false
	h := RequireCustomer(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/orders/1", nil))
	if !called {
		t.Error("handler should run when auth is disabled")
	}
}

func TestRequireMCPCustomer(t *testing.T) {
	var got Customer
	var signedIn bool
	h := RequireMCPCustomer(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, signedIn = CustomerFromToken(auth.TokenInfoFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "1"}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "1", "exp": time.Now().Add(-time.Hour).Unix(),
		}), http.StatusUnauthorized},
		{"no exp claim", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "7", "email": "asha@example.com",
		}), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, signedIn = Customer{}, false
			req := httptest.NewRequest("POST", "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("Status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusNoContent {
				return
			}
			if !signedIn || got.ID != "7" || got.Email != "asha@example.com" {
				t.Errorf("customer = %+v (signed in %v)", got, signedIn)
			}
		})
	}
}

func TestRequireMCPCustomerDisabledWithoutSecret(t *testing.T) {
	called := false
	h := RequireMCPCustomer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/mcp", nil))
	if !called {
		t.Error("handler should run when auth is disabled")
	}
	if _, ok := CustomerFromToken(nil); ok {
		t.Error("nil token info should not yield a customer")
	}
}
