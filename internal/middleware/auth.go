package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/modelcontextprotocol/go-sdk/auth"

	"storefront-checkout/internal/model"
)

// Customer is the authenticated shopper taken from a storefront login token.
type Customer struct {
	ID    string
	Email string
}

type customerKey struct{}

// CustomerFrom returns the customer stored by RequireCustomer.
func CustomerFrom(ctx context.Context) (Customer, bool) {
	c, ok := ctx.Value(customerKey{}).(Customer)
	return c, ok
}

// wpClaims matches tokens issued by the WordPress JWT auth plugin, which nests
// the user under data.user. Plain tokens with sub or user_id also work.
type wpClaims struct {
	Data struct {
		User struct {
			ID    json.Number `json:"id"`
			Email string      `json:"email"`
		} `json:"user"`
	} `json:"data"`
	UserID json.Number `json:"user_id"`
	Email  string      `json:"email"`
	jwt.RegisteredClaims
}

func (c *wpClaims) customer() (Customer, bool) {
	cust := Customer{Email: c.Data.User.Email}
	switch {
	case c.Data.User.ID != "":
		cust.ID = c.Data.User.ID.String()
	case c.UserID != "":
		cust.ID = c.UserID.String()
	default:
		cust.ID = c.Subject
	}
	if cust.Email == "" {
		cust.Email = c.Email
	}
	return cust, cust.ID != ""
}

// RequireCustomer rejects requests without a valid HS256 bearer token signed
// with secret. An empty secret disables the check. A nil logger discards output.
func RequireCustomer(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(next http.Handler) http.Handler {
		if len(secret) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			customer, _, err := parseCustomer(raw, secret)
			if err != nil {
				logger.Warn("customer token rejected",
					slog.String("error", err.Error()),
					slog.String("request_id", RequestIDFrom(r.Context())),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), customerKey{}, customer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseCustomer verifies raw and returns its customer and expiry. The expiry
// is zero when the token has no exp claim.
func parseCustomer(raw string, secret []byte) (Customer, time.Time, error) {
	var claims wpClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithJSONNumber())
	if err != nil {
		return Customer{}, time.Time{}, err
	}
	if !token.Valid {
		return Customer{}, time.Time{}, fmt.Errorf("token not valid")
	}
	customer, ok := claims.customer()
	if !ok {
		return Customer{}, time.Time{}, fmt.Errorf("token carries no user id")
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return customer, exp, nil
}

// emailKey holds the customer email in auth.TokenInfo.Extra.
const emailKey = "email"

// untimedTokenTTL stands in for the expiry of tokens without an exp claim,
// which the REST routes also accept.
const untimedTokenTTL = time.Hour

// CustomerTokenVerifier checks storefront login tokens for the MCP SDK's
// bearer middleware. The customer travels in the TokenInfo, which the SDK
// hands to tool handlers as CallToolRequest.Extra.TokenInfo.
func CustomerTokenVerifier(secret []byte) auth.TokenVerifier {
	return func(_ context.Context, token string, _ *http.Request) (*auth.TokenInfo, error) {
		customer, exp, err := parseCustomer(token, secret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
		}
		if exp.IsZero() {
			exp = time.Now().Add(untimedTokenTTL)
		}
		return &auth.TokenInfo{
			UserID:     customer.ID,
			Expiration: exp,
			Extra:      map[string]any{emailKey: customer.Email},
		}, nil
	}
}

// CustomerFromToken returns the customer recorded by CustomerTokenVerifier.
func CustomerFromToken(info *auth.TokenInfo) (Customer, bool) {
	if info == nil || info.UserID == "" {
		return Customer{}, false
	}
	email, _ := info.Extra[emailKey].(string)
	return Customer{ID: info.UserID, Email: email}, true
}

// RequireMCPCustomer guards the MCP endpoint with the same tokens as
// RequireCustomer. An empty secret disables the check.
func RequireMCPCustomer(secret []byte) func(http.Handler) http.Handler {
	if len(secret) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return auth.RequireBearerToken(CustomerTokenVerifier(secret), nil)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, reason string) {
	apiErr := model.NewUnauthorizedError(reason)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
	w.WriteHeader(apiErr.StatusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}
