package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const deviceIDKey contextKey = "deviceId"

var ErrInvalidToken = errors.New("invalid device token")

// Claims identifies the kiosk that submits punches.
type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// NewDeviceToken signs a short-lived HS256 token for deviceID.
func NewDeviceToken(secret, deviceID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseDeviceToken validates tok and returns its claims.
func ParseDeviceToken(secret, tok string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.DeviceID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer device token.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}

			claims, err := ParseDeviceToken(secret, strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				log.Ctx(r.Context()).Warn().Err(err).Msg("Rejected device token")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), deviceIDKey, claims.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceIDFromContext returns the device id set by Middleware.
func DeviceIDFromContext(ctx context.Context) string {
	if val, ok := ctx.Value(deviceIDKey).(string); ok {
		return val
	}
	return ""
}
