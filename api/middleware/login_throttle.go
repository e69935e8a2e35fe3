package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/api/responses"
	"github.com/angelmondragon/stockroom-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
)

// cap on the body read when extracting the login email
const maxThrottleBody = 16 << 10

type throttleStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type throttleBucket struct {
	kind  string
	value string
	limit int
}

// LoginThrottle caps login attempts per client address and per account email
// within cfg.LoginWindow. Unset limits or a nil store disable the check.
func LoginThrottle(cfg config.AuthRateLimitConfig, store throttleStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || cfg.LoginWindow <= 0 || (cfg.LoginIPLimit <= 0 && cfg.LoginEmailLimit <= 0) {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			buckets := make([]throttleBucket, 0, 2)
			if cfg.LoginIPLimit > 0 {
				if ip := clientIP(r); ip != "" {
					buckets = append(buckets, throttleBucket{kind: "ip", value: ip, limit: cfg.LoginIPLimit})
				}
			}
			if cfg.LoginEmailLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxThrottleBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if email := loginEmail(body); email != "" {
					buckets = append(buckets, throttleBucket{kind: "email", value: digest(email), limit: cfg.LoginEmailLimit})
				}
			}

			for _, b := range buckets {
				allowed, attempts, err := store.FixedWindowAllow(ctx, "login:"+b.kind+":"+b.value, int64(b.limit), cfg.LoginWindow)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "login throttle"))
					return
				}
				if !allowed {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"throttle": b.kind,
							"attempts": attempts,
							"limit":    b.limit,
						}), "login throttled")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(cfg.LoginWindow.Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func loginEmail(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}

// digest keeps raw emails out of redis keys.
func digest(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
