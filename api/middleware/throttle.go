package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// ThrottlePolicy limits attempts per client address and per submitted email
// within one fixed Window. A zero limit turns that bucket off.
type ThrottlePolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int
	PerEmail int
}

// bucket names one counter a request is charged against.
type bucket struct {
	scope string
	limit int
	field string
	value string
}

func (p ThrottlePolicy) buckets(r *http.Request, body []byte) []bucket {
	name := p.Name
	if name == "" {
		name = "auth"
	}
	var out []bucket
	if ip := remoteHost(r); p.PerIP > 0 && ip != "" {
		out = append(out, bucket{scope: name + ":ip:" + ip, limit: p.PerIP, field: "ip", value: ip})
	}
	if email := emailDigest(body); p.PerEmail > 0 && email != "" {
		out = append(out, bucket{scope: name + ":email:" + email, limit: p.PerEmail, field: "email_hash", value: email})
	}
	return out
}

// Throttle rejects requests once any of the policy's buckets is exhausted.
// Client addresses come from RemoteAddr, so mount chi's RealIP first when the
// service sits behind a proxy. Emails only ever reach Redis as a SHA-256 hex.
func Throttle(policy ThrottlePolicy, limiter pkgredis.RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || policy.Window <= 0 || (policy.PerIP <= 0 && policy.PerEmail <= 0) {
			return next
		}
		retryAfter := strconv.Itoa(int(policy.Window.Seconds()))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var body []byte
			if policy.PerEmail > 0 {
				var err error
				if body, err = io.ReadAll(r.Body); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			for _, b := range policy.buckets(r, body) {
				allowed, count, err := limiter.FixedWindowAllow(ctx, b.scope, int64(b.limit), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if allowed {
					continue
				}
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"policy":   policy.Name,
					b.field:    b.value,
					"attempts": count,
					"limit":    b.limit,
				}), "auth.throttled")
				w.Header().Set("Retry-After", retryAfter)
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func emailDigest(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
