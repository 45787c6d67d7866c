package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/repository/postgres"
	"github.com/rs/zerolog/log"
)

const maxIdempotencyBodySize = 1 << 20

// IdempotencyStore persists the first response sent for a key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error)
	Save(ctx context.Context, key string, status int, body string, ttl time.Duration) error
}

// KeyLocker serialises requests carrying the same key.
type KeyLocker interface {
	TryLock(ctx context.Context, key string) (release func(context.Context) error, ok bool, err error)
}

// Idempotency replays the stored response when a request repeats its
// Idempotency-Key. Keys are scoped to the authenticated user, so it must run
// after RequireAuth. A repeat that arrives while the first request is still
// running gets 409. Server errors are not stored and may be retried.
func Idempotency(store IdempotencyStore, locker KeyLocker, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if userID, ok := GetUserID(r.Context()); ok {
				key = userID + ":" + key
			}

			release, ok, err := locker.TryLock(r.Context(), "idempotency:"+key)
			switch {
			case err != nil:
				log.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency lock failed, processing request")
			case !ok:
				writeConflict(w)
				return
			default:
				defer func() {
					if err := release(context.WithoutCancel(r.Context())); err != nil {
						log.Warn().Err(err).Str("idempotency_key", key).Msg("failed to release idempotency lock")
					}
				}()
			}

			entry, err := store.Get(r.Context(), key)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency lookup failed, processing request")
			}
			if err == nil && entry != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(entry.ResponseStatus)
				w.Write([]byte(entry.ResponseBody))
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= 200 && rec.statusCode < 500 && !rec.bodyTruncated {
				if err := store.Save(r.Context(), key, rec.statusCode, rec.body.String(), ttl); err != nil {
					log.Error().Err(err).Str("idempotency_key", key).Msg("failed to store idempotent response")
				}
			}
		})
	}
}

func writeConflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(map[string]string{
		"error": domainErrors.ErrDuplicateIdempotencyKey.Error() + ": request still in progress",
		"code":  "duplicate_request",
	})
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
