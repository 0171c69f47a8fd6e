package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	IdempotencyHitHeader = "X-Idempotency-Hit"

	processingMarker = "PROCESSING"
	lockTTL          = 10 * time.Second
	resultTTL        = 24 * time.Hour
)

// ErrKeyNotFound is returned by KeyStore.Get for unknown keys.
var ErrKeyNotFound = errors.New("idempotency key not found")

// KeyStore keeps idempotency keys with an expiry.
type KeyStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type redisKeyStore struct {
	client redis.Cmdable
}

func NewRedisKeyStore(client redis.Cmdable) KeyStore {
	return &redisKeyStore{client: client}
}

func (s *redisKeyStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return val, err
}

func (s *redisKeyStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *redisKeyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisKeyStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Idempotency answers a repeated Idempotency-Key with 409 and the
// X-Idempotency-Hit header. Keys whose request failed with a server error are
// forgotten so the caller may retry.
func Idempotency(store KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("idempotency:%s", key)
			ctx := r.Context()

			val, err := store.Get(ctx, idemKey)
			switch {
			case err == nil && val == processingMarker:
				http.Error(w, `{"error": "concurrent request"}`, http.StatusConflict)
				return
			case err == nil:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotencyHitHeader, "true")
				w.WriteHeader(http.StatusConflict)
				fmt.Fprintf(w, `{"error": "request already processed", "original_status": %s}`, strconv.Quote(val))
				return
			case !errors.Is(err, ErrKeyNotFound):
				// Store unavailable: the inbox still deduplicates.
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := store.SetNX(ctx, idemKey, processingMarker, lockTTL)
			if err != nil || !acquired {
				http.Error(w, `{"error": "concurrent request"}`, http.StatusConflict)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			saveCtx := context.WithoutCancel(ctx)
			if rec.status >= http.StatusInternalServerError || rec.status == 0 {
				_ = store.Del(saveCtx, idemKey)
				return
			}
			_ = store.Set(saveCtx, idemKey, strconv.Itoa(rec.status), resultTTL)
		})
	}
}
