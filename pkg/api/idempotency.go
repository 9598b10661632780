package api

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// CachedResponse is a previously-seen response kept for idempotent replay.
type CachedResponse struct {
	StatusCode int
	Body       []byte
	CachedAt   time.Time
}

// IdempotencyStore is the backend behind the Idempotency middleware.
type IdempotencyStore interface {
	Check(ctx context.Context, key string) (*CachedResponse, bool)
	Set(ctx context.Context, key string, statusCode int, body []byte)
}

// MemoryIdempotencyStore keeps cached responses in process memory. Good
// for a single replica; multi-replica deployments want the Postgres store.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]*CachedResponse
	ttl     time.Duration
}

// NewMemoryIdempotencyStore creates an in-memory store with the given TTL.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	s := &MemoryIdempotencyStore{
		entries: make(map[string]*CachedResponse),
		ttl:     ttl,
	}
	go s.cleanup()
	return s
}

func (s *MemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for k, v := range s.entries {
			if now.Sub(v.CachedAt) > s.ttl {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}

func (s *MemoryIdempotencyStore) Check(_ context.Context, key string) (*CachedResponse, bool) {
	s.mu.RLock()
	cached, exists := s.entries[key]
	s.mu.RUnlock()

	if exists && time.Since(cached.CachedAt) < s.ttl {
		return cached, true
	}
	return nil, false
}

func (s *MemoryIdempotencyStore) Set(_ context.Context, key string, statusCode int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &CachedResponse{
		StatusCode: statusCode,
		Body:       body,
		CachedAt:   time.Now(),
	}
}

// PostgresIdempotencyStore makes idempotent replay survive restarts and
// work across replicas.
type PostgresIdempotencyStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewPostgresIdempotencyStore creates a Postgres-backed store.
func NewPostgresIdempotencyStore(db *sql.DB, ttl time.Duration, logger *slog.Logger) *PostgresIdempotencyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresIdempotencyStore{db: db, ttl: ttl, logger: logger.With("component", "idempotency")}
}

// Init creates the backing table.
func (s *PostgresIdempotencyStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INT NOT NULL,
			body BYTEA NOT NULL,
			cached_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (s *PostgresIdempotencyStore) Check(ctx context.Context, key string) (*CachedResponse, bool) {
	var (
		statusCode int
		body       []byte
		cachedAt   time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status_code, body, cached_at FROM idempotency_keys WHERE key = $1`,
		key,
	).Scan(&statusCode, &body, &cachedAt)
	if err != nil {
		return nil, false
	}

	if time.Since(cachedAt) > s.ttl {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
		return nil, false
	}

	return &CachedResponse{StatusCode: statusCode, Body: body, CachedAt: cachedAt}, true
}

func (s *PostgresIdempotencyStore) Set(ctx context.Context, key string, statusCode int, body []byte) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, status_code, body, cached_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (key) DO UPDATE SET status_code = $2, body = $3, cached_at = NOW()`,
		key, statusCode, body,
	)
	if err != nil {
		// Replay protection is best effort; the request already succeeded.
		s.logger.ErrorContext(ctx, "idempotency key store failed", "error", err)
	}
}

// Cleanup removes entries older than the TTL.
func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context) {
	_, _ = s.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE cached_at < $1`,
		time.Now().Add(-s.ttl),
	)
}

// responseCapture wraps http.ResponseWriter to retain the response.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.statusCode = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the cached response for mutating requests that
// repeat an Idempotency-Key. Keys are scoped to the request path, so a key
// reused in another workspace or on another endpoint is a distinct key.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			key = r.URL.Path + ":" + key

			if cached, ok := store.Check(r.Context(), key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			// Only successes are worth replaying; errors should re-run.
			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Set(r.Context(), key, capture.statusCode, capture.body.Bytes())
			}
		})
	}
}
