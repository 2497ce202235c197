// Package http exposes the budgeting engine as a JSON API: month
// generation, leftover summaries, payoff synchronization, entity mutations
// and undo.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

// MonthGenerator materializes recurring templates into a month record.
type MonthGenerator interface {
	GenerateMonth(ctx context.Context, month core.YearMonth) (*core.MonthRecord, error)
}

// SummaryReader computes the leftover and its terms for a month.
type SummaryReader interface {
	MonthSummary(ctx context.Context, month core.YearMonth) (services.Summary, error)
}

// PayoffSyncer couples payoff bill payments to payment source balances.
type PayoffSyncer interface {
	ProposeSync(ctx context.Context, month core.YearMonth, instanceID string, amountCents int64) (services.SyncProposal, error)
	ApplySync(ctx context.Context, month core.YearMonth, instanceID string, amountCents int64) (*core.PaymentSource, string, error)
	SkipSync(ctx context.Context, month core.YearMonth, instanceID string) error
}

// EntityMutator applies entity mutations and replays their inverses.
type EntityMutator interface {
	Mutate(ctx context.Context, req services.MutationRequest) (services.EntityResult, error)
	Undo(ctx context.Context) (*core.UndoEntry, error)
}

type Server struct {
	http.Server
	store       storage.Store
	generator   MonthGenerator
	summaries   SummaryReader
	payoff      PayoffSyncer
	mutator     EntityMutator
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, store storage.Store, gen MonthGenerator, sum SummaryReader, po PayoffSyncer, mut EntityMutator) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:       store,
		generator:   gen,
		summaries:   sum,
		payoff:      po,
		mutator:     mut,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /months/{month}/generate", s.withSecurityHeaders(s.handleGenerateMonth))
	mux.HandleFunc("GET /months/{month}", s.withSecurityHeaders(s.handleGetMonth))
	mux.HandleFunc("GET /months/{month}/leftover", s.withSecurityHeaders(s.handleLeftover))
	mux.HandleFunc("GET /months/{month}/summary", s.withSecurityHeaders(s.handleSummary))

	mux.HandleFunc("POST /months/{month}/instances/{id}/payment", s.withSecurityHeaders(s.handleProposePayment))
	mux.HandleFunc("POST /months/{month}/instances/{id}/payment/apply", s.withSecurityHeaders(s.handleApplyPayment))
	mux.HandleFunc("POST /months/{month}/instances/{id}/payment/skip", s.withSecurityHeaders(s.handleSkipPayment))

	mux.HandleFunc("POST /mutations", s.withSecurityHeaders(s.handleMutation))
	mux.HandleFunc("POST /undo", s.withSecurityHeaders(s.handleUndo))

	mux.HandleFunc("GET /templates", s.withSecurityHeaders(s.handleListTemplates))
	mux.HandleFunc("GET /payment-sources", s.withSecurityHeaders(s.handleListSources))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Apply rate limiting to mutating requests
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Capture status code for the completion log
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
