// Package handler wires the demo HTTP surface around the gate: health and
// metrics endpoints stay open, everything else passes through the parser
// chain and the verification gate.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sigv4-gate/internal/gate"
	"github.com/prn-tf/sigv4-gate/internal/parser"
	"github.com/prn-tf/sigv4-gate/internal/rawbody"
)

// Config contains everything the router needs.
type Config struct {
	Gate        *gate.Gate
	Parsers     func(http.Handler) http.Handler
	MetricsPath string
	Logger      zerolog.Logger
}

// New builds the router.
func New(cfg Config) http.Handler {
	logger := cfg.Logger.With().Str("component", "router").Logger()

	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/health", handleHealth)
	if cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		if cfg.Parsers != nil {
			r.Use(cfg.Parsers)
		}
		r.Use(cfg.Gate.Middleware)

		r.Get("/v1/whoami", handleWhoami)
		r.Post("/v1/echo", handleEcho)
	})

	logger.Debug().Msg("router initialized")
	return r
}

// requestID tags each request with a UUID for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// handleWhoami reports which credential signed the request.
func handleWhoami(w http.ResponseWriter, r *http.Request) {
	vc, ok := gate.FromContext(r.Context())
	if !ok {
		// The gate always attaches a context before forwarding.
		http.Error(w, "no verification context", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"access_key":  vc.AccessKey,
		"scope":       vc.Scope,
		"verified_at": vc.VerifiedAt,
	})
}

// handleEcho returns the decoded body parameters plus the cached raw body
// size, demonstrating that both annotations survive verification.
func handleEcho(w http.ResponseWriter, r *http.Request) {
	params, _ := parser.ParamsFromContext(r.Context())
	body, _ := rawbody.FromContext(r.Context())

	writeJSON(w, map[string]any{
		"params":     params,
		"body_bytes": len(body),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
