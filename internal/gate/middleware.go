// Package gate provides the HTTP middleware that gates request processing on
// AWS Signature V4 validity. It is an adapter: the exact body bytes and
// request shape are handed to an injected verifier, and the three possible
// outcomes (success, structured failure, message failure) are mapped to
// either a continued, annotated request or a terminated 401 response. No
// verification-time failure propagates past this boundary.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sigv4-gate/internal/metrics"
	"github.com/prn-tf/sigv4-gate/internal/rawbody"
	"github.com/prn-tf/sigv4-gate/internal/verify"
)

// ErrNoVerifier is returned by New when no verifier is configured.
var ErrNoVerifier = errors.New("gate: verifier is required")

type ctxKey struct{}

// FromContext returns the verification context attached after a successful
// verification.
func FromContext(ctx context.Context) (*verify.Context, bool) {
	vc, ok := ctx.Value(ctxKey{}).(*verify.Context)
	return vc, ok
}

// Config configures a Gate.
type Config struct {
	// Verifier performs the actual signature verification. Required.
	Verifier verify.Verifier

	// MaxBodyBytes caps body reads performed by the gate itself (when no
	// upstream parser cached the body already). Zero means unlimited.
	MaxBodyBytes int64

	// ReadTimeout bounds body reads performed by the gate itself.
	ReadTimeout time.Duration

	// Logger is used for debug logging of denied requests.
	Logger zerolog.Logger

	// Metrics records verification outcomes. Optional.
	Metrics *metrics.Metrics
}

// Gate is the verification adapter middleware.
type Gate struct {
	verifier verify.Verifier
	read     rawbody.ReadConfig
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// New creates a Gate. A nil verifier is a hard configuration error so that
// a misconfigured deployment fails at startup rather than at request time.
func New(cfg Config) (*Gate, error) {
	if cfg.Verifier == nil {
		return nil, ErrNoVerifier
	}
	return &Gate{
		verifier: cfg.Verifier,
		read:     rawbody.ReadConfig{MaxBytes: cfg.MaxBodyBytes, ReadTimeout: cfg.ReadTimeout},
		logger:   cfg.Logger.With().Str("component", "gate").Logger(),
		metrics:  cfg.Metrics,
	}, nil
}

// Middleware verifies each request exactly once. On success the request
// continues with the verification context annotation; on any failure the
// response is a 401 and processing halts.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var bodyLen int

		defer func() {
			if rec := recover(); rec != nil {
				g.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).
					Msg("verification panicked")
				g.metrics.Observe(metrics.OutcomeInternalError, bodyLen)
				writeDenied(w, fmt.Sprintf("Authorization Failed: %v", rec))
			}
		}()

		body, r, err := rawbody.Resolve(w, r, g.read)
		if err != nil {
			// Failures inside the adapter never yield anything but a 401.
			g.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("body read failed")
			g.metrics.Observe(metrics.OutcomeInternalError, 0)
			writeDenied(w, fmt.Sprintf("Authorization Failed: %v", err))
			return
		}
		bodyLen = len(body)

		vc, err := g.verifier.Verify(r.Context(), verify.Request{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: headerList(r),
			Query:   r.URL.Query(),
			Body:    body,
		})
		if err != nil {
			outcome := metrics.OutcomeMessageFailure
			var verr *verify.Error
			if errors.As(err, &verr) {
				outcome = metrics.OutcomeStructuredFailure
			}
			g.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request denied")
			g.metrics.Observe(outcome, bodyLen)
			writeDenied(w, err.Error())
			return
		}

		g.metrics.Observe(metrics.OutcomeAllowed, bodyLen)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, vc))
		next.ServeHTTP(w, r)
	})
}

// headerList flattens the request headers into an ordered name/value list.
// Names are sorted (Go does not preserve wire order across names) and value
// order within a name is preserved. Host lives outside r.Header in Go, so it
// is reattached here.
func headerList(r *http.Request) []verify.Header {
	names := make([]string, 0, len(r.Header)+1)
	for name := range r.Header {
		names = append(names, name)
	}
	if r.Header.Get("Host") == "" && r.Host != "" {
		names = append(names, "Host")
	}
	sort.Strings(names)

	headers := make([]verify.Header, 0, len(names))
	for _, name := range names {
		if name == "Host" && len(r.Header.Values("Host")) == 0 {
			headers = append(headers, verify.Header{Name: "Host", Value: r.Host})
			continue
		}
		for _, v := range r.Header.Values(name) {
			headers = append(headers, verify.Header{Name: name, Value: v})
		}
	}
	return headers
}

// writeDenied terminates the request with a 401 and the exact failure text.
func writeDenied(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(body))
}
