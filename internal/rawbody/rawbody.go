// Package rawbody caches the exact request body bytes so signature
// verification can hash what the client actually sent. The cache is a
// request-scoped annotation: written at most once (by whichever parser or
// the gate reads the body first), immutable afterwards, absent until the
// first read.
package rawbody

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Body read errors.
var (
	// ErrReadTimeout indicates the body read hit its deadline. Fatal to the
	// request.
	ErrReadTimeout = errors.New("request body read timed out")

	// ErrMalformedBody indicates the transport read failed for a reason
	// other than size or deadline. Fatal to the request.
	ErrMalformedBody = errors.New("malformed request body")
)

// TooLargeError indicates the body exceeded the configured limit. It carries
// the partially-read state.
type TooLargeError struct {
	// Limit is the configured maximum body size in bytes.
	Limit int64

	// Partial is what was read before the limit was hit.
	Partial []byte
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("request body exceeds %d bytes", e.Limit)
}

type bodyKey struct{}

// FromContext returns the cached raw body bytes, if any. Absence means the
// body has not been read yet.
func FromContext(ctx context.Context) ([]byte, bool) {
	b, ok := ctx.Value(bodyKey{}).([]byte)
	return b, ok
}

// WithBody returns a request annotated with the raw body bytes. If the
// annotation is already present it is never overwritten and the request is
// returned unchanged.
func WithBody(r *http.Request, body []byte) *http.Request {
	if _, ok := FromContext(r.Context()); ok {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), bodyKey{}, body))
}

// ReadConfig bounds a transport body read.
type ReadConfig struct {
	// MaxBytes caps the body size. Zero or negative means unlimited.
	MaxBytes int64

	// ReadTimeout bounds the read. Zero means no explicit deadline; the
	// hosting server's timeout policy still applies.
	ReadTimeout time.Duration
}

// Resolve returns the request's raw body bytes, reading the transport stream
// only if no cached annotation exists. On a first read it caches the bytes,
// restores r.Body so later stages observe identical bytes, and returns the
// annotated request. The returned request must replace the original for the
// annotation to be visible downstream.
func Resolve(w http.ResponseWriter, r *http.Request, cfg ReadConfig) ([]byte, *http.Request, error) {
	if b, ok := FromContext(r.Context()); ok {
		return b, r, nil
	}

	if cfg.ReadTimeout > 0 && w != nil {
		// Best effort; not all ResponseWriters support read deadlines.
		_ = http.NewResponseController(w).SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}

	src := io.Reader(r.Body)
	if cfg.MaxBytes > 0 {
		src = io.LimitReader(r.Body, cfg.MaxBytes+1)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, r, classifyReadError(err)
	}
	if cfg.MaxBytes > 0 && int64(len(data)) > cfg.MaxBytes {
		return nil, r, &TooLargeError{Limit: cfg.MaxBytes, Partial: data[:cfg.MaxBytes]}
	}

	r.Body = io.NopCloser(bytes.NewReader(data))
	r = WithBody(r, data)
	return data, r, nil
}

func classifyReadError(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrReadTimeout, err)
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &TooLargeError{Limit: maxErr.Limit}
	}
	return fmt.Errorf("%w: %v", ErrMalformedBody, err)
}
