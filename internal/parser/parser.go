// Package parser provides raw-body-preserving request body parsers. Each
// parser caches the exact body bytes (for later signature verification)
// before decoding them into structured parameters.
package parser

import (
	"context"
	"errors"
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sigv4-gate/internal/rawbody"
)

// Params holds decoded request body parameters.
type Params map[string]any

type paramsKey struct{}

// ParamsFromContext returns the decoded body parameters attached by the
// parser chain, if any.
func ParamsFromContext(ctx context.Context) (Params, bool) {
	p, ok := ctx.Value(paramsKey{}).(Params)
	return p, ok
}

// Parser decodes one family of content types. A parser that does not match
// the request's media type must not consume the body.
type Parser interface {
	// Match reports whether the parser handles the given media type
	// (lower-cased "major/minor").
	Match(mediaType string) bool

	// Parse decodes the cached raw body bytes into parameters.
	Parse(body []byte) (Params, error)
}

// Config configures the parser chain middleware.
type Config struct {
	// Read bounds the transport body read.
	Read rawbody.ReadConfig

	// Logger is used for debug logging of parse failures.
	Logger zerolog.Logger
}

// Middleware runs the first matching parser against the request body. The
// parser caches the raw bytes as the raw-body annotation, then attaches the
// decoded parameters. Requests whose content type no parser handles pass
// through with the body unconsumed.
//
// Parser-time failures map to the framework's generic statuses: 413 for
// body-too-large, 408 for read timeout, 400 for malformed or undecodable
// bodies. Verification-time failures are the gate's concern, not ours.
func Middleware(cfg Config, parsers ...Parser) func(http.Handler) http.Handler {
	logger := cfg.Logger.With().Str("component", "parser").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mediaType := requestMediaType(r)
			if mediaType == "" {
				next.ServeHTTP(w, r)
				return
			}

			var matched Parser
			for _, p := range parsers {
				if p.Match(mediaType) {
					matched = p
					break
				}
			}
			if matched == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, r, err := rawbody.Resolve(w, r, cfg.Read)
			if err != nil {
				logger.Debug().Err(err).Str("media_type", mediaType).Msg("body read failed")
				writeReadError(w, err)
				return
			}

			params, err := matched.Parse(body)
			if err != nil {
				logger.Debug().Err(err).Str("media_type", mediaType).Msg("body decode failed")
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			r = r.WithContext(context.WithValue(r.Context(), paramsKey{}, params))
			next.ServeHTTP(w, r)
		})
	}
}

func requestMediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mediaType
}

func writeReadError(w http.ResponseWriter, err error) {
	var tooLarge *rawbody.TooLargeError
	switch {
	case errors.As(err, &tooLarge):
		http.Error(w, tooLarge.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, rawbody.ErrReadTimeout):
		http.Error(w, err.Error(), http.StatusRequestTimeout)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
