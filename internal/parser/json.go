package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// JSONKey is the key under which a non-object top-level JSON value is
// wrapped, so decoded parameters are always a mapping.
const JSONKey = "_json"

// ErrNoDecoder is returned by NewJSON when no decoder function is
// configured. The decoder is supplied by the hosting pipeline; its absence
// is a configuration error, raised at construction.
var ErrNoDecoder = errors.New("parser: json decoder function is required")

// DecodeFunc unmarshals JSON bytes into v.
type DecodeFunc func(data []byte, v any) error

// ParseError wraps the underlying decode failure.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return "malformed request body: " + e.Cause.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// JSON decodes application/json bodies.
type JSON struct {
	decode DecodeFunc
}

// NewJSON creates a JSON parser with the given decoder function.
func NewJSON(decode DecodeFunc) (*JSON, error) {
	if decode == nil {
		return nil, ErrNoDecoder
	}
	return &JSON{decode: decode}, nil
}

// Match accepts application/json and its +json suffixed variants.
func (p *JSON) Match(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Parse decodes the body. An empty body decodes to an empty mapping, a
// top-level object to itself, and anything else is wrapped under JSONKey.
func (p *JSON) Parse(body []byte) (Params, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Params{}, nil
	}

	var v any
	if err := p.decode(body, &v); err != nil {
		return nil, &ParseError{Cause: fmt.Errorf("invalid json: %w", err)}
	}

	if m, ok := v.(map[string]any); ok {
		return Params(m), nil
	}
	return Params{JSONKey: v}, nil
}
