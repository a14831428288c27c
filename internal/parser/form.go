package parser

import (
	"fmt"
	"net/url"
	"unicode/utf8"
)

// Form decodes application/x-www-form-urlencoded bodies.
type Form struct{}

// NewForm creates a URL-encoded form parser.
func NewForm() *Form {
	return &Form{}
}

// Match accepts only application/x-www-form-urlencoded.
func (p *Form) Match(mediaType string) bool {
	return mediaType == "application/x-www-form-urlencoded"
}

// Parse decodes standard form encoding into a key/value mapping. Bodies that
// are not valid UTF-8 are rejected as malformed. Keys with a single value
// decode to a string; repeated keys decode to a string slice.
func (p *Form) Parse(body []byte) (Params, error) {
	if !utf8.Valid(body) {
		return nil, &ParseError{Cause: fmt.Errorf("form body is not valid utf-8")}
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, &ParseError{Cause: fmt.Errorf("invalid form encoding: %w", err)}
	}

	params := make(Params, len(values))
	for key, vs := range values {
		if len(vs) == 1 {
			params[key] = vs[0]
			continue
		}
		params[key] = vs
	}
	return params, nil
}
