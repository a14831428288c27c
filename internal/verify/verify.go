// Package verify defines the contract between the HTTP gate and the AWS
// Signature V4 verification engine. The signature algorithm itself is not
// implemented here; the Engine delegates canonicalization, string-to-sign
// construction and HMAC comparison to github.com/dacut/awssig.
package verify

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Header is a single request header name/value pair. Order is preserved and
// duplicate names are permitted.
type Header struct {
	Name  string
	Value string
}

// Request is the ephemeral, request-scoped verification input. It is built
// fresh for each inbound request and discarded after the verifier returns.
type Request struct {
	// Method is the HTTP method (GET, PUT, POST, ...).
	Method string

	// Path is the URI path being accessed, starting with "/".
	Path string

	// Headers is the inbound header list. Value order within a name is
	// preserved; duplicate names are permitted.
	Headers []Header

	// Query holds the request query parameters.
	Query url.Values

	// Body is the exact raw body bytes sent on the wire.
	Body []byte
}

// HeaderMap returns the headers as a lower-cased name to values mapping,
// preserving value order within each name. This is the shape the external
// verification library consumes.
func (r Request) HeaderMap() map[string][]string {
	m := make(map[string][]string, len(r.Headers))
	for _, h := range r.Headers {
		name := strings.ToLower(h.Name)
		m[name] = append(m[name], h.Value)
	}
	return m
}

// Context is the opaque success payload attached to a request after
// verification. Downstream handlers consult it to learn which credential
// signed the request.
type Context struct {
	// AccessKey is the access key ID that signed the request.
	AccessKey string

	// Scope is the credential scope string ({date}/{region}/{service}/aws4_request).
	Scope string

	// VerifiedAt is when verification completed.
	VerifiedAt time.Time
}

// Credential is what a Provider resolves an access key ID to: the signing
// secret plus the region/service scope the key is permitted for.
type Credential struct {
	// Secret is the plaintext secret key.
	Secret string

	// Regions lists the regions the key may sign for. Empty means any.
	Regions []string

	// Services lists the services the key may sign for. Empty means any.
	Services []string
}

// Permits reports whether the credential may be used for the given
// region/service scope.
func (c Credential) Permits(region, service string) bool {
	return contains(c.Regions, region) && contains(c.Services, service)
}

func contains(allowed []string, v string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

// Provider resolves a credential by its public identifier. Implementations
// own their credential source entirely; the gate never stores credentials.
type Provider interface {
	// Lookup returns the credential for the given access key ID, or
	// ErrCredentialNotFound (possibly wrapped) when no usable credential
	// exists.
	Lookup(ctx context.Context, accessKeyID string) (*Credential, error)
}

// Verifier gates a request on AWS Signature V4 validity. Implementations
// return a Context on success, an *Error for structured failures, or any
// other error as a message failure.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Context, error)
}

// Provider resolution errors. Provider implementations return these (possibly
// wrapped) so the engine can map them to structured failures.
var (
	// ErrCredentialNotFound indicates the access key ID is unknown.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialDisabled indicates the access key exists but is not active.
	ErrCredentialDisabled = errors.New("credential disabled")

	// ErrCredentialExpired indicates the access key has passed its expiry.
	ErrCredentialExpired = errors.New("credential expired")
)
