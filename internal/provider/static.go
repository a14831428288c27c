// Package provider ships credential providers for the verification engine:
// a static in-memory map, sqlite- and postgres-backed stores with encrypted
// secrets, and a redis read-through cache decorator. The gate itself never
// touches any of these; it only sees the verify.Provider interface.
package provider

import (
	"context"
	"fmt"

	"github.com/prn-tf/sigv4-gate/internal/verify"
)

// Static resolves credentials from an in-memory map, typically loaded from
// configuration. Lookups never mutate the map, so it is safe for concurrent
// use after construction.
type Static struct {
	creds map[string]verify.Credential
}

// NewStatic creates a static provider from an access-key-ID keyed map.
func NewStatic(creds map[string]verify.Credential) *Static {
	copied := make(map[string]verify.Credential, len(creds))
	for id, c := range creds {
		copied[id] = c
	}
	return &Static{creds: copied}
}

// Lookup returns the credential for the given access key ID.
func (s *Static) Lookup(_ context.Context, accessKeyID string) (*verify.Credential, error) {
	cred, ok := s.creds[accessKeyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", verify.ErrCredentialNotFound, accessKeyID)
	}
	return &cred, nil
}
