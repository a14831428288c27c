package verify

import (
	"context"
	"errors"
	"time"

	"github.com/dacut/awssig"
	"github.com/palantir/stacktrace"
	"github.com/rs/zerolog"
)

// Default scope and skew used when the EngineConfig leaves them unset.
const (
	DefaultRegion  = "us-east-1"
	DefaultService = "s3"
	DefaultMaxSkew = 15 * time.Minute
)

// ErrNoProvider is returned by NewEngine when no credential provider is
// configured. Absence of a provider is a startup error, not a per-request
// warning.
var ErrNoProvider = errors.New("verify: credential provider is required")

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Provider resolves access key IDs to credentials. Required.
	Provider Provider

	// Region is the region requests are expected to be signed for.
	Region string

	// Service is the service name requests are expected to be signed for.
	Service string

	// MaxSkew bounds the difference between the request timestamp and
	// server time. Zero means DefaultMaxSkew.
	MaxSkew time.Duration

	// Logger is used for debug logging of verification failures.
	Logger zerolog.Logger
}

// Engine is the default Verifier. It assembles the external library's
// request record, supplies credentials through the library's secret-key
// callback (enforcing the provider's region/service scope there), and maps
// the library's outcome to the Verifier contract.
type Engine struct {
	provider Provider
	region   string
	service  string
	maxSkew  time.Duration
	logger   zerolog.Logger
}

// NewEngine creates a verification engine. A nil provider is a hard
// configuration error.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = DefaultMaxSkew
	}

	return &Engine{
		provider: cfg.Provider,
		region:   cfg.Region,
		service:  cfg.Service,
		maxSkew:  cfg.MaxSkew,
		logger:   cfg.Logger.With().Str("component", "verify").Logger(),
	}, nil
}

// Verify checks the request signature against the configured scope.
// Verification is attempted exactly once; there are no retries.
func (e *Engine) Verify(ctx context.Context, req Request) (*Context, error) {
	sr := awssig.Request{
		RequestMethod: req.Method,
		URIPath:       req.Path,
		QueryString:   req.Query.Encode(),
		Headers:       req.HeaderMap(),
		Body:          string(req.Body),
		Region:        e.region,
		Service:       e.service,
	}

	var accessKey string
	secretFn := func(keyID, sessionToken string) (string, error) {
		cred, err := e.provider.Lookup(ctx, keyID)
		if err != nil {
			return "", err
		}
		if !cred.Permits(e.region, e.service) {
			return "", &Error{
				Kind:   KindScopeNotAllowed,
				Detail: "access key " + keyID + " is not permitted for " + e.region + "/" + e.service,
			}
		}
		accessKey = keyID
		return cred.Secret, nil
	}

	if err := sr.Verify(secretFn, e.maxSkew); err != nil {
		e.logger.Debug().Err(err).Str("path", req.Path).Msg("signature verification failed")
		return nil, e.mapFailure(err)
	}

	scope, err := sr.GetCredentialScope()
	if err != nil {
		// Verification succeeded, so the scope must have been parseable.
		return nil, e.mapFailure(err)
	}

	return &Context{
		AccessKey:  accessKey,
		Scope:      scope,
		VerifiedAt: time.Now().UTC(),
	}, nil
}

// mapFailure converts an external library error into the Verifier contract:
// structured failures keep their kind/detail, provider sentinel errors
// become structured failures, everything else is a message failure.
func (e *Engine) mapFailure(err error) error {
	root := stacktrace.RootCause(err)

	var verr *Error
	if errors.As(root, &verr) {
		return verr
	}

	switch {
	case errors.Is(root, ErrCredentialNotFound),
		errors.Is(root, ErrCredentialDisabled),
		errors.Is(root, ErrCredentialExpired):
		return &Error{Kind: KindInvalidAccessKeyID, Detail: root.Error()}
	}

	return errors.New(root.Error())
}
