package verify

// Failure kinds for structured verification failures. These render in the
// 401 response body as "<kind>: <detail>".
const (
	// KindInvalidAccessKeyID indicates the access key ID could not be
	// resolved to a usable credential.
	KindInvalidAccessKeyID = "invalid_access_key_id"

	// KindScopeNotAllowed indicates the credential is not permitted for the
	// request's region/service scope.
	KindScopeNotAllowed = "credential_scope_not_allowed"

	// KindVerificationFailed indicates the recomputed signature did not
	// match or the request was otherwise rejected by the engine.
	KindVerificationFailed = "verification_failed"
)

// Error is a structured verification failure with a machine-readable kind
// and a human-readable detail.
type Error struct {
	Kind   string
	Detail string
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Detail
}
