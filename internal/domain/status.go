// Package domain defines the core model types of the shop client: the
// session snapshot, cart and product state, push events, and the result
// taxonomy shared between the API client and the services that consume it.
package domain

// Status classifies the outcome of a shop-server call. It is the single
// taxonomy used across the client; the transport layer maps HTTP results
// onto it and services branch on it without ever inspecting raw codes.
type Status string

const (
	// StatusSuccess means the operation completed and the payload is usable.
	StatusSuccess Status = "success"

	// StatusPartial means the operation completed but the payload is
	// incomplete (e.g. some requested products were omitted).
	StatusPartial Status = "partial"

	// StatusUnauthenticated means the server rejected the credentials.
	// Terminal for the current attempt; resolves to a logged-out session.
	StatusUnauthenticated Status = "unauthenticated"

	// StatusUserGone means the account no longer exists server-side.
	StatusUserGone Status = "user-gone"

	// StatusDenied means the caller is authenticated but not allowed.
	StatusDenied Status = "denied"

	// StatusBadRequest means the request payload was rejected as malformed.
	StatusBadRequest Status = "bad-request"

	// StatusNotFound means the addressed resource does not exist.
	StatusNotFound Status = "not-found"

	// StatusConflict means the operation lost a concurrency race server-side.
	StatusConflict Status = "conflict"

	// StatusNetworkError means the request never produced an HTTP response.
	StatusNetworkError Status = "network-error"

	// StatusServerError means the server answered with a 5xx.
	StatusServerError Status = "server-error"

	// StatusParseError means a response (or cached payload) could not be
	// decoded. Never fatal: corrupt local data resolves to logged-out and
	// corrupt push frames are dropped.
	StatusParseError Status = "parse-error"
)

// Terminal reports whether the status ends the current authentication
// attempt without retry (the session resolves to logged-out).
func (s Status) Terminal() bool {
	return s == StatusUnauthenticated || s == StatusUserGone
}

// Degraded reports whether the status should degrade the session to
// local-fallback mode rather than surface a blocking error.
func (s Status) Degraded() bool {
	switch s {
	case StatusNetworkError, StatusServerError, StatusParseError:
		return true
	}
	return false
}
