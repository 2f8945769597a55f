package distclient

import "fmt"

// AuthFailed is the Client-level auth error: it wraps whatever the auth
// package's Authenticator returned (an *auth.AuthFailedError or
// *auth.MissingChallengeField) with the repository/URL context the auth
// package itself has no visibility into.
type AuthFailed struct {
	URL     string
	Message string
	Err     error
}

func (e *AuthFailed) Error() string {
	return fmt.Sprintf("auth failed for %s: %s", e.URL, e.Message)
}

func (e *AuthFailed) Unwrap() error { return e.Err }

// PermissionDenied is returned when the registry answers 401 a second time
// after the single allowed re-auth retry, or when no recoverable challenge
// was present.
type PermissionDenied struct{}

func (e *PermissionDenied) Error() string { return "permission denied" }

// ResourceNotFound is returned for any 404 response.
type ResourceNotFound struct {
	URL string
}

func (e *ResourceNotFound) Error() string { return fmt.Sprintf("resource not found: %s", e.URL) }

// UnsupportedMediaType is returned when a manifest media type is not one of
// the three dialects this module understands.
type UnsupportedMediaType struct {
	MediaType string
}

func (e *UnsupportedMediaType) Error() string {
	return fmt.Sprintf("unsupported media type: %s", e.MediaType)
}

// RequestError is the catch-all for any non-2xx response this module did
// not assign a more specific type.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request error: status %d: %s", e.Status, e.Body)
}

// RequestErrorWithResponse is a RequestError (status and response body)
// plus a short Message describing the failed request; it does not keep the
// *http.Response itself (mirrors
// moby_distribution.registry.exceptions.RequestErrorWithResponse).
type RequestErrorWithResponse struct {
	RequestError
	Message string
}

func (e *RequestErrorWithResponse) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Message, e.Status, e.Body)
}

// InvalidState is returned when an operation's preconditions are violated:
// image.Ref.Save while dirty, or image.Ref.AddLayer given a layer with
// neither a remote digest nor a local path.
type InvalidState struct {
	Reason string
}

func (e *InvalidState) Error() string { return fmt.Sprintf("invalid state: %s", e.Reason) }

// DigestMismatch is returned when a computed digest disagrees with a
// caller-supplied or server-reported value.
type DigestMismatch struct {
	Expected string
	Actual   string
}

func (e *DigestMismatch) Error() string {
	return fmt.Sprintf("digest mismatch: expected %s, got %s", e.Expected, e.Actual)
}
