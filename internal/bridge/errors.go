package bridge

import (
	"errors"
	"fmt"
)

// Domain errors for the bridge package.
var (
	// ErrNotAuthenticated is returned when an authenticated operation is
	// attempted without an application key. This is a caller error and is
	// never retried.
	ErrNotAuthenticated = errors.New("bridge: not authenticated")

	// ErrInvalidAddress is returned when a candidate address cannot be
	// turned into a usable URL. The candidate is discarded.
	ErrInvalidAddress = errors.New("bridge: invalid address")

	// ErrLinkButtonNotPressed is returned when the bridge refuses to issue
	// an application key because its physical link button has not been
	// pressed. Expected and transient; callers poll on a fixed interval.
	ErrLinkButtonNotPressed = errors.New("bridge: link button not pressed")

	// ErrBufferFull is returned when the bridge reports its internal command
	// queue is saturated (HTTP 503). Back off and retry later.
	ErrBufferFull = errors.New("bridge: command buffer full")

	// ErrRateLimited is returned when the bridge itself rejects the request
	// for exceeding its limits (HTTP 429). Back off, do not hammer.
	ErrRateLimited = errors.New("bridge: rate limit exceeded")

	// ErrCapacityExceeded is returned when a write is rejected locally
	// because the maximum number of in-flight device writes was reached.
	ErrCapacityExceeded = errors.New("bridge: in-flight write capacity exceeded")

	// ErrDecodeFailure is returned when a response body does not match the
	// expected shape. The raw body is logged for diagnosis.
	ErrDecodeFailure = errors.New("bridge: response decode failed")

	// ErrNotTrusted is returned when the bridge's certificate is rejected
	// by the trust policy.
	ErrNotTrusted = errors.New("bridge: certificate not trusted")

	// ErrNoCredentials is returned when no stored credentials exist for a
	// resume attempt.
	ErrNoCredentials = errors.New("bridge: no stored credentials")
)

// HTTPError is returned for non-2xx responses that carry no more specific
// classification. It is surfaced to the caller and not retried automatically.
type HTTPError struct {
	Status int
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("bridge: unexpected HTTP status %d", e.Status)
}
