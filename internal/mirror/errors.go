package mirror

import "errors"

var (
	// ErrMalformedTopic indicates a command arrived on a topic that does
	// not match the lumen/command/{type}/{id} shape.
	ErrMalformedTopic = errors.New("mirror: malformed command topic")

	// ErrEmptyCommand indicates a command arrived with no payload.
	ErrEmptyCommand = errors.New("mirror: empty command payload")
)
