package types

import "errors"

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed event payload")
	ErrInvalidPayload   = errors.New("invalid event payload")
)
