package protocol

import "errors"

var (
	ErrShortHeader         = errors.New("protocol: short header")
	ErrBadEncapsulation    = errors.New("protocol: unknown payload encapsulation")
	ErrPayloadTooLarge     = errors.New("protocol: payload too large")
	ErrTruncatedPayload    = errors.New("protocol: truncated payload")
	ErrMissingPhysicalPort = errors.New("protocol: locator physical port not set")
)
