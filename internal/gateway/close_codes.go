package gateway

import "errors"

// WebSocket close codes the adapter sends (spec §4.8b, §6's wire table). 1000 and 1009 are RFC 6455 codes; 1013 is
// the IANA-registered "try again later" extension; 4401 is an application code in RFC 6455's private-use range.
const (
	CloseNormal       = 1000
	CloseFrameTooBig  = 1009
	CloseOverloaded   = 1013
	CloseUnauthorized = 4401
)

var (
	// ErrUnauthorized is returned when the auth frame's bearer token fails authentication.
	ErrUnauthorized = errors.New("gateway: unauthorized")
	// ErrFrameTooBig is returned when an inbound frame exceeds the configured max_frame_size.
	ErrFrameTooBig = errors.New("gateway: frame exceeds max_frame_size")
	// ErrOverloaded is returned when a new connection would exceed max_connections.
	ErrOverloaded = errors.New("gateway: max_connections reached")
	// ErrAuthTimeout is returned when a connection fails to send an auth frame within the configured deadline.
	ErrAuthTimeout = errors.New("gateway: auth frame not received in time")
)
