package mqtt

import "errors"

// Errors returned by the bus session. Use errors.Is() to check for them.
var (
	// ErrNotConnected is returned when an operation needs a connected session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails. The
	// session retries these.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotAuthorized is returned when the broker rejects the credentials.
	ErrNotAuthorized = errors.New("mqtt: not authorized")

	// ErrSubscribeFailed is returned when the command subscription fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrConnectionLost is returned by Tick after the broker connection drops.
	ErrConnectionLost = errors.New("mqtt: connection lost")
)
