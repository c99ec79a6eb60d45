package tinode

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidReply means the server payload had an unexpected shape.
	ErrInvalidReply = errors.New("invalid reply")
	// ErrInvalidState means the operation is forbidden in the current state,
	// e.g. subscribing to a topic which is already attached.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotConnected means there is no live connection to the server.
	ErrNotConnected = errors.New("not connected")
	// ErrNotAuthenticated means the session has not been authenticated.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotSubscribed means the operation requires an active subscription.
	ErrNotSubscribed = errors.New("not subscribed")
	// ErrNotSynchronized means the topic has no server-confirmed identity yet.
	ErrNotSynchronized = errors.New("not synchronized")
	// ErrExpired means the request was dropped by the expiration sweep.
	ErrExpired = errors.New("timeout")
)

// ServerResponseError is the server's status line propagated verbatim.
type ServerResponseError struct {
	Code int
	Text string
	What string
}

func (e *ServerResponseError) Error() string {
	return "server: " + e.Text + " (" + strconv.Itoa(e.Code) + ")"
}

// IsServerError checks if the error is a server response with the given code.
func IsServerError(err error, code int) bool {
	var sre *ServerResponseError
	return errors.As(err, &sre) && sre.Code == code
}
