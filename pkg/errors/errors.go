package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	// ErrProtocolMismatch is returned when a peer sends a message of a kind
	// other than the one the receiver is waiting for.
	ErrProtocolMismatch = errors.New("protocol mismatch")
	// ErrTransport wraps failures of the underlying send or receive.
	ErrTransport = errors.New("transport failure")
	// ErrPeerTimeout is returned when a bounded wait for a peer expires.
	ErrPeerTimeout = errors.New("peer timed out")
	// ErrRegistrationTimeout is returned when fewer than the configured
	// number of peers registered before the caller's deadline.
	ErrRegistrationTimeout = errors.New("registration timed out")
	// ErrFinished is returned when the remote side sent Finish.
	ErrFinished = errors.New("session finished by remote")

	ErrInvalidStateTransition = errors.New("invalid state transition")
)
