// Package brokererr collects the sentinel error taxonomy shared across
// the broker's packages, built on github.com/cockroachdb/errors so every
// wrapped error carries a stack trace from the point it was created.
package brokererr

import "github.com/cockroachdb/errors"

var (
	// ErrAuthFailure means CONNECT credentials did not verify.
	ErrAuthFailure = errors.New("broker: authentication failed")

	// ErrACLDeniedSubscribe means a SUBSCRIBE filter is not permitted for
	// the session's user.
	ErrACLDeniedSubscribe = errors.New("broker: subscribe denied by acl")

	// ErrACLDeniedPublish means a PUBLISH topic is not permitted for the
	// session's user.
	ErrACLDeniedPublish = errors.New("broker: publish denied by acl")

	// ErrStorage wraps a failure from the storage interface.
	ErrStorage = errors.New("broker: storage error")

	// ErrProtocolViolation means the peer sent a structurally valid
	// packet in a context the protocol forbids (e.g. SUBSCRIBE before
	// CONNECT).
	ErrProtocolViolation = errors.New("broker: protocol violation")

	// ErrPeerClosed means the remote end closed the connection.
	ErrPeerClosed = errors.New("broker: peer closed connection")
)
