package nntp

import (
	"errors"
	"fmt"
)

// authentication was rejected
var ErrAuthRejected = errors.New("authentication rejected")

// the remote server violated the protocol
var ErrProtocol = errors.New("protocol violation")

// connection level error categories
// these are fatal to the connection but not to the task that owned
// the work, the task may resubmit the cmdlist elsewhere
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// hostname resolution failed
	KindResolve
	// connection actively refused
	KindRefused
	// the server rejected our credentials
	KindForbidden
	// the server violated the protocol
	KindProtocol
	// socket i/o error
	KindNetwork
	// tls handshake or record error
	KindTLS
	// a send/recv or connect deadline expired
	KindTimeout
	// the wait was interrupted by shutdown
	KindInterrupted
)

func (k ErrorKind) String() string {
	switch k {
	case KindResolve:
		return "resolve"
	case KindRefused:
		return "refused"
	case KindForbidden:
		return "forbidden"
	case KindProtocol:
		return "protocol"
	case KindNetwork:
		return "network"
	case KindTLS:
		return "tls"
	case KindTimeout:
		return "timeout"
	case KindInterrupted:
		return "interrupted"
	}
	return "none"
}

// a connection level error, coarse category plus the lower level cause
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
