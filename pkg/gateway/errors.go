package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// ErrConnection matches every *ConnectionError via errors.Is
var ErrConnection = errors.New("redis connection error")

// ErrAuth matches every *AuthError via errors.Is
var ErrAuth = errors.New("redis authentication error")

// ConnectionError is returned when the store cannot be reached.
type ConnectionError struct {
	Addr    string
	Refused bool
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Refused {
		return fmt.Sprintf("cannot connect to %s, connection refused", e.Addr)
	}
	return fmt.Sprintf("cannot connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// AuthError is returned when the store rejects the connection credentials.
// It is never retried.
type AuthError struct {
	// Required is true when the server demanded a password that was not given
	Required bool
	Err      error
}

func (e *AuthError) Error() string {
	if e.Required {
		return "authentication required, provide password"
	}
	return "invalid username-password pair or user is disabled"
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// probeFailure is the outcome class of one failed liveness probe
type probeFailure int

const (
	failureOther probeFailure = iota
	failureRefused
	failureUnreachable
	failureNotReady
	failureAuthRequired
	failureAuthInvalid
)

func (f probeFailure) String() string {
	switch f {
	case failureRefused:
		return "refused"
	case failureUnreachable:
		return "unreachable"
	case failureNotReady:
		return "not_ready"
	case failureAuthRequired:
		return "auth_required"
	case failureAuthInvalid:
		return "auth_invalid"
	default:
		return "other"
	}
}

// retryable reports whether the store may still come up and the probe should
// be repeated
func (f probeFailure) retryable() bool {
	switch f {
	case failureRefused, failureUnreachable, failureNotReady:
		return true
	default:
		return false
	}
}

// classify sorts a probe error into the failure classes the retry loop acts on
func classify(err error) probeFailure {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return failureOther
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		switch {
		case strings.HasPrefix(msg, "LOADING"):
			return failureNotReady
		case strings.HasPrefix(msg, "NOAUTH"):
			return failureAuthRequired
		case strings.HasPrefix(msg, "WRONGPASS"),
			strings.Contains(msg, "invalid password"),
			strings.Contains(msg, "without any password configured"):
			return failureAuthInvalid
		}
		return failureOther
	}

	switch {
	case IsRefused(err):
		return failureRefused
	case isUnreachable(err):
		return failureUnreachable
	case isDropped(err):
		return failureNotReady
	}
	return failureOther
}

// IsRefused reports whether the server actively refused the connection.
func IsRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

// isUnreachable matches dial failures other than a refusal: the network or
// host is unreachable or the name did not resolve.
func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout()
}

// isDropped matches a connection the server accepted and then closed or
// reset, as port forwarders do while the store behind them is still down.
func isDropped(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED)
}
