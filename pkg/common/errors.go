package common

import (
	"fmt"
	"net"
	"net/url"

	"github.com/pkg/errors"
)

// ErrorKind classifies relay errors.
type ErrorKind int

const (
	ErrorKindConnect ErrorKind = iota + 1
	ErrorKindSend
	ErrorKindClose
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConnect:
		return "connect"
	case ErrorKindSend:
		return "send"
	case ErrorKindClose:
		return "close"
	default:
		return "unknown"
	}
}

// ProxyError is an error raised by a session operation.
type ProxyError struct {
	Kind      ErrorKind
	SessionID string
	Err       error
}

// NewProxyError wraps err. It returns nil if err is nil.
func NewProxyError(kind ErrorKind, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return &ProxyError{Kind: kind, SessionID: sessionID, Err: err}
}

func (e *ProxyError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("wsrelay: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("wsrelay: %s [session %s]: %v", e.Kind, e.SessionID, e.Err)
}

func (e *ProxyError) Unwrap() error { return e.Err }

// Cause returns the underlying error for github.com/pkg/errors.Cause.
func (e *ProxyError) Cause() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *ProxyError) Is(target error) bool {
	switch target {
	case ErrConnect:
		return e.Kind == ErrorKindConnect
	case ErrSend:
		return e.Kind == ErrorKindSend
	case ErrClose:
		return e.Kind == ErrorKindClose
	}
	return false
}

// IsUnresolvedAddress reports whether err was caused by a target address that
// could not be resolved.
func IsUnresolvedAddress(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var addrErr *net.AddrError
	return errors.As(err, &addrErr)
}

// DescribeError returns the message to log for err. Unresolved addresses are
// reported against target.
func DescribeError(err error, target *url.URL) string {
	if err == nil {
		return ""
	}
	if IsUnresolvedAddress(err) && target != nil {
		return fmt.Sprintf("can not connect to target '%s' due to unresolved address", target.Redacted())
	}
	return err.Error()
}
