package svcclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrBadGateway         = errors.New("bad gateway")
)

// Kind classifies the terminal failure of a logical call.
type Kind int

const (
	// no response was obtained: connect, DNS, TLS, timeout or open circuit
	KindTransportFailure Kind = iota + 1
	// 5xx response without a structured error body
	KindUpstreamServer
	// any response carrying a structured error body with a message
	KindUpstreamApplication
	// 4xx response without a structured error body
	KindUpstreamClient
)

func (k Kind) String() string {
	switch k {
	case KindTransportFailure:
		return "transport_failure"
	case KindUpstreamServer:
		return "upstream_server_error"
	case KindUpstreamApplication:
		return "upstream_application_error"
	case KindUpstreamClient:
		return "upstream_client_error"
	default:
		return "unknown"
	}
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the normalized outcome of every failed call.
// StatusCode is the upstream status and stays 0 for transport failures.
type Error struct {
	Kind        Kind
	Service     string
	StatusCode  int
	Message     string
	Code        string
	FieldErrors []FieldError
	Body        json.RawMessage
	Attempts    int
	Cause       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	b.WriteString(": ")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "http %d: ", e.StatusCode)
	}
	// Message names the service for these kinds, it is already the prefix
	switch e.Kind {
	case KindTransportFailure:
		b.WriteString(ErrServiceUnavailable.Error())
	case KindUpstreamServer:
		b.WriteString(ErrBadGateway.Error())
	default:
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrServiceUnavailable:
		return e.Kind == KindTransportFailure
	case ErrBadGateway:
		return e.Kind == KindUpstreamServer
	}
	return false
}

// HTTPStatus is the status a consuming service should answer its own caller with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindTransportFailure:
		return http.StatusServiceUnavailable
	case KindUpstreamServer:
		return http.StatusBadGateway
	}
	if e.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

func IsBadGateway(err error) bool {
	return errors.Is(err, ErrBadGateway)
}
