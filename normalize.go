package svcclient

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/RassulYunussov/svcclient/internal/resilient"
)

const (
	codeServiceUnavailable = "SERVICE_UNAVAILABLE"
	codeBadGateway         = "BAD_GATEWAY"
	codeUpstreamError      = "UPSTREAM_ERROR"
)

type upstreamErrorBody struct {
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Errors  json.RawMessage `json:"errors"`
}

// normalize turns the terminal outcome of a logical call into a success or a single *Error.
func normalize(service string, out resilient.Outcome) (*Response, error) {
	if out.Err != nil {
		return nil, &Error{
			Kind:     KindTransportFailure,
			Service:  service,
			Message:  fmt.Sprintf("%s is unavailable", service),
			Code:     codeServiceUnavailable,
			Attempts: out.State.AttemptsMade,
			Cause:    out.Err,
		}
	}
	resp := out.Response
	if resp.StatusCode < http.StatusBadRequest {
		return &Response{StatusCode: resp.StatusCode, Body: resp.Body, Header: resp.Header}, nil
	}
	if body, ok := parseUpstreamError(resp.Body); ok {
		code := body.Code
		if code == "" {
			code = codeUpstreamError
		}
		return nil, &Error{
			Kind:        KindUpstreamApplication,
			Service:     service,
			StatusCode:  resp.StatusCode,
			Message:     body.Message,
			Code:        code,
			FieldErrors: parseFieldErrors(body.Errors),
			Body:        resp.Body,
			Attempts:    out.State.AttemptsMade,
		}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &Error{
			Kind:       KindUpstreamServer,
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("invalid response from %s", service),
			Code:       codeBadGateway,
			Body:       resp.Body,
			Attempts:   out.State.AttemptsMade,
		}
	}
	return nil, &Error{
		Kind:       KindUpstreamClient,
		Service:    service,
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Code:       codeUpstreamError,
		Body:       resp.Body,
		Attempts:   out.State.AttemptsMade,
	}
}

func parseUpstreamError(b []byte) (*upstreamErrorBody, bool) {
	if len(b) == 0 {
		return nil, false
	}
	var body upstreamErrorBody
	if err := json.Unmarshal(b, &body); err != nil || body.Message == "" {
		return nil, false
	}
	return &body, true
}

// field errors are best effort, an unexpected shape is dropped rather than failing the call
func parseFieldErrors(raw json.RawMessage) []FieldError {
	if len(raw) == 0 {
		return nil
	}
	var fe []FieldError
	if err := json.Unmarshal(raw, &fe); err != nil {
		return nil
	}
	return fe
}
