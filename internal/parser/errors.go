package parser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindStatus      Kind = "status"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindParse       Kind = "parse"
)

// FetchError is returned for every failed upstream request.
type FetchError struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the request may succeed when repeated.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindRateLimited:
		return true
	case KindStatus:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// transportError wraps an error returned by the HTTP client.
func transportError(op string, err error) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Op: op, Kind: KindTimeout, Err: err}
	}

	return &FetchError{Op: op, Kind: KindConnection, Err: err}
}

// statusError wraps a non-200 response.
func statusError(op string, res *http.Response) *FetchError {
	kind := KindStatus
	switch res.StatusCode {
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	}

	return &FetchError{Op: op, Kind: kind, StatusCode: res.StatusCode, Err: errors.New(res.Status)}
}
