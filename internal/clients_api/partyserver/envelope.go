package partyserver

// Response envelope and error taxonomy of the PartyServer API
// Every endpoint answers with {success, data?, error?, timestamp, requestId?}
// decodeEnvelope turns a raw body into either the data payload or an error

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	// UnknownErrorCode is used when a failed envelope carries no error code
	UnknownErrorCode = "UNKNOWN_ERROR"
	// UnknownErrorMessage is used when a failed envelope carries no message
	UnknownErrorMessage = "An unknown error occurred"
)

var (
	// ErrTransport covers DNS, connection, TLS and read failures, caller cancellation and an open breaker
	ErrTransport = errors.New("partyserver: transport failure")
	// ErrTimeout means the call exceeded the configured timeout
	ErrTimeout = errors.New("partyserver: request timed out")
	// ErrMalformedResponse means the body is not a valid response envelope
	ErrMalformedResponse = errors.New("partyserver: malformed response")
	// ErrCircuitOpen is returned without a network call while the breaker is open, it also matches ErrTransport
	ErrCircuitOpen = fmt.Errorf("%w: circuit breaker open", ErrTransport)
	// ErrInvalidArgument rejects bad configuration or call arguments before any network call
	ErrInvalidArgument = errors.New("partyserver: invalid argument")
)

// Envelope is the fixed wrapper around every response
type Envelope struct {
	Success   *bool           `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp"` // Unix ms, set by the server
	RequestID string          `json:"requestId,omitempty"`
}

// ErrorInfo is the error member of a failed envelope
type ErrorInfo struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// APIError is an application-level failure reported by the server (success=false)
type APIError struct {
	Code    string
	Message string
	Details interface{} // opaque diagnostic payload

	RequestID string // server request id, if any
	Timestamp int64  // server timestamp, Unix ms

	// Response is the transport response, its Body is already consumed and closed
	Response *http.Response
}

func (e *APIError) Error() string {
	if e == nil {
		return "partyserver api error: <nil>"
	}
	if e.Response != nil {
		return fmt.Sprintf("partyserver api error (%d) %s: %s", e.Response.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("partyserver api error %s: %s", e.Code, e.Message)
}

// StatusCode returns the HTTP status of the failed exchange, 0 when unknown
func (e *APIError) StatusCode() int {
	if e == nil || e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// Is matches another *APIError by Code, so errors.Is(err, &APIError{Code: "X"}) works
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok || t == nil || e == nil {
		return false
	}
	return t.Code == e.Code
}

// IsAPIError reports whether err is an application error and returns it
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode reports whether err is an application error with the given code
func HasCode(err error, code string) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.Code == code
}

// wireEnvelope decodes leniently, only a non-object body or a non-boolean success makes a body malformed
type wireEnvelope struct {
	Success   *bool           `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     json.RawMessage `json:"error"`
	Timestamp json.RawMessage `json:"timestamp"`
	RequestID json.RawMessage `json:"requestId"`
}

// decodeEnvelope unwraps body into the data payload
// resp is attached to the returned *APIError, it may be nil
// An object without success (or with success null) is a failed call, its error member still applies
func decodeEnvelope(body []byte, resp *http.Response) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: %s: body is not a JSON object", ErrMalformedResponse, statusText(resp))
	}
	var env wireEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, statusText(resp), err)
	}

	if env.Success != nil && *env.Success {
		if isJSONNull(env.Data) {
			return nil, nil
		}
		return env.Data, nil
	}

	apiErr := &APIError{
		Code:     UnknownErrorCode,
		Message:  UnknownErrorMessage,
		Response: resp,
	}
	_ = json.Unmarshal(env.RequestID, &apiErr.RequestID)
	_ = json.Unmarshal(env.Timestamp, &apiErr.Timestamp)

	if !isJSONNull(env.Error) {
		var info struct {
			Code    interface{} `json:"code"`
			Message interface{} `json:"message"`
			Details interface{} `json:"details"`
		}
		if err := json.Unmarshal(env.Error, &info); err != nil {
			// error member is not an object, keep it for diagnostics
			apiErr.Details = env.Error
			return nil, apiErr
		}
		if code, ok := info.Code.(string); ok && code != "" {
			apiErr.Code = code
		}
		if msg, ok := info.Message.(string); ok && msg != "" {
			apiErr.Message = msg
		}
		apiErr.Details = info.Details
	}
	return nil, apiErr
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func statusText(resp *http.Response) string {
	if resp == nil {
		return "no response"
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
