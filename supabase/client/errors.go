package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// PostgREST and Postgres error codes the callers branch on.
const (
	CodeNoRows          = "PGRST116"
	CodeSchemaCacheMiss = "PGRST205"
	CodeUndefinedTable  = "42P01"
)

// APIError is a non-2xx answer from any Supabase API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
	Hint       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase error %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("supabase error %d: %s", e.StatusCode, msg)
}

// NoRows reports whether a single-row request matched nothing.
func (e *APIError) NoRows() bool {
	return e.Code == CodeNoRows
}

// RelationMissing reports whether the queried table does not exist.
func (e *APIError) RelationMissing() bool {
	switch e.Code {
	case CodeUndefinedTable, CodeSchemaCacheMiss:
		return true
	}
	return strings.Contains(e.Message, "does not exist") && strings.Contains(e.Message, "relation")
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// parseAPIError reads the error envelope of PostgREST ({code,message,details,
// hint}), GoTrue ({error,error_description} or {msg}) and Storage
// ({statusCode,error,message}).
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if !gjson.ValidBytes(body) {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	res := gjson.ParseBytes(body)
	apiErr.Code = res.Get("code").String()
	apiErr.Details = res.Get("details").String()
	apiErr.Hint = res.Get("hint").String()
	for _, key := range []string{"message", "error_description", "msg", "error"} {
		if v := res.Get(key); v.Exists() && v.String() != "" {
			apiErr.Message = v.String()
			break
		}
	}
	return apiErr
}
