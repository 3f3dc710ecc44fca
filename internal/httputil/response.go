// Package httputil provides JSON response helpers and bounded body readers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	svcerrors "github.com/dancelink/platform/internal/errors"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/session"
)

// maxJSONBodyBytes bounds decoded request bodies.
const maxJSONBodyBytes = 1 << 20

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes the standard error envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	body := ErrorBody{Code: code, Message: message, Details: details}
	if r != nil {
		body.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, map[string]ErrorBody{"error": body})
}

// WriteError renders err, mapping *errors.ServiceError to its status and
// everything else to a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := svcerrors.GetServiceError(err)
	if se == nil {
		se = svcerrors.Internal("internal error", err)
	}
	WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusBadRequest, string(svcerrors.CodeBadRequest), message, nil)
}

func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteErrorResponse(w, nil, http.StatusUnauthorized, string(svcerrors.CodeUnauthorized), message, nil)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusForbidden, string(svcerrors.CodeForbidden), message, nil)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusNotFound, string(svcerrors.CodeNotFound), message, nil)
}

// DecodeJSON decodes the request body into v. On failure it writes a 400 and
// returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		BadRequest(w, "request body required")
		return false
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		BadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// RequireSession returns the caller's session or writes a 401.
func RequireSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok || strings.TrimSpace(sess.UserID) == "" {
		Unauthorized(w, "")
		return session.Session{}, false
	}
	return sess, true
}

// ErrBodyTooLarge is returned by ReadAllStrict when the limit is exceeded.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// ReadAllWithLimit reads at most limit bytes and reports whether more data
// was available.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads the whole body and fails if it exceeds limit bytes.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return data, nil
}
