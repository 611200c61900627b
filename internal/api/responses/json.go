// Package responses writes JSON bodies and typed errors for the HTTP API.
package responses

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
)

// MimeTypeJSON is the content type of every API body
const MimeTypeJSON = "application/json"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID stores the request id in ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WriteJSON encodes v with the given status. A value that cannot be
// encoded is answered with a 500 instead of an empty body.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(&errors.ErrorResponse{
			Error: errors.NewInternalError("response encoding failed"),
		})
	}
	w.Header().Set("Content-Type", MimeTypeJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// WriteError maps err to its HTTP status and writes an ErrorResponse.
// Untyped errors are reported as internal errors without their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *logrus.Logger) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.NewInternalError("internal server error")
	}
	status := errors.HTTPStatusOf(appErr)

	if logger != nil {
		entry := logger.WithFields(logrus.Fields{
			"request_id": RequestID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"error":      err.Error(),
		})
		if status >= http.StatusInternalServerError {
			entry.Error("Request failed")
		} else {
			entry.Debug("Request rejected")
		}
	}

	WriteJSON(w, status, &errors.ErrorResponse{
		Error:     appErr,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}
