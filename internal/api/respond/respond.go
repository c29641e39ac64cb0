package respond

import (
	"encoding/json"
	"net/http"

	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// ErrorBody is the error envelope returned by every endpoint
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error classifies err and writes the error envelope. Server-side failures are logged with
// their full chain; the response only carries the generic message.
func Error(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	kind := errors.Kind(err)
	message := kind.Message

	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		message = verr.Field + ": " + verr.Message
	}

	if kind.ClientSide {
		log.Debugw("Request rejected", "path", r.URL.Path, "code", kind.Code, "error", err)
	} else {
		log.Errorw("Request failed", "method", r.Method, "path", r.URL.Path, "code", kind.Code, "error", err)
	}

	JSON(w, kind.Status, ErrorBody{Error: ErrorDetail{Code: kind.Code, Message: message}})
}
