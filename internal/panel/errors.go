package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/standardbeagle/comet/internal/control"
	"github.com/standardbeagle/comet/internal/executor"
	"github.com/standardbeagle/comet/internal/logwatch"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps command errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	var dispatch *executor.DispatchError
	var transport *url.Error
	switch {
	case errors.Is(err, control.ErrEmptyScript), errors.Is(err, control.ErrEmptySetting):
		return http.StatusBadRequest
	case errors.Is(err, executor.ErrNotConnected), errors.Is(err, logwatch.ErrAlreadyWatching):
		return http.StatusConflict
	case errors.Is(err, logwatch.ErrNoLogFile), errors.Is(err, control.ErrNoLastScript):
		return http.StatusNotFound
	case errors.Is(err, executor.ErrRangeExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &dispatch), errors.As(err, &transport), errors.Is(err, control.ErrSendFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
