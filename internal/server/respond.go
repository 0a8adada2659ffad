package server

import (
	"encoding/json"
	"net/http"

	"github.com/koustreak/tablegate/internal/errs"
	"github.com/koustreak/tablegate/internal/logger"
)

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response: " + err.Error())
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// statusOf maps an error kind onto the HTTP status the client sees.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with {"error": ...} and logs server-side failures with
// the table they concern.
func writeError(w http.ResponseWriter, r *http.Request, table string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]interface{}{
			"table": table,
			"kind":  errs.KindOf(err).String(),
		})
	}
	writeJSON(w, status, errorBody{Error: errs.DetailOf(err)})
}
