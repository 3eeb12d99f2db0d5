// Package httpapi is the HTTP control plane (C7): webhook intake, job
// queries and admin actions, processor status, and template/prompt/
// settings CRUD. It is a thin wrapper over pkg/store, pkg/intake, and
// pkg/processor — grounded on the teacher's chi-based gateway server
// (legacy/gateway/webhook_integration_test.go's gatewayServer.Handler()
// shape) generalized from alert ingestion to image-job ingestion.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/intake"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the JSON error shape spec §5 requires: {error, details?}.
type errorBody struct {
	Error   string              `json:"error"`
	Code    string              `json:"code,omitempty"`
	Details []intake.FieldError `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code errx.Code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: string(code)})
}

// writeIntakeError maps an *intake.Error onto its declared HTTP status.
func writeIntakeError(w http.ResponseWriter, err *intake.Error) {
	writeJSON(w, err.HTTPStatus, errorBody{Error: err.Message, Details: err.Fields})
}
