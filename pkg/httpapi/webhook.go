package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/intake"
)

func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, intake.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeIntakeError(w, intake.ErrPayloadTooLarge)
		return
	}

	var p intake.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, "malformed JSON body")
		return
	}

	sig := firstSignatureHeader(r)
	result, err := h.deps.Intaker.Submit(r.Context(), body, sig, p)
	if err != nil {
		if intakeErr, ok := intake.AsIntakeError(err); ok {
			writeIntakeError(w, intakeErr)
			return
		}
		writeError(w, http.StatusInternalServerError, errx.Unknown, err.Error())
		return
	}

	status := http.StatusOK
	if result.Outcome == intake.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"jobId":  result.Job.ID,
		"status": string(result.Outcome),
		"job":    result.Job,
	})
}

func firstSignatureHeader(r *http.Request) string {
	for _, name := range intake.SignatureHeaders {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}
