package httpapi

import (
	"net/http"
	"time"
)

func (h *handlers) processorStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Processor.StatusSnapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"isRunning":  snap.Running,
		"version":    snap.Version,
		"currentJobs": snap.ActiveJobIDs,
		"config": map[string]interface{}{
			"pollInterval": snap.PollInterval.Milliseconds(),
			"concurrency":  snap.Concurrency,
			"maxRetries":   snap.MaxRetries,
		},
	})
}

func (h *handlers) processorStart(w http.ResponseWriter, r *http.Request) {
	h.deps.Processor.Start(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *handlers) processorStop(w http.ResponseWriter, r *http.Request) {
	h.deps.Processor.Stop(5 * time.Second)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
