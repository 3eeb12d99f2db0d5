package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/state"
	"github.com/stewart-y/photopipeline/pkg/store"
)

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := store.ListFilters{
		SKU:   q.Get("sku"),
		Theme: q.Get("theme"),
	}
	if s := q.Get("status"); s != "" {
		filters.Status = []state.Status{state.Status(s)}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Offset = n
		}
	}

	jobs, err := h.deps.Store.List(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, found, err := h.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errx.Unknown, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handlers) presignGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, found, err := h.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errx.Unknown, "job not found")
		return
	}

	key, ok := artifactKey(job, r.URL.Query().Get("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, "type must be one of original|cutout|mask|composite|derivative")
		return
	}
	if key == "" {
		writeError(w, http.StatusNotFound, errx.Unknown, "artifact not yet produced")
		return
	}

	url, err := h.deps.Objects.Presign(key, h.deps.PresignTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.StorageFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url, "key": key})
}

func artifactKey(job state.Job, kind string) (key string, ok bool) {
	switch kind {
	case "original":
		return job.OriginalKey, true
	case "cutout":
		return job.CutoutKey, true
	case "mask":
		return job.MaskKey, true
	case "composite":
		return firstOrEmpty(job.CompositeKeys), true
	case "derivative":
		return firstOrEmpty(job.DerivativeKeys), true
	default:
		return "", false
	}
}

func firstOrEmpty(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

type presignPutRequest struct {
	Kind    string `json:"kind"`
	Variant int    `json:"variant"`
	Aspect  string `json:"aspect"`
	Type    string `json:"type"`
}

// presignPut issues a presigned PUT+GET pair for an artifact the
// caller will upload directly (e.g. an admin re-uploading a
// background variant). The key is computed the same deterministic way
// the executors compute it, so an upload through this endpoint lands
// at the same key a regenerated artifact would.
func (h *handlers) presignPut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, found, err := h.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errx.Unknown, "job not found")
		return
	}

	var req presignPutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, "malformed JSON body")
		return
	}

	key, err := uploadTargetKey(job, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, err.Error())
		return
	}

	putURL, err := h.deps.Objects.Presign(key, h.deps.PresignTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.StorageFailed, err.Error())
		return
	}
	getURL, err := h.deps.Objects.Presign(key, h.deps.PresignTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.StorageFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"put": putURL, "get": getURL, "key": key})
}

func (h *handlers) retryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.deps.Store.Requeue(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadRequest, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type failRequest struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (h *handlers) failJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req failRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, "malformed JSON body")
		return
	}

	code := errx.Code(req.Code)
	updates := state.Updates{ErrorCode: &code, ErrorMessage: &req.Message}
	if req.Stack != "" {
		updates.ErrorStack = &req.Stack
	}

	job, err := h.deps.Store.UpdateStatus(r.Context(), id, state.StatusFailed, updates)
	if err != nil {
		writeError(w, http.StatusBadRequest, errx.InvalidTransition, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handlers) pushShopify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, found, err := h.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errx.Unknown, "job not found")
		return
	}

	if len(job.ShopifyMediaIDs) > 0 {
		// Already pushed; spec requires this stay a no-op rather than
		// re-attaching media.
		writeJSON(w, http.StatusOK, job)
		return
	}
	if job.Status != state.StatusDerivatives {
		writeError(w, http.StatusBadRequest, errx.InvalidTransition, "job must be in DERIVATIVES (and not already pushed) to force a storefront push")
		return
	}

	// The job is already in DERIVATIVES with no media ids yet: it is
	// eligible for LeaseRunnable and the processor will drive the
	// storefront-push executor on its own next tick. Nothing else to
	// force here; report the current snapshot.
	writeJSON(w, http.StatusOK, job)
}
