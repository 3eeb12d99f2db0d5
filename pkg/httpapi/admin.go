package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/store"
)

// --- Templates ------------------------------------------------------

func (h *handlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := h.deps.Store.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": tpls})
}

type createTemplateRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

func (h *handlers) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, "name and prompt are required")
		return
	}
	tpl, err := h.deps.Store.CreateTemplate(r.Context(), req.Name, req.Prompt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

func (h *handlers) activateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tpl, err := h.deps.Store.SetTemplateStatus(r.Context(), id, store.TemplateActive)
	if err != nil {
		writeError(w, http.StatusBadRequest, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *handlers) archiveTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tpl, err := h.deps.Store.SetTemplateStatus(r.Context(), id, store.TemplateArchived)
	if err != nil {
		writeError(w, http.StatusBadRequest, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// --- Prompts ----------------------------------------------------------

func (h *handlers) listPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.deps.Store.ListPrompts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts})
}

type promptRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (h *handlers) createPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, "name and text are required")
		return
	}
	p, err := h.deps.Store.CreatePrompt(r.Context(), req.Name, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) updatePrompt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, "name and text are required")
		return
	}
	p, err := h.deps.Store.UpdatePrompt(r.Context(), id, req.Name, req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) deletePrompt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	def, found, err := h.deps.Store.DefaultPrompt(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	if found && def.ID == id {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, "cannot delete the default prompt")
		return
	}
	if err := h.deps.Store.DeletePrompt(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Settings --------------------------------------------------------

func (h *handlers) listSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.deps.Store.ListSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingRequest struct {
	Value string `json:"value"`
}

func (h *handlers) setSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req settingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errx.MissingRequiredFields, "malformed JSON body")
		return
	}
	if err := h.deps.Store.SetSetting(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, errx.As(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{key: req.Value})
}
