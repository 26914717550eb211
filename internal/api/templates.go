package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"mailer/pkg/models"
)

type TemplatesAPI struct {
	*handler
}

func NewTemplatesAPI(h *handler) *TemplatesAPI {
	return &TemplatesAPI{handler: h}
}

func (api *TemplatesAPI) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/templates", api.ListTemplates).Methods("GET")
	router.HandleFunc("/templates", api.CreateTemplate).Methods("POST")
	router.HandleFunc("/templates", api.UpdateTemplate).Methods("PUT")
	router.HandleFunc("/templates/{name}/{language}", api.DeleteTemplate).Methods("DELETE")
}

type updateTemplateRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	models.TemplatePatch
}

func (api *TemplatesAPI) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := api.deps.Manager.ListTemplates(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	if templates == nil {
		templates = []*models.Template{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "templates": templates})
}

func (api *TemplatesAPI) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.Template
	if err := decodeBody(r, &t, "name", "text", "subject"); err != nil {
		api.fail(w, r, err)
		return
	}

	saved, err := api.deps.Manager.SaveTemplate(r.Context(), &t)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "template": saved})
}

func (api *TemplatesAPI) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req updateTemplateRequest
	if err := decodeBody(r, &req, "name"); err != nil {
		api.fail(w, r, err)
		return
	}

	updated, err := api.deps.Manager.UpdateTemplate(r.Context(), req.Name, req.Language, req.TemplatePatch)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "template": updated})
}

func (api *TemplatesAPI) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := api.deps.Manager.RemoveTemplate(r.Context(), vars["name"], vars["language"]); err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
