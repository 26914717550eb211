package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mailer/internal/delivery"
	"mailer/internal/lock"
	"mailer/internal/mailerr"
	"mailer/internal/processor"
	"mailer/pkg/models"
)

type MessagesAPI struct {
	*handler
}

func NewMessagesAPI(h *handler) *MessagesAPI {
	return &MessagesAPI{handler: h}
}

func (api *MessagesAPI) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/email", api.SendEmail).Methods("POST")
	router.HandleFunc("/email-from-template", api.SendEmailFromTemplate).Methods("POST")
	router.HandleFunc("/emails", api.ListEmails).Methods("GET")
	router.HandleFunc("/emails/{id:[0-9]+}", api.GetEmail).Methods("GET")
	router.HandleFunc("/queue/process", api.ProcessQueue).Methods("POST")
}

type templateEmailRequest struct {
	models.Content
	// Immediately defaults to true.
	Immediately *bool `json:"immediately,omitempty"`
}

type listEmailsQuery struct {
	Page    int `schema:"page"`
	PerPage int `schema:"perPage"`
}

func (api *MessagesAPI) SendEmail(w http.ResponseWriter, r *http.Request) {
	var content models.Content
	if err := decodeBody(r, &content, "to", "subject", "text"); err != nil {
		api.fail(w, r, err)
		return
	}

	result, err := api.deps.Manager.SendMail(r.Context(), content)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.deps.Metrics.MessageAccepted("http")
	writeJSON(w, http.StatusOK, sendResponse(result))
}

func (api *MessagesAPI) SendEmailFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateEmailRequest
	if err := decodeBody(r, &req, "to", "template"); err != nil {
		api.fail(w, r, err)
		return
	}
	immediately := req.Immediately == nil || *req.Immediately

	result, err := api.deps.Manager.SendMailFromTemplate(r.Context(), req.Content, immediately)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.deps.Metrics.MessageAccepted("http-template")
	writeJSON(w, http.StatusOK, sendResponse(result))
}

func sendResponse(result *delivery.SendResult) map[string]any {
	response := map[string]any{
		"result": "ok",
		"email":  result.Message,
	}
	switch {
	case result.Queued:
		response["message"] = "Message queued"
	case result.Success:
		response["message"] = "Message sent"
		response["receipt"] = result.Receipt
	default:
		response["result"] = "ok with errors"
		response["message"] = "Message queued, but not sent."
		response["error"] = result.Error
	}
	return response
}

func (api *MessagesAPI) ListEmails(w http.ResponseWriter, r *http.Request) {
	var q listEmailsQuery
	if err := api.decoder.Decode(&q, r.URL.Query()); err != nil {
		api.fail(w, r, mailerr.Wrap(mailerr.KindValidation, err, "invalid query"))
		return
	}

	page, err := api.deps.Manager.ListMessages(r.Context(), q.Page, q.PerPage)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"emails":      page.Messages,
		"perPage":     page.PerPage,
		"currentPage": page.CurrentPage,
		"lastPage":    page.LastPage,
	})
}

func (api *MessagesAPI) GetEmail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		api.fail(w, r, mailerr.Wrap(mailerr.KindValidation, err, "invalid id"))
		return
	}

	msg, err := api.deps.Manager.GetMessage(r.Context(), id)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "email": msg})
}

// ProcessQueue runs the queue once, sharing the lock with the background
// processor.
func (api *MessagesAPI) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	if api.deps.Queue == nil {
		api.fail(w, r, mailerr.New(mailerr.KindConfiguration, "queue processing is not available"))
		return
	}

	result, err := api.deps.Queue.Process(r.Context())
	if errors.Is(err, processor.ErrAlreadyRunning) || errors.Is(err, lock.ErrNotAcquired) {
		api.fail(w, r, mailerr.Wrap(mailerr.KindConflict, err, "queue is already being processed"))
		return
	}
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"successes": result.Successes,
		"failures":  result.Failures,
	})
}
