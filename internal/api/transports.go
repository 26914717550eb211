package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"mailer/internal/mailerr"
	"mailer/pkg/models"
)

type TransportsAPI struct {
	*handler
}

func NewTransportsAPI(h *handler) *TransportsAPI {
	return &TransportsAPI{handler: h}
}

func (api *TransportsAPI) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/transports", api.ListTransports).Methods("GET")
	router.HandleFunc("/transports", api.CreateTransport).Methods("POST")
	router.HandleFunc("/transports", api.UpdateTransport).Methods("PUT")
	router.HandleFunc("/transports/{id:[0-9]+}", api.GetTransport).Methods("GET")
	router.HandleFunc("/transports/{id:[0-9]+}", api.UpdateTransport).Methods("PUT")
	router.HandleFunc("/transports/{id:[0-9]+}", api.DeleteTransport).Methods("DELETE")
	router.HandleFunc("/transport-stats", api.TransportStats).Methods("GET")
}

// looseBool accepts JSON booleans as well as numbers and strings, reading
// them by truthiness.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = looseBool(t)
	case float64:
		*b = t != 0
	case string:
		*b = t != "" && t != "false" && t != "0"
	default:
		*b = false
	}
	return nil
}

// looseInt accepts JSON numbers and numeric strings.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return mailerr.Validation("'weight' is not a number", nil)
	}
	*n = looseInt(f)
	return nil
}

type createTransportRequest struct {
	Name    string              `json:"name"`
	Type    models.ProviderType `json:"type"`
	Active  *bool               `json:"active"`
	Weight  looseInt            `json:"weight"`
	Default looseBool           `json:"default"`
	Domain  string              `json:"domain"`

	SMTP       *models.SMTPSettings       `json:"smtp"`
	Mailgun    *models.MailgunSettings    `json:"mailgun"`
	SendInBlue *models.SendInBlueSettings `json:"sendinblue"`
}

func (req createTransportRequest) provider() *models.Provider {
	active := req.Active == nil || *req.Active
	return &models.Provider{
		Name:       req.Name,
		Type:       req.Type,
		Active:     active,
		Weight:     int(req.Weight),
		Default:    bool(req.Default),
		Domain:     req.Domain,
		SMTP:       req.SMTP,
		Mailgun:    req.Mailgun,
		SendInBlue: req.SendInBlue,
	}
}

type updateTransportRequest struct {
	ID *int64 `json:"id"`
	models.ProviderPatch
}

type listTransportsQuery struct {
	Active bool `schema:"active"`
}

type statsQuery struct {
	Start *int64 `schema:"start"`
	End   *int64 `schema:"end"`
}

func (api *TransportsAPI) ListTransports(w http.ResponseWriter, r *http.Request) {
	var q listTransportsQuery
	if err := api.decoder.Decode(&q, r.URL.Query()); err != nil {
		api.fail(w, r, mailerr.Wrap(mailerr.KindValidation, err, "invalid query"))
		return
	}

	transports, err := api.deps.Router.List(r.Context(), q.Active)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	if transports == nil {
		transports = []*models.Provider{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "transports": transports})
}

func (api *TransportsAPI) GetTransport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		api.fail(w, r, err)
		return
	}

	p, err := api.deps.Router.Get(r.Context(), id)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "transport": p})
}

func (api *TransportsAPI) CreateTransport(w http.ResponseWriter, r *http.Request) {
	var req createTransportRequest
	if err := decodeBody(r, &req, "name", "type"); err != nil {
		api.fail(w, r, err)
		return
	}

	p, err := api.deps.Router.Add(r.Context(), req.provider())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "transport": p})
}

// UpdateTransport patches a transport named either by the path or by the
// id field of the body.
func (api *TransportsAPI) UpdateTransport(w http.ResponseWriter, r *http.Request) {
	var req updateTransportRequest
	var id int64
	if _, ok := mux.Vars(r)["id"]; ok {
		var err error
		if id, err = pathID(r); err != nil {
			api.fail(w, r, err)
			return
		}
		if err := decodeBody(r, &req); err != nil {
			api.fail(w, r, err)
			return
		}
	} else {
		if err := decodeBody(r, &req, "id"); err != nil {
			api.fail(w, r, err)
			return
		}
		id = *req.ID
	}

	p, err := api.deps.Router.Patch(r.Context(), id, req.ProviderPatch)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "transport": p})
}

func (api *TransportsAPI) DeleteTransport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		api.fail(w, r, err)
		return
	}

	if err := api.deps.Router.Delete(r.Context(), id); err != nil {
		api.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// TransportStats counts messages per transport. start and end are unix
// seconds; either may be left out.
func (api *TransportsAPI) TransportStats(w http.ResponseWriter, r *http.Request) {
	var q statsQuery
	if err := api.decoder.Decode(&q, r.URL.Query()); err != nil {
		api.fail(w, r, mailerr.Wrap(mailerr.KindValidation, err, "invalid query"))
		return
	}

	var start, end *time.Time
	if q.Start != nil {
		t := time.Unix(*q.Start, 0).UTC()
		start = &t
	}
	if q.End != nil {
		t := time.Unix(*q.End, 0).UTC()
		end = &t
	}

	stats, err := api.deps.Manager.ProviderStats(r.Context(), start, end)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	if stats == nil {
		stats = []models.ProviderStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stats": stats})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, mailerr.Wrap(mailerr.KindValidation, err, "invalid id")
	}
	return id, nil
}
