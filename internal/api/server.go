// Package api is the HTTP control surface: sending, templates, transports,
// queue processing, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailer/internal/delivery"
	"mailer/internal/mailerr"
	"mailer/internal/metrics"
	"mailer/internal/provider"
)

// maxBodyBytes bounds request bodies; message bodies themselves are capped
// at 25MB by validation.
const maxBodyBytes = 30 << 20

// QueueRunner triggers a queue run on demand.
type QueueRunner interface {
	Process(ctx context.Context) (*delivery.ProcessResult, error)
}

// Deps are the services the handlers call into.
type Deps struct {
	Manager *delivery.Manager
	Router  *provider.Router
	Queue   QueueRunner
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Debug adds error causes to failure responses.
	Debug bool
}

// NewRouter wires every route onto a gorilla/mux router.
func NewRouter(d Deps) *mux.Router {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := mux.NewRouter()
	r.Use(accessLog(d.Logger, d.Metrics))

	h := &handler{deps: d, logger: d.Logger, decoder: newQueryDecoder()}

	r.HandleFunc("/", h.status).Methods(http.MethodGet)
	NewMessagesAPI(h).RegisterRoutes(r)
	NewTemplatesAPI(h).RegisterRoutes(r)
	NewTransportsAPI(h).RegisterRoutes(r)

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000))
	health.AddReadinessCheck("database", healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return d.Manager.Ping(ctx)
	}, 5*time.Second))
	r.Handle("/live", health).Methods(http.MethodGet)
	r.Handle("/ready", health).Methods(http.MethodGet)

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	return r
}

func newQueryDecoder() *schema.Decoder {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	return dec
}

type handler struct {
	deps    Deps
	logger  *zap.Logger
	decoder *schema.Decoder
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"http":     "ok",
		"database": "ok",
		"status":   "ok",
	}
	code := http.StatusOK
	if err := h.deps.Manager.Ping(r.Context()); err != nil {
		h.logger.Error("database ping failed", zap.Error(err))
		response["database"] = "not ok"
		response["status"] = "not ok"
		if h.deps.Debug {
			response["error"] = err.Error()
		}
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, response)
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"status": "failed",
		"path":   r.URL.Path,
		"reason": "Not found: " + r.Method + " " + r.URL.Path,
	})
}

// fail writes err as a failure response. Errors of the mailer's own kinds
// keep their status; everything else is a 500.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	body := map[string]any{
		"status": "failed",
		"path":   r.URL.Path,
		"reason": err.Error(),
	}

	var merr *mailerr.Error
	var missing *missingFieldsError
	switch {
	case errors.As(err, &missing):
		code = http.StatusBadRequest
		body["reason"] = "Missing arguments"
		body["required"] = missing.required
	case errors.As(err, &merr):
		code = merr.HTTPStatus()
		body["reason"] = merr.Message
		body["kind"] = merr.Kind
		if len(merr.Violations) > 0 {
			body["violations"] = merr.Violations
		}
		if h.deps.Debug && merr.Cause != nil {
			body["error"] = merr.Cause.Error()
		}
	}

	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type missingFieldsError struct {
	required []string
}

func (e *missingFieldsError) Error() string {
	return "missing arguments"
}

// decodeBody decodes a JSON body into dst after checking that every
// required field is present and not null.
func decodeBody(r *http.Request, dst any, required ...string) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return mailerr.Wrap(mailerr.KindValidation, err, "failed to read request body")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		if len(required) > 0 {
			return &missingFieldsError{required: required}
		}
		return mailerr.Wrap(mailerr.KindValidation, err, "invalid JSON body")
	}
	for _, name := range required {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			return &missingFieldsError{required: required}
		}
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return mailerr.Wrap(mailerr.KindValidation, err, "invalid JSON body")
	}
	return nil
}
