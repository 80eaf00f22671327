// Package meetinghttp serves the meeting API: a random pub meeting name per
// request, behind a per-client quota of five requests a minute.
package meetinghttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pmaas/internal/httpmw"
	"github.com/keithlinneman/pmaas/internal/log"
	"github.com/keithlinneman/pmaas/internal/ratelimit"
)

// Quota policy of the meeting routes. It is not configurable.
const (
	QuotaLimit  = 5
	QuotaWindow = time.Minute
)

// CutOff is the 429 body sent once a client has used its quota.
var CutOff = ratelimit.Rejection{
	Error:   "Whoa there, slow down! You've been cut off.",
	Message: "The bartender says you've had enough meetings for now. Try again in a minute.",
}

// QuotaOptions returns the limiter options for the meeting quota. Callers
// append their own hooks.
func QuotaOptions() []ratelimit.Option {
	return []ratelimit.Option{
		ratelimit.WithLimit(QuotaLimit, QuotaWindow),
		ratelimit.WithRejection(CutOff),
	}
}

// Picker returns one meeting name. *meeting.Catalog implements it.
type Picker interface {
	Pick() string
}

// Limiter gates the meeting routes. *ratelimit.Window implements it.
type Limiter interface {
	Middleware(next http.Handler) http.Handler
}

// MeetingResponse is the body of a successful meeting request.
type MeetingResponse struct {
	MeetingName string `json:"meeting_name" jsonschema:"description=A very important business meeting name,example=Quarterly Pint Review"`
}

// ErrorResponse is the body of every non-2xx answer from this API.
type ErrorResponse struct {
	Error   string `json:"error" jsonschema:"description=Short reason"`
	Message string `json:"message,omitempty"`
}

type Options struct {
	Logger  log.Logger
	Catalog Picker
	Quota   Limiter
	// OnServed runs after each meeting name is written
	OnServed func()
	// Version is reported in the OpenAPI document
	Version string
}

type API struct {
	logger   log.Logger
	catalog  Picker
	quota    Limiter
	onServed func()
	openapi  []byte
}

// NewAPI panics on a nil catalog or quota: both are wired once in main and
// a server without them must not start.
func NewAPI(opts Options) *API {
	if opts.Catalog == nil {
		panic("meetinghttp: nil catalog")
	}
	if opts.Quota == nil {
		panic("meetinghttp: nil quota limiter")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &API{
		logger:   opts.Logger,
		catalog:  opts.Catalog,
		quota:    opts.Quota,
		onServed: opts.OnServed,
		openapi:  mustOpenAPI(opts.Version),
	}
}

// RegisterRoutes mounts the meeting routes and JSON 404/405 handlers. The
// meeting quota is shared by /meeting and its /api alias.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(api.quota.Middleware, httpmw.Scope("meeting"))
		r.Get("/meeting", api.HandleMeeting)
		r.Get("/api/meeting", api.HandleMeeting)
	})
	r.With(httpmw.Scope("openapi")).Get("/openapi.json", api.HandleOpenAPI)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.writeJSON(r.Context(), w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", http.MethodGet)
		api.writeJSON(r.Context(), w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	})
}

// HandleMeeting writes one randomly picked meeting name.
func (api *API) HandleMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := api.catalog.Pick()

	w.Header().Set("Cache-Control", "no-store")
	api.writeJSON(ctx, w, http.StatusOK, MeetingResponse{MeetingName: name})

	if api.onServed != nil {
		api.onServed()
	}
	log.FromContext(ctx).Debug(ctx, "served meeting", "meeting_name", name)
}

// HandleOpenAPI writes the pre-rendered OpenAPI document.
func (api *API) HandleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.openapi)
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
