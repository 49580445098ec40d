// Package handler serves the participant-facing pages: the enrollment
// redirect at the root and the kiosk lookup flow.
package handler

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kioskgw/internal/identity"
	"kioskgw/internal/kiosk"
	"kioskgw/internal/platform/metrics"
	"kioskgw/internal/platform/middleware"
	dErrors "kioskgw/pkg/domain-errors"
	"kioskgw/pkg/requestcontext"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Service defines the kiosk operations the handler exposes.
type Service interface {
	CheckIn(ctx context.Context, rawKey string) (*kiosk.CheckIn, error)
	Enroll(ctx context.Context, attrs identity.Attributes) (*kiosk.Enrollment, error)
}

// Handler handles the enrollment and kiosk endpoints.
type Handler struct {
	logger  *slog.Logger
	kiosk   Service
	metrics *metrics.Metrics
}

// New creates a new kiosk Handler.
func New(kioskService Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		kiosk:   kioskService,
		metrics: m,
	}
}

// Register registers the kiosk routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	kioskRouter := chi.NewRouter()
	kioskRouter.Use(middleware.Recovery(h.logger))
	kioskRouter.Use(middleware.RequestID)
	kioskRouter.Use(middleware.Logger(h.logger))
	kioskRouter.Use(middleware.Timeout(60 * time.Second))
	kioskRouter.Use(middleware.Latency(h.metrics))
	kioskRouter.Use(middleware.NoStore)
	kioskRouter.Get("/", h.handleEnroll)
	kioskRouter.Get("/kiosk", h.handleKiosk)
	kioskRouter.Get("/kiosk/lookup", h.handleLookupRedirect)
	kioskRouter.Post("/kiosk/lookup", h.handleLookup)

	r.Mount("/", kioskRouter)
}

// handleEnroll redirects the authenticated participant into their survey
// queue, or shows the first-day welcome page.
func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	attrs := identity.FromRequest(r)
	ctx := requestcontext.WithRemoteUser(r.Context(), attrs.RemoteUser)

	enrollment, err := h.kiosk.Enroll(ctx, attrs)
	if err != nil {
		h.renderError(w, r, "enrollment visit failed", err)
		return
	}

	if enrollment.Welcome {
		h.render(w, http.StatusOK, "welcome.html", map[string]any{
			"CheckinsStart": enrollment.CheckinsStart.Format("January 2, 2006"),
		})
		return
	}

	http.Redirect(w, r, enrollment.RedirectURL, http.StatusFound)
}

// handleKiosk shows the lookup form.
func (h *Handler) handleKiosk(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "kiosk.html", nil)
}

// handleLookupRedirect sends GETs on the lookup URL back to the form, so a
// refresh after a POST does not error.
func (h *Handler) handleLookupRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/kiosk", http.StatusFound)
}

// handleLookup resolves a kiosk check-in and routes the participant.
func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.kiosk.CheckIn(ctx, r.PostFormValue("key"))
	if err != nil {
		h.renderError(w, r, "kiosk lookup failed", err)
		return
	}

	switch result.Outcome {
	case kiosk.OutcomeDestination:
		http.Redirect(w, r, result.Destination, http.StatusFound)

	case kiosk.OutcomeRegistrationRequired:
		h.render(w, http.StatusOK, "registration_required.html", map[string]any{
			"Key":          result.NaturalKey,
			"RecordExists": result.RecordExists,
		})

	case kiosk.OutcomeAlreadyTested:
		h.render(w, http.StatusOK, "already_tested.html", map[string]any{
			"Key": result.NaturalKey,
		})

	default:
		h.renderError(w, r, "unexpected check-in outcome",
			dErrors.Newf(dErrors.CodeInternal, "unhandled outcome %q", result.Outcome))
	}
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("template render failed", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
	h.render(w, dErrors.ToHTTPStatus(dErrors.CodeOf(err)), "error.html", nil)
}
