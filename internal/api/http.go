package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/tendant/simple-vod/internal/logging"
	"github.com/tendant/simple-vod/internal/metrics"
)

type handler struct {
	svc     *Service
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewHandler mounts the API routes, /healthz and /metrics on a chi router.
func NewHandler(svc *Service, rec *metrics.Recorder, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, metrics: rec, logger: logging.WithComponent(logger, "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(staticHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if rec != nil {
		r.Method(http.MethodGet, "/metrics", rec.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.countRequests)
		r.Get("/jobs", h.listJobs)
		r.Get("/jobs/{jobId}", h.getJob)
		r.Get("/files/{filename}", h.getFile)
		r.Get("/signed-cookies", h.signedCookies)
	})
	return r
}

func staticHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range Headers() {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.metrics.APIRequest(route, strconv.Itoa(status))
	})
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListJobs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, list)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	record, err := h.svc.GetJob(r.Context(), pathParam(r, "jobId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, record)
}

func (h *handler) getFile(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.GetFile(r.Context(), pathParam(r, "filename"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, file)
}

func (h *handler) signedCookies(w http.ResponseWriter, r *http.Request) {
	cookies, err := h.svc.SignedCookies(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, cookies)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := Describe(err)
	logger := logging.FromContext(r.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		logger.Info("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

// pathParam returns the unescaped value of a route parameter so names
// containing an encoded slash reach the store intact.
func pathParam(r *http.Request, name string) string {
	value := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(value); err == nil {
		return unescaped
	}
	return value
}
