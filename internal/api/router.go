package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/co-subtitles/internal/config"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// Router wires the handlers to their routes
type Router struct {
	handler *Handler
	viewers Viewers
	static  http.Handler
	cors    []string
	logger  *logger.Logger
}

// NewRouter creates the API router. viewers may be nil to disable /ws.
func NewRouter(sessions Sessions, viewers Viewers, cfg *config.Config, version string, log *logger.Logger) *Router {
	return &Router{
		handler: NewHandler(sessions, viewers, cfg, version, log),
		viewers: viewers,
		static:  NewStaticFileHandler(cfg.Server.StaticFilesDir, log),
		cors:    cfg.Server.CORSAllowedOrigins,
		logger:  log.Named("http"),
	}
}

// Routes returns the HTTP handler for every route
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(rt.corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/offer", rt.handler.CreateOffer)
		r.Get("/languages", rt.handler.GetLanguages)
		r.Get("/health", rt.handler.GetHealth)
		r.Get("/config", rt.handler.GetConfig)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", rt.handler.GetSessions)
			r.Get("/{id}", rt.handler.GetSession)
			r.Delete("/{id}", rt.handler.DeleteSession)
		})
	})
	r.Get("/lang_list.json", rt.handler.GetLanguageMap)
	if rt.viewers != nil {
		r.Get("/ws", rt.viewers.HandleConnection)
	}
	r.Handle("/*", rt.static)

	return r
}

// requestLogger logs every request at debug level, errors at warn
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())),
		}
		if ww.Status() >= http.StatusInternalServerError {
			rt.logger.Warn("Request failed", fields...)
			return
		}
		rt.logger.Debug("Request served", fields...)
	})
}

// corsMiddleware answers preflight requests and tags responses for the
// configured origins
func (rt *Router) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && rt.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *Router) originAllowed(origin string) bool {
	return slices.Contains(rt.cors, "*") || slices.Contains(rt.cors, origin)
}
