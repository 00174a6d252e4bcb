package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/windlass-io/windlass/internal/logger"
	"github.com/windlass-io/windlass/pkg/server"
)

// newRouter wires the middleware stack and the admin routes.
//
// Routes:
//   - GET /health - liveness probe with engine state
//   - GET /commands - list available diagnostic commands
//   - GET /commands/{command} - run one command
func newRouter(engine *server.Engine) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	cmds := newCommandHandler(engine)

	r.Get("/health", cmds.Health)
	r.Route("/commands", func(r chi.Router) {
		r.Get("/", cmds.List)
		r.Get("/{command}", cmds.Run)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/commands", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs each admin request through the structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("admin request",
			"request_id", requestID,
			"method", r.Method,
			logger.KeyPath, r.URL.Path,
			"status", ww.Status(),
			logger.KeyDurationMs, float64(time.Since(start).Microseconds())/1000.0,
		)
	})
}
