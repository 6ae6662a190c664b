package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jinshu-im/jinshu/internal/logger"
)

// NewRouter wires the account API routes.
//
// Routes:
//   - POST   /user      - register an account
//   - POST   /sign_up   - alias for registration
//   - GET    /user/{user_id} - account lookup
//   - POST   /sign_in   - password check, token issue
//   - DELETE /sign_out  - token revocation
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/user", h.SignUp)
	r.Post("/sign_up", h.SignUp)
	r.Get("/user/{user_id}", h.GetUser)
	r.Post("/sign_in", h.SignIn)
	r.Delete("/sign_out", h.SignOut)

	return r
}

// requestLogger logs one line per request with method, path, status and
// duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
