package app

import (
	"github.com/gorilla/mux"
	"github.com/klokku/caldav/internal/config"
	"github.com/klokku/caldav/internal/metrics"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies, cfg config.Application) {
	// Request counters by method and status code.
	r.Use(metrics.Middleware)
}
