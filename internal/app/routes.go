package app

import (
	"github.com/gorilla/mux"
	"github.com/klokku/caldav/internal/config"
	"github.com/klokku/caldav/internal/metrics"
	"github.com/klokku/caldav/pkg/dav"
)

// RegisterRoutes registers all endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Everything under /dav requires Basic auth.
	davRouter := r.PathPrefix("/dav").Subrouter()
	davRouter.Use(dav.BasicAuth(deps.CalendarService))
	deps.DavHandler.Register(davRouter)
}
