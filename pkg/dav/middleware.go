package dav

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klokku/caldav/internal/rest"
	"github.com/klokku/caldav/pkg/calendar"
	"github.com/klokku/caldav/pkg/principal"
	log "github.com/sirupsen/logrus"
)

// BasicAuth authenticates every request with HTTP Basic credentials and puts
// the principal into the request context. Authentication also ensures the
// principal's default calendar exists, so clients can sync right after their
// first login.
func BasicAuth(service *calendar.Service) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			p, err := service.Authenticate(r.Context(), username, password)
			if err != nil {
				log.Debugf("rejected request for %q: %v", username, err)
				unauthorized(w)
				return
			}

			ctx := principal.WithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="caldav"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(rest.ErrorResponse{Error: "Unauthorized"}); err != nil {
		log.Errorf("failed to encode error response: %v", err)
	}
}
