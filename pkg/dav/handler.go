package dav

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/klokku/caldav/pkg/calendar"
	"github.com/klokku/caldav/pkg/principal"
	log "github.com/sirupsen/logrus"
)

// Handler translates CalDAV verbs into the calendar service operations. It is
// deliberately thin: all protocol rules (sync tokens, grouping, matching)
// live in the service.
type Handler struct {
	service  *calendar.Service
	basePath string
}

func NewHandler(service *calendar.Service, basePath string) *Handler {
	return &Handler{service: service, basePath: strings.TrimSuffix(basePath, "/")}
}

// Register mounts all CalDAV routes on the given (already authenticated)
// router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/", h.PropfindHome).Methods("PROPFIND")
	r.HandleFunc("/{calendarId}/", h.PropfindCalendar).Methods("PROPFIND")
	r.HandleFunc("/{calendarId}/", h.GetCalendar).Methods("GET")
	r.HandleFunc("/{calendarId}/", h.Report).Methods("REPORT")
	r.HandleFunc("/{calendarId}/", h.PutCalendar).Methods("PUT")
	r.HandleFunc("/{calendarId}/", h.MkCalendar).Methods("MKCALENDAR")
	r.HandleFunc("/{calendarId}/{eventId}", h.GetEvent).Methods("GET")
	r.HandleFunc("/{calendarId}/{eventId}", h.PutEvent).Methods("PUT")
	r.HandleFunc("/{calendarId}/{eventId}", h.DeleteEvent).Methods("DELETE")
	r.PathPrefix("/").HandlerFunc(h.Options).Methods("OPTIONS")
}

func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("DAV", "1, 3, calendar-access")
	w.Header().Set("Allow", "OPTIONS, PROPFIND, REPORT, GET, PUT, DELETE, MKCALENDAR")
	w.WriteHeader(http.StatusOK)
}

// GetCalendar serves the whole calendar as one merged iCalendar document.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cal, err := h.service.GetCalendar(r.Context(), vars["calendarId"])
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := h.service.GetEventsForCalendar(r.Context(), vars["calendarId"])
	if err != nil {
		writeError(w, err)
		return
	}
	ics, err := h.service.BuildICS(*cal, events)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, ics); err != nil {
		log.Errorf("failed to write calendar body: %v", err)
	}
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	event, err := h.service.GetEvent(r.Context(), vars["calendarId"], eventIDFromPath(vars["eventId"]))
	if err != nil {
		writeError(w, err)
		return
	}
	if event == nil {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}

	// Single-event reads serve the stored fragment verbatim.
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("ETag", h.service.ETag(*event))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, event.ICal); err != nil {
		log.Errorf("failed to write event body: %v", err)
	}
}

func (h *Handler) PutEvent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	eventID := eventIDFromPath(vars["eventId"])

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Reject garbage before it reaches the store.
	if _, err := calendar.ParseICS(string(body)); err != nil {
		writeError(w, err)
		return
	}

	existing, err := h.service.GetEvent(r.Context(), vars["calendarId"], eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	if existing != nil {
		if r.Header.Get("If-None-Match") == "*" {
			http.Error(w, "event already exists", http.StatusPreconditionFailed)
			return
		}
		updated, err := h.service.UpdateEvent(r.Context(), vars["calendarId"], eventID, string(body))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("ETag", h.service.ETag(*updated))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	created, err := h.service.CreateEvent(r.Context(), vars["calendarId"], eventID, string(body))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", h.service.ETag(*created))
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := h.service.DeleteEvent(r.Context(), vars["calendarId"], eventIDFromPath(vars["eventId"])); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutCalendar replaces the whole calendar (metadata and event set) from one
// uploaded document.
func (h *Handler) PutCalendar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cal, err := h.service.UpdateCalendar(r.Context(), vars["calendarId"], string(body))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Sync-Token", cal.SyncToken)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MkCalendar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	params := calendar.CreateCalendarParams{CalendarID: vars["calendarId"]}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if name, ok := parseMkCalendarName(body); ok {
			params.Name = name
		}
	}

	if _, err := h.service.CreateCalendar(r.Context(), params); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func eventIDFromPath(segment string) string {
	return strings.TrimSuffix(segment, ".ics")
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calendar.ErrMalformedICS):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, calendar.ErrEventExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, calendar.ErrEventNotFound), errors.Is(err, calendar.ErrCalendarNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, principal.ErrNoPrincipal), errors.Is(err, principal.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
