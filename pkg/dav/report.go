package dav

import (
	"io"
	"net/http"
	"path"
	"time"

	"github.com/beevik/etree"
	"github.com/gorilla/mux"
	"github.com/klokku/caldav/pkg/calendar"
	"github.com/samber/mo"
	log "github.com/sirupsen/logrus"
)

const reportTimeLayout = "20060102T150405Z"

// Report handles the two REPORT bodies calendar clients actually send:
// calendar-query (optionally with a time-range filter) and
// calendar-multiget.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reqDoc := etree.NewDocument()
	if err := reqDoc.ReadFromBytes(body); err != nil || reqDoc.Root() == nil {
		http.Error(w, "malformed report body", http.StatusBadRequest)
		return
	}

	switch reqDoc.Root().Tag {
	case "calendar-query":
		h.calendarQuery(w, r, vars["calendarId"], reqDoc.Root())
	case "calendar-multiget":
		h.calendarMultiget(w, r, vars["calendarId"], reqDoc.Root())
	default:
		http.Error(w, "unsupported report", http.StatusBadRequest)
	}
}

func (h *Handler) calendarQuery(w http.ResponseWriter, r *http.Request, calendarID string, root *etree.Element) {
	cal, err := h.service.GetCalendar(r.Context(), calendarID)
	if err != nil {
		writeError(w, err)
		return
	}

	var events []calendar.Event
	if timeRange := findElementIgnoreNS(root, "time-range"); timeRange != nil {
		start := parseReportTime(timeRange.SelectAttrValue("start", ""))
		end := parseReportTime(timeRange.SelectAttrValue("end", ""))
		events, err = h.service.GetEventsByDate(r.Context(), calendarID, start, end)
	} else {
		events, err = h.service.GetEventsForCalendar(r.Context(), calendarID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	doc, ms := newMultistatus()
	for _, event := range events {
		h.addEventData(addResponse(ms, h.eventHref(*cal, event)), event)
	}
	writeMultistatus(w, doc)
}

func (h *Handler) calendarMultiget(w http.ResponseWriter, r *http.Request, calendarID string, root *etree.Element) {
	cal, err := h.service.GetCalendar(r.Context(), calendarID)
	if err != nil {
		writeError(w, err)
		return
	}

	doc, ms := newMultistatus()
	for _, hrefElem := range findElementsIgnoreNS(root, "href") {
		href := hrefElem.Text()
		eventID := eventIDFromPath(path.Base(href))
		event, err := h.service.GetEvent(r.Context(), calendarID, eventID)
		if err != nil {
			writeError(w, err)
			return
		}
		if event == nil {
			addNotFoundResponse(ms, href)
			continue
		}
		h.addEventData(addResponse(ms, h.eventHref(*cal, *event)), *event)
	}
	writeMultistatus(w, doc)
}

func (h *Handler) addEventData(prop *etree.Element, event calendar.Event) {
	prop.CreateElement("d:getetag").SetText(h.service.ETag(event))
	prop.CreateElement("c:calendar-data").SetText(event.ICal)
}

// parseReportTime reads a UTC timestamp attribute from a time-range filter.
// An absent or unreadable value leaves the bound open.
func parseReportTime(value string) mo.Option[time.Time] {
	if value == "" {
		return mo.None[time.Time]()
	}
	t, err := time.Parse(reportTimeLayout, value)
	if err != nil {
		log.Debugf("ignoring unparsable time-range bound %q: %v", value, err)
		return mo.None[time.Time]()
	}
	return mo.Some(t)
}
