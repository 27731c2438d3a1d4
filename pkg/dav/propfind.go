package dav

import (
	"net/http"

	"github.com/beevik/etree"
	"github.com/gorilla/mux"
	"github.com/klokku/caldav/pkg/calendar"
	"github.com/klokku/caldav/pkg/principal"
)

// PropfindHome lists the principal's calendar home: one response for the home
// collection itself and one per calendar.
func (h *Handler) PropfindHome(w http.ResponseWriter, r *http.Request) {
	p, err := principal.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	calendars, err := h.service.GetCalendarsForPrincipal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	doc, ms := newMultistatus()

	home := addResponse(ms, h.basePath+"/")
	home.CreateElement("d:resourcetype").CreateElement("d:collection")
	home.CreateElement("d:displayname").SetText(p.Username)
	home.CreateElement("d:current-user-principal").
		CreateElement("d:href").SetText(h.basePath + "/")

	if r.Header.Get("Depth") != "0" {
		for _, cal := range calendars {
			h.addCalendarProps(addResponse(ms, h.calendarHref(cal)), cal)
		}
	}

	writeMultistatus(w, doc)
}

// PropfindCalendar describes one calendar and, at depth 1, its events.
func (h *Handler) PropfindCalendar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cal, err := h.service.GetCalendar(r.Context(), vars["calendarId"])
	if err != nil {
		writeError(w, err)
		return
	}

	doc, ms := newMultistatus()
	h.addCalendarProps(addResponse(ms, h.calendarHref(*cal)), *cal)

	if r.Header.Get("Depth") != "0" {
		events, err := h.service.GetEventsForCalendar(r.Context(), vars["calendarId"])
		if err != nil {
			writeError(w, err)
			return
		}
		for _, event := range events {
			prop := addResponse(ms, h.eventHref(*cal, event))
			prop.CreateElement("d:resourcetype")
			prop.CreateElement("d:getetag").SetText(h.service.ETag(event))
			prop.CreateElement("d:getcontenttype").SetText("text/calendar; charset=utf-8; component=VEVENT")
		}
	}

	writeMultistatus(w, doc)
}

func (h *Handler) addCalendarProps(prop *etree.Element, cal calendar.Calendar) {
	rt := prop.CreateElement("d:resourcetype")
	rt.CreateElement("d:collection")
	rt.CreateElement("c:calendar")
	prop.CreateElement("d:displayname").SetText(cal.Name)
	if cal.Description != "" {
		prop.CreateElement("c:calendar-description").SetText(cal.Description)
	}
	if cal.Timezone != "" {
		prop.CreateElement("c:calendar-timezone").SetText(cal.Timezone)
	}
	prop.CreateElement("cs:getctag").SetText(cal.SyncToken)
	prop.CreateElement("d:sync-token").SetText(cal.SyncToken)
	prop.CreateElement("c:supported-calendar-component-set").
		CreateElement("c:comp").CreateAttr("name", "VEVENT")
}

func (h *Handler) calendarHref(cal calendar.Calendar) string {
	return h.basePath + "/" + h.service.CalendarID(cal) + "/"
}

func (h *Handler) eventHref(cal calendar.Calendar, event calendar.Event) string {
	return h.calendarHref(cal) + event.EventID + ".ics"
}
