package calendar

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	log "github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"
)

const icalTimeLayout = "20060102T150405Z"

// Property names whose wire text feeds the recurrence rule set. An event can
// carry several values for each of them.
var recurrenceProps = []string{"RRULE", "EXRULE", "EXDATE", "RDATE"}

// matchesDateRange reports whether a stored event has at least one occurrence
// intersecting the query window. Open bounds are treated as always satisfied
// on that side. Malformed stored data never aborts a query: it is logged and
// the record treated as a non-match.
func matchesDateRange(event Event, start, end mo.Option[time.Time]) bool {
	parsed, err := ParseICS(event.ICal)
	if err != nil {
		log.WithField("eventId", event.EventID).Errorf("skipping unparsable stored fragment: %v", err)
		return false
	}
	comps := eventComponents(parsed)
	if len(comps) == 0 {
		log.WithField("eventId", event.EventID).Error("stored event has no VEVENT")
		return false
	}

	for _, comp := range comps {
		if componentMatches(comp, event.EventID, start, end) {
			return true
		}
	}
	return false
}

func componentMatches(comp *ical.Component, eventID string, start, end mo.Option[time.Time]) bool {
	dtstartProp := comp.Props.Get(ical.PropDateTimeStart)
	if dtstartProp == nil {
		log.WithField("eventId", eventID).Error("DTSTART missing on event")
		return false
	}
	dtstart, err := dtstartProp.DateTime(time.UTC)
	if err != nil {
		log.WithField("eventId", eventID).Errorf("DTSTART not a date-time: %v", err)
		return false
	}

	var dtend *time.Time
	if prop := comp.Props.Get(ical.PropDateTimeEnd); prop != nil {
		if t, err := prop.DateTime(time.UTC); err == nil {
			dtend = &t
		}
	}

	var lines []string
	for _, name := range recurrenceProps {
		for _, prop := range comp.Props[name] {
			lines = append(lines, propWireFormat(prop))
		}
	}

	if len(lines) == 0 {
		startOK := true
		if s, ok := start.Get(); ok {
			startOK = dtend != nil && !s.After(*dtend)
		}
		endOK := true
		if e, ok := end.Get(); ok {
			endOK = !e.Before(dtstart)
		}
		return startOK && endOK
	}

	// The rule lines alone carry no anchor, so prepend the component's start.
	anchored := append([]string{"DTSTART:" + dtstart.UTC().Format(icalTimeLayout)}, lines...)
	set, err := rrule.StrToRRuleSet(strings.Join(anchored, "\n"))
	if err != nil {
		log.WithField("eventId", eventID).Errorf("could not build recurrence set: %v", err)
		return false
	}

	s, hasStart := start.Get()
	e, hasEnd := end.Get()
	switch {
	case hasStart && hasEnd:
		return len(set.Between(s, e, true)) > 0
	case hasStart:
		return !set.After(s, true).IsZero()
	case hasEnd:
		return !set.Before(e, true).IsZero()
	}
	return false
}
