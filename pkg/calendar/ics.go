package calendar

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-ical"
	log "github.com/sirupsen/logrus"
)

// Properties injected by clients for their own bookkeeping. They must not
// round-trip through the server, so assembly strips them from every VEVENT.
var strippedEventProps = []string{
	"X-MOZ-LASTACK",
	"X-MOZ-GENERATION",
}

// ParseICS decodes raw iCalendar text into a component tree.
func ParseICS(text string) (*ical.Calendar, error) {
	cal, err := ical.NewDecoder(strings.NewReader(text)).Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedICS, err)
	}
	return cal, nil
}

// eventComponents returns all VEVENT subcomponents of a parsed document.
func eventComponents(cal *ical.Calendar) []*ical.Component {
	var events []*ical.Component
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent {
			events = append(events, child)
		}
	}
	return events
}

// assembleICS builds a full calendar document: protocol version, the
// calendar's identity and metadata, then the given VEVENT subcomponents with
// client bookkeeping properties removed.
func assembleICS(cal Calendar, comps []*ical.Component) (string, error) {
	doc := ical.NewCalendar()
	doc.Props.SetText(ical.PropVersion, "2.0")
	doc.Props.SetText(ical.PropUID, cal.CalendarID)
	doc.Props.SetText("NAME", cal.Name)

	// PRODID is required on VCALENDAR, so fall back to an empty value
	// rather than omitting the property.
	doc.Props.SetText(ical.PropProductID, cal.ProdID)

	if cal.Description != "" {
		doc.Props.SetText(ical.PropDescription, cal.Description)
	}
	if cal.Scale != "" {
		doc.Props.SetText("CALSCALE", cal.Scale)
	}
	if cal.URL != "" {
		doc.Props.SetText("URL", cal.URL)
	}
	if cal.Source != "" {
		doc.Props.SetText("SOURCE", cal.Source)
	}
	for _, x := range cal.XProps {
		prop := ical.NewProp(strings.ToUpper(x.Key))
		prop.Value = x.Value
		doc.Props.Add(prop)
	}

	for _, comp := range comps {
		for _, name := range strippedEventProps {
			comp.Props.Del(name)
		}
		doc.Children = append(doc.Children, comp)
	}

	var buf strings.Builder
	if err := ical.NewEncoder(&buf).Encode(doc); err != nil {
		return "", fmt.Errorf("could not serialize calendar document: %w", err)
	}
	return buf.String(), nil
}

// BuildICS reassembles one full calendar document from the stored fragments
// of the given events. Single-event reads do not go through here: the stored
// fragment is served verbatim.
func (s *Service) BuildICS(cal Calendar, events []Event) (string, error) {
	var comps []*ical.Component
	for _, event := range events {
		parsed, err := ParseICS(event.ICal)
		if err != nil {
			// A single bad record must not abort the whole document.
			log.WithField("eventId", event.EventID).Errorf("skipping unparsable stored fragment: %v", err)
			continue
		}
		comps = append(comps, eventComponents(parsed)...)
	}
	return assembleICS(cal, comps)
}

// propWireFormat renders a property back to its iCalendar wire form
// (NAME;PARAM=VALUE:value). Parameters are emitted in sorted order.
func propWireFormat(prop ical.Prop) string {
	var sb strings.Builder
	sb.WriteString(prop.Name)
	names := make([]string, 0, len(prop.Params))
	for name := range prop.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(";")
		sb.WriteString(name)
		sb.WriteString("=")
		sb.WriteString(strings.Join(prop.Params[name], ","))
	}
	sb.WriteString(":")
	sb.WriteString(prop.Value)
	return sb.String()
}

// extractXProps collects top-level X- properties of a VCALENDAR in document
// order, preserving key casing. It scans the unfolded raw text because parsed
// property maps do not retain ordering across property names.
func extractXProps(raw string) []XProp {
	var out []XProp
	depth := 0
	for _, line := range unfoldICSLines(raw) {
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "BEGIN:"):
			depth++
			continue
		case strings.HasPrefix(upper, "END:"):
			depth--
			continue
		}
		// depth 1 means directly inside VCALENDAR, outside any subcomponent
		if depth != 1 || !strings.HasPrefix(upper, "X-") {
			continue
		}
		nameEnd := strings.IndexAny(line, ";:")
		valueStart := strings.Index(line, ":")
		if nameEnd < 0 || valueStart < 0 {
			continue
		}
		out = append(out, XProp{
			Key:   line[:nameEnd],
			Value: line[valueStart+1:],
		})
	}
	return out
}

// unfoldICSLines splits raw iCalendar text into lines, joining folded
// continuation lines (RFC5545 §3.1) back onto their parent.
func unfoldICSLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// textProp reads the first value of a text property, treating absent or
// non-text values as empty.
func textProp(cal *ical.Calendar, name string) string {
	value, err := cal.Props.Text(name)
	if err != nil {
		return ""
	}
	return value
}
