package calendar

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/klokku/caldav/internal/lock"
	"github.com/klokku/caldav/pkg/principal"
	"github.com/samber/mo"
	log "github.com/sirupsen/logrus"
)

// Service implements the CalDAV data operations invoked by the protocol
// adapter. Persistence, locking, and credential checks are delegated to the
// injected collaborators; the service owns the rules: when sync tokens bump,
// how uploaded fragments are grouped, and how date-range queries match.
type Service struct {
	calendars Repository
	events    EventRepository
	locker    lock.Locker
	verifier  principal.Verifier
	baseURL   string
	prodID    string
}

func NewService(calendars Repository, events EventRepository, locker lock.Locker, verifier principal.Verifier, baseURL, locale string) *Service {
	host := baseURL
	if parsed, err := url.Parse(baseURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	return &Service{
		calendars: calendars,
		events:    events,
		locker:    locker,
		verifier:  verifier,
		baseURL:   baseURL,
		prodID:    fmt.Sprintf("//%s//caldav//%s", host, strings.ToUpper(locale)),
	}
}

// Authenticate verifies the credentials and ensures the principal's default
// calendar (named after the username) exists. Any failure, including internal
// ones, surfaces as ErrUnauthorized; the cause is logged.
func (s *Service) Authenticate(ctx context.Context, username, password string) (principal.Principal, error) {
	p, err := s.verifier.Verify(ctx, username, password)
	if err != nil {
		log.WithField("username", username).Debugf("authentication failed: %v", err)
		return principal.Principal{}, principal.ErrUnauthorized
	}

	if _, err := s.GetCalendar(principal.WithPrincipal(ctx, p), p.Username); err != nil {
		log.WithField("username", username).Errorf("could not ensure default calendar: %v", err)
		return principal.Principal{}, principal.ErrUnauthorized
	}
	return p, nil
}

type CreateCalendarParams struct {
	CalendarID  string
	Name        string
	Description string
	Timezone    string
}

// CreateCalendar creates a calendar for the current principal. Creating the
// same calendarId twice returns the existing record.
func (s *Service) CreateCalendar(ctx context.Context, params CreateCalendarParams) (*Calendar, error) {
	p, err := principal.Current(ctx)
	if err != nil {
		return nil, err
	}
	log.Debugf("createCalendar %q for %q", params.CalendarID, p.ID)

	name := params.Name
	if name == "" {
		name = params.CalendarID
	}
	if name == "" {
		name = uuid.NewString()
	}
	calendarID := params.CalendarID
	if calendarID == "" {
		calendarID = name
	}
	timezone := params.Timezone
	if timezone == "" {
		timezone = p.Timezone
	}

	if existing, err := s.calendars.Find(ctx, p.ID, calendarID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	created, err := s.calendars.Create(ctx, Calendar{
		CalendarID:  calendarID,
		PrincipalID: p.ID,
		Name:        name,
		Description: params.Description,
		ProdID:      s.prodID,
		Timezone:    timezone,
		URL:         s.baseURL,
		SyncToken:   initialSyncToken(s.baseURL),
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetCalendar resolves a calendar by internal id when the identifier parses
// as one, otherwise by its calendarId, creating it with default metadata when
// absent.
func (s *Service) GetCalendar(ctx context.Context, calendarID string) (*Calendar, error) {
	p, err := principal.Current(ctx)
	if err != nil {
		return nil, err
	}
	log.Debugf("getCalendar %q for %q", calendarID, p.ID)

	var cal *Calendar
	if id, parseErr := strconv.ParseInt(calendarID, 10, 64); parseErr == nil {
		cal, err = s.calendars.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cal != nil && cal.PrincipalID != p.ID {
			cal = nil
		}
	}
	if cal == nil {
		cal, err = s.calendars.Find(ctx, p.ID, calendarID)
		if err != nil {
			return nil, err
		}
	}
	if cal == nil {
		// NOTE: Android uses "Events" and most others use "Calendar" as the
		// default calendar name.
		created, err := s.calendars.Create(ctx, Calendar{
			CalendarID:  calendarID,
			PrincipalID: p.ID,
			Name:        "Calendar",
			Description: s.baseURL,
			ProdID:      s.prodID,
			Timezone:    p.Timezone,
			URL:         s.baseURL,
			SyncToken:   initialSyncToken(s.baseURL),
		})
		if err != nil {
			return nil, err
		}
		cal = &created
	}
	return cal, nil
}

// UpdateCalendar replaces a calendar's metadata and its entire event set from
// one uploaded document. The replace runs under the principal-scoped
// exclusive lock; it is destructive (delete then recreate, no per-event
// merge). A crash can leave metadata updated with events not yet replaced;
// this is an accepted limitation of the coarse design.
func (s *Service) UpdateCalendar(ctx context.Context, calendarID, body string) (cal *Calendar, err error) {
	p, err := principal.Current(ctx)
	if err != nil {
		return nil, err
	}
	log.Debugf("updateCalendar %q for %q", calendarID, p.ID)

	doc, err := ParseICS(body)
	if err != nil {
		return nil, err
	}
	comps := eventComponents(doc)
	xProps := extractXProps(body)

	cal, err = s.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	held, err := s.locker.Acquire(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		// The release must run on every exit path; a release failure is an
		// operational event and never supersedes the primary outcome.
		if releaseErr := s.locker.Release(ctx, held); releaseErr != nil {
			log.WithFields(log.Fields{"principalId": p.ID, "calendarId": calendarID}).
				Errorf("failed to release principal lock: %v", releaseErr)
		}
	}()

	token, err := BumpSyncToken(cal.SyncToken)
	if err != nil {
		return nil, err
	}
	cal.Name = textProp(doc, "NAME")
	cal.ProdID = textProp(doc, ical.PropProductID)
	cal.Description = textProp(doc, ical.PropDescription)
	cal.Source = textProp(doc, "SOURCE")
	cal.URL = textProp(doc, "URL")
	cal.Scale = textProp(doc, "CALSCALE")
	cal.XProps = xProps
	cal.SyncToken = token

	updated, err := s.calendars.Update(ctx, *cal)
	if err != nil {
		return nil, err
	}
	cal = &updated

	deleted, err := s.events.DeleteByCalendar(ctx, cal.ID)
	if err != nil {
		return nil, err
	}
	log.Debugf("replaced calendar %d: deleted %d existing events", cal.ID, deleted)

	if len(comps) > 0 {
		groups := groupByEventID(comps)
		events := make([]Event, 0, len(groups))
		for _, group := range groups {
			fragment, err := assembleICS(*cal, group.comps)
			if err != nil {
				return nil, err
			}
			events = append(events, Event{
				EventID:     group.eventID,
				CalendarRef: cal.ID,
				ICal:        fragment,
			})
		}
		if _, err := s.events.CreateAll(ctx, events); err != nil {
			return nil, err
		}
	}

	return cal, nil
}

type eventGroup struct {
	eventID string
	comps   []*ical.Component
}

// groupByEventID groups VEVENT subcomponents by their shared UID, preserving
// the order of first appearance. A recurring series arrives as a master plus
// override instances that all carry the same UID and must be stored as one
// record.
func groupByEventID(comps []*ical.Component) []eventGroup {
	var groups []eventGroup
	index := make(map[string]int)
	for _, comp := range comps {
		eventID, _ := comp.Props.Text(ical.PropUID)
		i, ok := index[eventID]
		if !ok {
			i = len(groups)
			index[eventID] = i
			groups = append(groups, eventGroup{eventID: eventID})
		}
		groups[i].comps = append(groups[i].comps, comp)
	}
	return groups
}

func (s *Service) GetCalendarsForPrincipal(ctx context.Context) ([]Calendar, error) {
	p, err := principal.Current(ctx)
	if err != nil {
		return nil, err
	}
	return s.calendars.FindAllForPrincipal(ctx, p.ID)
}

func (s *Service) GetEventsForCalendar(ctx context.Context, calendarID string) ([]Event, error) {
	cal, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return s.events.FindByCalendar(ctx, cal.ID)
}

// GetEventsByDate returns the calendar's events that have at least one
// occurrence within the query window; both bounds are optional. This is a
// full scan with in-memory recurrence matching over all stored events, the
// correctness-first baseline: the database is intentionally not asked to
// pre-filter.
func (s *Service) GetEventsByDate(ctx context.Context, calendarID string, start, end mo.Option[time.Time]) ([]Event, error) {
	cal, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.FindByCalendar(ctx, cal.ID)
	if err != nil {
		return nil, err
	}

	filtered := make([]Event, 0, len(events))
	for _, event := range events {
		if matchesDateRange(event, start, end) {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

// GetEvent returns the stored event, or nil when no such record exists.
func (s *Service) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	cal, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return s.events.FindOne(ctx, cal.ID, eventID)
}

func (s *Service) CreateEvent(ctx context.Context, calendarID, eventID, body string) (*Event, error) {
	cal, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	exists, err := s.events.FindOne(ctx, cal.ID, eventID)
	if err != nil {
		return nil, err
	}
	if exists != nil {
		return nil, ErrEventExists
	}

	if err := s.bumpCalendar(ctx, cal); err != nil {
		return nil, err
	}

	created, err := s.events.Create(ctx, Event{
		EventID:     eventID,
		CalendarRef: cal.ID,
		ICal:        body,
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Service) UpdateEvent(ctx context.Context, calendarID, eventID, body string) (*Event, error) {
	cal, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	event, err := s.events.FindOne(ctx, cal.ID, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	if err := s.bumpCalendar(ctx, cal); err != nil {
		return nil, err
	}

	event.ICal = body
	updated, err := s.events.Update(ctx, *event)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) DeleteEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	cal, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	event, err := s.events.FindOne(ctx, cal.ID, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	if err := s.bumpCalendar(ctx, cal); err != nil {
		return nil, err
	}
	if err := s.events.DeleteOne(ctx, cal.ID, eventID); err != nil {
		return nil, err
	}
	return event, nil
}

// bumpCalendar advances the sync token by one and persists the calendar.
// Every successful mutation of the calendar or any of its events goes through
// here; reads never do.
func (s *Service) bumpCalendar(ctx context.Context, cal *Calendar) error {
	token, err := BumpSyncToken(cal.SyncToken)
	if err != nil {
		return err
	}
	cal.SyncToken = token
	updated, err := s.calendars.Update(ctx, *cal)
	if err != nil {
		return err
	}
	*cal = updated
	return nil
}

// CalendarID renders the wire-protocol resource identifier of a calendar.
func (s *Service) CalendarID(cal Calendar) string {
	return strconv.FormatInt(cal.ID, 10)
}

// ETag derives a strong cache validator from the event's update timestamp.
// Identical timestamps always yield identical validators.
func (s *Service) ETag(event Event) string {
	sum := sha1.Sum([]byte(event.UpdatedAt.UTC().Format(time.RFC3339Nano)))
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
