package calendar

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/klokku/caldav/internal/config"
	"github.com/klokku/caldav/internal/lock"
	"github.com/klokku/caldav/pkg/principal"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = principal.WithPrincipal(context.Background(), principal.Principal{
	ID:       "alice",
	Username: "alice",
	Timezone: "Europe/Warsaw",
})

// trackingLocker counts acquisitions and releases to verify lock discipline.
type trackingLocker struct {
	inner    lock.Locker
	acquired int
	released int
}

func (l *trackingLocker) Acquire(ctx context.Context, scope string) (*lock.Lock, error) {
	l.acquired++
	return l.inner.Acquire(ctx, scope)
}

func (l *trackingLocker) Release(ctx context.Context, held *lock.Lock) error {
	l.released++
	return l.inner.Release(ctx, held)
}

func newTestService() (*Service, *RepositoryStub, *EventRepositoryStub, *trackingLocker) {
	calRepo := NewRepositoryStub()
	eventRepo := NewEventRepositoryStub()
	locker := &trackingLocker{inner: lock.NewMemoryLocker()}
	verifier := principal.NewStaticVerifier([]config.Principal{
		{Username: "alice", Password: "secret", Timezone: "Europe/Warsaw"},
	})
	svc := NewService(calRepo, eventRepo, locker, verifier, "http://localhost:8080", "en")
	return svc, calRepo, eventRepo, locker
}

func TestService_Authenticate(t *testing.T) {
	t.Run("valid credentials yield the principal and its default calendar", func(t *testing.T) {
		svc, calRepo, _, _ := newTestService()

		p, err := svc.Authenticate(context.Background(), "alice", "secret")
		require.NoError(t, err)
		assert.Equal(t, "alice", p.ID)
		assert.Equal(t, "Europe/Warsaw", p.Timezone)

		cal, err := calRepo.Find(context.Background(), "alice", "alice")
		require.NoError(t, err)
		require.NotNil(t, cal)
		assert.Equal(t, "Calendar", cal.Name)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		_, err := svc.Authenticate(context.Background(), "alice", "wrong")
		assert.ErrorIs(t, err, principal.ErrUnauthorized)
	})

	t.Run("unknown account is rejected", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		_, err := svc.Authenticate(context.Background(), "mallory", "secret")
		assert.ErrorIs(t, err, principal.ErrUnauthorized)
	})
}

func TestService_CreateCalendar(t *testing.T) {
	t.Run("creates a calendar with default metadata", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		cal, err := svc.CreateCalendar(ctx, CreateCalendarParams{CalendarID: "team"})
		require.NoError(t, err)
		assert.Equal(t, "team", cal.CalendarID)
		assert.Equal(t, "team", cal.Name)
		assert.Equal(t, "alice", cal.PrincipalID)
		assert.Equal(t, "//localhost:8080//caldav//EN", cal.ProdID)
		assert.Equal(t, "Europe/Warsaw", cal.Timezone)
		assert.Equal(t, "http://localhost:8080/ns/sync-token/1", cal.SyncToken)
	})

	t.Run("creating the same calendarId twice returns the existing record", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		first, err := svc.CreateCalendar(ctx, CreateCalendarParams{CalendarID: "team"})
		require.NoError(t, err)
		second, err := svc.CreateCalendar(ctx, CreateCalendarParams{CalendarID: "team", Name: "Other"})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Name, second.Name)
	})

	t.Run("requires a principal in context", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		_, err := svc.CreateCalendar(context.Background(), CreateCalendarParams{CalendarID: "team"})
		assert.ErrorIs(t, err, principal.ErrNoPrincipal)
	})
}

func TestService_GetCalendar(t *testing.T) {
	t.Run("creates the calendar with defaults when absent", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		cal, err := svc.GetCalendar(ctx, "personal")
		require.NoError(t, err)
		assert.Equal(t, "personal", cal.CalendarID)
		assert.Equal(t, "Calendar", cal.Name)
		assert.Equal(t, "http://localhost:8080/ns/sync-token/1", cal.SyncToken)
	})

	t.Run("is idempotent", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		first, err := svc.GetCalendar(ctx, "personal")
		require.NoError(t, err)
		second, err := svc.GetCalendar(ctx, "personal")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("resolves a numeric identifier as the internal id", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		created, err := svc.GetCalendar(ctx, "personal")
		require.NoError(t, err)

		resolved, err := svc.GetCalendar(ctx, svc.CalendarID(*created))
		require.NoError(t, err)
		assert.Equal(t, created.ID, resolved.ID)
		assert.Equal(t, "personal", resolved.CalendarID)
	})

	t.Run("does not resolve another principal's calendar by internal id", func(t *testing.T) {
		svc, calRepo, _, _ := newTestService()

		other, err := calRepo.Create(context.Background(), Calendar{
			CalendarID:  "bobs",
			PrincipalID: "bob",
			SyncToken:   "http://localhost:8080/ns/sync-token/1",
		})
		require.NoError(t, err)

		cal, err := svc.GetCalendar(ctx, svc.CalendarID(other))
		require.NoError(t, err)
		// A new calendar is created for alice instead.
		assert.Equal(t, "alice", cal.PrincipalID)
		assert.NotEqual(t, other.ID, cal.ID)
	})
}

func TestService_EventLifecycle(t *testing.T) {
	body := icsDoc(vevent("evt-1", "DTSTART:20240110T100000Z", "SUMMARY:Standup")...)

	t.Run("each mutation advances the sync token by one", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		cal, err := svc.CreateCalendar(ctx, CreateCalendarParams{CalendarID: "team"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/ns/sync-token/1", cal.SyncToken)

		_, err = svc.CreateEvent(ctx, "team", "evt-1", body)
		require.NoError(t, err)
		cal, err = svc.GetCalendar(ctx, "team")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/ns/sync-token/2", cal.SyncToken)

		_, err = svc.UpdateEvent(ctx, "team", "evt-1", body)
		require.NoError(t, err)
		cal, err = svc.GetCalendar(ctx, "team")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/ns/sync-token/3", cal.SyncToken)

		_, err = svc.DeleteEvent(ctx, "team", "evt-1")
		require.NoError(t, err)
		cal, err = svc.GetCalendar(ctx, "team")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/ns/sync-token/4", cal.SyncToken)
	})

	t.Run("stores and returns the uploaded body verbatim", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		created, err := svc.CreateEvent(ctx, "team", "evt-1", body)
		require.NoError(t, err)
		assert.Equal(t, body, created.ICal)

		fetched, err := svc.GetEvent(ctx, "team", "evt-1")
		require.NoError(t, err)
		require.NotNil(t, fetched)
		assert.Equal(t, body, fetched.ICal)
	})

	t.Run("creating an existing event fails", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		_, err := svc.CreateEvent(ctx, "team", "evt-1", body)
		require.NoError(t, err)
		_, err = svc.CreateEvent(ctx, "team", "evt-1", body)
		assert.ErrorIs(t, err, ErrEventExists)
	})

	t.Run("a failed create does not advance the sync token", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		_, err := svc.CreateEvent(ctx, "team", "evt-1", body)
		require.NoError(t, err)
		_, err = svc.CreateEvent(ctx, "team", "evt-1", body)
		require.Error(t, err)

		cal, err := svc.GetCalendar(ctx, "team")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/ns/sync-token/2", cal.SyncToken)
	})

	t.Run("updating a missing event fails", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		_, err := svc.UpdateEvent(ctx, "team", "ghost", body)
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("deleting a missing event fails", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		_, err := svc.DeleteEvent(ctx, "team", "ghost")
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("delete returns the removed event", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		_, err := svc.CreateEvent(ctx, "team", "evt-1", body)
		require.NoError(t, err)

		deleted, err := svc.DeleteEvent(ctx, "team", "evt-1")
		require.NoError(t, err)
		assert.Equal(t, "evt-1", deleted.EventID)

		fetched, err := svc.GetEvent(ctx, "team", "evt-1")
		require.NoError(t, err)
		assert.Nil(t, fetched)
	})
}

func TestService_UpdateCalendar(t *testing.T) {
	upload := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//client//EN",
		"NAME:Team",
		"X-WR-CALNAME:Team",
		"BEGIN:VEVENT",
		"UID:evt-a",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240110T100000Z",
		"RRULE:FREQ=WEEKLY",
		"SUMMARY:Master",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:evt-a",
		"DTSTAMP:20240101T000000Z",
		"RECURRENCE-ID:20240117T100000Z",
		"DTSTART:20240117T110000Z",
		"SUMMARY:Override",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:evt-b",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240111T100000Z",
		"SUMMARY:Other",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n") + "\r\n"

	t.Run("replaces metadata and groups events by UID", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		cal, err := svc.UpdateCalendar(ctx, "team", upload)
		require.NoError(t, err)
		assert.Equal(t, "Team", cal.Name)
		assert.Equal(t, "-//client//EN", cal.ProdID)
		assert.Equal(t, []XProp{{Key: "X-WR-CALNAME", Value: "Team"}}, cal.XProps)
		assert.Equal(t, "http://localhost:8080/ns/sync-token/2", cal.SyncToken)

		events, err := svc.GetEventsForCalendar(ctx, "team")
		require.NoError(t, err)
		require.Len(t, events, 2)

		assert.Equal(t, "evt-a", events[0].EventID)
		assert.Equal(t, 2, strings.Count(events[0].ICal, "BEGIN:VEVENT"))
		assert.Equal(t, "evt-b", events[1].EventID)
		assert.Equal(t, 1, strings.Count(events[1].ICal, "BEGIN:VEVENT"))
	})

	t.Run("is destructive: previous events are gone", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		_, err := svc.CreateEvent(ctx, "team", "old-event",
			icsDoc(vevent("old-event", "DTSTART:20240101T100000Z")...))
		require.NoError(t, err)

		_, err = svc.UpdateCalendar(ctx, "team", upload)
		require.NoError(t, err)

		fetched, err := svc.GetEvent(ctx, "team", "old-event")
		require.NoError(t, err)
		assert.Nil(t, fetched)
	})

	t.Run("an upload without events empties the calendar", func(t *testing.T) {
		svc, _, _, _ := newTestService()

		_, err := svc.UpdateCalendar(ctx, "team", upload)
		require.NoError(t, err)
		_, err = svc.UpdateCalendar(ctx, "team", icsDoc("NAME:Empty"))
		require.NoError(t, err)

		events, err := svc.GetEventsForCalendar(ctx, "team")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("rejects malformed uploads before touching anything", func(t *testing.T) {
		svc, _, _, locker := newTestService()

		_, err := svc.UpdateCalendar(ctx, "team", "garbage")
		assert.ErrorIs(t, err, ErrMalformedICS)
		assert.Zero(t, locker.acquired)
	})

	t.Run("releases the lock and keeps the original error on storage failure", func(t *testing.T) {
		svc, _, eventRepo, locker := newTestService()

		boom := errors.New("storage down")
		eventRepo.FailCreateAll = boom

		_, err := svc.UpdateCalendar(ctx, "team", upload)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, locker.acquired)
		assert.Equal(t, 1, locker.released)
	})

	t.Run("releases the lock on success", func(t *testing.T) {
		svc, _, _, locker := newTestService()

		_, err := svc.UpdateCalendar(ctx, "team", upload)
		require.NoError(t, err)
		assert.Equal(t, locker.acquired, locker.released)
	})
}

func TestService_GetEventsByDate(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.CreateEvent(ctx, "team", "january",
		icsDoc(vevent("january", "DTSTART:20240110T100000Z", "DTEND:20240110T110000Z")...))
	require.NoError(t, err)
	_, err = svc.CreateEvent(ctx, "team", "june",
		icsDoc(vevent("june", "DTSTART:20240615T100000Z", "DTEND:20240615T110000Z")...))
	require.NoError(t, err)

	t.Run("returns only events intersecting the window", func(t *testing.T) {
		start, end := window("20240101T000000Z", "20240201T000000Z")
		events, err := svc.GetEventsByDate(ctx, "team", start, end)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "january", events[0].EventID)
	})

	t.Run("open bounds return everything", func(t *testing.T) {
		events, err := svc.GetEventsByDate(ctx, "team", mo.None[time.Time](), mo.None[time.Time]())
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})
}

func TestService_GetCalendarsForPrincipal(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.CreateCalendar(ctx, CreateCalendarParams{CalendarID: "work"})
	require.NoError(t, err)
	_, err = svc.CreateCalendar(ctx, CreateCalendarParams{CalendarID: "home"})
	require.NoError(t, err)

	calendars, err := svc.GetCalendarsForPrincipal(ctx)
	require.NoError(t, err)
	require.Len(t, calendars, 2)
	assert.Equal(t, "work", calendars[0].CalendarID)
	assert.Equal(t, "home", calendars[1].CalendarID)
}

func TestService_ETag(t *testing.T) {
	svc, _, _, _ := newTestService()
	at := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

	t.Run("is deterministic for the same update timestamp", func(t *testing.T) {
		a := svc.ETag(Event{EventID: "a", UpdatedAt: at})
		b := svc.ETag(Event{EventID: "b", UpdatedAt: at})
		assert.Equal(t, a, b)
	})

	t.Run("changes when the update timestamp changes", func(t *testing.T) {
		a := svc.ETag(Event{UpdatedAt: at})
		b := svc.ETag(Event{UpdatedAt: at.Add(time.Second)})
		assert.NotEqual(t, a, b)
	})

	t.Run("is a quoted strong validator", func(t *testing.T) {
		tag := svc.ETag(Event{UpdatedAt: at})
		assert.True(t, strings.HasPrefix(tag, `"`))
		assert.True(t, strings.HasSuffix(tag, `"`))
	})
}
