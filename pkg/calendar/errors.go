package calendar

import "errors"

var (
	// ErrMalformedICS indicates an uploaded document that does not parse as
	// iCalendar, or that lacks an expected component.
	ErrMalformedICS = errors.New("malformed iCalendar document")

	// ErrEventExists is returned by CreateEvent when the (calendar, eventId)
	// pair is already taken.
	ErrEventExists = errors.New("event already exists")

	// ErrEventNotFound is returned by UpdateEvent and DeleteEvent when no
	// matching record exists.
	ErrEventNotFound = errors.New("event does not exist")

	ErrCalendarNotFound = errors.New("calendar not found")
)
