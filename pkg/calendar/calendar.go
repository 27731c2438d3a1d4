package calendar

import "time"

// Calendar is one principal's calendar collection. CalendarID is the
// caller-chosen resource identifier (unique per principal); ID is the
// internal database identifier exposed on the wire via Service.CalendarID.
type Calendar struct {
	ID          int64
	CalendarID  string
	PrincipalID string
	Name        string
	Description string
	ProdID      string
	Timezone    string
	URL         string
	Source      string
	Scale       string
	ReadOnly    bool
	SyncToken   string
	XProps      []XProp
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// XProp is a vendor extension property (X-...) carried on a calendar.
// Order and key casing are preserved as uploaded.
type XProp struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is one stored calendar object. ICal holds the raw serialized
// fragment; when it contains multiple VEVENT subcomponents they form one
// recurring series (master plus overrides) sharing EventID as their UID.
type Event struct {
	ID          int64
	EventID     string
	CalendarRef int64
	ICal        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
