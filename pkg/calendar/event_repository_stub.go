package calendar

import (
	"context"
	"sync"
	"time"
)

// EventRepositoryStub is an in-memory EventRepository used in tests.
// It preserves insertion order, like the SQL implementation's ORDER BY id.
type EventRepositoryStub struct {
	mu     sync.RWMutex
	items  []Event
	nextID int64

	// FailCreateAll makes the next CreateAll call fail with the given error,
	// to exercise failure paths inside locked sections.
	FailCreateAll error
}

func NewEventRepositoryStub() *EventRepositoryStub {
	return &EventRepositoryStub{nextID: 1}
}

func (r *EventRepositoryStub) FindByCalendar(ctx context.Context, calendarRef int64) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make([]Event, 0, len(r.items))
	for _, event := range r.items {
		if event.CalendarRef == calendarRef {
			events = append(events, event)
		}
	}
	return events, nil
}

func (r *EventRepositoryStub) FindOne(ctx context.Context, calendarRef int64, eventID string) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, event := range r.items {
		if event.CalendarRef == calendarRef && event.EventID == eventID {
			found := event
			return &found, nil
		}
	}
	return nil, nil
}

func (r *EventRepositoryStub) Create(ctx context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(event), nil
}

func (r *EventRepositoryStub) create(event Event) Event {
	event.ID = r.nextID
	r.nextID++
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	r.items = append(r.items, event)
	return event
}

func (r *EventRepositoryStub) CreateAll(ctx context.Context, events []Event) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreateAll != nil {
		err := r.FailCreateAll
		r.FailCreateAll = nil
		return nil, err
	}
	created := make([]Event, 0, len(events))
	for _, event := range events {
		created = append(created, r.create(event))
	}
	return created, nil
}

func (r *EventRepositoryStub) Update(ctx context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.items {
		if existing.CalendarRef == event.CalendarRef && existing.EventID == event.EventID {
			event.ID = existing.ID
			event.CreatedAt = existing.CreatedAt
			event.UpdatedAt = time.Now()
			r.items[i] = event
			return event, nil
		}
	}
	return Event{}, ErrEventNotFound
}

func (r *EventRepositoryStub) DeleteOne(ctx context.Context, calendarRef int64, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, event := range r.items {
		if event.CalendarRef == calendarRef && event.EventID == eventID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *EventRepositoryStub) DeleteByCalendar(ctx context.Context, calendarRef int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []Event
	var deleted int64
	for _, event := range r.items {
		if event.CalendarRef == calendarRef {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	r.items = kept
	return deleted, nil
}
