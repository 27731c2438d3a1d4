package calendar

import (
	"context"
	"sync"
	"time"
)

// RepositoryStub is an in-memory Repository used in tests.
type RepositoryStub struct {
	mu     sync.RWMutex
	items  map[int64]Calendar
	nextID int64
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{items: make(map[int64]Calendar), nextID: 1}
}

func (r *RepositoryStub) FindByID(ctx context.Context, id int64) (*Calendar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cal, ok := r.items[id]; ok {
		return &cal, nil
	}
	return nil, nil
}

func (r *RepositoryStub) Find(ctx context.Context, principalID, calendarID string) (*Calendar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cal := range r.items {
		if cal.PrincipalID == principalID && cal.CalendarID == calendarID {
			return &cal, nil
		}
	}
	return nil, nil
}

func (r *RepositoryStub) FindAllForPrincipal(ctx context.Context, principalID string) ([]Calendar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	calendars := make([]Calendar, 0, len(r.items))
	for id := int64(1); id < r.nextID; id++ {
		if cal, ok := r.items[id]; ok && cal.PrincipalID == principalID {
			calendars = append(calendars, cal)
		}
	}
	return calendars, nil
}

func (r *RepositoryStub) Create(ctx context.Context, cal Calendar) (Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cal.ID = r.nextID
	r.nextID++
	cal.CreatedAt = time.Now()
	cal.UpdatedAt = cal.CreatedAt
	r.items[cal.ID] = cal
	return cal, nil
}

func (r *RepositoryStub) Update(ctx context.Context, cal Calendar) (Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[cal.ID]; !ok {
		return Calendar{}, ErrCalendarNotFound
	}
	cal.UpdatedAt = time.Now()
	r.items[cal.ID] = cal
	return cal, nil
}
