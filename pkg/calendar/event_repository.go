package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

type EventRepository interface {
	FindByCalendar(ctx context.Context, calendarRef int64) ([]Event, error)
	FindOne(ctx context.Context, calendarRef int64, eventID string) (*Event, error)
	Create(ctx context.Context, event Event) (Event, error)
	CreateAll(ctx context.Context, events []Event) ([]Event, error)
	Update(ctx context.Context, event Event) (Event, error)
	DeleteOne(ctx context.Context, calendarRef int64, eventID string) error
	DeleteByCalendar(ctx context.Context, calendarRef int64) (int64, error)
}

type EventRepositoryImpl struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepositoryImpl {
	return &EventRepositoryImpl{db: db}
}

const eventColumns = `id, event_id, calendar_ref, ical, created_at, updated_at`

func (r *EventRepositoryImpl) FindByCalendar(ctx context.Context, calendarRef int64) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_event WHERE calendar_ref = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, calendarRef)
	if err != nil {
		err := fmt.Errorf("could not query calendar events: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, 16)
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.ID, &event.EventID, &event.CalendarRef, &event.ICal,
			&event.CreatedAt, &event.UpdatedAt); err != nil {
			err := fmt.Errorf("could not scan calendar event row: %w", err)
			log.Error(err)
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *EventRepositoryImpl) FindOne(ctx context.Context, calendarRef int64, eventID string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_event WHERE calendar_ref = $1 AND event_id = $2`
	var event Event
	err := r.db.QueryRowContext(ctx, query, calendarRef, eventID).
		Scan(&event.ID, &event.EventID, &event.CalendarRef, &event.ICal, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		err := fmt.Errorf("could not query calendar event: %w", err)
		log.Error(err)
		return nil, err
	}
	return &event, nil
}

func (r *EventRepositoryImpl) Create(ctx context.Context, event Event) (Event, error) {
	query := `INSERT INTO calendar_event (event_id, calendar_ref, ical)
              VALUES ($1, $2, $3)
              RETURNING id, created_at, updated_at`
	row := r.db.QueryRowContext(ctx, query, event.EventID, event.CalendarRef, event.ICal)
	if err := row.Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt); err != nil {
		err := fmt.Errorf("could not insert calendar event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return event, nil
}

func (r *EventRepositoryImpl) CreateAll(ctx context.Context, events []Event) ([]Event, error) {
	created := make([]Event, 0, len(events))
	for _, event := range events {
		stored, err := r.Create(ctx, event)
		if err != nil {
			return nil, err
		}
		created = append(created, stored)
	}
	return created, nil
}

func (r *EventRepositoryImpl) Update(ctx context.Context, event Event) (Event, error) {
	query := `UPDATE calendar_event SET ical = $1, updated_at = now()
              WHERE calendar_ref = $2 AND event_id = $3
              RETURNING id, updated_at`
	row := r.db.QueryRowContext(ctx, query, event.ICal, event.CalendarRef, event.EventID)
	if err := row.Scan(&event.ID, &event.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		err := fmt.Errorf("could not update calendar event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return event, nil
}

func (r *EventRepositoryImpl) DeleteOne(ctx context.Context, calendarRef int64, eventID string) error {
	query := `DELETE FROM calendar_event WHERE calendar_ref = $1 AND event_id = $2`
	if _, err := r.db.ExecContext(ctx, query, calendarRef, eventID); err != nil {
		err := fmt.Errorf("could not delete calendar event: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *EventRepositoryImpl) DeleteByCalendar(ctx context.Context, calendarRef int64) (int64, error) {
	query := `DELETE FROM calendar_event WHERE calendar_ref = $1`
	result, err := r.db.ExecContext(ctx, query, calendarRef)
	if err != nil {
		err := fmt.Errorf("could not delete calendar events: %w", err)
		log.Error(err)
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
