package calendar

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

type Repository interface {
	FindByID(ctx context.Context, id int64) (*Calendar, error)
	Find(ctx context.Context, principalID, calendarID string) (*Calendar, error)
	FindAllForPrincipal(ctx context.Context, principalID string) ([]Calendar, error)
	Create(ctx context.Context, cal Calendar) (Calendar, error)
	Update(ctx context.Context, cal Calendar) (Calendar, error)
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const calendarColumns = `id, calendar_id, principal_id, name, description, prod_id, timezone,
       url, source, scale, readonly, sync_token, x_props, created_at, updated_at`

func (r *RepositoryImpl) FindByID(ctx context.Context, id int64) (*Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendar WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *RepositoryImpl) Find(ctx context.Context, principalID, calendarID string) (*Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendar WHERE principal_id = $1 AND calendar_id = $2`
	return r.findOne(ctx, query, principalID, calendarID)
}

func (r *RepositoryImpl) findOne(ctx context.Context, query string, args ...interface{}) (*Calendar, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	cal, err := scanCalendar(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		err := fmt.Errorf("could not query calendar: %w", err)
		log.Error(err)
		return nil, err
	}
	return &cal, nil
}

func (r *RepositoryImpl) FindAllForPrincipal(ctx context.Context, principalID string) ([]Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendar WHERE principal_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, principalID)
	if err != nil {
		err := fmt.Errorf("could not query calendars: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	calendars := make([]Calendar, 0, 4)
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			err := fmt.Errorf("could not scan calendar row: %w", err)
			log.Error(err)
			return nil, err
		}
		calendars = append(calendars, cal)
	}
	return calendars, rows.Err()
}

func (r *RepositoryImpl) Create(ctx context.Context, cal Calendar) (Calendar, error) {
	xProps, err := json.Marshal(cal.XProps)
	if err != nil {
		return Calendar{}, fmt.Errorf("could not encode extension properties: %w", err)
	}

	query := `INSERT INTO calendar (
                calendar_id, principal_id, name, description, prod_id, timezone,
                url, source, scale, readonly, sync_token, x_props
              ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
              RETURNING id, created_at, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		cal.CalendarID, cal.PrincipalID, cal.Name, cal.Description, cal.ProdID, cal.Timezone,
		cal.URL, cal.Source, cal.Scale, cal.ReadOnly, cal.SyncToken, string(xProps))
	if err := row.Scan(&cal.ID, &cal.CreatedAt, &cal.UpdatedAt); err != nil {
		err := fmt.Errorf("could not insert calendar: %w", err)
		log.Error(err)
		return Calendar{}, err
	}
	return cal, nil
}

func (r *RepositoryImpl) Update(ctx context.Context, cal Calendar) (Calendar, error) {
	xProps, err := json.Marshal(cal.XProps)
	if err != nil {
		return Calendar{}, fmt.Errorf("could not encode extension properties: %w", err)
	}

	query := `UPDATE calendar SET
                name = $1, description = $2, prod_id = $3, timezone = $4, url = $5,
                source = $6, scale = $7, readonly = $8, sync_token = $9, x_props = $10,
                updated_at = now()
              WHERE id = $11
              RETURNING updated_at`

	row := r.db.QueryRowContext(ctx, query,
		cal.Name, cal.Description, cal.ProdID, cal.Timezone, cal.URL,
		cal.Source, cal.Scale, cal.ReadOnly, cal.SyncToken, string(xProps), cal.ID)
	if err := row.Scan(&cal.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Calendar{}, ErrCalendarNotFound
		}
		err := fmt.Errorf("could not update calendar: %w", err)
		log.Error(err)
		return Calendar{}, err
	}
	return cal, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCalendar(row scanner) (Calendar, error) {
	var cal Calendar
	var xProps string
	err := row.Scan(&cal.ID, &cal.CalendarID, &cal.PrincipalID, &cal.Name, &cal.Description,
		&cal.ProdID, &cal.Timezone, &cal.URL, &cal.Source, &cal.Scale, &cal.ReadOnly,
		&cal.SyncToken, &xProps, &cal.CreatedAt, &cal.UpdatedAt)
	if err != nil {
		return Calendar{}, err
	}
	if err := json.Unmarshal([]byte(xProps), &cal.XProps); err != nil {
		return Calendar{}, fmt.Errorf("could not decode extension properties: %w", err)
	}
	return cal, nil
}
