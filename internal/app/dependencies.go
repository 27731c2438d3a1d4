package app

import (
	"database/sql"

	"github.com/klokku/caldav/internal/config"
	"github.com/klokku/caldav/internal/lock"
	"github.com/klokku/caldav/pkg/calendar"
	"github.com/klokku/caldav/pkg/dav"
	"github.com/klokku/caldav/pkg/principal"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Verifier principal.Verifier
	Locker   lock.Locker

	CalendarRepository *calendar.RepositoryImpl
	EventRepository    *calendar.EventRepositoryImpl
	CalendarService    *calendar.Service

	DavHandler *dav.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *sql.DB, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Verifier = principal.NewStaticVerifier(cfg.Principals)
	deps.Locker = lock.NewPostgresLocker(db)

	deps.CalendarRepository = calendar.NewRepository(db)
	deps.EventRepository = calendar.NewEventRepository(db)
	deps.CalendarService = calendar.NewService(
		deps.CalendarRepository,
		deps.EventRepository,
		deps.Locker,
		deps.Verifier,
		cfg.Host,
		cfg.Locale,
	)

	deps.DavHandler = dav.NewHandler(deps.CalendarService, "/dav")

	return deps
}
