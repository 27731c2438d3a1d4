package lock

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// PostgresLocker implements Locker on top of Postgres session-level advisory
// locks. Each acquired lock pins a dedicated connection for its lifetime; the
// lock is tied to that session, so releasing closes the connection as well.
type PostgresLocker struct {
	db *sql.DB
}

func NewPostgresLocker(db *sql.DB) *PostgresLocker {
	return &PostgresLocker{db: db}
}

func (p *PostgresLocker) Acquire(ctx context.Context, scope string) (*Lock, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		err := fmt.Errorf("could not obtain connection for lock %q: %w", scope, err)
		log.Error(err)
		return nil, err
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1))", scope); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			log.Errorf("failed to close connection after lock failure: %v", closeErr)
		}
		err := fmt.Errorf("could not acquire advisory lock %q: %w", scope, err)
		log.Error(err)
		return nil, err
	}

	return &Lock{
		Scope: scope,
		release: func(ctx context.Context) error {
			_, unlockErr := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", scope)
			closeErr := conn.Close()
			if unlockErr != nil {
				return fmt.Errorf("could not release advisory lock %q: %w", scope, unlockErr)
			}
			return closeErr
		},
	}, nil
}

func (p *PostgresLocker) Release(ctx context.Context, l *Lock) error {
	if l == nil || l.release == nil {
		return nil
	}
	return l.release(ctx)
}
