package principal

import (
	"context"
	"errors"
)

// Principal is the authenticated identity owning calendars. ID doubles as the
// CalDAV principal identifier and equals the verified username.
type Principal struct {
	ID       string
	Username string
	Timezone string
}

var ErrUnauthorized = errors.New("invalid credentials")

// Verifier checks a username/password pair and returns the matching
// principal. Implementations must return ErrUnauthorized (possibly wrapped)
// when the credentials do not match any account.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (Principal, error)
}
