package principal

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const PrincipalKey contextKey = "principal"

var ErrNoPrincipal = errors.New("principal not found")

// Current retrieves the authenticated principal from the context.
// Returns ErrNoPrincipal if no authentication middleware ran for this request.
func Current(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	if !ok {
		log.Trace("principal not found in context")
		return Principal{}, ErrNoPrincipal
	}
	return p, nil
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}
