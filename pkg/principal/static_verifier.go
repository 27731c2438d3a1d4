package principal

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/klokku/caldav/internal/config"
)

// StaticVerifier authenticates against the accounts listed in the
// application configuration.
type StaticVerifier struct {
	accounts map[string]config.Principal
}

func NewStaticVerifier(accounts []config.Principal) *StaticVerifier {
	byName := make(map[string]config.Principal, len(accounts))
	for _, a := range accounts {
		byName[a.Username] = a
	}
	return &StaticVerifier{accounts: byName}
}

func (v *StaticVerifier) Verify(ctx context.Context, username, password string) (Principal, error) {
	account, ok := v.accounts[username]
	if !ok || subtle.ConstantTimeCompare([]byte(account.Password), []byte(password)) != 1 {
		return Principal{}, fmt.Errorf("verify %q: %w", username, ErrUnauthorized)
	}
	return Principal{
		ID:       account.Username,
		Username: account.Username,
		Timezone: account.Timezone,
	}, nil
}
