package calendar

import (
	"fmt"
	"strconv"
	"strings"
)

// BumpSyncToken increments the trailing integer of a slash-delimited sync
// token by one, leaving every other segment untouched. Tokens have the form
// "<base-url>/ns/sync-token/<n>".
func BumpSyncToken(token string) (string, error) {
	parts := strings.Split(token, "/")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", fmt.Errorf("sync token %q has no numeric tail: %w", token, err)
	}
	parts[len(parts)-1] = strconv.Itoa(n + 1)
	return strings.Join(parts, "/"), nil
}

func initialSyncToken(baseURL string) string {
	return baseURL + "/ns/sync-token/1"
}
