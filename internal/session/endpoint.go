package session

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint derives the WebSocket URL from the app's base address and the
// shared secret: http becomes ws, https becomes wss, a trailing slash is
// stripped, and the token is appended as a query credential.
func Endpoint(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base address: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in base address", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = "token=" + escapeToken(token)
	return u.String(), nil
}

// escapeToken percent-encodes the credential; spaces become %20, not "+".
func escapeToken(token string) string {
	return strings.ReplaceAll(url.QueryEscape(token), "+", "%20")
}
