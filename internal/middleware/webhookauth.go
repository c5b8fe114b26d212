// Package middleware provides HTTP middleware for the concierge server.
package middleware

import (
	"crypto/subtle"
	"net/http"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookAuth returns middleware that verifies the Bot API secret token on
// webhook deliveries. With an empty secret it passes everything through,
// for deployments that rely on an unguessable webhook path instead.
func WebhookAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				got := r.Header.Get(secretTokenHeader)
				if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
