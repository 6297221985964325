// Package webhook posts usage logs to a Discord webhook.
package webhook

import (
	"errors"
	"net/url"
	"strings"
)

var (
	errMissingURL = errors.New("missing webhook url")
	errBadURL     = errors.New("invalid webhook url")
)

// ParseURL extracts the webhook ID and token from
// https://discord.com/api/webhooks/{id}/{token}.
func ParseURL(raw string) (id, token string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errMissingURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", errBadURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p != "webhooks" {
			continue
		}
		if i+2 >= len(parts) {
			break
		}
		id, token = strings.TrimSpace(parts[i+1]), strings.TrimSpace(parts[i+2])
		if id == "" || token == "" {
			break
		}
		return id, token, nil
	}
	return "", "", errBadURL
}
