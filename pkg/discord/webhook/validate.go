package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// FailureClass groups webhook REST failures by what the operator should do.
type FailureClass string

const (
	ClassAuthDenied         FailureClass = "auth_denied"
	ClassNotFound           FailureClass = "not_found"
	ClassRateLimited        FailureClass = "rate_limited"
	ClassDiscordUnavailable FailureClass = "discord_unavailable"
	ClassUnknown            FailureClass = "unknown"
)

// HookError is a classified webhook failure.
type HookError struct {
	Operation  string
	StatusCode int
	Class      FailureClass
	Temporary  bool
	Cause      error
}

func (e *HookError) Error() string {
	status := "status unknown"
	if e.StatusCode > 0 {
		status = fmt.Sprintf("status %d", e.StatusCode)
	}
	msg := fmt.Sprintf("%s failed (%s, %s)", e.Operation, status, e.Class)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *HookError) Unwrap() error { return e.Cause }

// classify maps a REST error onto a HookError.
func classify(operation string, err error) *HookError {
	he := &HookError{Operation: operation, Class: ClassUnknown, Cause: err}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		he.StatusCode = restErr.Response.StatusCode
		switch code := he.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			he.Class = ClassAuthDenied
		case code == http.StatusNotFound:
			he.Class = ClassNotFound
		case code == http.StatusTooManyRequests:
			he.Class, he.Temporary = ClassRateLimited, true
		case code >= 500 && code < 600:
			he.Class, he.Temporary = ClassDiscordUnavailable, true
		}
		return he
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		he.StatusCode = http.StatusTooManyRequests
		he.Class, he.Temporary = ClassRateLimited, true
	case strings.Contains(msg, "exceeded max retries"):
		// discordgo reports an exhausted 502 as a plain error.
		he.StatusCode = http.StatusBadGateway
		he.Class, he.Temporary = ClassDiscordUnavailable, true
	}
	return he
}

// Validate checks that the hook's webhook exists and its token is accepted.
func (h *UsageHook) Validate(ctx context.Context) error {
	if h == nil {
		return errors.New("validate usage hook: not configured")
	}
	_, err := h.session.WebhookWithToken(h.id, h.token,
		discordgo.WithContext(ctx),
		discordgo.WithRestRetries(0),
		discordgo.WithRetryOnRatelimit(false),
	)
	if err != nil {
		return classify("webhook lookup", err)
	}
	return nil
}
