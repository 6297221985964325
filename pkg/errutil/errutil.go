package errutil

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/log"
)

// HandleDiscordError runs fn and logs a failure to the error category. REST
// failures carry the HTTP status and response body. The error is returned
// unchanged so callers can still match on it.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}

	err := fn()
	if err == nil {
		return nil
	}

	log.ErrorLoggerRaw().Error("Discord operation failed", DiscordErrorAttrs(operation, err)...)
	return err
}

// DiscordErrorAttrs builds the slog attributes describing a Discord failure.
func DiscordErrorAttrs(operation string, err error) []any {
	attrs := []any{"operation", operation, "error", err}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Response != nil {
			attrs = append(attrs, "status", restErr.Response.StatusCode)
		}
		if len(restErr.ResponseBody) > 0 {
			attrs = append(attrs, "body", string(restErr.ResponseBody))
		}
		if restErr.Message != nil {
			attrs = append(attrs, slog.Group("discord", "code", restErr.Message.Code, "message", restErr.Message.Message))
		}
	}
	return attrs
}
