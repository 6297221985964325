package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/log"
	"github.com/small-frappuccino/quickvids/pkg/task"
)

const sendTimeout = 5 * time.Second

// Event is one usage log entry. Type names the log stream ("usage").
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

const taskUsage = "usage_hook.send"

// UsageHook forwards usage events to a Discord webhook. Delivery is best
// effort: events are queued, retried on rate limits and 5xx, and failures
// never reach the caller of Log.
type UsageHook struct {
	session *discordgo.Session
	id      string
	token   string
	logger  *slog.Logger
	queue   *task.Router
}

// NewUsageHook returns nil, nil for an empty URL so callers can keep a nil hook.
func NewUsageHook(session *discordgo.Session, rawURL string) (*UsageHook, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, nil
	}
	if session == nil {
		return nil, fmt.Errorf("usage hook: nil discord session")
	}
	id, token, err := ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("usage hook: %w", err)
	}
	cfg := task.Defaults()
	cfg.AttemptTimeout = sendTimeout
	h := &UsageHook{
		session: session,
		id:      id,
		token:   token,
		logger:  log.ApplicationLogger().With("component", "usage_hook"),
		queue:   task.NewRouter(cfg),
	}
	h.queue.Handle(taskUsage, h.deliver)
	return h, nil
}

// Send posts the event and waits for the result.
func (h *UsageHook) Send(ctx context.Context, ev Event) error {
	if h == nil {
		return nil
	}
	body, err := json.MarshalIndent(ev.Data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode usage event: %w", err)
	}
	params := &discordgo.WebhookParams{
		Content:         fmt.Sprintf("**%s**\n```json\n%s\n```", ev.Type, body),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if _, err := h.session.WebhookExecute(h.id, h.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return classify("webhook execute", err)
	}
	return nil
}

func (h *UsageHook) deliver(ctx context.Context, payload any) error {
	ev, ok := payload.(Event)
	if !ok {
		return task.Permanent(fmt.Errorf("unexpected payload %T", payload))
	}
	err := h.Send(ctx, ev)
	var he *HookError
	if errors.As(err, &he) && !he.Temporary {
		return task.Permanent(err)
	}
	return err
}

// Log queues the event for delivery. Safe on a nil hook.
func (h *UsageHook) Log(typ string, data map[string]any) {
	if h == nil {
		return
	}
	// All events share one group so they arrive in order.
	err := h.queue.Dispatch(task.Task{
		Type:    taskUsage,
		Payload: Event{Type: typ, Data: data},
		Options: task.Options{GroupKey: h.id},
	})
	if err != nil {
		h.logger.Debug("Usage event dropped", "type", typ, "error", err)
	}
}

// Close drops queued events and waits for the in-flight one. Safe on a nil hook.
func (h *UsageHook) Close() {
	if h == nil {
		return
	}
	h.queue.Close()
}
