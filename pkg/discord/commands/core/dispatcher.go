package core

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/log"
)

// Client routes interactions to the handlers of a registry. Every handler runs
// inside a failure boundary: errors and panics are logged and never reach the
// user verbatim.
type Client struct {
	registry *Registry
}

func NewClient(registry *Registry) *Client {
	return &Client{registry: registry}
}

// Registry returns the registry the client routes against.
func (c *Client) Registry() *Registry { return c.registry }

// Dispatch builds the typed context for req and routes it. Pings are answered
// directly with a pong.
func (c *Client) Dispatch(req Request) {
	base := NewInteractionContext(req)
	switch base.Kind {
	case KindPing:
		if err := base.responder.Respond(&discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}); err != nil {
			base.Logger.Warn("Failed to answer ping", "error", err)
		}
	case KindSlashCommand, KindContextMenu:
		c.HandleCommand(base)
	case KindAutocomplete:
		c.HandleAutocomplete(base)
	case KindButton:
		c.HandleButton(base)
	case KindModalSubmit:
		c.HandleModal(base)
	default:
		base.Logger.Warn("Dropping interaction of unknown type")
	}
}

func (c *Client) lookup(base *InteractionContext) (*Command, discordgo.ApplicationCommandInteractionData, bool) {
	data := base.commandData()
	if c.registry == nil {
		return nil, data, false
	}
	cmd, ok := c.registry.Command(data.Name, base.GuildID())
	return cmd, data, ok
}

// HandleCommand runs a slash command or context menu handler. Unknown commands
// are logged and left unanswered.
func (c *Client) HandleCommand(base *InteractionContext) {
	cmd, data, ok := c.lookup(base)
	if !ok || !cmd.HasHandler() {
		base.Logger.Error("No handler for command", "command", data.Name)
		return
	}
	logger := base.Logger.With("command", cmd.Name, "extension", extensionName(cmd.extension))
	base.Logger = logger

	err := c.guard(base, func() error {
		if cmd.Type == discordgo.ChatApplicationCommand {
			return cmd.slash(NewSlashCommandContext(base, cmd))
		}
		return cmd.contextMenu(NewContextMenuContext(base, cmd))
	})
	if err == nil {
		return
	}

	var friendly *FriendlyError
	if errors.As(err, &friendly) {
		logger.Info("Command ended with a user-facing error", "code", friendly.Code, "error", err)
		if rerr := c.deliver(base, friendly.Content()); rerr != nil {
			logger.Warn("Failed to deliver friendly error", "error", rerr)
		}
		return
	}

	log.ErrorLoggerRaw().Error("Command handler failed",
		"request_id", base.RequestID, "command", cmd.Name, "error", err)
	if rerr := c.deliver(base, GenericErrorContent(GenericErrorCode)); rerr != nil {
		logger.Warn("Failed to deliver error reply", "error", rerr)
	}
}

// deliver sends an ephemeral error text in whatever way the reply state still allows.
func (c *Client) deliver(base *InteractionContext, content string) error {
	if base.State() == Responded {
		_, err := base.Session.FollowupMessageCreate(base.Interaction, true, Ephemeral(content).webhookParams())
		return err
	}
	return base.Reply(Ephemeral(content))
}

// HandleAutocomplete runs the binding of the focused option. Misses produce no reply.
func (c *Client) HandleAutocomplete(base *InteractionContext) {
	cmd, data, ok := c.lookup(base)
	if !ok {
		base.Logger.Warn("No command for autocomplete", "command", data.Name)
		return
	}
	actx := NewAutocompleteContext(base, cmd)
	if actx.Focused == nil {
		base.Logger.Warn("Autocomplete without focused option", "command", cmd.Name)
		return
	}
	fn, ok := cmd.AutocompleteFor(actx.Focused.Name)
	if !ok {
		base.Logger.Warn("No autocomplete binding", "command", cmd.Name, "option", actx.Focused.Name)
		return
	}
	if err := c.guard(base, func() error { return fn(actx) }); err != nil {
		log.ErrorLoggerRaw().Error("Autocomplete handler failed",
			"request_id", base.RequestID, "command", cmd.Name, "option", actx.Focused.Name, "error", err)
	}
}

// HandleButton runs the first component callback matching the custom ID.
func (c *Client) HandleButton(base *InteractionContext) {
	c.handleComponent(base, "button")
}

// HandleModal runs the first component callback matching the modal custom ID.
func (c *Client) HandleModal(base *InteractionContext) {
	c.handleComponent(base, "modal")
}

func (c *Client) handleComponent(base *InteractionContext, what string) {
	cctx := NewComponentContext(base, nil)
	if c.registry == nil {
		return
	}
	cb, ok := c.registry.Component(cctx.CustomID)
	if !ok || cb.handler == nil {
		base.Logger.Warn("No component callback", "type", what, "custom_id", cctx.CustomID)
		return
	}
	cctx.Component = cb
	err := c.guard(base, func() error { return cb.handler(cctx) })
	if err == nil {
		return
	}
	var friendly *FriendlyError
	if errors.As(err, &friendly) {
		if rerr := c.deliver(base, friendly.Content()); rerr != nil {
			base.Logger.Warn("Failed to deliver friendly error", "error", rerr)
		}
		return
	}
	log.ErrorLoggerRaw().Error("Component handler failed",
		"request_id", base.RequestID, "type", what, "custom_id", cctx.CustomID,
		"extension", extensionName(cb.extension), "error", err)
}

// guard converts a panic in fn into an error.
func (c *Client) guard(base *InteractionContext, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			base.Logger.Error("Handler panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn()
}
