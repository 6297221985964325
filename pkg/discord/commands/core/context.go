package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/small-frappuccino/quickvids/pkg/log"
)

// ReplyState tracks what has been sent for an interaction.
//
//	NotResponded -> Responded                 (single initial reply)
//	NotResponded -> Deferred -> follow-ups    (any number)
type ReplyState int

const (
	NotResponded ReplyState = iota
	Deferred
	Responded
)

func (s ReplyState) String() string {
	switch s {
	case NotResponded:
		return "not_responded"
	case Deferred:
		return "deferred"
	case Responded:
		return "responded"
	default:
		return "unknown"
	}
}

// Request carries everything needed to build a context for one interaction.
type Request struct {
	Ctx         context.Context
	Session     *discordgo.Session
	Interaction *discordgo.Interaction
	Responder   Responder
	RequestID   string
}

// InteractionContext is the state shared by every context type.
type InteractionContext struct {
	Session     *discordgo.Session
	Interaction *discordgo.Interaction
	Kind        Kind
	RequestID   string
	Logger      *slog.Logger

	ctx       context.Context
	responder Responder

	mu    sync.Mutex
	state ReplyState
}

// NewInteractionContext builds the shared context. A missing responder falls
// back to the REST callback route; a missing request ID is generated.
func NewInteractionContext(req Request) *InteractionContext {
	ctx := req.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	id := req.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	responder := req.Responder
	if responder == nil {
		responder = SessionResponder{Session: req.Session, Interaction: req.Interaction}
	}
	ic := &InteractionContext{
		Session:     req.Session,
		Interaction: req.Interaction,
		Kind:        Classify(req.Interaction),
		RequestID:   id,
		ctx:         ctx,
		responder:   responder,
	}
	ic.Logger = log.DiscordLogger().With(
		"request_id", id,
		"kind", ic.Kind.String(),
		"guild_id", ic.GuildID(),
		"user_id", ic.AuthorID(),
	)
	return ic
}

// Context returns the context for outbound calls made on behalf of this interaction.
func (c *InteractionContext) Context() context.Context { return c.ctx }

// State returns the current reply state.
func (c *InteractionContext) State() ReplyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns the invoking user, in guilds and DMs alike.
func (c *InteractionContext) User() *discordgo.User {
	if c.Interaction == nil {
		return nil
	}
	if c.Interaction.Member != nil && c.Interaction.Member.User != nil {
		return c.Interaction.Member.User
	}
	return c.Interaction.User
}

// AuthorID returns the invoking user's ID.
func (c *InteractionContext) AuthorID() string {
	if u := c.User(); u != nil {
		return u.ID
	}
	return ""
}

func (c *InteractionContext) GuildID() string {
	if c.Interaction == nil {
		return ""
	}
	return c.Interaction.GuildID
}

func (c *InteractionContext) ChannelID() string {
	if c.Interaction == nil {
		return ""
	}
	return c.Interaction.ChannelID
}

func (c *InteractionContext) Member() *discordgo.Member {
	if c.Interaction == nil {
		return nil
	}
	return c.Interaction.Member
}

func (c *InteractionContext) Entitlements() []*discordgo.Entitlement {
	if c.Interaction == nil {
		return nil
	}
	return c.Interaction.Entitlements
}

// MemberPermissions returns the invoking member's resolved permissions; zero in DMs.
func (c *InteractionContext) MemberPermissions() int64 {
	if m := c.Member(); m != nil {
		return m.Permissions
	}
	return 0
}

// IsDM reports whether the interaction happened outside a guild.
func (c *InteractionContext) IsDM() bool {
	if c.Interaction == nil {
		return false
	}
	return c.Interaction.GuildID == "" || c.Interaction.Context == discordgo.InteractionContextBotDM
}

// respond sends the initial response, moving from NotResponded to next.
func (c *InteractionContext) respond(resp *discordgo.InteractionResponse, next ReplyState) error {
	c.mu.Lock()
	if c.state != NotResponded {
		c.mu.Unlock()
		if next == Deferred {
			return ErrNotDeferred
		}
		return ErrAlreadyResponded
	}
	c.state = next
	c.mu.Unlock()

	if err := c.responder.Respond(resp); err != nil {
		// Nothing reached Discord, so follow-ups would target an unacknowledged
		// interaction.
		c.mu.Lock()
		c.state = NotResponded
		c.mu.Unlock()
		return err
	}
	return nil
}

// Reply sends the initial response, or a follow-up once deferred. A second
// reply without deferring fails with ErrAlreadyResponded.
func (c *InteractionContext) Reply(msg Message) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case NotResponded:
		return c.respond(&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: msg.responseData(),
		}, Responded)
	case Deferred:
		_, err := c.Followup(msg)
		return err
	default:
		return ErrAlreadyResponded
	}
}

// Followup posts a follow-up message after the interaction was deferred.
func (c *InteractionContext) Followup(msg Message) (*discordgo.Message, error) {
	if c.State() != Deferred {
		return nil, ErrNotDeferred
	}
	return c.Session.FollowupMessageCreate(c.Interaction, true, msg.webhookParams())
}

// Defer acknowledges the interaction with a loading state. Only allowed
// before any other response.
func (c *InteractionContext) Defer(ephemeral bool) error {
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return c.respond(resp, Deferred)
}

// ReplyModal opens a modal. Only allowed as the initial response.
func (c *InteractionContext) ReplyModal(m Modal) error {
	return c.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   m.CustomID,
			Title:      m.Title,
			Components: m.Components,
		},
	}, Responded)
}

// EditResponse edits the initial response, or a follow-up when messageID is set.
func (c *InteractionContext) EditResponse(msg Message, messageID string) (*discordgo.Message, error) {
	if messageID == "" || messageID == "@original" {
		return c.Session.InteractionResponseEdit(c.Interaction, msg.webhookEdit())
	}
	return c.Session.FollowupMessageEdit(c.Interaction, messageID, msg.webhookEdit())
}

// FriendlyError replies ephemerally with the support-server template.
func (c *InteractionContext) FriendlyError(message, code string) error {
	return c.Reply(Ephemeral(FriendlyErrorContent(message, code)))
}

func (c *InteractionContext) replyFriendly(fe *FriendlyError) error {
	return c.Reply(Ephemeral(fe.Content()))
}

// commandData returns the application command payload, zero for other kinds.
func (c *InteractionContext) commandData() discordgo.ApplicationCommandInteractionData {
	if c.Interaction == nil {
		return discordgo.ApplicationCommandInteractionData{}
	}
	data, _ := c.Interaction.Data.(discordgo.ApplicationCommandInteractionData)
	return data
}
