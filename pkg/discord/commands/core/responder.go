package core

import (
	"github.com/bwmarrin/discordgo"
)

// Responder delivers the initial response of an interaction. Over the HTTP
// endpoint it is the webhook reply itself; otherwise it is the callback route.
type Responder interface {
	Respond(resp *discordgo.InteractionResponse) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(resp *discordgo.InteractionResponse) error

func (f ResponderFunc) Respond(resp *discordgo.InteractionResponse) error { return f(resp) }

// SessionResponder posts the initial response to the interaction callback route.
type SessionResponder struct {
	Session     *discordgo.Session
	Interaction *discordgo.Interaction
}

func (r SessionResponder) Respond(resp *discordgo.InteractionResponse) error {
	return r.Session.InteractionRespond(r.Interaction, resp)
}

// Message is the payload accepted by Reply, EditResponse and EditOrigin.
type Message struct {
	Content         string
	Embeds          []*discordgo.MessageEmbed
	Components      []discordgo.MessageComponent
	AllowedMentions *discordgo.MessageAllowedMentions
	Ephemeral       bool
}

// Text is shorthand for a content-only message.
func Text(content string) Message { return Message{Content: content} }

// Ephemeral is shorthand for a content-only ephemeral message.
func Ephemeral(content string) Message { return Message{Content: content, Ephemeral: true} }

func (m Message) flags() discordgo.MessageFlags {
	if m.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (m Message) responseData() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Content:         m.Content,
		Embeds:          m.Embeds,
		Components:      m.Components,
		AllowedMentions: m.AllowedMentions,
		Flags:           m.flags(),
	}
}

func (m Message) webhookParams() *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Content:         m.Content,
		Embeds:          m.Embeds,
		Components:      m.Components,
		AllowedMentions: m.AllowedMentions,
		Flags:           m.flags(),
	}
}

func (m Message) webhookEdit() *discordgo.WebhookEdit {
	edit := &discordgo.WebhookEdit{AllowedMentions: m.AllowedMentions}
	content := m.Content
	edit.Content = &content
	if m.Embeds != nil {
		embeds := m.Embeds
		edit.Embeds = &embeds
	}
	if m.Components != nil {
		components := m.Components
		edit.Components = &components
	}
	return edit
}

// Modal is the payload of ReplyModal.
type Modal struct {
	CustomID   string
	Title      string
	Components []discordgo.MessageComponent
}
