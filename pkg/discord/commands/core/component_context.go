package core

import (
	"github.com/bwmarrin/discordgo"
)

// ComponentContext serves both button (and select) clicks and modal submissions
// routed through a persistent component pattern.
type ComponentContext struct {
	*InteractionContext
	Component *ComponentCallback
	CustomID  string
	// Values holds selected values for select menus.
	Values []string

	fields map[string]string
}

// NewComponentContext builds the context for a component or modal interaction.
func NewComponentContext(base *InteractionContext, cb *ComponentCallback) *ComponentContext {
	cc := &ComponentContext{InteractionContext: base, Component: cb}
	if base.Interaction == nil {
		return cc
	}
	switch data := base.Interaction.Data.(type) {
	case discordgo.MessageComponentInteractionData:
		cc.CustomID = data.CustomID
		cc.Values = data.Values
	case discordgo.ModalSubmitInteractionData:
		cc.CustomID = data.CustomID
		cc.fields = modalFields(data.Components)
	}
	return cc
}

func modalFields(components []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	for _, c := range components {
		switch v := c.(type) {
		case *discordgo.ActionsRow:
			for k, val := range modalFields(v.Components) {
				fields[k] = val
			}
		case *discordgo.TextInput:
			fields[v.CustomID] = v.Value
		}
	}
	return fields
}

// IsModal reports whether this context comes from a modal submission.
func (c *ComponentContext) IsModal() bool { return c.Kind == KindModalSubmit }

// Field returns a submitted text input value by its custom ID.
func (c *ComponentContext) Field(customID string) string { return c.fields[customID] }

// Message returns the message hosting the component, nil for modals opened
// from a command.
func (c *ComponentContext) Message() *discordgo.Message {
	if c.Interaction == nil {
		return nil
	}
	return c.Interaction.Message
}

// DeferUpdate acknowledges the click without a new message; later edits
// target the hosting message.
func (c *ComponentContext) DeferUpdate() error {
	return c.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, Deferred)
}

// EditOrigin replaces the hosting message. As the initial response it is an
// update-message reply; afterwards it edits @original through the token.
func (c *ComponentContext) EditOrigin(msg Message) error {
	if c.State() == NotResponded {
		err := c.respond(&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: msg.responseData(),
		}, Responded)
		if err != ErrAlreadyResponded {
			return err
		}
	}
	_, err := c.Session.InteractionResponseEdit(c.Interaction, msg.webhookEdit())
	return err
}
