package core

import (
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Kind classifies an inbound interaction for routing.
type Kind int

const (
	KindUnknown Kind = iota
	KindPing
	KindSlashCommand
	KindContextMenu
	KindAutocomplete
	KindButton
	KindModalSubmit
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindSlashCommand:
		return "slash_command"
	case KindContextMenu:
		return "context_menu"
	case KindAutocomplete:
		return "autocomplete"
	case KindButton:
		return "button"
	case KindModalSubmit:
		return "modal_submit"
	default:
		return "unknown"
	}
}

// Classify maps the raw interaction type, and for application commands the
// command type, onto a Kind.
func Classify(i *discordgo.Interaction) Kind {
	if i == nil {
		return KindUnknown
	}
	switch i.Type {
	case discordgo.InteractionPing:
		return KindPing
	case discordgo.InteractionApplicationCommand:
		data, ok := i.Data.(discordgo.ApplicationCommandInteractionData)
		if !ok {
			return KindUnknown
		}
		switch data.CommandType {
		case discordgo.UserApplicationCommand, discordgo.MessageApplicationCommand:
			return KindContextMenu
		default:
			return KindSlashCommand
		}
	case discordgo.InteractionApplicationCommandAutocomplete:
		return KindAutocomplete
	case discordgo.InteractionMessageComponent:
		return KindButton
	case discordgo.InteractionModalSubmit:
		return KindModalSubmit
	default:
		return KindUnknown
	}
}

// ParseInteraction decodes a webhook body and classifies it.
func ParseInteraction(body []byte) (*discordgo.Interaction, Kind, error) {
	var i discordgo.Interaction
	if err := json.Unmarshal(body, &i); err != nil {
		return nil, KindUnknown, fmt.Errorf("decode interaction: %w", err)
	}
	kind := Classify(&i)
	if kind == KindUnknown {
		return &i, kind, fmt.Errorf("%w: %d", ErrUnknownInteraction, i.Type)
	}
	return &i, kind, nil
}
