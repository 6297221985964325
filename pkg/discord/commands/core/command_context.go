package core

import (
	"github.com/bwmarrin/discordgo"
)

// SlashCommandContext is handed to ChatInput command handlers.
type SlashCommandContext struct {
	*InteractionContext
	Command *Command
	Data    discordgo.ApplicationCommandInteractionData
}

func NewSlashCommandContext(base *InteractionContext, cmd *Command) *SlashCommandContext {
	return &SlashCommandContext{InteractionContext: base, Command: cmd, Data: base.commandData()}
}

// Option looks an option up by name; see GetOption for the search depth.
func (c *SlashCommandContext) Option(name string) *Option {
	return GetOption(c.Data.Options, name)
}

// StringOption returns a string option, or def when absent.
func (c *SlashCommandContext) StringOption(name, def string) string {
	if v, ok := OptionString(c.Option(name)); ok {
		return v
	}
	return def
}

// BoolOption returns a boolean option, or def when absent.
func (c *SlashCommandContext) BoolOption(name string, def bool) bool {
	if v, ok := OptionBool(c.Option(name)); ok {
		return v
	}
	return def
}

// Subcommand returns the invoked subcommand path, e.g. ["usage", "data"].
func (c *SlashCommandContext) Subcommand() []string {
	return SubcommandPath(c.Data.Options)
}

// ContextMenuContext is handed to User and Message command handlers.
type ContextMenuContext struct {
	*InteractionContext
	Command *Command
	Data    discordgo.ApplicationCommandInteractionData
}

func NewContextMenuContext(base *InteractionContext, cmd *Command) *ContextMenuContext {
	return &ContextMenuContext{InteractionContext: base, Command: cmd, Data: base.commandData()}
}

// TargetMessage returns the resolved message of a Message command.
func (c *ContextMenuContext) TargetMessage() *discordgo.Message {
	if c.Data.Resolved == nil || c.Data.Resolved.Messages == nil {
		return nil
	}
	return c.Data.Resolved.Messages[c.Data.TargetID]
}

// TargetUser returns the resolved user of a User command.
func (c *ContextMenuContext) TargetUser() *discordgo.User {
	if c.Data.Resolved == nil || c.Data.Resolved.Users == nil {
		return nil
	}
	return c.Data.Resolved.Users[c.Data.TargetID]
}

// AutocompleteContext is handed to autocomplete bindings.
type AutocompleteContext struct {
	*InteractionContext
	Command *Command
	Data    discordgo.ApplicationCommandInteractionData
	Focused *Option
}

func NewAutocompleteContext(base *InteractionContext, cmd *Command) *AutocompleteContext {
	data := base.commandData()
	return &AutocompleteContext{
		InteractionContext: base,
		Command:            cmd,
		Data:               data,
		Focused:            FocusedOption(data.Options),
	}
}

// Option looks an option up by name; see GetOption for the search depth.
func (c *AutocompleteContext) Option(name string) *Option {
	return GetOption(c.Data.Options, name)
}

// Value is the text typed so far in the focused option.
func (c *AutocompleteContext) Value() string {
	v, _ := OptionString(c.Focused)
	return v
}

// Choices answers the autocomplete request. Discord accepts at most 25
// choices; extra ones are sent as given.
func (c *AutocompleteContext) Choices(choices []*discordgo.ApplicationCommandOptionChoice) error {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	return c.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}, Responded)
}
