package core

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

const defaultDescription = "No description set"

type (
	SlashCommandHandler func(*SlashCommandContext) error
	ContextMenuHandler  func(*ContextMenuContext) error
	AutocompleteHandler func(*AutocompleteContext) error
	ComponentHandler    func(*ComponentContext) error
)

// CommandMeta is the declarative part of a slash command or context menu.
type CommandMeta struct {
	Name        string
	Description string
	Options     []*discordgo.ApplicationCommandOption

	// DefaultMemberPermissions are OR-ed together; empty means everyone.
	DefaultMemberPermissions []int64
	// Scopes lists guild IDs; empty registers the command globally.
	Scopes           []string
	DMPermission     bool
	NSFW             bool
	IntegrationTypes []discordgo.ApplicationIntegrationType
	Contexts         []discordgo.InteractionContextType

	// Autocomplete maps an option name to its completion callback.
	Autocomplete map[string]AutocompleteHandler
}

// Command is a registered application command. Everything except the remote
// ID is fixed once the owning registry is built.
type Command struct {
	Type             discordgo.ApplicationCommandType
	Name             string
	Description      string
	Options          []*discordgo.ApplicationCommandOption
	Permissions      []int64
	Scopes           []string
	DMPermission     bool
	NSFW             bool
	IntegrationTypes []discordgo.ApplicationIntegrationType
	Contexts         []discordgo.InteractionContextType

	slash        SlashCommandHandler
	contextMenu  ContextMenuHandler
	autocomplete map[string]AutocompleteHandler
	extension    *Extension

	mu sync.RWMutex
	id string
}

func newCommand(typ discordgo.ApplicationCommandType, meta CommandMeta) *Command {
	desc := meta.Description
	if desc == "" && typ == discordgo.ChatApplicationCommand {
		desc = defaultDescription
	}
	auto := make(map[string]AutocompleteHandler, len(meta.Autocomplete))
	for name, fn := range meta.Autocomplete {
		auto[name] = fn
	}
	return &Command{
		Type:             typ,
		Name:             meta.Name,
		Description:      desc,
		Options:          meta.Options,
		Permissions:      append([]int64(nil), meta.DefaultMemberPermissions...),
		Scopes:           uniqueScopes(meta.Scopes),
		DMPermission:     meta.DMPermission,
		NSFW:             meta.NSFW,
		IntegrationTypes: meta.IntegrationTypes,
		Contexts:         meta.Contexts,
		autocomplete:     auto,
	}
}

// NewSlashCommand builds a ChatInput command.
func NewSlashCommand(meta CommandMeta, handler SlashCommandHandler) *Command {
	cmd := newCommand(discordgo.ChatApplicationCommand, meta)
	cmd.slash = handler
	return cmd
}

// NewContextMenu builds a User or Message command. Context menus carry no
// description, options or autocomplete bindings.
func NewContextMenu(typ discordgo.ApplicationCommandType, meta CommandMeta, handler ContextMenuHandler) *Command {
	if typ != discordgo.UserApplicationCommand {
		typ = discordgo.MessageApplicationCommand
	}
	meta.Description = ""
	meta.Options = nil
	meta.Autocomplete = nil
	cmd := newCommand(typ, meta)
	cmd.contextMenu = handler
	return cmd
}

// Validate checks the only constraint enforced locally: a non-empty name.
func (c *Command) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("command name is required")
	}
	return nil
}

// Global reports whether the command is registered outside any guild.
func (c *Command) Global() bool { return len(c.Scopes) == 0 }

// Extension returns the owning extension, nil before registration.
func (c *Command) Extension() *Extension { return c.extension }

// ID returns the remote ID assigned by Discord, empty before sync.
func (c *Command) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// SetID records the remote ID after sync.
func (c *Command) SetID(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

// HasHandler reports whether a callback matching the command type is attached.
func (c *Command) HasHandler() bool {
	if c.Type == discordgo.ChatApplicationCommand {
		return c.slash != nil
	}
	return c.contextMenu != nil
}

// AutocompleteFor returns the binding for an option name.
func (c *Command) AutocompleteFor(option string) (AutocompleteHandler, bool) {
	fn, ok := c.autocomplete[option]
	return fn, ok && fn != nil
}

// Mention renders the clickable slash-command mention, optionally pointing at
// a subcommand path ("link", "group sub").
func (c *Command) Mention(sub ...string) string {
	name := c.Name
	if len(sub) > 0 {
		name += " " + strings.Join(sub, " ")
	}
	id := c.ID()
	if id == "" {
		return "/" + name
	}
	return fmt.Sprintf("</%s:%s>", name, id)
}

// PermissionBits folds the declared permissions into one bitfield. ok is false
// when no permission was declared (available to everyone).
func (c *Command) PermissionBits() (bits int64, ok bool) {
	if len(c.Permissions) == 0 {
		return 0, false
	}
	for _, p := range c.Permissions {
		bits |= p
	}
	return bits, true
}

// WireCommand is the JSON shape exchanged with the application commands API.
type WireCommand struct {
	ID                       string                                 `json:"id,omitempty"`
	ApplicationID            string                                 `json:"application_id,omitempty"`
	GuildID                  string                                 `json:"guild_id,omitempty"`
	Type                     discordgo.ApplicationCommandType       `json:"type"`
	Name                     string                                 `json:"name"`
	DefaultMemberPermissions *string                                `json:"default_member_permissions"`
	Description              string                                 `json:"description,omitempty"`
	NSFW                     *bool                                  `json:"nsfw,omitempty"`
	DMPermission             *bool                                  `json:"dm_permission,omitempty"`
	Options                  []*discordgo.ApplicationCommandOption  `json:"options,omitempty"`
	IntegrationTypes         []discordgo.ApplicationIntegrationType `json:"integration_types,omitempty"`
	Contexts                 []discordgo.InteractionContextType     `json:"contexts,omitempty"`
}

// ToWire converts the command into its registration payload. It has no side effects.
func (c *Command) ToWire() *WireCommand {
	w := &WireCommand{
		Type:             c.Type,
		Name:             c.Name,
		NSFW:             boolPtr(c.NSFW),
		DMPermission:     boolPtr(c.DMPermission),
		IntegrationTypes: c.IntegrationTypes,
		Contexts:         c.Contexts,
	}
	if bits, ok := c.PermissionBits(); ok {
		s := strconv.FormatInt(bits, 10)
		w.DefaultMemberPermissions = &s
	}
	if c.Type == discordgo.ChatApplicationCommand {
		w.Description = c.Description
		w.Options = c.Options
	}
	return w
}

func boolPtr(v bool) *bool { return &v }

func uniqueScopes(scopes []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(scopes))
	for _, g := range scopes {
		if _, ok := seen[g]; ok || g == "" {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
