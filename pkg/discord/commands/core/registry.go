package core

import (
	"fmt"
)

// GuildCommands is the set of commands registered in one guild.
type GuildCommands struct {
	GuildID  string
	Commands []*Command
}

// Partition splits the registry by sync scope.
type Partition struct {
	Global []*Command
	Guilds []GuildCommands
}

// Registry is the merged, read-only view of every extension.
type Registry struct {
	extensions []*Extension
	commands   []*Command
	global     map[string]*Command
	guild      map[string]map[string]*Command
	guildOrder []string
	components []*ComponentCallback
}

// BuildRegistry merges extensions in order. A command name may appear once
// per scope (global, or a given guild). Component patterns from different
// extensions may not share a source or claim each other's examples.
func BuildRegistry(extensions ...*Extension) (*Registry, error) {
	r := &Registry{
		global: make(map[string]*Command),
		guild:  make(map[string]map[string]*Command),
	}

	for _, ext := range extensions {
		if ext == nil {
			continue
		}
		r.extensions = append(r.extensions, ext)
		for _, cmd := range ext.Commands() {
			if err := r.addCommand(cmd); err != nil {
				return nil, err
			}
		}
		for _, cb := range ext.components {
			if err := r.addComponent(cb); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Registry) addCommand(cmd *Command) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("extension %s: %w", extensionName(cmd.extension), err)
	}

	if cmd.Global() {
		if prev, ok := r.global[cmd.Name]; ok {
			return fmt.Errorf("%w: %q global (extensions %s and %s)",
				ErrDuplicateCommand, cmd.Name, extensionName(prev.extension), extensionName(cmd.extension))
		}
		r.global[cmd.Name] = cmd
		r.commands = append(r.commands, cmd)
		return nil
	}

	for _, gid := range cmd.Scopes {
		if prev, ok := r.guild[gid][cmd.Name]; ok {
			return fmt.Errorf("%w: %q in guild %s (extensions %s and %s)",
				ErrDuplicateCommand, cmd.Name, gid, extensionName(prev.extension), extensionName(cmd.extension))
		}
	}
	for _, gid := range cmd.Scopes {
		byName, ok := r.guild[gid]
		if !ok {
			byName = make(map[string]*Command)
			r.guild[gid] = byName
			r.guildOrder = append(r.guildOrder, gid)
		}
		byName[cmd.Name] = cmd
	}
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *Registry) addComponent(cb *ComponentCallback) error {
	for _, prev := range r.components {
		if prev.extension == cb.extension {
			continue
		}
		if prev.Pattern.String() == cb.Pattern.String() {
			return fmt.Errorf("%w: %q registered by %s and %s",
				ErrComponentConflict, cb.Pattern, extensionName(prev.extension), extensionName(cb.extension))
		}
		for _, ex := range cb.Examples {
			if prev.Pattern.MatchString(ex) {
				return fmt.Errorf("%w: %q from %s is shadowed by %q from %s",
					ErrComponentConflict, ex, extensionName(cb.extension), prev.Pattern, extensionName(prev.extension))
			}
		}
		for _, ex := range prev.Examples {
			if cb.Pattern.MatchString(ex) {
				return fmt.Errorf("%w: %q from %s also matches %q from %s",
					ErrComponentConflict, ex, extensionName(prev.extension), cb.Pattern, extensionName(cb.extension))
			}
		}
	}
	r.components = append(r.components, cb)
	return nil
}

func extensionName(e *Extension) string {
	if e == nil {
		return "<none>"
	}
	return e.Name
}

// Command resolves a command by name. A guild-scoped match for guildID wins
// over a global command of the same name.
func (r *Registry) Command(name, guildID string) (*Command, bool) {
	if guildID != "" {
		if cmd, ok := r.guild[guildID][name]; ok {
			return cmd, true
		}
	}
	cmd, ok := r.global[name]
	return cmd, ok
}

// Component returns the first callback, in registration order, whose pattern
// matches customID.
func (r *Registry) Component(customID string) (*ComponentCallback, bool) {
	for _, cb := range r.components {
		if cb.Pattern.MatchString(customID) {
			return cb, true
		}
	}
	return nil, false
}

// Commands returns every command in registration order.
func (r *Registry) Commands() []*Command {
	return append([]*Command(nil), r.commands...)
}

// Extensions returns the merged extensions in order.
func (r *Registry) Extensions() []*Extension {
	return append([]*Extension(nil), r.extensions...)
}

// Partition groups commands into the global list and per-guild lists, guilds
// in first-seen order. Each list keeps registration order.
func (r *Registry) Partition() Partition {
	var p Partition
	perGuild := make(map[string][]*Command, len(r.guildOrder))
	for _, cmd := range r.commands {
		if cmd.Global() {
			p.Global = append(p.Global, cmd)
			continue
		}
		for _, gid := range cmd.Scopes {
			perGuild[gid] = append(perGuild[gid], cmd)
		}
	}
	for _, gid := range r.guildOrder {
		p.Guilds = append(p.Guilds, GuildCommands{GuildID: gid, Commands: perGuild[gid]})
	}
	return p
}
