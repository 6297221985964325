package core

import (
	"fmt"
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/log"
)

// ComponentCallback routes a persistent component custom ID to its handler.
type ComponentCallback struct {
	Pattern   *regexp.Regexp
	Examples  []string
	handler   ComponentHandler
	extension *Extension
}

// Extension returns the owning extension.
func (cc *ComponentCallback) Extension() *Extension { return cc.extension }

// Extension is a named bundle of commands and persistent components.
type Extension struct {
	Name string

	order      []string
	commands   map[string]*Command
	components []*ComponentCallback
}

func NewExtension(name string) *Extension {
	return &Extension{Name: name, commands: make(map[string]*Command)}
}

func (e *Extension) add(cmd *Command) *Command {
	if _, exists := e.commands[cmd.Name]; exists {
		log.ApplicationLogger().Warn("Command registered twice in extension; keeping the last definition",
			"extension", e.Name, "command", cmd.Name)
	} else {
		e.order = append(e.order, cmd.Name)
	}
	cmd.extension = e
	e.commands[cmd.Name] = cmd
	return cmd
}

// SlashCommand registers a ChatInput command.
func (e *Extension) SlashCommand(meta CommandMeta, handler SlashCommandHandler) *Command {
	return e.add(NewSlashCommand(meta, handler))
}

// ContextMenu registers a User or Message command.
func (e *Extension) ContextMenu(typ discordgo.ApplicationCommandType, meta CommandMeta, handler ContextMenuHandler) *Command {
	return e.add(NewContextMenu(typ, meta, handler))
}

// PersistentComponent binds custom IDs matching pattern to handler. Examples
// are custom IDs the pattern must accept; the registry uses them to detect
// patterns from other extensions that would shadow this one.
func (e *Extension) PersistentComponent(pattern string, handler ComponentHandler, examples ...string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile component pattern %q: %w", pattern, err)
	}
	for _, ex := range examples {
		if !re.MatchString(ex) {
			return fmt.Errorf("component pattern %q does not match its example %q", pattern, ex)
		}
	}
	e.components = append(e.components, &ComponentCallback{
		Pattern:   re,
		Examples:  examples,
		handler:   handler,
		extension: e,
	})
	return nil
}

// MustPersistentComponent is PersistentComponent for static patterns.
func (e *Extension) MustPersistentComponent(pattern string, handler ComponentHandler, examples ...string) {
	if err := e.PersistentComponent(pattern, handler, examples...); err != nil {
		panic(err)
	}
}

// Commands returns the extension's commands in first-registration order.
func (e *Extension) Commands() []*Command {
	out := make([]*Command, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.commands[name])
	}
	return out
}

// Command returns a command of this extension by name.
func (e *Extension) Command(name string) *Command {
	return e.commands[name]
}
