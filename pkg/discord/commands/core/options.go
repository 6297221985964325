package core

import (
	"strconv"

	"github.com/bwmarrin/discordgo"
)

type Option = discordgo.ApplicationCommandInteractionDataOption

func isSubcommand(o *Option) bool {
	return o != nil && (o.Type == discordgo.ApplicationCommandOptionSubCommand ||
		o.Type == discordgo.ApplicationCommandOptionSubCommandGroup)
}

func findOption(options []*Option, name string) *Option {
	for _, o := range options {
		if o != nil && o.Name == name {
			return o
		}
	}
	return nil
}

// GetOption looks name up at the top level, then among the children of a
// leading subcommand or group, then among the children of that group's first
// subcommand. Deeper nesting is not searched.
func GetOption(options []*Option, name string) *Option {
	if o := findOption(options, name); o != nil {
		return o
	}
	if len(options) == 0 || !isSubcommand(options[0]) {
		return nil
	}
	first := options[0]
	if o := findOption(first.Options, name); o != nil {
		return o
	}
	if len(first.Options) > 0 && first.Options[0] != nil &&
		first.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return findOption(first.Options[0].Options, name)
	}
	return nil
}

// FocusedOption returns the option the user is typing in, at any depth.
func FocusedOption(options []*Option) *Option {
	for _, o := range options {
		if o == nil {
			continue
		}
		if o.Focused {
			return o
		}
		if f := FocusedOption(o.Options); f != nil {
			return f
		}
	}
	return nil
}

// SubcommandPath lists the invoked subcommand group and subcommand names.
func SubcommandPath(options []*Option) []string {
	var path []string
	for len(options) > 0 && isSubcommand(options[0]) {
		path = append(path, options[0].Name)
		options = options[0].Options
	}
	return path
}

// OptionString returns the option value as text. Numbers and booleans are
// formatted, so partially typed autocomplete values are usable as well.
func OptionString(o *Option) (string, bool) {
	if o == nil || o.Value == nil {
		return "", false
	}
	switch v := o.Value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// OptionBool returns a boolean option value without panicking on other types.
func OptionBool(o *Option) (bool, bool) {
	if o == nil {
		return false, false
	}
	v, ok := o.Value.(bool)
	return v, ok
}

// OptionInt returns an integer option value without panicking on other types.
func OptionInt(o *Option) (int64, bool) {
	if o == nil {
		return 0, false
	}
	switch v := o.Value.(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
