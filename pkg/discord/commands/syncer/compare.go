package syncer

import (
	"encoding/json"
	"sort"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
)

// optionKeys are the option fields that matter for change detection. Anything
// else the API echoes back (localized names, version fields) is ignored.
var optionKeys = []string{
	"type", "name", "description", "required", "choices", "options",
	"autocomplete", "channel_types", "min_value", "max_value", "min_length", "max_length",
}

// Changed reports whether local differs from remote for one scope. Only local
// commands are walked: one with no same-named remote counts as a change, while
// remote-only commands are left for the next bulk write to drop.
func Changed(local, remote []*core.WireCommand) bool {
	byName := make(map[string]*core.WireCommand, len(remote))
	for _, r := range remote {
		if r != nil {
			byName[r.Name] = r
		}
	}
	for _, l := range local {
		r, ok := byName[l.Name]
		if !ok || commandChanged(l, r) {
			return true
		}
	}
	return false
}

func commandChanged(local, remote *core.WireCommand) bool {
	if local.Type != remote.Type {
		return true
	}
	if !equalPtr(local.DMPermission, remote.DMPermission) {
		return true
	}
	if !equalPtr(local.DefaultMemberPermissions, remote.DefaultMemberPermissions) {
		return true
	}
	if !equalPtr(local.NSFW, remote.NSFW) {
		return true
	}
	return !optionsEqual(local.Options, remote.Options)
}

// equalPtr treats an unset side as different from any set value.
func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// optionsEqual compares option lists as multisets of their canonical forms.
func optionsEqual(a, b []*discordgo.ApplicationCommandOption) bool {
	ca, err := canonicalOptions(a)
	if err != nil {
		return false
	}
	cb, err := canonicalOptions(b)
	if err != nil {
		return false
	}
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if ca[i] != cb[i] {
			return false
		}
	}
	return true
}

func canonicalOptions(opts []*discordgo.ApplicationCommandOption) ([]string, error) {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		if o == nil {
			continue
		}
		raw, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		var generic map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, err
		}
		s, err := json.Marshal(normalizeOption(generic))
		if err != nil {
			return nil, err
		}
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out, nil
}

func normalizeOption(raw map[string]any) map[string]any {
	out := make(map[string]any, len(optionKeys))
	for _, key := range optionKeys {
		v, ok := raw[key]
		if !ok || isZero(v) {
			continue
		}
		switch key {
		case "options":
			children, _ := v.([]any)
			canon := make([]string, 0, len(children))
			for _, c := range children {
				m, ok := c.(map[string]any)
				if !ok {
					continue
				}
				b, _ := json.Marshal(normalizeOption(m))
				canon = append(canon, string(b))
			}
			sort.Strings(canon)
			v = canon
		case "choices":
			choices, _ := v.([]any)
			norm := make([]map[string]any, 0, len(choices))
			for _, c := range choices {
				m, ok := c.(map[string]any)
				if !ok {
					continue
				}
				norm = append(norm, map[string]any{"name": m["name"], "value": m["value"]})
			}
			v = norm
		}
		out[key] = v
	}
	return out
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case float64:
		return x == 0
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}
