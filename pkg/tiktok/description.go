package tiktok

import (
	"strings"
	"unicode/utf16"
)

// Description is a post description split into text and hashtags.
type Description struct {
	Cleaned  string
	Raw      string
	Hashtags []string
}

// CleanDescription removes hashtag spans (TextExtra type 1) from desc.
func CleanDescription(desc string, extras []TextExtra) Description {
	units := utf16.Encode([]rune(desc))
	cleaned := desc
	var tags []string
	for _, e := range extras {
		if e.Type != 1 {
			continue
		}
		if e.Start < 0 || e.End > len(units) || e.Start >= e.End {
			continue
		}
		text := string(utf16.Decode(units[e.Start:e.End]))
		cleaned = strings.TrimSpace(strings.Replace(cleaned, text, "", 1))
		tags = append(tags, e.HashtagName)
	}
	return Description{Cleaned: cleaned, Raw: desc, Hashtags: tags}
}

// Truncate shortens s to at most limit runes, ending in "..." when cut.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
