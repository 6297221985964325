// Package theme holds the embed colour palette.
package theme

import (
	"fmt"
	"sync"
)

// Color is the int value used by discordgo.MessageEmbed.Color
type Color = int

// Discord brand colours.
const (
	White      Color = 0xFFFFFF
	Blurple    Color = 0x5865F2
	Greyple    Color = 0x99AAB5
	DarkButNot Color = 0x2C2F33
	Green      Color = 0x57F287
	Yellow     Color = 0xFEE75C
	Fuchsia    Color = 0xEB459E
	Red        Color = 0xED4245
)

// Theme holds the colour roles used by embeds.
type Theme struct {
	Name string

	Primary Color
	Success Color
	Premium Color
	Error   Color
	Muted   Color

	// Feature roles
	PostInfo  Color
	MusicInfo Color
	Stats     Color
	Mention   Color
}

// Clone returns a copy of the Theme.
func (t *Theme) Clone() *Theme {
	cp := *t
	return &cp
}

// ensureDefaults fills zero-valued fields so themes can override a subset.
func (t *Theme) ensureDefaults() {
	if t.Primary == 0 {
		t.Primary = Blurple
	}
	if t.Success == 0 {
		t.Success = Green
	}
	if t.Premium == 0 {
		t.Premium = Yellow
	}
	if t.Error == 0 {
		t.Error = Red
	}
	if t.Muted == 0 {
		t.Muted = Greyple
	}
	if t.PostInfo == 0 {
		t.PostInfo = t.Primary
	}
	if t.MusicInfo == 0 {
		t.MusicInfo = t.Primary
	}
	if t.Stats == 0 {
		t.Stats = t.Primary
	}
	if t.Mention == 0 {
		t.Mention = t.Primary
	}
}

func defaultTheme() *Theme {
	th := &Theme{Name: "default", Primary: Blurple}
	th.ensureDefaults()
	return th
}

var (
	mu        sync.RWMutex
	registry  = map[string]*Theme{}
	currentTh = defaultTheme()
)

func init() {
	MustRegister(&Theme{Name: "fuchsia", Primary: Fuchsia})
}

// Register adds a theme to the registry. Names must be unique and non-empty.
func Register(t *Theme) error {
	if t == nil {
		return fmt.Errorf("theme: cannot register nil theme")
	}
	if t.Name == "" {
		return fmt.Errorf("theme: name is required")
	}
	cp := t.Clone()
	cp.ensureDefaults()

	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[cp.Name]; exists {
		return fmt.Errorf("theme: theme %q already registered", cp.Name)
	}
	registry[cp.Name] = cp
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(t *Theme) {
	if err := Register(t); err != nil {
		panic(err)
	}
}

// SetCurrent switches the active theme by name. Empty resets to the default.
func SetCurrent(name string) error {
	mu.Lock()
	defer mu.Unlock()
	if name == "" || name == "default" {
		currentTh = defaultTheme()
		return nil
	}
	th, ok := registry[name]
	if !ok {
		return fmt.Errorf("theme: theme %q not found", name)
	}
	currentTh = th.Clone()
	return nil
}

// Current returns a copy of the current theme.
func Current() *Theme {
	mu.RLock()
	defer mu.RUnlock()
	return currentTh.Clone()
}

func Primary() Color   { return Current().Primary }
func Success() Color   { return Current().Success }
func Premium() Color   { return Current().Premium }
func Error() Color     { return Current().Error }
func Muted() Color     { return Current().Muted }
func PostInfo() Color  { return Current().PostInfo }
func MusicInfo() Color { return Current().MusicInfo }
func Stats() Color     { return Current().Stats }
func Mention() Color   { return Current().Mention }
