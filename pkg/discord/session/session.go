// Package session builds the REST-only Discord session used to answer
// interactions. The bot never opens a gateway connection.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/errutil"
	"github.com/small-frappuccino/quickvids/pkg/log"
)

// Error messages
const (
	ErrSessionCreationFailed = "failed to create Discord session: %w"
	ErrTokenRejected         = "failed to authenticate with Discord: %w"
)

// Overridden in tests.
var (
	newSession = func(token string) (*discordgo.Session, error) { return discordgo.New("Bot " + token) }
	fetchSelf  = func(ctx context.Context, s *discordgo.Session) (*discordgo.User, error) {
		return s.User("@me", discordgo.WithContext(ctx))
	}
)

// NewDiscordSession creates the session and checks the token by reading the
// bot's own user. The returned session has State disabled since no gateway
// events ever fill it.
func NewDiscordSession(ctx context.Context, token string) (*discordgo.Session, *discordgo.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		log.ErrorLoggerRaw().Error("❌ Discord bot token is empty. Please set DISCORD_TOKEN before starting the bot.")
		return nil, nil, fmt.Errorf("discord bot token is empty")
	}

	var s *discordgo.Session
	if err := errutil.HandleDiscordError("create_session", func() error {
		var sessionErr error
		s, sessionErr = newSession(token)
		return sessionErr
	}); err != nil {
		return nil, nil, fmt.Errorf(ErrSessionCreationFailed, err)
	}
	s.StateEnabled = false
	s.UserAgent = "DiscordBot (https://quickvids.app, 1) QuickVids"

	var self *discordgo.User
	if err := errutil.HandleDiscordError("fetch_self", func() error {
		var selfErr error
		self, selfErr = fetchSelf(ctx, s)
		return selfErr
	}); err != nil {
		return nil, nil, fmt.Errorf(ErrTokenRejected, err)
	}

	log.DiscordLogger().Info("✅ Discord session ready", "bot", self.Username, "bot_id", self.ID)
	return s, self, nil
}
