package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/info"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/mention"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/ping"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/privacy"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/syncer"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/tiktok"
	"github.com/small-frappuccino/quickvids/pkg/discord/premium"
	"github.com/small-frappuccino/quickvids/pkg/discord/webhook"
	"github.com/small-frappuccino/quickvids/pkg/log"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	tt "github.com/small-frappuccino/quickvids/pkg/tiktok"
)

// Dependencies are the services the extensions are built from. ShortURLs and
// Usage may be nil.
type Dependencies struct {
	Store      *storage.Store
	TikTok     *tt.Client
	ShortURLs  *tt.ShortURLClient
	Premium    *premium.Gate
	Usage      *webhook.UsageHook
	WebBaseURL string
}

// CommandHandler owns the registry and the dispatcher built from it.
type CommandHandler struct {
	session *discordgo.Session
	appID   string
	deps    Dependencies

	registry *core.Registry
	client   *core.Client
}

// NewCommandHandler creates a new CommandHandler instance
func NewCommandHandler(session *discordgo.Session, appID string, deps Dependencies) *CommandHandler {
	return &CommandHandler{
		session: session,
		appID:   appID,
		deps:    deps,
	}
}

// Extensions builds every extension in load order.
func (ch *CommandHandler) Extensions() []*core.Extension {
	d := ch.deps
	conv := tiktok.Options{
		Store:      d.Store,
		Details:    d.TikTok,
		Premium:    d.Premium,
		WebBaseURL: d.WebBaseURL,
	}
	// Leave the interfaces nil rather than holding typed nil pointers.
	if d.ShortURLs != nil {
		conv.Converter = d.ShortURLs
	}
	if d.Usage != nil {
		conv.Usage = d.Usage
	}

	return []*core.Extension{
		ping.NewExtension(),
		info.NewExtension(d.Store),
		privacy.NewExtension(d.Store),
		tiktok.NewExtension(conv),
		mention.NewExtension(mention.Options{
			Store:   d.Store,
			Users:   d.TikTok,
			Premium: d.Premium,
		}),
	}
}

// SetupCommands builds the registry and syncs it with Discord. In
// compareOnly mode remote commands are only diffed, never written.
func (ch *CommandHandler) SetupCommands(ctx context.Context, compareOnly bool) error {
	log.ApplicationLogger().Info("Setting up bot commands...")

	registry, err := core.BuildRegistry(ch.Extensions()...)
	if err != nil {
		return fmt.Errorf("failed to build command registry: %w", err)
	}
	ch.registry = registry
	ch.client = core.NewClient(registry)

	syncer.NewSynchronizer(ch.session, ch.appID, compareOnly).Sync(ctx, registry.Partition())

	log.ApplicationLogger().Info("Bot commands setup completed successfully",
		"commands", len(registry.Commands()),
		"extensions", len(registry.Extensions()),
	)
	return nil
}

// Client returns the dispatcher, or nil before SetupCommands.
func (ch *CommandHandler) Client() *core.Client {
	return ch.client
}
