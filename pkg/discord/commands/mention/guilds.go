package mention

import (
	"errors"
	"fmt"
	"strings"

	embed "github.com/Clinet/discordgo-embed"
	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	"github.com/small-frappuccino/quickvids/pkg/theme"
)

func (e *extension) enable(ctx *core.SlashCommandContext) error {
	if e.Premium != nil {
		if ok, err := e.Premium.Require(ctx.InteractionContext); err != nil || !ok {
			return err
		}
	}
	if ctx.IsDM() {
		return ctx.Reply(core.Ephemeral("Oops! Something went wrong!"))
	}

	cfg, err := e.Store.GuildConfig(ctx.GuildID())
	if err != nil {
		return fmt.Errorf("load guild config: %w", err)
	}
	if cfg.MentionMagicChannel == "" {
		return ctx.Reply(core.Ephemeral("This server has not enabled this feature for their server. Ask a server moderator to enable it in the config."))
	}

	added, err := e.Store.EnableMagicMention(ctx.AuthorID(), ctx.GuildID())
	switch {
	case errors.Is(err, storage.ErrNotLinked):
		return e.notLinked(ctx)
	case err != nil:
		return fmt.Errorf("enable mentions: %w", err)
	case !added:
		return ctx.Reply(core.Ephemeral("You have already enabled your mentions for this server."))
	}
	return ctx.Reply(core.Ephemeral("You have successfully enabled your mentions for this server."))
}

func (e *extension) disable(ctx *core.SlashCommandContext) error {
	if ctx.IsDM() {
		return ctx.Reply(core.Ephemeral("Oops! Something went wrong!"))
	}
	removed, err := e.Store.DisableMagicMention(ctx.AuthorID(), ctx.GuildID())
	switch {
	case errors.Is(err, storage.ErrNotLinked):
		return e.notLinked(ctx)
	case err != nil:
		return fmt.Errorf("disable mentions: %w", err)
	case !removed:
		return ctx.Reply(core.Ephemeral("You have not enabled your mentions for this server."))
	}
	return ctx.Reply(core.Ephemeral("You have successfully disabled your mentions for this server."))
}

// view lists the servers the user gets mentions in. Servers the bot can no
// longer see are left out.
func (e *extension) view(ctx *core.SlashCommandContext) error {
	link, found, err := e.Store.MagicMention(ctx.AuthorID())
	if err != nil {
		return fmt.Errorf("load link: %w", err)
	}
	if !found {
		return e.notLinked(ctx)
	}
	if len(link.Guilds) == 0 {
		return ctx.Reply(core.Ephemeral("You have not enabled your mentions for any servers. Use " +
			e.cmd.Mention("enable") + " to enable them."))
	}

	if err := ctx.Defer(true); err != nil {
		return err
	}
	var lines []string
	for _, guildID := range link.Guilds {
		guild, err := ctx.Session.Guild(guildID, discordgo.WithContext(ctx.Context()))
		if err != nil {
			ctx.Logger.Debug("Skipping unreachable guild", "guild", guildID, "error", err)
			continue
		}
		cfg, err := e.Store.GuildConfig(guildID)
		if err == nil && cfg.MentionMagicChannel != "" {
			lines = append(lines, fmt.Sprintf("- [%s](https://discord.com/channels/%s/%s)", guild.Name, guildID, cfg.MentionMagicChannel))
			continue
		}
		lines = append(lines, "- "+guild.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have enabled your mentions for %d servers.\n\n", len(lines))
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	list := embed.NewEmbed().
		SetTitle("Your Magic Mentions").
		SetDescription(b.String()).
		SetColor(theme.Mention()).
		SetFooter("You can disable your mentions with /mention disable")
	return ctx.Reply(core.Message{Embeds: []*discordgo.MessageEmbed{list.MessageEmbed}, Ephemeral: true})
}
