// Package info registers /info, the public statistics embed.
package info

import (
	"fmt"
	"time"

	embed "github.com/Clinet/discordgo-embed"
	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	"github.com/small-frappuccino/quickvids/pkg/theme"
)

// StatsSource provides the numbers shown by /info.
type StatsSource interface {
	Stats() (storage.Stats, error)
	Ping() (time.Duration, error)
}

type infoCommand struct {
	stats StatsSource
	now   func() time.Time
}

func NewExtension(stats StatsSource) *core.Extension {
	c := &infoCommand{stats: stats, now: time.Now}
	ext := core.NewExtension("info")
	ext.SlashCommand(core.CommandMeta{
		Name:         "info",
		Description:  "Get some general information and statistics about QuickVids.",
		DMPermission: true,
		IntegrationTypes: []discordgo.ApplicationIntegrationType{
			discordgo.ApplicationIntegrationGuildInstall,
			discordgo.ApplicationIntegrationUserInstall,
		},
		Contexts: []discordgo.InteractionContextType{
			discordgo.InteractionContextBotDM,
			discordgo.InteractionContextGuild,
			discordgo.InteractionContextPrivateChannel,
		},
	}, c.handle)
	return ext
}

func (c *infoCommand) handle(ctx *core.SlashCommandContext) error {
	stats, err := c.stats.Stats()
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	ping, err := c.stats.Ping()
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return ctx.Reply(core.Message{Embeds: []*discordgo.MessageEmbed{c.render(stats, ping)}})
}

func (c *infoCommand) render(stats storage.Stats, ping time.Duration) *discordgo.MessageEmbed {
	now := c.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	e := embed.NewEmbed().
		SetTitle("QuickVids Info").
		SetDescription("Here is some general information and statistics about QuickVids.").
		SetColor(theme.Stats()).
		AddField("TikToks Embedded 📈", humanize.Comma(stats.TotalEmbedded)).
		AddField("Past 24 Hours ⌛", humanize.Comma(stats.EmbeddedPastDay)).
		AddField("Embedded Today 📅", fmt.Sprintf("%s since <t:%d:R>", humanize.Comma(stats.EmbeddedToday), midnight.Unix())).
		AddField("User Count 👤", humanize.Comma(stats.TotalUsers)).
		AddField("Total Servers 🏠", humanize.Comma(stats.ServerCount)).
		AddField("Ping 🏓", fmt.Sprintf("%dms", ping.Milliseconds())).
		InlineAllFields()
	return e.MessageEmbed
}
