// Package ping registers the /ping liveness command.
package ping

import (
	embed "github.com/Clinet/discordgo-embed"
	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/theme"
)

var (
	everywhere = []discordgo.ApplicationIntegrationType{discordgo.ApplicationIntegrationGuildInstall, discordgo.ApplicationIntegrationUserInstall}
	anyContext = []discordgo.InteractionContextType{discordgo.InteractionContextGuild, discordgo.InteractionContextBotDM, discordgo.InteractionContextPrivateChannel}
)

func NewExtension() *core.Extension {
	ext := core.NewExtension("ping")
	ext.SlashCommand(core.CommandMeta{
		Name:             "ping",
		Description:      "Check if the bot is online.",
		DMPermission:     true,
		IntegrationTypes: everywhere,
		Contexts:         anyContext,
	}, handlePing)
	return ext
}

func handlePing(ctx *core.SlashCommandContext) error {
	e := embed.NewEmbed().
		SetDescription("🏓 **Pong!** The bot is online.").
		SetColor(theme.Primary())
	return ctx.Reply(core.Message{Embeds: []*discordgo.MessageEmbed{e.MessageEmbed}})
}
