// Package tiktok registers the conversion commands and the buttons attached
// to converted videos.
package tiktok

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/discord/premium"
	"github.com/small-frappuccino/quickvids/pkg/log"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	tt "github.com/small-frappuccino/quickvids/pkg/tiktok"
)

// Store is the persistence the conversion flow needs.
type Store interface {
	GuildConfig(guildID string) (storage.GuildConfig, error)
	InsertEmbedLog(e storage.EmbedLog) (bool, error)
	ShortLinkByVideo(videoID string) (storage.ShortLink, bool, error)
	AddFavorite(userID, videoID string) error
	RemoveFavorite(userID, videoID string) error
	IsFavorite(userID, videoID string) (bool, error)
}

// Converter turns message text into a QuickVids short URL.
type Converter interface {
	Create(ctx context.Context, input string) (*tt.ShortURL, error)
}

// Details reads posts and music from the detail API.
type Details interface {
	FetchPost(ctx context.Context, id string) (*tt.Post, error)
	FetchMusic(ctx context.Context, id string) (*tt.Music, error)
	ResolveShortLink(ctx context.Context, link tt.Link) (tt.Link, error)
}

// UsageLogger receives one event per conversion.
type UsageLogger interface {
	Log(typ string, data map[string]any)
}

// Options wires the extension. A nil Converter converts through Details and
// the stored short links instead of the short-URL API.
type Options struct {
	Store      Store
	Converter  Converter
	Details    Details
	Premium    *premium.Gate
	Usage      UsageLogger
	WebBaseURL string
}

type extension struct {
	Options
	logger *slog.Logger
}

var (
	installTypes = []discordgo.ApplicationIntegrationType{
		discordgo.ApplicationIntegrationGuildInstall,
		discordgo.ApplicationIntegrationUserInstall,
	}
	allContexts = []discordgo.InteractionContextType{
		discordgo.InteractionContextGuild,
		discordgo.InteractionContextBotDM,
		discordgo.InteractionContextPrivateChannel,
	}
)

func conversionOptions(platform string) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "link",
			Description: "The " + platform + " link to convert.",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "spoiler",
			Description: "Whether or not to spoiler the video.",
		},
		{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "hidden",
			Description: "Whether or not to make this output visible only to you.",
		},
	}
}

func NewExtension(opts Options) *core.Extension {
	e := &extension{Options: opts, logger: log.DiscordLogger().With("extension", "tiktok")}
	ext := core.NewExtension("tiktok")

	ext.ContextMenu(discordgo.MessageApplicationCommand, core.CommandMeta{
		Name:             "Convert 📸",
		DMPermission:     true,
		IntegrationTypes: installTypes,
		Contexts:         allContexts,
	}, e.convertMessage)

	ext.SlashCommand(core.CommandMeta{
		Name:             "tiktok",
		Description:      "Convert a TikTok link into a video.",
		Options:          conversionOptions("TikTok"),
		DMPermission:     true,
		IntegrationTypes: installTypes,
		Contexts:         allContexts,
	}, e.convertSlash)

	ext.SlashCommand(core.CommandMeta{
		Name:             "instagram",
		Description:      "Convert an Instagram link into a video.",
		Options:          conversionOptions("Instagram"),
		DMPermission:     true,
		IntegrationTypes: installTypes,
		Contexts:         allContexts,
	}, e.convertSlash)

	ext.MustPersistentComponent(`^fav\d+$`, e.favorite, "fav7145990005238861099")
	ext.MustPersistentComponent(`^unfav\d+$`, e.unfavorite, "unfav7145990005238861099")
	ext.MustPersistentComponent(`^delete\d+$`, e.delete, "delete123456789012345678")
	ext.MustPersistentComponent(`^v_id\d+$`, e.postInfo, "v_id7145990005238861099")
	ext.MustPersistentComponent(`^m_id\d+$`, e.musicInfo, "m_id7016913596630207238")
	return ext
}
