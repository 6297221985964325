package tiktok

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	embed "github.com/Clinet/discordgo-embed"
	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/theme"
	tt "github.com/small-frappuccino/quickvids/pkg/tiktok"
)

const tagFieldLimit = 1024

func (e *extension) postInfo(ctx *core.ComponentContext) error {
	if err := ctx.Defer(true); err != nil {
		return err
	}
	id := strings.TrimPrefix(ctx.CustomID, "v_id")
	if e.Details == nil {
		return core.NewFriendlyError("We were unable to fetch the TikTok video.", codeNoPost)
	}
	post, err := e.Details.FetchPost(ctx.Context(), id)
	if err != nil {
		return apiError(err, core.NewFriendlyError("We were unable to fetch the TikTok video.", codeNoPost))
	}

	favorite, err := e.Store.IsFavorite(ctx.AuthorID(), id)
	if err != nil {
		ctx.Logger.Warn("Favorite lookup failed", "video_id", id, "error", err)
	}
	favID := "fav" + id
	if favorite {
		favID = "unfav" + id
	}
	page := e.WebBaseURL + "/v/" + id

	return ctx.Reply(core.Message{
		Embeds: []*discordgo.MessageEmbed{postEmbed(post)},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Style: discordgo.LinkButton, Label: "Download", URL: page},
				discordgo.Button{Style: discordgo.LinkButton, Label: "View on QuickVids", URL: page},
			}},
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Style:    discordgo.SecondaryButton,
					Label:    "Audio",
					Emoji:    &discordgo.ComponentEmoji{Name: "🎵"},
					CustomID: "m_id" + post.Music.MID.String(),
				},
				discordgo.Button{
					Style:    discordgo.SecondaryButton,
					Label:    "Add to Library",
					Emoji:    &discordgo.ComponentEmoji{Name: "⭐"},
					CustomID: favID,
				},
			}},
		},
		Ephemeral: true,
	})
}

func postEmbed(post *tt.Post) *discordgo.MessageEmbed {
	desc := tt.CleanDescription(post.Desc, post.TextExtra)
	stats := post.Statistics

	e := embed.NewEmbed().
		SetTitle(tt.Truncate(desc.Cleaned, 256)).
		SetDescription("——————").
		SetColor(theme.PostInfo()).
		SetAuthor(post.Author.Nickname, post.Author.AvatarThumb.First(), "https://tiktok.com/@"+post.Author.UniqueID).
		SetThumbnail(post.Video.Cover.First()).
		AddField("Views 👀", humanize.Comma(stats.PlayCount)).
		AddField("Likes ❤️", humanize.Comma(stats.DiggCount)).
		AddField("Comments 💬", humanize.Comma(stats.CommentCount)).
		AddField("Shares 🔃", humanize.Comma(stats.ShareCount)).
		AddField("Downloads 📥", humanize.Comma(stats.DownloadCount)).
		AddField("Created 🕰️", fmt.Sprintf("<t:%d:R>", post.CreateTime)).
		InlineAllFields()

	if tags := tagLinks(desc.Hashtags); tags != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Tags 🔖", Value: tags})
	}
	return e.MessageEmbed
}

// tagLinks renders hashtags as links, cutting with " ..." at the field limit.
func tagLinks(hashtags []string) string {
	var b strings.Builder
	for _, tag := range hashtags {
		link := fmt.Sprintf("[`#%s`](https://tiktok.com/tag/%s) ", tag, tag)
		if b.Len()+len(link)+1 >= tagFieldLimit {
			return strings.TrimSuffix(b.String(), " ") + " ..."
		}
		b.WriteString(link)
	}
	return b.String()
}

func (e *extension) musicInfo(ctx *core.ComponentContext) error {
	if err := ctx.Defer(true); err != nil {
		return err
	}
	id := strings.TrimPrefix(ctx.CustomID, "m_id")
	notFound := core.NewFriendlyError("We were unable to fetch the TikTok music.", codeNoMusic)
	if e.Details == nil {
		return notFound
	}
	music, err := e.Details.FetchMusic(ctx.Context(), id)
	if err != nil {
		if errors.Is(err, tt.ErrNotFound) {
			notFound.Err = err
			return notFound
		}
		return apiError(err, notFound)
	}

	link := "https://www.tiktok.com/music/quickvids-" + id
	return ctx.Reply(core.Message{
		Embeds: []*discordgo.MessageEmbed{musicEmbed(music, link)},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Style: discordgo.LinkButton, Label: "Download", URL: music.PlayURL.First()},
				discordgo.Button{Style: discordgo.LinkButton, Label: "View on TikTok", URL: link},
			}},
		},
		Ephemeral: true,
	})
}

func musicEmbed(music *tt.Music, link string) *discordgo.MessageEmbed {
	return embed.NewEmbed().
		SetDescription(fmt.Sprintf("### [%s](%s)", music.Title, link)).
		SetColor(theme.MusicInfo()).
		SetAuthor(music.Author, music.CoverThumb.First(), "https://tiktok.com/@"+music.OwnerID.String()).
		SetThumbnail(music.CoverLarge.First()).
		AddField("Video Count 📱", strconv.FormatInt(music.UserCount, 10)).
		MessageEmbed
}
