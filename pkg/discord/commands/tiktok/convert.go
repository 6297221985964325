package tiktok

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	tt "github.com/small-frappuccino/quickvids/pkg/tiktok"
)

// conversion is a converted post ready to be sent.
type conversion struct {
	URL      string
	PostID   string
	Platform tt.Platform
}

func (e *extension) convertSlash(ctx *core.SlashCommandContext) error {
	return e.convert(ctx.InteractionContext, request{
		content: ctx.StringOption("link", ""),
		spoiler: ctx.BoolOption("spoiler", false),
		hidden:  ctx.BoolOption("hidden", false),
		method:  storage.EmbedMethodSlashCommand,
	})
}

func (e *extension) convertMessage(ctx *core.ContextMenuContext) error {
	content := ""
	if msg := ctx.TargetMessage(); msg != nil {
		content = msg.Content
	}
	return e.convert(ctx.InteractionContext, request{content: content, method: storage.EmbedMethodAppContextMenu})
}

type request struct {
	content string
	spoiler bool
	hidden  bool
	method  storage.EmbedMethod
}

func (e *extension) convert(ic *core.InteractionContext, req request) error {
	cfg := storage.DefaultGuildConfig("0")
	if !ic.IsDM() {
		var err error
		if cfg, err = e.Store.GuildConfig(ic.GuildID()); err != nil {
			return fmt.Errorf("load guild config: %w", err)
		}
	}

	var (
		conv *conversion
		err  error
	)
	if e.Converter != nil {
		conv, err = e.viaShortURLAPI(ic, req.content)
	} else {
		conv, err = e.viaDetails(ic, req.content, cfg)
	}
	if err != nil {
		return err
	}

	url := conv.URL
	if req.spoiler || isSpoilered(req.content) {
		url = "|| " + url + " ||"
	}
	msg := core.Message{Content: url, Ephemeral: req.hidden}
	if cfg.ShowButtons {
		msg.Components = conversionButtons(ic, conv)
	}
	if err := ic.Reply(msg); err != nil {
		return err
	}
	e.logConversion(ic, req.method, conv)
	return nil
}

// viaShortURLAPI hands the whole text to the short-URL API.
func (e *extension) viaShortURLAPI(ic *core.InteractionContext, content string) (*conversion, error) {
	if !tt.ContainsSupportedHost(content) {
		return nil, core.NewFriendlyError(msgNoLink, codeNoLink)
	}
	short, err := e.Converter.Create(ic.Context(), content)
	if err != nil {
		return nil, verbatim(msgShortURLError, codeShortURL, err)
	}
	return &conversion{URL: short.URL, PostID: short.PostID(), Platform: short.Platform()}, nil
}

// viaDetails detects the link locally, reuses a stored short link when the
// guild allows it and otherwise fetches the post to create one.
func (e *extension) viaDetails(ic *core.InteractionContext, content string, cfg storage.GuildConfig) (*conversion, error) {
	if e.Details == nil {
		return nil, core.NewFriendlyError(msgNoTikTokLink, codeNoLink)
	}
	link, ok := tt.FindLink(content)
	if !ok {
		return nil, core.NewFriendlyError(msgNoTikTokLink, codeNoLink)
	}
	if link.IDType == tt.IDShort {
		resolved, err := e.Details.ResolveShortLink(ic.Context(), link)
		if err != nil {
			return nil, core.NewFriendlyError(msgNoTikTokLink, codeNoLink, err)
		}
		link = resolved
	}
	switch link.Type {
	case tt.MediaTikTokUser:
		return nil, core.NewFriendlyError(msgUserLink, codeUserLink)
	case tt.MediaTikTokVideo, tt.MediaTikTokImage:
	default:
		return nil, core.NewFriendlyError(msgNoTikTokLink, codeNoLink)
	}

	conv := &conversion{PostID: link.ID, Platform: tt.PlatformTikTok}
	if !cfg.MarkdownLinks {
		existing, found, err := e.Store.ShortLinkByVideo(link.ID)
		if err != nil {
			ic.Logger.Warn("Short link lookup failed", "video_id", link.ID, "error", err)
		}
		if found {
			conv.URL = e.WebBaseURL + "/" + existing.Slug
			return conv, nil
		}
	}

	post, err := e.Details.FetchPost(ic.Context(), link.ID)
	if err != nil {
		return nil, apiError(err, core.NewFriendlyError(msgNoTikTokLink, codeNoLink))
	}
	if post.ShortURL == "" {
		return nil, core.NewFriendlyError("Something went wrong. Please try again later.", codeNoLink)
	}
	conv.URL = post.ShortURL
	return conv, nil
}

func isSpoilered(content string) bool {
	first := strings.Index(content, "||")
	return first >= 0 && strings.Contains(content[first+2:], "||")
}

func conversionButtons(ic *core.InteractionContext, conv *conversion) []discordgo.MessageComponent {
	var buttons []discordgo.MessageComponent
	if conv.Platform != tt.PlatformInstagram && conv.PostID != "" {
		buttons = append(buttons, discordgo.Button{
			Label:    "Info",
			Style:    discordgo.SecondaryButton,
			Emoji:    &discordgo.ComponentEmoji{Name: "🌐"},
			CustomID: "v_id" + conv.PostID,
		})
	}
	if ic.Interaction.Context != discordgo.InteractionContextPrivateChannel {
		buttons = append(buttons, discordgo.Button{
			Style:    discordgo.DangerButton,
			Emoji:    &discordgo.ComponentEmoji{Name: "🗑️"},
			CustomID: "delete" + ic.AuthorID(),
		})
	}
	if len(buttons) == 0 {
		return nil
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func (e *extension) logConversion(ic *core.InteractionContext, method storage.EmbedMethod, conv *conversion) {
	kept, err := e.Store.InsertEmbedLog(storage.EmbedLog{
		Method:    method,
		GuildID:   ic.GuildID(),
		ChannelID: ic.ChannelID(),
		VideoID:   conv.PostID,
		UserID:    ic.AuthorID(),
	})
	if err != nil && !errors.Is(err, storage.ErrNotInitialized) {
		ic.Logger.Warn("Failed to record embed log", "video_id", conv.PostID, "error", err)
	}
	if e.Usage == nil {
		return
	}
	data := map[string]any{
		"method":     method.String(),
		"guild_id":   ic.GuildID(),
		"channel_id": ic.ChannelID(),
		"video_id":   conv.PostID,
		"platform":   string(conv.Platform),
	}
	if kept {
		data["user_id"] = ic.AuthorID()
	}
	e.Usage.Log("usage", data)
}
