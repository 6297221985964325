// Package mention links Discord users to their TikTok accounts so the bot can
// notify them when they are mentioned on TikTok.
package mention

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/discord/premium"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	tt "github.com/small-frappuccino/quickvids/pkg/tiktok"
)

// Store is the persistence behind magic mentions.
type Store interface {
	GuildConfig(guildID string) (storage.GuildConfig, error)
	MagicMention(discordID string) (storage.MagicMention, bool, error)
	MagicMentionBySecUID(secUID string) (storage.MagicMention, bool, error)
	LinkMagicMention(discordID, secUID, uid string) error
	UnlinkMagicMention(discordID string) error
	EnableMagicMention(discordID, guildID string) (bool, error)
	DisableMagicMention(discordID, guildID string) (bool, error)
}

// Users looks TikTok profiles up.
type Users interface {
	FetchUser(ctx context.Context, q tt.UserQuery) (*tt.User, error)
}

type Options struct {
	Store   Store
	Users   Users
	Premium *premium.Gate
}

// Autocomplete sentinel values. Discord sends the chosen value back as the
// option value, so they double as commands.
const (
	valueStartSearch = "ERROR:start_search"
	valueUnlink      = "QUICKVIDS:UNLINK"
	valueCantFind    = "QUICKVIDS:CANT_FIND"
)

const (
	codeCantFind   = "adwpQcyHvm"
	codeBadSecUID  = "3E9hetCUcc"
	codeCodeAbsent = "A2kZmqwKuu"
)

type extension struct {
	Options
	cmd *core.Command
}

func NewExtension(opts Options) *core.Extension {
	e := &extension{Options: opts}
	ext := core.NewExtension("mention")

	e.cmd = ext.SlashCommand(core.CommandMeta{
		Name:        "mention",
		Description: "Mention Magic alllow you to mention the bot on TikTok and send to channel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "link",
				Description: "Link your TikTok account to your Discord account",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionString,
						Name:         "username",
						Description:  "Type in your username, nickname will work, but it's better to use your username",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "view",
				Description: "View what servers you have enabled your mentions for",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "enable",
				Description: "Enable your mentions for this server",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "disable",
				Description: "Disable your mentions for this server",
			},
		},
		Contexts: []discordgo.InteractionContextType{discordgo.InteractionContextGuild},
		Autocomplete: map[string]core.AutocompleteHandler{
			"username": e.autocompleteUsername,
		},
	}, e.mention)

	ext.MustPersistentComponent(`^verify.+$`, e.verify, "verifyMS4wLjABAAAAv7iSuuXDJGDvJkmH_vz1qkDZYo1apxgzaxdBSeIuPiM")
	return ext
}

func (e *extension) mention(ctx *core.SlashCommandContext) error {
	path := ctx.Subcommand()
	if len(path) == 0 {
		return ctx.Reply(core.Ephemeral("Oops! Something went wrong!"))
	}
	switch path[0] {
	case "link":
		return e.link(ctx)
	case "view":
		return e.view(ctx)
	case "enable":
		return e.enable(ctx)
	case "disable":
		return e.disable(ctx)
	default:
		return ctx.Reply(core.Ephemeral("Oops! Something went wrong!"))
	}
}

// genCode derives the five-digit code a user must put in their TikTok bio.
func genCode(input string) int {
	sum := sha256.Sum256([]byte(input))
	head, _ := strconv.ParseInt(hex.EncodeToString(sum[:])[:4], 16, 64)
	return int(head%90000) + 10000
}

// secUIDPrefix is what every sec_uid decodes to at its start.
const secUIDPrefix = "1.0.0\x01\x00\x00\x00"

// validSecUID rejects values typed by hand instead of picked from the
// autocomplete menu. Only the leading 12 characters are decoded since the
// rest uses the URL-safe alphabet.
func validSecUID(secUID string) bool {
	if len(secUID) < 12 {
		return false
	}
	head, err := base64.StdEncoding.DecodeString(secUID[:12])
	if err != nil {
		return false
	}
	return strings.HasPrefix(string(head), secUIDPrefix)
}

func codeMessage(text, code string) *core.FriendlyError {
	return &core.FriendlyError{
		Message:  text + "[Support Server](<https://discord.gg/" + code + ">)\n\nError Code: `" + code + "`",
		Code:     code,
		Verbatim: true,
	}
}

func cantFind(cause error) *core.FriendlyError {
	fe := codeMessage("Sorry we couldn't find your TikTok account, come join our ", codeCantFind)
	fe.Err = cause
	return fe
}

func (e *extension) notLinked(ctx *core.SlashCommandContext) error {
	return ctx.Reply(core.Ephemeral("You have not linked your TikTok account to your Discord account.\nUse " +
		e.cmd.Mention("link") + " command to link your account."))
}
