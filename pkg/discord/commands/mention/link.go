package mention

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	embed "github.com/Clinet/discordgo-embed"
	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	"github.com/small-frappuccino/quickvids/pkg/theme"
	tt "github.com/small-frappuccino/quickvids/pkg/tiktok"
)

func (e *extension) startChoices(authorID string) []*discordgo.ApplicationCommandOptionChoice {
	choices := []*discordgo.ApplicationCommandOptionChoice{
		{Name: "Start typing a username!", Value: valueStartSearch},
	}
	if _, linked, _ := e.Store.MagicMention(authorID); linked {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name: "--> Want to unlink your TikTok account?", Value: valueUnlink,
		})
	}
	return choices
}

func (e *extension) autocompleteUsername(ctx *core.AutocompleteContext) error {
	username := ctx.Value()
	if len(username) < 2 {
		return ctx.Choices(e.startChoices(ctx.AuthorID()))
	}
	user, err := e.Users.FetchUser(ctx.Context(), tt.UserQuery{UniqueID: username})
	if err != nil {
		if !errors.Is(err, tt.ErrNotFound) {
			ctx.Logger.Warn("User search failed", "username", username, "error", err)
		}
		return ctx.Choices([]*discordgo.ApplicationCommandOptionChoice{
			{Name: "No users found | Make sure you are NOT using the Nickname", Value: valueCantFind},
			{Name: "--> Can't find who you are looking for?", Value: valueCantFind},
		})
	}
	return ctx.Choices([]*discordgo.ApplicationCommandOptionChoice{{
		Name:  fmt.Sprintf("@%s | %s Followers", user.UniqueID, humanize.Comma(user.FollowerCount)),
		Value: user.SecUID,
	}})
}

func (e *extension) link(ctx *core.SlashCommandContext) error {
	if e.Premium != nil {
		if ok, err := e.Premium.Require(ctx.InteractionContext); err != nil || !ok {
			return err
		}
	}

	secUID := ctx.StringOption("username", "")
	switch secUID {
	case valueCantFind:
		return cantFind(nil)
	case valueStartSearch:
		return ctx.Reply(core.Ephemeral("Oops! Use the command again, but this time, start typing a username."))
	case valueUnlink:
		if err := e.Store.UnlinkMagicMention(ctx.AuthorID()); err != nil {
			return fmt.Errorf("unlink: %w", err)
		}
		return ctx.Reply(core.Ephemeral("You have successfully unlinked your TikTok account from your Discord account."))
	}
	if !validSecUID(secUID) {
		return codeMessage("Please make sure to use the autocomplete menu, or if it's not working, join our ", codeBadSecUID)
	}

	if err := ctx.Defer(true); err != nil {
		return err
	}
	user, err := e.Users.FetchUser(ctx.Context(), tt.UserQuery{SecUID: secUID})
	if err != nil {
		return cantFind(err)
	}

	code := genCode(user.SecUID + ctx.AuthorID())
	if !strings.Contains(user.Signature, strconv.Itoa(code)) {
		return ctx.Reply(verifyPrompt(user, code))
	}
	return e.complete(ctx.InteractionContext, user)
}

// verify re-checks the bio after the user added the code.
func (e *extension) verify(ctx *core.ComponentContext) error {
	secUID := strings.TrimPrefix(ctx.CustomID, "verify")
	if err := ctx.Defer(true); err != nil {
		return err
	}
	user, err := e.Users.FetchUser(ctx.Context(), tt.UserQuery{SecUID: secUID})
	if err != nil {
		return cantFind(err)
	}
	code := genCode(user.SecUID + ctx.AuthorID())
	if !strings.Contains(user.Signature, strconv.Itoa(code)) {
		return codeMessage(fmt.Sprintf("We still can't find the code in your bio, please make sure you added `%d` to your bio "+
			"and try again. (Bio changes can take a few minutes)\n\nIf you are still having issues, come join our ", code), codeCodeAbsent)
	}
	return e.complete(ctx.InteractionContext, user)
}

// complete stores the link once the bio code was found.
func (e *extension) complete(ic *core.InteractionContext, user *tt.User) error {
	owner, found, err := e.Store.MagicMentionBySecUID(user.SecUID)
	if err != nil {
		return fmt.Errorf("lookup link owner: %w", err)
	}
	if found {
		if owner.DiscordID == ic.AuthorID() {
			return ic.Reply(core.Ephemeral("You have already linked this account to your Discord account."))
		}
		return ic.Reply(core.Ephemeral("This TikTok account is already linked to another Discord account."))
	}

	err = e.Store.LinkMagicMention(ic.AuthorID(), user.SecUID, user.UID.String())
	if errors.Is(err, storage.ErrAlreadyLinked) {
		return ic.Reply(core.Ephemeral("This TikTok account is already linked to another Discord account."))
	}
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	ic.Logger.Info("TikTok account linked", "sec_uid", user.SecUID)

	success := embed.NewEmbed().
		SetTitle("🎉 Success!").
		SetDescription("You have successfully linked your TikTok account to your Discord account!\n"+
			"Don't forget to enable your Magic Mentions for this server (if you want)").
		SetColor(theme.Mention()).
		AddField("Next Steps", "1. You can use "+e.cmd.Mention("enable")+
			" to enable your Magic Mentions for any server\n2. Remove the code from your bio").
		SetFooter("You can unlink your account with /mention link")
	return ic.Reply(core.Message{Embeds: []*discordgo.MessageEmbed{success.MessageEmbed}, Ephemeral: true})
}

func verifyPrompt(user *tt.User, code int) core.Message {
	e := embed.NewEmbed().
		SetTitle("Wait a minute!").
		SetDescription(fmt.Sprintf("We need to make sure you are actually [@%s](%s) 🕵️", user.UniqueID, user.ShareInfo.ShareURL)).
		SetColor(theme.Mention()).
		AddField("So what do I do?", fmt.Sprintf("Please add this code to your TikTok bio: **`%d`**", code)).
		AddField("How do I do that?", "Check out this [TikTok video](https://www.tiktok.com/@savethatvideo/video/7145990005238861099) for help.").
		AddField("Heads Up!", "TikTok can take a little bit of time to publish your bio change, so please be patient with the re-check button.").
		SetThumbnail(user.AvatarLarger.First()).
		SetFooter("Don't worry, you can change your bio back after you've linked your account.")

	return core.Message{
		Embeds: []*discordgo.MessageEmbed{e.MessageEmbed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Style: discordgo.PrimaryButton, Label: "Verify", CustomID: "verify" + user.SecUID},
			}},
		},
		Ephemeral: true,
	}
}
