package tiktok

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/errutil"
	"github.com/small-frappuccino/quickvids/pkg/storage"
)

func (e *extension) favorite(ctx *core.ComponentContext) error {
	return e.toggleFavorite(ctx, "fav", "unfav", "Remove From Library", e.Store.AddFavorite, storage.ErrAlreadyFavorite)
}

func (e *extension) unfavorite(ctx *core.ComponentContext) error {
	return e.toggleFavorite(ctx, "unfav", "fav", "Add to Library", e.Store.RemoveFavorite, storage.ErrNotFavorite)
}

// toggleFavorite updates the library and flips the clicked button in place.
func (e *extension) toggleFavorite(ctx *core.ComponentContext, prefix, next, label string,
	apply func(userID, videoID string) error, benign error) error {
	if err := ctx.DeferUpdate(); err != nil {
		return err
	}
	if e.Premium != nil {
		ok, err := e.Premium.Require(ctx.InteractionContext)
		if err != nil || !ok {
			return err
		}
	}

	videoID := strings.TrimPrefix(ctx.CustomID, prefix)
	if err := apply(ctx.AuthorID(), videoID); err != nil && !errors.Is(err, benign) {
		return fmt.Errorf("update library: %w", err)
	}

	host := ctx.Message()
	if host == nil {
		return nil
	}
	components := swapButton(host.Components, ctx.CustomID, next+videoID, label)
	return ctx.EditOrigin(core.Message{Content: host.Content, Components: components})
}

// swapButton copies rows, relabelling the button whose custom ID is from.
func swapButton(rows []discordgo.MessageComponent, from, to, label string) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, c := range rows {
		var row discordgo.ActionsRow
		switch r := c.(type) {
		case *discordgo.ActionsRow:
			row = *r
		case discordgo.ActionsRow:
			row = r
		default:
			out = append(out, c)
			continue
		}
		children := make([]discordgo.MessageComponent, 0, len(row.Components))
		for _, child := range row.Components {
			var btn discordgo.Button
			switch b := child.(type) {
			case *discordgo.Button:
				btn = *b
			case discordgo.Button:
				btn = b
			default:
				children = append(children, child)
				continue
			}
			if btn.CustomID == from {
				btn.CustomID = to
				btn.Label = label
			}
			children = append(children, btn)
		}
		row.Components = children
		out = append(out, row)
	}
	return out
}

// delete removes a converted video. Only its requester or members who can
// manage messages may do so.
func (e *extension) delete(ctx *core.ComponentContext) error {
	owner := strings.TrimPrefix(ctx.CustomID, "delete")
	canManage := ctx.MemberPermissions()&discordgo.PermissionManageMessages != 0
	if ctx.AuthorID() != owner && !canManage {
		return ctx.Reply(core.Ephemeral("You cannot delete someone else's message."))
	}

	host := ctx.Message()
	if err := ctx.DeferUpdate(); err != nil {
		return err
	}
	// The interaction token can delete the message it is attached to even
	// when the bot is not a member of the guild.
	err := ctx.Session.InteractionResponseDelete(ctx.Interaction)
	if err == nil || host == nil {
		return err
	}
	return errutil.HandleDiscordError("delete converted message", func() error {
		return ctx.Session.ChannelMessageDelete(host.ChannelID, host.ID)
	})
}
