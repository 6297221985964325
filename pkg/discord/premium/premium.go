// Package premium gates features behind a QuickVids Premium subscription.
package premium

import (
	"fmt"

	embed "github.com/Clinet/discordgo-embed"
	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	"github.com/small-frappuccino/quickvids/pkg/theme"
)

// AccountStore is the slice of the store the premium check needs.
type AccountStore interface {
	Account(userID string) (storage.Account, error)
}

// Gate checks premium status and renders the upsell shown to everyone else.
type Gate struct {
	store   AccountStore
	webBase string
}

func NewGate(store AccountStore, webBase string) *Gate {
	return &Gate{store: store, webBase: webBase}
}

// HasSubscription reports whether any entitlement is an app subscription.
func HasSubscription(ents []*discordgo.Entitlement) bool {
	for _, e := range ents {
		if e != nil && e.Type == discordgo.EntitlementTypeApplicationSubscription && !e.Deleted {
			return true
		}
	}
	return false
}

// Verify reports whether the user has premium through Discord or the website.
func (g *Gate) Verify(userID string, ents []*discordgo.Entitlement) (bool, error) {
	if HasSubscription(ents) {
		return true, nil
	}
	acc, err := g.store.Account(userID)
	if err != nil {
		return false, fmt.Errorf("verify premium: %w", err)
	}
	return acc.HasPremium, nil
}

// Require replies with the premium wall when the invoking user lacks premium.
// ok is false when the caller should stop.
func (g *Gate) Require(ic *core.InteractionContext) (ok bool, err error) {
	has, err := g.Verify(ic.AuthorID(), ic.Entitlements())
	if err != nil {
		return false, err
	}
	if has {
		return true, nil
	}
	appID := ""
	if ic.Interaction != nil {
		appID = ic.Interaction.AppID
	}
	return false, ic.Reply(g.Wall(appID))
}

// Wall is the ephemeral upsell message.
func (g *Gate) Wall(appID string) core.Message {
	desc := fmt.Sprintf("Unlock the full power of QuickVids with QuickVids Premium! "+
		"This exclusive feature is reserved for our Premium users. You can easily upgrade to QuickVids Premium "+
		"through our [website](%s/premium) or directly within Discord via "+
		"[App Subscriptions](https://discord.com/application-directory/%s/premium).\n\n"+
		"By subscribing to QuickVids Premium, you not only gain access to this exclusive command but also support "+
		"our mission to keep the bot running smoothly. And the best part? **It's just $3 a month!**",
		g.webBase, appID)

	e := embed.NewEmbed().
		SetTitle("QuickVids Premium").
		SetDescription(desc).
		SetColor(theme.Premium()).
		SetFooter("Prefered purchase method is through the website.")

	return core.Message{
		Embeds: []*discordgo.MessageEmbed{e.MessageEmbed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Check out Premium", Style: discordgo.LinkButton, URL: g.webBase + "/premium"},
			}},
		},
		Ephemeral: true,
	}
}
