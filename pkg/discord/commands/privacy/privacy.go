// Package privacy registers /privacy: the policy link and usage-data controls.
package privacy

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/storage"
)

const policyURL = "https://quickvids.app/privacy"

// Store is the account surface /privacy needs.
type Store interface {
	Account(userID string) (storage.Account, error)
	SetLogUsageData(userID string, collect bool) error
	DeleteUsageData(userID string) (int64, error)
}

type privacyCommand struct {
	store Store
}

func NewExtension(store Store) *core.Extension {
	c := &privacyCommand{store: store}
	ext := core.NewExtension("privacy")
	ext.SlashCommand(core.CommandMeta{
		Name:         "privacy",
		Description:  "Inform yourself of some of the data we collect.",
		DMPermission: true,
		IntegrationTypes: []discordgo.ApplicationIntegrationType{
			discordgo.ApplicationIntegrationGuildInstall,
			discordgo.ApplicationIntegrationUserInstall,
		},
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "policy",
				Description: "View our privacy policy.",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "usage",
				Description: "Manage your usage data.",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "data",
					Description: "View or change whether we collect your usage data.",
					Options: []*discordgo.ApplicationCommandOption{{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "collect",
						Description: "Allow us to collect your usage data?",
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "Yes (collect data)", Value: "yes"},
							{Name: "No (do not collect identifiable data)", Value: "no"},
							{Name: "Delete (delete usage data & opt out)", Value: "delete"},
						},
					}},
				}},
			},
		},
	}, c.handle)
	return ext
}

func (c *privacyCommand) handle(ctx *core.SlashCommandContext) error {
	path := ctx.Subcommand()
	if len(path) == 0 {
		return ctx.Reply(core.Ephemeral("Oops! Something went wrong!"))
	}
	switch path[0] {
	case "policy":
		return ctx.Reply(core.Ephemeral("Our Privacy Policy can be found at " + policyURL))
	case "usage":
		return c.usageData(ctx)
	default:
		return ctx.Reply(core.Ephemeral("Oops! Something went wrong!"))
	}
}

func (c *privacyCommand) usageData(ctx *core.SlashCommandContext) error {
	if err := ctx.Defer(true); err != nil {
		return err
	}
	user := ctx.AuthorID()

	switch ctx.StringOption("collect", "") {
	case "yes":
		if err := c.store.SetLogUsageData(user, true); err != nil {
			return fmt.Errorf("opt in: %w", err)
		}
		return ctx.Reply(core.Ephemeral("You have opted in to data collection. Thank you for your support! 🎉"))
	case "no":
		if err := c.store.SetLogUsageData(user, false); err != nil {
			return fmt.Errorf("opt out: %w", err)
		}
		return ctx.Reply(core.Ephemeral("You have opted out of data collection. We respect your privacy. 🛡️"))
	case "delete":
		n, err := c.store.DeleteUsageData(user)
		if err != nil {
			return fmt.Errorf("delete usage data: %w", err)
		}
		ctx.Logger.Info("Usage data deleted", "rows", n)
		return ctx.Reply(core.Ephemeral("You have opted out of data collection and your usage data has been deleted. We respect your privacy. 🛡️"))
	}

	acc, err := c.store.Account(user)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	status := "Opted-out"
	if acc.LogUsageData {
		status = "Opted-in"
	}
	return ctx.Reply(core.Ephemeral(fmt.Sprintf("You are currently: %s \n\n"+
		"**We take your privacy seriously.**\n"+
		"Your data is not public. Usage data provides statistics like total videos converted and total users. "+
		"Please consider sharing your usage data with us to help improve our app. "+
		"View the policy command for more information on how we handle your privacy.", status)))
}
