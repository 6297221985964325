package tiktok

import (
	"errors"

	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	tt "github.com/small-frappuccino/quickvids/pkg/tiktok"
)

const (
	codeNoLink       = "7nVqDXkrHG"
	codeUserLink     = "b7ZHXYyeEB"
	codeNoPost       = "sWngEsstrV"
	codeNoMusic      = "wCdPsqWMsj"
	codeShortURL     = "WrkKanvMfC"
	codeStatus       = "DbrqXPgP4G"
	codeUnavailable  = "QNkBD4zzzA"
	msgNoLink        = "We did not see a valid TikTok or Instagram link."
	msgNoTikTokLink  = "We did not see a valid TikTok link."
	msgUserLink      = "At this time, we do not support TikTok user links. Suggest a use case in our support server!"
	msgShortURLError = "Sorry, there was an error creating a short url for that tiktok post. Please join the support server for help. [Support Server](<https://discord.gg/WrkKanvMfC>)\n\nError Code: `WrkKanvMfC`"
)

func verbatim(message, code string, cause error) *core.FriendlyError {
	return &core.FriendlyError{Message: message, Code: code, Verbatim: true, Err: cause}
}

func fetchErrorMessage(code string) string {
	return "Sorry, there was an error fetching that tiktok post. Please join the support server for help. " +
		"[Support Server](<https://discord.gg/" + code + ">)\n\nError Code: `" + code + "`"
}

// apiError maps a detail-API failure onto the message shown to the user.
// notFound is the friendly fallback for errors the API did not classify.
func apiError(err error, notFound *core.FriendlyError) *core.FriendlyError {
	switch {
	case errors.Is(err, tt.ErrStatus):
		return verbatim(fetchErrorMessage(codeStatus), codeStatus, err)
	case errors.Is(err, tt.ErrUnavailable):
		return verbatim("This TikTok is not available.\n\n"+
			"This could be because the TikTok was deleted, the owner of the TikTok has a private account, or the TikTok is under review.\n\n"+
			"If you believe this is a mistake, please join the support server for help. [Support Server](<https://discord.gg/QNkBD4zzzA>)\n\n"+
			"Error Code: `QNkBD4zzzA`", codeUnavailable, err)
	case errors.Is(err, tt.ErrTransport):
		return verbatim(fetchErrorMessage(codeShortURL), codeShortURL, err)
	default:
		notFound.Err = err
		return notFound
	}
}
