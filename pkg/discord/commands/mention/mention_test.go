package mention

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/commandtest"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/discord/premium"
	"github.com/small-frappuccino/quickvids/pkg/storage"
	tt "github.com/small-frappuccino/quickvids/pkg/tiktok"
)

const testSecUID = "MS4wLjABAAAAv7iSuuXDJGDvJkmH_vz1qkDZYo1apxgzaxdBSeIuPiM"

type fakeUsers struct {
	bySecUID   map[string]*tt.User
	byUniqueID map[string]*tt.User
}

func (f *fakeUsers) FetchUser(_ context.Context, q tt.UserQuery) (*tt.User, error) {
	if u, ok := f.bySecUID[q.SecUID]; ok && q.SecUID != "" {
		return u, nil
	}
	if u, ok := f.byUniqueID[q.UniqueID]; ok && q.UniqueID != "" {
		return u, nil
	}
	return nil, fmt.Errorf("%w: user", tt.ErrNotFound)
}

type fixture struct {
	session *discordgo.Session
	api     *commandtest.API
	store   *storage.Store
	users   *fakeUsers
	client  *core.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	session, api := commandtest.NewSession(t)
	f := &fixture{
		session: session,
		api:     api,
		store:   commandtest.Store(t),
		users: &fakeUsers{
			bySecUID:   map[string]*tt.User{},
			byUniqueID: map[string]*tt.User{},
		},
	}
	if err := f.store.SetPremium(commandtest.UserID, true); err != nil {
		t.Fatalf("set premium: %v", err)
	}
	f.client = commandtest.Client(t, NewExtension(Options{
		Store:   f.store,
		Users:   f.users,
		Premium: premium.NewGate(f.store, "https://quickvids.app"),
	}))
	return f
}

func (f *fixture) addUser(bio string) *tt.User {
	u := &tt.User{
		UID:           "6789",
		SecUID:        testSecUID,
		UniqueID:      "dancer",
		Signature:     bio,
		FollowerCount: 1234,
		ShareInfo:     tt.ShareInfo{ShareURL: "https://www.tiktok.com/@dancer"},
	}
	f.users.bySecUID[u.SecUID] = u
	f.users.byUniqueID[u.UniqueID] = u
	return u
}

func (f *fixture) dispatch(i *discordgo.Interaction) *commandtest.Responses {
	return commandtest.Dispatch(f.client, f.session, i)
}

func linkCmd(value string) *discordgo.Interaction {
	return commandtest.Slash("mention", commandtest.Sub("link", commandtest.String("username", value)))
}

func TestGenCode(t *testing.T) {
	if got := genCode("MS4wLjABAAAAsec" + commandtest.UserID); got != 75060 {
		t.Fatalf("genCode = %d, want 75060", got)
	}
	for _, in := range []string{"", "a", testSecUID + "1"} {
		if c := genCode(in); c < 10000 || c > 99999 {
			t.Fatalf("genCode(%q) = %d out of range", in, c)
		}
	}
}

func TestValidSecUID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: testSecUID, want: true},
		{in: "MS4wLjABAAAA", want: true},
		{in: "dancer", want: false},
		{in: "QUJDREVGR0hJSktM", want: false},
		{in: "!!!!!!!!!!!!!!!!", want: false},
	}
	for _, tc := range tests {
		if got := validSecUID(tc.in); got != tc.want {
			t.Fatalf("validSecUID(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func autocomplete(value string) *discordgo.Interaction {
	focused := commandtest.String("username", value)
	focused.Focused = true
	i := commandtest.Slash("mention", commandtest.Sub("link", focused))
	i.Type = discordgo.InteractionApplicationCommandAutocomplete
	return i
}

func TestAutocomplete(t *testing.T) {
	f := newFixture(t)
	f.addUser("")

	resp := f.dispatch(autocomplete("d")).Last()
	if resp == nil || resp.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Fatalf("expected autocomplete result, got %+v", resp)
	}
	if len(resp.Data.Choices) != 1 || resp.Data.Choices[0].Value != valueStartSearch {
		t.Fatalf("unexpected choices %+v", resp.Data.Choices)
	}

	resp = f.dispatch(autocomplete("dancer")).Last()
	if c := resp.Data.Choices; len(c) != 1 || c[0].Name != "@dancer | 1,234 Followers" || c[0].Value != testSecUID {
		t.Fatalf("unexpected choices %+v", c)
	}

	resp = f.dispatch(autocomplete("nobody")).Last()
	if c := resp.Data.Choices; len(c) != 2 || c[0].Value != valueCantFind {
		t.Fatalf("unexpected choices %+v", c)
	}

	if err := f.store.LinkMagicMention(commandtest.UserID, testSecUID, "6789"); err != nil {
		t.Fatalf("link: %v", err)
	}
	resp = f.dispatch(autocomplete("")).Last()
	if c := resp.Data.Choices; len(c) != 2 || c[1].Value != valueUnlink {
		t.Fatalf("expected unlink choice, got %+v", c)
	}
}

func TestLinkSentinels(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{value: valueCantFind, want: codeCantFind},
		{value: valueStartSearch, want: "start typing a username"},
		{value: "dancer", want: codeBadSecUID},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			f := newFixture(t)
			resp := f.dispatch(linkCmd(tc.value)).Last()
			if resp == nil || !strings.Contains(resp.Data.Content, tc.want) {
				t.Fatalf("expected %q in reply, got %+v", tc.want, resp)
			}
			if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
				t.Fatalf("reply must be ephemeral")
			}
		})
	}
}

func TestLinkAsksForBioCode(t *testing.T) {
	f := newFixture(t)
	f.addUser("just dancing")

	f.dispatch(linkCmd(testSecUID))
	followups := commandtest.Followups(t, f.api)
	if len(followups) != 1 || len(followups[0].Embeds) != 1 {
		t.Fatalf("expected verify prompt, got %+v", followups)
	}
	code := strconv.Itoa(genCode(testSecUID + commandtest.UserID))
	if e := followups[0].Embeds[0]; e.Title != "Wait a minute!" || !strings.Contains(e.Fields[0].Value, code) {
		t.Fatalf("unexpected prompt %+v", e)
	}
	if !strings.Contains(string(followups[0].Components), `"custom_id":"verify`+testSecUID+`"`) {
		t.Fatalf("expected verify button, got %s", followups[0].Components)
	}
	if _, linked, _ := f.store.MagicMention(commandtest.UserID); linked {
		t.Fatalf("account must not be linked before verification")
	}
}

func TestLinkWithCodeInBio(t *testing.T) {
	f := newFixture(t)
	f.addUser("hi " + strconv.Itoa(genCode(testSecUID+commandtest.UserID)))

	f.dispatch(linkCmd(testSecUID))
	link, linked, err := f.store.MagicMention(commandtest.UserID)
	if err != nil || !linked || link.UID != "6789" {
		t.Fatalf("expected stored link, got %+v %v %v", link, linked, err)
	}
	followups := commandtest.Followups(t, f.api)
	if len(followups) != 1 || followups[0].Embeds[0].Title != "🎉 Success!" {
		t.Fatalf("expected success embed, got %+v", followups)
	}

	f.dispatch(linkCmd(testSecUID))
	followups = commandtest.Followups(t, f.api)
	if followups[1].Content != "You have already linked this account to your Discord account." {
		t.Fatalf("unexpected second link reply %q", followups[1].Content)
	}
}

func TestLinkTakenByAnotherUser(t *testing.T) {
	f := newFixture(t)
	f.addUser(strconv.Itoa(genCode(testSecUID + commandtest.UserID)))
	if err := f.store.LinkMagicMention("someone-else", testSecUID, "6789"); err != nil {
		t.Fatalf("link: %v", err)
	}

	f.dispatch(linkCmd(testSecUID))
	followups := commandtest.Followups(t, f.api)
	if len(followups) != 1 || followups[0].Content != "This TikTok account is already linked to another Discord account." {
		t.Fatalf("unexpected reply %+v", followups)
	}
}

func TestLinkRequiresPremium(t *testing.T) {
	f := newFixture(t)
	if err := f.store.SetPremium(commandtest.UserID, false); err != nil {
		t.Fatalf("set premium: %v", err)
	}
	resp := f.dispatch(linkCmd(testSecUID)).Last()
	if resp == nil || len(resp.Data.Embeds) != 1 || resp.Data.Embeds[0].Title != "QuickVids Premium" {
		t.Fatalf("expected premium wall, got %+v", resp)
	}
}

func TestUnlink(t *testing.T) {
	f := newFixture(t)
	if err := f.store.LinkMagicMention(commandtest.UserID, testSecUID, "6789"); err != nil {
		t.Fatalf("link: %v", err)
	}
	resp := f.dispatch(linkCmd(valueUnlink)).Last()
	if !strings.Contains(resp.Data.Content, "successfully unlinked") {
		t.Fatalf("unexpected reply %q", resp.Data.Content)
	}
	if _, linked, _ := f.store.MagicMention(commandtest.UserID); linked {
		t.Fatalf("expected link removed")
	}
}

func TestVerifyButton(t *testing.T) {
	f := newFixture(t)
	u := f.addUser("no code yet")

	f.dispatch(commandtest.Button("verify" + testSecUID))
	followups := commandtest.Followups(t, f.api)
	if len(followups) != 1 || !strings.Contains(followups[0].Content, codeCodeAbsent) {
		t.Fatalf("expected missing code message, got %+v", followups)
	}

	u.Signature = strconv.Itoa(genCode(testSecUID + commandtest.UserID))
	f.dispatch(commandtest.Button("verify" + testSecUID))
	if _, linked, _ := f.store.MagicMention(commandtest.UserID); !linked {
		t.Fatalf("expected link after verification")
	}
}

func TestEnableDisable(t *testing.T) {
	f := newFixture(t)
	sub := func(name string) *discordgo.Interaction {
		return commandtest.Slash("mention", commandtest.Sub(name))
	}

	resp := f.dispatch(sub("enable")).Last()
	if !strings.Contains(resp.Data.Content, "has not enabled this feature") {
		t.Fatalf("unexpected reply %q", resp.Data.Content)
	}

	if _, err := f.store.UpdateGuildConfig("guild-1", func(c *storage.GuildConfig) error {
		c.MentionMagicChannel = "channel-9"
		return nil
	}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	resp = f.dispatch(sub("enable")).Last()
	if !strings.Contains(resp.Data.Content, "have not linked") || !strings.Contains(resp.Data.Content, "/mention link") {
		t.Fatalf("unexpected reply %q", resp.Data.Content)
	}

	if err := f.store.LinkMagicMention(commandtest.UserID, testSecUID, "6789"); err != nil {
		t.Fatalf("link: %v", err)
	}
	steps := []struct {
		name string
		want string
	}{
		{name: "enable", want: "You have successfully enabled your mentions for this server."},
		{name: "enable", want: "You have already enabled your mentions for this server."},
		{name: "disable", want: "You have successfully disabled your mentions for this server."},
		{name: "disable", want: "You have not enabled your mentions for this server."},
	}
	for _, s := range steps {
		if got := f.dispatch(sub(s.name)).Last().Data.Content; got != s.want {
			t.Fatalf("%s: got %q want %q", s.name, got, s.want)
		}
	}
}

func TestView(t *testing.T) {
	f := newFixture(t)
	view := commandtest.Slash("mention", commandtest.Sub("view"))

	if err := f.store.LinkMagicMention(commandtest.UserID, testSecUID, "6789"); err != nil {
		t.Fatalf("link: %v", err)
	}
	resp := f.dispatch(view).Last()
	if !strings.Contains(resp.Data.Content, "not enabled your mentions for any servers") {
		t.Fatalf("unexpected reply %q", resp.Data.Content)
	}

	for _, g := range []string{"guild-1", "guild-2", "gone"} {
		if _, err := f.store.EnableMagicMention(commandtest.UserID, g); err != nil {
			t.Fatalf("enable %s: %v", g, err)
		}
	}
	if _, err := f.store.UpdateGuildConfig("guild-1", func(c *storage.GuildConfig) error {
		c.MentionMagicChannel = "channel-9"
		return nil
	}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	f.api.Stub(http.MethodGet, "/guilds/guild-1", http.StatusOK, `{"id":"guild-1","name":"Dance Club"}`)
	f.api.Stub(http.MethodGet, "/guilds/guild-2", http.StatusOK, `{"id":"guild-2","name":"Cooking"}`)
	f.api.Stub(http.MethodGet, "/guilds/gone", http.StatusNotFound, `{"message":"Unknown Guild","code":10004}`)

	f.dispatch(view)
	followups := commandtest.Followups(t, f.api)
	if len(followups) != 1 || len(followups[0].Embeds) != 1 {
		t.Fatalf("expected one embed follow-up, got %+v", followups)
	}
	desc := followups[0].Embeds[0].Description
	want := "You have enabled your mentions for 2 servers.\n\n" +
		"- [Dance Club](https://discord.com/channels/guild-1/channel-9)\n" +
		"- Cooking\n"
	if desc != want {
		t.Fatalf("unexpected description:\n%s", desc)
	}
}
