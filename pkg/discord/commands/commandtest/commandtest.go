// Package commandtest holds helpers for testing extensions against a fake
// Discord API. It is imported from _test.go files only.
package commandtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/quickvids/pkg/discord/commands/core"
	"github.com/small-frappuccino/quickvids/pkg/storage"
)

// UserID invokes every interaction built by this package.
const UserID = "100000000000000001"

// Request is one REST call seen by the fake API.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

type stub struct {
	method string
	prefix string
	status int
	body   string
}

// API records REST calls and answers them from registered stubs, or with a
// generic message object.
type API struct {
	mu       sync.Mutex
	requests []Request
	stubs    []stub
}

// Stub answers method requests whose path starts with prefix.
func (a *API) Stub(method, prefix string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stubs = append(a.stubs, stub{method: method, prefix: prefix, status: status, body: body})
}

// Requests returns a copy of every call so far.
func (a *API) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Request(nil), a.requests...)
}

// Find returns the calls matching method whose path contains fragment.
func (a *API) Find(method, fragment string) []Request {
	var out []Request
	for _, r := range a.Requests() {
		if r.Method == method && strings.Contains(r.Path, fragment) {
			out = append(out, r)
		}
	}
	return out
}

func (a *API) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	a.mu.Lock()
	a.requests = append(a.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
	stubs := append([]stub(nil), a.stubs...)
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	for _, s := range stubs {
		if s.method == r.Method && strings.HasPrefix(r.URL.Path, s.prefix) {
			w.WriteHeader(s.status)
			_, _ = w.Write([]byte(s.body))
			return
		}
	}
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_, _ = w.Write([]byte(`{"id":"message-1","channel_id":"channel"}`))
}

// NewSession points discordgo at a recording server for the test's lifetime.
func NewSession(t *testing.T) (*discordgo.Session, *API) {
	t.Helper()
	api := &API{}
	server := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(server.Close)

	old := struct{ api, webhooks, channels, guilds, apps string }{
		discordgo.EndpointAPI, discordgo.EndpointWebhooks, discordgo.EndpointChannels, discordgo.EndpointGuilds, discordgo.EndpointApplications,
	}
	discordgo.EndpointAPI = server.URL + "/"
	discordgo.EndpointWebhooks = server.URL + "/webhooks/"
	discordgo.EndpointChannels = server.URL + "/channels/"
	discordgo.EndpointGuilds = server.URL + "/guilds/"
	discordgo.EndpointApplications = server.URL + "/applications"
	t.Cleanup(func() {
		discordgo.EndpointAPI = old.api
		discordgo.EndpointWebhooks = old.webhooks
		discordgo.EndpointChannels = old.channels
		discordgo.EndpointGuilds = old.guilds
		discordgo.EndpointApplications = old.apps
	})

	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	session.MaxRestRetries = 0
	return session, api
}

// Responses is a core.Responder that keeps every initial response.
type Responses struct {
	mu   sync.Mutex
	list []*discordgo.InteractionResponse
}

func (r *Responses) Respond(resp *discordgo.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, resp)
	return nil
}

func (r *Responses) All() []*discordgo.InteractionResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), r.list...)
}

// Last returns the latest response or nil.
func (r *Responses) Last() *discordgo.InteractionResponse {
	all := r.All()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// Slash builds a guild ChatInput interaction invoked by UserID.
func Slash(name string, options ...*core.Option) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "interaction-" + name,
		AppID:     "app",
		Token:     "token",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "guild-1",
		ChannelID: "channel-1",
		Context:   discordgo.InteractionContextGuild,
		Member:    &discordgo.Member{User: &discordgo.User{ID: UserID}},
		Data: discordgo.ApplicationCommandInteractionData{
			ID:          "cmd-" + name,
			Name:        name,
			CommandType: discordgo.ChatApplicationCommand,
			Options:     options,
		},
	}
}

// Sub builds a subcommand option.
func Sub(name string, children ...*core.Option) *core.Option {
	return &core.Option{Name: name, Type: discordgo.ApplicationCommandOptionSubCommand, Options: children}
}

// Group builds a subcommand group option.
func Group(name string, children ...*core.Option) *core.Option {
	return &core.Option{Name: name, Type: discordgo.ApplicationCommandOptionSubCommandGroup, Options: children}
}

// String builds a string option.
func String(name, value string) *core.Option {
	return &core.Option{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

// Bool builds a boolean option.
func Bool(name string, value bool) *core.Option {
	return &core.Option{Name: name, Type: discordgo.ApplicationCommandOptionBoolean, Value: value}
}

// Button builds a guild button click on message "message-1".
func Button(customID string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "interaction-button",
		AppID:     "app",
		Token:     "token",
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   "guild-1",
		ChannelID: "channel-1",
		Context:   discordgo.InteractionContextGuild,
		Member:    &discordgo.Member{User: &discordgo.User{ID: UserID}},
		Message:   &discordgo.Message{ID: "message-1", ChannelID: "channel-1"},
		Data: discordgo.MessageComponentInteractionData{
			CustomID:      customID,
			ComponentType: discordgo.ButtonComponent,
		},
	}
}

// Client builds a dispatcher over exts and fails the test on registry errors.
func Client(t *testing.T, exts ...*core.Extension) *core.Client {
	t.Helper()
	reg, err := core.BuildRegistry(exts...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return core.NewClient(reg)
}

// Dispatch runs one interaction through client and returns the initial responses.
func Dispatch(client *core.Client, session *discordgo.Session, i *discordgo.Interaction) *Responses {
	responses := &Responses{}
	client.Dispatch(core.Request{Session: session, Interaction: i, Responder: responses})
	return responses
}

// Store opens a fresh sqlite store under t.TempDir.
func Store(t *testing.T) *storage.Store {
	t.Helper()
	store := storage.NewStore(filepath.Join(t.TempDir(), "quickvids.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Followup is a decoded follow-up message. Components stay raw because
// discordgo cannot unmarshal them into the interface slice.
type Followup struct {
	Content    string                    `json:"content"`
	Embeds     []*discordgo.MessageEmbed `json:"embeds"`
	Flags      discordgo.MessageFlags    `json:"flags"`
	Components json.RawMessage           `json:"components"`
}

// Followups decodes every follow-up message posted through the interaction webhook.
func Followups(t *testing.T, api *API) []Followup {
	t.Helper()
	var out []Followup
	for _, r := range api.Find(http.MethodPost, "/webhooks/app/token") {
		var f Followup
		if err := json.Unmarshal(r.Body, &f); err != nil {
			t.Fatalf("decode follow-up: %v", err)
		}
		out = append(out, f)
	}
	return out
}
