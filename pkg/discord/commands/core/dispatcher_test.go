package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   []byte
}

type apiRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *apiRecorder) add(req recordedRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *apiRecorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

// newTestSession points discordgo at a local server that records every call.
func newTestSession(t *testing.T) (*discordgo.Session, *apiRecorder) {
	t.Helper()
	rec := &apiRecorder{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.add(recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"message-1","channel_id":"channel"}`))
	}))
	t.Cleanup(server.Close)

	oldAPI := discordgo.EndpointAPI
	oldWebhooks := discordgo.EndpointWebhooks
	discordgo.EndpointAPI = server.URL + "/"
	discordgo.EndpointWebhooks = server.URL + "/webhooks/"
	t.Cleanup(func() {
		discordgo.EndpointAPI = oldAPI
		discordgo.EndpointWebhooks = oldWebhooks
	})

	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return session, rec
}

type responseLog struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
}

func (l *responseLog) Respond(resp *discordgo.InteractionResponse) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses = append(l.responses, resp)
	return nil
}

func (l *responseLog) all() []*discordgo.InteractionResponse {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), l.responses...)
}

func commandInteraction(name, guildID string, options ...*Option) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:      "interaction-" + name,
		AppID:   "app",
		Token:   "token",
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: guildID,
		Member:  &discordgo.Member{User: &discordgo.User{ID: "user-1"}},
		Data: discordgo.ApplicationCommandInteractionData{
			ID:          "cmd-" + name,
			Name:        name,
			CommandType: discordgo.ChatApplicationCommand,
			Options:     options,
		},
	}
}

func buttonInteraction(customID string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:    "interaction-button",
		AppID: "app",
		Token: "token",
		Type:  discordgo.InteractionMessageComponent,
		User:  &discordgo.User{ID: "user-1"},
		Data: discordgo.MessageComponentInteractionData{
			CustomID:      customID,
			ComponentType: discordgo.ButtonComponent,
		},
	}
}

func newClient(t *testing.T, exts ...*Extension) *Client {
	t.Helper()
	reg, err := BuildRegistry(exts...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return NewClient(reg)
}

func TestDispatchAutocompleteRoutesFocusedOption(t *testing.T) {
	session, _ := newTestSession(t)
	ext := NewExtension("tiktok")

	var gotValue string
	ext.SlashCommand(CommandMeta{
		Name: "tiktok",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "link", Autocomplete: true},
		},
		Autocomplete: map[string]AutocompleteHandler{
			"link": func(ctx *AutocompleteContext) error {
				gotValue = ctx.Value()
				return ctx.Choices([]*discordgo.ApplicationCommandOptionChoice{{Name: "first", Value: "1"}})
			},
		},
	}, func(*SlashCommandContext) error { return nil })

	client := newClient(t, ext)
	interaction := commandInteraction("tiktok", "guild",
		&Option{Name: "link", Type: discordgo.ApplicationCommandOptionString, Value: "https://vm.tik", Focused: true})
	interaction.Type = discordgo.InteractionApplicationCommandAutocomplete

	responses := &responseLog{}
	client.Dispatch(Request{Session: session, Interaction: interaction, Responder: responses})

	if gotValue != "https://vm.tik" {
		t.Fatalf("expected focused value to reach the binding, got %q", gotValue)
	}
	all := responses.all()
	if len(all) != 1 || all[0].Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Fatalf("expected one autocomplete result, got %+v", all)
	}
	if len(all[0].Data.Choices) != 1 || all[0].Data.Choices[0].Name != "first" {
		t.Fatalf("unexpected choices: %+v", all[0].Data.Choices)
	}
}

func TestDispatchAutocompleteMissIsSilent(t *testing.T) {
	session, rec := newTestSession(t)
	ext := NewExtension("tiktok")
	ext.SlashCommand(CommandMeta{Name: "tiktok"}, func(*SlashCommandContext) error { return nil })
	client := newClient(t, ext)

	interaction := commandInteraction("tiktok", "guild",
		&Option{Name: "other", Type: discordgo.ApplicationCommandOptionString, Value: "x", Focused: true})
	interaction.Type = discordgo.InteractionApplicationCommandAutocomplete

	responses := &responseLog{}
	client.Dispatch(Request{Session: session, Interaction: interaction, Responder: responses})

	if n := len(responses.all()); n != 0 {
		t.Fatalf("expected no response for missing binding, got %d", n)
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("expected no REST calls, got %d", n)
	}
}

func TestDispatchUnknownCommandIsSilent(t *testing.T) {
	session, rec := newTestSession(t)
	client := newClient(t, NewExtension("empty"))

	responses := &responseLog{}
	client.Dispatch(Request{Session: session, Interaction: commandInteraction("missing", "guild"), Responder: responses})

	if n := len(responses.all()); n != 0 {
		t.Fatalf("expected no reply for unknown command, got %d", n)
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("expected no REST calls, got %d", n)
	}
}

func TestUnknownCommandLogsError(t *testing.T) {
	client := newClient(t, NewExtension("empty"))
	base := NewInteractionContext(Request{Interaction: commandInteraction("missing", "guild"), Responder: &responseLog{}})

	var buf bytes.Buffer
	base.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client.HandleCommand(base)

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "command=missing") {
		t.Fatalf("expected an error log naming the command, got %q", out)
	}
}

func TestDispatchUnknownButtonIsSilent(t *testing.T) {
	session, _ := newTestSession(t)
	ext := NewExtension("tiktok")
	ext.MustPersistentComponent(`^fav\d+$`, func(*ComponentContext) error {
		t.Fatalf("handler must not run for a non-matching custom id")
		return nil
	}, "fav1")
	client := newClient(t, ext)

	responses := &responseLog{}
	client.Dispatch(Request{Session: session, Interaction: buttonInteraction("nothing-here"), Responder: responses})
	if n := len(responses.all()); n != 0 {
		t.Fatalf("expected no reply, got %d", n)
	}
}

func TestHandlerErrorNeverLeaks(t *testing.T) {
	tests := []struct {
		name    string
		handler SlashCommandHandler
	}{
		{name: "error", handler: func(*SlashCommandContext) error { return errors.New("boom") }},
		{name: "panic", handler: func(*SlashCommandContext) error { panic("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, _ := newTestSession(t)
			ext := NewExtension("broken")
			ext.SlashCommand(CommandMeta{Name: "cmd"}, tt.handler)
			client := newClient(t, ext)

			responses := &responseLog{}
			client.Dispatch(Request{Session: session, Interaction: commandInteraction("cmd", "guild"), Responder: responses})

			all := responses.all()
			if len(all) != 1 {
				t.Fatalf("expected 1 response, got %d", len(all))
			}
			data := all[0].Data
			if strings.Contains(data.Content, "boom") {
				t.Fatalf("raw error leaked to user: %q", data.Content)
			}
			if !strings.Contains(data.Content, GenericErrorCode) {
				t.Fatalf("expected generic error code, got %q", data.Content)
			}
			if data.Flags&discordgo.MessageFlagsEphemeral == 0 {
				t.Fatalf("expected ephemeral flag to be set")
			}
		})
	}
}

func TestHandlerErrorAfterDeferUsesFollowup(t *testing.T) {
	session, rec := newTestSession(t)
	ext := NewExtension("broken")
	ext.SlashCommand(CommandMeta{Name: "cmd"}, func(ctx *SlashCommandContext) error {
		if err := ctx.Defer(true); err != nil {
			return err
		}
		return errors.New("boom")
	})
	client := newClient(t, ext)

	responses := &responseLog{}
	client.Dispatch(Request{Session: session, Interaction: commandInteraction("cmd", "guild"), Responder: responses})

	if all := responses.all(); len(all) != 1 || all[0].Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Fatalf("expected a single deferred response, got %+v", all)
	}
	reqs := rec.all()
	if len(reqs) != 1 || reqs[0].Method != http.MethodPost || reqs[0].Path != "/webhooks/app/token" {
		t.Fatalf("expected one follow-up POST, got %+v", reqs)
	}
	var params discordgo.WebhookParams
	if err := json.Unmarshal(reqs[0].Body, &params); err != nil {
		t.Fatalf("decode follow-up: %v", err)
	}
	if strings.Contains(params.Content, "boom") || !strings.Contains(params.Content, GenericErrorCode) {
		t.Fatalf("unexpected follow-up content: %q", params.Content)
	}
}

func TestFriendlyErrorIsDelivered(t *testing.T) {
	session, _ := newTestSession(t)
	ext := NewExtension("tiktok")
	ext.SlashCommand(CommandMeta{Name: "tiktok"}, func(*SlashCommandContext) error {
		return NewFriendlyError("We did not see a valid TikTok link.", "7nVqDXkrHG")
	})
	client := newClient(t, ext)

	responses := &responseLog{}
	client.Dispatch(Request{Session: session, Interaction: commandInteraction("tiktok", ""), Responder: responses})

	all := responses.all()
	if len(all) != 1 {
		t.Fatalf("expected 1 response, got %d", len(all))
	}
	want := FriendlyErrorContent("We did not see a valid TikTok link.", "7nVqDXkrHG")
	if all[0].Data.Content != want {
		t.Fatalf("unexpected content:\n got %q\nwant %q", all[0].Data.Content, want)
	}
}

func TestDispatchButtonFirstMatchWins(t *testing.T) {
	session, _ := newTestSession(t)
	ext := NewExtension("tiktok")
	var hits []string
	ext.MustPersistentComponent(`^fav\d+$`, func(ctx *ComponentContext) error {
		hits = append(hits, "fav:"+ctx.CustomID)
		return nil
	}, "fav1")
	ext.MustPersistentComponent(`^fav`, func(*ComponentContext) error {
		hits = append(hits, "prefix")
		return nil
	})
	client := newClient(t, ext)

	client.Dispatch(Request{Session: session, Interaction: buttonInteraction("fav42"), Responder: &responseLog{}})
	if len(hits) != 1 || hits[0] != "fav:fav42" {
		t.Fatalf("expected first registered pattern to win, got %v", hits)
	}
}

func TestDispatchPingAnswersPong(t *testing.T) {
	client := newClient(t)
	responses := &responseLog{}
	client.Dispatch(Request{
		Interaction: &discordgo.Interaction{ID: "1", Type: discordgo.InteractionPing},
		Responder:   responses,
	})
	all := responses.all()
	if len(all) != 1 || all[0].Type != discordgo.InteractionResponsePong {
		t.Fatalf("expected pong, got %+v", all)
	}
}

func TestGuildScopedCommandPreferred(t *testing.T) {
	session, _ := newTestSession(t)
	var ran string
	global := NewExtension("global")
	global.SlashCommand(CommandMeta{Name: "ping"}, func(*SlashCommandContext) error { ran = "global"; return nil })
	scoped := NewExtension("scoped")
	scoped.SlashCommand(CommandMeta{Name: "ping", Scopes: []string{"guild"}}, func(*SlashCommandContext) error { ran = "guild"; return nil })
	client := newClient(t, global, scoped)

	client.Dispatch(Request{Session: session, Interaction: commandInteraction("ping", "guild"), Responder: &responseLog{}})
	if ran != "guild" {
		t.Fatalf("expected guild command, got %q", ran)
	}
	client.Dispatch(Request{Session: session, Interaction: commandInteraction("ping", "other"), Responder: &responseLog{}})
	if ran != "global" {
		t.Fatalf("expected global command outside the scoped guild, got %q", ran)
	}
}
