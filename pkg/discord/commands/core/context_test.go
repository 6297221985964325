package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestReplyOnlyOnceWithoutDefer(t *testing.T) {
	session, _ := newTestSession(t)
	responses := &responseLog{}
	ctx := NewInteractionContext(Request{Session: session, Interaction: commandInteraction("cmd", "g"), Responder: responses})

	if err := ctx.Reply(Ephemeral("hello")); err != nil {
		t.Fatalf("first reply: %v", err)
	}
	if err := ctx.Reply(Text("again")); !errors.Is(err, ErrAlreadyResponded) {
		t.Fatalf("expected ErrAlreadyResponded, got %v", err)
	}
	if err := ctx.Defer(false); !errors.Is(err, ErrNotDeferred) {
		t.Fatalf("expected ErrNotDeferred, got %v", err)
	}
	if ctx.State() != Responded {
		t.Fatalf("expected Responded, got %s", ctx.State())
	}

	all := responses.all()
	if len(all) != 1 {
		t.Fatalf("expected 1 initial response, got %d", len(all))
	}
	if all[0].Type != discordgo.InteractionResponseChannelMessageWithSource {
		t.Fatalf("unexpected response type %d", all[0].Type)
	}
	if all[0].Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Fatalf("expected ephemeral flag")
	}
}

func TestDeferThenTwoEphemeralFollowups(t *testing.T) {
	session, rec := newTestSession(t)
	responses := &responseLog{}
	ctx := NewInteractionContext(Request{Session: session, Interaction: commandInteraction("cmd", "g"), Responder: responses})

	if err := ctx.Defer(true); err != nil {
		t.Fatalf("defer: %v", err)
	}
	for _, content := range []string{"one", "two"} {
		if err := ctx.Reply(Ephemeral(content)); err != nil {
			t.Fatalf("follow-up %q: %v", content, err)
		}
	}

	all := responses.all()
	if len(all) != 1 || all[0].Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Fatalf("expected exactly one deferred response, got %+v", all)
	}
	if all[0].Data == nil || all[0].Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Fatalf("expected ephemeral defer")
	}

	reqs := rec.all()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 follow-ups, got %d", len(reqs))
	}
	for i, req := range reqs {
		if req.Method != http.MethodPost || req.Path != "/webhooks/app/token" {
			t.Fatalf("follow-up %d: unexpected %s %s", i, req.Method, req.Path)
		}
		var params discordgo.WebhookParams
		if err := json.Unmarshal(req.Body, &params); err != nil {
			t.Fatalf("decode follow-up %d: %v", i, err)
		}
		if params.Flags&discordgo.MessageFlagsEphemeral == 0 {
			t.Fatalf("follow-up %d is not ephemeral", i)
		}
	}
}

func TestFailedInitialResponseKeepsState(t *testing.T) {
	session, rec := newTestSession(t)
	failing := ResponderFunc(func(*discordgo.InteractionResponse) error { return ErrResponseWindowClosed })
	ctx := NewInteractionContext(Request{Session: session, Interaction: commandInteraction("cmd", "g"), Responder: failing})

	if err := ctx.Defer(true); !errors.Is(err, ErrResponseWindowClosed) {
		t.Fatalf("expected ErrResponseWindowClosed, got %v", err)
	}
	if ctx.State() != NotResponded {
		t.Fatalf("expected NotResponded after a failed defer, got %s", ctx.State())
	}
	if err := ctx.Reply(Ephemeral("x")); !errors.Is(err, ErrResponseWindowClosed) {
		t.Fatalf("expected the reply to retry the initial response, got %v", err)
	}
	if _, err := ctx.Followup(Text("late")); !errors.Is(err, ErrNotDeferred) {
		t.Fatalf("expected ErrNotDeferred, got %v", err)
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("expected no follow-ups for an unacknowledged interaction, got %d", n)
	}
}

func TestReplyModalOnlyAsInitialResponse(t *testing.T) {
	responses := &responseLog{}
	ctx := NewInteractionContext(Request{Interaction: commandInteraction("cmd", "g"), Responder: responses})

	modal := Modal{CustomID: "feedback", Title: "Feedback"}
	if err := ctx.ReplyModal(modal); err != nil {
		t.Fatalf("reply modal: %v", err)
	}
	if err := ctx.ReplyModal(modal); !errors.Is(err, ErrAlreadyResponded) {
		t.Fatalf("expected ErrAlreadyResponded, got %v", err)
	}
	all := responses.all()
	if len(all) != 1 || all[0].Type != discordgo.InteractionResponseModal || all[0].Data.CustomID != "feedback" {
		t.Fatalf("unexpected responses: %+v", all)
	}
}

func TestEditResponseTargets(t *testing.T) {
	session, rec := newTestSession(t)
	ctx := NewInteractionContext(Request{Session: session, Interaction: commandInteraction("cmd", "g"), Responder: &responseLog{}})

	if _, err := ctx.EditResponse(Text("original"), ""); err != nil {
		t.Fatalf("edit original: %v", err)
	}
	if _, err := ctx.EditResponse(Text("followup"), "42"); err != nil {
		t.Fatalf("edit follow-up: %v", err)
	}

	reqs := rec.all()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 edits, got %d", len(reqs))
	}
	if reqs[0].Method != http.MethodPatch || reqs[0].Path != "/webhooks/app/token/messages/@original" {
		t.Fatalf("unexpected original edit: %s %s", reqs[0].Method, reqs[0].Path)
	}
	if reqs[1].Path != "/webhooks/app/token/messages/42" {
		t.Fatalf("unexpected follow-up edit path %s", reqs[1].Path)
	}
}

func TestComponentDeferUpdateThenEditOrigin(t *testing.T) {
	session, rec := newTestSession(t)
	responses := &responseLog{}
	base := NewInteractionContext(Request{Session: session, Interaction: buttonInteraction("fav1"), Responder: responses})
	ctx := NewComponentContext(base, nil)

	if ctx.CustomID != "fav1" {
		t.Fatalf("expected custom id fav1, got %q", ctx.CustomID)
	}
	if err := ctx.DeferUpdate(); err != nil {
		t.Fatalf("defer update: %v", err)
	}
	if err := ctx.EditOrigin(Text("updated")); err != nil {
		t.Fatalf("edit origin: %v", err)
	}

	all := responses.all()
	if len(all) != 1 || all[0].Type != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Fatalf("expected deferred update, got %+v", all)
	}
	reqs := rec.all()
	if len(reqs) != 1 || reqs[0].Method != http.MethodPatch || reqs[0].Path != "/webhooks/app/token/messages/@original" {
		t.Fatalf("expected PATCH @original, got %+v", reqs)
	}
}

func TestComponentEditOriginAsInitialResponse(t *testing.T) {
	session, rec := newTestSession(t)
	responses := &responseLog{}
	base := NewInteractionContext(Request{Session: session, Interaction: buttonInteraction("fav1"), Responder: responses})
	ctx := NewComponentContext(base, nil)

	if err := ctx.EditOrigin(Text("updated")); err != nil {
		t.Fatalf("edit origin: %v", err)
	}
	all := responses.all()
	if len(all) != 1 || all[0].Type != discordgo.InteractionResponseUpdateMessage || all[0].Data.Content != "updated" {
		t.Fatalf("expected update-message response, got %+v", all)
	}
	if err := ctx.Reply(Text("late")); !errors.Is(err, ErrAlreadyResponded) {
		t.Fatalf("expected ErrAlreadyResponded after an update response, got %v", err)
	}

	if err := ctx.EditOrigin(Text("again")); err != nil {
		t.Fatalf("second edit origin: %v", err)
	}
	reqs := rec.all()
	if len(reqs) != 1 || reqs[0].Method != http.MethodPatch || reqs[0].Path != "/webhooks/app/token/messages/@original" {
		t.Fatalf("expected the second edit to PATCH @original, got %+v", reqs)
	}
}

func TestModalFieldsAreParsed(t *testing.T) {
	raw := []byte(`{
		"id": "1", "application_id": "app", "type": 5, "token": "token",
		"user": {"id": "user-1"},
		"data": {"custom_id": "report", "components": [
			{"type": 1, "components": [{"type": 4, "custom_id": "reason", "value": "spam"}]}
		]}
	}`)
	interaction, kind, err := ParseInteraction(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if kind != KindModalSubmit {
		t.Fatalf("expected modal kind, got %s", kind)
	}
	ctx := NewComponentContext(NewInteractionContext(Request{Interaction: interaction, Responder: &responseLog{}}), nil)
	if !ctx.IsModal() || ctx.CustomID != "report" || ctx.Field("reason") != "spam" {
		t.Fatalf("unexpected modal context: modal=%v id=%q reason=%q", ctx.IsModal(), ctx.CustomID, ctx.Field("reason"))
	}
}

func TestParseInteractionKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{name: "ping", raw: `{"id":"1","type":1}`, want: KindPing},
		{name: "slash", raw: `{"id":"1","type":2,"data":{"name":"ping","type":1}}`, want: KindSlashCommand},
		{name: "user menu", raw: `{"id":"1","type":2,"data":{"name":"Info","type":2,"target_id":"5"}}`, want: KindContextMenu},
		{name: "message menu", raw: `{"id":"1","type":2,"data":{"name":"Convert","type":3,"target_id":"5"}}`, want: KindContextMenu},
		{name: "autocomplete", raw: `{"id":"1","type":4,"data":{"name":"tiktok","type":1}}`, want: KindAutocomplete},
		{name: "button", raw: `{"id":"1","type":3,"data":{"custom_id":"fav1","component_type":2}}`, want: KindButton},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, kind, err := ParseInteraction([]byte(tt.raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if kind != tt.want {
				t.Fatalf("got %s want %s", kind, tt.want)
			}
		})
	}

	if _, _, err := ParseInteraction([]byte(`{"id":"1","type":99}`)); !errors.Is(err, ErrUnknownInteraction) {
		t.Fatalf("expected ErrUnknownInteraction, got %v", err)
	}
}
